package models

import "fmt"

// ConfigurationError reports an invalid or contradictory setting. It is
// always raised before any streaming starts.
type ConfigurationError struct {
	Reason string
}

func NewConfigurationError(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	return "parameter error: " + e.Reason
}

// UnsupportedEventError is returned when an event reaches the generator
// with a kind it cannot translate.
type UnsupportedEventError struct {
	Event string
}

func (e *UnsupportedEventError) Error() string {
	return fmt.Sprintf("unsupported event %s", e.Event)
}
