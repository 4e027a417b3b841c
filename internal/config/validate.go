package config

import (
	"time"

	"github.com/sirupsen/logrus"

	"binlog2sql/internal/models"
	"binlog2sql/internal/window"
)

// Validate rejects contradictory or malformed settings. Every error is a
// *models.ConfigurationError.
func (c *Config) Validate() error {
	if c.Binlog.StartPosition != 0 && c.Binlog.StartPosition < models.MinLogPosition {
		return models.NewConfigurationError("start position %d is below %d", c.Binlog.StartPosition, models.MinLogPosition)
	}
	for _, text := range []string{c.Binlog.StartTime, c.Binlog.StopTime} {
		if text == "" {
			continue
		}
		if _, err := window.ParseTime(text, time.Local); err != nil {
			return err
		}
	}

	filter, err := c.FilterSpec()
	if err != nil {
		return err
	}
	if c.Mode.Flashback && c.Binlog.StopNever {
		return models.NewConfigurationError("only one of flashback or stop-never can be set")
	}
	if err := c.TranslationMode().Validate(filter); err != nil {
		return err
	}

	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return models.NewConfigurationError("invalid log level %q", c.Logging.Level)
	}
	return nil
}

// FilterSpec builds the event filter
func (c *Config) FilterSpec() (models.FilterSpec, error) {
	var kinds []models.RowKind
	for _, s := range c.Filter.SQLTypes {
		kind, err := models.ParseRowKind(s)
		if err != nil {
			return models.FilterSpec{}, models.NewConfigurationError("%v", err)
		}
		kinds = append(kinds, kind)
	}
	return models.NewFilterSpec(c.Filter.Databases, c.Filter.Tables, kinds, c.Filter.OnlyDML), nil
}

// TranslationMode builds the generation mode, in local time
func (c *Config) TranslationMode() models.Mode {
	return models.Mode{
		NoPrimaryKey: c.Mode.NoPrimaryKey,
		Flashback:    c.Mode.Flashback,
		JSONRewrite:  c.Mode.JSON,
		Location:     time.Local,
	}
}

// WindowOptions are the raw boundary settings for window.Resolve
func (c *Config) WindowOptions() window.Options {
	return window.Options{
		StartFile:     c.Binlog.StartFile,
		StopFile:      c.Binlog.StopFile,
		StartPosition: c.Binlog.StartPosition,
		StopPosition:  c.Binlog.StopPosition,
		StartTime:     c.Binlog.StartTime,
		StopTime:      c.Binlog.StopTime,
		StopNever:     c.Binlog.StopNever,
		Location:      time.Local,
	}
}
