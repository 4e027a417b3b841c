// Package filter decides which binlog events get translated.
package filter

import "binlog2sql/internal/models"

// Class is the outcome of Accept
type Class int

const (
	// OutOfWindow events happened before the window start time
	OutOfWindow Class = iota
	// Skip events are dropped silently
	Skip
	// DML events are translated row by row
	DML
	// DDL events are translated as a single statement
	DDL
)

func (c Class) String() string {
	switch c {
	case OutOfWindow:
		return "OUT_OF_WINDOW"
	case Skip:
		return "SKIP"
	case DML:
		return "DML"
	case DDL:
		return "DDL"
	}
	return "UNKNOWN"
}

// Decision is the class of an event, with the row kind for DML
type Decision struct {
	Class Class
	Kind  models.RowKind
}

// Accept classifies an event against the filter and the window start time.
// Schema and table narrowing is normally done by the stream already, it is
// checked again here when the sets are not empty.
func Accept(event models.BinlogEvent, fs models.FilterSpec, startTime int64) Decision {
	if int64(event.Header().Timestamp) < startTime {
		return Decision{Class: OutOfWindow}
	}

	switch e := event.(type) {
	case *models.RowsEvent:
		if !fs.SQLTypes[e.Kind] {
			return Decision{Class: Skip}
		}
		if len(fs.Schemas) > 0 && !fs.Schemas[e.Schema] {
			return Decision{Class: Skip}
		}
		if len(fs.Tables) > 0 && !fs.Tables[e.Table] {
			return Decision{Class: Skip}
		}
		return Decision{Class: DML, Kind: e.Kind}
	case *models.QueryEvent:
		if fs.DMLOnly || e.IsBegin() {
			return Decision{Class: Skip}
		}
		return Decision{Class: DDL}
	default:
		return Decision{Class: Skip}
	}
}
