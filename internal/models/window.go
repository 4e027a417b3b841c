package models

import "time"

// MinLogPosition is the first valid offset in a binlog file; the first four
// bytes hold the magic header.
const MinLogPosition = 4

// Window is the resolved scan range. Times are unix seconds, StartTime
// inclusive and StopTime exclusive.
type Window struct {
	StartFile     string
	StartPosition uint32
	StopFile      string
	StopPosition  uint32
	StartTime     int64
	StopTime      int64
	StopNever     bool
}

// FilterSpec selects the events that are translated
type FilterSpec struct {
	Schemas  map[string]bool
	Tables   map[string]bool
	SQLTypes map[RowKind]bool
	DMLOnly  bool
}

// NewFilterSpec builds a FilterSpec; empty sqlTypes selects all three kinds
func NewFilterSpec(schemas, tables []string, sqlTypes []RowKind, dmlOnly bool) FilterSpec {
	f := FilterSpec{
		Schemas:  toSet(schemas),
		Tables:   toSet(tables),
		SQLTypes: make(map[RowKind]bool),
		DMLOnly:  dmlOnly,
	}
	if len(sqlTypes) == 0 {
		sqlTypes = []RowKind{Insert, Update, Delete}
	}
	for _, k := range sqlTypes {
		f.SQLTypes[k] = true
	}
	return f
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]bool, len(items))
	for _, s := range items {
		set[s] = true
	}
	return set
}

// Mode controls how statements are generated
type Mode struct {
	NoPrimaryKey bool
	Flashback    bool
	JSONRewrite  bool
	// Location is used for annotation timestamps, time.Local when nil
	Location *time.Location
}

// Validate checks the mode against the filter it runs with
func (m Mode) Validate(f FilterSpec) error {
	if m.Flashback && m.NoPrimaryKey {
		return NewConfigurationError("only one of flashback or no-primary-key can be set")
	}
	if m.Flashback && !f.DMLOnly {
		return NewConfigurationError("DDL cannot be flashback, only-dml is required")
	}
	return nil
}

// Counters are the per run statistics
type Counters struct {
	TotalEvents    int64 `json:"total_events"`
	FilteredEvents int64 `json:"filtered_events"`
	Insert         int64 `json:"insert"`
	Update         int64 `json:"update"`
	Delete         int64 `json:"delete"`
	DDL            int64 `json:"ddl"`
}

// Summary is reported once when a run stops
type Summary struct {
	Counters
	RunID          string  `json:"run_id"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// LogFile is one entry of SHOW MASTER LOGS: a retained binlog file and the
// offset at its current end.
type LogFile struct {
	Name     string
	Position uint32
}
