package models

import "time"

// StatementKind tells what a generated statement does
type StatementKind string

const (
	InsertStatement StatementKind = "INSERT"
	UpdateStatement StatementKind = "UPDATE"
	DeleteStatement StatementKind = "DELETE"
	DDLStatement    StatementKind = "DDL"
)

// Annotation locates the log coordinate that produced a statement
type Annotation struct {
	Start     uint32
	End       uint32
	Timestamp uint32
}

// GeneratedStatement is a SQL template with its ordered parameters.
// DDL statements carry no parameters and no placeholders.
type GeneratedStatement struct {
	Kind       StatementKind
	Schema     string
	Table      string
	Template   string
	Args       []interface{}
	Annotation Annotation
}

// ChangeEvent is the published form of a rendered statement
type ChangeEvent struct {
	RunID     string    `json:"run_id"`
	Type      string    `json:"type"` // INSERT, UPDATE, DELETE, DDL
	Database  string    `json:"database"`
	Table     string    `json:"table,omitempty"`
	LogFile   string    `json:"log_file"`
	StartPos  uint32    `json:"start_pos"`
	EndPos    uint32    `json:"end_pos"`
	Timestamp time.Time `json:"timestamp"`
	SQL       string    `json:"sql"`
}
