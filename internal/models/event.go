package models

import (
	"fmt"
	"strings"
)

// RowKind is the operation carried by a rows event
type RowKind string

const (
	Insert RowKind = "INSERT"
	Update RowKind = "UPDATE"
	Delete RowKind = "DELETE"
)

// ParseRowKind parses INSERT, UPDATE or DELETE in any case
func ParseRowKind(s string) (RowKind, error) {
	switch k := RowKind(strings.ToUpper(strings.TrimSpace(s))); k {
	case Insert, Update, Delete:
		return k, nil
	}
	return "", fmt.Errorf("unknown sql type %q", s)
}

// EventHeader is the part of the binlog header the translator needs.
// LogPos is the offset right after the event in its log file.
type EventHeader struct {
	Timestamp uint32
	LogPos    uint32
}

// BinlogEvent is one decoded event from the stream. The set of
// implementations is closed: *RowsEvent, *QueryEvent and *PositionEvent.
type BinlogEvent interface {
	Header() EventHeader
	binlogEvent()
}

// Column describes one column of a rows event
type Column struct {
	Name     string
	Type     byte // mysql.MYSQL_TYPE_* code from the table map
	Unsigned bool
}

// RowRecord is one row change. Insert and Delete use Values, Update uses
// Before and After. Every slice is aligned with RowsEvent.Columns.
type RowRecord struct {
	Values []interface{}
	Before []interface{}
	After  []interface{}
}

// RowsEvent is an Insert, Update or Delete on a single table
type RowsEvent struct {
	EventHeader
	Kind       RowKind
	Schema     string
	Table      string
	Columns    []Column
	PrimaryKey []string
	Rows       []RowRecord
}

// QueryEvent is a statement based event: DDL and transaction markers
type QueryEvent struct {
	EventHeader
	Schema string
	Query  string
}

// PositionEvent is any other event (XID, rotate, GTID, ...). It is never
// translated but still moves the stream position. Commit marks the end of
// a transaction (XID).
type PositionEvent struct {
	EventHeader
	Name   string
	Commit bool
}

func (h EventHeader) Header() EventHeader { return h }

func (*RowsEvent) binlogEvent()     {}
func (*QueryEvent) binlogEvent()    {}
func (*PositionEvent) binlogEvent() {}

// IsBegin reports whether the query is the transaction marker
func (e *QueryEvent) IsBegin() bool {
	return e.Query == "BEGIN"
}

// ColumnNames returns the column names in declared order
func (e *RowsEvent) ColumnNames() []string {
	names := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		names[i] = c.Name
	}
	return names
}

func (e *RowsEvent) String() string {
	return fmt.Sprintf("[%s] %s.%s (%d rows)", e.Kind, e.Schema, e.Table, len(e.Rows))
}
