// Package sqlgen turns decoded binlog events into SQL statements, either
// replaying the change (redo) or reversing it (flashback).
package sqlgen

import (
	"fmt"
	"strings"
	"time"

	"binlog2sql/internal/codec"
	"binlog2sql/internal/models"
)

// AnnotationTimeLayout is the layout of the time in the statement suffix
const AnnotationTimeLayout = "2006-01-02T15:04:05-07:00"

// Generate builds the statement for one event. Row events need the row
// being translated, query events ignore it. start is the offset recorded
// as the statement origin.
func Generate(event models.BinlogEvent, row *models.RowRecord, mode models.Mode, start uint32) (models.GeneratedStatement, error) {
	var (
		stmt models.GeneratedStatement
		err  error
	)

	switch e := event.(type) {
	case *models.RowsEvent:
		if row == nil {
			return stmt, fmt.Errorf("rows event %s.%s: missing row", e.Schema, e.Table)
		}
		stmt, err = Pattern(e, *row, mode)
	case *models.QueryEvent:
		stmt = queryStatement(e)
	default:
		return stmt, &models.UnsupportedEventError{Event: fmt.Sprintf("%T", event)}
	}
	if err != nil {
		return stmt, err
	}

	h := event.Header()
	stmt.Annotation = models.Annotation{Start: start, End: h.LogPos, Timestamp: h.Timestamp}
	return stmt, nil
}

func queryStatement(e *models.QueryEvent) models.GeneratedStatement {
	var b strings.Builder
	if e.Schema != "" {
		fmt.Fprintf(&b, "USE %s;\n", QuoteIdentifier(e.Schema))
	}
	b.WriteString(e.Query)
	b.WriteByte(';')
	return models.GeneratedStatement{
		Kind:     models.DDLStatement,
		Schema:   e.Schema,
		Template: b.String(),
	}
}

// Pattern builds the template and parameters for one row of a rows event
func Pattern(e *models.RowsEvent, row models.RowRecord, mode models.Mode) (models.GeneratedStatement, error) {
	stmt := models.GeneratedStatement{Schema: e.Schema, Table: e.Table}
	cols := e.ColumnNames()

	switch e.Kind {
	case models.Insert, models.Delete:
		values, err := prepare(e, row.Values, mode)
		if err != nil {
			return stmt, err
		}
		deleting := e.Kind == models.Delete
		if mode.Flashback {
			deleting = !deleting
		}
		if deleting {
			stmt.Kind = models.DeleteStatement
			stmt.Template = deleteTemplate(e.Schema, e.Table, cols, values)
			stmt.Args = values
			return stmt, nil
		}
		if e.Kind == models.Insert && mode.NoPrimaryKey && !mode.Flashback {
			cols, values = dropColumns(cols, values, e.PrimaryKey)
		}
		stmt.Kind = models.InsertStatement
		stmt.Template = insertTemplate(e.Schema, e.Table, cols)
		stmt.Args = values

	case models.Update:
		before, err := prepare(e, row.Before, mode)
		if err != nil {
			return stmt, err
		}
		after, err := prepare(e, row.After, mode)
		if err != nil {
			return stmt, err
		}
		set, where := after, before
		if mode.Flashback {
			set, where = before, after
		}
		stmt.Kind = models.UpdateStatement
		stmt.Template = updateTemplate(e.Schema, e.Table, cols, where)
		stmt.Args = append(append(make([]interface{}, 0, len(set)+len(where)), set...), where...)

	default:
		return stmt, &models.UnsupportedEventError{Event: fmt.Sprintf("rows event kind %q", e.Kind)}
	}
	return stmt, nil
}

// prepare normalizes a row image and checks it lines up with the columns
func prepare(e *models.RowsEvent, image []interface{}, mode models.Mode) ([]interface{}, error) {
	if len(image) != len(e.Columns) {
		return nil, fmt.Errorf("%s.%s: row has %d values for %d columns", e.Schema, e.Table, len(image), len(e.Columns))
	}
	values := codec.NormalizeRow(image)
	if !mode.JSONRewrite {
		return values, nil
	}
	for i, c := range e.Columns {
		if !codec.IsJSONColumn(c.Type) {
			continue
		}
		v, err := codec.RewriteJSON(values[i])
		if err != nil {
			return nil, fmt.Errorf("%s.%s column %s: %w", e.Schema, e.Table, c.Name, err)
		}
		values[i] = v
	}
	return values, nil
}

func dropColumns(cols []string, values []interface{}, drop []string) ([]string, []interface{}) {
	if len(drop) == 0 {
		return cols, values
	}
	skip := make(map[string]bool, len(drop))
	for _, d := range drop {
		skip[d] = true
	}
	keptCols := make([]string, 0, len(cols))
	keptValues := make([]interface{}, 0, len(values))
	for i, c := range cols {
		if skip[c] {
			continue
		}
		keptCols = append(keptCols, c)
		keptValues = append(keptValues, values[i])
	}
	return keptCols, keptValues
}

func table(schema, name string) string {
	return QuoteIdentifier(schema) + "." + QuoteIdentifier(name)
}

func insertTemplate(schema, name string, cols []string) string {
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = QuoteIdentifier(c)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s(%s) VALUES (%s);",
		table(schema, name), strings.Join(quoted, ", "), strings.Join(marks, ", "))
}

func deleteTemplate(schema, name string, cols []string, values []interface{}) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s LIMIT 1;", table(schema, name), predicates(cols, values))
}

func updateTemplate(schema, name string, cols []string, where []interface{}) string {
	set := make([]string, len(cols))
	for i, c := range cols {
		set[i] = QuoteIdentifier(c) + "=?"
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s LIMIT 1;",
		table(schema, name), strings.Join(set, ", "), predicates(cols, where))
}

// predicates renders the WHERE conjunction. NULL values compare with IS
// since = never matches NULL.
func predicates(cols []string, values []interface{}) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		if values[i] == nil {
			parts[i] = QuoteIdentifier(c) + " IS ?"
		} else {
			parts[i] = QuoteIdentifier(c) + "=?"
		}
	}
	return strings.Join(parts, " AND ")
}

// Render substitutes the parameters and appends the position annotation.
// loc defaults to time.Local.
func Render(stmt models.GeneratedStatement, esc Escaper, loc *time.Location) (string, error) {
	text := stmt.Template
	if stmt.Kind != models.DDLStatement {
		var err error
		text, err = esc.Mogrify(stmt.Template, stmt.Args)
		if err != nil {
			return "", fmt.Errorf("failed to render %s on %s.%s: %w", stmt.Kind, stmt.Schema, stmt.Table, err)
		}
	}
	return text + " " + FormatAnnotation(stmt.Annotation, loc), nil
}

// FormatAnnotation renders the "#start .. end .. time .." comment
func FormatAnnotation(a models.Annotation, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	ts := time.Unix(int64(a.Timestamp), 0).In(loc)
	return fmt.Sprintf("#start %d end %d time %s", a.Start, a.End, ts.Format(AnnotationTimeLayout))
}
