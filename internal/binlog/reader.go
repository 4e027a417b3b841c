package binlog

import (
	"context"
	"fmt"

	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/go-mysql-org/go-mysql/replication"
	"github.com/sirupsen/logrus"

	"binlog2sql/internal/meta"
	"binlog2sql/internal/models"
)

// ColumnSource looks up table columns when the binlog carries no column
// names (binlog_row_metadata=MINIMAL, MySQL 5.x)
type ColumnSource interface {
	Columns(ctx context.Context, database, table string) ([]meta.ColumnInfo, error)
}

// Config holds the replication connection and stream settings
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	ServerID uint32
	Flavor   string // mysql, mariadb

	StartFile     string
	StartPosition uint32
	Schemas       []string
	Tables        []string
	// events older than SkipToTimestamp are dropped without being returned
	SkipToTimestamp uint32
}

// Reader streams decoded binlog events from the server
type Reader struct {
	syncer      *replication.BinlogSyncer
	streamer    *replication.BinlogStreamer
	columns     ColumnSource
	schemas     map[string]bool
	tables      map[string]bool
	skipTo      uint32
	currentFile string
	logger      *logrus.Logger
}

// NewReader registers as a replica and starts streaming from the start
// coordinate. The stream blocks for new events once it reaches the end of
// the log.
func NewReader(cfg Config, columns ColumnSource, logger *logrus.Logger) (*Reader, error) {
	// Set default flavor if not specified
	if cfg.Flavor == "" {
		cfg.Flavor = mysql.MySQLFlavor
	}

	syncer := replication.NewBinlogSyncer(replication.BinlogSyncerConfig{
		ServerID:   cfg.ServerID,
		Flavor:     cfg.Flavor,
		Host:       cfg.Host,
		Port:       uint16(cfg.Port),
		User:       cfg.User,
		Password:   cfg.Password,
		Charset:    "utf8mb4",
		UseDecimal: true,
		Logger:     logger,
	})

	position := mysql.Position{Name: cfg.StartFile, Pos: cfg.StartPosition}
	streamer, err := syncer.StartSync(position)
	if err != nil {
		syncer.Close()
		return nil, fmt.Errorf("failed to start binlog sync: %w", err)
	}

	logger.Infof("Started binlog sync from position: %s", position)

	r := newReader(columns, cfg, logger)
	r.syncer = syncer
	r.streamer = streamer
	return r, nil
}

func newReader(columns ColumnSource, cfg Config, logger *logrus.Logger) *Reader {
	return &Reader{
		columns:     columns,
		schemas:     toSet(cfg.Schemas),
		tables:      toSet(cfg.Tables),
		skipTo:      cfg.SkipToTimestamp,
		currentFile: cfg.StartFile,
		logger:      logger,
	}
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, s := range items {
		set[s] = true
	}
	return set
}

// Next blocks until the next event that passes the stream filters
func (r *Reader) Next(ctx context.Context) (models.BinlogEvent, error) {
	for {
		ev, err := r.streamer.GetEvent(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get binlog event: %w", err)
		}
		out, err := r.convert(ctx, ev)
		if err != nil {
			return nil, err
		}
		if out != nil {
			return out, nil
		}
	}
}

// CurrentFile is the binlog file the last returned event belongs to
func (r *Reader) CurrentFile() string {
	return r.currentFile
}

// Close closes the binlog reader
func (r *Reader) Close() error {
	if r.syncer != nil {
		r.syncer.Close()
	}
	return nil
}

// convert maps a go-mysql event to the translator's model. A nil event
// with a nil error means the event was filtered out.
func (r *Reader) convert(ctx context.Context, ev *replication.BinlogEvent) (models.BinlogEvent, error) {
	header := models.EventHeader{Timestamp: ev.Header.Timestamp, LogPos: ev.Header.LogPos}

	// Handle RotateEvent to update current file name
	if e, ok := ev.Event.(*replication.RotateEvent); ok {
		r.currentFile = string(e.NextLogName)
		r.logger.Infof("Binlog rotated to: %s", r.currentFile)
	}

	if ev.Header.Timestamp < r.skipTo {
		return nil, nil
	}

	switch e := ev.Event.(type) {
	case *replication.RowsEvent:
		var kind models.RowKind
		switch ev.Header.EventType {
		case replication.WRITE_ROWS_EVENTv0, replication.WRITE_ROWS_EVENTv1, replication.WRITE_ROWS_EVENTv2:
			kind = models.Insert
		case replication.UPDATE_ROWS_EVENTv0, replication.UPDATE_ROWS_EVENTv1, replication.UPDATE_ROWS_EVENTv2:
			kind = models.Update
		case replication.DELETE_ROWS_EVENTv0, replication.DELETE_ROWS_EVENTv1, replication.DELETE_ROWS_EVENTv2:
			kind = models.Delete
		default:
			r.logger.Debugf("Unhandled row event type: %s", ev.Header.EventType)
			return &models.PositionEvent{EventHeader: header, Name: ev.Header.EventType.String()}, nil
		}
		if !r.included(string(e.Table.Schema), string(e.Table.Table)) {
			return nil, nil
		}
		return r.rowsEvent(ctx, header, kind, e)

	case *replication.QueryEvent:
		q := &models.QueryEvent{EventHeader: header, Schema: string(e.Schema), Query: string(e.Query)}
		if !q.IsBegin() {
			if resetter, ok := r.columns.(interface{ Reset() }); ok {
				resetter.Reset()
			}
		}
		r.logger.Debugf("Query event: %s", q.Query)
		return q, nil

	case *replication.XIDEvent:
		return &models.PositionEvent{EventHeader: header, Name: ev.Header.EventType.String(), Commit: true}, nil

	default:
		return &models.PositionEvent{EventHeader: header, Name: ev.Header.EventType.String()}, nil
	}
}

func (r *Reader) included(schema, table string) bool {
	if len(r.schemas) > 0 && !r.schemas[schema] {
		return false
	}
	if len(r.tables) > 0 && !r.tables[table] {
		return false
	}
	return true
}

func (r *Reader) rowsEvent(ctx context.Context, header models.EventHeader, kind models.RowKind, e *replication.RowsEvent) (*models.RowsEvent, error) {
	tableMap := e.Table
	out := &models.RowsEvent{
		EventHeader: header,
		Kind:        kind,
		Schema:      string(tableMap.Schema),
		Table:       string(tableMap.Table),
	}

	cols, pk, err := r.describe(ctx, tableMap)
	if err != nil {
		return nil, err
	}
	out.Columns = cols
	out.PrimaryKey = pk

	// Row images may be shorter than the table with binlog_row_image=MINIMAL
	// Pad them so they line up with the columns.
	fit := func(row []interface{}) []interface{} {
		out := make([]interface{}, len(cols))
		copy(out, row)
		for i, c := range cols {
			if c.Unsigned {
				out[i] = toUnsigned(out[i], c.Type)
			}
		}
		return out
	}

	if kind == models.Update {
		// For UPDATE, event.Rows contains [old_row_1, new_row_1, old_row_2, new_row_2, ...]
		if len(e.Rows)%2 != 0 {
			return nil, fmt.Errorf("invalid update rows event on %s.%s, must have 2x rows, but %d", out.Schema, out.Table, len(e.Rows))
		}
		for i := 0; i < len(e.Rows); i += 2 {
			out.Rows = append(out.Rows, models.RowRecord{Before: fit(e.Rows[i]), After: fit(e.Rows[i+1])})
		}
	} else {
		for _, row := range e.Rows {
			out.Rows = append(out.Rows, models.RowRecord{Values: fit(row)})
		}
	}
	return out, nil
}

// describe resolves column names, types, signedness and primary key
// columns. Names come from the table map when the server logs them (MySQL
// 8.0+ with binlog_row_metadata=FULL), otherwise from INFORMATION_SCHEMA.
// Signedness comes from the table map when present, the schema otherwise.
func (r *Reader) describe(ctx context.Context, tableMap *replication.TableMapEvent) ([]models.Column, []string, error) {
	cols := make([]models.Column, tableMap.ColumnCount)
	for i := range cols {
		if i < len(tableMap.ColumnType) {
			cols[i].Type = tableMap.ColumnType[i]
		}
	}

	var (
		pk   []string
		info []meta.ColumnInfo
		err  error
	)
	if len(tableMap.ColumnName) > 0 {
		for i := range cols {
			if i < len(tableMap.ColumnName) {
				cols[i].Name = string(tableMap.ColumnName[i])
			}
		}
		for _, idx := range tableMap.PrimaryKey {
			if int(idx) < len(cols) {
				pk = append(pk, cols[idx].Name)
			}
		}
	} else {
		if r.columns == nil {
			return nil, nil, fmt.Errorf("no column names for %s.%s in binlog and no column source", tableMap.Schema, tableMap.Table)
		}
		if info, err = r.columnInfo(ctx, tableMap, len(cols)); err != nil {
			return nil, nil, err
		}
		for i := range cols {
			if i < len(info) {
				cols[i].Name = info[i].Name
				if info[i].PrimaryKey {
					pk = append(pk, info[i].Name)
				}
			}
		}
	}

	if unsigned := tableMap.UnsignedMap(); unsigned != nil {
		for i := range cols {
			cols[i].Unsigned = unsigned[i]
		}
	} else if r.columns != nil {
		if info == nil {
			if info, err = r.columnInfo(ctx, tableMap, len(cols)); err != nil {
				return nil, nil, err
			}
		}
		for i := range cols {
			if i < len(info) {
				cols[i].Unsigned = info[i].Unsigned()
			}
		}
	}

	for i := range cols {
		if cols[i].Name == "" {
			cols[i].Name = fmt.Sprintf("@%d", i+1)
		}
	}
	return cols, pk, nil
}

func (r *Reader) columnInfo(ctx context.Context, tableMap *replication.TableMapEvent, count int) ([]meta.ColumnInfo, error) {
	info, err := r.columns.Columns(ctx, string(tableMap.Schema), string(tableMap.Table))
	if err != nil {
		return nil, fmt.Errorf("failed to get column info: %w", err)
	}
	if len(info) != count {
		r.logger.Warnf("Column count mismatch on %s.%s: binlog has %d columns, schema has %d",
			tableMap.Schema, tableMap.Table, count, len(info))
	}
	return info, nil
}

// toUnsigned reinterprets an integer the decoder returned as signed. INT24
// arrives sign extended in an int32.
func toUnsigned(v interface{}, typ byte) interface{} {
	switch x := v.(type) {
	case int8:
		return uint8(x)
	case int16:
		return uint16(x)
	case int32:
		if typ == mysql.MYSQL_TYPE_INT24 {
			return uint32(x) & 0xFFFFFF
		}
		return uint32(x)
	case int64:
		return uint64(x)
	}
	return v
}
