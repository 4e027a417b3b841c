package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"binlog2sql/internal/checkpoint"
	"binlog2sql/internal/filter"
	"binlog2sql/internal/metrics"
	"binlog2sql/internal/models"
	"binlog2sql/internal/sqlgen"
	"binlog2sql/internal/window"
)

// DefaultProgressInterval is how much log time passes between two
// "Binlog scan to" lines while the stream is still before the start time
const DefaultProgressInterval = 600 * time.Second

// Stream yields decoded binlog events in log order
type Stream interface {
	Next(ctx context.Context) (models.BinlogEvent, error)
	// CurrentFile is the binlog file of the last returned event
	CurrentFile() string
	Close() error
}

// Sink receives rendered statements and the final summary
type Sink interface {
	Emit(event *models.ChangeEvent) error
	Summary(summary models.Summary) error
}

// Sinks fans out to several sinks in order
type Sinks []Sink

func (s Sinks) Emit(event *models.ChangeEvent) error {
	for _, sink := range s {
		if err := sink.Emit(event); err != nil {
			return err
		}
	}
	return nil
}

func (s Sinks) Summary(summary models.Summary) error {
	var errs []error
	for _, sink := range s {
		if err := sink.Summary(summary); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Options configures a Processor
type Options struct {
	Window  models.Window
	Filter  models.FilterSpec
	Mode    models.Mode
	Escaper sqlgen.Escaper // sqlgen.LiteralEscaper when nil
	// Transformer optionally rewrites or drops statements
	Transformer *Transformer
	// Checkpoint optionally records the last processed coordinate
	Checkpoint       checkpoint.Holder
	ProgressInterval time.Duration
}

// Processor is the translation loop: it pulls events from the stream,
// filters them, renders SQL and decides when to stop.
type Processor struct {
	stream Stream
	sink   Sink
	opts   Options
	logger *logrus.Logger
	runID  string

	counters  models.Counters
	ddlPos    uint32 // end offset of the last query event
	printTime int64
	started   time.Time
}

// NewProcessor creates a new translation loop
func NewProcessor(stream Stream, sink Sink, opts Options, logger *logrus.Logger) *Processor {
	if opts.Escaper == nil {
		opts.Escaper = sqlgen.LiteralEscaper{}
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}
	return &Processor{
		stream: stream,
		sink:   sink,
		opts:   opts,
		logger: logger,
		runID:  uuid.NewString(),
	}
}

// RunID identifies this run in published statements and the summary
func (p *Processor) RunID() string {
	return p.runID
}

// Counters returns the statistics so far
func (p *Processor) Counters() models.Counters {
	return p.counters
}

// Run consumes the stream until the window end, a stream error, or ctx is
// cancelled. Cancellation ends the run normally with a summary.
func (p *Processor) Run(ctx context.Context) (models.Summary, error) {
	p.started = time.Now()
	p.ddlPos = models.MinLogPosition
	p.counters = models.Counters{}
	defer p.stream.Close()

	metrics.SetTailing(p.opts.Window.StopNever)
	p.logger.Infof("binlog2sql start, run %s", p.runID)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Context cancelled, stopping")
			return p.finish()
		default:
		}

		event, err := p.stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Info("Context cancelled, stopping")
				return p.finish()
			}
			summary := p.summary()
			return summary, fmt.Errorf("failed to read binlog event: %w", err)
		}
		if event == nil {
			continue
		}

		if p.pastStopFile() {
			p.logger.Debugf("Reached %s, past stop file %s", p.stream.CurrentFile(), p.opts.Window.StopFile)
			return p.finish()
		}

		done, err := p.handle(event)
		if err != nil {
			return p.summary(), err
		}
		if done {
			return p.finish()
		}
	}
}

func (p *Processor) pastStopFile() bool {
	w := p.opts.Window
	return !w.StopNever && w.StopFile != "" && window.CompareLogNames(p.stream.CurrentFile(), w.StopFile) > 0
}

// handle processes one event and reports whether the window end is reached
func (p *Processor) handle(event models.BinlogEvent) (bool, error) {
	h := event.Header()
	ts := int64(h.Timestamp)
	w := p.opts.Window

	p.counters.TotalEvents++
	metrics.ObserveEvent(h.LogPos)

	if ts < w.StartTime {
		if p.printTime+int64(p.opts.ProgressInterval/time.Second) < ts {
			p.printTime = ts
			p.logger.Infof("Binlog scan to %s", time.Unix(ts, 0).In(p.location()).Format("2006-01-02 15:04:05"))
		}
		return false, nil
	}

	if q, ok := event.(*models.QueryEvent); ok {
		p.ddlPos = q.LogPos
	}

	decision := filter.Accept(event, p.opts.Filter, w.StartTime)
	switch decision.Class {
	case filter.DML:
		if err := p.emitRows(event.(*models.RowsEvent)); err != nil {
			return false, err
		}
	case filter.DDL:
		p.counters.FilteredEvents++
		if err := p.emit(event, nil); err != nil {
			return false, err
		}
		p.counters.DDL++
	}

	if isBoundary(event) {
		p.save(h.LogPos)
	}

	done := !w.StopNever &&
		p.stream.CurrentFile() == w.StopFile &&
		(h.LogPos >= w.StopPosition || ts >= w.StopTime)
	return done, nil
}

func (p *Processor) emitRows(e *models.RowsEvent) error {
	p.counters.FilteredEvents++
	flashback := p.opts.Mode.Flashback

	for i := range e.Rows {
		if err := p.emit(e, &e.Rows[i]); err != nil {
			return err
		}
		switch e.Kind {
		case models.Insert:
			if flashback {
				p.counters.Delete++
			} else {
				p.counters.Insert++
			}
		case models.Delete:
			if flashback {
				p.counters.Insert++
			} else {
				p.counters.Delete++
			}
		case models.Update:
			p.counters.Update++
		}
	}
	return nil
}

func (p *Processor) emit(event models.BinlogEvent, row *models.RowRecord) error {
	stmt, err := sqlgen.Generate(event, row, p.opts.Mode, p.ddlPos)
	if err != nil {
		return fmt.Errorf("failed to generate SQL: %w", err)
	}
	line, err := sqlgen.Render(stmt, p.opts.Escaper, p.location())
	if err != nil {
		return err
	}

	change := &models.ChangeEvent{
		RunID:     p.runID,
		Type:      string(stmt.Kind),
		Database:  stmt.Schema,
		Table:     stmt.Table,
		LogFile:   p.stream.CurrentFile(),
		StartPos:  stmt.Annotation.Start,
		EndPos:    stmt.Annotation.End,
		Timestamp: time.Unix(int64(stmt.Annotation.Timestamp), 0).In(p.location()),
		SQL:       line,
	}

	if p.opts.Transformer != nil {
		change, err = p.opts.Transformer.Transform(change)
		if err != nil {
			if errors.Is(err, ErrStatementRejected) {
				return nil
			}
			return fmt.Errorf("failed to transform statement: %w", err)
		}
	}

	if err := p.sink.Emit(change); err != nil {
		return fmt.Errorf("failed to emit statement: %w", err)
	}
	metrics.ObserveStatement(change.Type)
	return nil
}

// isBoundary reports whether the stream can restart right after event: a
// commit, or a statement outside any transaction. Positions after a table
// map or inside a transaction are not restart points.
func isBoundary(event models.BinlogEvent) bool {
	switch e := event.(type) {
	case *models.PositionEvent:
		return e.Commit
	case *models.QueryEvent:
		return !e.IsBegin()
	}
	return false
}

func (p *Processor) save(pos uint32) {
	if p.opts.Checkpoint == nil || pos == 0 {
		return
	}
	err := p.opts.Checkpoint.Save(mysql.Position{Name: p.stream.CurrentFile(), Pos: pos})
	if err != nil {
		p.logger.Warnf("Failed to save checkpoint: %v", err)
	}
}

func (p *Processor) location() *time.Location {
	if p.opts.Mode.Location != nil {
		return p.opts.Mode.Location
	}
	return time.Local
}

func (p *Processor) summary() models.Summary {
	return models.Summary{
		Counters:       p.counters,
		RunID:          p.runID,
		ElapsedSeconds: time.Since(p.started).Seconds(),
	}
}

func (p *Processor) finish() (models.Summary, error) {
	summary := p.summary()
	p.logger.WithFields(logrus.Fields{
		"run_id":          summary.RunID,
		"total_events":    summary.TotalEvents,
		"filtered_events": summary.FilteredEvents,
		"insert":          summary.Insert,
		"update":          summary.Update,
		"delete":          summary.Delete,
		"ddl":             summary.DDL,
		"elapsed":         fmt.Sprintf("%.2fs", summary.ElapsedSeconds),
	}).Info("binlog2sql stop")

	if err := p.sink.Summary(summary); err != nil {
		return summary, fmt.Errorf("failed to publish summary: %w", err)
	}
	return summary, nil
}
