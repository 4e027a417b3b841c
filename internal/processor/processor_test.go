package processor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/sirupsen/logrus/hooks/test"

	"binlog2sql/internal/models"
)

const (
	logFile  = "mysql-bin.000001"
	nextFile = "mysql-bin.000002"
	ts       = 1577836800 // 2020-01-01 00:00:00 UTC
)

type fileEvent struct {
	file  string
	event models.BinlogEvent
}

type fakeStream struct {
	events []fileEvent
	next   int
	file   string
	err    error // returned once events run out; blocks on ctx when nil
	closed bool
	cancel context.CancelFunc
}

func (s *fakeStream) Next(ctx context.Context) (models.BinlogEvent, error) {
	if s.next < len(s.events) {
		e := s.events[s.next]
		s.next++
		s.file = e.file
		return e.event, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.cancel != nil {
		s.cancel()
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *fakeStream) CurrentFile() string { return s.file }

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type fakeSink struct {
	events    []*models.ChangeEvent
	summaries []models.Summary
}

func (s *fakeSink) Emit(e *models.ChangeEvent) error {
	s.events = append(s.events, e)
	return nil
}

func (s *fakeSink) Summary(summary models.Summary) error {
	s.summaries = append(s.summaries, summary)
	return nil
}

func (s *fakeSink) lines() []string {
	var out []string
	for _, e := range s.events {
		out = append(out, e.SQL)
	}
	return out
}

type memHolder struct {
	saved []mysql.Position
}

func (h *memHolder) Load() (*mysql.Position, error) { return nil, nil }

func (h *memHolder) Save(pos mysql.Position) error {
	h.saved = append(h.saved, pos)
	return nil
}

func header(pos uint32) models.EventHeader {
	return models.EventHeader{Timestamp: ts, LogPos: pos}
}

func begin(pos uint32) *models.QueryEvent {
	return &models.QueryEvent{EventHeader: header(pos), Schema: "db", Query: "BEGIN"}
}

func xid(pos uint32) *models.PositionEvent {
	return &models.PositionEvent{EventHeader: header(pos), Name: "XidEvent", Commit: true}
}

func rows(pos uint32, kind models.RowKind, records ...models.RowRecord) *models.RowsEvent {
	return &models.RowsEvent{
		EventHeader: header(pos),
		Kind:        kind,
		Schema:      "db",
		Table:       "t",
		Columns:     []models.Column{{Name: "id", Type: mysql.MYSQL_TYPE_LONG}, {Name: "name", Type: mysql.MYSQL_TYPE_VARCHAR}},
		PrimaryKey:  []string{"id"},
		Rows:        records,
	}
}

func row(id int64, name string) models.RowRecord {
	return models.RowRecord{Values: []interface{}{id, name}}
}

func on(file string, events ...models.BinlogEvent) []fileEvent {
	out := make([]fileEvent, len(events))
	for i, e := range events {
		out[i] = fileEvent{file: file, event: e}
	}
	return out
}

func testWindow(stopPosition uint32) models.Window {
	return models.Window{
		StartFile:     logFile,
		StartPosition: 4,
		StopFile:      logFile,
		StopPosition:  stopPosition,
		StartTime:     0,
		StopTime:      ts + 3600,
	}
}

func run(t *testing.T, stream *fakeStream, opts Options) (*fakeSink, models.Summary) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	sink := &fakeSink{}
	if opts.Mode.Location == nil {
		opts.Mode.Location = time.UTC
	}
	summary, err := NewProcessor(stream, sink, opts, logger).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return sink, summary
}

func TestRunRedo(t *testing.T) {
	stream := &fakeStream{events: on(logFile,
		begin(100),
		rows(219, models.Insert, row(1, "a")),
		xid(250),
	)}
	logger, _ := test.NewNullLogger()
	sink := &fakeSink{}
	p := NewProcessor(stream, sink, Options{
		Window: testWindow(250),
		Filter: models.NewFilterSpec(nil, nil, nil, false),
		Mode:   models.Mode{Location: time.UTC},
	}, logger)
	summary, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if p.RunID() != summary.RunID || p.Counters() != summary.Counters {
		t.Errorf("processor state %s/%+v differs from summary %+v", p.RunID(), p.Counters(), summary)
	}

	want := []string{"INSERT INTO `db`.`t`(`id`, `name`) VALUES (1, 'a'); #start 100 end 219 time 2020-01-01T00:00:00+00:00"}
	if got := sink.lines(); !equal(got, want) {
		t.Fatalf("lines = %q, want %q", got, want)
	}
	if summary.TotalEvents != 3 || summary.FilteredEvents != 1 || summary.Insert != 1 || summary.DDL != 0 {
		t.Errorf("counters = %+v", summary.Counters)
	}
	if len(sink.summaries) != 1 {
		t.Errorf("summary published %d times", len(sink.summaries))
	}
	if !stream.closed {
		t.Error("stream not closed")
	}

	e := sink.events[0]
	if e.Type != "INSERT" || e.Database != "db" || e.Table != "t" || e.LogFile != logFile || e.StartPos != 100 || e.EndPos != 219 {
		t.Errorf("unexpected change event %+v", e)
	}
	if e.RunID == "" || e.RunID != summary.RunID {
		t.Errorf("run id %q, summary %q", e.RunID, summary.RunID)
	}
}

func TestRunFlashbackSwapsCounters(t *testing.T) {
	stream := &fakeStream{events: on(logFile,
		begin(100),
		rows(200, models.Insert, row(1, "a"), row(2, "b")),
		rows(300, models.Delete, row(3, "c")),
		rows(400, models.Update, models.RowRecord{
			Before: []interface{}{int64(1), "a"},
			After:  []interface{}{int64(1), "z"},
		}),
	)}
	sink, summary := run(t, stream, Options{
		Window: testWindow(400),
		Filter: models.NewFilterSpec(nil, nil, nil, true),
		Mode:   models.Mode{Flashback: true},
	})

	if summary.Insert != 1 || summary.Delete != 2 || summary.Update != 1 {
		t.Errorf("counters = %+v, want insert 1 delete 2 update 1", summary.Counters)
	}
	if summary.FilteredEvents != 3 {
		t.Errorf("filtered = %d, want 3", summary.FilteredEvents)
	}

	var prefixes []string
	for _, l := range sink.lines() {
		prefixes = append(prefixes, strings.Fields(l)[0])
	}
	if want := []string{"DELETE", "DELETE", "INSERT", "UPDATE"}; !equal(prefixes, want) {
		t.Errorf("statements = %v, want %v", prefixes, want)
	}
	if got := sink.lines()[3]; !strings.HasPrefix(got, "UPDATE `db`.`t` SET `id`=1, `name`='a' WHERE `id`=1 AND `name`='z' LIMIT 1;") {
		t.Errorf("update = %q", got)
	}
}

func TestRunBeginIsSwallowed(t *testing.T) {
	stream := &fakeStream{events: on(logFile,
		begin(100),
		&models.QueryEvent{EventHeader: header(500), Schema: "db", Query: "ALTER TABLE t ADD c INT"},
	)}
	sink, summary := run(t, stream, Options{
		Window: testWindow(500),
		Filter: models.NewFilterSpec(nil, nil, nil, false),
	})

	want := []string{"USE `db`;\nALTER TABLE t ADD c INT; #start 500 end 500 time 2020-01-01T00:00:00+00:00"}
	if got := sink.lines(); !equal(got, want) {
		t.Fatalf("lines = %q, want %q", got, want)
	}
	if summary.DDL != 1 || summary.FilteredEvents != 1 {
		t.Errorf("counters = %+v", summary.Counters)
	}
}

func TestRunDMLOnlySkipsDDL(t *testing.T) {
	stream := &fakeStream{events: on(logFile,
		&models.QueryEvent{EventHeader: header(150), Schema: "db", Query: "CREATE TABLE x (id INT)"},
		rows(219, models.Insert, row(1, "a")),
	)}
	sink, summary := run(t, stream, Options{
		Window: testWindow(219),
		Filter: models.NewFilterSpec(nil, nil, nil, true),
	})

	if summary.DDL != 0 || len(sink.events) != 1 {
		t.Fatalf("counters = %+v, lines = %q", summary.Counters, sink.lines())
	}
	// Row annotations start at the last query event, DDL or not.
	if sink.events[0].StartPos != 150 {
		t.Errorf("start = %d, want 150", sink.events[0].StartPos)
	}
}

func TestRunSQLTypeFilter(t *testing.T) {
	stream := &fakeStream{events: on(logFile,
		rows(200, models.Insert, row(1, "a")),
		rows(300, models.Delete, row(1, "a")),
	)}
	sink, summary := run(t, stream, Options{
		Window: testWindow(300),
		Filter: models.NewFilterSpec(nil, nil, []models.RowKind{models.Delete}, false),
	})

	if len(sink.events) != 1 || sink.events[0].Type != "DELETE" {
		t.Fatalf("lines = %q", sink.lines())
	}
	if summary.TotalEvents != 2 || summary.FilteredEvents != 1 || summary.Insert != 0 || summary.Delete != 1 {
		t.Errorf("counters = %+v", summary.Counters)
	}
}

func TestRunStopPositionIsInclusive(t *testing.T) {
	stream := &fakeStream{events: on(logFile,
		rows(100, models.Insert, row(1, "a")),
		rows(200, models.Insert, row(2, "b")),
		rows(300, models.Insert, row(3, "c")),
	)}
	sink, summary := run(t, stream, Options{
		Window: testWindow(200),
		Filter: models.NewFilterSpec(nil, nil, nil, false),
	})

	if len(sink.events) != 2 || summary.TotalEvents != 2 {
		t.Fatalf("processed %d events, emitted %q", summary.TotalEvents, sink.lines())
	}
	if stream.next != 2 {
		t.Errorf("pulled %d events, want 2", stream.next)
	}
	if last := sink.events[1]; last.EndPos != 200 {
		t.Errorf("last end = %d, want 200", last.EndPos)
	}
}

func TestRunStopsOnLaterFile(t *testing.T) {
	events := on(logFile, rows(100, models.Insert, row(1, "a")))
	events = append(events, on(nextFile, rows(120, models.Insert, row(2, "b")))...)
	stream := &fakeStream{events: events}

	sink, summary := run(t, stream, Options{
		Window: testWindow(1000),
		Filter: models.NewFilterSpec(nil, nil, nil, false),
	})

	if summary.TotalEvents != 1 || len(sink.events) != 1 {
		t.Errorf("counters = %+v, lines = %q", summary.Counters, sink.lines())
	}
}

func TestRunStopTime(t *testing.T) {
	late := rows(300, models.Insert, row(2, "b"))
	late.Timestamp = ts + 7200
	stream := &fakeStream{events: on(logFile,
		rows(200, models.Insert, row(1, "a")),
		late,
		rows(400, models.Insert, row(3, "c")),
	)}
	_, summary := run(t, stream, Options{
		Window: testWindow(10000),
		Filter: models.NewFilterSpec(nil, nil, nil, false),
	})

	if summary.TotalEvents != 2 {
		t.Errorf("total = %d, want 2", summary.TotalEvents)
	}
}

func TestRunSkipsBeforeStartTime(t *testing.T) {
	early := rows(100, models.Insert, row(1, "a"))
	early.Timestamp = ts - 3600
	stream := &fakeStream{events: on(logFile,
		early,
		rows(200, models.Insert, row(2, "b")),
	)}

	logger, hook := test.NewNullLogger()
	sink := &fakeSink{}
	w := testWindow(200)
	w.StartTime = ts
	summary, err := NewProcessor(stream, sink, Options{
		Window: w,
		Filter: models.NewFilterSpec(nil, nil, nil, false),
		Mode:   models.Mode{Location: time.UTC},
	}, logger).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if summary.TotalEvents != 2 || summary.FilteredEvents != 1 || len(sink.events) != 1 {
		t.Errorf("counters = %+v, lines = %q", summary.Counters, sink.lines())
	}

	found := false
	for _, e := range hook.AllEntries() {
		if e.Message == "Binlog scan to 2019-12-31 23:00:00" {
			found = true
		}
	}
	if !found {
		t.Error("missing progress line")
	}
}

func TestRunStopNeverTails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := on(logFile,
		rows(100, models.Insert, row(1, "a")),
		rows(200, models.Insert, row(2, "b")),
	)
	events = append(events, on(nextFile, rows(120, models.Insert, row(3, "c")))...)
	stream := &fakeStream{events: events, cancel: cancel}

	w := testWindow(100)
	w.StopNever = true
	logger, _ := test.NewNullLogger()
	sink := &fakeSink{}
	summary, err := NewProcessor(stream, sink, Options{
		Window: w,
		Filter: models.NewFilterSpec(nil, nil, nil, false),
	}, logger).Run(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if summary.TotalEvents != 3 || len(sink.events) != 3 {
		t.Errorf("counters = %+v", summary.Counters)
	}
	if len(sink.summaries) != 1 {
		t.Errorf("summary published %d times", len(sink.summaries))
	}
	if sink.events[2].LogFile != nextFile {
		t.Errorf("log file = %s", sink.events[2].LogFile)
	}
}

func TestRunPreservesOrder(t *testing.T) {
	var events []models.BinlogEvent
	for i := 1; i <= 20; i++ {
		events = append(events, rows(uint32(i*100), models.Insert, row(int64(i), "x")))
	}
	stream := &fakeStream{events: on(logFile, events...)}
	sink, _ := run(t, stream, Options{
		Window: testWindow(2000),
		Filter: models.NewFilterSpec(nil, nil, nil, false),
	})

	if len(sink.events) != 20 {
		t.Fatalf("emitted %d statements", len(sink.events))
	}
	for i := 1; i < len(sink.events); i++ {
		if sink.events[i].EndPos <= sink.events[i-1].EndPos {
			t.Fatalf("statement %d out of order: %d after %d", i, sink.events[i].EndPos, sink.events[i-1].EndPos)
		}
	}
}

func TestRunStreamError(t *testing.T) {
	lost := errors.New("connection lost")
	stream := &fakeStream{
		events: on(logFile, rows(100, models.Insert, row(1, "a"))),
		err:    lost,
	}
	logger, _ := test.NewNullLogger()
	sink := &fakeSink{}
	summary, err := NewProcessor(stream, sink, Options{
		Window: testWindow(1000),
		Filter: models.NewFilterSpec(nil, nil, nil, false),
	}, logger).Run(context.Background())

	if !errors.Is(err, lost) {
		t.Fatalf("err = %v, want %v", err, lost)
	}
	if len(sink.events) != 1 || summary.Insert != 1 {
		t.Errorf("emitted %d statements before the failure", len(sink.events))
	}
	if len(sink.summaries) != 0 {
		t.Error("summary published after a stream failure")
	}
	if !stream.closed {
		t.Error("stream not closed")
	}
}

func TestRunSavesCheckpointAtBoundaries(t *testing.T) {
	holder := &memHolder{}
	stream := &fakeStream{events: on(logFile,
		begin(100),
		&models.PositionEvent{EventHeader: header(180), Name: "TableMapEvent"},
		rows(219, models.Insert, row(1, "a")),
		xid(250),
		&models.QueryEvent{EventHeader: header(400), Schema: "db", Query: "ALTER TABLE t ADD c INT"},
		begin(450),
		&models.PositionEvent{EventHeader: header(500), Name: "TableMapEvent"},
		rows(560, models.Delete, row(1, "a")),
	)}
	run(t, stream, Options{
		Window:     testWindow(560),
		Filter:     models.NewFilterSpec(nil, nil, nil, false),
		Checkpoint: holder,
	})

	want := []mysql.Position{{Name: logFile, Pos: 250}, {Name: logFile, Pos: 400}}
	if len(holder.saved) != len(want) {
		t.Fatalf("saved %v, want %v", holder.saved, want)
	}
	for i := range want {
		if holder.saved[i] != want[i] {
			t.Errorf("checkpoint %d = %v, want %v", i, holder.saved[i], want[i])
		}
	}
}

func TestIsBoundary(t *testing.T) {
	tests := []struct {
		name  string
		event models.BinlogEvent
		want  bool
	}{
		{"xid", xid(10), true},
		{"ddl", &models.QueryEvent{Query: "DROP TABLE t"}, true},
		{"begin", begin(10), false},
		{"table map", &models.PositionEvent{Name: "TableMapEvent"}, false},
		{"rows", rows(10, models.Insert, row(1, "a")), false},
	}
	for _, tt := range tests {
		if got := isBoundary(tt.event); got != tt.want {
			t.Errorf("%s: isBoundary = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRunTransformerDropsStatements(t *testing.T) {
	logger, _ := test.NewNullLogger()
	tr, err := newTransformer(`(function(e) {
		if (e.type === "DELETE") { return null; }
		return e.sql.replace("INSERT", "REPLACE");
	})`, logger, nil)
	if err != nil {
		t.Fatal(err)
	}

	stream := &fakeStream{events: on(logFile,
		rows(200, models.Insert, row(1, "a")),
		rows(300, models.Delete, row(1, "a")),
	)}
	sink, summary := run(t, stream, Options{
		Window:      testWindow(300),
		Filter:      models.NewFilterSpec(nil, nil, nil, false),
		Transformer: tr,
	})

	if len(sink.events) != 1 || !strings.HasPrefix(sink.events[0].SQL, "REPLACE INTO `db`.`t`") {
		t.Fatalf("lines = %q", sink.lines())
	}
	// Dropped statements are still counted.
	if summary.Delete != 1 {
		t.Errorf("delete = %d, want 1", summary.Delete)
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
