package emitter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/n0needt0/synthlog/internal/corpus"
	"github.com/n0needt0/synthlog/internal/domain"
	"github.com/n0needt0/synthlog/internal/rewrite"
	"github.com/n0needt0/synthlog/internal/schedule"
	"github.com/n0needt0/synthlog/internal/values"
)

type memorySink struct {
	records []domain.Record
	failAt  map[int]bool
	calls   int
}

func (m *memorySink) Write(_ context.Context, rec domain.Record) error {
	m.calls++
	if m.failAt[m.calls] {
		return domain.SendFailure{Sink: "memory", Err: errors.New("boom")}
	}
	m.records = append(m.records, rec)
	return nil
}

func newGenerator(t *testing.T, format string, opts Options) *Generator {
	t.Helper()
	f, err := rewrite.Lookup(format)
	if err != nil {
		t.Fatal(err)
	}
	v, err := values.New(values.Options{Seed: 11})
	if err != nil {
		t.Fatal(err)
	}
	c, err := corpus.Load(format, v.Rand())
	if err != nil {
		t.Fatal(err)
	}
	g, err := NewGenerator(f, c, v, opts)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestGeneratorRunValues(t *testing.T) {
	g := newGenerator(t, "fortigate", Options{})
	device := g.fixedAddresses[domain.RoleDevice]
	if device == "" {
		t.Fatal("Expected a run device address")
	}
	ts := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 100; i++ {
		b, err := g.bundle(ts)
		if err != nil {
			t.Fatal(err)
		}
		if b.Addresses[domain.RoleDevice] != device {
			t.Fatalf("Expected device %s for every record, got %s", device, b.Addresses[domain.RoleDevice])
		}
		seen := map[string]bool{device: true}
		for _, role := range []string{domain.RoleSrc, domain.RoleDst, domain.RoleNAT} {
			a := b.Addresses[role]
			if seen[a] {
				t.Fatalf("Expected distinct addresses per record, got %v", b.Addresses)
			}
			seen[a] = true
		}
		if b.Username != g.username || b.Country != g.country {
			t.Fatalf("Expected run identity %s/%s, got %s/%s", g.username, g.country, b.Username, b.Country)
		}
		if n := b.Numbers["crscore"]; n < 0 || n > 100 {
			t.Fatalf("Expected crscore in range, got %d", n)
		}
	}
}

func TestGeneratorPerRecordIdentity(t *testing.T) {
	g := newGenerator(t, "sonicwall", Options{})
	ts := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	names := map[string]bool{}
	for i := 0; i < 20; i++ {
		b, _ := g.bundle(ts)
		names[b.Username] = true
	}
	if len(names) < 2 {
		t.Errorf("Expected usernames to vary per record, got %v", names)
	}
}

func TestGeneratorPoolExhausted(t *testing.T) {
	f, _ := rewrite.Lookup("fortigate")
	v, err := values.New(values.Options{Seed: 1, Pool: []string{"10.0.0.1", "10.0.0.2"}})
	if err != nil {
		t.Fatal(err)
	}
	c, _ := corpus.Load("fortigate", v.Rand())
	_, err = NewGenerator(f, c, v, Options{})
	if !errors.As(err, &domain.PoolExhausted{}) {
		t.Errorf("Expected PoolExhausted, got %v", err)
	}
}

type fakeAnnotator struct {
	err error
}

func (f fakeAnnotator) Annotate(line string, _ *domain.Bundle) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return line + " annotated", nil
}

func TestGeneratorAnnotators(t *testing.T) {
	ts := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)

	g := newGenerator(t, "aws", Options{Annotators: []Annotator{fakeAnnotator{}}})
	rec, err := g.Next(ts)
	if err != nil || !strings.HasSuffix(rec.Line, " annotated") {
		t.Errorf("Expected annotated record, got %q (%v)", rec.Line, err)
	}

	miss := fakeAnnotator{err: domain.LookupMiss{Address: "1.2.3.4", Err: errors.New("not found")}}
	g = newGenerator(t, "aws", Options{Annotators: []Annotator{miss}})
	rec, err = g.Next(ts)
	if err != nil || strings.HasSuffix(rec.Line, " annotated") {
		t.Errorf("Expected record to pass through on lookup miss, got %q (%v)", rec.Line, err)
	}

	g = newGenerator(t, "aws", Options{Annotators: []Annotator{fakeAnnotator{err: errors.New("db closed")}}})
	if _, err := g.Next(ts); err == nil {
		t.Error("Expected annotator failure to propagate")
	}
}

func TestGeneratorLocation(t *testing.T) {
	zone := time.FixedZone("", -8*3600)
	g := newGenerator(t, "fortigate", Options{Location: zone})
	rec, err := g.Next(time.Date(2015, 1, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rec.Line, "date=2015-01-01 time=04:00:00") {
		t.Errorf("Expected rendering in the configured zone, got %q", rec.Line)
	}
}

func TestBatchOneRecordPerInstant(t *testing.T) {
	g := newGenerator(t, "mssql", Options{})
	e := NewEngine(g, nil)
	start := time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC)
	series, err := schedule.Schedule(start, start.Add(time.Hour), 61)
	if err != nil {
		t.Fatal(err)
	}
	sink := &memorySink{}
	if err := e.Batch(context.Background(), series, sink); err != nil {
		t.Fatal(err)
	}
	if len(sink.records) != 61 {
		t.Fatalf("Expected 61 records, got %d", len(sink.records))
	}
	for i, rec := range sink.records {
		if !rec.Timestamp.Equal(series.At(i)) {
			t.Errorf("Expected record %d at %v, got %v", i, series.At(i), rec.Timestamp)
		}
		if want := series.At(i).Format("2006-01-02 15:04:05"); !strings.Contains(rec.Line, want) {
			t.Errorf("Expected record %d to carry %s, got %q", i, want, rec.Line)
		}
	}
	if e.Stats.RecordsEmitted.Load() != 61 {
		t.Errorf("Expected 61 emitted, got %d", e.Stats.RecordsEmitted.Load())
	}
}

func TestBatchSinkError(t *testing.T) {
	g := newGenerator(t, "mssql", Options{})
	e := NewEngine(g, nil)
	start := time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC)
	series, _ := schedule.Schedule(start, start.Add(time.Hour), 10)
	sink := &memorySink{failAt: map[int]bool{4: true}}

	err := e.Batch(context.Background(), series, sink)
	if !errors.As(err, &domain.SendFailure{}) {
		t.Fatalf("Expected SendFailure, got %v", err)
	}
	if len(sink.records) != 3 || e.Stats.RecordsFailed.Load() != 1 {
		t.Errorf("Expected 3 records and 1 failure, got %d and %d", len(sink.records), e.Stats.RecordsFailed.Load())
	}
	if e.Stats.ConsecutiveFailures.Load() != 1 {
		t.Errorf("Expected a failure streak of 1, got %d", e.Stats.ConsecutiveFailures.Load())
	}
}

func TestBatchCancelled(t *testing.T) {
	g := newGenerator(t, "mssql", Options{})
	e := NewEngine(g, nil)
	start := time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC)
	series, _ := schedule.Schedule(start, start.Add(time.Hour), 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.Batch(ctx, series, &memorySink{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestLiveKeepsGoingAfterFailures(t *testing.T) {
	g := newGenerator(t, "sonicwall", Options{})
	e := NewEngine(g, nil)

	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	e.clock = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var delays []time.Duration
	e.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		now = now.Add(d)
		if len(delays) == 10 {
			cancel()
			return context.Canceled
		}
		return nil
	}

	var failures, successes int
	e.OnFailure = func(error) { failures++ }
	e.OnSuccess = func() { successes++ }
	sink := &memorySink{failAt: map[int]bool{2: true, 5: true}}

	if err := e.Live(ctx, sink); err != nil {
		t.Fatalf("Expected clean stop, got %v", err)
	}
	if sink.calls != 10 || len(sink.records) != 8 {
		t.Errorf("Expected 10 sends and 8 records, got %d and %d", sink.calls, len(sink.records))
	}
	if failures != 2 || e.Stats.RecordsFailed.Load() != 2 {
		t.Errorf("Expected 2 failures, got %d (stats %d)", failures, e.Stats.RecordsFailed.Load())
	}
	if successes != 8 {
		t.Errorf("Expected 8 successes, got %d", successes)
	}
	if e.Stats.ConsecutiveFailures.Load() != 0 {
		t.Errorf("Expected the streak reset by later deliveries, got %d", e.Stats.ConsecutiveFailures.Load())
	}

	allowed := map[time.Duration]bool{}
	for _, d := range DefaultDelays {
		allowed[d] = true
	}
	for _, d := range delays {
		if !allowed[d] {
			t.Errorf("Expected delay from the catalog, got %v", d)
		}
	}
	for i := 1; i < len(sink.records); i++ {
		if !sink.records[i].Timestamp.After(sink.records[i-1].Timestamp) {
			t.Errorf("Expected increasing wall clock timestamps, got %v then %v", sink.records[i-1].Timestamp, sink.records[i].Timestamp)
		}
	}
}

func TestLiveStopsOnCancel(t *testing.T) {
	g := newGenerator(t, "checkpoint", Options{})
	e := NewEngine(g, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &memorySink{}
	if err := e.Live(ctx, sink); err != nil {
		t.Errorf("Expected nil on cancel, got %v", err)
	}
	if sink.calls != 0 {
		t.Errorf("Expected no sends after cancel, got %d", sink.calls)
	}
}

func TestGeneratorSeedReproducesRun(t *testing.T) {
	ts := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	a := newGenerator(t, "fortigate", Options{})
	b := newGenerator(t, "fortigate", Options{})
	for i := 0; i < 20; i++ {
		ra, _ := a.Next(ts)
		rb, _ := b.Next(ts)
		if ra.Line != rb.Line {
			t.Fatalf("Expected identical records for one seed, got\n%s\n%s", ra.Line, rb.Line)
		}
	}
}
