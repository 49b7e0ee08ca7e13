package emitter

import (
	"context"
	"math/rand"
	"time"

	"github.com/n0needt0/go-goodies/log"
	"github.com/n0needt0/synthlog/internal/domain"
	"github.com/n0needt0/synthlog/internal/schedule"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Sink receives records. Implementations add their own framing.
type Sink interface {
	Write(ctx context.Context, rec domain.Record) error
}

// DefaultDelays is the live mode jitter catalog
var DefaultDelays = []time.Duration{1 * time.Second, 2 * time.Second, 3 * time.Second, 4 * time.Second, 5 * time.Second}

// Counters are optional OTel counters updated next to EmissionStats
type Counters struct {
	Emitted metric.Int64Counter
	Failed  metric.Int64Counter
}

type Engine struct {
	Generator *Generator
	Stats     *domain.EmissionStats
	Counters  Counters
	Delays    []time.Duration
	// OnFailure is called for every failed send in live mode
	OnFailure func(err error)
	// OnSuccess is called for every delivered record in live mode
	OnSuccess func()

	clock func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	rnd   *rand.Rand
}

func NewEngine(g *Generator, stats *domain.EmissionStats) *Engine {
	if stats == nil {
		stats = &domain.EmissionStats{}
	}
	return &Engine{
		Generator: g,
		Stats:     stats,
		Delays:    DefaultDelays,
		clock:     time.Now,
		sleep:     sleepContext,
		rnd:       g.values.Rand(),
	}
}

// Batch emits exactly one record per instant of the series, in order.
// The first sink error stops the run.
func (e *Engine) Batch(ctx context.Context, series schedule.Series, sink Sink) error {
	e.Stats.MarkStarted(e.clock())
	log.Infof("batch %s: emitting %d records", e.Generator.Format(), series.Len())

	for i := 0; i < series.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := e.Generator.Next(series.At(i))
		if err != nil {
			return errors.Wrapf(err, "record %d", i)
		}
		if err := sink.Write(ctx, rec); err != nil {
			e.failed(ctx)
			return errors.Wrapf(err, "record %d", i)
		}
		e.emitted(ctx, rec)
	}

	log.Infof("batch %s: done, %d records", e.Generator.Format(), e.Stats.RecordsEmitted.Load())
	return nil
}

// Live emits wall clock records until ctx is cancelled. Send failures are
// logged and counted and the loop keeps going.
func (e *Engine) Live(ctx context.Context, sink Sink) error {
	e.Stats.MarkStarted(e.clock())
	log.Infof("live %s: emitting until stopped", e.Generator.Format())

	for ctx.Err() == nil {
		rec, err := e.Generator.Next(e.clock())
		if err != nil {
			return err
		}
		log.Debugf("%s", rec.Line)

		if err := sink.Write(ctx, rec); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			e.failed(ctx)
			log.Warnf("live %s: %v", e.Generator.Format(), err)
			if e.OnFailure != nil {
				e.OnFailure(err)
			}
		} else {
			e.emitted(ctx, rec)
			if e.OnSuccess != nil {
				e.OnSuccess()
			}
		}

		if err := e.sleep(ctx, e.delay()); err != nil {
			break
		}
	}

	log.Infof("live %s: stopped after %d records", e.Generator.Format(), e.Stats.RecordsEmitted.Load())
	return nil
}

func (e *Engine) delay() time.Duration {
	if len(e.Delays) == 0 {
		return 0
	}
	return e.Delays[e.rnd.Intn(len(e.Delays))]
}

func (e *Engine) emitted(ctx context.Context, rec domain.Record) {
	e.Stats.RecordsEmitted.Add(1)
	e.Stats.ConsecutiveFailures.Store(0)
	e.Stats.BytesEmitted.Add(int64(len(rec.Line)) + 1)
	e.Stats.Touch(e.clock())
	if e.Counters.Emitted != nil {
		e.Counters.Emitted.Add(ctx, 1, metric.WithAttributes(attribute.String("format", rec.Format)))
	}
}

func (e *Engine) failed(ctx context.Context) {
	e.Stats.RecordsFailed.Add(1)
	e.Stats.ConsecutiveFailures.Add(1)
	if e.Counters.Failed != nil {
		e.Counters.Failed.Add(ctx, 1, metric.WithAttributes(attribute.String("format", e.Generator.Format())))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
