package services

import (
	"github.com/n0needt0/go-goodies/log"
	"github.com/n0needt0/synthlog/internal/config"
	"github.com/n0needt0/synthlog/internal/domain"
	"github.com/n0needt0/synthlog/internal/emitter"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	METER = "otel-meter"
)

type Services struct {
	Config    *config.Config
	OtelMeter metric.Meter
	Stats     *domain.EmissionStats
	RunID     string
	Format    string
}

type HealthService interface {
	GetHealth() bool
}

func NewServices(conf *config.Config) *Services {
	return &Services{
		Config:    conf,
		OtelMeter: otel.Meter(METER),
		Stats:     &domain.EmissionStats{},
	}
}

// GetHealth reports whether the emitter is making progress. The run turns
// unhealthy once alerts.threshold sends in a row have failed and recovers
// on the next delivered record.
func (s *Services) GetHealth() bool {
	threshold := int64(s.Config.Alerts.Threshold)
	if threshold <= 0 {
		threshold = 1
	}
	return s.Stats.ConsecutiveFailures.Load() < threshold
}

// EmitterCounters creates the record counters on the service meter
func (s *Services) EmitterCounters() emitter.Counters {
	var c emitter.Counters
	emitted, err := s.OtelMeter.Int64Counter("synthlog.records.emitted", metric.WithDescription("records handed to a sink"))
	if err != nil {
		log.Error("failed to init the metrics" + err.Error())
	} else {
		c.Emitted = emitted
	}
	failed, err := s.OtelMeter.Int64Counter("synthlog.records.failed", metric.WithDescription("records a sink rejected"))
	if err != nil {
		log.Error("failed to init the metrics" + err.Error())
	} else {
		c.Failed = failed
	}
	return c
}
