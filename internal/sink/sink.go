package sink

import (
	"context"

	"github.com/n0needt0/synthlog/internal/domain"
	"github.com/pkg/errors"
)

// Sink receives rewritten records and frames them for its transport
type Sink interface {
	Write(ctx context.Context, rec domain.Record) error
	Close() error
}

// Framing selects how file sinks lay out records
type Framing string

const (
	Raw     Framing = "raw"
	NDJSON  Framing = "ndjson"
	Parquet Framing = "parquet"
)

// ParseFraming validates a configured output name
func ParseFraming(v string) (Framing, error) {
	switch f := Framing(v); f {
	case Raw, NDJSON, Parquet:
		return f, nil
	case "":
		return Raw, nil
	}
	return "", errors.Errorf("unknown output %q, expected raw, ndjson or parquet", v)
}

// Tee writes every record to all sinks. The first error is returned after
// every sink has seen the record.
type Tee struct {
	sinks []Sink
}

func NewTee(sinks ...Sink) *Tee {
	return &Tee{sinks: sinks}
}

func (t *Tee) Write(ctx context.Context, rec domain.Record) error {
	var first error
	for _, s := range t.sinks {
		if err := s.Write(ctx, rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (t *Tee) Close() error {
	var first error
	for _, s := range t.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
