package emitter

import (
	"sort"
	"time"

	"github.com/n0needt0/go-goodies/log"
	"github.com/n0needt0/synthlog/internal/corpus"
	"github.com/n0needt0/synthlog/internal/domain"
	"github.com/n0needt0/synthlog/internal/rewrite"
	"github.com/n0needt0/synthlog/internal/values"
	"github.com/pkg/errors"
)

// Annotator amends a rewritten line. A domain.LookupMiss leaves the line as it was.
type Annotator interface {
	Annotate(line string, b *domain.Bundle) (string, error)
}

type Options struct {
	// Location the instants are rendered in, UTC when nil
	Location   *time.Location
	Annotators []Annotator
}

// Generator turns instants into records for one format. The per-run values
// are drawn once in NewGenerator and never change afterwards.
type Generator struct {
	format     *rewrite.Format
	corpus     *corpus.Corpus
	values     *values.Source
	location   *time.Location
	annotators []Annotator

	fixedAddresses map[string]string
	fixedList      []string
	numberKeys     []string
	tokenKeys      []string
	username       string
	country        string
}

func NewGenerator(format *rewrite.Format, c *corpus.Corpus, v *values.Source, opts Options) (*Generator, error) {
	need := len(format.FixedRoles) + len(format.Roles)
	if need > v.PoolSize() {
		return nil, domain.PoolExhausted{Err: errors.Errorf("format %s needs %d distinct addresses, pool has %d", format.Name, need, v.PoolSize())}
	}

	g := &Generator{
		format:         format,
		corpus:         c,
		values:         v,
		location:       opts.Location,
		annotators:     opts.Annotators,
		fixedAddresses: make(map[string]string, len(format.FixedRoles)),
	}
	if g.location == nil {
		g.location = time.UTC
	}

	fixed, err := v.Addresses(len(format.FixedRoles))
	if err != nil {
		return nil, errors.Wrap(err, "failed to draw run addresses")
	}
	for i, role := range format.FixedRoles {
		g.fixedAddresses[role] = fixed[i]
	}
	g.fixedList = fixed
	g.numberKeys = sortedKeys(format.Numbers)
	g.tokenKeys = sortedKeys(format.Tokens)

	if !format.PerRecordIdentity {
		g.username = v.Identity()
	}
	if format.FixedCountry {
		g.country = v.Country()
	}

	log.Debugf("generator %s: fixed addresses %v, user %q, country %q", format.Name, g.fixedAddresses, g.username, g.country)
	return g, nil
}

// Format returns the format name
func (g *Generator) Format() string {
	return g.format.Name
}

// Next synthesizes the record for ts
func (g *Generator) Next(ts time.Time) (domain.Record, error) {
	tmpl := g.corpus.Draw(1)[0]

	b, err := g.bundle(ts.In(g.location))
	if err != nil {
		return domain.Record{}, err
	}

	line := g.format.Rewrite(tmpl, b)
	for _, a := range g.annotators {
		annotated, err := a.Annotate(line, b)
		if err != nil {
			var miss domain.LookupMiss
			if errors.As(err, &miss) {
				log.Debugf("%s: %v", g.format.Name, miss)
				continue
			}
			return domain.Record{}, errors.Wrap(err, "failed to annotate record")
		}
		line = annotated
	}

	return domain.Record{Format: g.format.Name, Timestamp: b.Timestamp, Line: line}, nil
}

func (g *Generator) bundle(ts time.Time) (*domain.Bundle, error) {
	b := domain.NewBundle(ts)
	for role, addr := range g.fixedAddresses {
		b.Addresses[role] = addr
	}

	fresh, err := g.values.Addresses(len(g.format.Roles), g.fixedList...)
	if err != nil {
		return nil, err
	}
	for i, role := range g.format.Roles {
		b.Addresses[role] = fresh[i]
	}

	b.Username = g.username
	if g.format.PerRecordIdentity {
		b.Username = g.values.Identity()
	}
	b.Country = g.country

	for _, key := range g.numberKeys {
		b.Numbers[key] = g.values.Numeric(g.format.Numbers[key])
	}
	for _, key := range g.format.Tiers {
		b.Tiers[key] = g.values.Tier()
	}
	for _, key := range g.tokenKeys {
		b.Tokens[key] = g.values.Token(g.format.Tokens[key])
	}
	return b, nil
}

// sortedKeys fixes the draw order so a seed reproduces a run
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
