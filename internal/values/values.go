package values

import (
	"bufio"
	"bytes"
	"embed"
	"math/rand"
	"net"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/n0needt0/synthlog/internal/domain"
	"github.com/pkg/errors"
)

//go:embed resources/ip_store.txt resources/country_store.txt
var resources embed.FS

// Range is an inclusive numeric range
type Range struct {
	Lo int
	Hi int
}

var (
	Port  = Range{Lo: 0, Hi: 65535}
	Score = Range{Lo: 0, Hi: 100}
)

// Tiers are the severity levels used by categorical fields
var Tiers = []string{"low", "medium", "high", "critical"}

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

type Options struct {
	// Seed for every draw, 0 seeds from the clock
	Seed      int64
	Pool      []string
	Countries []string
}

// Source produces fresh substitution values. Not safe for concurrent use.
type Source struct {
	rnd       *rand.Rand
	faker     *gofakeit.Faker
	pool      []string
	countries []string
}

// New builds a Source, falling back to the embedded pools when none are given
func New(opts Options) (*Source, error) {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rnd := rand.New(rand.NewSource(seed))

	pool := opts.Pool
	if len(pool) == 0 {
		p, err := embedded("resources/ip_store.txt")
		if err != nil {
			return nil, err
		}
		pool = p
	}
	pool = dedupe(pool)
	for _, a := range pool {
		if net.ParseIP(a).To4() == nil {
			return nil, errors.Errorf("invalid address %q in pool", a)
		}
	}

	countries := opts.Countries
	if len(countries) == 0 {
		c, err := embedded("resources/country_store.txt")
		if err != nil {
			return nil, err
		}
		countries = c
	}
	if len(countries) == 0 {
		return nil, errors.New("empty country catalog")
	}

	return &Source{
		rnd:       rnd,
		faker:     gofakeit.New(rnd.Int63()),
		pool:      pool,
		countries: countries,
	}, nil
}

// Rand exposes the generator so other run components draw from the same seed
func (s *Source) Rand() *rand.Rand {
	return s.rnd
}

// PoolSize returns the number of distinct addresses in the pool
func (s *Source) PoolSize() int {
	return len(s.pool)
}

// Addresses returns n distinct addresses, none of them in exclude
func (s *Source) Addresses(n int, exclude ...string) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	skip := make(map[string]bool, len(exclude)+n)
	for _, e := range exclude {
		skip[e] = true
	}
	avail := 0
	for _, a := range s.pool {
		if !skip[a] {
			avail++
		}
	}
	if n > avail {
		return nil, domain.PoolExhausted{Err: errors.Errorf("requested %d distinct addresses, pool has %d", n, avail)}
	}

	out := make([]string, 0, n)
	for len(out) < n {
		a := s.pool[s.rnd.Intn(len(s.pool))]
		if skip[a] {
			continue
		}
		skip[a] = true
		out = append(out, a)
	}
	return out, nil
}

// Identity returns a synthetic username made of word characters only
func (s *Source) Identity() string {
	for {
		name := strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
				return r
			}
			return -1
		}, s.faker.Username())
		if name != "" {
			return name
		}
	}
}

// Country returns a country name from the catalog
func (s *Source) Country() string {
	return s.countries[s.rnd.Intn(len(s.countries))]
}

// Numeric returns a uniform value in r
func (s *Source) Numeric(r Range) int {
	if r.Hi <= r.Lo {
		return r.Lo
	}
	return r.Lo + s.rnd.Intn(r.Hi-r.Lo+1)
}

// Tier returns a severity tier
func (s *Source) Tier() string {
	return Tiers[s.rnd.Intn(len(Tiers))]
}

// Token returns an alphanumeric string of length n
func (s *Source) Token(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = tokenAlphabet[s.rnd.Intn(len(tokenAlphabet))]
	}
	return string(b)
}

// LoadPool reads one address per line
func LoadPool(path string) ([]string, error) {
	return readLines(path)
}

// LoadCountries reads one country name per line
func LoadCountries(path string) ([]string, error) {
	return readLines(path)
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	return split(data), nil
}

func embedded(name string) ([]string, error) {
	data, err := resources.ReadFile(name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", name)
	}
	return split(data), nil
}

func split(data []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if l := strings.TrimSpace(sc.Text()); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
