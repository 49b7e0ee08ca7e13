package rewrite

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/n0needt0/synthlog/internal/domain"
	"github.com/n0needt0/synthlog/internal/values"
	"github.com/pkg/errors"
)

// Stage groups rules. Stages always run in this order.
type Stage int

const (
	StageAddress Stage = iota
	StageTimestamp
	StageIdentity
	StageCategorical
)

func (s Stage) String() string {
	switch s {
	case StageAddress:
		return "address"
	case StageTimestamp:
		return "timestamp"
	case StageIdentity:
		return "identity"
	case StageCategorical:
		return "categorical"
	}
	return "stage(" + strconv.Itoa(int(s)) + ")"
}

// Rule replaces capture group 1 of every Pattern match with Value.
// A rule whose pattern is absent leaves the line alone unless Missing is set.
type Rule struct {
	Name    string
	Stage   Stage
	Pattern *regexp.Regexp
	Value   func(old string, b *domain.Bundle) string
	Missing func(line string, b *domain.Bundle) string
}

// Apply runs the rule over one line
func (r Rule) Apply(line string, b *domain.Bundle) string {
	idx := r.Pattern.FindAllStringSubmatchIndex(line, -1)
	if len(idx) == 0 {
		if r.Missing != nil {
			return r.Missing(line, b)
		}
		return line
	}

	var sb strings.Builder
	sb.Grow(len(line) + 16)
	last := 0
	for _, m := range idx {
		if len(m) < 4 || m[2] < 0 {
			continue
		}
		sb.WriteString(line[last:m[2]])
		sb.WriteString(r.Value(line[m[2]:m[3]], b))
		last = m[3]
	}
	sb.WriteString(line[last:])
	return sb.String()
}

// Format describes how one log family is rewritten and which values
// a record of that family needs.
type Format struct {
	Name  string
	Rules []Rule

	// FixedRoles are address roles drawn once per run
	FixedRoles []string
	// Roles are drawn for every record, distinct from each other and from FixedRoles
	Roles []string
	// PerRecordIdentity draws a username per record instead of per run
	PerRecordIdentity bool
	// FixedCountry draws one country per run
	FixedCountry bool

	Numbers map[string]values.Range
	Tiers   []string
	Tokens  map[string]int

	// Locate is the address role to geolocate, empty disables annotation
	Locate string

	DefaultCount int
}

// Rewrite applies every rule stage by stage, in declaration order inside a stage
func (f *Format) Rewrite(template string, b *domain.Bundle) string {
	out := template
	for _, r := range f.Rules {
		out = r.Apply(out, b)
	}
	return out
}

// Compile orders the rules by stage keeping declaration order within a stage
func Compile(f Format) *Format {
	rules := make([]Rule, len(f.Rules))
	copy(rules, f.Rules)
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Stage < rules[j].Stage
	})
	f.Rules = rules
	return &f
}

var (
	registryMu sync.RWMutex
	registry   = map[string]*Format{}
)

// Register makes a format available by name. Registering a name twice panics.
func Register(f Format) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[f.Name]; dup {
		panic("rewrite: Register called twice for format " + f.Name)
	}
	registry[f.Name] = Compile(f)
}

// Lookup returns a registered format
func Lookup(name string) (*Format, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	if !ok {
		return nil, errors.Errorf("unknown format %q", name)
	}
	return f, nil
}

// Names lists the registered formats in order
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

const (
	ipExpr     = `\d{1,3}(?:\.\d{1,3}){3}`
	syslogExpr = `^(?:<\d+>)?[^\w\s]*([A-Z][a-z]{2}\s+\d{1,2} \d{2}:\d{2}:\d{2})`

	syslogLayout   = "Jan 02 15:04:05"
	isoZuluLayout  = "2006-01-02T15:04:05Z"
	dateTimeLayout = "2006-01-02 15:04:05"
)

// sub builds a rule around a single capture group expression
func sub(name string, stage Stage, expr string, value func(old string, b *domain.Bundle) string) Rule {
	return Rule{Name: name, Stage: stage, Pattern: regexp.MustCompile(expr), Value: value}
}

func address(role string) func(string, *domain.Bundle) string {
	return func(old string, b *domain.Bundle) string {
		if v, ok := b.Addresses[role]; ok && v != "" {
			return v
		}
		return old
	}
}

func username(old string, b *domain.Bundle) string {
	if b.Username == "" {
		return old
	}
	return b.Username
}

func number(key string) func(string, *domain.Bundle) string {
	return func(old string, b *domain.Bundle) string {
		if v, ok := b.Numbers[key]; ok {
			return strconv.Itoa(v)
		}
		return old
	}
}

func tier(key string) func(string, *domain.Bundle) string {
	return func(old string, b *domain.Bundle) string {
		if v, ok := b.Tiers[key]; ok && v != "" {
			return v
		}
		return old
	}
}

func token(key string) func(string, *domain.Bundle) string {
	return func(old string, b *domain.Bundle) string {
		if v, ok := b.Tokens[key]; ok && v != "" {
			return v
		}
		return old
	}
}

// local renders the instant in its own zone
func local(layout string) func(string, *domain.Bundle) string {
	return func(_ string, b *domain.Bundle) string {
		return b.Timestamp.Format(layout)
	}
}

// utc renders the instant converted to UTC
func utc(layout string) func(string, *domain.Bundle) string {
	return func(_ string, b *domain.Bundle) string {
		return b.Timestamp.UTC().Format(layout)
	}
}

func epochSeconds(_ string, b *domain.Bundle) string {
	return strconv.FormatInt(b.Timestamp.Unix(), 10)
}

// epoch keeps the template precision: seconds, milliseconds from 13 digits,
// microseconds from 16 and nanoseconds from 19
func epoch(old string, b *domain.Bundle) string {
	switch n := len(old); {
	case n >= 19:
		return strconv.FormatInt(b.Timestamp.UnixNano(), 10)
	case n >= 16:
		return strconv.FormatInt(b.Timestamp.UnixMicro(), 10)
	case n >= 13:
		return strconv.FormatInt(b.Timestamp.UnixMilli(), 10)
	}
	return strconv.FormatInt(b.Timestamp.Unix(), 10)
}

func syslogDate() Rule {
	return sub("syslog-date", StageTimestamp, syslogExpr, local(syslogLayout))
}
