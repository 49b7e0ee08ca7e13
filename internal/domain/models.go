package domain

import (
	"sync/atomic"
	"time"
)

// Address roles used by the rewrite rules
const (
	RoleDevice = "device"
	RoleSource = "source"
	RoleSrc    = "src"
	RoleDst    = "dst"
	RoleNAT    = "nat"
)

// Bundle is the set of substitution values for one record
type Bundle struct {
	Timestamp time.Time
	Addresses map[string]string
	Username  string
	Country   string
	Numbers   map[string]int
	Tiers     map[string]string
	Tokens    map[string]string
}

// NewBundle returns an empty bundle for the given instant
func NewBundle(ts time.Time) *Bundle {
	return &Bundle{
		Timestamp: ts,
		Addresses: make(map[string]string),
		Numbers:   make(map[string]int),
		Tiers:     make(map[string]string),
		Tokens:    make(map[string]string),
	}
}

// Record is a fully rewritten log line
type Record struct {
	Format    string
	Timestamp time.Time
	Line      string
}

// EmissionStats are the counters of a generator run.
// Updated by the emitter goroutine and read by the API.
type EmissionStats struct {
	RecordsEmitted atomic.Int64
	RecordsFailed  atomic.Int64
	BytesEmitted   atomic.Int64
	lastActivity   atomic.Int64
	started        atomic.Int64
	// failed sends since the last delivered record
	ConsecutiveFailures atomic.Int64
}

// MarkStarted records the run start time
func (s *EmissionStats) MarkStarted(t time.Time) {
	s.started.Store(t.UnixNano())
}

// Touch records the time of the last emission
func (s *EmissionStats) Touch(t time.Time) {
	s.lastActivity.Store(t.UnixNano())
}

// LastActivity returns the time of the last emission, zero if none
func (s *EmissionStats) LastActivity() time.Time {
	n := s.lastActivity.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Uptime returns the time elapsed since MarkStarted
func (s *EmissionStats) Uptime(now time.Time) time.Duration {
	n := s.started.Load()
	if n == 0 {
		return 0
	}
	return now.Sub(time.Unix(0, n))
}
