package domain

// CorpusUnavailable wraps errors for a missing or empty template source
type CorpusUnavailable struct {
	Format string
	Err    error
}

func (c CorpusUnavailable) Error() string {
	return "corpus " + c.Format + " unavailable: " + c.Err.Error()
}

func (c CorpusUnavailable) Unwrap() error {
	return c.Err
}

// PoolExhausted is returned when more distinct values are requested than a pool holds
type PoolExhausted struct {
	Err error
}

func (p PoolExhausted) Error() string {
	return p.Err.Error()
}

func (p PoolExhausted) Unwrap() error {
	return p.Err
}

// InvalidRange wraps malformed scheduling windows
type InvalidRange struct {
	Err error
}

func (r InvalidRange) Error() string {
	return r.Err.Error()
}

func (r InvalidRange) Unwrap() error {
	return r.Err
}

// LookupMiss is returned when geolocation has no data for an address.
// Callers recover by passing the record through.
type LookupMiss struct {
	Address string
	Err     error
}

func (l LookupMiss) Error() string {
	return "no location for " + l.Address + ": " + l.Err.Error()
}

func (l LookupMiss) Unwrap() error {
	return l.Err
}

// SendFailure wraps forwarding transport errors
type SendFailure struct {
	Sink string
	Err  error
}

func (s SendFailure) Error() string {
	return s.Sink + " send failed: " + s.Err.Error()
}

func (s SendFailure) Unwrap() error {
	return s.Err
}
