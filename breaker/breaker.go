// Package breaker isolates a flapping dependency behind a three-state
// circuit: closed passes calls through, open rejects them outright, and
// half-open admits a bounded number of probes while the dependency
// proves itself.
package breaker

import (
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrOpen is returned without running the call while the circuit
// rejects traffic. Callers map it to their own unavailable error.
var ErrOpen = errors.New("circuit breaker is open")

// State is the breaker's gate position.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Config bounds the breaker's transitions.
type Config struct {
	// FailureThreshold is the consecutive-failure count that opens a
	// closed breaker.
	FailureThreshold int
	// SuccessThreshold is the consecutive probe successes that close a
	// half-open breaker.
	SuccessThreshold int
	// OpenTimeout is how long an open breaker rejects before probing.
	OpenTimeout time.Duration
	// HalfOpenMaxRequests caps concurrent probes while half-open.
	HalfOpenMaxRequests int
}

// DefaultConfig matches the stock production thresholds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		OpenTimeout:         60 * time.Second,
		HalfOpenMaxRequests: 3,
	}
}

// Metrics is a point-in-time snapshot of the breaker.
type Metrics struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	Failures  int    `json:"failure_count"`
	Successes int    `json:"success_count"`
}

// Breaker guards calls to one dependency. All state lives in a single
// mutex-guarded record: the transition logic is not atomic field by
// field.
type Breaker struct {
	name string
	cfg  Config

	mu       sync.Mutex
	state    State
	failures int
	// successes counts consecutive half-open probe successes.
	successes int
	// inFlight counts admitted probes that have not completed yet.
	inFlight int
	openedAt time.Time
	// now is stubbed by tests.
	now func() time.Time
}

// New returns a closed breaker. Non-positive config fields fall back to
// the defaults.
func New(name string, cfg Config) *Breaker {
	var def = DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = def.HalfOpenMaxRequests
	}

	log.WithFields(log.Fields{
		"name":              name,
		"failure_threshold": cfg.FailureThreshold,
		"success_threshold": cfg.SuccessThreshold,
		"open_timeout":      cfg.OpenTimeout,
	}).Info("initialized circuit breaker")

	return &Breaker{name: name, cfg: cfg, now: time.Now}
}

// State reports the gate position, first promoting an expired open
// state to half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

func (b *Breaker) stateLocked() State {
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cfg.OpenTimeout {
		log.WithField("name", b.name).Info("circuit breaker transitioning to half-open")
		b.state = HalfOpen
		b.resetLocked()
	}
	return b.state
}

// Call runs fn when the gate admits it. It returns ErrOpen without
// running fn while the breaker rejects traffic, and otherwise fn's own
// error. Success and failure are classified purely by fn's outcome.
func (b *Breaker) Call(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	var err = fn()
	b.settle(err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.stateLocked() {
	case Open:
		log.WithField("name", b.name).Warn("circuit breaker open, rejecting request")
		return ErrOpen
	case HalfOpen:
		if b.inFlight >= b.cfg.HalfOpenMaxRequests {
			log.WithField("name", b.name).Warn("circuit breaker half-open probe limit reached")
			return ErrOpen
		}
		b.inFlight++
		return nil
	default:
		return nil
	}
}

func (b *Breaker) settle(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.inFlight > 0 {
		b.inFlight--
	}

	if err == nil {
		b.onSuccessLocked()
	} else {
		b.onFailureLocked()
	}
}

func (b *Breaker) onSuccessLocked() {
	switch b.state {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			log.WithField("name", b.name).Info("circuit breaker closing after successful recovery")
			b.state = Closed
			b.resetLocked()
		}
	case Open:
		// A probe admitted before a racing reopen settles here.
		b.resetLocked()
	}
}

func (b *Breaker) onFailureLocked() {
	b.failures++

	switch b.state {
	case Closed:
		if b.failures >= b.cfg.FailureThreshold {
			log.WithFields(log.Fields{
				"name":     b.name,
				"failures": b.failures,
			}).Warn("circuit breaker opening")
			b.state = Open
			b.openedAt = b.now()
		}
	case HalfOpen:
		log.WithField("name", b.name).Warn("circuit breaker reopening after failed probe")
		b.state = Open
		b.openedAt = b.now()
		b.resetLocked()
	}
}

func (b *Breaker) resetLocked() {
	b.failures = 0
	b.successes = 0
	b.inFlight = 0
}

// Metrics snapshots the breaker for status endpoints.
func (b *Breaker) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Metrics{
		Name:      b.name,
		State:     b.stateLocked().String(),
		Failures:  b.failures,
		Successes: b.successes,
	}
}
