// Package resilience guards the model backend with a circuit breaker.
//
// A [Breaker] counts consecutive failures. Once MaxFailures is reached it
// opens and rejects requests with [ErrOpen] for the cooldown, then lets a few
// probe requests through. Successful probes close it; a failed probe opens it
// again. Nothing is ever retried.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Allow] while the breaker rejects requests.
var ErrOpen = errors.New("resilience: circuit open")

// ErrIgnored reports a request that ended without telling anything about the
// backend, such as a caller cancellation. Passed to done, it frees a probe
// slot and leaves the failure count and state untouched.
var ErrIgnored = errors.New("resilience: outcome ignored")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every request.
	StateClosed State = iota
	// StateOpen rejects requests until the cooldown has elapsed.
	StateOpen
	// StateHalfOpen lets a limited number of probe requests through.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes a [Breaker]. Zero fields take the defaults below.
type Config struct {
	// Name labels log lines.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default 5.
	MaxFailures int

	// Cooldown is how long the breaker stays open. Default 30s.
	Cooldown time.Duration

	// Probes is the number of successful half-open requests needed to close
	// again. Default 1.
	Probes int
}

// Breaker is a three-state circuit breaker. Safe for concurrent use.
type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	probes      int
	now         func() time.Time

	mu           sync.Mutex
	state        State
	failures     int
	openedAt     time.Time
	probesOut    int
	probesPassed int
}

// New returns a closed breaker.
func New(cfg Config) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 1
	}
	return &Breaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		probes:      cfg.Probes,
		now:         time.Now,
	}
}

// Allow asks to start a request. On success the caller must report the
// request's outcome exactly once through done; a nil error counts as a
// success and [ErrIgnored] counts as neither. While open, Allow returns
// [ErrOpen] and a nil done.
func (b *Breaker) Allow() (done func(error), err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.cooldown {
			return nil, ErrOpen
		}
		b.state = StateHalfOpen
		b.probesOut, b.probesPassed = 0, 0
		slog.Info("circuit breaker half-open", "name", b.name)
	}

	probe := b.state == StateHalfOpen
	if probe {
		if b.probesOut >= b.probes {
			return nil, ErrOpen
		}
		b.probesOut++
	}

	var once sync.Once
	return func(err error) {
		once.Do(func() { b.record(probe, err) })
	}, nil
}

func (b *Breaker) record(probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if errors.Is(err, ErrIgnored) {
		if probe && b.state == StateHalfOpen && b.probesOut > 0 {
			b.probesOut--
		}
		return
	}
	if err != nil {
		b.failures++
		if probe || b.failures >= b.maxFailures {
			if b.state != StateOpen {
				slog.Warn("circuit breaker opened", "name", b.name, "consecutive_failures", b.failures, "err", err)
			}
			b.state = StateOpen
			b.openedAt = b.now()
		}
		return
	}

	b.failures = 0
	if probe && b.state == StateHalfOpen {
		b.probesPassed++
		if b.probesPassed >= b.probes {
			b.state = StateClosed
			slog.Info("circuit breaker closed", "name", b.name)
		}
	}
}

// State returns the current state. An open breaker whose cooldown has elapsed
// reports [StateHalfOpen]; the transition happens on the next Allow.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}
