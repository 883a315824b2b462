package input

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"minigolf/engine/internal/logging"
)

// Clock exposes the current time for rate limiting decisions.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (c ClockFunc) Now() time.Time { return c() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// GateConfig controls the throughput gate applied to client commands.
type GateConfig struct {
	MinInterval time.Duration
}

// DefaultGateConfig allows holding an aim key at a typical key-repeat rate.
var DefaultGateConfig = GateConfig{MinInterval: 10 * time.Millisecond}

// DropReason enumerates why a command was rejected by the gate.
type DropReason string

const (
	DropReasonNone        DropReason = ""
	DropReasonSequence    DropReason = "sequence"
	DropReasonRateLimited DropReason = "rate_limit"
)

// Decision summarises whether a command passed the gate.
type Decision struct {
	Accepted bool
	Reason   DropReason
}

// DropCounters aggregates per-reason drop counts.
type DropCounters struct {
	Sequence    uint64 `json:"sequence"`
	RateLimited uint64 `json:"rate_limited"`
}

type clientState struct {
	lastSequence uint64
	limiter      *rate.Limiter
}

// Gate drops out-of-order and flooding commands per client.
type Gate struct {
	mu      sync.Mutex
	cfg     GateConfig
	clock   Clock
	logger  *logging.Logger
	clients map[string]*clientState
	drops   map[string]DropCounters
}

// Option customises gate construction.
type Option func(*Gate)

// WithClock overrides the clock used for rate limiting.
func WithClock(clock Clock) Option {
	return func(g *Gate) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// NewGate constructs a gate. A non-positive MinInterval disables rate limiting.
func NewGate(cfg GateConfig, logger *logging.Logger, opts ...Option) *Gate {
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	if logger == nil {
		logger = logging.L()
	}
	gate := &Gate{
		cfg:     cfg,
		clock:   systemClock{},
		logger:  logger,
		clients: make(map[string]*clientState),
		drops:   make(map[string]DropCounters),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(gate)
		}
	}
	return gate
}

// Evaluate decides whether the command from clientID may be applied. Commands without
// a sequence number skip the ordering check.
func (g *Gate) Evaluate(clientID string, cmd Command) Decision {
	if g == nil || clientID == "" {
		return Decision{Accepted: true}
	}
	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()
	state := g.clients[clientID]
	if state == nil {
		state = &clientState{}
		if g.cfg.MinInterval > 0 {
			state.limiter = rate.NewLimiter(rate.Every(g.cfg.MinInterval), 1)
		}
		g.clients[clientID] = state
	}

	reason := DropReasonNone
	switch {
	case cmd.Sequence != 0 && cmd.Sequence <= state.lastSequence:
		reason = DropReasonSequence
	case state.limiter != nil && !state.limiter.AllowN(now, 1):
		reason = DropReasonRateLimited
	}
	if reason != DropReasonNone {
		//1.- Count the drop so operators can spot misbehaving clients.
		counters := g.drops[clientID]
		if reason == DropReasonSequence {
			counters.Sequence++
		} else {
			counters.RateLimited++
		}
		g.drops[clientID] = counters
		g.logger.Debug("command dropped", logging.String("client_id", clientID), logging.String("reason", string(reason)))
		return Decision{Reason: reason}
	}

	if cmd.Sequence != 0 {
		state.lastSequence = cmd.Sequence
	}
	return Decision{Accepted: true}
}

// Forget clears state for a disconnected client.
func (g *Gate) Forget(clientID string) {
	if g == nil {
		return
	}
	g.mu.Lock()
	delete(g.clients, clientID)
	delete(g.drops, clientID)
	g.mu.Unlock()
}

// Metrics copies the drop counters.
func (g *Gate) Metrics() map[string]DropCounters {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.drops) == 0 {
		return nil
	}
	clone := make(map[string]DropCounters, len(g.drops))
	for id, counters := range g.drops {
		clone[id] = counters
	}
	return clone
}
