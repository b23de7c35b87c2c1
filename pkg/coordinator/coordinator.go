package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/taskgate/pkg/config"
	"github.com/zen-systems/taskgate/pkg/dispatch"
	"github.com/zen-systems/taskgate/pkg/flags"
	"github.com/zen-systems/taskgate/pkg/router"
	"github.com/zen-systems/taskgate/pkg/schema"
)

// State is a coordinator lifecycle phase.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateInitialized   State = "initialized"
	StateShuttingDown  State = "shutting-down"
	StateStopped       State = "stopped"
)

// LifecycleListener observes state transitions. Listeners run synchronously
// in registration order, so delivery ordering is explicit.
type LifecycleListener interface {
	OnStateChange(from, to State)
}

// LifecycleFunc adapts a function to the LifecycleListener interface.
type LifecycleFunc func(from, to State)

func (f LifecycleFunc) OnStateChange(from, to State) { f(from, to) }

const defaultDrainTimeout = 10 * time.Second

// Coordinator owns the decision engine and handler dispatch, and tracks
// request statistics for health reporting.
type Coordinator struct {
	cfg        *config.Store
	flags      *flags.Registry
	engine     *router.Engine
	dispatcher *dispatch.Dispatcher
	registry   *dispatch.Registry
	logger     *zap.Logger

	drainTimeout time.Duration

	mu        sync.Mutex
	state     State
	listeners []LifecycleListener

	statsMu        sync.Mutex
	total          int64
	errors         int64
	decisions      map[schema.Source]int64
	totalLatencyMs int64
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithLegacyHandler overrides the legacy handler, mostly for tests.
func WithLegacyHandler(h dispatch.Handler) Option {
	return func(c *Coordinator) {
		c.dispatcher = dispatch.NewDispatcher(c.cfg, h, c.registry, c.logger)
	}
}

// WithDrainTimeout bounds how long Shutdown waits for in-flight requests.
func WithDrainTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.drainTimeout = d
	}
}

// New creates a coordinator in the uninitialized state.
func New(cfg *config.Store, reg *flags.Registry, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:          cfg,
		flags:        reg,
		engine:       router.NewEngine(),
		registry:     dispatch.NewRegistry(),
		logger:       zap.NewNop(),
		drainTimeout: defaultDrainTimeout,
		state:        StateUninitialized,
		decisions:    make(map[schema.Source]int64),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dispatcher == nil {
		c.dispatcher = dispatch.NewDispatcher(c.cfg, dispatch.NewLegacyHandler(c.cfg), c.registry, c.logger)
	}
	return c
}

// Subscribe registers a lifecycle listener.
func (c *Coordinator) Subscribe(l LifecycleListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Initialized reports whether the coordinator accepts requests.
func (c *Coordinator) Initialized() bool {
	return c.State() == StateInitialized
}

func (c *Coordinator) setState(to State) {
	c.mu.Lock()
	from := c.state
	c.state = to
	listeners := make([]LifecycleListener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	c.logger.Info("coordinator state change", zap.String("from", string(from)), zap.String("to", string(to)))
	for _, l := range listeners {
		l.OnStateChange(from, to)
	}
}

// Initialize validates configuration and flags and moves the coordinator to
// the initialized state. Invalid configuration is fatal; flag validation
// issues are logged and the coordinator proceeds.
func (c *Coordinator) Initialize() error {
	if state := c.State(); state != StateUninitialized {
		return fmt.Errorf("coordinator cannot initialize from state %q", state)
	}
	c.setState(StateInitializing)

	if err := c.cfg.Validate(); err != nil {
		c.setState(StateStopped)
		return err
	}
	if validation := c.flags.ValidateConfiguration(); !validation.Valid {
		for _, issue := range validation.Issues {
			c.logger.Warn("feature flag validation issue",
				zap.String("flag", issue.Flag),
				zap.String("severity", string(issue.Severity)),
				zap.String("message", issue.Message),
			)
		}
	}

	c.setState(StateInitialized)
	return nil
}

// RouteRequest decides and dispatches a single task request. Dispatch
// failures never surface as Go errors; they come back inside the result.
// Only malformed input and lifecycle violations return an error.
func (c *Coordinator) RouteRequest(ctx context.Context, req *schema.TaskRequest) (*schema.RoutingResult, error) {
	if state := c.State(); state != StateInitialized {
		return nil, fmt.Errorf("coordinator not accepting requests (state %q)", state)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	decision := c.engine.Decide(req, c.cfg.Get(), c.flags.View())
	result := c.dispatcher.Dispatch(ctx, req, decision)
	c.record(decision.Source, result)
	return result, nil
}

func (c *Coordinator) record(decided schema.Source, result *schema.RoutingResult) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.total++
	c.decisions[decided]++
	c.totalLatencyMs += result.ExecutionTimeMs
	if !result.Success {
		c.errors++
	}
}

// Shutdown drains in-flight requests best-effort and stops the coordinator.
// No new requests are accepted once draining begins.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	switch c.State() {
	case StateStopped:
		return nil
	case StateUninitialized:
		c.setState(StateStopped)
		return nil
	}
	c.setState(StateShuttingDown)

	deadline := time.Now().Add(c.drainTimeout)
	for c.registry.Active() > 0 && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			c.setState(StateStopped)
			return ctx.Err()
		case <-time.After(25 * time.Millisecond):
		}
	}
	if remaining := c.registry.Active(); remaining > 0 {
		c.logger.Warn("shutdown drain timed out", zap.Int("in_flight", remaining))
	}
	c.setState(StateStopped)
	return nil
}

// Stats is the routing distribution exposed at /stats.
type Stats struct {
	TotalRequests         int64   `json:"total_requests"`
	ActiveRequests        int     `json:"active_requests"`
	LegacyDecisions       int64   `json:"legacy_decisions"`
	AlternativeDecisions  int64   `json:"alternative_decisions"`
	ErrorCount            int64   `json:"error_count"`
	ErrorRate             float64 `json:"error_rate"`
	AverageResponseTimeMs float64 `json:"average_response_time_ms"`
}

// Stats returns a snapshot of the routing counters.
func (c *Coordinator) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	stats := Stats{
		TotalRequests:        c.total,
		ActiveRequests:       c.registry.Active(),
		LegacyDecisions:      c.decisions[schema.SourceLegacy],
		AlternativeDecisions: c.decisions[schema.SourceAlternative],
		ErrorCount:           c.errors,
	}
	if c.total > 0 {
		stats.ErrorRate = float64(c.errors) / float64(c.total)
		stats.AverageResponseTimeMs = float64(c.totalLatencyMs) / float64(c.total)
	}
	return stats
}

// Metrics adapts the stats snapshot to the health aggregator's view.
func (c *Coordinator) Metrics() schema.Metrics {
	stats := c.Stats()
	return schema.Metrics{
		ActiveRequests:        stats.ActiveRequests,
		TotalRequests:         stats.TotalRequests,
		AverageResponseTimeMs: stats.AverageResponseTimeMs,
		ErrorRate:             stats.ErrorRate,
	}
}
