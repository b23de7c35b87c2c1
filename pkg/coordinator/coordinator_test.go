package coordinator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/zen-systems/taskgate/pkg/config"
	"github.com/zen-systems/taskgate/pkg/dispatch"
	"github.com/zen-systems/taskgate/pkg/flags"
	"github.com/zen-systems/taskgate/pkg/schema"

	"go.uber.org/zap"
)

func newTestCoordinator(t *testing.T, opts ...Option) *Coordinator {
	t.Helper()
	for name := range flags.Defaults() {
		t.Setenv("ENABLE_"+strings.ToUpper(strings.ReplaceAll(name, "-", "_")), "")
	}
	store := config.NewStore(config.Default())
	registry := flags.NewRegistry(zap.NewNop())
	opts = append([]Option{WithLegacyHandler(dispatch.NewMockHandler())}, opts...)
	return New(store, registry, opts...)
}

func TestLifecycleTransitions(t *testing.T) {
	c := newTestCoordinator(t)

	var transitions []string
	c.Subscribe(LifecycleFunc(func(from, to State) {
		transitions = append(transitions, string(from)+"->"+string(to))
	}))

	if c.State() != StateUninitialized {
		t.Fatalf("expected uninitialized, got %s", c.State())
	}
	if err := c.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if c.State() != StateInitialized {
		t.Fatalf("expected initialized, got %s", c.State())
	}
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if c.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", c.State())
	}

	want := []string{
		"uninitialized->initializing",
		"initializing->initialized",
		"initialized->shutting-down",
		"shutting-down->stopped",
	}
	if len(transitions) != len(want) {
		t.Fatalf("unexpected transitions: %v", transitions)
	}
	for i, w := range want {
		if transitions[i] != w {
			t.Fatalf("transition %d: got %s, want %s", i, transitions[i], w)
		}
	}
}

func TestInitializeInvalidConfigIsFatal(t *testing.T) {
	store := config.NewStore(config.Default())
	store.Update(func(cfg *config.Config) {
		cfg.Fallback.TimeoutMs = 0
	})
	c := New(store, flags.NewRegistry(zap.NewNop()), WithLegacyHandler(dispatch.NewMockHandler()))

	err := c.Initialize()
	if err == nil {
		t.Fatalf("expected configuration error")
	}
	var cfgErr *config.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *config.ConfigurationError, got %T", err)
	}
	if c.State() != StateStopped {
		t.Fatalf("expected stopped after fatal init, got %s", c.State())
	}
}

func TestInitializeFlagIssuesNonFatal(t *testing.T) {
	c := newTestCoordinator(t)
	c.flags.SetFlag(flags.FlagHealthChecks, false)

	if err := c.Initialize(); err != nil {
		t.Fatalf("flag issues must not be fatal: %v", err)
	}
	if c.State() != StateInitialized {
		t.Fatalf("expected initialized, got %s", c.State())
	}
}

func TestRouteRequestBeforeInitialize(t *testing.T) {
	c := newTestCoordinator(t)
	_, err := c.RouteRequest(context.Background(), &schema.TaskRequest{Prompt: "hi", SessionID: "s"})
	if err == nil {
		t.Fatalf("expected lifecycle error")
	}
}

func TestRouteRequestValidation(t *testing.T) {
	c := newTestCoordinator(t)
	if err := c.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	_, err := c.RouteRequest(context.Background(), &schema.TaskRequest{SessionID: "s"})
	var validationErr *schema.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected *schema.ValidationError, got %v", err)
	}
}

func TestRouteRequestRecordsStats(t *testing.T) {
	c := newTestCoordinator(t)
	if err := c.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	for i := 0; i < 3; i++ {
		result, err := c.RouteRequest(context.Background(), &schema.TaskRequest{Prompt: "hi", SessionID: "s"})
		if err != nil {
			t.Fatalf("route: %v", err)
		}
		if !result.Success {
			t.Fatalf("expected success, got %q", result.Error)
		}
	}

	stats := c.Stats()
	if stats.TotalRequests != 3 {
		t.Fatalf("expected 3 total requests, got %d", stats.TotalRequests)
	}
	if stats.LegacyDecisions != 3 || stats.AlternativeDecisions != 0 {
		t.Fatalf("unexpected decision distribution: %+v", stats)
	}
	if stats.ErrorRate != 0 {
		t.Fatalf("expected zero error rate, got %.2f", stats.ErrorRate)
	}
	if stats.ActiveRequests != 0 {
		t.Fatalf("expected no active requests, got %d", stats.ActiveRequests)
	}
}

func TestRouteRequestAlternativeDecisionCounted(t *testing.T) {
	c := newTestCoordinator(t)
	c.cfg.Update(func(cfg *config.Config) {
		cfg.Routing.Enabled = true
		cfg.Routing.ConfidenceThreshold = 0.8
	})
	if err := c.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	longPrompt := strings.Repeat("word ", 60)
	result, err := c.RouteRequest(context.Background(), &schema.TaskRequest{Prompt: longPrompt, SessionID: "s"})
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if !result.Success {
		t.Fatalf("alternative path must complete via legacy delegation: %q", result.Error)
	}
	if result.Decision.Source != schema.SourceAlternative {
		t.Fatalf("expected alternative decision, got %s", result.Decision.Source)
	}
	if result.Source != schema.SourceLegacy {
		t.Fatalf("expected legacy-backed execution, got %s", result.Source)
	}
	if got := c.Stats().AlternativeDecisions; got != 1 {
		t.Fatalf("expected 1 alternative decision, got %d", got)
	}
}

func TestRouteRequestDispatchFailureInResult(t *testing.T) {
	mock := dispatch.NewMockHandler()
	mock.Err = errors.New("downstream exploded")
	c := newTestCoordinator(t, WithLegacyHandler(mock))
	if err := c.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	result, err := c.RouteRequest(context.Background(), &schema.TaskRequest{Prompt: "hi", SessionID: "s"})
	if err != nil {
		t.Fatalf("dispatch failures must not surface as errors: %v", err)
	}
	if result.Success {
		t.Fatalf("expected failed result")
	}
	if result.Error != "downstream exploded" {
		t.Fatalf("unexpected error: %q", result.Error)
	}
	if got := c.Stats().ErrorCount; got != 1 {
		t.Fatalf("expected 1 error counted, got %d", got)
	}
}

func TestShutdownRejectsNewRequests(t *testing.T) {
	c := newTestCoordinator(t, WithDrainTimeout(100*time.Millisecond))
	if err := c.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if _, err := c.RouteRequest(context.Background(), &schema.TaskRequest{Prompt: "hi", SessionID: "s"}); err == nil {
		t.Fatalf("expected requests to be rejected after shutdown")
	}
}

func TestShutdownIdempotent(t *testing.T) {
	c := newTestCoordinator(t)
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown from uninitialized: %v", err)
	}
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
	if c.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", c.State())
	}
}
