package health

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/zen-systems/taskgate/pkg/config"
	"github.com/zen-systems/taskgate/pkg/flags"
	"github.com/zen-systems/taskgate/pkg/schema"
)

// CoordinatorView is what the aggregator needs to know about the
// coordinator: whether it finished initializing and its request counters.
type CoordinatorView interface {
	Initialized() bool
	Metrics() schema.Metrics
}

// Cache keys for the snapshot views.
const (
	viewFull  = "full"
	viewReady = "ready"
)

const defaultCacheTTL = 30 * time.Second

// Aggregator combines dependency probes, configuration validity, and flag
// policy into a single graded health snapshot. Snapshots are cached with a
// freshness window and recomputed on expiry.
type Aggregator struct {
	cfg    *config.Store
	flags  *flags.Registry
	coord  CoordinatorView
	probes []Probe
	cache  *expirable.LRU[string, schema.HealthStatus]
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*aggregatorSettings)

type aggregatorSettings struct {
	ttl       time.Duration
	probes    []Probe
	probesSet bool
}

// WithCacheTTL overrides the snapshot freshness window.
func WithCacheTTL(ttl time.Duration) AggregatorOption {
	return func(s *aggregatorSettings) {
		s.ttl = ttl
	}
}

// WithProbes replaces the default probe set. Passing none disables
// dependency probing entirely.
func WithProbes(probes ...Probe) AggregatorOption {
	return func(s *aggregatorSettings) {
		s.probes = probes
		s.probesSet = true
	}
}

// NewAggregator creates an aggregator with the default probe set: the
// cache/store (critical), the legacy handler, and local memory pressure.
func NewAggregator(cfg *config.Store, reg *flags.Registry, coord CoordinatorView, opts ...AggregatorOption) *Aggregator {
	settings := &aggregatorSettings{ttl: defaultCacheTTL}
	for _, opt := range opts {
		opt(settings)
	}
	if !settings.probesSet {
		settings.probes = defaultProbes(cfg.Get())
	}
	return &Aggregator{
		cfg:    cfg,
		flags:  reg,
		coord:  coord,
		probes: settings.probes,
		cache:  expirable.NewLRU[string, schema.HealthStatus](4, nil, settings.ttl),
	}
}

func defaultProbes(cfg config.Config) []Probe {
	var probes []Probe
	if cfg.Services.CacheURL != "" {
		probes = append(probes, HTTPProbe("cache-store", strings.TrimRight(cfg.Services.CacheURL, "/")+"/health", true))
	}
	probes = append(probes,
		HTTPProbe("legacy-handler", strings.TrimRight(cfg.Services.LegacyHandlerURL, "/")+"/health", false),
		MemoryProbe(),
	)
	return probes
}

// Check returns the full aggregate snapshot, serving a cached one while it
// is still fresh.
func (a *Aggregator) Check(ctx context.Context) schema.HealthStatus {
	if cached, ok := a.cache.Get(viewFull); ok {
		return cached
	}
	status := a.compute(ctx, false)
	a.cache.Add(viewFull, status)
	return status
}

// Ready returns the readiness view: critical dependencies only, for
// orchestrator readiness gating.
func (a *Aggregator) Ready(ctx context.Context) schema.HealthStatus {
	if cached, ok := a.cache.Get(viewReady); ok {
		return cached
	}
	status := a.compute(ctx, true)
	a.cache.Add(viewReady, status)
	return status
}

// Quick is the constant liveness view. No dependency is probed; it only says
// the process is serving requests.
func (a *Aggregator) Quick() schema.HealthStatus {
	return schema.HealthStatus{
		Status:    schema.StatusHealthy,
		CheckedAt: time.Now().UTC(),
	}
}

// ClearCache drops cached snapshots, forcing recomputation on the next call.
func (a *Aggregator) ClearCache() {
	a.cache.Purge()
}

// compute runs the probes and grades the result. Any critical failure makes
// the snapshot unhealthy; any warning without a critical failure degrades it.
func (a *Aggregator) compute(ctx context.Context, criticalOnly bool) schema.HealthStatus {
	status := schema.HealthStatus{
		Status:       schema.StatusHealthy,
		Dependencies: make(map[string]schema.DependencyResult),
		CheckedAt:    time.Now().UTC(),
	}

	criticalFailure := false
	warning := false

	if a.coord != nil {
		if !a.coord.Initialized() {
			status.Dependencies["coordinator"] = schema.DependencyResult{
				Status: schema.StatusUnhealthy,
				Error:  "coordinator not initialized",
			}
			criticalFailure = true
		}
		status.Metrics = a.coord.Metrics()
	}

	if violations := config.Validate(a.cfg.Get()); len(violations) > 0 {
		status.Dependencies["configuration"] = schema.DependencyResult{
			Status: schema.StatusUnhealthy,
			Error:  strings.Join(violations, "; "),
		}
		criticalFailure = true
	}

	for _, probe := range a.probes {
		if criticalOnly && !probe.Critical {
			continue
		}
		result := probe.Check(ctx)
		status.Dependencies[probe.Name] = result
		if result.Status == schema.StatusUnhealthy {
			if probe.Critical {
				criticalFailure = true
			} else {
				warning = true
			}
		}
	}

	if !criticalOnly && a.flags != nil {
		if validation := a.flags.ValidateConfiguration(); !validation.Valid {
			var messages []string
			for _, issue := range validation.Issues {
				messages = append(messages, issue.Message)
			}
			status.Dependencies["feature-flags"] = schema.DependencyResult{
				Status: schema.StatusUnhealthy,
				Error:  strings.Join(messages, "; "),
			}
			warning = true
		}
	}

	switch {
	case criticalFailure:
		status.Status = schema.StatusUnhealthy
	case warning:
		status.Status = schema.StatusDegraded
	}
	return status
}
