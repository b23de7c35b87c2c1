package dispatch

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zen-systems/taskgate/pkg/config"
	"github.com/zen-systems/taskgate/pkg/schema"
)

// Dispatcher executes routing decisions against the selected handler. Its
// Dispatch contract never returns a Go error: downstream failures come back
// inside the RoutingResult.
type Dispatcher struct {
	cfg         *config.Store
	legacy      Handler
	alternative Handler
	registry    *Registry
	logger      *zap.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithAlternativeHandler overrides the alternative-path handler.
func WithAlternativeHandler(h Handler) DispatcherOption {
	return func(d *Dispatcher) {
		d.alternative = h
	}
}

// NewDispatcher creates a dispatcher. The alternative path defaults to the
// legacy-delegating placeholder.
func NewDispatcher(cfg *config.Store, legacy Handler, registry *Registry, logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		cfg:         cfg,
		legacy:      legacy,
		alternative: NewAlternativeHandler(legacy),
		registry:    registry,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the active-request registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch executes a decision. A fresh execution ID is generated, the
// in-flight entry is registered and removal is guaranteed regardless of
// outcome, and the wall-clock execution time is always populated, failure
// included.
func (d *Dispatcher) Dispatch(ctx context.Context, req *schema.TaskRequest, decision schema.RoutingDecision) *schema.RoutingResult {
	result := &schema.RoutingResult{
		ExecutionID: uuid.NewString(),
		Source:      decision.Source,
		Metadata:    map[string]string{},
		Decision:    &decision,
	}
	d.registry.Add(result.ExecutionID, result)
	defer d.registry.Remove(result.ExecutionID)

	fallbackCfg := d.cfg.Get().Fallback
	ctx, cancel := context.WithTimeout(ctx, time.Duration(fallbackCfg.TimeoutMs)*time.Millisecond)
	defer cancel()

	handler := d.legacy
	if decision.Source == schema.SourceAlternative {
		handler = d.alternative
		// The alternative path currently executes through the legacy
		// service, so the actual source is legacy even though the
		// decision trace keeps alternative.
		result.Source = schema.SourceLegacy
	}

	start := time.Now()
	var (
		response string
		metadata map[string]string
		err      error
	)
	for attempt := 0; ; attempt++ {
		response, metadata, err = handler.Handle(ctx, req)
		if err == nil || attempt >= fallbackCfg.RetryAttempts || !IsTransient(err) || ctx.Err() != nil {
			if attempt > 0 {
				result.Metadata["retries"] = strconv.Itoa(attempt)
			}
			break
		}
		d.logger.Debug("retrying transient dispatch failure",
			zap.String("execution_id", result.ExecutionID),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	result.ExecutionTimeMs = time.Since(start).Milliseconds()

	for k, v := range metadata {
		result.Metadata[k] = v
	}

	if err != nil {
		result.Success = false
		result.Error = err.Error()
		d.logger.Warn("dispatch failed",
			zap.String("execution_id", result.ExecutionID),
			zap.String("source", string(decision.Source)),
			zap.Int64("execution_time_ms", result.ExecutionTimeMs),
			zap.Error(err),
		)
		return result
	}

	result.Success = true
	result.Response = response
	d.logger.Debug("dispatch completed",
		zap.String("execution_id", result.ExecutionID),
		zap.String("source", string(result.Source)),
		zap.Int64("execution_time_ms", result.ExecutionTimeMs),
	)
	return result
}
