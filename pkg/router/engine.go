package router

import (
	"fmt"
	"strings"

	"github.com/zen-systems/taskgate/pkg/config"
	"github.com/zen-systems/taskgate/pkg/flags"
	"github.com/zen-systems/taskgate/pkg/schema"
)

// Word-count cutoff separating low from medium complexity. The high cutoff
// comes from routing.complexity_threshold.
const mediumWordCutoff = 20

// Confidence scoring weights.
const (
	baseConfidence        = 0.5
	highComplexityBonus   = 0.3
	mediumComplexityBonus = 0.1
	constraintsBonus      = 0.1
	contextBonus          = 0.1
)

// ModelTiers maps complexity tiers to recommended models for the
// alternative path.
type ModelTiers struct {
	High   string
	Medium string
}

// DefaultModelTiers returns the stock tier-to-model mapping.
func DefaultModelTiers() ModelTiers {
	return ModelTiers{
		High:   "claude-opus-4-20250514",
		Medium: "claude-sonnet-4-20250514",
	}
}

// Engine scores request complexity and decides which handler path to use.
// Decide is a pure function of its inputs: no randomness, no clock, no
// shared state.
type Engine struct {
	tiers ModelTiers
}

// Option configures an Engine.
type Option func(*Engine)

// WithModelTiers overrides the recommended-model mapping.
func WithModelTiers(tiers ModelTiers) Option {
	return func(e *Engine) {
		e.tiers = tiers
	}
}

// NewEngine creates a decision engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{tiers: DefaultModelTiers()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Assess derives the complexity view of a request. Deterministic and
// side-effect-free.
func Assess(req *schema.TaskRequest, highWordCutoff int) schema.ComplexityAssessment {
	assessment := schema.ComplexityAssessment{
		WordCount:      len(strings.Fields(req.Prompt)),
		HasConstraints: req.HasConstraints(),
		HasContext:     req.HasContext(),
	}

	switch {
	case assessment.WordCount > highWordCutoff || assessment.HasConstraints || assessment.HasContext:
		assessment.Tier = schema.ComplexityHigh
	case assessment.WordCount > mediumWordCutoff:
		assessment.Tier = schema.ComplexityMedium
	default:
		assessment.Tier = schema.ComplexityLow
	}
	return assessment
}

// Decide chooses a handler path for the request. When routing is disabled it
// short-circuits to legacy without scoring complexity at all.
func (e *Engine) Decide(req *schema.TaskRequest, cfg config.Config, isEnabled func(string) bool) schema.RoutingDecision {
	fallbackEnabled := isEnabled(flags.FlagFallback)

	if !cfg.Routing.Enabled {
		return schema.RoutingDecision{
			Source:          schema.SourceLegacy,
			Confidence:      1.0,
			Reasoning:       "routing disabled",
			Complexity:      schema.ComplexityLow,
			FallbackEnabled: true,
		}
	}

	assessment := Assess(req, cfg.Routing.ComplexityThreshold)
	confidence := scoreConfidence(assessment)
	threshold := cfg.Routing.ConfidenceThreshold

	decision := schema.RoutingDecision{
		Confidence:      confidence,
		Complexity:      assessment.Tier,
		FallbackEnabled: fallbackEnabled,
	}

	switch {
	case assessment.Tier == schema.ComplexityLow:
		decision.Source = schema.SourceLegacy
		decision.Reasoning = "complexity low; alternative routing requires medium or high complexity"
	case confidence < threshold:
		decision.Source = schema.SourceLegacy
		decision.Reasoning = fmt.Sprintf("confidence %.2f below threshold %.2f", confidence, threshold)
	default:
		decision.Source = schema.SourceAlternative
		decision.RecommendedModel = e.recommendModel(assessment.Tier)
		decision.Reasoning = fmt.Sprintf("complexity %s with confidence %.2f meets threshold %.2f", assessment.Tier, confidence, threshold)
	}
	return decision
}

func (e *Engine) recommendModel(tier schema.Complexity) string {
	if tier == schema.ComplexityHigh {
		return e.tiers.High
	}
	return e.tiers.Medium
}

func scoreConfidence(a schema.ComplexityAssessment) float64 {
	confidence := baseConfidence
	switch a.Tier {
	case schema.ComplexityHigh:
		confidence += highComplexityBonus
	case schema.ComplexityMedium:
		confidence += mediumComplexityBonus
	}
	if a.HasConstraints {
		confidence += constraintsBonus
	}
	if a.HasContext {
		confidence += contextBonus
	}
	return min(max(confidence, 0), 1)
}
