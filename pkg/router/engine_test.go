package router

import (
	"fmt"
	"strings"
	"testing"

	"github.com/zen-systems/taskgate/pkg/config"
	"github.com/zen-systems/taskgate/pkg/schema"
)

func wordPrompt(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("word%d", i)
	}
	return strings.Join(words, " ")
}

func enabledCfg(confidenceThreshold float64) config.Config {
	cfg := config.Default()
	cfg.Routing.Enabled = true
	cfg.Routing.ConfidenceThreshold = confidenceThreshold
	return cfg
}

func allFlagsOn(string) bool { return true }

func TestDecideDisabledRoutingShortCircuit(t *testing.T) {
	engine := NewEngine()
	cfg := config.Default()
	if cfg.Routing.Enabled {
		t.Fatalf("expected routing disabled by default")
	}

	requests := []*schema.TaskRequest{
		{Prompt: "hi", SessionID: "s1"},
		{Prompt: wordPrompt(200), SessionID: "s1", Constraints: &schema.Constraints{MaxToolCalls: 5}},
	}
	for _, req := range requests {
		decision := engine.Decide(req, cfg, allFlagsOn)
		if decision.Source != schema.SourceLegacy {
			t.Fatalf("expected legacy, got %s", decision.Source)
		}
		if decision.Confidence != 1.0 {
			t.Fatalf("expected confidence 1.0, got %.2f", decision.Confidence)
		}
		if decision.Complexity != schema.ComplexityLow {
			t.Fatalf("expected low complexity, got %s", decision.Complexity)
		}
		if decision.Reasoning != "routing disabled" {
			t.Fatalf("unexpected reasoning: %q", decision.Reasoning)
		}
		if !decision.FallbackEnabled {
			t.Fatalf("expected fallback enabled on short-circuit")
		}
	}
}

func TestDecideHighComplexityMeetsThreshold(t *testing.T) {
	engine := NewEngine()
	req := &schema.TaskRequest{Prompt: wordPrompt(60), SessionID: "s2"}

	decision := engine.Decide(req, enabledCfg(0.8), allFlagsOn)
	if decision.Complexity != schema.ComplexityHigh {
		t.Fatalf("expected high complexity, got %s", decision.Complexity)
	}
	if decision.Confidence != 0.8 {
		t.Fatalf("expected confidence 0.8, got %.2f", decision.Confidence)
	}
	if decision.Source != schema.SourceAlternative {
		t.Fatalf("expected alternative, got %s", decision.Source)
	}
	if decision.RecommendedModel != DefaultModelTiers().High {
		t.Fatalf("expected high-tier model, got %q", decision.RecommendedModel)
	}
}

func TestDecideConstraintsRaiseConfidence(t *testing.T) {
	engine := NewEngine()
	req := &schema.TaskRequest{
		Prompt:      wordPrompt(25),
		SessionID:   "s3",
		Constraints: &schema.Constraints{MaxToolCalls: 3},
	}

	decision := engine.Decide(req, enabledCfg(0.9), allFlagsOn)
	if decision.Complexity != schema.ComplexityHigh {
		t.Fatalf("expected high complexity from constraints, got %s", decision.Complexity)
	}
	if decision.Confidence != 0.9 {
		t.Fatalf("expected confidence 0.9, got %.2f", decision.Confidence)
	}
	if decision.Source != schema.SourceAlternative {
		t.Fatalf("expected alternative, got %s", decision.Source)
	}
}

func TestDecideLowComplexityNeverAlternative(t *testing.T) {
	engine := NewEngine()
	req := &schema.TaskRequest{Prompt: "hi there", SessionID: "s1"}

	decision := engine.Decide(req, enabledCfg(0), allFlagsOn)
	if decision.Source != schema.SourceLegacy {
		t.Fatalf("expected legacy for low complexity, got %s", decision.Source)
	}
	if decision.RecommendedModel != "" {
		t.Fatalf("expected no recommended model for legacy, got %q", decision.RecommendedModel)
	}
}

func TestDecideMediumBelowThreshold(t *testing.T) {
	engine := NewEngine()
	req := &schema.TaskRequest{Prompt: wordPrompt(25), SessionID: "s1"}

	decision := engine.Decide(req, enabledCfg(0.9), allFlagsOn)
	if decision.Complexity != schema.ComplexityMedium {
		t.Fatalf("expected medium complexity, got %s", decision.Complexity)
	}
	if decision.Confidence != 0.6 {
		t.Fatalf("expected confidence 0.6, got %.2f", decision.Confidence)
	}
	if decision.Source != schema.SourceLegacy {
		t.Fatalf("expected legacy below threshold, got %s", decision.Source)
	}
	if !strings.Contains(decision.Reasoning, "below threshold") {
		t.Fatalf("reasoning should name the failed gate: %q", decision.Reasoning)
	}
	if decision.RecommendedModel != "" {
		t.Fatalf("expected no recommended model when legacy chosen")
	}
}

func TestDecideMediumTierModel(t *testing.T) {
	engine := NewEngine()
	req := &schema.TaskRequest{Prompt: wordPrompt(25), SessionID: "s1"}

	decision := engine.Decide(req, enabledCfg(0.6), allFlagsOn)
	if decision.Source != schema.SourceAlternative {
		t.Fatalf("expected alternative, got %s", decision.Source)
	}
	if decision.RecommendedModel != DefaultModelTiers().Medium {
		t.Fatalf("expected medium-tier model, got %q", decision.RecommendedModel)
	}
}

func TestDecideDeterminism(t *testing.T) {
	engine := NewEngine()
	req := &schema.TaskRequest{
		Prompt:    wordPrompt(30),
		SessionID: "s1",
		Context:   &schema.RequestContext{Metadata: map[string]any{"k": "v"}},
	}
	cfg := enabledCfg(0.75)

	first := engine.Decide(req, cfg, allFlagsOn)
	for i := 0; i < 50; i++ {
		if got := engine.Decide(req, cfg, allFlagsOn); got != first {
			t.Fatalf("decision changed on call %d: %+v vs %+v", i, got, first)
		}
	}
}

func TestDecideThresholdMonotonicity(t *testing.T) {
	engine := NewEngine()
	req := &schema.TaskRequest{Prompt: wordPrompt(60), SessionID: "s1"}

	sawLegacy := false
	for threshold := 0.0; threshold <= 1.0; threshold += 0.05 {
		decision := engine.Decide(req, enabledCfg(threshold), allFlagsOn)
		if decision.Source == schema.SourceLegacy {
			sawLegacy = true
		} else if sawLegacy {
			t.Fatalf("decision flipped back to alternative at threshold %.2f", threshold)
		}
	}
	if !sawLegacy {
		t.Fatalf("expected the decision to become legacy at high thresholds")
	}
}

func TestDecideConfidenceBounds(t *testing.T) {
	engine := NewEngine()
	requests := []*schema.TaskRequest{
		{Prompt: "hi", SessionID: "s"},
		{Prompt: wordPrompt(25), SessionID: "s"},
		{Prompt: wordPrompt(60), SessionID: "s"},
		{
			Prompt:      wordPrompt(500),
			SessionID:   "s",
			Constraints: &schema.Constraints{MaxToolCalls: 9, MaxExecutionTimeMs: 1000, AllowedTools: []string{"search"}},
			Context: &schema.RequestContext{
				History:  []schema.Turn{{Role: "user", Content: "earlier"}},
				Metadata: map[string]any{"k": "v"},
			},
		},
	}
	for _, req := range requests {
		decision := engine.Decide(req, enabledCfg(0.5), allFlagsOn)
		if decision.Confidence < 0 || decision.Confidence > 1 {
			t.Fatalf("confidence out of range: %.2f", decision.Confidence)
		}
	}
}

func TestDecideFallbackFlagRecorded(t *testing.T) {
	engine := NewEngine()
	req := &schema.TaskRequest{Prompt: wordPrompt(60), SessionID: "s"}

	decision := engine.Decide(req, enabledCfg(0.5), func(string) bool { return false })
	if decision.FallbackEnabled {
		t.Fatalf("expected fallback disabled when flag is off")
	}
}

func TestAssessTiers(t *testing.T) {
	cases := []struct {
		name string
		req  *schema.TaskRequest
		want schema.Complexity
	}{
		{"short prompt", &schema.TaskRequest{Prompt: wordPrompt(5)}, schema.ComplexityLow},
		{"boundary twenty", &schema.TaskRequest{Prompt: wordPrompt(20)}, schema.ComplexityLow},
		{"medium prompt", &schema.TaskRequest{Prompt: wordPrompt(21)}, schema.ComplexityMedium},
		{"boundary fifty", &schema.TaskRequest{Prompt: wordPrompt(50)}, schema.ComplexityMedium},
		{"long prompt", &schema.TaskRequest{Prompt: wordPrompt(51)}, schema.ComplexityHigh},
		{
			"constraints force high",
			&schema.TaskRequest{Prompt: "short", Constraints: &schema.Constraints{MaxExecutionTimeMs: 500}},
			schema.ComplexityHigh,
		},
		{
			"context forces high",
			&schema.TaskRequest{Prompt: "short", Context: &schema.RequestContext{History: []schema.Turn{{Role: "user", Content: "hi"}}}},
			schema.ComplexityHigh,
		},
		{
			"preferences alone are not context",
			&schema.TaskRequest{Prompt: "short", Context: &schema.RequestContext{Preferences: &schema.Preferences{PrioritizeSpeed: true}}},
			schema.ComplexityLow,
		},
	}
	for _, tc := range cases {
		assessment := Assess(tc.req, 50)
		if assessment.Tier != tc.want {
			t.Fatalf("%s: expected %s, got %s (words=%d)", tc.name, tc.want, assessment.Tier, assessment.WordCount)
		}
	}
}

func TestAssessUsesConfiguredCutoff(t *testing.T) {
	req := &schema.TaskRequest{Prompt: wordPrompt(40)}
	if got := Assess(req, 50).Tier; got != schema.ComplexityMedium {
		t.Fatalf("expected medium with default cutoff, got %s", got)
	}
	if got := Assess(req, 30).Tier; got != schema.ComplexityHigh {
		t.Fatalf("expected high with lowered cutoff, got %s", got)
	}
}
