package schema

import (
	"fmt"
	"time"
)

// Source identifies a handler execution path.
type Source string

const (
	SourceLegacy      Source = "legacy"
	SourceAlternative Source = "alternative"
)

// Complexity is the coarse tier used to gate alternative routing.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Status grades an aggregate or per-dependency health result.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Turn is a single entry in a conversation history.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Preferences captures caller hints about the desired response.
type Preferences struct {
	ResponseLength    string `json:"response_length,omitempty"`
	TechnicalLevel    string `json:"technical_level,omitempty"`
	IncludeReferences bool   `json:"include_references,omitempty"`
	PrioritizeSpeed   bool   `json:"prioritize_speed,omitempty"`
}

// RequestContext carries optional conversational context.
type RequestContext struct {
	History     []Turn         `json:"conversation_history,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Preferences *Preferences   `json:"preferences,omitempty"`
}

// Constraints restricts how a task may be executed.
type Constraints struct {
	MaxExecutionTimeMs int      `json:"max_execution_time_ms,omitempty"`
	MaxToolCalls       int      `json:"max_tool_calls,omitempty"`
	AllowedTools       []string `json:"allowed_tools,omitempty"`
	RequiredSources    []string `json:"required_sources,omitempty"`
}

// TaskRequest is a unit of work submitted for routing. It is constructed by
// the caller and treated as immutable through the routing pipeline.
type TaskRequest struct {
	Prompt      string          `json:"prompt"`
	SessionID   string          `json:"session_id"`
	UserID      string          `json:"user_id,omitempty"`
	Context     *RequestContext `json:"context,omitempty"`
	Constraints *Constraints    `json:"constraints,omitempty"`
}

// ValidationError reports malformed caller input, before any routing happens.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Message)
}

// Validate rejects requests that must never reach the decision engine.
func (r *TaskRequest) Validate() error {
	if r == nil {
		return &ValidationError{Field: "request", Message: "is required"}
	}
	if r.Prompt == "" {
		return &ValidationError{Field: "prompt", Message: "must not be empty"}
	}
	if r.SessionID == "" {
		return &ValidationError{Field: "session_id", Message: "must not be empty"}
	}
	return nil
}

// HasConstraints reports whether any execution constraint is set.
func (r *TaskRequest) HasConstraints() bool {
	c := r.Constraints
	if c == nil {
		return false
	}
	return c.MaxExecutionTimeMs > 0 || c.MaxToolCalls > 0 || len(c.AllowedTools) > 0
}

// HasContext reports whether conversational context accompanies the request.
func (r *TaskRequest) HasContext() bool {
	ctx := r.Context
	if ctx == nil {
		return false
	}
	return len(ctx.History) > 0 || len(ctx.Metadata) > 0
}

// ComplexityAssessment is the derived, never-persisted complexity view of a
// request. It is a pure function of the TaskRequest.
type ComplexityAssessment struct {
	Tier           Complexity `json:"estimated_complexity"`
	WordCount      int        `json:"word_count"`
	HasConstraints bool       `json:"has_constraints"`
	HasContext     bool       `json:"has_context"`
}

// RoutingDecision is the decision engine's verdict for one request.
type RoutingDecision struct {
	Source           Source     `json:"source"`
	Confidence       float64    `json:"confidence"`
	Reasoning        string     `json:"reasoning"`
	Complexity       Complexity `json:"estimated_complexity"`
	RecommendedModel string     `json:"recommended_model,omitempty"`
	FallbackEnabled  bool       `json:"fallback_enabled"`
}

// RoutingResult is the outcome of dispatching a decision. Source is the
// handler actually used, which may differ from the decision when the
// alternative path delegates.
type RoutingResult struct {
	Success         bool              `json:"success"`
	Response        string            `json:"response,omitempty"`
	ExecutionID     string            `json:"execution_id"`
	ExecutionTimeMs int64             `json:"execution_time_ms"`
	Source          Source            `json:"source"`
	Error           string            `json:"error,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Decision        *RoutingDecision  `json:"decision,omitempty"`
}

// DependencyResult records a single health probe outcome.
type DependencyResult struct {
	Status    Status `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// Metrics summarizes request-level counters for health reporting.
type Metrics struct {
	ActiveRequests        int     `json:"active_requests"`
	TotalRequests         int64   `json:"total_requests"`
	AverageResponseTimeMs float64 `json:"average_response_time_ms"`
	ErrorRate             float64 `json:"error_rate"`
}

// HealthStatus is a point-in-time aggregate health snapshot.
type HealthStatus struct {
	Status       Status                      `json:"status"`
	Dependencies map[string]DependencyResult `json:"dependencies,omitempty"`
	Metrics      Metrics                     `json:"metrics"`
	CheckedAt    time.Time                   `json:"checked_at"`
}
