package flags

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Well-known flag names.
const (
	FlagAlternativeRouting = "alternative-routing"
	FlagFallback           = "fallback"
	FlagHealthChecks       = "health-checks"
	FlagMonitoring         = "monitoring"
	FlagRequestLogging     = "request-logging"
	FlagStreaming          = "streaming"
)

// Defaults returns the seed flag values.
func Defaults() map[string]bool {
	return map[string]bool{
		FlagAlternativeRouting: false,
		FlagFallback:           true,
		FlagHealthChecks:       true,
		FlagMonitoring:         true,
		FlagRequestLogging:     false,
		FlagStreaming:          false,
	}
}

// Severity grades a flag validation issue.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Issue describes one cross-flag policy violation.
type Issue struct {
	Flag     string   `json:"flag"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// ValidationResult reports cross-flag consistency. The registry only
// reports issues; it never auto-corrects flag values.
type ValidationResult struct {
	Valid  bool    `json:"valid"`
	Issues []Issue `json:"issues,omitempty"`
}

// Summary is the diagnostic view of the registry.
type Summary struct {
	Total      int              `json:"total"`
	Enabled    int              `json:"enabled"`
	Disabled   int              `json:"disabled"`
	Modified   int              `json:"modified"`
	Flags      map[string]bool  `json:"flags"`
	Validation ValidationResult `json:"validation"`
}

// Registry holds the process-wide feature flags. Writers replace the flag
// map as a whole, so readers never observe a partial update.
type Registry struct {
	mu       sync.RWMutex
	flags    map[string]bool
	defaults map[string]bool
	logger   *zap.Logger
}

// NewRegistry seeds a registry from Defaults and applies ENABLE_<NAME>
// environment overrides.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := Defaults()
	seeded := make(map[string]bool, len(defaults))
	for name, value := range defaults {
		seeded[name] = value
		if raw := os.Getenv(envVarFor(name)); raw != "" {
			if parsed, err := strconv.ParseBool(raw); err == nil {
				seeded[name] = parsed
			}
		}
	}
	return &Registry{flags: seeded, defaults: defaults, logger: logger}
}

func envVarFor(name string) string {
	return "ENABLE_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// IsEnabled reports whether a flag is on. Unknown names are reported as
// disabled rather than rejected; callers probe flags defensively and rely
// on this never failing.
func (r *Registry) IsEnabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.flags[name]
}

// View returns a point-in-time lookup over a copied snapshot, suitable for
// handing to pure decision code.
func (r *Registry) View() func(string) bool {
	snapshot := r.Snapshot()
	return func(name string) bool { return snapshot[name] }
}

// Snapshot returns a copy of all flag values.
func (r *Registry) Snapshot() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]bool, len(r.flags))
	for name, value := range r.flags {
		out[name] = value
	}
	return out
}

// SetFlag sets a single flag, recording the change.
func (r *Registry) SetFlag(name string, enabled bool) {
	r.mu.Lock()
	next := make(map[string]bool, len(r.flags)+1)
	for k, v := range r.flags {
		next[k] = v
	}
	next[name] = enabled
	r.flags = next
	r.mu.Unlock()
	r.logger.Info("feature flag changed", zap.String("flag", name), zap.Bool("enabled", enabled))
}

// EnableFlags turns on each named flag.
func (r *Registry) EnableFlags(names ...string) {
	for _, name := range names {
		r.SetFlag(name, true)
	}
}

// DisableFlags turns off each named flag.
func (r *Registry) DisableFlags(names ...string) {
	for _, name := range names {
		r.SetFlag(name, false)
	}
}

// ResetToDefaults restores the seed values, dropping runtime changes and
// environment overrides alike.
func (r *Registry) ResetToDefaults() {
	r.mu.Lock()
	next := make(map[string]bool, len(r.defaults))
	for name, value := range r.defaults {
		next[name] = value
	}
	r.flags = next
	r.mu.Unlock()
	r.logger.Info("feature flags reset to defaults")
}

// ValidateConfiguration enforces cross-flag policy. Issues are reported,
// never fixed: alternative routing without fallback is a disruption warning,
// and disabled health checks are a critical-grade issue.
func (r *Registry) ValidateConfiguration() ValidationResult {
	snapshot := r.Snapshot()
	var issues []Issue

	if snapshot[FlagAlternativeRouting] && !snapshot[FlagFallback] {
		issues = append(issues, Issue{
			Flag:     FlagAlternativeRouting,
			Severity: SeverityWarning,
			Message:  "alternative-routing is enabled without fallback; handler failures will not degrade gracefully",
		})
	}
	if !snapshot[FlagHealthChecks] {
		issues = append(issues, Issue{
			Flag:     FlagHealthChecks,
			Severity: SeverityCritical,
			Message:  "health-checks must always be enabled",
		})
	}

	return ValidationResult{Valid: len(issues) == 0, Issues: issues}
}

// Summary reports registry counts plus the validation result.
func (r *Registry) Summary() Summary {
	snapshot := r.Snapshot()
	summary := Summary{
		Total:      len(snapshot),
		Flags:      snapshot,
		Validation: r.ValidateConfiguration(),
	}
	for name, enabled := range snapshot {
		if enabled {
			summary.Enabled++
		} else {
			summary.Disabled++
		}
		if def, known := r.defaults[name]; !known || def != enabled {
			summary.Modified++
		}
	}
	return summary
}

// Names returns all known flag names, sorted for stable output.
func (r *Registry) Names() []string {
	snapshot := r.Snapshot()
	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
