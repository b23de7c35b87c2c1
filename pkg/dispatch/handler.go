package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zen-systems/taskgate/pkg/config"
	"github.com/zen-systems/taskgate/pkg/schema"
)

// Handler executes a task request against one downstream path.
type Handler interface {
	// Handle runs the request and returns the response text plus
	// dispatch metadata.
	Handle(ctx context.Context, req *schema.TaskRequest) (string, map[string]string, error)

	// Name returns the handler's identifier.
	Name() string
}

// LegacyHandler invokes the pre-existing task execution service over HTTP.
type LegacyHandler struct {
	cfg    *config.Store
	client *http.Client
}

// NewLegacyHandler creates a handler bound to the configured legacy service.
// The endpoint and timeout are read from the store on every call so runtime
// reconfiguration takes effect without a restart.
func NewLegacyHandler(cfg *config.Store) *LegacyHandler {
	return &LegacyHandler{cfg: cfg, client: &http.Client{}}
}

// Name returns the handler identifier.
func (h *LegacyHandler) Name() string { return "legacy" }

// legacyResponse is the subset of the legacy service's reply we consume.
type legacyResponse struct {
	Response string `json:"response"`
}

// Handle posts the request to the legacy service and returns its response
// verbatim. Non-2xx statuses, timeouts, and network errors all surface as a
// *DispatchError.
func (h *LegacyHandler) Handle(ctx context.Context, req *schema.TaskRequest) (string, map[string]string, error) {
	svc := h.cfg.Get().Services
	endpoint := strings.TrimRight(svc.LegacyHandlerURL, "/") + "/api/tasks"

	ctx, cancel := context.WithTimeout(ctx, time.Duration(svc.RequestTimeoutMs)*time.Millisecond)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return "", nil, &DispatchError{Err: fmt.Errorf("failed to encode request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", nil, &DispatchError{Err: fmt.Errorf("failed to build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return "", nil, &DispatchError{Temporary: IsTransient(err), Err: fmt.Errorf("legacy handler call failed: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, &DispatchError{Status: resp.StatusCode, Err: fmt.Errorf("failed to read legacy handler response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", nil, &DispatchError{
			Status:    resp.StatusCode,
			Temporary: resp.StatusCode >= 500,
			Err:       fmt.Errorf("legacy handler returned status %d", resp.StatusCode),
		}
	}

	metadata := map[string]string{
		"handler":  h.Name(),
		"endpoint": endpoint,
	}

	var parsed legacyResponse
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Response != "" {
		return parsed.Response, metadata, nil
	}
	return string(raw), metadata, nil
}

// AlternativeHandler is the reserved multi-agent execution path. It is not
// implemented yet: every call delegates to the legacy handler and discloses
// the delegation in metadata. This is intentional graceful degradation, not
// a bug; the Handler interface is the seam where a real implementation will
// plug in.
type AlternativeHandler struct {
	legacy Handler
}

// NewAlternativeHandler wraps the legacy handler as the delegation target.
func NewAlternativeHandler(legacy Handler) *AlternativeHandler {
	return &AlternativeHandler{legacy: legacy}
}

// Name returns the handler identifier.
func (h *AlternativeHandler) Name() string { return "alternative" }

// Handle delegates to the legacy handler, marking the result as
// legacy-backed.
func (h *AlternativeHandler) Handle(ctx context.Context, req *schema.TaskRequest) (string, map[string]string, error) {
	response, metadata, err := h.legacy.Handle(ctx, req)
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadata["handler"] = "legacy-orchestrator"
	metadata["alternative_path"] = "reserved"
	return response, metadata, err
}
