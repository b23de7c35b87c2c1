package health

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/zen-systems/taskgate/pkg/schema"
)

// Probe checks one dependency. Critical probes gate readiness: a failing
// critical probe makes the whole service unhealthy, a failing non-critical
// probe only degrades it.
type Probe struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) schema.DependencyResult
}

const probeTimeout = 5 * time.Second

// memoryUnhealthyRatio is the heap used/total ratio above which the process
// is considered memory-pressured.
const memoryUnhealthyRatio = 0.9

// HTTPProbe probes a dependency's health endpoint with a bounded GET.
func HTTPProbe(name, url string, critical bool) Probe {
	client := &http.Client{}
	return Probe{
		Name:     name,
		Critical: critical,
		Check: func(ctx context.Context) schema.DependencyResult {
			ctx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()

			start := time.Now()
			result := schema.DependencyResult{Status: schema.StatusHealthy}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				result.Status = schema.StatusUnhealthy
				result.Error = err.Error()
				return result
			}
			resp, err := client.Do(req)
			result.LatencyMs = time.Since(start).Milliseconds()
			if err != nil {
				result.Status = schema.StatusUnhealthy
				result.Error = err.Error()
				return result
			}
			defer resp.Body.Close()
			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				result.Status = schema.StatusUnhealthy
				result.Error = fmt.Sprintf("health endpoint returned status %d", resp.StatusCode)
			}
			return result
		},
	}
}

// MemoryProbe reports heap pressure. It never gates readiness; high memory
// usage only degrades the service.
func MemoryProbe() Probe {
	return Probe{
		Name:     "memory",
		Critical: false,
		Check: func(_ context.Context) schema.DependencyResult {
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)

			result := schema.DependencyResult{Status: schema.StatusHealthy}
			if stats.HeapSys == 0 {
				return result
			}
			ratio := float64(stats.HeapAlloc) / float64(stats.HeapSys)
			if ratio >= memoryUnhealthyRatio {
				result.Status = schema.StatusUnhealthy
				result.Error = fmt.Sprintf("heap usage %.0f%% exceeds %.0f%% limit", ratio*100, memoryUnhealthyRatio*100)
			}
			return result
		},
	}
}
