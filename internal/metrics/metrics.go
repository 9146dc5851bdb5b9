package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector provides a minimal Prometheus-compatible metrics exporter for
// the engine. All methods are safe on a nil receiver so the library can run
// without metrics wired up.
type Collector struct {
	startedAt time.Time

	evaluationsTotal atomic.Uint64
	decisions        sync.Map // "kind/effect" -> *atomic.Uint64

	compileErrors  atomic.Uint64
	reloadsTotal   atomic.Uint64
	activeProfiles atomic.Int64
	lastReloadUnix atomic.Int64
}

func New() *Collector {
	return &Collector{startedAt: time.Now().UTC()}
}

func (c *Collector) IncEvaluation(kind, effect string) {
	if c == nil {
		return
	}
	c.evaluationsTotal.Add(1)
	key := kind + "/" + effect
	ptr, _ := c.decisions.LoadOrStore(key, &atomic.Uint64{})
	ptr.(*atomic.Uint64).Add(1)
}

func (c *Collector) IncCompileError() {
	if c == nil {
		return
	}
	c.compileErrors.Add(1)
}

func (c *Collector) SetActiveProfiles(n int) {
	if c == nil {
		return
	}
	c.activeProfiles.Store(int64(n))
	c.reloadsTotal.Add(1)
	c.lastReloadUnix.Store(time.Now().Unix())
}

func (c *Collector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		fmt.Fprint(w, "# HELP armord_up Whether the armord engine is running.\n")
		fmt.Fprint(w, "# TYPE armord_up gauge\n")
		fmt.Fprint(w, "armord_up 1\n")

		fmt.Fprint(w, "# HELP armord_evaluations_total Total operations evaluated.\n")
		fmt.Fprint(w, "# TYPE armord_evaluations_total counter\n")
		fmt.Fprintf(w, "armord_evaluations_total %d\n", c.evaluationsTotal.Load())

		keys := snapshotKeys(&c.decisions)
		if len(keys) > 0 {
			fmt.Fprint(w, "# HELP armord_decisions_total Decisions by operation kind and effect.\n")
			fmt.Fprint(w, "# TYPE armord_decisions_total counter\n")
			for _, k := range keys {
				kind, effect, _ := strings.Cut(k, "/")
				ptr, _ := c.decisions.Load(k)
				n := uint64(0)
				if ptr != nil {
					n = ptr.(*atomic.Uint64).Load()
				}
				fmt.Fprintf(w, "armord_decisions_total{kind=%q,effect=%q} %d\n",
					escapeLabelValue(kind), escapeLabelValue(effect), n)
			}
		}

		fmt.Fprint(w, "# HELP armord_compile_errors_total Profiles rejected at compile time.\n")
		fmt.Fprint(w, "# TYPE armord_compile_errors_total counter\n")
		fmt.Fprintf(w, "armord_compile_errors_total %d\n", c.compileErrors.Load())

		fmt.Fprint(w, "# HELP armord_profiles_active Compiled profiles in the active snapshot.\n")
		fmt.Fprint(w, "# TYPE armord_profiles_active gauge\n")
		fmt.Fprintf(w, "armord_profiles_active %d\n", c.activeProfiles.Load())

		fmt.Fprint(w, "# HELP armord_reloads_total Snapshot publishes since start.\n")
		fmt.Fprint(w, "# TYPE armord_reloads_total counter\n")
		fmt.Fprintf(w, "armord_reloads_total %d\n", c.reloadsTotal.Load())

		if ts := c.lastReloadUnix.Load(); ts > 0 {
			fmt.Fprint(w, "# HELP armord_last_reload_timestamp_seconds Unix time of the last snapshot publish.\n")
			fmt.Fprint(w, "# TYPE armord_last_reload_timestamp_seconds gauge\n")
			fmt.Fprintf(w, "armord_last_reload_timestamp_seconds %d\n", ts)
		}
	})
}

func snapshotKeys(m *sync.Map) []string {
	var out []string
	m.Range(func(k, _ any) bool {
		if s, ok := k.(string); ok {
			out = append(out, s)
		}
		return true
	})
	sort.Strings(out)
	return out
}

func escapeLabelValue(v string) string {
	// Prometheus text format label escaping for " and \ and newlines.
	v = strings.ReplaceAll(v, "\\", "\\\\")
	v = strings.ReplaceAll(v, "\n", "\\n")
	v = strings.ReplaceAll(v, "\"", "\\\"")
	return v
}
