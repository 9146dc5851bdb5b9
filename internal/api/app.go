// Package api exposes the engine to an out-of-process enforcement hook
// over HTTP: operation evaluation, profile inspection, reload, and a
// diagnostic event stream.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/armord/armord/internal/config"
	"github.com/armord/armord/internal/events"
	"github.com/armord/armord/internal/metrics"
	"github.com/armord/armord/internal/policy"
	"github.com/armord/armord/pkg/types"
	"github.com/go-chi/chi/v5"
)

type App struct {
	cfg     *config.Config
	manager *policy.Manager
	engine  *policy.Engine
	broker  *events.Broker
	metrics *metrics.Collector
}

func NewApp(cfg *config.Config, manager *policy.Manager, engine *policy.Engine, broker *events.Broker, collector *metrics.Collector) *App {
	return &App{cfg: cfg, manager: manager, engine: engine, broker: broker, metrics: collector}
}

func (a *App) Router() http.Handler {
	r := chi.NewRouter()

	r.Get(a.cfg.Health.Path, func(w http.ResponseWriter, r *http.Request) { writeText(w, http.StatusOK, "ok\n") })
	if a.cfg.Metrics.Enabled {
		r.Method(http.MethodGet, a.cfg.Metrics.Path, a.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/evaluate", a.evaluate)
		r.Get("/profiles", a.listProfiles)
		r.Get("/profiles/{name}", a.getProfile)
		r.Post("/reload", a.reload)
		r.Get("/events", a.streamEvents)
	})

	return r
}

// evaluateRequest is one enforcement-hook call: the intercepted operation
// plus the identity of the process that performed it. The profile is
// resolved from the binary path unless named explicitly.
type evaluateRequest struct {
	// Binary is the process image path; empty means the image could not be
	// resolved in the visible filesystem view.
	Binary string `json:"binary"`
	// Profile optionally names the profile directly, bypassing attachment.
	Profile   string          `json:"profile,omitempty"`
	Operation types.Operation `json:"operation"`
}

type evaluateResponse struct {
	Profile  string         `json:"profile,omitempty"`
	Confined bool           `json:"confined"`
	Decision types.Decision `json:"decision"`
}

func (a *App) evaluate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.cfg.Server.MaxBodyBytes)
	var req evaluateRequest
	if !decodeJSON(w, r, &req, "invalid evaluate request") {
		return
	}

	// Capture one snapshot for the whole call so an in-flight reload can
	// never produce a torn view between attachment and evaluation.
	snap := a.manager.Snapshot()

	var prof *policy.Profile
	if req.Profile != "" {
		p, ok := snap.ByName(req.Profile)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "profile not found"})
			return
		}
		prof = p
	} else if p, ok := snap.Attachment(req.Binary); ok {
		prof = p
	}

	resp := evaluateResponse{Confined: prof != nil}
	if prof != nil {
		resp.Profile = prof.Name
	} else {
		ev := events.New(events.EventUnconfinedExecution)
		ev.Path = req.Binary
		ev.Detail = "no profile attaches; process is unconfined"
		a.broker.Publish(ev)
	}
	resp.Decision = a.engine.Evaluate(snap, prof, req.Operation)
	writeJSON(w, http.StatusOK, resp)
}

type profileSummary struct {
	Name         string   `json:"name"`
	Attach       string   `json:"attach,omitempty"`
	Flags        []string `json:"flags,omitempty"`
	FileRules    int      `json:"file_rules"`
	NetworkRules int      `json:"network_rules"`
	Includes     []string `json:"includes,omitempty"`
}

func summarize(p *policy.Profile) profileSummary {
	s := profileSummary{
		Name:         p.Name,
		Attach:       p.Attach,
		FileRules:    len(p.FileRules),
		NetworkRules: len(p.NetworkRules),
		Includes:     p.Includes,
	}
	for _, f := range p.Flags {
		s.Flags = append(s.Flags, string(f))
	}
	return s
}

func (a *App) listProfiles(w http.ResponseWriter, r *http.Request) {
	snap := a.manager.Snapshot()
	out := make([]profileSummary, 0, snap.Len())
	for _, p := range snap.Profiles() {
		out = append(out, summarize(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) getProfile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	p, ok := a.manager.Snapshot().ByName(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "profile not found"})
		return
	}
	writeJSON(w, http.StatusOK, summarize(p))
}

func (a *App) reload(w http.ResponseWriter, r *http.Request) {
	if err := a.manager.Reload(); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profiles": a.manager.Snapshot().Len()})
}

func (a *App) streamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "stream unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := a.broker.Subscribe(200)
	defer a.broker.Unsubscribe(ch)

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	enc := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			_, _ = w.Write([]byte("data: "))
			if err := enc.Encode(ev); err != nil {
				return
			}
			_, _ = w.Write([]byte("\n"))
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, s string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(s))
}
