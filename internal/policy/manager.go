package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/armord/armord/internal/events"
	"github.com/armord/armord/internal/metrics"
	"github.com/fsnotify/fsnotify"
)

// Manager owns the active ProfileSet. Reloads compile an entirely new
// snapshot and publish it with a single atomic pointer swap; in-flight
// evaluations keep whichever snapshot they captured at entry.
type Manager struct {
	profileDir      string
	abstractionsDir string
	broker          *events.Broker
	metrics         *metrics.Collector

	mu  sync.Mutex // serializes reloads
	cur atomic.Pointer[ProfileSet]
}

func NewManager(profileDir, abstractionsDir string, broker *events.Broker, collector *metrics.Collector) *Manager {
	if abstractionsDir == "" {
		abstractionsDir = profileDir
	}
	return &Manager{
		profileDir:      profileDir,
		abstractionsDir: abstractionsDir,
		broker:          broker,
		metrics:         collector,
	}
}

// Snapshot returns the active profile set. Before the first successful
// Reload it returns an empty (fully default-deny) set.
func (m *Manager) Snapshot() *ProfileSet {
	if s := m.cur.Load(); s != nil {
		return s
	}
	s, _ := NewProfileSet(nil)
	return s
}

// Reload recompiles every profile file and publishes a new snapshot. A
// profile that fails to compile is reported and skipped without affecting
// the others; if a previous snapshot carried a profile of the same name,
// that compiled version is retained. Reload returns an error only when the
// directory cannot be scanned or the surviving profiles conflict, in which
// case the previous snapshot stays active.
func (m *Manager) Reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	files, err := listProfileFiles(m.profileDir)
	if err != nil {
		return err
	}
	catalog := NewDirCatalog(m.abstractionsDir)
	prev := m.cur.Load()

	var compiled []*Profile
	names := map[string]bool{}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			m.reportLoadError(file, "", err)
			continue
		}
		sources, err := ParseProfiles(string(data))
		if err != nil {
			m.reportLoadError(file, "", err)
			continue
		}
		for _, ps := range sources {
			if names[ps.Name] {
				m.reportLoadError(file, ps.Name, fmt.Errorf("duplicate profile name %q", ps.Name))
				continue
			}
			p, err := Compile(ps, catalog)
			if err != nil {
				m.reportLoadError(file, ps.Name, err)
				if prev != nil {
					if old, ok := prev.ByName(ps.Name); ok {
						slog.Warn("retaining previously compiled profile", "profile", ps.Name, "file", file)
						names[ps.Name] = true
						compiled = append(compiled, old)
					}
				}
				continue
			}
			names[p.Name] = true
			compiled = append(compiled, p)
			if p.Empty() {
				ev := events.New(events.EventEmptyProfile)
				ev.Profile = p.Name
				ev.Detail = "profile compiled to zero rules (fully default-deny)"
				m.broker.Publish(ev)
			}
			ev := events.New(events.EventProfileLoaded)
			ev.Profile = p.Name
			ev.Path = file
			m.broker.Publish(ev)
		}
	}

	snap, err := NewProfileSet(compiled)
	if err != nil {
		return fmt.Errorf("profile set conflict: %w", err)
	}
	m.cur.Store(snap)
	m.metrics.SetActiveProfiles(snap.Len())

	ev := events.New(events.EventProfilesReloaded)
	ev.Detail = fmt.Sprintf("%d profiles active", snap.Len())
	m.broker.Publish(ev)
	slog.Info("profiles reloaded", "dir", m.profileDir, "active", snap.Len())
	return nil
}

func (m *Manager) reportLoadError(file, profile string, err error) {
	t := events.EventCompileError
	var pe *ParseError
	var cyc *CyclicInclusionError
	var unres *UnresolvedInclusionError
	switch {
	case errors.As(err, &pe):
		t = events.EventParseError
	case errors.As(err, &cyc):
		t = events.EventCyclicInclusion
	case errors.As(err, &unres):
		t = events.EventUnresolvedInclusion
	}
	ev := events.New(t)
	ev.Profile = profile
	ev.Path = file
	ev.Detail = err.Error()
	m.broker.Publish(ev)
	m.metrics.IncCompileError()
	slog.Warn("profile rejected", "file", file, "profile", profile, "error", err)
}

// Watch reloads on filesystem changes to the profile or abstractions
// directories until the context is canceled. Bursts of change events are
// coalesced into one reload.
func (m *Manager) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch profiles: %w", err)
	}
	defer w.Close()

	if err := w.Add(m.profileDir); err != nil {
		return fmt.Errorf("watch %s: %w", m.profileDir, err)
	}
	if m.abstractionsDir != m.profileDir {
		if err := w.Add(m.abstractionsDir); err != nil {
			slog.Warn("abstractions dir not watchable", "dir", m.abstractionsDir, "error", err)
		}
	}

	const debounce = 300 * time.Millisecond
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				fire = timer.C
			} else {
				timer.Reset(debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("profile watcher error", "error", err)
		case <-fire:
			timer = nil
			fire = nil
			if err := m.Reload(); err != nil {
				slog.Error("profile reload failed", "error", err)
			}
		}
	}
}
