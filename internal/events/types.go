// Package events carries structured diagnostic events from the engine to
// external collectors. The engine emits events; it never formats or
// persists them.
package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the type of diagnostic event.
type EventType string

// Compilation events.
const (
	EventParseError          EventType = "parse_error"
	EventCompileError        EventType = "compile_error"
	EventCyclicInclusion     EventType = "cyclic_inclusion"
	EventUnresolvedInclusion EventType = "unresolved_inclusion"
	EventEmptyProfile        EventType = "empty_profile"
	EventProfileLoaded       EventType = "profile_loaded"
	EventProfilesReloaded    EventType = "profiles_reloaded"
)

// Evaluation events.
const (
	EventDeniedOperation     EventType = "denied_operation"
	EventUnconfinedExecution EventType = "unconfined_execution"
)

// EventCategory maps event types to their categories.
var EventCategory = map[EventType]string{
	EventParseError:          "compile",
	EventCompileError:        "compile",
	EventCyclicInclusion:     "compile",
	EventUnresolvedInclusion: "compile",
	EventEmptyProfile:        "compile",
	EventProfileLoaded:       "compile",
	EventProfilesReloaded:    "compile",

	EventDeniedOperation:     "enforce",
	EventUnconfinedExecution: "enforce",
}

// Event is one structured diagnostic record. Every event is self-contained
// for independent collection.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Category  string    `json:"category"`

	// Profile names the profile concerned, when one is known.
	Profile string `json:"profile,omitempty"`
	// Path is the filesystem path or binary involved, when relevant.
	Path string `json:"path,omitempty"`
	// Rule is the directive text that decided the outcome, when one did.
	Rule string `json:"rule,omitempty"`
	// Detail carries the human-readable specifics (error text, deny reason).
	Detail string `json:"detail,omitempty"`
}

// New builds an event with identity and timestamps filled in.
func New(t EventType) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      t,
		Category:  EventCategory[t],
	}
}
