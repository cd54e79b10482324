// Package pipeline runs the capture → transcribe → respond loop and fans
// events out to observers.
package pipeline

import (
	"log/slog"
	"sync"
)

// EventType names an event on the outbound stream.
type EventType string

const (
	EventStatus         EventType = "status"
	EventResponse       EventType = "response"
	EventError          EventType = "error"
	EventDebug          EventType = "debug"
	EventVolume         EventType = "volume"
	EventSensitivity    EventType = "sensitivity"
	EventOpenURL        EventType = "open_url"
	EventBrowseMode     EventType = "browse_mode"
	EventScroll         EventType = "scroll"
	EventQuit           EventType = "quit"
	EventCloseQuitModal EventType = "close_quit_modal"
)

// Status values carried by [EventStatus] events.
const (
	StatusListening    = "Listening"
	StatusTranscribing = "Transcribing"
	StatusResponding   = "Responding"
	StatusStopped      = "Stopped"
)

// Event is one item on the outbound stream. Only the fields relevant to the
// Type are populated.
type Event struct {
	Type EventType `json:"type"`

	// Status carries the pipeline phase for status events.
	Status string `json:"status,omitempty"`

	// Text carries the response text, error message, or debug message.
	Text string `json:"text,omitempty"`

	// InteractionID identifies the persisted row for response events. Zero
	// when persistence failed.
	InteractionID int64 `json:"interaction_id,omitempty"`

	// Level is the measured input level in [0, 1] for volume events.
	Level float64 `json:"level,omitempty"`

	// Value is the new multiplier for sensitivity events.
	Value float64 `json:"value,omitempty"`

	// URL is the target for open_url events.
	URL string `json:"url,omitempty"`

	// Enabled carries the new pane state for browse_mode events.
	Enabled bool `json:"enabled,omitempty"`

	// Direction is "up" or "down" for scroll events.
	Direction string `json:"direction,omitempty"`
}

// Observer receives events. OnEvent is called on the worker goroutine and
// must not block; observers that need to block should hand off to their own
// queue.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to [Observer].
type ObserverFunc func(Event)

// OnEvent implements [Observer].
func (f ObserverFunc) OnEvent(ev Event) { f(ev) }

// Hub fans events out to subscribers, in subscription order, on the
// emitter's goroutine. A panicking observer is caught and logged; it never
// takes the worker down. Safe for concurrent use.
type Hub struct {
	mu   sync.Mutex
	next int
	subs []subscription
	log  *slog.Logger
}

type subscription struct {
	id  int
	obs Observer
}

// NewHub creates an empty Hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{log: log}
}

// Subscribe registers obs and returns an unsubscribe function. Unsubscribing
// twice is harmless.
func (h *Hub) Subscribe(obs Observer) (unsubscribe func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	h.subs = append(h.subs, subscription{id: id, obs: obs})
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, s := range h.subs {
			if s.id == id {
				h.subs = append(h.subs[:i], h.subs[i+1:]...)
				return
			}
		}
	}
}

// Emit delivers ev to every subscriber in order.
func (h *Hub) Emit(ev Event) {
	h.mu.Lock()
	subs := make([]subscription, len(h.subs))
	copy(subs, h.subs)
	h.mu.Unlock()

	for _, s := range subs {
		h.deliver(s.obs, ev)
	}
}

func (h *Hub) deliver(obs Observer, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("observer panicked", "event", ev.Type, "panic", r)
		}
	}()
	obs.OnEvent(ev)
}
