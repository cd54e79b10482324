package server

import (
	"github.com/mkaiser42/aloud/internal/browse"
	"github.com/mkaiser42/aloud/internal/pipeline"
)

// EventActions forwards browse effects to connected clients as events on the
// hub. The page is rendered client-side, so opening a URL or scrolling is an
// instruction to the client, not something the server performs.
type EventActions struct {
	hub *pipeline.Hub
}

// NewEventActions creates an EventActions publishing to hub.
func NewEventActions(hub *pipeline.Hub) *EventActions {
	return &EventActions{hub: hub}
}

var _ browse.Actions = (*EventActions)(nil)

// SetBrowseMode implements [browse.Actions].
func (a *EventActions) SetBrowseMode(enabled bool) {
	a.hub.Emit(pipeline.Event{Type: pipeline.EventBrowseMode, Enabled: enabled})
}

// OpenURL implements [browse.Actions].
func (a *EventActions) OpenURL(url string) {
	a.hub.Emit(pipeline.Event{Type: pipeline.EventOpenURL, URL: url})
}

// Scroll implements [browse.Actions].
func (a *EventActions) Scroll(direction string) {
	a.hub.Emit(pipeline.Event{Type: pipeline.EventScroll, Direction: direction})
}
