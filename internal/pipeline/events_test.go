package pipeline

import (
	"testing"
)

func TestHubDeliversInSubscriptionOrder(t *testing.T) {
	t.Parallel()

	h := NewHub(nil)
	var order []int
	h.Subscribe(ObserverFunc(func(Event) { order = append(order, 1) }))
	h.Subscribe(ObserverFunc(func(Event) { order = append(order, 2) }))
	h.Subscribe(ObserverFunc(func(Event) { order = append(order, 3) }))

	h.Emit(Event{Type: EventDebug})

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("delivery order = %v", order)
	}
}

func TestHubPanickingObserverIsolated(t *testing.T) {
	t.Parallel()

	h := NewHub(nil)
	h.Subscribe(ObserverFunc(func(Event) { panic("boom") }))

	var got []Event
	h.Subscribe(ObserverFunc(func(ev Event) { got = append(got, ev) }))

	h.Emit(Event{Type: EventResponse, Text: "hello"})

	if len(got) != 1 || got[0].Text != "hello" {
		t.Errorf("second observer got %v, want the event despite earlier panic", got)
	}
}

func TestHubUnsubscribe(t *testing.T) {
	t.Parallel()

	h := NewHub(nil)
	var count int
	unsub := h.Subscribe(ObserverFunc(func(Event) { count++ }))

	h.Emit(Event{Type: EventDebug})
	unsub()
	unsub() // second call is harmless
	h.Emit(Event{Type: EventDebug})

	if count != 1 {
		t.Errorf("observer called %d times, want 1", count)
	}
}

func TestDuplicateFilter(t *testing.T) {
	t.Parallel()

	var f DuplicateFilter

	if f.ShouldDrop("I am cold") {
		t.Error("fresh transcription dropped")
	}
	f.Accept("I am cold")

	if !f.ShouldDrop("I am cold") {
		t.Error("exact repeat not dropped")
	}
	if !f.ShouldDrop("  I   am  cold ") {
		t.Error("whitespace variant of repeat not dropped")
	}
	if f.ShouldDrop("I AM COLD") {
		t.Error("last_processed comparison must be case-sensitive")
	}
}

func TestDuplicateFilterEcho(t *testing.T) {
	t.Parallel()

	var f DuplicateFilter
	f.SetLastSpoken("I am cold.")

	if !f.ShouldDrop("I am cold.") {
		t.Error("echo of spoken response not dropped")
	}
	if !f.ShouldDrop("i AM cold.") {
		t.Error("echo comparison must be case-insensitive")
	}
	if f.ShouldDrop("I am warm.") {
		t.Error("unrelated transcription dropped")
	}
}

func TestAutoSensitivityAdjustsInBand(t *testing.T) {
	t.Parallel()

	a := &AutoSensitivity{Enabled: true, MinLevel: 0.1, MaxLevel: 0.5, Step: 0.5, CooldownChunks: 2}

	next, adjusted := a.OnEmptyTranscription(0.3, 1.0)
	if !adjusted || next != 1.5 {
		t.Fatalf("got (%v, %v), want (1.5, true)", next, adjusted)
	}

	// Cooldown: exactly CooldownChunks empty turns pass without adjustment.
	for i := 0; i < 2; i++ {
		if _, adjusted := a.OnEmptyTranscription(0.3, 1.5); adjusted {
			t.Fatalf("adjusted during cooldown turn %d", i)
		}
	}
	next, adjusted = a.OnEmptyTranscription(0.3, 1.5)
	if !adjusted || next != 2.0 {
		t.Fatalf("after cooldown got (%v, %v), want (2.0, true)", next, adjusted)
	}
}

func TestAutoSensitivityBandEdges(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		level float64
		want  bool
	}{
		{"below band", 0.05, false},
		{"at min", 0.1, true},
		{"at max", 0.5, true},
		{"above band is an STT problem", 0.7, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := &AutoSensitivity{Enabled: true, MinLevel: 0.1, MaxLevel: 0.5, Step: 0.2, CooldownChunks: 1}
			_, adjusted := a.OnEmptyTranscription(tt.level, 1.0)
			if adjusted != tt.want {
				t.Errorf("adjusted = %v, want %v", adjusted, tt.want)
			}
		})
	}
}

func TestAutoSensitivityClampsAtMax(t *testing.T) {
	t.Parallel()

	a := &AutoSensitivity{Enabled: true, MinLevel: 0, MaxLevel: 1, Step: 5, CooldownChunks: 0}

	next, adjusted := a.OnEmptyTranscription(0.5, 9.0)
	if !adjusted || next != 10.0 {
		t.Fatalf("got (%v, %v), want clamp to 10", next, adjusted)
	}

	// Already at the ceiling: no increase, no adjustment.
	if _, adjusted := a.OnEmptyTranscription(0.5, 10.0); adjusted {
		t.Error("adjusted at the sensitivity ceiling")
	}
}

func TestAutoSensitivityDisabled(t *testing.T) {
	t.Parallel()

	a := &AutoSensitivity{Enabled: false, MinLevel: 0, MaxLevel: 1, Step: 1}
	if _, adjusted := a.OnEmptyTranscription(0.5, 1.0); adjusted {
		t.Error("disabled controller adjusted")
	}
}
