package pipeline

import (
	"strings"
	"sync"

	"github.com/mkaiser42/aloud/internal/intent"
)

// DuplicateFilter drops transcriptions that repeat the previous turn or echo
// the pipeline's own speech picked up by the microphone.
//
// Two reference strings are kept: lastProcessed (case-sensitive, trimmed,
// whitespace-collapsed) and lastSpoken (compared case-insensitively). Safe
// for concurrent use.
type DuplicateFilter struct {
	mu            sync.Mutex
	lastProcessed string
	lastSpoken    string
}

// ShouldDrop reports whether transcription repeats the previous turn or the
// last spoken response.
func (f *DuplicateFilter) ShouldDrop(transcription string) bool {
	norm := intent.CollapseWhitespace(transcription)

	f.mu.Lock()
	defer f.mu.Unlock()
	if norm == f.lastProcessed {
		return true
	}
	if f.lastSpoken != "" && strings.EqualFold(norm, intent.CollapseWhitespace(f.lastSpoken)) {
		return true
	}
	return false
}

// Accept records transcription as the last processed turn.
func (f *DuplicateFilter) Accept(transcription string) {
	norm := intent.CollapseWhitespace(transcription)
	f.mu.Lock()
	f.lastProcessed = norm
	f.mu.Unlock()
}

// SetLastSpoken records the response the TTS engine is about to speak.
func (f *DuplicateFilter) SetLastSpoken(response string) {
	f.mu.Lock()
	f.lastSpoken = response
	f.mu.Unlock()
}
