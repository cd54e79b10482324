package pipeline

// AutoSensitivity nudges the capture gain upward when speech-level audio
// keeps producing empty transcriptions. Used from the worker goroutine only.
type AutoSensitivity struct {
	// Enabled turns the controller on.
	Enabled bool

	// MinLevel and MaxLevel bound the band (inclusive) in which an empty
	// transcription is treated as a gain problem. Above MaxLevel the level
	// is ample and the failure is an STT issue, so no adjustment is made.
	MinLevel float64
	MaxLevel float64

	// Step is added to the sensitivity per adjustment.
	Step float64

	// CooldownChunks is how many further empty-transcription turns must pass
	// before the next adjustment.
	CooldownChunks int

	cooldown int
}

// maxSensitivity mirrors the chunk queue's upper clamp.
const maxSensitivity = 10.0

// OnEmptyTranscription is called for every chunk whose transcription came
// back empty, with the measured level and the current sensitivity. It
// returns the new sensitivity and whether an adjustment was made. The
// cooldown only ticks down on this path; successful turns leave it alone.
func (a *AutoSensitivity) OnEmptyTranscription(level, current float64) (float64, bool) {
	if a.Enabled && a.cooldown == 0 && level >= a.MinLevel && level <= a.MaxLevel {
		next := current + a.Step
		if next > maxSensitivity {
			next = maxSensitivity
		}
		if next > current {
			a.cooldown = a.CooldownChunks
			return next, true
		}
		return current, false
	}
	if a.cooldown > 0 {
		a.cooldown--
	}
	return current, false
}
