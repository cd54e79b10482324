// Package transcript cleans up raw speech-to-text output before it reaches
// the intent reconstructor.
//
// The only stage today is the vocabulary corrector: dysarthric speech plus a
// small whisper model routinely mangles domain words ("commode", a carer's
// name, a medication), and those words are exactly the ones the operator can
// enumerate up front. The corrector snaps near-miss tokens to the configured
// vocabulary using Double Metaphone phonetic codes filtered by Jaro-Winkler
// similarity.
package transcript

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option configures a [Corrector].
type Option func(*Corrector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched hint to replace a token. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(c *Corrector) {
		c.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when a
// hint matches on string similarity alone, without phonetic overlap.
// Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(c *Corrector) {
		c.fuzzyThreshold = threshold
	}
}

// hint is one vocabulary word with its precomputed phonetic codes.
type hint struct {
	word  string
	lower string
	codes map[string]struct{}
}

// Corrector replaces near-miss transcription tokens with vocabulary hints.
// Read-only after construction, so safe for concurrent use.
type Corrector struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
	hints             []hint
}

// NewCorrector builds a Corrector over the given vocabulary. Blank entries
// are dropped. A Corrector with an empty vocabulary passes text through
// unchanged.
func NewCorrector(vocabulary []string, opts ...Option) *Corrector {
	c := &Corrector{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(c)
	}
	for _, word := range vocabulary {
		word = strings.TrimSpace(word)
		if word == "" {
			continue
		}
		lower := strings.ToLower(word)
		c.hints = append(c.hints, hint{
			word:  word,
			lower: lower,
			codes: phoneticCodes(lower),
		})
	}
	return c
}

// Correct returns text with each token that closely resembles a vocabulary
// hint replaced by that hint. Tokens that already equal a hint (ignoring
// case) and tokens with no sufficiently similar hint pass through unchanged.
// Trailing punctuation on a token is preserved across replacement.
func (c *Corrector) Correct(text string) string {
	if len(c.hints) == 0 || strings.TrimSpace(text) == "" {
		return text
	}

	tokens := strings.Fields(text)
	changed := false
	for i, token := range tokens {
		core, punct := splitTrailingPunct(token)
		if core == "" {
			continue
		}
		replacement, ok := c.match(core)
		if ok && replacement != core {
			tokens[i] = replacement + punct
			changed = true
		}
	}
	if !changed {
		return text
	}
	return strings.Join(tokens, " ")
}

// match finds the best hint for one token. Phonetic candidates rank above
// pure string-similarity candidates, mirroring how a listener resolves a
// misheard word by sound first.
func (c *Corrector) match(token string) (string, bool) {
	lower := strings.ToLower(token)
	codes := phoneticCodes(lower)

	var (
		bestWord     string
		bestScore    float64
		bestPhonetic bool
	)

	for _, h := range c.hints {
		if h.lower == lower {
			// Already the vocabulary word.
			return h.word, true
		}
		score := matchr.JaroWinkler(lower, h.lower, false)
		phonetic := codesOverlap(codes, h.codes)

		switch {
		case phonetic && score >= c.phoneticThreshold:
			if !bestPhonetic || score > bestScore {
				bestWord, bestScore, bestPhonetic = h.word, score, true
			}
		case !phonetic && !bestPhonetic && score >= c.fuzzyThreshold:
			if score > bestScore {
				bestWord, bestScore = h.word, score
			}
		}
	}

	if bestWord == "" {
		return token, false
	}
	return bestWord, true
}

// phoneticCodes returns the Double Metaphone code set for a single word.
// Empty codes are excluded.
func phoneticCodes(word string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(word)
	if p != "" {
		codes[p] = struct{}{}
	}
	if s != "" {
		codes[s] = struct{}{}
	}
	return codes
}

// codesOverlap reports whether the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// splitTrailingPunct separates trailing sentence punctuation from a token so
// replacement keeps the original punctuation.
func splitTrailingPunct(token string) (core, punct string) {
	i := len(token)
	for i > 0 && strings.ContainsRune(".,!?;:", rune(token[i-1])) {
		i--
	}
	return token[:i], token[i:]
}
