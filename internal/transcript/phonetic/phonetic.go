// Package phonetic implements the [transcript.PhoneticMatcher] interface using
// Double Metaphone phonetic encoding combined with Jaro-Winkler string
// similarity for ranked candidate selection.
//
// Speech-to-text engines regularly mishear instrument names: "bund" comes
// back as "bunt", "boned" or "bone", "BTP" as "beeps". The matcher snaps such
// words back onto the known vocabulary in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     the input and for each vocabulary entry. If any code overlaps, the
//     entry becomes a phonetic candidate.
//
//  2. Jaro-Winkler ranking: among phonetic candidates, the entry with the
//     highest Jaro-Winkler similarity is selected, provided its score
//     exceeds the phonetic threshold (default 0.70).
//
//     When no phonetic candidate is found, a secondary pass tests pure
//     Jaro-Winkler similarity against all entries using a higher fuzzy
//     threshold (default 0.85).
//
// Multi-token input is also compared with its spaces removed, so a word the
// recogniser split in two ("gil t") can still reach a single-token code.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched entry to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic match is found and the matcher falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher is a phonetic vocabulary matcher. It implements
// [transcript.PhoneticMatcher]. It is read-only after construction and safe
// for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a new [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// entry is a vocabulary word with its precomputed encodings.
type entry struct {
	word   string
	lower  string
	tokens []string
	codes  map[string]struct{}
}

// Index is a vocabulary with precomputed phonetic codes. Build it once with
// [NewIndex] and reuse it for every lookup against the same vocabulary.
type Index struct {
	entries []entry
}

// NewIndex precomputes Double Metaphone codes for every non-empty entry of
// vocabulary.
func NewIndex(vocabulary []string) *Index {
	idx := &Index{entries: make([]entry, 0, len(vocabulary))}
	for _, w := range vocabulary {
		lower := strings.ToLower(strings.TrimSpace(w))
		if lower == "" {
			continue
		}
		tokens := strings.Fields(lower)
		idx.entries = append(idx.entries, entry{
			word:   w,
			lower:  lower,
			tokens: tokens,
			codes:  codesForTokens(tokens),
		})
	}
	return idx
}

// Len returns the number of indexed entries.
func (idx *Index) Len() int { return len(idx.entries) }

// Contains reports whether word equals an entry, ignoring case.
func (idx *Index) Contains(word string) bool {
	lower := strings.ToLower(strings.TrimSpace(word))
	for _, e := range idx.entries {
		if e.lower == lower {
			return true
		}
	}
	return false
}

// Match attempts to find the entry of vocabulary that is most phonetically
// similar to word. It builds a throwaway [Index]; callers matching many
// words should use [Matcher.MatchIndex].
//
// Return values follow the [transcript.PhoneticMatcher] contract: when
// matched is false, corrected equals word unchanged and confidence is 0.
func (m *Matcher) Match(word string, vocabulary []string) (corrected string, confidence float64, matched bool) {
	return m.MatchIndex(word, NewIndex(vocabulary))
}

// MatchIndex is [Matcher.Match] against a prepared [Index].
func (m *Matcher) MatchIndex(word string, idx *Index) (corrected string, confidence float64, matched bool) {
	if idx == nil || idx.Len() == 0 || strings.TrimSpace(word) == "" {
		return word, 0, false
	}

	wordLower := strings.ToLower(strings.TrimSpace(word))
	wordTokens := strings.Fields(wordLower)
	inputCodes := codesForTokens(append(wordTokens, strings.Join(wordTokens, "")))

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, e := range idx.entries {
		phoneticMatch := codesOverlap(inputCodes, e.codes)
		score := bestJWScore(wordTokens, e.tokens, wordLower, e.lower)

		switch {
		case phoneticMatch && score >= m.phoneticThreshold:
			if !bestPhonetic || score > bestScore {
				best, bestScore, bestPhonetic = e.word, score, true
			}
		case !phoneticMatch && !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore:
			best, bestScore = e.word, score
		}
	}

	if best != "" {
		return best, bestScore, true
	}
	return word, 0, false
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
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

// bestJWScore computes the highest Jaro-Winkler similarity between the input
// and a vocabulary entry using the full strings, the space-stripped strings
// and, for single-token inputs only, the best pairwise token score.
func bestJWScore(inputTokens, entryTokens []string, inputFull, entryFull string) float64 {
	score := matchr.JaroWinkler(inputFull, entryFull, false)

	if len(inputTokens) > 1 || len(entryTokens) > 1 {
		joined := matchr.JaroWinkler(strings.Join(inputTokens, ""), strings.Join(entryTokens, ""), false)
		score = max(score, joined)
	}

	// Pairwise scoring on multi-token input would let one good word carry
	// unrelated neighbours into the correction.
	if len(inputTokens) == 1 {
		for _, et := range entryTokens {
			score = max(score, matchr.JaroWinkler(inputTokens[0], et, false))
		}
	}

	return score
}
