package stt

import (
	"strings"
	"time"
)

// Transcript is the result of a single transcription call.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). May be zero if the provider
	// does not report confidence.
	Confidence float64

	// Words contains per-word detail when available (Deepgram).
	// May be nil for providers that don't support word-level output.
	Words []WordDetail

	// Duration is the length of the recorded audio as reported by the backend.
	Duration time.Duration
}

// WordDetail holds per-word metadata from STT providers that support it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost represents a keyword to boost in STT recognition.
// Used to improve recognition of instrument names such as "BUND" or "BTP".
type KeywordBoost struct {
	// Keyword is the text to boost (e.g., "BUND").
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}

// KeywordPrompt joins the keywords into a short prompt for backends that
// accept an initial prompt instead of keyword boosting.
func KeywordPrompt(keywords []KeywordBoost) string {
	if len(keywords) == 0 {
		return ""
	}
	words := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw.Keyword != "" {
			words = append(words, kw.Keyword)
		}
	}
	if len(words) == 0 {
		return ""
	}
	return "Bond quote. Instruments: " + strings.Join(words, ", ") + "."
}
