// Package transcript defines the correction pipeline that repairs misheard
// instrument names before a transcription reaches the quote engine.
//
// Speech-to-text output is unreliable for trading jargon: "bund" comes back as
// "bunt", "gilt" as "guilt", "BTP" as "beeps". A single misheard instrument
// makes the whole utterance unparseable, so the [Pipeline] applies a
// two-stage correction strategy before parsing:
//
//  1. Phonetic matching ([PhoneticMatcher]): in-process alignment of
//     non-grammar tokens against the instrument vocabulary using
//     pronunciation similarity. No network calls.
//
//  2. LLM-assisted correction: a language model resolves low-confidence words
//     against the same vocabulary. Every edit it makes is verified against
//     the corrections it declares; undeclared edits are reverted.
//
// Each [Correction] records which method produced the substitution and its
// confidence, so callers can audit or log what changed.
//
// Implementations of both interfaces must be safe for concurrent use.
package transcript

import (
	"context"

	"github.com/MrWong99/bondvox/pkg/provider/stt"
)

// Correction method names.
const (
	MethodPhonetic = "phonetic"
	MethodLLM      = "llm"
)

// Correction captures a single word-level substitution made by the pipeline.
type Correction struct {
	// Original is the word (or n-gram) as produced by the STT provider.
	Original string

	// Corrected is the vocabulary entry selected by the pipeline.
	Corrected string

	// Confidence is the pipeline's confidence in this substitution (0.0–1.0).
	Confidence float64

	// Method is [MethodPhonetic] or [MethodLLM].
	Method string
}

// CorrectedTranscript is the output of a [Pipeline.Correct] call.
type CorrectedTranscript struct {
	// Original is the raw transcript as received from the STT provider.
	Original stt.Transcript

	// Corrected is the transcript text with all substitutions applied.
	Corrected string

	// Corrections is the ordered list of substitutions applied to produce
	// Corrected. An empty (non-nil) slice means nothing was changed.
	Corrections []Correction
}

// Changed reports whether any correction was applied.
func (c *CorrectedTranscript) Changed() bool {
	return len(c.Corrections) > 0
}

// Pipeline applies multi-stage corrections to a raw [stt.Transcript].
//
// Implementations must be safe for concurrent use.
type Pipeline interface {
	// Correct processes transcript against vocabulary, the spoken forms of
	// every known instrument (aliases and canonical codes).
	//
	// Returns a non-nil *CorrectedTranscript on success. When no corrections
	// are needed, Corrected equals transcript.Text and Corrections is an
	// empty (non-nil) slice.
	Correct(ctx context.Context, transcript stt.Transcript, vocabulary []string) (*CorrectedTranscript, error)
}

// PhoneticMatcher resolves a word or short n-gram to a vocabulary entry based
// on pronunciation similarity.
//
// Implementations must be safe for concurrent use.
type PhoneticMatcher interface {
	// Match attempts to find the entry of vocabulary that is most
	// phonetically similar to word.
	//
	// When matched is false, corrected must equal word unchanged and
	// confidence must be 0.
	Match(word string, vocabulary []string) (corrected string, confidence float64, matched bool)
}
