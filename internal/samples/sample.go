// Package samples persists training and correction samples.
//
// Every transcribed upload produces a training sample (what the recogniser
// heard, what the engine made of it). When a trader fixes a wrong quote in
// the UI, the fix is stored as a correction sample. Together they form the
// data set used to extend the alias lexicon and to evaluate new recognisers.
//
// Two [Store] implementations are provided: [FileStore] appends JSON lines to
// a local file and [PostgresStore] writes to PostgreSQL through pgx.
package samples

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes automatically recorded samples from trader corrections.
type Kind string

const (
	// KindTraining is recorded for every transcribed upload.
	KindTraining Kind = "training"

	// KindCorrection is recorded when a trader corrects a parsed quote.
	KindCorrection Kind = "correction"
)

// ErrInvalidSample is wrapped by [Sample.Validate] failures.
var ErrInvalidSample = errors.New("samples: invalid sample")

// Sample is one stored record.
type Sample struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`

	// Transcription is the raw recogniser output.
	Transcription string `json:"transcription"`

	// Corrected is the transcription after instrument-name correction. Empty
	// when no correction stage ran or nothing changed.
	Corrected string `json:"corrected,omitempty"`

	// Quote is the engine output, possibly the no-quote sentinel.
	Quote string `json:"quote"`

	// Pattern is the cascade pattern that matched, empty when none did.
	Pattern string `json:"pattern,omitempty"`

	// CorrectedQuote is the trader's fix. Set only on correction samples.
	CorrectedQuote string `json:"corrected_quote,omitempty"`
}

// New returns a sample of the given kind with a fresh ID and the current
// UTC time.
func New(kind Kind) Sample {
	return Sample{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: time.Now().UTC(),
	}
}

// Validate checks the fields every store relies on.
func (s Sample) Validate() error {
	var errs []error
	if s.ID == "" {
		errs = append(errs, errors.New("id is required"))
	} else if _, err := uuid.Parse(s.ID); err != nil {
		errs = append(errs, fmt.Errorf("id %q is not a uuid", s.ID))
	}
	switch s.Kind {
	case KindTraining:
	case KindCorrection:
		if strings.TrimSpace(s.CorrectedQuote) == "" {
			errs = append(errs, errors.New("corrected_quote is required for correction samples"))
		}
	default:
		errs = append(errs, fmt.Errorf("kind %q is invalid", s.Kind))
	}
	if strings.TrimSpace(s.Transcription) == "" {
		errs = append(errs, errors.New("transcription is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidSample, errors.Join(errs...))
	}
	return nil
}

// Store persists samples. Implementations must be safe for concurrent use.
type Store interface {
	// Save validates and stores s.
	Save(ctx context.Context, s Sample) error

	// Recent returns up to limit samples, newest first.
	Recent(ctx context.Context, limit int) ([]Sample, error)

	// Ping reports whether the store can accept writes.
	Ping(ctx context.Context) error
}
