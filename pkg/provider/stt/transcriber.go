// Package stt defines the Transcriber interface for Speech-to-Text backends.
//
// A Transcriber wraps a transcription service (a local whisper.cpp server,
// OpenAI's hosted whisper model or Deepgram) and turns one recorded
// utterance into a single Transcript. Traders record a quote, upload it and
// wait for the result, so every backend is used in batch mode; there is no
// streaming session.
//
// Implementations must be safe for concurrent use. Each call to Transcribe is
// independent.
package stt

import (
	"context"
	"errors"
)

// ErrEmptyAudio is returned by Transcribe when the request carries no audio
// bytes. Implementations must check this before contacting their backend.
var ErrEmptyAudio = errors.New("stt: empty audio")

// Audio is a recorded utterance in any container format the backend accepts
// (WAV, WebM, MP3, OGG...).
type Audio struct {
	// Data holds the encoded audio file.
	Data []byte

	// Filename is forwarded to backends that infer the format from the file
	// extension. Defaults to "audio.wav" when empty.
	Filename string

	// ContentType is the MIME type of Data, e.g. "audio/wav". Backends that
	// need it fall back to "application/octet-stream".
	ContentType string
}

// Name returns Filename or the "audio.wav" default.
func (a Audio) Name() string {
	if a.Filename == "" {
		return "audio.wav"
	}
	return a.Filename
}

// MIME returns ContentType or "application/octet-stream".
func (a Audio) MIME() string {
	if a.ContentType == "" {
		return "application/octet-stream"
	}
	return a.ContentType
}

// Request describes one transcription call.
type Request struct {
	Audio Audio

	// Language is the BCP-47 language tag for recognition (e.g., "en").
	// Empty selects the backend default.
	Language string

	// Keywords are vocabulary hints, typically the instrument aliases of the
	// quote lexicon. Backends without keyword boosting fold them into a
	// prompt or ignore them.
	Keywords []KeywordBoost
}

// Validate returns [ErrEmptyAudio] when the request has no audio.
func (r Request) Validate() error {
	if len(r.Audio.Data) == 0 {
		return ErrEmptyAudio
	}
	return nil
}

// Transcriber is the abstraction over any STT backend.
type Transcriber interface {
	// Transcribe converts the recorded audio in req into text. It returns an
	// error if the backend is unreachable, rejects the audio, or ctx is
	// cancelled.
	Transcribe(ctx context.Context, req Request) (Transcript, error)
}
