// Package mock provides test doubles for the stt package interfaces.
//
// Use Transcriber to return a fixed Transcript (or error) and inspect which
// requests were submitted.
//
// Example:
//
//	tr := &mock.Transcriber{Result: stt.Transcript{Text: "I can buy 5 million of bund June 30"}}
//	got, _ := tr.Transcribe(ctx, stt.Request{Audio: stt.Audio{Data: wav}})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/bondvox/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcriber.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Req is the request passed to Transcribe. Audio data is copied.
	Req stt.Request
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Result is returned by Transcribe when Err is nil.
	Result stt.Transcript

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// TranscribeFunc, if set, overrides Result and Err.
	TranscribeFunc func(ctx context.Context, req stt.Request) (stt.Transcript, error)

	// TranscribeCalls records every call to Transcribe.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns Result, Err.
func (m *Transcriber) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	m.mu.Lock()
	cp := req
	cp.Audio.Data = append([]byte(nil), req.Audio.Data...)
	m.TranscribeCalls = append(m.TranscribeCalls, TranscribeCall{Ctx: ctx, Req: cp})
	fn, result, err := m.TranscribeFunc, m.Result, m.Err
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return stt.Transcript{}, err
	}
	return result, nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (m *Transcriber) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.TranscribeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (m *Transcriber) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TranscribeCalls = nil
}

// Ensure Transcriber implements stt.Transcriber at compile time.
var _ stt.Transcriber = (*Transcriber)(nil)
