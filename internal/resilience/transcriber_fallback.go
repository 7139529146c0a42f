package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/bondvox/pkg/provider/stt"
)

// TranscriberFallback implements [stt.Transcriber] with automatic failover
// across several STT backends, each behind its own circuit breaker. A request
// without audio fails immediately instead of being retried on every backend.
type TranscriberFallback struct {
	group *FallbackGroup[stt.Transcriber]
}

// Compile-time interface assertion.
var _ stt.Transcriber = (*TranscriberFallback)(nil)

// NewTranscriberFallback creates a [TranscriberFallback] with primary as the
// preferred backend.
func NewTranscriberFallback(primary stt.Transcriber, primaryName string, cfg FallbackConfig) *TranscriberFallback {
	userPermanent := cfg.Permanent
	cfg.Permanent = func(err error) bool {
		if errors.Is(err, stt.ErrEmptyAudio) {
			return true
		}
		return userPermanent != nil && userPermanent(err)
	}
	return &TranscriberFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional STT backend.
func (f *TranscriberFallback) AddFallback(name string, t stt.Transcriber) {
	f.group.AddFallback(name, t)
}

// Status reports the breaker state of every backend.
func (f *TranscriberFallback) Status() []EntryStatus { return f.group.Status() }

// Transcribe sends req to the first healthy backend.
func (f *TranscriberFallback) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if err := req.Validate(); err != nil {
		return stt.Transcript{}, err
	}
	return ExecuteWithResult(f.group, func(t stt.Transcriber) (stt.Transcript, error) {
		return t.Transcribe(ctx, req)
	})
}
