// Package notify publishes recognised quotes to chat channels.
//
// Publication is best-effort: a slow or failing channel never delays the
// HTTP response that produced the quote. [Telegram] queues messages and
// sends them from [Telegram.Run], spaced to stay below the Bot API rate
// limit.
package notify

import (
	"context"
	"errors"
	"time"
)

// ErrQueueFull is returned by Notify when the send queue has no room left.
var ErrQueueFull = errors.New("notify: queue full")

// Quote is one recognised quote ready for publication.
type Quote struct {
	// Text is the formatted quote, e.g. "DBR 06/30 OFFER".
	Text string

	// Pattern is the cascade pattern that produced it.
	Pattern string

	// Heard is the transcription the quote was parsed from.
	Heard string

	// At is when the quote was recognised.
	At time.Time
}

// Notifier publishes quotes. Implementations must be safe for concurrent use.
type Notifier interface {
	// Notify hands q to the channel. It must not block on network I/O.
	Notify(ctx context.Context, q Quote) error
}
