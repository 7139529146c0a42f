package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/MrWong99/bondvox/internal/observe"
)

const (
	// defaultSendInterval keeps a single chat below ~30 messages per minute.
	defaultSendInterval = 2 * time.Second
	defaultQueueSize    = 100
	channelTelegram     = "telegram"
)

// Sender is the subset of [tgbotapi.BotAPI] used by [Telegram].
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Compile-time interface checks.
var (
	_ Notifier = (*Telegram)(nil)
	_ Sender   = (*tgbotapi.BotAPI)(nil)
)

// TelegramOption configures a [Telegram] notifier.
type TelegramOption func(*Telegram)

// WithSendInterval sets the minimum gap between two messages. Default: 2s.
func WithSendInterval(d time.Duration) TelegramOption {
	return func(t *Telegram) {
		if d >= 0 {
			t.interval = d
		}
	}
}

// WithQueueSize sets how many quotes may wait for sending. Default: 100.
func WithQueueSize(n int) TelegramOption {
	return func(t *Telegram) {
		if n > 0 {
			t.queueSize = n
		}
	}
}

// WithMetrics records every send attempt on m.
func WithMetrics(m *observe.Metrics) TelegramOption {
	return func(t *Telegram) { t.metrics = m }
}

// Telegram posts quotes to one Telegram chat.
type Telegram struct {
	sender    Sender
	chatID    int64
	interval  time.Duration
	queueSize int
	metrics   *observe.Metrics
	queue     chan Quote
}

// NewTelegram connects to the Bot API with token and returns a notifier for
// chatID. An empty endpoint selects api.telegram.org; otherwise it is a
// format string such as "https://tg.example.com/bot%s/%s".
func NewTelegram(token, endpoint string, chatID int64, opts ...TelegramOption) (*Telegram, error) {
	var (
		bot *tgbotapi.BotAPI
		err error
	)
	if endpoint == "" {
		bot, err = tgbotapi.NewBotAPI(token)
	} else {
		bot, err = tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	}
	if err != nil {
		return nil, fmt.Errorf("notify: telegram bot: %w", err)
	}
	bot.Debug = false
	slog.Info("telegram notifier initialized", "bot", bot.Self.UserName, "chat_id", chatID)
	return NewTelegramWithSender(bot, chatID, opts...), nil
}

// NewTelegramWithSender returns a notifier that sends through s.
func NewTelegramWithSender(s Sender, chatID int64, opts ...TelegramOption) *Telegram {
	t := &Telegram{
		sender:    s,
		chatID:    chatID,
		interval:  defaultSendInterval,
		queueSize: defaultQueueSize,
	}
	for _, o := range opts {
		o(t)
	}
	t.queue = make(chan Quote, t.queueSize)
	return t
}

// Notify queues q for sending. It returns [ErrQueueFull] instead of blocking.
func (t *Telegram) Notify(_ context.Context, q Quote) error {
	select {
	case t.queue <- q:
		return nil
	default:
		return ErrQueueFull
	}
}

// QueueLen returns the number of quotes waiting to be sent.
func (t *Telegram) QueueLen() int { return len(t.queue) }

// Run sends queued quotes until ctx is done, then sends whatever is still
// queued and returns nil.
func (t *Telegram) Run(ctx context.Context) error {
	var last time.Time
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case q := <-t.queue:
					t.send(context.WithoutCancel(ctx), q)
				default:
					return nil
				}
			}
		case q := <-t.queue:
			if wait := t.interval - time.Since(last); !last.IsZero() && wait > 0 {
				select {
				case <-ctx.Done():
					t.send(context.WithoutCancel(ctx), q)
					continue
				case <-time.After(wait):
				}
			}
			last = time.Now()
			t.send(ctx, q)
		}
	}
}

func (t *Telegram) send(ctx context.Context, q Quote) {
	msg := tgbotapi.NewMessage(t.chatID, FormatHTML(q))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	status := "ok"
	if _, err := t.sender.Send(msg); err != nil {
		status = "error"
		slog.Warn("telegram send failed", "quote", q.Text, "err", err)
	} else {
		slog.Debug("telegram send ok", "quote", q.Text, "queue_length", len(t.queue))
	}
	if t.metrics != nil {
		t.metrics.RecordNotification(ctx, channelTelegram, status)
	}
}

// FormatHTML renders q as a Telegram HTML message.
func FormatHTML(q Quote) string {
	var b strings.Builder
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(q.Text))
	b.WriteString("</b>")
	if q.Heard != "" {
		b.WriteString("\n<i>heard:</i> ")
		b.WriteString(html.EscapeString(q.Heard))
	}
	if q.Pattern != "" {
		b.WriteString("\n<code>")
		b.WriteString(html.EscapeString(q.Pattern))
		b.WriteString("</code>")
	}
	if !q.At.IsZero() {
		b.WriteString("\n")
		b.WriteString(q.At.UTC().Format("15:04:05 MST"))
	}
	return b.String()
}
