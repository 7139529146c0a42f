package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/bondvox/internal/observe"
)

// fakeSender records every message it is asked to send.
type fakeSender struct {
	mu   sync.Mutex
	msgs []tgbotapi.MessageConfig
	err  error
	sent chan struct{}
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(chan struct{}, 100)}
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.msgs = append(f.msgs, m)
	}
	f.sent <- struct{}{}
	return tgbotapi.Message{}, f.err
}

func (f *fakeSender) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.MessageConfig(nil), f.msgs...)
}

func waitSent(t *testing.T, f *fakeSender, n int) {
	t.Helper()
	for range n {
		select {
		case <-f.sent:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %d sends", n)
		}
	}
}

func TestTelegram_SendsQueuedQuotes(t *testing.T) {
	t.Parallel()
	f := newFakeSender()
	tg := NewTelegramWithSender(f, -100200300, WithSendInterval(0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tg.Run(ctx) }()

	for _, text := range []string{"DBR 06/30 OFFER", "BID 5M OAT 05/29", "SELL 10M BTP 03/30 VS DBR 06/30"} {
		if err := tg.Notify(ctx, Quote{Text: text}); err != nil {
			t.Fatalf("Notify: %v", err)
		}
	}
	waitSent(t, f, 3)
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v, want nil", err)
	}

	msgs := f.messages()
	if len(msgs) != 3 {
		t.Fatalf("sent %d messages, want 3", len(msgs))
	}
	if msgs[0].ChatID != -100200300 {
		t.Errorf("chat id = %d, want -100200300", msgs[0].ChatID)
	}
	if msgs[0].ParseMode != tgbotapi.ModeHTML {
		t.Errorf("parse mode = %q, want HTML", msgs[0].ParseMode)
	}
	if !strings.Contains(msgs[2].Text, "SELL 10M BTP 03/30 VS DBR 06/30") {
		t.Errorf("third message = %q", msgs[2].Text)
	}
}

func TestTelegram_QueueFull(t *testing.T) {
	t.Parallel()
	tg := NewTelegramWithSender(newFakeSender(), 1, WithQueueSize(1))

	if err := tg.Notify(context.Background(), Quote{Text: "a"}); err != nil {
		t.Fatalf("first Notify: %v", err)
	}
	if err := tg.Notify(context.Background(), Quote{Text: "b"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("second Notify = %v, want ErrQueueFull", err)
	}
	if tg.QueueLen() != 1 {
		t.Errorf("QueueLen = %d, want 1", tg.QueueLen())
	}
}

func TestTelegram_DrainsOnCancel(t *testing.T) {
	t.Parallel()
	f := newFakeSender()
	tg := NewTelegramWithSender(f, 1, WithSendInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = tg.Notify(context.Background(), Quote{Text: "DBR 06/30 OFFER"})
	_ = tg.Notify(context.Background(), Quote{Text: "OAT 05/29 OFFER"})

	if err := tg.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := len(f.messages()); got != 2 {
		t.Errorf("sent %d messages on shutdown, want 2", got)
	}
	if tg.QueueLen() != 0 {
		t.Errorf("QueueLen = %d, want 0", tg.QueueLen())
	}
}

func TestTelegram_RecordsMetrics(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}

	f := newFakeSender()
	f.err = errors.New("Too Many Requests: retry after 5")
	tg := NewTelegramWithSender(f, 1, WithMetrics(m))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = tg.Notify(context.Background(), Quote{Text: "DBR 06/30 OFFER"})
	_ = tg.Run(ctx)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "bondvox.notifications" {
				continue
			}
			sum := met.Data.(metricdata.Sum[int64])
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value("status"); ok && v.AsString() == "error" && dp.Value == 1 {
					return
				}
			}
		}
	}
	t.Error("expected one notification with status=error")
}

func TestFormatHTML(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 3, 2, 9, 30, 15, 0, time.UTC)
	got := FormatHTML(Quote{
		Text:    "DBR 06/30 OFFER",
		Pattern: "trailing_directional",
		Heard:   "bund <6> 30 offer & done",
		At:      at,
	})
	want := "<b>DBR 06/30 OFFER</b>\n<i>heard:</i> bund &lt;6&gt; 30 offer &amp; done\n<code>trailing_directional</code>\n09:30:15 UTC"
	if got != want {
		t.Errorf("FormatHTML =\n%q\nwant\n%q", got, want)
	}

	if got := FormatHTML(Quote{Text: "OAT 05/29 OFFER"}); got != "<b>OAT 05/29 OFFER</b>" {
		t.Errorf("minimal FormatHTML = %q", got)
	}
}
