package whisper_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/bondvox/pkg/provider/stt"
	"github.com/MrWong99/bondvox/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

// capturedForm holds the multipart fields seen by the mock server.
type capturedForm struct {
	fields   map[string]string
	filename string
	audio    []byte
}

// newMockServer creates a test server that responds to POST /inference with a
// JSON body containing responseText and records the submitted form.
func newMockServer(t *testing.T, responseText string, got *capturedForm, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if calls != nil {
			calls.Add(1)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if got != nil {
			got.fields = map[string]string{}
			for k, v := range r.MultipartForm.Value {
				got.fields[k] = v[0]
			}
			f, hdr, err := r.FormFile("file")
			if err == nil {
				got.filename = hdr.Filename
				got.audio, _ = io.ReadAll(f)
				f.Close()
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func mustNew(t *testing.T, url string, opts ...whisper.Option) *whisper.Transcriber {
	t.Helper()
	tr, err := whisper.New(url, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tr
}

// ---- tests ------------------------------------------------------------------

func TestNew_EmptyURL(t *testing.T) {
	t.Parallel()
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL")
	}
}

func TestTranscribe_Success(t *testing.T) {
	t.Parallel()

	var form capturedForm
	var calls atomic.Int32
	srv := newMockServer(t, " I can buy 72 million of bund October 71 ", &form, &calls)
	tr := mustNew(t, srv.URL+"/", whisper.WithModel("base.en"))

	got, err := tr.Transcribe(context.Background(), stt.Request{
		Audio:    stt.Audio{Data: []byte("RIFFfake"), Filename: "quote.webm", ContentType: "audio/webm"},
		Keywords: []stt.KeywordBoost{{Keyword: "BUND"}, {Keyword: "BTP"}},
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Text != "I can buy 72 million of bund October 71" {
		t.Errorf("Text = %q", got.Text)
	}
	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1", calls.Load())
	}
	if form.filename != "quote.webm" {
		t.Errorf("filename = %q, want quote.webm", form.filename)
	}
	if string(form.audio) != "RIFFfake" {
		t.Errorf("audio = %q, want RIFFfake", form.audio)
	}
	if form.fields["language"] != "en" {
		t.Errorf("language = %q, want en", form.fields["language"])
	}
	if form.fields["model"] != "base.en" {
		t.Errorf("model = %q, want base.en", form.fields["model"])
	}
	if !strings.Contains(form.fields["prompt"], "BUND") {
		t.Errorf("prompt = %q, want it to mention BUND", form.fields["prompt"])
	}
}

func TestTranscribe_RequestLanguageOverrides(t *testing.T) {
	t.Parallel()

	var form capturedForm
	srv := newMockServer(t, "ok", &form, nil)
	tr := mustNew(t, srv.URL, whisper.WithLanguage("en"))

	if _, err := tr.Transcribe(context.Background(), stt.Request{
		Audio:    stt.Audio{Data: []byte{1}},
		Language: "de",
	}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if form.fields["language"] != "de" {
		t.Errorf("language = %q, want de", form.fields["language"])
	}
	if _, ok := form.fields["model"]; ok {
		t.Error("model field sent although no model was configured")
	}
	if form.filename != "audio.wav" {
		t.Errorf("filename = %q, want default audio.wav", form.filename)
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newMockServer(t, "unused", nil, &calls)
	tr := mustNew(t, srv.URL)

	_, err := tr.Transcribe(context.Background(), stt.Request{})
	if !errors.Is(err, stt.ErrEmptyAudio) {
		t.Fatalf("err = %v, want ErrEmptyAudio", err)
	}
	if calls.Load() != 0 {
		t.Errorf("server contacted %d times for empty audio", calls.Load())
	}
}

func TestTranscribe_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := mustNew(t, srv.URL).Transcribe(context.Background(), stt.Request{Audio: stt.Audio{Data: []byte{1}}})
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Fatalf("err = %v, want HTTP 500 error", err)
	}
}

func TestTranscribe_ServerReportedError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":"failed to read audio"}`))
	}))
	defer srv.Close()

	_, err := mustNew(t, srv.URL).Transcribe(context.Background(), stt.Request{Audio: stt.Audio{Data: []byte{1}}})
	if err == nil || !strings.Contains(err.Error(), "failed to read audio") {
		t.Fatalf("err = %v, want server error message", err)
	}
}

func TestTranscribe_CancelledContext(t *testing.T) {
	t.Parallel()

	srv := newMockServer(t, "unused", nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := mustNew(t, srv.URL).Transcribe(ctx, stt.Request{Audio: stt.Audio{Data: []byte{1}}}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
