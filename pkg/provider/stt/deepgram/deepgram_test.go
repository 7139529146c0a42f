package deepgram

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/bondvox/pkg/provider/stt"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.Request{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "en", q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
	assertEqual(t, "numerals", "true", q.Get("numerals"))
}

func TestBuildURL_LanguageOverriddenByRequest(t *testing.T) {
	p, err := New("key", WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.Request{Language: "fr-FR"})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	assertEqual(t, "language", "fr-FR", u.Query().Get("language"))
}

func TestBuildURL_Keywords(t *testing.T) {
	kws := []stt.KeywordBoost{{Keyword: "BUND", Boost: 2}, {Keyword: "BTP", Boost: 1.5}}

	older, _ := New("key", WithModel("nova-2"))
	rawURL, err := older.buildURL(stt.Request{Keywords: kws})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, _ := url.Parse(rawURL)
	if got := u.Query()["keywords"]; !slices.Equal(got, []string{"BUND:2", "BTP:1.5"}) {
		t.Errorf("keywords = %v, want [BUND:2 BTP:1.5]", got)
	}

	nova3, _ := New("key")
	rawURL, err = nova3.buildURL(stt.Request{Keywords: kws})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, _ = url.Parse(rawURL)
	if got := u.Query()["keyterm"]; !slices.Equal(got, []string{"BUND", "BTP"}) {
		t.Errorf("keyterm = %v, want [BUND BTP]", got)
	}
	if u.Query().Has("keywords") {
		t.Error("nova-3 request must not carry keywords")
	}
}

func TestNew_EmptyKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

// ---- response parsing ----

const sampleResponse = `{
  "metadata": {"duration": 3.5},
  "results": {"channels": [{"alternatives": [{
    "transcript": "I can buy 72 million of bund October 71",
    "confidence": 0.93,
    "words": [
      {"word": "i", "start": 0.1, "end": 0.2, "confidence": 0.99},
      {"word": "bund", "start": 1.5, "end": 1.9, "confidence": 0.41}
    ]
  }]}]}
}`

func TestParseDeepgramResponse(t *testing.T) {
	tr, ok := parseDeepgramResponse([]byte(sampleResponse))
	if !ok {
		t.Fatal("parseDeepgramResponse returned ok=false")
	}
	assertEqual(t, "text", "I can buy 72 million of bund October 71", tr.Text)
	if tr.Confidence != 0.93 {
		t.Errorf("confidence = %v, want 0.93", tr.Confidence)
	}
	if tr.Duration != 3500*time.Millisecond {
		t.Errorf("duration = %v, want 3.5s", tr.Duration)
	}
	if len(tr.Words) != 2 {
		t.Fatalf("words = %d, want 2", len(tr.Words))
	}
	if tr.Words[1].Word != "bund" || tr.Words[1].Confidence != 0.41 {
		t.Errorf("word[1] = %+v", tr.Words[1])
	}
	if tr.Words[1].Start != 1500*time.Millisecond {
		t.Errorf("word[1].Start = %v, want 1.5s", tr.Words[1].Start)
	}
}

func TestParseDeepgramResponse_Empty(t *testing.T) {
	for _, body := range []string{`{}`, `{"results":{"channels":[]}}`, `not json`} {
		if _, ok := parseDeepgramResponse([]byte(body)); ok {
			t.Errorf("parseDeepgramResponse(%q) ok=true, want false", body)
		}
	}
}

// ---- end-to-end against a fake server ----

func TestTranscribe(t *testing.T) {
	var gotAuth, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	p, err := New("secret", WithEndpoint(srv.URL+"/v1/listen"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tr, err := p.Transcribe(context.Background(), stt.Request{
		Audio: stt.Audio{Data: []byte("wav-bytes"), ContentType: "audio/wav"},
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	assertEqual(t, "authorization", "Token secret", gotAuth)
	assertEqual(t, "content-type", "audio/wav", gotType)
	assertEqual(t, "body", "wav-bytes", string(gotBody))
	assertEqual(t, "text", "I can buy 72 million of bund October 71", tr.Text)
}

func TestTranscribe_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"err_msg":"bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, _ := New("wrong", WithEndpoint(srv.URL))

	_, err := p.Transcribe(context.Background(), stt.Request{Audio: stt.Audio{Data: []byte{1}}})
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("err = %v, want HTTP 401", err)
	}

	_, err = p.Transcribe(context.Background(), stt.Request{})
	if !errors.Is(err, stt.ErrEmptyAudio) {
		t.Errorf("err = %v, want ErrEmptyAudio", err)
	}
}

// ---- helpers ----

func assertEqual(t *testing.T, field, want, got string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: want %q, got %q", field, want, got)
	}
}
