// Package whisper provides a transcriber backed by a local whisper.cpp server.
//
// It talks to a running whisper-server binary, which exposes a REST API at
// POST /inference. The uploaded recording is forwarded as-is in the "file"
// form field; start the server with --convert when clients upload formats
// other than 16 kHz WAV.
//
// Usage:
//
//	t, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("en"),
//	    whisper.WithModel("base.en"),
//	)
//	tr, err := t.Transcribe(ctx, stt.Request{Audio: stt.Audio{Data: wav}})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/MrWong99/bondvox/pkg/provider/stt"
)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second

	// maxResponseBytes bounds the JSON body read from the server.
	maxResponseBytes = 1 << 20
)

// Compile-time assertion that Transcriber implements stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

// Option is a functional option for configuring a Transcriber.
type Option func(*Transcriber)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with.
func WithModel(model string) Option {
	return func(t *Transcriber) {
		t.model = model
	}
}

// WithLanguage sets the BCP-47 language code sent to the whisper.cpp server
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(t *Transcriber) {
		t.language = lang
	}
}

// WithHTTPClient replaces the default HTTP client (30 s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transcriber) {
		if c != nil {
			t.httpClient = c
		}
	}
}

// Transcriber implements stt.Transcriber backed by a whisper.cpp HTTP server.
type Transcriber struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a new Transcriber that connects to the whisper.cpp HTTP server
// at serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Transcriber, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	t := &Transcriber{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Transcribe POSTs the recording to the /inference endpoint as
// multipart/form-data and returns the transcribed text. Keywords are sent as
// the decoder's initial prompt.
func (t *Transcriber) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if err := req.Validate(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: %w", err)
	}

	lang := req.Language
	if lang == "" {
		lang = t.language
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	// Primary audio field.
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, req.Audio.Name()))
	h.Set("Content-Type", req.Audio.MIME())
	fw, err := mw.CreatePart(h)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(req.Audio.Data); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: write audio data: %w", err)
	}

	// Optional hint fields.
	fields := map[string]string{
		"language":        lang,
		"model":           t.model,
		"prompt":          stt.KeywordPrompt(req.Keywords),
		"response_format": "json",
	}
	for _, name := range []string{"language", "model", "prompt", "response_format"} {
		if fields[name] == "" {
			continue
		}
		if err := mw.WriteField(name, fields[name]); err != nil {
			return stt.Transcript{}, fmt.Errorf("whisper: write %s field: %w", name, err)
		}
	}

	if err := mw.Close(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	endpoint := t.serverURL + "/inference"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stt.Transcript{}, fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: read response body: %w", err)
	}

	var result struct {
		Text  string `json:"text"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	if result.Error != "" {
		return stt.Transcript{}, fmt.Errorf("whisper: server error: %s", result.Error)
	}

	return stt.Transcript{Text: strings.TrimSpace(result.Text)}, nil
}
