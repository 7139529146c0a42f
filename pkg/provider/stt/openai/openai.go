// Package openai provides a transcriber backed by the OpenAI audio
// transcription API (whisper-1 and the gpt-4o transcribe models).
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/bondvox/pkg/provider/stt"
)

const defaultLanguage = "en"

// Transcriber implements stt.Transcriber using the OpenAI API.
type Transcriber struct {
	client   oai.Client
	model    string
	language string
}

var _ stt.Transcriber = (*Transcriber)(nil)

// config holds optional configuration for the transcriber.
type config struct {
	baseURL    string
	language   string
	timeout    time.Duration
	maxRetries int
}

// Option is a functional option for Transcriber.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Any server that
// implements the /audio/transcriptions endpoint works (e.g. faster-whisper
// servers).
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithLanguage sets the default ISO-639-1 language (e.g. "en"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.language = lang
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithMaxRetries sets how often the SDK retries failed requests. A negative
// value keeps the SDK default.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// New constructs a new OpenAI Transcriber. An empty model selects whisper-1.
func New(apiKey string, model string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		model = string(oai.AudioModelWhisper1)
	}

	cfg := &config{language: defaultLanguage, maxRetries: -1}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}

	return &Transcriber{
		client:   oai.NewClient(reqOpts...),
		model:    model,
		language: cfg.language,
	}, nil
}

// Transcribe implements stt.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if err := req.Validate(); err != nil {
		return stt.Transcript{}, fmt.Errorf("openai: %w", err)
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, t.buildParams(req))
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("openai: transcription: %w", err)
	}
	return stt.Transcript{Text: strings.TrimSpace(resp.Text)}, nil
}

// buildParams converts a Request into OpenAI SDK params.
func (t *Transcriber) buildParams(req stt.Request) oai.AudioTranscriptionNewParams {
	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(req.Audio.Data), req.Audio.Name(), req.Audio.MIME()),
		Model: oai.AudioModel(t.model),
	}

	lang := req.Language
	if lang == "" {
		lang = t.language
	}
	if lang != "" {
		// The API expects ISO-639-1; strip any region suffix.
		lang, _, _ = strings.Cut(lang, "-")
		params.Language = oai.String(strings.ToLower(lang))
	}
	if prompt := stt.KeywordPrompt(req.Keywords); prompt != "" {
		params.Prompt = oai.String(prompt)
	}
	return params
}
