// Package deepgram provides a Deepgram-backed transcriber using the Deepgram
// pre-recorded REST API. It implements the stt.Transcriber interface.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/bondvox/pkg/provider/stt"
)

const (
	deepgramEndpoint = "https://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"
	defaultTimeout   = 30 * time.Second
)

// Option is a functional option for configuring the Deepgram Transcriber.
type Option func(*Transcriber)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "nova-2").
func WithModel(model string) Option {
	return func(t *Transcriber) {
		t.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(t *Transcriber) {
		t.language = language
	}
}

// WithEndpoint overrides the Deepgram listen endpoint. Used by tests and
// self-hosted deployments.
func WithEndpoint(endpoint string) Option {
	return func(t *Transcriber) {
		t.endpoint = endpoint
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

// Transcriber implements stt.Transcriber backed by the Deepgram REST API.
type Transcriber struct {
	apiKey     string
	model      string
	language   string
	endpoint   string
	httpClient *http.Client
}

var _ stt.Transcriber = (*Transcriber)(nil)

// New creates a new Deepgram Transcriber. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	t := &Transcriber{
		apiKey:     apiKey,
		model:      defaultModel,
		language:   defaultLanguage,
		endpoint:   deepgramEndpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Transcribe uploads the recording body to Deepgram and returns the first
// alternative of the first channel.
func (t *Transcriber) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if err := req.Validate(); err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: %w", err)
	}

	u, err := t.buildURL(req)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(req.Audio.Data))
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Token "+t.apiKey)
	httpReq.Header.Set("Content-Type", req.Audio.MIME())

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return stt.Transcript{}, fmt.Errorf("deepgram: server returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	tr, ok := parseDeepgramResponse(data)
	if !ok {
		return stt.Transcript{}, errors.New("deepgram: response carried no transcript")
	}
	return tr, nil
}

// buildURL constructs the listen endpoint URL for the given request.
func (t *Transcriber) buildURL(req stt.Request) (string, error) {
	u, err := url.Parse(t.endpoint)
	if err != nil {
		return "", err
	}

	lang := req.Language
	if lang == "" {
		lang = t.language
	}

	q := u.Query()
	q.Set("model", t.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("numerals", "true")

	for _, kw := range req.Keywords {
		// nova-3 replaced boosted keywords with plain key terms.
		if strings.HasPrefix(t.model, "nova-3") {
			q.Add("keyterm", kw.Keyword)
			continue
		}
		// Deepgram keyword format: word:boost (e.g., "BUND:2")
		q.Add("keywords", fmt.Sprintf("%s:%g", kw.Keyword, kw.Boost))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the JSON structure returned by the pre-recorded API.
type deepgramResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
				Words      []struct {
					Word       string  `json:"word"`
					Start      float64 `json:"start"`
					End        float64 `json:"end"`
					Confidence float64 `json:"confidence"`
				} `json:"words"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// parseDeepgramResponse parses a raw Deepgram response into a Transcript.
// Returns (Transcript, true) on success, or (zero, false) if the body holds
// no alternative.
func parseDeepgramResponse(data []byte) (stt.Transcript, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return stt.Transcript{}, false
	}
	if len(resp.Results.Channels) == 0 || len(resp.Results.Channels[0].Alternatives) == 0 {
		return stt.Transcript{}, false
	}

	alt := resp.Results.Channels[0].Alternatives[0]
	words := make([]stt.WordDetail, 0, len(alt.Words))
	for _, w := range alt.Words {
		words = append(words, stt.WordDetail{
			Word:       w.Word,
			Start:      seconds(w.Start),
			End:        seconds(w.End),
			Confidence: w.Confidence,
		})
	}

	return stt.Transcript{
		Text:       alt.Transcript,
		Confidence: alt.Confidence,
		Words:      words,
		Duration:   seconds(resp.Metadata.Duration),
	}, true
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
