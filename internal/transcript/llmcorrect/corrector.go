// Package llmcorrect implements a language-model-based transcript correction
// stage that resolves misheard instrument names not caught by the phonetic
// matcher.
//
// The [Corrector] sends the transcript text to an [llm.Provider] along with
// the instrument vocabulary. The model is instructed (via a conservative
// system prompt) to fix only words that look like misheard instrument names
// and to return a structured JSON response containing the corrected text and
// an itemised list of substitutions.
//
// Model output is never trusted blindly. Declared corrections must target a
// vocabulary entry, and every token-level change in the corrected text must
// be backed by a declared correction; anything else is reverted. When the
// response cannot be parsed, the corrector returns the original text
// unchanged rather than surfacing an error.
package llmcorrect

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	llm "github.com/MrWong99/bondvox/pkg/provider/llm"
)

const (
	defaultTemperature = 0.1
)

// systemPromptTemplate is the base system prompt. The vocabulary is
// appended at call time so each request carries the configured lexicon.
const systemPromptTemplate = `You are a transcript correction assistant for a bond trading desk.

Traders speak quotes such as "I can buy 10 million bunds at 99" or "OAT May 55 bid". The transcript was produced by a speech recogniser that often mishears government bond names.

Your task: fix misheard instrument names in the provided transcript text.

Rules:
- ONLY correct words that appear to be misheard versions of the known instrument names listed below.
- Do NOT change numbers, prices, sizes, months, years, or the words BUY, SELL, BID, OFFER, AT, IN, OF, AGAINST, MILLION.
- Do NOT change grammar, punctuation, or sentence structure.
- Be conservative. If you are not confident a word is a misheard instrument name, leave it unchanged.
- Instrument names in the corrected text must match the spelling from the list exactly.

Known instruments:
%s

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "corrected_text": "<full corrected transcript>",
  "corrections": [
    {"original": "<original word>", "corrected": "<instrument name>", "confidence": <0.0-1.0>}
  ]
}

If no corrections are needed, return an empty corrections array and corrected_text equal to the input.`

// Correction captures a single word-level substitution produced by the LLM
// corrector. The pipeline maps these to [transcript.Correction] values with
// Method set to "llm".
type Correction struct {
	// Original is the word as it appeared in the input transcript.
	Original string

	// Corrected is the replacement instrument name suggested by the LLM.
	Corrected string

	// Confidence is the LLM's reported confidence for this substitution (0.0–1.0).
	Confidence float64
}

// llmResponse is the expected JSON structure returned by the LLM.
type llmResponse struct {
	CorrectedText string `json:"corrected_text"`
	Corrections   []struct {
		Original   string  `json:"original"`
		Corrected  string  `json:"corrected"`
		Confidence float64 `json:"confidence"`
	} `json:"corrections"`
}

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithTemperature sets the LLM sampling temperature. Lower values produce
// more deterministic corrections. Default: 0.1.
func WithTemperature(temp float64) Option {
	return func(c *Corrector) {
		c.temperature = temp
	}
}

// Corrector uses an [llm.Provider] to correct misheard instrument names in
// transcript text. It is safe for concurrent use.
//
// Model selection follows the one-provider-per-model pattern: to use a
// specific model for correction, construct the [llm.Provider] with that
// model configured, rather than overriding per-request.
type Corrector struct {
	llm         llm.Provider
	temperature float64
}

// New returns a new [Corrector] backed by the given [llm.Provider].
// Apply [Option] values to override the default temperature.
func New(provider llm.Provider, opts ...Option) *Corrector {
	c := &Corrector{
		llm:         provider,
		temperature: defaultTemperature,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct sends text to the LLM with vocabulary as context and asks it to fix
// misheard instrument names. lowConfidenceSpans are highlighted in the user
// message as candidate spans that may be misheard.
//
// The returned text only differs from text where a declared correction to a
// vocabulary entry explains the change.
//
// When the LLM response is unparseable, Correct returns the original text
// unchanged with a nil corrections slice and a nil error.
//
// Context cancellation and network errors are returned as non-nil errors.
func (c *Corrector) Correct(
	ctx context.Context,
	text string,
	vocabulary []string,
	lowConfidenceSpans []string,
) (string, []Correction, error) {
	if len(vocabulary) == 0 || strings.TrimSpace(text) == "" {
		return text, nil, nil
	}

	userMsg := text
	if len(lowConfidenceSpans) > 0 {
		userMsg = fmt.Sprintf(
			"Transcript: %s\n\nLow-confidence spans that may be misheard: %s",
			text,
			strings.Join(lowConfidenceSpans, ", "),
		)
	}

	req := llm.CompletionRequest{
		SystemPrompt: buildSystemPrompt(vocabulary),
		Temperature:  c.temperature,
		JSON:         true,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: userMsg},
		},
	}

	resp, err := c.llm.Complete(ctx, req)
	if err != nil {
		return text, nil, fmt.Errorf("llm corrector: complete: %w", err)
	}

	corrected, corrections, parseErr := parseResponse(resp.Content, text)
	if parseErr != nil {
		return text, nil, nil //nolint:nilerr // unparseable output leaves the transcript as is
	}

	corrections = restrictToVocabulary(corrections, vocabulary)
	verified, confirmed := verifyCorrectedText(text, corrected, corrections)
	return verified, confirmed, nil
}

// restrictToVocabulary drops corrections whose replacement is not a
// vocabulary entry.
func restrictToVocabulary(corrections []Correction, vocabulary []string) []Correction {
	known := make(map[string]struct{}, len(vocabulary))
	for _, v := range vocabulary {
		known[lookupKey(strings.Fields(v))] = struct{}{}
	}
	kept := corrections[:0]
	for _, c := range corrections {
		if _, ok := known[lookupKey(strings.Fields(c.Corrected))]; ok {
			kept = append(kept, c)
		}
	}
	return kept
}

// buildSystemPrompt formats the system prompt template with the vocabulary.
func buildSystemPrompt(vocabulary []string) string {
	var sb strings.Builder
	for _, e := range vocabulary {
		sb.WriteString("- ")
		sb.WriteString(e)
		sb.WriteByte('\n')
	}
	return fmt.Sprintf(systemPromptTemplate, sb.String())
}

// parseResponse attempts to unmarshal the LLM output into an [llmResponse].
// It strips markdown code fences before parsing.
func parseResponse(content, originalText string) (string, []Correction, error) {
	cleaned := stripMarkdown(content)

	var r llmResponse
	if err := json.Unmarshal([]byte(cleaned), &r); err != nil {
		return "", nil, fmt.Errorf("llm corrector: parse response: %w", err)
	}

	if r.CorrectedText == "" {
		return originalText, nil, nil
	}

	corrections := make([]Correction, 0, len(r.Corrections))
	for _, c := range r.Corrections {
		if c.Original == c.Corrected || c.Original == "" {
			continue
		}
		corrections = append(corrections, Correction{
			Original:   c.Original,
			Corrected:  c.Corrected,
			Confidence: c.Confidence,
		})
	}

	return r.CorrectedText, corrections, nil
}

// stripMarkdown removes optional markdown code fences (```json ... ```) that
// some models prepend and append to JSON output.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
