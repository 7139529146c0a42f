package llmcorrect_test

import (
	"context"
	"strings"
	"testing"

	"github.com/MrWong99/bondvox/internal/transcript/llmcorrect"
	llm "github.com/MrWong99/bondvox/pkg/provider/llm"
	"github.com/MrWong99/bondvox/pkg/provider/llm/mock"
)

var vocabulary = []string{"BUND", "BTP", "OAT", "GUILDER"}

// respond returns a mock provider that answers every call with content.
func respond(content string) *mock.Provider {
	return &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: content},
	}
}

func TestCorrector_CallsLLMWithVocabulary(t *testing.T) {
	t.Parallel()

	provider := respond(`{"corrected_text": "I can buy BUND at 99", "corrections": []}`)
	c := llmcorrect.New(provider)

	_, _, err := c.Correct(context.Background(), "I can buy bunt at 99", vocabulary, nil)
	if err != nil {
		t.Fatalf("Correct returned error: %v", err)
	}

	if provider.CallCount() != 1 {
		t.Fatalf("expected 1 Complete call, got %d", provider.CallCount())
	}

	req, _ := provider.LastRequest()
	if !req.JSON {
		t.Error("request did not ask for JSON output")
	}
	for _, v := range vocabulary {
		if !strings.Contains(req.SystemPrompt, "- "+v+"\n") {
			t.Errorf("system prompt missing instrument %q\nprompt:\n%s", v, req.SystemPrompt)
		}
	}
	if len(req.Messages) != 1 {
		t.Fatalf("request has %d messages, want 1", len(req.Messages))
	}
	if req.Messages[0].Role != llm.RoleUser {
		t.Errorf("role = %q, want %q", req.Messages[0].Role, llm.RoleUser)
	}
	if !strings.Contains(req.Messages[0].Content, "I can buy bunt at 99") {
		t.Errorf("user message missing original text, got: %s", req.Messages[0].Content)
	}
}

func TestCorrector_ParsesJSONCorrections(t *testing.T) {
	t.Parallel()

	provider := respond(`{
  "corrected_text": "I can buy BUND at 99",
  "corrections": [{"original": "bunt", "corrected": "BUND", "confidence": 0.9}]
}`)
	c := llmcorrect.New(provider)

	text, corrections, err := c.Correct(context.Background(), "I can buy bunt at 99", vocabulary, nil)
	if err != nil {
		t.Fatalf("Correct returned error: %v", err)
	}
	if text != "I can buy BUND at 99" {
		t.Errorf("text = %q, want %q", text, "I can buy BUND at 99")
	}
	if len(corrections) != 1 {
		t.Fatalf("got %d corrections, want 1", len(corrections))
	}
	if corrections[0].Original != "bunt" {
		t.Errorf("corrections[0].Original=%q, want %q", corrections[0].Original, "bunt")
	}
	if corrections[0].Corrected != "BUND" {
		t.Errorf("corrections[0].Corrected=%q, want %q", corrections[0].Corrected, "BUND")
	}
	if corrections[0].Confidence != 0.9 {
		t.Errorf("corrections[0].Confidence=%f, want 0.9", corrections[0].Confidence)
	}
}

func TestCorrector_RejectsNonVocabularyCorrection(t *testing.T) {
	t.Parallel()

	provider := respond(`{
  "corrected_text": "I can buy GILT at 99",
  "corrections": [{"original": "guilt", "corrected": "GILT", "confidence": 0.95}]
}`)
	c := llmcorrect.New(provider)

	original := "I can buy guilt at 99"
	text, corrections, err := c.Correct(context.Background(), original, vocabulary, nil)
	if err != nil {
		t.Fatalf("Correct returned error: %v", err)
	}
	if text != original {
		t.Errorf("text = %q, want original %q", text, original)
	}
	if len(corrections) != 0 {
		t.Errorf("got %d corrections, want 0", len(corrections))
	}
}

func TestCorrector_RevertsUndeclaredEdits(t *testing.T) {
	t.Parallel()

	// The model fixes the instrument but also "helpfully" moves the price.
	provider := respond(`{
  "corrected_text": "I can buy BUND at 98",
  "corrections": [{"original": "bunt", "corrected": "BUND", "confidence": 0.9}]
}`)
	c := llmcorrect.New(provider)

	text, corrections, err := c.Correct(context.Background(), "I can buy bunt at 99", vocabulary, nil)
	if err != nil {
		t.Fatalf("Correct returned error: %v", err)
	}
	if text != "I can buy BUND at 99" {
		t.Errorf("text = %q, want %q", text, "I can buy BUND at 99")
	}
	if len(corrections) != 1 {
		t.Errorf("got %d corrections, want 1", len(corrections))
	}
}

func TestCorrector_FallbackOnUnparseable(t *testing.T) {
	t.Parallel()

	provider := respond("I cannot correct this transcript because it's ambiguous.")
	c := llmcorrect.New(provider)

	original := "I can buy bunt at 99"
	text, corrections, err := c.Correct(context.Background(), original, vocabulary, nil)
	if err != nil {
		t.Fatalf("Correct returned error on unparseable response: %v", err)
	}
	if text != original {
		t.Errorf("text=%q, want original %q", text, original)
	}
	if corrections != nil {
		t.Errorf("corrections=%v, want nil on fallback", corrections)
	}
}

func TestCorrector_EmptyCorrectedTextKeepsOriginal(t *testing.T) {
	t.Parallel()

	provider := respond(`{"corrected_text": "", "corrections": []}`)
	c := llmcorrect.New(provider)

	text, _, err := c.Correct(context.Background(), "OAT May 55 bid", vocabulary, nil)
	if err != nil {
		t.Fatalf("Correct returned error: %v", err)
	}
	if text != "OAT May 55 bid" {
		t.Errorf("text=%q, want original", text)
	}
}

func TestCorrector_MarkdownStripping(t *testing.T) {
	t.Parallel()

	provider := respond("```json\n" +
		`{"corrected_text": "sell 5 million BTP", "corrections": [{"original": "beeps", "corrected": "BTP", "confidence": 0.8}]}` +
		"\n```")
	c := llmcorrect.New(provider)

	text, _, err := c.Correct(context.Background(), "sell 5 million beeps", vocabulary, nil)
	if err != nil {
		t.Fatalf("Correct returned error: %v", err)
	}
	if text != "sell 5 million BTP" {
		t.Errorf("text=%q, want %q", text, "sell 5 million BTP")
	}
}

func TestCorrector_EmptyVocabulary(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{}
	c := llmcorrect.New(provider)

	text, corrections, err := c.Correct(context.Background(), "some text", nil, nil)
	if err != nil {
		t.Fatalf("Correct returned error: %v", err)
	}
	if text != "some text" {
		t.Errorf("text=%q, want original when vocabulary is empty", text)
	}
	if len(corrections) != 0 {
		t.Errorf("expected no corrections, got %d", len(corrections))
	}
	if provider.CallCount() != 0 {
		t.Errorf("expected 0 LLM calls for empty vocabulary, got %d", provider.CallCount())
	}
}

func TestCorrector_LLMError(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{CompleteErr: context.DeadlineExceeded}
	c := llmcorrect.New(provider)

	text, _, err := c.Correct(context.Background(), "buy bunt", vocabulary, nil)
	if err == nil {
		t.Fatal("expected error from LLM failure, got nil")
	}
	if text != "buy bunt" {
		t.Errorf("text=%q, want original on error", text)
	}
}

func TestCorrector_WithTemperature(t *testing.T) {
	t.Parallel()

	provider := respond(`{"corrected_text": "hello", "corrections": []}`)
	c := llmcorrect.New(provider, llmcorrect.WithTemperature(0.5))

	if _, _, err := c.Correct(context.Background(), "hello", vocabulary, nil); err != nil {
		t.Fatalf("Correct returned error: %v", err)
	}
	if provider.CallCount() == 0 {
		t.Fatal("no Complete calls recorded")
	}
	if got := provider.CompleteCalls[0].Req.Temperature; got != 0.5 {
		t.Errorf("Temperature=%f, want 0.5", got)
	}
}

func TestCorrector_LowConfidenceSpansInUserMessage(t *testing.T) {
	t.Parallel()

	provider := respond(`{"corrected_text": "buy OAT", "corrections": []}`)
	c := llmcorrect.New(provider)

	spans := []string{"oats", "boat"}
	if _, _, err := c.Correct(context.Background(), "buy boat", vocabulary, spans); err != nil {
		t.Fatalf("Correct returned error: %v", err)
	}

	userMsg := provider.CompleteCalls[0].Req.Messages[0].Content
	for _, span := range spans {
		if !strings.Contains(userMsg, span) {
			t.Errorf("user message missing low-confidence span %q; got:\n%s", span, userMsg)
		}
	}
}
