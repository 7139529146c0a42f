package transcript

import (
	"context"
	"strings"
	"unicode"

	"github.com/MrWong99/bondvox/internal/transcript/llmcorrect"
	"github.com/MrWong99/bondvox/internal/transcript/phonetic"
	"github.com/MrWong99/bondvox/pkg/provider/stt"
)

const (
	defaultLLMConfidenceThreshold = 0.5
	defaultMaxWindow              = 3
)

// PipelineOption is a functional option for configuring a [CorrectionPipeline].
type PipelineOption func(*CorrectionPipeline)

// WithPhoneticMatcher attaches a [PhoneticMatcher] as the first correction
// stage. When nil (the default), the phonetic stage is skipped entirely.
func WithPhoneticMatcher(m PhoneticMatcher) PipelineOption {
	return func(p *CorrectionPipeline) {
		p.phonetic = m
	}
}

// WithLLMCorrector attaches an [llmcorrect.Corrector] as the second correction
// stage. When nil (the default), the LLM stage is skipped entirely.
func WithLLMCorrector(c *llmcorrect.Corrector) PipelineOption {
	return func(p *CorrectionPipeline) {
		p.llmCorrector = c
	}
}

// WithLLMOnLowConfidence sets the STT word-confidence threshold below which a
// word is passed to the LLM corrector. Default: 0.5.
//
// Transcripts without per-word confidence data are always submitted when the
// LLM corrector is configured.
func WithLLMOnLowConfidence(threshold float64) PipelineOption {
	return func(p *CorrectionPipeline) {
		p.llmThreshold = threshold
	}
}

// WithProtected sets a predicate for tokens the phonetic stage must never
// touch, typically the quote grammar ("BUY", "AT", "MILLION", month names).
// Tokens containing digits are always protected.
func WithProtected(fn func(token string) bool) PipelineOption {
	return func(p *CorrectionPipeline) {
		p.protected = fn
	}
}

// WithMaxWindow sets the longest run of adjacent tokens the phonetic stage
// tries as a single candidate, so that "gil t" can still resolve to "GILT".
// Default: 3.
func WithMaxWindow(n int) PipelineOption {
	return func(p *CorrectionPipeline) {
		if n > 0 {
			p.maxWindow = n
		}
	}
}

// CorrectionPipeline is the two-stage transcript correction implementation of
// [Pipeline]. Stages are optional and are applied in order:
//
//  1. [PhoneticMatcher]: in-process phonetic vocabulary alignment.
//  2. [llmcorrect.Corrector]: LLM-assisted correction of low-confidence words.
//
// CorrectionPipeline is safe for concurrent use.
type CorrectionPipeline struct {
	phonetic     PhoneticMatcher
	llmCorrector *llmcorrect.Corrector
	llmThreshold float64
	protected    func(string) bool
	maxWindow    int
}

// Ensure CorrectionPipeline satisfies the Pipeline interface at compile time.
var _ Pipeline = (*CorrectionPipeline)(nil)

// NewPipeline constructs a [CorrectionPipeline] with the supplied options.
// By default both stages are disabled; use [WithPhoneticMatcher] and
// [WithLLMCorrector] to activate them.
func NewPipeline(opts ...PipelineOption) *CorrectionPipeline {
	p := &CorrectionPipeline{
		llmThreshold: defaultLLMConfidenceThreshold,
		maxWindow:    defaultMaxWindow,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Correct applies the configured correction stages to t.
//
// Pipeline flow:
//  1. The transcript text is split into whitespace-separated tokens.
//  2. When a [PhoneticMatcher] is configured, windows of up to the max window
//     size are tested against vocabulary, longest first. Windows touching a
//     protected or numeric token are skipped, as are tokens that already
//     spell a vocabulary entry.
//  3. Words whose [stt.WordDetail] confidence is below the LLM threshold and
//     that the phonetic stage did not correct are collected as
//     low-confidence spans.
//  4. When an [llmcorrect.Corrector] is configured and at least one
//     low-confidence span exists (or no per-word confidence data is
//     available), the LLM corrector is invoked on the phonetic output.
//
// Context cancellation is respected: if ctx is done before the LLM stage
// completes, an error is returned.
func (p *CorrectionPipeline) Correct(
	ctx context.Context,
	t stt.Transcript,
	vocabulary []string,
) (*CorrectedTranscript, error) {
	result := &CorrectedTranscript{
		Original:    t,
		Corrected:   t.Text,
		Corrections: []Correction{},
	}
	if len(vocabulary) == 0 {
		return result, nil
	}

	workingText := t.Text
	if p.phonetic != nil {
		correctedText, corrections := p.applyPhonetic(t.Text, vocabulary)
		workingText = correctedText
		result.Corrections = append(result.Corrections, corrections...)
	}

	if p.llmCorrector != nil {
		corrected := make(map[string]struct{}, len(result.Corrections))
		for _, c := range result.Corrections {
			for _, w := range strings.Fields(c.Original) {
				corrected[strings.ToLower(w)] = struct{}{}
			}
		}
		lowConfSpans := p.collectLowConfidenceSpans(t.Words, corrected)

		if len(t.Words) == 0 || len(lowConfSpans) > 0 {
			correctedText, rawCorrections, err := p.llmCorrector.Correct(ctx, workingText, vocabulary, lowConfSpans)
			if err != nil {
				return nil, err
			}
			workingText = correctedText
			for _, rc := range rawCorrections {
				result.Corrections = append(result.Corrections, Correction{
					Original:   rc.Original,
					Corrected:  rc.Corrected,
					Confidence: rc.Confidence,
					Method:     MethodLLM,
				})
			}
		}
	}

	result.Corrected = workingText
	return result, nil
}

// token is a whitespace-separated word split into its leading punctuation,
// its core and its trailing punctuation.
type token struct {
	lead, core, trail string
}

func splitToken(s string) token {
	isWord := func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '/' }
	core := strings.TrimLeftFunc(s, func(r rune) bool { return !isWord(r) })
	lead := s[:len(s)-len(core)]
	trimmed := strings.TrimRightFunc(core, func(r rune) bool { return !isWord(r) })
	return token{lead: lead, core: trimmed, trail: core[len(trimmed):]}
}

func (t token) String() string { return t.lead + t.core + t.trail }

// applyPhonetic runs the phonetic matching stage over text and returns the
// corrected text and the corrections applied. At each position the longest
// matching window wins.
func (p *CorrectionPipeline) applyPhonetic(text string, vocabulary []string) (string, []Correction) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return text, nil
	}
	tokens := make([]token, len(fields))
	for i, f := range fields {
		tokens[i] = splitToken(f)
	}

	var (
		matchFn func(string) (string, float64, bool)
		known   func(string) bool
	)
	if pm, ok := p.phonetic.(*phonetic.Matcher); ok {
		idx := phonetic.NewIndex(vocabulary)
		matchFn = func(w string) (string, float64, bool) { return pm.MatchIndex(w, idx) }
		known = idx.Contains
	} else {
		set := make(map[string]struct{}, len(vocabulary))
		for _, v := range vocabulary {
			set[strings.ToLower(v)] = struct{}{}
		}
		matchFn = func(w string) (string, float64, bool) { return p.phonetic.Match(w, vocabulary) }
		known = func(w string) bool {
			_, ok := set[strings.ToLower(w)]
			return ok
		}
	}

	var (
		output      []string
		corrections []Correction
	)
	i := 0
	for i < len(tokens) {
		if !p.correctable(tokens[i].core) || known(tokens[i].core) {
			output = append(output, tokens[i].String())
			i++
			continue
		}

		maxN := min(p.maxWindow, len(tokens)-i)
		matched := false
		for n := maxN; n >= 1; n-- {
			if !p.windowCorrectable(tokens[i:i+n], known) {
				continue
			}
			cores := make([]string, n)
			for k, tk := range tokens[i : i+n] {
				cores[k] = tk.core
			}
			window := strings.Join(cores, " ")
			entry, conf, ok := matchFn(window)
			if !ok {
				continue
			}

			output = append(output, tokens[i].lead+entry+tokens[i+n-1].trail)
			corrections = append(corrections, Correction{
				Original:   window,
				Corrected:  entry,
				Confidence: conf,
				Method:     MethodPhonetic,
			})
			i += n
			matched = true
			break
		}

		if !matched {
			output = append(output, tokens[i].String())
			i++
		}
	}

	return strings.Join(output, " "), corrections
}

// windowCorrectable reports whether every token of the window may be
// rewritten. Interior punctuation ends a window.
func (p *CorrectionPipeline) windowCorrectable(window []token, known func(string) bool) bool {
	for k, tk := range window {
		if !p.correctable(tk.core) {
			return false
		}
		if len(window) > 1 && known(tk.core) {
			return false
		}
		if k > 0 && tk.lead != "" {
			return false
		}
		if k < len(window)-1 && tk.trail != "" {
			return false
		}
	}
	return true
}

func (p *CorrectionPipeline) correctable(core string) bool {
	if core == "" {
		return false
	}
	if strings.ContainsFunc(core, unicode.IsDigit) {
		return false
	}
	return p.protected == nil || !p.protected(core)
}

// collectLowConfidenceSpans returns the words whose STT confidence is below
// the configured threshold and that were not already corrected by the phonetic
// stage.
func (p *CorrectionPipeline) collectLowConfidenceSpans(
	wordDetails []stt.WordDetail,
	alreadyCorrected map[string]struct{},
) []string {
	var spans []string
	for _, wd := range wordDetails {
		if _, corrected := alreadyCorrected[strings.ToLower(wd.Word)]; corrected {
			continue
		}
		if wd.Confidence < p.llmThreshold {
			spans = append(spans, wd.Word)
		}
	}
	return spans
}
