package llmcorrect

import (
	"strings"
	"testing"
)

func TestVerifyCorrectedText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		original        string
		corrected       string
		corrections     []Correction
		wantText        string
		wantCorrections int
	}{
		{
			name:            "identical text",
			original:        "buy bunds at 99",
			corrected:       "buy bunds at 99",
			corrections:     []Correction{{Original: "bunds", Corrected: "BUND"}},
			wantText:        "buy bunds at 99",
			wantCorrections: 0,
		},
		{
			name:      "single verified correction",
			original:  "buy bunt at 99",
			corrected: "buy BUND at 99",
			corrections: []Correction{
				{Original: "bunt", Corrected: "BUND", Confidence: 0.9},
			},
			wantText:        "buy BUND at 99",
			wantCorrections: 1,
		},
		{
			name:      "multi-word correction",
			original:  "buy bee tea pea at 99",
			corrected: "buy BTP at 99",
			corrections: []Correction{
				{Original: "bee tea pea", Corrected: "BTP", Confidence: 0.9},
			},
			wantText:        "buy BTP at 99",
			wantCorrections: 1,
		},
		{
			name:            "unverified change reverted",
			original:        "sell 10 million at 99",
			corrected:       "sell 20 million at 99",
			corrections:     nil,
			wantText:        "sell 10 million at 99",
			wantCorrections: 0,
		},
		{
			name:      "mixed verified and unverified",
			original:  "buy bunt 10 million at 99",
			corrected: "buy BUND 10 million at 98",
			corrections: []Correction{
				{Original: "bunt", Corrected: "BUND", Confidence: 0.9},
			},
			wantText:        "buy BUND 10 million at 99",
			wantCorrections: 1,
		},
		{
			name:      "undeclared edit adjacent to correction reverts the span",
			original:  "buy bunt 10 million",
			corrected: "buy BUND 20 million",
			corrections: []Correction{
				{Original: "bunt", Corrected: "BUND", Confidence: 0.9},
			},
			wantText:        "buy bunt 10 million",
			wantCorrections: 0,
		},
		{
			name:      "punctuation attached to tokens",
			original:  "bunt, 10 million",
			corrected: "BUND, 10 million",
			corrections: []Correction{
				{Original: "bunt", Corrected: "BUND", Confidence: 0.85},
			},
			wantText:        "BUND, 10 million",
			wantCorrections: 1,
		},
		{
			name:      "multiple verified corrections",
			original:  "beeps against bunt",
			corrected: "BTP against BUND",
			corrections: []Correction{
				{Original: "beeps", Corrected: "BTP", Confidence: 0.8},
				{Original: "bunt", Corrected: "BUND", Confidence: 0.9},
			},
			wantText:        "BTP against BUND",
			wantCorrections: 2,
		},
		{
			name:      "case insensitive lookup",
			original:  "BUNT at 99",
			corrected: "BUND at 99",
			corrections: []Correction{
				{Original: "bunt", Corrected: "BUND", Confidence: 0.9},
			},
			wantText:        "BUND at 99",
			wantCorrections: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gotText, gotCorr := verifyCorrectedText(tt.original, tt.corrected, tt.corrections)
			if gotText != tt.wantText {
				t.Errorf("text = %q, want %q", gotText, tt.wantText)
			}
			if len(gotCorr) != tt.wantCorrections {
				t.Errorf("corrections count = %d, want %d", len(gotCorr), tt.wantCorrections)
			}
		})
	}
}

func TestDiffTokens(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		orig      string
		corr      string
		wantEdits []string
	}{
		{"identical", "buy bunt at 99", "buy bunt at 99", nil},
		{"both empty", "", "", nil},
		{"replace one", "buy bunt at 99", "buy BUND at 99", []string{"bunt>BUND"}},
		{"two replacements", "a X c Y e", "a B c D e", []string{"X>B", "Y>D"}},
		{"merge words", "sell shots ats 5/30", "sell SCHATZ 5/30", []string{"shots ats>SCHATZ"}},
		{"insertion at end", "buy OAT", "buy OAT 10", []string{">10"}},
		{"deletion at start", "um buy OAT", "buy OAT", []string{"um>"}},
		{"no common tokens", "a b", "c d", []string{"a b>c d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			orig, corr := strings.Fields(tt.orig), strings.Fields(tt.corr)
			var got []string
			for _, e := range diffTokens(orig, corr) {
				got = append(got, strings.Join(orig[e.o0:e.o1], " ")+">"+strings.Join(corr[e.c0:e.c1], " "))
			}
			if strings.Join(got, "|") != strings.Join(tt.wantEdits, "|") {
				t.Errorf("edits = %q, want %q", got, tt.wantEdits)
			}
		})
	}
}

func TestRestrictToVocabulary(t *testing.T) {
	t.Parallel()

	in := []Correction{
		{Original: "bunt", Corrected: "bund"},
		{Original: "guilt", Corrected: "GILT"},
		{Original: "beeps", Corrected: "BTP."},
		{Original: "oats", Corrected: " Oat "},
	}
	got := restrictToVocabulary(in, []string{"BUND", "BTP", "OAT"})
	if len(got) != 3 {
		t.Fatalf("kept %d corrections, want 3: %+v", len(got), got)
	}
	if got[0].Original != "bunt" || got[1].Original != "beeps" || got[2].Original != "oats" {
		t.Errorf("kept = %+v", got)
	}
}
