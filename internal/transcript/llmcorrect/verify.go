package llmcorrect

import "strings"

// edit is a maximal run of tokens that differs between two token slices:
// orig[o0:o1] was replaced by corr[c0:c1]. Either side may be empty.
type edit struct {
	o0, o1 int
	c0, c1 int
}

// diffTokens returns the edits that turn orig into corr, in order. Tokens
// outside every edit belong to a longest common subsequence of the two
// slices. Quadratic in the token counts, which is fine for spoken quotes.
func diffTokens(orig, corr []string) []edit {
	// lcs[i][j] is the LCS length of orig[i:] and corr[j:].
	lcs := make([][]int, len(orig)+1)
	for i := range lcs {
		lcs[i] = make([]int, len(corr)+1)
	}
	for i := len(orig) - 1; i >= 0; i-- {
		for j := len(corr) - 1; j >= 0; j-- {
			if orig[i] == corr[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else {
				lcs[i][j] = max(lcs[i+1][j], lcs[i][j+1])
			}
		}
	}

	var edits []edit
	var cur *edit
	flush := func() {
		if cur != nil {
			edits = append(edits, *cur)
			cur = nil
		}
	}
	i, j := 0, 0
	for i < len(orig) || j < len(corr) {
		switch {
		case i < len(orig) && j < len(corr) && orig[i] == corr[j]:
			flush()
			i++
			j++
			continue
		case cur == nil:
			cur = &edit{o0: i, o1: i, c0: j, c1: j}
		}
		if j == len(corr) || (i < len(orig) && lcs[i+1][j] >= lcs[i][j+1]) {
			i++
			cur.o1 = i
		} else {
			j++
			cur.c1 = j
		}
	}
	flush()
	return edits
}

// lookupKey folds case and trailing punctuation so "Bunt," in the text
// matches a correction declared for "bunt".
func lookupKey(tokens []string) string {
	return strings.ToLower(strings.TrimRight(strings.Join(tokens, " "), ".,;:!?\"')"))
}

// verifyCorrectedText keeps only the edits between original and corrected
// that a declared correction accounts for; every other edit is reverted.
// It returns the resulting text and the corrections that were applied.
func verifyCorrectedText(original, corrected string, corrections []Correction) (string, []Correction) {
	if original == corrected {
		return original, nil
	}

	declared := make(map[[2]string]Correction, len(corrections))
	for _, c := range corrections {
		k := [2]string{lookupKey(strings.Fields(c.Original)), lookupKey(strings.Fields(c.Corrected))}
		declared[k] = c
	}

	orig, corr := strings.Fields(original), strings.Fields(corrected)
	out := make([]string, 0, len(orig))
	var applied []Correction
	next := 0
	for _, e := range diffTokens(orig, corr) {
		out = append(out, orig[next:e.o0]...)
		next = e.o1
		if c, ok := declared[[2]string{lookupKey(orig[e.o0:e.o1]), lookupKey(corr[e.c0:e.c1])}]; ok {
			out = append(out, corr[e.c0:e.c1]...)
			applied = append(applied, c)
			continue
		}
		out = append(out, orig[e.o0:e.o1]...)
	}
	out = append(out, orig[next:]...)
	return strings.Join(out, " "), applied
}
