// Package quote turns a transcribed bond-trading utterance into a canonical
// quote string.
//
// The package is split into four pieces that mirror the way a quote is read:
//
//  1. [Lexicon] holds the read-only lookup tables: spoken instrument aliases,
//     month names and the closed set of tradeable instrument codes.
//
//  2. A cascade of [Matcher] values, each recognising one family of phrasings
//     and extracting a typed [Record].
//
//  3. [Record] variants ([Trade], [Market], [Switch]) that render themselves
//     into the canonical text grammar.
//
//  4. [Engine], which normalises the input once, tries the matchers in their
//     fixed priority order and returns the first accepted result.
//
// Everything in this package is pure and synchronous. An [Engine] and its
// [Lexicon] are immutable after construction and safe for concurrent use.
package quote

import (
	"maps"
	"slices"
	"strings"
)

// defaultInstruments is the closed set of tradeable instrument codes.
var defaultInstruments = []string{"OAT", "BTP", "DBR", "PGB", "SPGB", "NETH", "RAGB", "RFGB", "BGB"}

// builtinAliases returns a fresh table mapping spoken or commonly misheard
// tokens to instrument codes.
func builtinAliases() map[string]string {
	return map[string]string{
		// France
		"FRANCE": "OAT", "OAT": "OAT", "OATS": "OAT",
		// Italy
		"ITALY": "BTP", "BTP": "BTP", "BTPS": "BTP", "BEEPS": "BTP",
		// Germany
		"GERMANY": "DBR", "BUND": "DBR", "DBR": "DBR", "WOOD": "DBR", "BOND": "DBR",
		"BOON": "DBR", "BOOND": "DBR", "BUN": "DBR", "BUNT": "DBR", "BUNN": "DBR",
		"BUNDT": "DBR", "BUNDE": "DBR", "BUNDA": "DBR", "BUNDER": "DBR",
		// Netherlands
		"HOLLAND": "NETH", "NETHER": "NETH", "NETH": "NETH", "GUILDER": "NETH", "NETHERLANDS": "NETH",
		// Austria
		"AUSTRIA": "RAGB", "RAGB": "RAGB", "RAG": "RAGB",
		// Belgium
		"BELGIUM": "BGB", "BGB": "BGB", "BEEGEEBEE": "BGB",
		// Portugal
		"PORTUGAL": "PGB", "PGB": "PGB", "PEEGEEBEE": "PGB",
		// Spain
		"SPAIN": "SPGB", "SPGB": "SPGB", "SPEEGEEBEE": "SPGB",
		// Finland
		"FINLAND": "RFGB", "FINNY": "RFGB", "RFGB": "RFGB", "RIFGB": "RFGB",
	}
}

// builtinMonths returns a fresh month name → two-digit month table.
func builtinMonths() map[string]string {
	return map[string]string{
		"JANUARY": "01", "FEBRUARY": "02", "MARCH": "03", "APRIL": "04",
		"MAY": "05", "JUNE": "06", "JULY": "07", "AUGUST": "08",
		"SEPTEMBER": "09", "OCTOBER": "10", "NOVEMBER": "11", "DECEMBER": "12",
	}
}

// grammarWords are the connector, action and unit words of the quote grammar.
// Transcript correction must leave them untouched.
var grammarWords = []string{
	"I", "CAN", "BUY", "SELL", "BID", "OFFER", "AT", "IN", "OF", "THE", "A",
	"AGAINST", "VS", "MILLION", "MILLIONS", "M", "PICK", "PEAK", "PIC", "GIVE",
	"I'M", "IM", "AM",
}

// LexiconOption is a functional option for configuring a [Lexicon].
type LexiconOption func(*Lexicon)

// WithAliases adds alias → instrument code entries on top of the defaults.
// Keys and values are upper-cased. An entry for an existing key replaces it.
func WithAliases(aliases map[string]string) LexiconOption {
	return func(l *Lexicon) {
		for k, v := range aliases {
			l.aliases[strings.ToUpper(strings.TrimSpace(k))] = strings.ToUpper(strings.TrimSpace(v))
		}
	}
}

// WithInstruments adds instrument codes to the valid set. Every added code
// also becomes an alias of itself.
func WithInstruments(codes ...string) LexiconOption {
	return func(l *Lexicon) {
		for _, c := range codes {
			c = strings.ToUpper(strings.TrimSpace(c))
			if c == "" {
				continue
			}
			l.valid[c] = struct{}{}
			if _, ok := l.aliases[c]; !ok {
				l.aliases[c] = c
			}
		}
	}
}

// Lexicon is the lexical normaliser and instrument validator. It is
// read-only after construction; all methods are safe for concurrent use.
type Lexicon struct {
	aliases map[string]string
	months  map[string]string
	valid   map[string]struct{}
	grammar map[string]struct{}
}

// DefaultLexicon returns a [Lexicon] holding only the built-in tables.
func DefaultLexicon() *Lexicon {
	return NewLexicon()
}

// NewLexicon returns a [Lexicon] seeded with the built-in tables and
// extended by opts.
func NewLexicon(opts ...LexiconOption) *Lexicon {
	l := &Lexicon{
		aliases: builtinAliases(),
		months:  builtinMonths(),
		valid:   make(map[string]struct{}, len(defaultInstruments)),
	}
	l.grammar = make(map[string]struct{}, len(grammarWords)+len(l.months))
	for _, c := range defaultInstruments {
		l.valid[c] = struct{}{}
	}
	for _, w := range grammarWords {
		l.grammar[w] = struct{}{}
	}
	for m := range l.months {
		l.grammar[m] = struct{}{}
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Normalize upper-cases text. It never fails.
func (l *Lexicon) Normalize(text string) string {
	return strings.ToUpper(text)
}

// ResolveInstrument returns the instrument code for a known alias, or token
// unchanged when it is not an alias. Unknown tokens are rejected later by
// [Lexicon.IsValid].
func (l *Lexicon) ResolveInstrument(token string) string {
	if code, ok := l.aliases[token]; ok {
		return code
	}
	return token
}

// ResolveMonth returns the two-digit month for a month name. Any other token
// is left-padded with zeros to two characters, so "5" becomes "05".
func (l *Lexicon) ResolveMonth(token string) string {
	if mm, ok := l.months[token]; ok {
		return mm
	}
	if len(token) < 2 {
		return strings.Repeat("0", 2-len(token)) + token
	}
	return token
}

// IsValid reports whether code is a tradeable instrument code.
func (l *Lexicon) IsValid(code string) bool {
	_, ok := l.valid[code]
	return ok
}

// IsAlias reports whether token is a key of the alias table.
func (l *Lexicon) IsAlias(token string) bool {
	_, ok := l.aliases[token]
	return ok
}

// IsGrammarWord reports whether token is a connector, action, unit or month
// word of the quote grammar.
func (l *Lexicon) IsGrammarWord(token string) bool {
	_, ok := l.grammar[strings.ToUpper(token)]
	return ok
}

// Vocabulary returns the sorted alias keys. Transcript correction snaps
// misheard words onto these.
func (l *Lexicon) Vocabulary() []string {
	return slices.Sorted(maps.Keys(l.aliases))
}

// Instruments returns the sorted set of valid instrument codes.
func (l *Lexicon) Instruments() []string {
	return slices.Sorted(maps.Keys(l.valid))
}
