package quote

import (
	"regexp"

	"github.com/shopspring/decimal"
)

// PatternID names the cascade entry that produced a quote.
type PatternID string

const (
	PatternBondSlashMaturity   PatternID = "bond_slash_maturity"
	PatternMaturitySlashBond   PatternID = "maturity_slash_bond"
	PatternSwitch              PatternID = "switch"
	PatternBareOffer           PatternID = "bare_offer"
	PatternIMOffer             PatternID = "im_offer"
	PatternBareOfferIn         PatternID = "bare_offer_in"
	PatternDirectionalPrice    PatternID = "directional_price"
	PatternDirectional         PatternID = "directional"
	PatternTrailingDirectional PatternID = "trailing_directional"
)

// Matcher recognises one family of quote phrasings.
type Matcher interface {
	// ID returns the identifier reported when this matcher wins.
	ID() PatternID

	// Match searches the upper-cased text for the matcher's shape. The
	// boolean reports whether the shape was found; the returned record has
	// its instrument and month tokens resolved through lx but has not been
	// validated.
	Match(text string, lx *Lexicon) (Record, bool)
}

// Shared sub-expressions. Every year is exactly two digits on a word boundary.
const (
	reWord   = `([A-Z]+)`
	reMonth  = `([A-Z]+|\d{1,2})`
	reYear   = `(\d{2})\b`
	rePrice  = `(\d+(?:\.\d+)?)`
	reUnit   = `\s*(?:MILLIONS?|M)\b`
	reSep    = `\s*,?\s*`
	reAction = `(BUY|SELL)`
)

var (
	reBondSlashMaturity = regexp.MustCompile(`\b` + reWord + `\s+` + reMonth + `\s*/\s*` + reYear +
		`(?:` + reSep + `(BUY|SELL|BID|OFFER))?` + reSep + `(\d+)(?:` + reUnit + `)?` +
		`(?:\s*(?:AT|IN)\s+` + rePrice + `)?`)

	reMaturitySlashBond = regexp.MustCompile(`\b` + reMonth + `\s*/\s*` + reYear + reSep + reWord + `\b` +
		`(?:` + reSep + `(BUY|SELL|BID|OFFER))?` + reSep + `(\d+)(?:` + reUnit + `)?` +
		`(?:\s*(?:AT|IN)\s+` + rePrice + `)?`)

	reSwitchClause = `(?:I\s+)?(PICK|PEAK|PIC|GIVE)\s+` + rePrice + `(?:\s+IN\s+(\d+)` + reUnit + `)?`

	reSwitch = regexp.MustCompile(`\bI CAN ` + reAction + `\s+(?:A\s+)?` + reWord + `\s+(?:THE\s+)?` + reMonth + `\s+` + reYear +
		reSep + `AGAINST\s+(?:THE\s+)?` + reWord + `\s+(?:THE\s+)?` + reMonth + `\s+` + reYear +
		`(?:` + reSep + reSwitchClause + `)?`)

	reSwitchTail = regexp.MustCompile(`\b` + reSwitchClause)

	reBareOffer = regexp.MustCompile(`\b` + reWord + `\s+` + reMonth + `\s+` + reYear + reSep +
		rePrice + `\s+OFFER\s+(\d+)` + reUnit)

	reIMOffer = regexp.MustCompile(`\b` + reWord + `\s+` + reMonth + `\s+` + reYear + reSep +
		`(?:I['’]M|IM|I AM)\s+` + rePrice + `\s+OFFER\s+(?:IN\s+)?(\d+)` + reUnit)

	reBareOfferIn = regexp.MustCompile(`\b` + reWord + `\s+` + reMonth + `\s+` + reYear + reSep +
		rePrice + `\s+OFFER\s+IN\s+(\d+)` + reUnit)

	reDirectionalPrice = regexp.MustCompile(`\bI CAN ` + reAction + `\s+(\d+)` + reUnit + `\s*(?:OF\s+)?` +
		reWord + `\s+` + reMonth + `\s+` + reYear + reSep + `(?:AT|IN)\s+` + rePrice)

	reDirectional = regexp.MustCompile(`\bI CAN ` + reAction + `\s+(\d+)` + reUnit + `\s*(?:OF\s+)?` +
		reWord + `\s+` + reMonth + `\s+` + reYear)

	reTrailingDirectional = regexp.MustCompile(`\b` + reWord + `\s+` + reMonth + `\s+` + reYear + reSep +
		`I CAN ` + reAction + `\s+(\d+)` + reUnit)
)

// DefaultCascade returns the nine matchers in priority order. Specific
// shapes come before general ones that could match a substring of them.
func DefaultCascade() []Matcher {
	return []Matcher{
		&regexpMatcher{id: PatternBondSlashMaturity, re: reBondSlashMaturity, build: buildBondSlashMaturity},
		&regexpMatcher{id: PatternMaturitySlashBond, re: reMaturitySlashBond, build: buildMaturitySlashBond},
		&regexpMatcher{id: PatternSwitch, re: reSwitch, build: buildSwitch},
		&regexpMatcher{id: PatternBareOffer, re: reBareOffer, build: buildOffer},
		&regexpMatcher{id: PatternIMOffer, re: reIMOffer, build: buildOffer},
		&regexpMatcher{id: PatternBareOfferIn, re: reBareOfferIn, build: buildOffer},
		&regexpMatcher{id: PatternDirectionalPrice, re: reDirectionalPrice, build: buildDirectionalPrice},
		&regexpMatcher{id: PatternDirectional, re: reDirectional, build: buildDirectional},
		&regexpMatcher{id: PatternTrailingDirectional, re: reTrailingDirectional, build: buildTrailingDirectional},
	}
}

// regexpMatcher is a [Matcher] backed by a single search expression. build
// receives the submatches (unset groups are empty strings) and the text
// following the match. Once the expression matches the shape is found, so
// build cannot reject it.
type regexpMatcher struct {
	id    PatternID
	re    *regexp.Regexp
	build func(g []string, rest string, lx *Lexicon) Record
}

var _ Matcher = (*regexpMatcher)(nil)

func (m *regexpMatcher) ID() PatternID { return m.id }

func (m *regexpMatcher) Match(text string, lx *Lexicon) (Record, bool) {
	loc := m.re.FindStringSubmatchIndex(text)
	if loc == nil {
		return nil, false
	}
	g := make([]string, len(loc)/2)
	for i := range g {
		if loc[2*i] >= 0 {
			g[i] = text[loc[2*i]:loc[2*i+1]]
		}
	}
	return m.build(g, text[loc[1]:], lx), true
}

// maturity resolves an instrument token and month token into a [Maturity].
func maturity(lx *Lexicon, instrument, month, year string) Maturity {
	return Maturity{
		Instrument: lx.ResolveInstrument(instrument),
		Month:      lx.ResolveMonth(month),
		Year:       year,
	}
}

// swapIfAmbiguous returns (instrument, month) with the two tokens exchanged
// when only the month-position token is a known alias. When both are
// aliases the instrument position wins.
func swapIfAmbiguous(lx *Lexicon, instrument, month string) (string, string) {
	if !lx.IsAlias(instrument) && lx.IsAlias(month) {
		return month, instrument
	}
	return instrument, month
}

// truncatePrice drops any fractional part of a spoken price without
// rounding. The expressions only capture decimal literals, so the token is
// returned unchanged if it somehow fails to parse.
func truncatePrice(s string) string {
	if s == "" {
		return ""
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return s
	}
	return d.Truncate(0).String()
}

// slashMarket builds the shared record of the two slash-maturity shapes.
func slashMarket(lx *Lexicon, instrument, month, year, action, size, price string) Record {
	instrument, month = swapIfAmbiguous(lx, instrument, month)
	return Market{
		Bond:  maturity(lx, instrument, month, year),
		Price: truncatePrice(price),
		Side:  sideOf(action),
		Size:  size,
	}
}

// g: 1 instrument, 2 month, 3 year, 4 action, 5 size, 6 price.
func buildBondSlashMaturity(g []string, _ string, lx *Lexicon) Record {
	return slashMarket(lx, g[1], g[2], g[3], g[4], g[5], g[6])
}

// g: 1 month, 2 year, 3 instrument, 4 action, 5 size, 6 price.
func buildMaturitySlashBond(g []string, _ string, lx *Lexicon) Record {
	return slashMarket(lx, g[3], g[1], g[2], g[4], g[5], g[6])
}

// g: 1 action, 2-4 leg one, 5-7 leg two, 8 price type, 9 price, 10 size.
// A price clause the main expression missed is searched for once in rest.
func buildSwitch(g []string, rest string, lx *Lexicon) Record {
	priceType, price, size := g[8], g[9], g[10]
	if priceType == "" {
		if t := reSwitchTail.FindStringSubmatch(rest); t != nil {
			priceType, price, size = t[1], t[2], t[3]
		}
	}
	s := Switch{
		Action: Action(g[1]),
		Leg1:   maturity(lx, g[2], g[3], g[4]),
		Leg2:   maturity(lx, g[5], g[6], g[7]),
		Price:  price,
		Size:   size,
	}
	switch priceType {
	case "PICK", "PEAK", "PIC":
		s.PriceType = Pick
	case "GIVE":
		s.PriceType = Give
	}
	return s
}

// g: 1 instrument, 2 month, 3 year, 4 price, 5 size. Used by the three
// offer shapes.
func buildOffer(g []string, _ string, lx *Lexicon) Record {
	return Market{
		Bond:  maturity(lx, g[1], g[2], g[3]),
		Price: truncatePrice(g[4]),
		Side:  Offer,
		Size:  g[5],
	}
}

// g: 1 action, 2 size, 3 instrument, 4 month, 5 year, 6 price.
func buildDirectionalPrice(g []string, _ string, lx *Lexicon) Record {
	return Market{
		Bond:  maturity(lx, g[3], g[4], g[5]),
		Price: truncatePrice(g[6]),
		Side:  sideOf(g[1]),
		Size:  g[2],
	}
}

// g: 1 action, 2 size, 3 instrument, 4 month, 5 year.
func buildDirectional(g []string, _ string, lx *Lexicon) Record {
	return Trade{
		Action: Action(g[1]),
		Bond:   maturity(lx, g[3], g[4], g[5]),
		Size:   g[2],
	}
}

// g: 1 instrument, 2 month, 3 year, 4 action, 5 size.
func buildTrailingDirectional(g []string, _ string, lx *Lexicon) Record {
	return Trade{
		Action: Action(g[4]),
		Bond:   maturity(lx, g[1], g[2], g[3]),
		Size:   g[5],
	}
}
