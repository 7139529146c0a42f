package quote

import "strings"

// Action is the direction of a trade as spoken by the trader.
type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
)

// Side is the side of a two-sided market quote.
type Side string

const (
	Bid   Side = "BID"
	Offer Side = "OFFER"
)

// sideOf maps spoken action or side words onto a [Side]. BUY/BID → BID,
// SELL/OFFER → OFFER. Anything else yields the empty side.
func sideOf(word string) Side {
	switch word {
	case "BUY", "BID":
		return Bid
	case "SELL", "OFFER":
		return Offer
	}
	return ""
}

// PriceType tags the price of a switch quote.
type PriceType string

const (
	Pick PriceType = "PICK"
	Give PriceType = "GIVE"
)

// Record is a recognised, not yet validated quote.
type Record interface {
	// Instruments returns every instrument code the record references.
	Instruments() []string

	// Format renders the record in its canonical grammar.
	Format() string
}

// Compile-time interface assertions.
var (
	_ Record = Trade{}
	_ Record = Market{}
	_ Record = Switch{}
)

// Maturity identifies a bond line by instrument code and maturity.
type Maturity struct {
	Instrument string
	Month      string // two digits
	Year       string // two digits
}

func (m Maturity) String() string {
	return m.Instrument + " " + m.Month + "/" + m.Year
}

// Trade is a directional trade:
//
//	CAN {BUY|SELL} {SIZE}M {INSTRUMENT} {MM}/{YY}
type Trade struct {
	Action Action
	Bond   Maturity
	Size   string // millions, digits as spoken
}

func (t Trade) Instruments() []string { return []string{t.Bond.Instrument} }

func (t Trade) Format() string {
	return "CAN " + string(t.Action) + " " + t.Size + "M " + t.Bond.String()
}

// Market is a single-leg two-sided quote:
//
//	{INSTRUMENT} {MM}/{YY} [{PRICE}] [{BID|OFFER}] [IN {SIZE}M]
//
// Empty Price, Side and Size are omitted from the output. A spoken size
// of "0" is kept.
type Market struct {
	Bond  Maturity
	Price string
	Side  Side
	Size  string
}

func (m Market) Instruments() []string { return []string{m.Bond.Instrument} }

func (m Market) Format() string {
	var b strings.Builder
	b.WriteString(m.Bond.String())
	if m.Price != "" {
		b.WriteString(" " + m.Price)
	}
	if m.Side != "" {
		b.WriteString(" " + string(m.Side))
	}
	if m.Size != "" {
		b.WriteString(" IN " + m.Size + "M")
	}
	return b.String()
}

// Switch is a relative-value quote between two bond lines:
//
//	I CAN {BUY|SELL} {LEG1} VS {LEG2} [{PICK|GIVE} {PRICE}] [IN {SIZE}M]
type Switch struct {
	Action    Action
	Leg1      Maturity
	Leg2      Maturity
	PriceType PriceType // empty when no price was quoted
	Price     string
	Size      string
}

func (s Switch) Instruments() []string {
	return []string{s.Leg1.Instrument, s.Leg2.Instrument}
}

func (s Switch) Format() string {
	var b strings.Builder
	b.WriteString("I CAN " + string(s.Action) + " " + s.Leg1.String() + " VS " + s.Leg2.String())
	if s.PriceType != "" && s.Price != "" {
		b.WriteString(" " + string(s.PriceType) + " " + s.Price)
	}
	if s.Size != "" {
		b.WriteString(" IN " + s.Size + "M")
	}
	return b.String()
}
