package format

import (
	"strconv"

	"tokentable/internal/domain"
)

// Display holds the rendered strings of one table row
type Display struct {
	Price          string `json:"price"`
	PriceChange24h string `json:"priceChange24h"`
	Tone           Tone   `json:"tone"`
	MarketCap      string `json:"marketCap"`
	Volume24h      string `json:"volume24h"`
	Liquidity      string `json:"liquidity"`
	Holders        string `json:"holders"`
	Category       string `json:"category"`
}

type Row struct {
	domain.Token
	Display Display `json:"display"`
}

// RowOf renders a token the way the table shows it: six price decimals, two elsewhere
func RowOf(t domain.Token) Row {
	return Row{
		Token: t,
		Display: Display{
			Price:          Currency(t.Price, 6),
			PriceChange24h: Percentage(t.PriceChange24h, 2),
			Tone:           ToneOf(t.PriceChange24h),
			MarketCap:      Currency(t.MarketCap, 2),
			Volume24h:      Currency(t.Volume24h, 2),
			Liquidity:      Currency(t.Liquidity, 2),
			Holders:        Number(float64(t.Holders), 0),
			Category:       t.Category.Title(),
		},
	}
}

func Rows(toks []domain.Token) []Row {
	out := make([]Row, 0, len(toks))
	for _, t := range toks {
		out = append(out, RowOf(t))
	}
	return out
}

// Verified renders the badge column
func Verified(v bool) string {
	if v {
		return "✓"
	}
	return ""
}

// Count renders a section header count, e.g. "New Pairs (20)"
func Count(title string, n int) string {
	return title + " (" + strconv.Itoa(n) + ")"
}
