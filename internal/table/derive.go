package table

import (
	"slices"

	"tokentable/internal/domain"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

/*
	Derivation: (items, filter, sort) -> visible items.
	Filters are conjunctive, the sort is stable and only runs when both field and direction are set.
	Input is never mutated, output is always a fresh slice.
*/

// Derive returns the tokens matching every active criterion of f, ordered by s
func Derive(items []domain.Token, f domain.Filter, s domain.Sort) []domain.Token {
	out := make([]domain.Token, 0, len(items))
	for i := range items {
		if Match(&items[i], f) {
			out = append(out, items[i])
		}
	}

	if !s.Active() {
		return out
	}

	cmp := comparator(s)
	slices.SortStableFunc(out, cmp)

	return out
}

// DeriveSection partitions by category first, then derives
func DeriveSection(items []domain.Token, category domain.Category, f domain.Filter, s domain.Sort) []domain.Token {
	return Derive(Partition(items, category), f, s)
}

// Partition keeps the tokens of one category in collection order
func Partition(items []domain.Token, category domain.Category) []domain.Token {
	out := make([]domain.Token, 0, len(items)/len(domain.Categories)+1)
	for i := range items {
		if items[i].Category == category {
			out = append(out, items[i])
		}
	}
	return out
}

// Match reports whether t passes every active criterion of f; market cap bounds are inclusive
func Match(t *domain.Token, f domain.Filter) bool {
	if len(f.Chain) > 0 && !slices.Contains(f.Chain, t.Chain) {
		return false
	}
	if f.Verified != nil && t.Verified != *f.Verified {
		return false
	}
	if f.Trending != nil && t.Trending != *f.Trending {
		return false
	}
	if f.MinMarketCap != nil && t.MarketCap < *f.MinMarketCap {
		return false
	}
	if f.MaxMarketCap != nil && t.MarketCap > *f.MaxMarketCap {
		return false
	}
	return true
}

type sortKind int

const (
	kindNone sortKind = iota
	kindNumber
	kindString
)

type sortKey struct {
	kind sortKind
	num  float64
	str  string
}

func keyOf(t *domain.Token, field domain.SortField) sortKey {
	switch field {
	case domain.SortPrice:
		return sortKey{kind: kindNumber, num: t.Price}
	case domain.SortPriceChange24h:
		return sortKey{kind: kindNumber, num: t.PriceChange24h}
	case domain.SortVolume24h:
		return sortKey{kind: kindNumber, num: t.Volume24h}
	case domain.SortMarketCap:
		return sortKey{kind: kindNumber, num: t.MarketCap}
	case domain.SortLiquidity:
		return sortKey{kind: kindNumber, num: t.Liquidity}
	case domain.SortHolders:
		return sortKey{kind: kindNumber, num: float64(t.Holders)}
	case domain.SortCreatedAt:
		return sortKey{kind: kindNumber, num: float64(t.CreatedAt.UnixMilli())}
	case domain.SortName:
		return sortKey{kind: kindString, str: t.Name}
	case domain.SortSymbol:
		return sortKey{kind: kindString, str: t.Symbol}
	case domain.SortAge:
		return sortKey{kind: kindString, str: t.Age}
	case domain.SortChain:
		return sortKey{kind: kindString, str: string(t.Chain)}
	case domain.SortID:
		return sortKey{kind: kindString, str: t.ID}
	case domain.SortLogo:
		return sortKey{kind: kindString, str: t.Logo}
	case domain.SortCategory:
		return sortKey{kind: kindString, str: string(t.Category)}
	}
	// unknown field, or verified/trending which have no order
	return sortKey{}
}

// comparator builds the pairwise order for s. Mismatched or unknown kinds compare equal.
func comparator(s domain.Sort) func(a, b domain.Token) int {
	desc := s.Direction == domain.DirDesc
	if !desc && s.Direction != domain.DirAsc {
		return func(a, b domain.Token) int { return 0 }
	}

	// collator keeps per-instance buffers, one per derivation
	var coll *collate.Collator

	return func(a, b domain.Token) int {
		ka, kb := keyOf(&a, s.Field), keyOf(&b, s.Field)
		if desc {
			ka, kb = kb, ka
		}

		switch {
		case ka.kind == kindNumber && kb.kind == kindNumber:
			switch {
			case ka.num < kb.num:
				return -1
			case ka.num > kb.num:
				return 1
			}
			return 0
		case ka.kind == kindString && kb.kind == kindString:
			if coll == nil {
				coll = collate.New(language.English)
			}
			return coll.CompareString(ka.str, kb.str)
		}
		return 0
	}
}
