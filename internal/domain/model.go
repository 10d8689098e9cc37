package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

type Chain string

const (
	ChainSOL Chain = "SOL"
	ChainETH Chain = "ETH"
	ChainBSC Chain = "BSC"
)

// Chains in display order
var Chains = []Chain{ChainSOL, ChainETH, ChainBSC}

func (c Chain) Valid() bool {
	switch c {
	case ChainSOL, ChainETH, ChainBSC:
		return true
	}
	return false
}

// Category decides which table section shows the token; never changes after creation
type Category string

const (
	CategoryNewPairs     Category = "new-pairs"
	CategoryFinalStretch Category = "final-stretch"
	CategoryMigrated     Category = "migrated"
)

// Categories in display order
var Categories = []Category{CategoryNewPairs, CategoryFinalStretch, CategoryMigrated}

func (c Category) Valid() bool {
	switch c {
	case CategoryNewPairs, CategoryFinalStretch, CategoryMigrated:
		return true
	}
	return false
}

func (c Category) Title() string {
	switch c {
	case CategoryNewPairs:
		return "New Pairs"
	case CategoryFinalStretch:
		return "Final Stretch"
	case CategoryMigrated:
		return "Migrated"
	}
	return string(c)
}

// Token is one tradable instrument row. Values are snapshots: the store swaps a whole Token
// on every accepted patch and never edits one in place.
type Token struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Symbol         string    `json:"symbol"`
	Logo           string    `json:"logo"`
	Price          float64   `json:"price"`
	PriceChange24h float64   `json:"priceChange24h"` // signed percent
	Volume24h      float64   `json:"volume24h"`
	MarketCap      float64   `json:"marketCap"`
	Liquidity      float64   `json:"liquidity"`
	Holders        int64     `json:"holders"`
	Age            string    `json:"age"` // computed once from CreatedAt
	Chain          Chain     `json:"chain"`
	Category       Category  `json:"category"`
	Verified       bool      `json:"verified"`
	Trending       bool      `json:"trending"`
	CreatedAt      time.Time `json:"createdAt"`
}

// PricePatch is the only partial update a token accepts; nil fields are left untouched
type PricePatch struct {
	ID             string   `json:"id"`
	Price          *float64 `json:"price,omitempty"`
	PriceChange24h *float64 `json:"priceChange24h,omitempty"`
}

// Apply returns a copy of t with the patch fields merged in
func (t Token) Apply(p PricePatch) Token {
	if p.Price != nil {
		t.Price = *p.Price
	}
	if p.PriceChange24h != nil {
		t.PriceChange24h = *p.PriceChange24h
	}
	return t
}

type FeedType string

const (
	FeedPriceUpdate   FeedType = "price_update"
	FeedNewToken      FeedType = "new_token"
	FeedTokenMigrated FeedType = "token_migrated"
)

// Message on the live feed (simulated)
type FeedMessage struct {
	Type FeedType   `json:"type"`
	Data PricePatch `json:"data"`
	TS   time.Time  `json:"ts"`
}

// Filter describes which tokens are visible. Nil pointer or empty chain set = no constraint.
type Filter struct {
	Chain        []Chain  `json:"chain"`
	Verified     *bool    `json:"verified"`
	Trending     *bool    `json:"trending"`
	MinMarketCap *float64 `json:"minMarketCap"`
	MaxMarketCap *float64 `json:"maxMarketCap"`
}

// Active reports whether any criterion constrains the view
func (f Filter) Active() bool {
	return len(f.Chain) > 0 || f.Verified != nil || f.Trending != nil || f.MinMarketCap != nil || f.MaxMarketCap != nil
}

// Clone deep-copies the slice and pointer fields so callers can't reach store state
func (f Filter) Clone() Filter {
	out := Filter{
		Verified:     clonePtr(f.Verified),
		Trending:     clonePtr(f.Trending),
		MinMarketCap: clonePtr(f.MinMarketCap),
		MaxMarketCap: clonePtr(f.MaxMarketCap),
	}
	if f.Chain != nil {
		out.Chain = append([]Chain{}, f.Chain...)
	}
	return out
}

// Merge overwrites the fields set in p and keeps the rest
func (f Filter) Merge(p FilterPatch) Filter {
	out := f.Clone()
	if p.Chain.Set {
		out.Chain = nil
		if p.Chain.Value != nil {
			out.Chain = append([]Chain{}, (*p.Chain.Value)...)
		}
	}
	if p.Verified.Set {
		out.Verified = clonePtr(p.Verified.Value)
	}
	if p.Trending.Set {
		out.Trending = clonePtr(p.Trending.Value)
	}
	if p.MinMarketCap.Set {
		out.MinMarketCap = clonePtr(p.MinMarketCap.Value)
	}
	if p.MaxMarketCap.Set {
		out.MaxMarketCap = clonePtr(p.MaxMarketCap.Value)
	}
	return out
}

// FilterPatch is a partial filter; unset fields keep their previous value, set-to-nil clears
type FilterPatch struct {
	Chain        Opt[[]Chain] `json:"chain"`
	Verified     Opt[bool]    `json:"verified"`
	Trending     Opt[bool]    `json:"trending"`
	MinMarketCap Opt[float64] `json:"minMarketCap"`
	MaxMarketCap Opt[float64] `json:"maxMarketCap"`
}

// ClearAll resets every criterion
func ClearAll() FilterPatch {
	return FilterPatch{
		Chain:        Null[[]Chain](),
		Verified:     Null[bool](),
		Trending:     Null[bool](),
		MinMarketCap: Null[float64](),
		MaxMarketCap: Null[float64](),
	}
}

// Opt distinguishes "field omitted" (Set=false) from "field set to null" (Set=true, Value=nil)
type Opt[T any] struct {
	Set   bool
	Value *T
}

func Some[T any](v T) Opt[T] { return Opt[T]{Set: true, Value: &v} }
func Null[T any]() Opt[T]     { return Opt[T]{Set: true} }

// UnmarshalJSON only runs for keys present in the document, so presence marks Set
func (o *Opt[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Value = nil
		return nil
	}

	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

func (o Opt[T]) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}

type SortField string

const (
	SortNone           SortField = ""
	SortName           SortField = "name"
	SortSymbol         SortField = "symbol"
	SortPrice          SortField = "price"
	SortPriceChange24h SortField = "priceChange24h"
	SortVolume24h      SortField = "volume24h"
	SortMarketCap      SortField = "marketCap"
	SortLiquidity      SortField = "liquidity"
	SortHolders        SortField = "holders"
	SortAge            SortField = "age"
	SortChain          SortField = "chain"
	SortCreatedAt      SortField = "createdAt"
	SortID             SortField = "id"
	SortLogo           SortField = "logo"
	SortCategory       SortField = "category"
	SortVerified       SortField = "verified"
	SortTrending       SortField = "trending"
)

// every Token attribute is a sort field; booleans are accepted but derive unsorted
var sortFields = map[SortField]struct{}{
	SortNone: {}, SortName: {}, SortSymbol: {}, SortPrice: {}, SortPriceChange24h: {}, SortVolume24h: {},
	SortMarketCap: {}, SortLiquidity: {}, SortHolders: {}, SortAge: {}, SortChain: {}, SortCreatedAt: {},
	SortID: {}, SortLogo: {}, SortCategory: {}, SortVerified: {}, SortTrending: {},
}

// Valid reports whether f names a sortable column (empty is allowed)
func (f SortField) Valid() bool {
	_, ok := sortFields[f]
	return ok
}

type Direction string

const (
	DirNone Direction = ""
	DirAsc  Direction = "asc"
	DirDesc Direction = "desc"
)

func (d Direction) Valid() bool {
	return d == DirNone || d == DirAsc || d == DirDesc
}

// Sort with an empty field or direction means "keep collection order"
type Sort struct {
	Field     SortField `json:"field"`
	Direction Direction `json:"direction"`
}

// Active is true only when both parts are set
func (s Sort) Active() bool {
	return s.Field != SortNone && s.Direction != DirNone
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
