package mockdata

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"tokentable/internal/domain"
	"tokentable/internal/format"
)

var tokenNames = []string{
	"PepeAI", "DogeX", "ShibaKing", "FlokiMoon", "SafeRocket",
	"BabyDoge", "ElonCoin", "MoonShot", "RocketFuel", "DiamondHands",
	"HODL", "ToTheMoon", "LamboToken", "YieldFarm", "DeFiKing",
	"MetaVerse", "GameFi", "NFTDao", "Web3Token", "CryptoGem",
}

// How many tokens each section starts with
var DefaultCounts = map[domain.Category]int{
	domain.CategoryNewPairs:     20,
	domain.CategoryFinalStretch: 15,
	domain.CategoryMigrated:     10,
}

type Generator struct {
	rnd    *rand.Rand
	now    func() time.Time
	counts map[domain.Category]int
}

type Option func(*Generator)

func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

func WithCounts(counts map[domain.Category]int) Option {
	return func(g *Generator) { g.counts = counts }
}

// NewGenerator; rnd nil -> randomly seeded source
func NewGenerator(rnd *rand.Rand, opts ...Option) *Generator {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	g := &Generator{
		rnd:    rnd,
		now:    time.Now,
		counts: DefaultCounts,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Generate builds the catalogue section by section in display order
func (g *Generator) Generate() []domain.Token {
	total := 0
	for _, n := range g.counts {
		total += n
	}

	now := g.now()
	out := make([]domain.Token, 0, total)
	for _, c := range domain.Categories {
		for i := 0; i < g.counts[c]; i++ {
			out = append(out, g.token(c, i, now))
		}
	}
	return out
}

func (g *Generator) token(category domain.Category, index int, now time.Time) domain.Token {
	name := tokenNames[index%len(tokenNames)]
	symbol := strings.ToUpper(name[:min(4, len(name))])

	age := time.Duration(g.rnd.IntN(72)) * time.Hour
	if age < time.Hour {
		age = time.Duration(g.rnd.IntN(60)) * time.Minute
	}
	createdAt := now.Add(-age)

	return domain.Token{
		ID:             domain.MakeTokenID(category, index),
		Name:           name,
		Symbol:         symbol,
		Logo:           "https://api.dicebear.com/7.x/identicon/svg?seed=" + name,
		Price:          g.rnd.Float64() * 10,
		PriceChange24h: (g.rnd.Float64() - 0.5) * 200,
		Volume24h:      g.rnd.Float64() * 10_000_000,
		MarketCap:      g.rnd.Float64() * 100_000_000,
		Liquidity:      g.rnd.Float64() * 5_000_000,
		Holders:        int64(g.rnd.IntN(50_000)),
		Age:            format.Age(now.Sub(createdAt)),
		Chain:          domain.Chains[g.rnd.IntN(len(domain.Chains))],
		Category:       category,
		Verified:       g.rnd.Float64() > 0.5,
		Trending:       g.rnd.Float64() > 0.7,
		CreatedAt:      createdAt,
	}
}

// Load adapts the generator to the service catalogue source
func (g *Generator) Load(ctx context.Context) ([]domain.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.Generate(), nil
}
