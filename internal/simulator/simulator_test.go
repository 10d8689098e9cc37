package simulator

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tokentable/internal/domain"
	"tokentable/internal/logger"
	"tokentable/internal/table"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

// storeUpdater feeds a real table.Store
type storeUpdater struct {
	store *table.Store
	calls atomic.Int64
}

func (u *storeUpdater) Tokens() []domain.Token { return u.store.Items() }

func (u *storeUpdater) ApplyPriceUpdate(_ context.Context, p domain.PricePatch) bool {
	u.calls.Add(1)
	return u.store.ApplyPartialUpdate(p)
}

// recorder captures patches without applying them
type recorder struct {
	mu      sync.Mutex
	tokens  []domain.Token
	patches []domain.PricePatch
}

func (r *recorder) Tokens() []domain.Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Token{}, r.tokens...)
}

func (r *recorder) ApplyPriceUpdate(_ context.Context, p domain.PricePatch) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patches = append(r.patches, p)
	return true
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.patches)
}

func tokens(n int) []domain.Token {
	out := make([]domain.Token, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.Token{
			ID:             domain.MakeTokenID(domain.CategoryNewPairs, i),
			Price:          float64(i + 1),
			PriceChange24h: float64(i) - 5,
			MarketCap:      1000,
			Chain:          domain.ChainSOL,
			Category:       domain.CategoryNewPairs,
		})
	}
	return out
}

func seeded(seed uint64) Option {
	return WithRand(rand.New(rand.NewPCG(seed, seed+1)))
}

// --- tests ---

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(logger.Nop(), Config{}, nil)
	require.Error(t, err)

	_, err = New(logger.Nop(), Config{MinInterval: 5 * time.Second, MaxInterval: time.Second}, &recorder{})
	require.Error(t, err)

	s, err := New(nil, Config{}, &recorder{})
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, s.cfg.MinInterval)
	assert.Equal(t, 5*time.Second, s.cfg.MaxInterval)
	assert.Equal(t, 3, s.cfg.MaxBatch)
	assert.Equal(t, 2.5, s.cfg.MaxDeltaPct)
}

func TestTick_EmptyCollectionIsNoop(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	s, err := New(logger.Nop(), Config{}, rec, seeded(1))
	require.NoError(t, err)

	assert.Zero(t, s.Tick(context.Background()))
	assert.Zero(t, rec.count())
}

func TestTick_SelectionAndPerturbationBounds(t *testing.T) {
	t.Parallel()

	src := tokens(10)
	byID := map[string]domain.Token{}
	for _, tok := range src {
		byID[tok.ID] = tok
	}

	seenK := map[int]bool{}
	for seed := uint64(0); seed < 200; seed++ {
		rec := &recorder{tokens: src}
		s, err := New(logger.Nop(), Config{}, rec, seeded(seed))
		require.NoError(t, err)

		n := s.Tick(context.Background())
		require.GreaterOrEqual(t, n, 1)
		require.LessOrEqual(t, n, 3)
		require.Equal(t, n, rec.count())
		seenK[n] = true

		distinct := map[string]bool{}
		for _, p := range rec.patches {
			require.False(t, distinct[p.ID], "token picked twice in one tick")
			distinct[p.ID] = true

			orig, ok := byID[p.ID]
			require.True(t, ok)
			require.NotNil(t, p.Price)
			require.NotNil(t, p.PriceChange24h)

			delta := *p.PriceChange24h - orig.PriceChange24h
			assert.GreaterOrEqual(t, delta, -2.5)
			assert.Less(t, delta, 2.5)

			// the same delta drives both fields
			assert.InDelta(t, orig.Price*(1+delta/100), *p.Price, 1e-9)
		}
	}

	assert.Equal(t, map[int]bool{1: true, 2: true, 3: true}, seenK, "k must cover 1..3")
}

func TestTick_SmallCollectionCapsBatch(t *testing.T) {
	t.Parallel()

	for seed := uint64(0); seed < 50; seed++ {
		rec := &recorder{tokens: tokens(1)}
		s, err := New(logger.Nop(), Config{}, rec, seeded(seed))
		require.NoError(t, err)

		assert.Equal(t, 1, s.Tick(context.Background()))
	}
}

func TestTick_UpdatesStoreOnlyPriceFields(t *testing.T) {
	t.Parallel()

	store := table.NewStore(logger.Nop())
	store.SetItems(tokens(5))
	before := store.Items()

	u := &storeUpdater{store: store}
	s, err := New(logger.Nop(), Config{}, u, seeded(42))
	require.NoError(t, err)

	n := s.Tick(context.Background())
	after := store.Items()

	changed := 0
	for i := range before {
		a, b := before[i], after[i]
		if a.Price != b.Price {
			changed++
		}
		a.Price, a.PriceChange24h = 0, 0
		b.Price, b.PriceChange24h = 0, 0
		assert.Equal(t, a, b)
	}
	assert.Equal(t, n, changed)
}

func TestNextInterval_Range(t *testing.T) {
	t.Parallel()

	s, err := New(logger.Nop(), Config{}, &recorder{}, seeded(3))
	require.NoError(t, err)

	distinct := map[time.Duration]bool{}
	for i := 0; i < 500; i++ {
		d := s.nextInterval()
		require.GreaterOrEqual(t, d, 2*time.Second)
		require.Less(t, d, 5*time.Second)
		distinct[d] = true
	}
	assert.Greater(t, len(distinct), 1, "interval must be re-drawn every tick")
}

func TestStart_TicksAndStops(t *testing.T) {
	t.Parallel()

	rec := &recorder{tokens: tokens(4)}
	var ticks atomic.Int64

	s, err := New(logger.Nop(), Config{MinInterval: time.Millisecond, MaxInterval: 3 * time.Millisecond}, rec,
		seeded(9), WithTickHook(func(int) { ticks.Add(1) }))
	require.NoError(t, err)

	h := s.Start(context.Background())
	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, 2*time.Second, time.Millisecond)

	h.Stop()
	h.Stop() // idempotent

	select {
	case <-h.Done():
	default:
		t.Fatal("loop must have exited after Stop")
	}

	frozen := rec.count()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, frozen, rec.count(), "no callbacks after Stop")
}

func TestStart_ParentContextCancels(t *testing.T) {
	t.Parallel()

	rec := &recorder{tokens: tokens(2)}
	s, err := New(logger.Nop(), Config{MinInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}, rec, seeded(5))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	h := s.Start(ctx)
	cancel()

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not exit on parent cancel")
	}

	frozen := rec.count()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, frozen, rec.count())

	h.Stop() // after parent cancel still a no-op
}

func TestHandle_NilStop(t *testing.T) {
	t.Parallel()

	var h *Handle
	assert.NotPanics(t, h.Stop)
}

func TestPerturbation_AverageDriftNearZero(t *testing.T) {
	t.Parallel()

	rec := &recorder{tokens: tokens(3)}
	s, err := New(logger.Nop(), Config{}, rec, seeded(11))
	require.NoError(t, err)

	for i := 0; i < 2000; i++ {
		s.Tick(context.Background())
	}

	var sum float64
	for _, p := range rec.patches {
		orig := rec.tokens[0]
		for _, tok := range rec.tokens {
			if tok.ID == p.ID {
				orig = tok
			}
		}
		sum += *p.PriceChange24h - orig.PriceChange24h
	}
	mean := sum / float64(len(rec.patches))
	assert.Less(t, math.Abs(mean), 0.2)
}
