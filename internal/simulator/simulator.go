package simulator

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"tokentable/internal/domain"
	"tokentable/internal/logger"
)

/*
	Simulated live feed: on every tick pick 1..MaxBatch random tokens and nudge each price
	by a random percent in [-MaxDeltaPct, MaxDeltaPct). The interval is re-drawn every tick.
*/

// Updater is the store side the simulator reads from and writes to
type Updater interface {
	Tokens() []domain.Token
	ApplyPriceUpdate(ctx context.Context, p domain.PricePatch) bool
}

type Config struct {
	MinInterval time.Duration
	MaxInterval time.Duration
	MaxBatch    int
	MaxDeltaPct float64
}

type Simulator struct {
	log logger.Logger
	src Updater
	cfg Config

	mu  sync.Mutex // rand.Rand is not safe for concurrent use
	rnd *rand.Rand

	onTick func(submitted int)
}

type Option func(*Simulator)

// WithRand pins the random source (tests, reproducible demos)
func WithRand(r *rand.Rand) Option {
	return func(s *Simulator) { s.rnd = r }
}

// WithTickHook is called after every tick with the number of submitted patches
func WithTickHook(fn func(submitted int)) Option {
	return func(s *Simulator) { s.onTick = fn }
}

func New(log logger.Logger, cfg Config, src Updater, opts ...Option) (*Simulator, error) {
	if src == nil {
		return nil, errors.New("updater is required to the simulator")
	}
	if log == nil {
		log = logger.Nop()
	}

	// sane defaults
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 2 * time.Second
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 5 * time.Second
	}
	if cfg.MaxInterval < cfg.MinInterval {
		return nil, errors.New("simulator max interval must not be less than min interval")
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 3
	}
	if cfg.MaxDeltaPct <= 0 {
		cfg.MaxDeltaPct = 2.5
	}

	s := &Simulator{
		log: log,
		src: src,
		cfg: cfg,
	}
	for _, o := range opts {
		o(s)
	}
	if s.rnd == nil {
		s.rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return s, nil
}

// Tick runs one update round synchronously and returns how many patches were submitted
func (s *Simulator) Tick(ctx context.Context) int {
	tokens := s.src.Tokens()
	if len(tokens) == 0 {
		s.log.Debug("Simulator tick skipped, no tokens")
		s.hook(0)
		return 0
	}

	patches := s.nextPatches(tokens)
	for _, p := range patches {
		s.src.ApplyPriceUpdate(ctx, p)
	}

	s.log.Debugf("Simulator tick submitted %d updates", len(patches))
	s.hook(len(patches))
	return len(patches)
}

func (s *Simulator) hook(n int) {
	if s.onTick != nil {
		s.onTick(n)
	}
}

// nextPatches samples k tokens without replacement (shuffle, then take) and perturbs them
func (s *Simulator) nextPatches(tokens []domain.Token) []domain.PricePatch {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := 1 + s.rnd.IntN(s.cfg.MaxBatch)
	if k > len(tokens) {
		k = len(tokens)
	}

	order := s.rnd.Perm(len(tokens))

	out := make([]domain.PricePatch, 0, k)
	for _, idx := range order[:k] {
		t := tokens[idx]
		delta := (s.rnd.Float64()*2 - 1) * s.cfg.MaxDeltaPct

		price := t.Price * (1 + delta/100)
		change := t.PriceChange24h + delta

		out = append(out, domain.PricePatch{
			ID:             t.ID,
			Price:          &price,
			PriceChange24h: &change,
		})
	}
	return out
}

// nextInterval is uniform in [MinInterval, MaxInterval)
func (s *Simulator) nextInterval() time.Duration {
	span := s.cfg.MaxInterval - s.cfg.MinInterval
	if span <= 0 {
		return s.cfg.MinInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.MinInterval + time.Duration(s.rnd.Int64N(int64(span)))
}

// Start schedules ticks until ctx ends or the handle is stopped
func (s *Simulator) Start(ctx context.Context) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go s.loop(ctx, h.done)

	s.log.Infof("Simulator started, interval=[%s, %s), max_batch=%d", s.cfg.MinInterval, s.cfg.MaxInterval, s.cfg.MaxBatch)
	return h
}

func (s *Simulator) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	for {
		t := time.NewTimer(s.nextInterval())
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}

		// both ready at once: cancellation wins
		if ctx.Err() != nil {
			return
		}
		s.Tick(ctx)
	}
}

// Handle cancels a running schedule
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop cancels the schedule and waits for an in-flight tick to finish.
// After it returns no further tick runs. Repeated calls are no-ops.
func (h *Handle) Stop() {
	if h == nil {
		return
	}
	h.once.Do(h.cancel)
	<-h.done
}

// Done is closed once the loop has exited
func (h *Handle) Done() <-chan struct{} {
	return h.done
}
