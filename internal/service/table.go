package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"tokentable/internal/domain"
	"tokentable/internal/logger"
	"tokentable/internal/metrics"
	"tokentable/internal/pubsub"
	"tokentable/internal/table"
)

var (
	ErrTokenNotFound   = errors.New("token not found")
	ErrUnknownCategory = errors.New("unknown category")
	ErrInvalidSort     = errors.New("invalid sort")
	ErrInvalidFilter   = errors.New("invalid filter")
)

// Catalogue supplies the initial token collection
type Catalogue interface {
	Load(ctx context.Context) ([]domain.Token, error)
}

// Overview is the compact summary served to dashboards
type Overview struct {
	Version  uint64                     `json:"version"`
	Total    int                        `json:"total"`
	Visible  int                        `json:"visible"`
	Sections map[domain.Category]int    `json:"sections"`
	Totals   map[domain.Category]int    `json:"totals"`
	Sort     domain.Sort                `json:"sort"`
	Filter   domain.Filter              `json:"filter"`
	Loading  bool                       `json:"loading"`
	Error    *string                    `json:"error"`
	Selected *domain.Token              `json:"selected"`
	Titles   map[domain.Category]string `json:"titles"`
}

// ViewMessage is broadcast after every accepted store mutation
type ViewMessage struct {
	Version  uint64                  `json:"version"`
	Sort     domain.Sort             `json:"sort"`
	Filter   domain.Filter           `json:"filter"`
	Visible  int                     `json:"visible"`
	Sections map[domain.Category]int `json:"sections"`
	TS       time.Time               `json:"ts"`
}

// TableService is the only orchestration point around the store:
// sort cycle, filter bar toggles, live updates -> metrics + broadcast.
// Used by HTTP, the simulator and the CLI.
type TableService struct {
	log         logger.Logger
	store       *table.Store
	catalogue   Catalogue
	broadcaster pubsub.Broadcaster
	metrics     *metrics.Metrics

	loadDelay time.Duration
	now       func() time.Time

	unsubscribe func()
}

type Option func(*TableService)

func WithLoadDelay(d time.Duration) Option {
	return func(s *TableService) { s.loadDelay = d }
}

func WithBroadcaster(b pubsub.Broadcaster) Option {
	return func(s *TableService) { s.broadcaster = b }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *TableService) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *TableService) { s.now = now }
}

func NewTableService(log logger.Logger, store *table.Store, catalogue Catalogue, opts ...Option) (*TableService, error) {
	if store == nil {
		return nil, errors.New("store is required to the table service")
	}
	if catalogue == nil {
		return nil, errors.New("catalogue is required to the table service")
	}
	if log == nil {
		log = logger.Nop()
	}

	s := &TableService{
		log:         log,
		store:       store,
		catalogue:   catalogue,
		broadcaster: pubsub.Nop{},
		metrics:     metrics.New(),
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}

	s.unsubscribe = store.Subscribe(s.onChange)
	return s, nil
}

// Close detaches the service from the store
func (s *TableService) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// LoadInitial marks the table as loading, waits the configured delay and installs the catalogue.
// A failure leaves the previous items in place and records the message in the store error.
func (s *TableService) LoadInitial(ctx context.Context) error {
	s.store.SetError(nil)
	s.store.SetLoading(true)
	defer s.store.SetLoading(false)

	if s.loadDelay > 0 {
		t := time.NewTimer(s.loadDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return s.loadFailed(ctx.Err())
		case <-t.C:
		}
	}

	items, err := s.catalogue.Load(ctx)
	if err != nil {
		return s.loadFailed(err)
	}

	s.store.SetItems(items)
	s.metrics.Mutations.WithLabelValues("set_items").Inc()
	s.log.Infof("Token catalogue loaded, count=%d", len(items))
	return nil
}

func (s *TableService) loadFailed(err error) error {
	msg := fmt.Sprintf("failed to load tokens: %v", err)
	s.store.SetError(&msg)
	s.log.Errorf("Initial load failed, error=%v", err)
	return fmt.Errorf("load catalogue: %w", err)
}

// ApplyPriceUpdate merges a live price patch. Unknown ids are counted as stale and dropped.
func (s *TableService) ApplyPriceUpdate(ctx context.Context, p domain.PricePatch) bool {
	if !s.store.ApplyPartialUpdate(p) {
		s.metrics.UpdatesStale.Inc()
		return false
	}
	s.metrics.UpdatesApplied.Inc()

	msg := domain.FeedMessage{Type: domain.FeedPriceUpdate, Data: p, TS: s.now().UTC()}
	s.publish(ctx, pubsub.SubjectFeed, msg)
	return true
}

// ToggleSort advances the three-state sort cycle for field
func (s *TableService) ToggleSort(field domain.SortField) (domain.Sort, error) {
	if field == domain.SortNone || !field.Valid() {
		return domain.Sort{}, fmt.Errorf("%w: unknown field %q", ErrInvalidSort, field)
	}

	next := s.store.ToggleSort(field)
	s.metrics.Mutations.WithLabelValues("sort").Inc()
	s.log.Debugf("Sort toggled, field=%s direction=%s", next.Field, next.Direction)
	return next, nil
}

// SetSort replaces the sort wholesale. Half-set values are accepted and derive unsorted.
func (s *TableService) SetSort(sort domain.Sort) error {
	if !sort.Field.Valid() {
		return fmt.Errorf("%w: unknown field %q", ErrInvalidSort, sort.Field)
	}
	if !sort.Direction.Valid() {
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidSort, sort.Direction)
	}

	s.store.SetSort(sort)
	s.metrics.Mutations.WithLabelValues("sort").Inc()
	return nil
}

func (s *TableService) SetFilter(p domain.FilterPatch) (domain.Filter, error) {
	if p.Chain.Set && p.Chain.Value != nil {
		for _, c := range *p.Chain.Value {
			if !c.Valid() {
				return domain.Filter{}, fmt.Errorf("%w: unknown chain %q", ErrInvalidFilter, c)
			}
		}
	}

	s.store.SetFilter(p)
	s.metrics.Mutations.WithLabelValues("filter").Inc()
	return s.store.Filter(), nil
}

// ToggleChain adds or removes c from the chain set; removing the last chain clears the constraint
func (s *TableService) ToggleChain(c domain.Chain) (domain.Filter, error) {
	if !c.Valid() {
		return domain.Filter{}, fmt.Errorf("%w: unknown chain %q", ErrInvalidFilter, c)
	}

	f := s.store.UpdateFilter(func(cur domain.Filter) domain.FilterPatch {
		chains := cur.Chain
		if i := slices.Index(chains, c); i >= 0 {
			chains = slices.Delete(chains, i, i+1)
		} else {
			chains = append(chains, c)
		}

		if len(chains) == 0 {
			return domain.FilterPatch{Chain: domain.Null[[]domain.Chain]()}
		}
		return domain.FilterPatch{Chain: domain.Some(chains)}
	})
	s.metrics.Mutations.WithLabelValues("filter").Inc()
	return f, nil
}

// ToggleVerified switches between "verified only" and no constraint
func (s *TableService) ToggleVerified() domain.Filter {
	f := s.store.UpdateFilter(func(cur domain.Filter) domain.FilterPatch {
		return domain.FilterPatch{Verified: toggleFlag(cur.Verified)}
	})
	s.metrics.Mutations.WithLabelValues("filter").Inc()
	return f
}

// ToggleTrending switches between "trending only" and no constraint
func (s *TableService) ToggleTrending() domain.Filter {
	f := s.store.UpdateFilter(func(cur domain.Filter) domain.FilterPatch {
		return domain.FilterPatch{Trending: toggleFlag(cur.Trending)}
	})
	s.metrics.Mutations.WithLabelValues("filter").Inc()
	return f
}

func toggleFlag(cur *bool) domain.Opt[bool] {
	if cur != nil && *cur {
		return domain.Null[bool]()
	}
	return domain.Some(true)
}

func (s *TableService) ClearFilters() {
	s.store.ResetFilter()
	s.metrics.Mutations.WithLabelValues("filter").Inc()
}

// Tokens returns the authoritative collection (all categories, unfiltered)
func (s *TableService) Tokens() []domain.Token {
	return s.store.Items()
}

// Visible returns the filtered and sorted view across all categories
func (s *TableService) Visible() []domain.Token {
	return s.store.Visible()
}

func (s *TableService) Section(category domain.Category) ([]domain.Token, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	return s.store.Section(category), nil
}

func (s *TableService) Token(id string) (domain.Token, error) {
	t, ok := s.store.Token(id)
	if !ok {
		return domain.Token{}, fmt.Errorf("%w: %s", ErrTokenNotFound, id)
	}
	return t, nil
}

func (s *TableService) Select(id string) (domain.Token, error) {
	if !s.store.Select(id) {
		return domain.Token{}, fmt.Errorf("%w: %s", ErrTokenNotFound, id)
	}
	s.metrics.Mutations.WithLabelValues("select").Inc()
	return s.Token(id)
}

func (s *TableService) ClearSelection() {
	s.store.ClearSelection()
}

func (s *TableService) Sort() domain.Sort {
	return s.store.Sort()
}

func (s *TableService) Filter() domain.Filter {
	return s.store.Filter()
}

func (s *TableService) State() table.State {
	return s.store.State()
}

// Subscribe forwards to the store; the listener must not mutate the table synchronously
func (s *TableService) Subscribe(l table.Listener) func() {
	return s.store.Subscribe(l)
}

func (s *TableService) Overview() Overview {
	st := s.store.State()

	ov := Overview{
		Version:  st.Version,
		Total:    len(st.Items),
		Visible:  len(st.Visible),
		Sections: make(map[domain.Category]int, len(domain.Categories)),
		Totals:   make(map[domain.Category]int, len(domain.Categories)),
		Titles:   make(map[domain.Category]string, len(domain.Categories)),
		Sort:     st.Sort,
		Filter:   st.Filter,
		Loading:  st.Loading,
		Error:    st.Error,
		Selected: st.Selected,
	}
	for _, c := range domain.Categories {
		ov.Sections[c] = len(st.Sections[c])
		ov.Titles[c] = c.Title()
	}
	for _, t := range st.Items {
		ov.Totals[t.Category]++
	}
	return ov
}

func (s *TableService) CheckDependency(ctx context.Context) error {
	errDependency := make([]string, 0, 2)

	if err := s.broadcaster.Health(ctx); err != nil {
		errDependency = append(errDependency, fmt.Sprintf("NATS: %v", err))
	}

	st := s.store.State()
	if st.Error != nil {
		errDependency = append(errDependency, fmt.Sprintf("catalogue: %s", *st.Error))
	}

	if len(errDependency) > 0 {
		return fmt.Errorf("dependency check failed: %v", strings.Join(errDependency, "; "))
	}

	s.log.Debugf("All dependency check passed")
	return nil
}

// onChange runs inside the store notification; it only reads the snapshot it is given
func (s *TableService) onChange(st table.State) {
	s.metrics.ObserveSections(st.Sections)

	msg := ViewMessage{
		Version:  st.Version,
		Sort:     st.Sort,
		Filter:   st.Filter,
		Visible:  len(st.Visible),
		Sections: make(map[domain.Category]int, len(st.Sections)),
		TS:       s.now().UTC(),
	}
	for c, toks := range st.Sections {
		msg.Sections[c] = len(toks)
	}
	s.publish(context.Background(), pubsub.SubjectView, msg)
}

// Broadcast failures are not critical: subscribers catch up on the next change
func (s *TableService) publish(ctx context.Context, subject string, data any) {
	if err := s.broadcaster.Publish(ctx, subject, data); err != nil {
		s.metrics.PublishErrors.WithLabelValues(subject).Inc()
		s.log.Errorf("Failed to broadcast %s, error=%v", subject, err)
	}
}
