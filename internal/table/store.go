package table

import (
	"slices"
	"sync"

	"tokentable/internal/domain"
	"tokentable/internal/logger"
)

/*
	Store owns the token collection, the filter and the sort, and keeps the derived view
	(visible tokens + per-category sections) in step with them.
	Every accepted mutation runs "apply + recompute" as one step and only then notifies listeners,
	so nobody can observe items updated with a stale view or the other way around.
*/

// State is a point-in-time copy of the store handed to readers and listeners
type State struct {
	Version  uint64                             `json:"version"`
	Items    []domain.Token                     `json:"-"`
	Visible  []domain.Token                     `json:"visible"`
	Sections map[domain.Category][]domain.Token `json:"sections"`
	Filter   domain.Filter                      `json:"filter"`
	Sort     domain.Sort                        `json:"sort"`
	Loading  bool                               `json:"loading"`
	Error    *string                            `json:"error"`
	Selected *domain.Token                      `json:"selected"`
}

// Listener receives the state after each accepted mutation. It must not call Store mutations
// synchronously: writes are serialized and a nested write would block forever.
type Listener func(State)

type listenerEntry struct {
	id uint64
	fn Listener
}

type Store struct {
	log logger.Logger

	writeMu sync.Mutex   // serializes mutate+notify so listeners see versions in order
	mu      sync.RWMutex // guards the fields below

	items    []domain.Token
	index    map[string]int
	visible  []domain.Token
	sections map[domain.Category][]domain.Token
	filter   domain.Filter
	sort     domain.Sort
	loading  bool
	err      *string
	selected string
	version  uint64

	listeners []listenerEntry
	nextID    uint64
}

func NewStore(log logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}

	s := &Store{
		log:   log,
		index: make(map[string]int),
	}
	s.recomputeLocked()

	return s
}

// SetItems replaces the collection wholesale. Later duplicates of an id are dropped.
func (s *Store) SetItems(items []domain.Token) {
	s.update(func() bool {
		next := make([]domain.Token, 0, len(items))
		index := make(map[string]int, len(items))

		for i := range items {
			if _, dup := index[items[i].ID]; dup {
				s.log.Warnf("Duplicate token id=%s dropped on set", items[i].ID)
				continue
			}
			index[items[i].ID] = len(next)
			next = append(next, items[i])
		}

		s.items = next
		s.index = index
		s.recomputeLocked()
		return true
	})
}

// ApplyPartialUpdate merges p into the token with the same id. An unknown id is a stale update:
// nothing changes, nobody is notified, and false is returned.
func (s *Store) ApplyPartialUpdate(p domain.PricePatch) bool {
	return s.update(func() bool {
		idx, ok := s.index[p.ID]
		if !ok {
			s.log.Debugf("Stale update ignored, id=%s", p.ID)
			return false
		}

		// copy on write: snapshots already handed out keep their own backing array
		next := slices.Clone(s.items)
		next[idx] = next[idx].Apply(p)
		s.items = next
		s.recomputeLocked()
		return true
	})
}

// SetSort replaces the sort wholesale. Half-set specs are stored as given and derive unsorted.
func (s *Store) SetSort(sort domain.Sort) {
	s.update(func() bool {
		s.sort = sort
		s.recomputeLocked()
		return true
	})
}

// SetFilter shallow-merges p into the current filter
func (s *Store) SetFilter(p domain.FilterPatch) {
	s.update(func() bool {
		s.filter = s.filter.Merge(p)
		s.recomputeLocked()
		return true
	})
}

// ToggleSort advances the sort cycle for field atomically and returns the new sort
func (s *Store) ToggleSort(field domain.SortField) domain.Sort {
	var next domain.Sort
	s.update(func() bool {
		next = NextSort(s.sort, field)
		s.sort = next
		s.recomputeLocked()
		return true
	})
	return next
}

// UpdateFilter builds a patch from the current filter and merges it in one step
func (s *Store) UpdateFilter(fn func(current domain.Filter) domain.FilterPatch) domain.Filter {
	var next domain.Filter
	s.update(func() bool {
		s.filter = s.filter.Merge(fn(s.filter.Clone()))
		next = s.filter.Clone()
		s.recomputeLocked()
		return true
	})
	return next
}

func (s *Store) ResetFilter() {
	s.SetFilter(domain.ClearAll())
}

func (s *Store) SetLoading(loading bool) {
	s.update(func() bool {
		s.loading = loading
		return true
	})
}

// SetError sets or clears (nil) the load error message
func (s *Store) SetError(msg *string) {
	s.update(func() bool {
		s.err = nil
		if msg != nil {
			m := *msg
			s.err = &m
		}
		return true
	})
}

// Select marks a token for the details view; false when the id is unknown
func (s *Store) Select(id string) bool {
	return s.update(func() bool {
		if _, ok := s.index[id]; !ok {
			return false
		}
		s.selected = id
		return true
	})
}

func (s *Store) ClearSelection() {
	s.update(func() bool {
		if s.selected == "" {
			return false
		}
		s.selected = ""
		return true
	})
}

// Subscribe registers l for every future accepted mutation; the returned func unregisters it
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: l})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.listeners = slices.DeleteFunc(s.listeners, func(e listenerEntry) bool { return e.id == id })
		})
	}
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Items returns a copy of the authoritative collection in insertion order
func (s *Store) Items() []domain.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

func (s *Store) Visible() []domain.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.visible)
}

func (s *Store) Section(category domain.Category) []domain.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.sections[category])
}

func (s *Store) Token(id string) (domain.Token, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.index[id]
	if !ok {
		return domain.Token{}, false
	}
	return s.items[idx], true
}

func (s *Store) Sort() domain.Sort {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sort
}

func (s *Store) Filter() domain.Filter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter.Clone()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// update runs fn as one atomic step; listeners are called after the lock is released
// but before the next writer may start
func (s *Store) update(fn func() bool) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if !fn() {
		s.mu.Unlock()
		return false
	}
	s.version++
	snap := s.snapshotLocked()
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l.fn(snap)
	}
	return true
}

func (s *Store) recomputeLocked() {
	s.visible = Derive(s.items, s.filter, s.sort)

	sections := make(map[domain.Category][]domain.Token, len(domain.Categories))
	for _, c := range domain.Categories {
		sections[c] = DeriveSection(s.items, c, s.filter, s.sort)
	}
	s.sections = sections
}

func (s *Store) snapshotLocked() State {
	st := State{
		Version:  s.version,
		Items:    slices.Clone(s.items),
		Visible:  slices.Clone(s.visible),
		Sections: make(map[domain.Category][]domain.Token, len(s.sections)),
		Filter:   s.filter.Clone(),
		Sort:     s.sort,
		Loading:  s.loading,
	}

	for c, toks := range s.sections {
		st.Sections[c] = slices.Clone(toks)
	}

	if s.err != nil {
		e := *s.err
		st.Error = &e
	}

	if idx, ok := s.index[s.selected]; ok && s.selected != "" {
		t := s.items[idx]
		st.Selected = &t
	}

	return st
}
