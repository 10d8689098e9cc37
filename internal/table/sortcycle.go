package table

import "tokentable/internal/domain"

// SortState is the per-field position in the header click cycle
type SortState int

const (
	SortUnsorted SortState = iota
	SortDescending
	SortAscending
)

func (s SortState) String() string {
	switch s {
	case SortDescending:
		return "descending"
	case SortAscending:
		return "ascending"
	}
	return "unsorted"
}

// unsorted -> descending -> ascending -> unsorted
var sortTransitions = map[SortState]SortState{
	SortUnsorted:   SortDescending,
	SortDescending: SortAscending,
	SortAscending:  SortUnsorted,
}

// StateOf reads the cycle position of field from the current sort. Any other active field,
// or a half-set sort, counts as unsorted for field.
func StateOf(current domain.Sort, field domain.SortField) SortState {
	if !current.Active() || current.Field != field {
		return SortUnsorted
	}
	switch current.Direction {
	case domain.DirDesc:
		return SortDescending
	case domain.DirAsc:
		return SortAscending
	}
	return SortUnsorted
}

// NextSort advances the cycle for a repeated sort request on field.
// Switching fields always restarts the new field at descending.
func NextSort(current domain.Sort, field domain.SortField) domain.Sort {
	if field == domain.SortNone {
		return domain.Sort{}
	}

	next := sortTransitions[StateOf(current, field)]
	switch next {
	case SortDescending:
		return domain.Sort{Field: field, Direction: domain.DirDesc}
	case SortAscending:
		return domain.Sort{Field: field, Direction: domain.DirAsc}
	}
	return domain.Sort{}
}
