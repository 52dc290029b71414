package scheduling

import (
	"github.com/spec-kit/install-dispatch/internal/domain"
)

// Selection is a set of hours chosen for one technician on one date.
// Times are kept unique and in chronological order.
type Selection struct {
	Technician string                 `json:"technician"`
	Date       string                 `json:"date"`
	Times      []domain.TimeComponent `json:"times"`
}

// Empty reports whether no hour is selected.
func (s Selection) Empty() bool {
	return len(s.Times) == 0
}

// Contains reports whether tc is selected.
func (s Selection) Contains(tc domain.TimeComponent) bool {
	for _, t := range s.Times {
		if t == tc {
			return true
		}
	}
	return false
}

// Keys returns the selection as slot keys in chronological order.
func (s Selection) Keys() []SlotKey {
	keys := make([]SlotKey, 0, len(s.Times))
	for _, tc := range s.Times {
		keys = append(keys, NewSlotKey(s.Technician, s.Date, tc))
	}
	return keys
}

// StartTime returns the earliest selected hour.
func (s Selection) StartTime() (domain.TimeComponent, bool) {
	if s.Empty() {
		return domain.TimeComponent{}, false
	}
	earliest := s.Times[0]
	for _, tc := range s.Times[1:] {
		if tc.Before(earliest) {
			earliest = tc
		}
	}
	return earliest, true
}

// Mirror copies the hours and date onto another technician.
func (s Selection) Mirror(technician string) Selection {
	return Selection{Technician: technician, Date: s.Date, Times: cloneTimes(s.Times)}
}

func (s Selection) with(tc domain.TimeComponent) Selection {
	if s.Contains(tc) {
		return s
	}
	times := append(cloneTimes(s.Times), tc)
	domain.SortTimes(times)
	return Selection{Technician: s.Technician, Date: s.Date, Times: times}
}

func (s Selection) without(tc domain.TimeComponent) Selection {
	times := make([]domain.TimeComponent, 0, len(s.Times))
	for _, t := range s.Times {
		if t != tc {
			times = append(times, t)
		}
	}
	return Selection{Technician: s.Technician, Date: s.Date, Times: times}
}

func cloneTimes(times []domain.TimeComponent) []domain.TimeComponent {
	if times == nil {
		return nil
	}
	out := make([]domain.TimeComponent, len(times))
	copy(out, times)
	return out
}
