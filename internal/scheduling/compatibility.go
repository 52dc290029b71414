package scheduling

import (
	"github.com/spec-kit/install-dispatch/internal/domain"
)

// UnmatchedTimes lists the selected hours at which candidate cannot work.
// An hour matches when the candidate's slot is free or reserved by
// referenceOrderID. A candidate without data for the date is free all day.
func UnmatchedTimes(cal Calendar, candidate string, primary Selection, referenceOrderID string) []domain.TimeComponent {
	if !cal.HasDay(candidate, primary.Date) {
		return nil
	}

	available := make(map[domain.TimeComponent]struct{})
	for _, slot := range cal.DaySlots(candidate, primary.Date) {
		if !slot.Busy || slot.ReservedBy(referenceOrderID) {
			available[slot.Time()] = struct{}{}
		}
	}

	var unmatched []domain.TimeComponent
	for _, tc := range primary.Times {
		if _, ok := available[tc]; !ok {
			unmatched = append(unmatched, tc)
		}
	}
	domain.SortTimes(unmatched)
	return unmatched
}

// IsCompatible reports whether candidate is available at every selected hour.
// An empty selection is never compatible.
func IsCompatible(cal Calendar, candidate string, primary Selection, referenceOrderID string) bool {
	if primary.Empty() {
		return false
	}
	return len(UnmatchedTimes(cal, candidate, primary, referenceOrderID)) == 0
}
