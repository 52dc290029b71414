package scheduling

import (
	"sort"

	"github.com/spec-kit/install-dispatch/internal/domain"
)

// Calendar is a read-only snapshot of technician availability.
// Technicians or dates missing from the snapshot are treated as free.
type Calendar struct {
	days map[string]map[string][]domain.TimeSlot
}

// NewCalendar indexes schedules by technician and date. Slots are copied,
// sorted chronologically, and normalised so that only busy slots carry a
// reservation.
func NewCalendar(schedules []domain.TechnicianSchedule) Calendar {
	days := make(map[string]map[string][]domain.TimeSlot, len(schedules))
	for _, sched := range schedules {
		byDate, ok := days[sched.TechnicianName]
		if !ok {
			byDate = make(map[string][]domain.TimeSlot, len(sched.Schedule))
			days[sched.TechnicianName] = byDate
		}
		for date, slots := range sched.Schedule {
			byDate[date] = mergeSlots(byDate[date], slots)
		}
	}
	return Calendar{days: days}
}

// DaySlots returns the technician's slots for date in chronological order.
func (c Calendar) DaySlots(technician, date string) []domain.TimeSlot {
	slots := c.days[technician][date]
	out := make([]domain.TimeSlot, len(slots))
	copy(out, slots)
	return out
}

// Slot looks up a single hour. The second result is false when the snapshot
// has no data for it.
func (c Calendar) Slot(technician, date string, tc domain.TimeComponent) (domain.TimeSlot, bool) {
	for _, slot := range c.days[technician][date] {
		if slot.Time() == tc {
			return slot, true
		}
	}
	return domain.TimeSlot{}, false
}

// HasDay reports whether the snapshot carries any slots for the technician on date.
func (c Calendar) HasDay(technician, date string) bool {
	return len(c.days[technician][date]) > 0
}

// Bookable reports whether orderID may hold the hour. A day missing from the
// snapshot is all-free; on a known day the hour must be listed and either
// free or already reserved by orderID itself.
func (c Calendar) Bookable(technician, date string, tc domain.TimeComponent, orderID string) bool {
	if !c.HasDay(technician, date) {
		return true
	}
	slot, ok := c.Slot(technician, date, tc)
	if !ok {
		return false
	}
	return !slot.Busy || slot.ReservedBy(orderID)
}

// Technicians returns the technician names present in the snapshot.
func (c Calendar) Technicians() []string {
	names := make([]string, 0, len(c.days))
	for name := range c.days {
		names = append(names, name)
	}
	return names
}

func mergeSlots(existing, incoming []domain.TimeSlot) []domain.TimeSlot {
	merged := make([]domain.TimeSlot, 0, len(existing)+len(incoming))
	merged = append(merged, existing...)
	for _, slot := range incoming {
		if !slot.Busy {
			slot.ReservingOrderID = nil
		} else if slot.ReservingOrderID != nil {
			id := *slot.ReservingOrderID
			slot.ReservingOrderID = &id
		}
		replaced := false
		for i := range merged {
			if merged[i].Time() == slot.Time() {
				merged[i] = slot
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, slot)
		}
	}
	sortSlots(merged)
	return merged
}

func sortSlots(slots []domain.TimeSlot) {
	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].Time().Before(slots[j].Time())
	})
}
