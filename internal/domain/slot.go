package domain

import (
	"fmt"
	"sort"
)

// Meridiem is the AM/PM half of a 12-hour clock time.
type Meridiem string

const (
	MeridiemAM Meridiem = "AM"
	MeridiemPM Meridiem = "PM"
)

// Valid reports whether m is one of the two accepted tokens.
func (m Meridiem) Valid() bool {
	return m == MeridiemAM || m == MeridiemPM
}

// TimeComponent is the (hour, meridiem) part of a slot.
type TimeComponent struct {
	Hour     int      `json:"hour"`
	Meridiem Meridiem `json:"meridiem"`
}

// String renders the component as "3-PM".
func (t TimeComponent) String() string {
	return fmt.Sprintf("%d-%s", t.Hour, t.Meridiem)
}

// Valid reports whether the hour is within 1..12 and the meridiem is known.
func (t TimeComponent) Valid() bool {
	return t.Hour >= 1 && t.Hour <= 12 && t.Meridiem.Valid()
}

// MinuteOfDay converts the component to minutes after midnight.
// 12AM is midnight and 12PM is noon.
func (t TimeComponent) MinuteOfDay() int {
	hour := t.Hour % 12
	if t.Meridiem == MeridiemPM {
		hour += 12
	}
	return hour * 60
}

// Before orders components chronologically.
func (t TimeComponent) Before(other TimeComponent) bool {
	return t.MinuteOfDay() < other.MinuteOfDay()
}

// SortTimes sorts components chronologically in place.
func SortTimes(times []TimeComponent) {
	sort.SliceStable(times, func(i, j int) bool {
		return times[i].Before(times[j])
	})
}

// TimeSlot is one bookable hour for a technician on a date.
// ReservingOrderID is set iff Busy is true.
type TimeSlot struct {
	Hour             int      `json:"hour"`
	Meridiem         Meridiem `json:"meridiem"`
	Busy             bool     `json:"busy"`
	ReservingOrderID *string  `json:"reserving_order_id,omitempty"`
}

// Time returns the slot's time component.
func (s TimeSlot) Time() TimeComponent {
	return TimeComponent{Hour: s.Hour, Meridiem: s.Meridiem}
}

// ReservedBy reports whether the slot is busy on behalf of orderID.
func (s TimeSlot) ReservedBy(orderID string) bool {
	return s.Busy && orderID != "" && s.ReservingOrderID != nil && *s.ReservingOrderID == orderID
}

// TechnicianSchedule is one technician's slots keyed by ISO date.
type TechnicianSchedule struct {
	TechnicianName string                `json:"technician_name"`
	Team           string                `json:"team"`
	Schedule       map[string][]TimeSlot `json:"schedule"`
}
