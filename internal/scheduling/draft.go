package scheduling

import (
	"fmt"
	"strings"
	"time"

	"github.com/spec-kit/install-dispatch/internal/domain"
)

// Reason explains why a draft command was not applied.
type Reason string

const (
	ReasonSlotUnavailable     Reason = "slot_unavailable"
	ReasonSelectionMismatch   Reason = "selection_mismatch"
	ReasonSelectionIncomplete Reason = "selection_incomplete"
	ReasonNoPrimarySelection  Reason = "no_primary_selection"
	ReasonSameTechnician      Reason = "same_technician"
	ReasonIncompatible        Reason = "secondary_incompatible"
)

// EventType names a side effect surfaced to the caller.
type EventType string

const (
	EventSecondaryIncompatible EventType = "secondary_incompatible"
	EventSlotReleased          EventType = "slot_released"
)

// Event reports something the caller should show to the user.
type Event struct {
	Type       EventType              `json:"type"`
	Technician string                 `json:"technician"`
	Times      []domain.TimeComponent `json:"times"`
}

// Outcome is the result of a draft command.
type Outcome struct {
	Accepted          bool
	Reason            Reason
	Released          bool
	IncompatibleTimes []domain.TimeComponent
	Events            []Event
}

// SecondaryAssignment is the optional second technician. Its selection
// mirrors the primary's hours under the secondary's own name.
type SecondaryAssignment struct {
	Technician string    `json:"technician"`
	Selection  Selection `json:"selection"`
}

// OrderDraft is the editable scheduling state of one order. Commands return a
// new draft and never modify the receiver.
type OrderDraft struct {
	ID        string                `json:"id"`
	OrderID   string                `json:"order_id,omitempty"`
	Version   int                   `json:"order_version,omitempty"`
	Team      string                `json:"team"`
	CreatedBy string                `json:"created_by"`
	Primary   Selection             `json:"primary"`
	Original  []SlotKey             `json:"original,omitempty"`
	Secondary *SecondaryAssignment  `json:"secondary,omitempty"`
	StartTime *domain.TimeComponent `json:"start_time,omitempty"`
	ClientID  string                `json:"client_id,omitempty"`
	City      string                `json:"city,omitempty"`
	Address   string                `json:"address,omitempty"`
	Comment   string                `json:"comment,omitempty"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// NewDraft starts an empty draft for team on date.
func NewDraft(id, team, createdBy, date string) (OrderDraft, error) {
	if date != "" {
		if _, err := ParseDate(date); err != nil {
			return OrderDraft{}, err
		}
	}
	return OrderDraft{
		ID:        id,
		Team:      team,
		CreatedBy: createdBy,
		Primary:   Selection{Date: date},
	}, nil
}

// LoadDraft rebuilds a draft from a persisted order. The order's primary keys
// become the original selection used to flag released slots.
func LoadDraft(id string, order domain.Order, actor string) (OrderDraft, error) {
	primary, secondary, err := ParseDateSlots(order.DateSlots)
	if err != nil {
		return OrderDraft{}, err
	}
	d := OrderDraft{
		ID:        id,
		OrderID:   order.ID,
		Version:   order.Version,
		Team:      order.OwnerTeam,
		CreatedBy: actor,
		Primary:   primary,
		Original:  primary.Keys(),
		Secondary: secondary,
		ClientID:  order.ClientID,
		City:      order.City,
		Address:   order.Address,
		Comment:   order.Comment,
	}
	d.StartTime = startTimeOf(primary)
	return d, nil
}

// SelectTechnician switches the primary technician and starts an empty
// selection. Any secondary assignment is dropped with it.
func (d OrderDraft) SelectTechnician(name string) OrderDraft {
	if name == d.Primary.Technician {
		return d
	}
	d.Primary = Selection{Technician: name, Date: d.Primary.Date}
	d.Secondary = nil
	d.StartTime = nil
	return d
}

// ChangeDate moves the draft to another date and clears the selection.
func (d OrderDraft) ChangeDate(date string) (OrderDraft, error) {
	if _, err := ParseDate(date); err != nil {
		return d, err
	}
	if date == d.Primary.Date {
		return d, nil
	}
	d.Primary = Selection{Technician: d.Primary.Technician, Date: date}
	d.Secondary = nil
	d.StartTime = nil
	return d, nil
}

// ToggleSlot selects or deselects one hour of the primary technician.
func (d OrderDraft) ToggleSlot(cal Calendar, key SlotKey) (OrderDraft, Outcome) {
	if d.Primary.Technician == "" || d.Primary.Date == "" {
		return d, Outcome{Reason: ReasonSelectionIncomplete}
	}
	if key.Technician != d.Primary.Technician || key.Date != d.Primary.Date || !key.Time().Valid() {
		return d, Outcome{Reason: ReasonSelectionMismatch}
	}

	tc := key.Time()
	out := Outcome{Accepted: true}
	if d.Primary.Contains(tc) {
		d.Primary = d.Primary.without(tc)
		if containsKey(d.Original, key) {
			out.Released = true
			out.Events = append(out.Events, Event{
				Type:       EventSlotReleased,
				Technician: key.Technician,
				Times:      []domain.TimeComponent{tc},
			})
		}
	} else {
		if !cal.Bookable(key.Technician, key.Date, tc, d.OrderID) {
			return d, Outcome{Reason: ReasonSlotUnavailable}
		}
		d.Primary = d.Primary.with(tc)
	}

	d.StartTime = startTimeOf(d.Primary)
	d, events := d.Reconcile(cal)
	out.Events = append(out.Events, events...)
	return d, out
}

// SetSecondary assigns a second technician when they can work every selected
// hour. A rejected candidate leaves the draft unchanged.
func (d OrderDraft) SetSecondary(cal Calendar, name string) (OrderDraft, Outcome) {
	if strings.TrimSpace(name) == "" {
		return d, Outcome{Reason: ReasonSelectionIncomplete}
	}
	if d.Primary.Empty() {
		return d, Outcome{Reason: ReasonNoPrimarySelection}
	}
	if name == d.Primary.Technician {
		return d, Outcome{Reason: ReasonSameTechnician}
	}
	if unmatched := UnmatchedTimes(cal, name, d.Primary, d.OrderID); len(unmatched) > 0 {
		return d, Outcome{Reason: ReasonIncompatible, IncompatibleTimes: unmatched}
	}
	d.Secondary = &SecondaryAssignment{
		Technician: name,
		Selection:  d.Primary.Mirror(name),
	}
	return d, Outcome{Accepted: true}
}

// ClearSecondary removes the second technician.
func (d OrderDraft) ClearSecondary() OrderDraft {
	d.Secondary = nil
	return d
}

// Reconcile re-checks the secondary technician against a fresh snapshot. An
// assignment that no longer fits is evicted and reported with the hours that
// stopped matching; one that still fits is re-mirrored from the primary.
func (d OrderDraft) Reconcile(cal Calendar) (OrderDraft, []Event) {
	if d.Secondary == nil {
		return d, nil
	}
	name := d.Secondary.Technician
	if d.Primary.Empty() {
		d.Secondary = nil
		return d, []Event{{Type: EventSecondaryIncompatible, Technician: name}}
	}
	if unmatched := UnmatchedTimes(cal, name, d.Primary, d.OrderID); len(unmatched) > 0 {
		d.Secondary = nil
		return d, []Event{{Type: EventSecondaryIncompatible, Technician: name, Times: unmatched}}
	}
	d.Secondary = &SecondaryAssignment{Technician: name, Selection: d.Primary.Mirror(name)}
	return d, nil
}

// Released lists originally persisted primary keys that are no longer selected.
func (d OrderDraft) Released() []SlotKey {
	var released []SlotKey
	for _, key := range d.Original {
		if key.Technician == d.Primary.Technician && key.Date == d.Primary.Date && d.Primary.Contains(key.Time()) {
			continue
		}
		released = append(released, key)
	}
	return released
}

// Keys returns every key held by the draft, primary first.
func (d OrderDraft) Keys() []SlotKey {
	keys := d.Primary.Keys()
	if d.Secondary != nil {
		keys = append(keys, d.Secondary.Selection.Keys()...)
	}
	return keys
}

// DateSlots renders the persisted comma-joined key list.
func (d OrderDraft) DateSlots() string {
	return EncodeList(d.Keys())
}

// StartLabel formats the start time as "2PM", or "" when nothing is selected.
func (d OrderDraft) StartLabel() string {
	if d.StartTime == nil {
		return ""
	}
	return fmt.Sprintf("%d%s", d.StartTime.Hour, d.StartTime.Meridiem)
}

// ParseDateSlots splits a persisted key list into the primary selection and
// an optional secondary assignment. The first technician seen is primary.
func ParseDateSlots(raw string) (Selection, *SecondaryAssignment, error) {
	keys, err := DecodeList(raw)
	if err != nil {
		return Selection{}, nil, err
	}
	if len(keys) == 0 {
		return Selection{}, nil, nil
	}

	var order []string
	selections := make(map[string]Selection)
	for _, key := range keys {
		if key.Date != keys[0].Date {
			return Selection{}, nil, fmt.Errorf("%w: mixed dates %s and %s", ErrMalformedKey, keys[0].Date, key.Date)
		}
		sel, ok := selections[key.Technician]
		if !ok {
			order = append(order, key.Technician)
			sel = Selection{Technician: key.Technician, Date: key.Date}
		}
		selections[key.Technician] = sel.with(key.Time())
	}
	if len(order) > 2 {
		return Selection{}, nil, fmt.Errorf("%w: %d technicians in one order", ErrMalformedKey, len(order))
	}

	primary := selections[order[0]]
	if len(order) == 1 {
		return primary, nil, nil
	}
	secondary := selections[order[1]]
	if !sameTimes(primary.Times, secondary.Times) {
		return Selection{}, nil, fmt.Errorf("%w: secondary %q does not mirror primary", ErrMalformedKey, secondary.Technician)
	}
	return primary, &SecondaryAssignment{Technician: secondary.Technician, Selection: secondary}, nil
}

func startTimeOf(sel Selection) *domain.TimeComponent {
	start, ok := sel.StartTime()
	if !ok {
		return nil
	}
	return &start
}

func containsKey(keys []SlotKey, key SlotKey) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func sameTimes(a, b []domain.TimeComponent) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
