package lifecycle

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spec-kit/install-dispatch/internal/domain"
)

// State is the ownership/visibility state derived from an order.
type State string

const (
	StateUnclaimed State = "UNCLAIMED"
	StateClaimed   State = "CLAIMED"
	StateInBuffer  State = "IN_BUFFER"
)

// Transition names an operation on the lifecycle.
type Transition string

const (
	TransitionCreate       Transition = "create"
	TransitionClaim        Transition = "claim"
	TransitionTransfer     Transition = "transfer_to_buffer"
	TransitionReturn       Transition = "return_from_buffer"
	TransitionAccept       Transition = "accept_from_buffer"
	TransitionChangeStatus Transition = "change_status"
	TransitionMarkInvalid  Transition = "mark_invalid"
	TransitionReschedule   Transition = "reschedule"
)

// InternalTarget offers an order to teammates of the owning team.
const InternalTarget = "INTERNAL"

var (
	// ErrNotInBuffer rejects buffer operations on an order outside the buffer.
	ErrNotInBuffer = errors.New("order is not in buffer")
	// ErrAlreadyClaimed rejects a second claim of the same request.
	ErrAlreadyClaimed = errors.New("request already claimed")
	// ErrMissingIdentifier marks structurally invalid input.
	ErrMissingIdentifier = errors.New("missing identifier")
	// ErrInvalidInput marks values outside their allowed domain.
	ErrInvalidInput = errors.New("invalid input")
)

// InvalidTransitionError is returned when an operation is not allowed from
// the order's current state.
type InvalidTransitionError struct {
	From      State
	Attempted Transition
	Reason    string
}

func (e *InvalidTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot %s from %s: %s", e.Attempted, e.From, e.Reason)
	}
	return fmt.Sprintf("cannot %s from %s", e.Attempted, e.From)
}

// Change describes what a transition modified, for history and events.
type Change struct {
	Transition Transition
	Type       domain.OrderChangeType
	OldValue   map[string]any
	NewValue   map[string]any
}

// Result is the order after a successful transition.
type Result struct {
	Order  domain.Order
	Change Change
}

// CreateInput carries the fields of a new order.
type CreateInput struct {
	OrderID     string
	ExternalKey string
	Team        string
	Actor       string
	ClientID    string
	City        string
	Address     string
	Comment     string
	DateSlots   string
	StartTime   string
}

// Machine applies lifecycle transitions to order values.
type Machine struct {
	now func() time.Time
}

// NewMachine builds a machine. A nil clock defaults to time.Now.
func NewMachine(now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{now: now}
}

// StateOf derives the lifecycle state of an order.
func StateOf(o domain.Order) State {
	switch {
	case o.OwnerTeam == "":
		return StateUnclaimed
	case o.InBuffer():
		return StateInBuffer
	default:
		return StateClaimed
	}
}

// Create builds a claimed order owned by the creating team.
func (m *Machine) Create(in CreateInput) (Result, error) {
	if in.OrderID == "" || in.Team == "" {
		return Result{}, fmt.Errorf("%w: order id and team required", ErrMissingIdentifier)
	}
	order := domain.Order{
		ID:             in.OrderID,
		ExternalKey:    in.ExternalKey,
		OwnerTeam:      in.Team,
		CreatedBy:      in.Actor,
		TransferStatus: domain.TransferStatusNone,
		TextStatus:     domain.OrderStatusNew,
		ClientID:       in.ClientID,
		City:           in.City,
		Address:        in.Address,
		Comment:        in.Comment,
		DateSlots:      in.DateSlots,
		StartTime:      in.StartTime,
	}
	return Result{
		Order: order,
		Change: Change{
			Transition: TransitionCreate,
			Type:       domain.ChangeTypeCreated,
			NewValue: map[string]any{
				"owner_team": order.OwnerTeam,
				"status":     order.TextStatus,
				"date_slots": order.DateSlots,
			},
		},
	}, nil
}

// Claim turns an unclaimed request into an order owned by claimantTeam.
func (m *Machine) Claim(req domain.UnclaimedRequest, claimantTeam string, in CreateInput) (Result, error) {
	if req.ID == "" || claimantTeam == "" {
		return Result{}, fmt.Errorf("%w: request id and team required", ErrMissingIdentifier)
	}
	if req.Claimed() {
		return Result{}, ErrAlreadyClaimed
	}
	in.Team = claimantTeam
	in.ClientID = req.ClientID
	in.City = req.City
	in.Address = req.Address
	if in.Comment == "" {
		in.Comment = req.Comment
	}
	res, err := m.Create(in)
	if err != nil {
		return Result{}, err
	}
	requestID := req.ID
	res.Order.RequestID = &requestID
	res.Change = Change{
		Transition: TransitionClaim,
		Type:       domain.ChangeTypeClaimed,
		OldValue:   map[string]any{"request_id": req.ID},
		NewValue:   map[string]any{"owner_team": claimantTeam, "status": res.Order.TextStatus},
	}
	return res, nil
}

// TransferToBuffer offers a claimed order to targetTeam. InternalTarget keeps
// it inside the owning team. Re-transferring a buffered order is allowed.
func (m *Machine) TransferToBuffer(o domain.Order, targetTeam, actor, comment string) (Result, error) {
	if o.ID == "" || strings.TrimSpace(targetTeam) == "" {
		return Result{}, fmt.Errorf("%w: order id and target team required", ErrMissingIdentifier)
	}
	from := StateOf(o)
	if from == StateUnclaimed {
		return Result{}, &InvalidTransitionError{From: from, Attempted: TransitionTransfer}
	}
	if targetTeam == InternalTarget {
		targetTeam = o.OwnerTeam
	}

	old := bufferSnapshot(o)
	o.TransferStatus = domain.TransferStatusInBuffer
	o.TransferredToTeam = &targetTeam
	o.TransferredFrom = &domain.TransferOrigin{
		Team:          o.OwnerTeam,
		UserName:      actor,
		TransferredAt: m.now(),
		Comment:       strings.TrimSpace(comment),
	}
	return Result{
		Order: o,
		Change: Change{
			Transition: TransitionTransfer,
			Type:       domain.ChangeTypeTransfer,
			OldValue:   old,
			NewValue: map[string]any{
				"transfer_status":     o.TransferStatus,
				"transferred_to_team": targetTeam,
				"internal":            targetTeam == o.OwnerTeam,
				"comment":             o.TransferredFrom.Comment,
			},
		},
	}, nil
}

// ReturnFromBuffer takes a buffered order back to its owner.
func (m *Machine) ReturnFromBuffer(o domain.Order, fromTeam string) (Result, error) {
	if o.ID == "" || fromTeam == "" {
		return Result{}, fmt.Errorf("%w: order id and team required", ErrMissingIdentifier)
	}
	if !o.InBuffer() {
		return Result{}, ErrNotInBuffer
	}
	old := bufferSnapshot(o)
	clearBuffer(&o)
	return Result{
		Order: o,
		Change: Change{
			Transition: TransitionReturn,
			Type:       domain.ChangeTypeReturn,
			OldValue:   old,
			NewValue: map[string]any{
				"transfer_status": o.TransferStatus,
				"returned_by":     fromTeam,
			},
		},
	}, nil
}

// AcceptFromBuffer gives ownership of a buffered order to the team it was
// offered to.
func (m *Machine) AcceptFromBuffer(o domain.Order, acceptingTeam string) (Result, error) {
	if o.ID == "" || acceptingTeam == "" {
		return Result{}, fmt.Errorf("%w: order id and team required", ErrMissingIdentifier)
	}
	if !o.InBuffer() {
		return Result{}, ErrNotInBuffer
	}
	if o.TransferredToTeam == nil || *o.TransferredToTeam != acceptingTeam {
		return Result{}, &InvalidTransitionError{
			From:      StateInBuffer,
			Attempted: TransitionAccept,
			Reason:    "order was not offered to " + acceptingTeam,
		}
	}
	old := bufferSnapshot(o)
	old["owner_team"] = o.OwnerTeam
	o.OwnerTeam = acceptingTeam
	clearBuffer(&o)
	return Result{
		Order: o,
		Change: Change{
			Transition: TransitionAccept,
			Type:       domain.ChangeTypeAccept,
			OldValue:   old,
			NewValue: map[string]any{
				"owner_team":      o.OwnerTeam,
				"transfer_status": o.TransferStatus,
			},
		},
	}, nil
}

// ChangeStatus moves the order to any status of the enumeration except
// INVALID, which needs a reason and goes through MarkInvalid. Buffered orders
// are frozen until accepted or returned.
func (m *Machine) ChangeStatus(o domain.Order, status domain.OrderStatus) (Result, error) {
	if o.ID == "" {
		return Result{}, fmt.Errorf("%w: order id required", ErrMissingIdentifier)
	}
	if !status.Valid() {
		return Result{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	if status == domain.OrderStatusInvalid {
		return Result{}, fmt.Errorf("%w: use MarkInvalid with a reason", ErrInvalidInput)
	}
	switch from := StateOf(o); from {
	case StateUnclaimed:
		return Result{}, &InvalidTransitionError{From: from, Attempted: TransitionChangeStatus}
	case StateInBuffer:
		return Result{}, &InvalidTransitionError{
			From:      from,
			Attempted: TransitionChangeStatus,
			Reason:    "order is frozen while in buffer",
		}
	}
	oldStatus := o.TextStatus
	o.TextStatus = status
	o.InvalidReason = ""
	return Result{
		Order: o,
		Change: Change{
			Transition: TransitionChangeStatus,
			Type:       domain.ChangeTypeStatus,
			OldValue:   map[string]any{"status": oldStatus},
			NewValue:   map[string]any{"status": status},
		},
	}, nil
}

// MarkInvalid flags a claimed order as invalid regardless of its status or
// buffer state.
func (m *Machine) MarkInvalid(o domain.Order, reason string) (Result, error) {
	if o.ID == "" {
		return Result{}, fmt.Errorf("%w: order id required", ErrMissingIdentifier)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Result{}, fmt.Errorf("%w: reason required", ErrInvalidInput)
	}
	if from := StateOf(o); from == StateUnclaimed {
		return Result{}, &InvalidTransitionError{From: from, Attempted: TransitionMarkInvalid}
	}
	oldStatus := o.TextStatus
	o.TextStatus = domain.OrderStatusInvalid
	o.InvalidReason = reason
	return Result{
		Order: o,
		Change: Change{
			Transition: TransitionMarkInvalid,
			Type:       domain.ChangeTypeInvalid,
			OldValue:   map[string]any{"status": oldStatus},
			NewValue:   map[string]any{"status": o.TextStatus, "reason": reason},
		},
	}, nil
}

func bufferSnapshot(o domain.Order) map[string]any {
	snapshot := map[string]any{"transfer_status": o.TransferStatus}
	if o.TransferredToTeam != nil {
		snapshot["transferred_to_team"] = *o.TransferredToTeam
	}
	if o.TransferredFrom != nil {
		snapshot["transferred_from_team"] = o.TransferredFrom.Team
	}
	return snapshot
}

func clearBuffer(o *domain.Order) {
	o.TransferStatus = domain.TransferStatusNone
	o.TransferredToTeam = nil
	o.TransferredFrom = nil
}
