package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/install-dispatch/internal/domain"
	"github.com/spec-kit/install-dispatch/internal/events"
	"github.com/spec-kit/install-dispatch/internal/repository"
	"github.com/spec-kit/install-dispatch/internal/scheduling"
	apperrors "github.com/spec-kit/install-dispatch/pkg/util"
)

const planDate = "2025-03-10"

var (
	twoPM   = domain.TimeComponent{Hour: 2, Meridiem: domain.MeridiemPM}
	threePM = domain.TimeComponent{Hour: 3, Meridiem: domain.MeridiemPM}
	fourPM  = domain.TimeComponent{Hour: 4, Meridiem: domain.MeridiemPM}
)

type schedulingFixture struct {
	svc     *SchedulingService
	orders  *memOrderRepo
	slots   *memSlotRepo
	drafts  *memDraftStore
	cache   *memCalendarCache
	history *memHistoryRepo
	events  *recordedEvents
}

func newSchedulingFixture(t *testing.T) schedulingFixture {
	t.Helper()
	slots := newMemSlotRepo()
	ctx := context.Background()
	require.NoError(t, slots.PublishDay(ctx, "Alex", "North", planDate, []domain.TimeComponent{twoPM, threePM, fourPM}))
	require.NoError(t, slots.PublishDay(ctx, "Sam", "North", planDate, []domain.TimeComponent{twoPM, threePM, fourPM}))

	history := &memHistoryRepo{}
	orders := newMemOrderRepo(slots)
	orders.history = history
	drafts := newMemDraftStore()
	cache := newMemCalendarCache()
	dispatcher := events.NewInMemoryDispatcher()
	calendar := NewCalendarService(CalendarDependencies{SlotRepo: slots, TeamRepo: newMemTeamRepo("North"), Cache: cache, CacheTTL: time.Minute})
	svc := NewSchedulingService(SchedulingDependencies{
		DraftStore:  drafts,
		OrderRepo:   orders,
		Calendar:    calendar,
		Dispatcher:  dispatcher,
	})
	return schedulingFixture{
		svc:     svc,
		orders:  orders,
		slots:   slots,
		drafts:  drafts,
		cache:   cache,
		history: history,
		events:  recordAll(dispatcher),
	}
}

func key(technician string, tc domain.TimeComponent) string {
	return scheduling.Encode(scheduling.NewSlotKey(technician, planDate, tc))
}

// plannedDraft builds a draft with Alex at 2PM and 3PM and Sam as secondary.
func (f schedulingFixture) plannedDraft(t *testing.T) scheduling.OrderDraft {
	t.Helper()
	ctx := context.Background()
	draft, err := f.svc.StartDraft(ctx, northOperator, DraftStartInput{Date: planDate, ClientID: "client-7", City: "Riga"})
	require.NoError(t, err)
	_, err = f.svc.SelectTechnician(ctx, northOperator, draft.ID, "Alex")
	require.NoError(t, err)
	for _, tc := range []domain.TimeComponent{twoPM, threePM} {
		res, err := f.svc.ToggleSlot(ctx, northOperator, draft.ID, key("Alex", tc))
		require.NoError(t, err)
		require.True(t, res.Outcome.Accepted)
	}
	res, err := f.svc.SetSecondary(ctx, northOperator, draft.ID, "Sam")
	require.NoError(t, err)
	require.True(t, res.Outcome.Accepted)
	return res.Draft
}

func (f schedulingFixture) committedOrder(t *testing.T) *domain.Order {
	t.Helper()
	draft := f.plannedDraft(t)
	res, err := f.svc.Commit(context.Background(), northOperator, draft.ID)
	require.NoError(t, err)
	require.True(t, res.Outcome.Accepted)
	require.NotNil(t, res.Order)
	return res.Order
}

func TestCommitCreatesOrderAndReservesSlots(t *testing.T) {
	f := newSchedulingFixture(t)
	draft := f.plannedDraft(t)

	res, err := f.svc.Commit(context.Background(), northOperator, draft.ID)
	require.NoError(t, err)
	require.True(t, res.Outcome.Accepted)
	order := res.Order
	require.NotNil(t, order)

	assert.Equal(t, "North", order.OwnerTeam)
	assert.Equal(t, "client-7", order.ClientID)
	assert.Equal(t, "2PM", order.StartTime)
	assert.Equal(t,
		"Alex-2025-03-10-2-PM,Alex-2025-03-10-3-PM,Sam-2025-03-10-2-PM,Sam-2025-03-10-3-PM",
		order.DateSlots)
	for _, tech := range []string{"Alex", "Sam"} {
		assert.Equal(t, order.ID, f.slots.reservedBy(tech, planDate, twoPM))
		assert.Equal(t, order.ID, f.slots.reservedBy(tech, planDate, threePM))
		assert.Empty(t, f.slots.reservedBy(tech, planDate, fourPM))
	}

	_, err = f.svc.GetDraft(context.Background(), northOperator, draft.ID)
	requireCode(t, err, apperrors.CodeNotFound)
	assert.Equal(t, 1, f.cache.invalidated)
	assert.Contains(t, f.events.types(), events.EventOrderCreated)
}

func TestToggleBusySlotIsRefused(t *testing.T) {
	f := newSchedulingFixture(t)
	f.committedOrder(t)

	draft, err := f.svc.StartDraft(context.Background(), northPeer, DraftStartInput{Date: planDate})
	require.NoError(t, err)
	_, err = f.svc.SelectTechnician(context.Background(), northPeer, draft.ID, "Alex")
	require.NoError(t, err)

	res, err := f.svc.ToggleSlot(context.Background(), northPeer, draft.ID, key("Alex", twoPM))
	require.NoError(t, err)
	assert.False(t, res.Outcome.Accepted)
	assert.Equal(t, scheduling.ReasonSlotUnavailable, res.Outcome.Reason)
	assert.Empty(t, res.Draft.Primary.Times)

	res, err = f.svc.ToggleSlot(context.Background(), northPeer, draft.ID, key("Alex", fourPM))
	require.NoError(t, err)
	assert.True(t, res.Outcome.Accepted)
}

func TestToggleMalformedKey(t *testing.T) {
	f := newSchedulingFixture(t)
	draft, err := f.svc.StartDraft(context.Background(), northOperator, DraftStartInput{Date: planDate})
	require.NoError(t, err)

	_, err = f.svc.ToggleSlot(context.Background(), northOperator, draft.ID, "Alex-2025-03-10-13-PM")
	requireCode(t, err, apperrors.CodeMalformedKey)
}

func TestStartDraftRejectsBadDate(t *testing.T) {
	f := newSchedulingFixture(t)
	_, err := f.svc.StartDraft(context.Background(), northOperator, DraftStartInput{Date: "2025-02-30"})
	requireCode(t, err, apperrors.CodeValidationFailed)
}

func TestSetSecondaryIncompatibleLeavesDraft(t *testing.T) {
	f := newSchedulingFixture(t)
	require.NoError(t, f.slots.PublishDay(context.Background(), "Jo", "North", planDate, []domain.TimeComponent{twoPM}))

	ctx := context.Background()
	draft, err := f.svc.StartDraft(ctx, northOperator, DraftStartInput{Date: planDate})
	require.NoError(t, err)
	_, err = f.svc.SelectTechnician(ctx, northOperator, draft.ID, "Alex")
	require.NoError(t, err)
	_, err = f.svc.ToggleSlot(ctx, northOperator, draft.ID, key("Alex", twoPM))
	require.NoError(t, err)
	_, err = f.svc.ToggleSlot(ctx, northOperator, draft.ID, key("Alex", threePM))
	require.NoError(t, err)

	res, err := f.svc.SetSecondary(ctx, northOperator, draft.ID, "Jo")
	require.NoError(t, err)
	assert.False(t, res.Outcome.Accepted)
	assert.Equal(t, scheduling.ReasonIncompatible, res.Outcome.Reason)
	assert.Equal(t, []domain.TimeComponent{threePM}, res.Outcome.IncompatibleTimes)

	stored, err := f.svc.GetDraft(ctx, northOperator, draft.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Secondary)
}

func TestRescheduleReleasesDroppedSlots(t *testing.T) {
	f := newSchedulingFixture(t)
	order := f.committedOrder(t)
	ctx := context.Background()

	draft, err := f.svc.LoadDraftForOrder(ctx, northOperator, order.ID)
	require.NoError(t, err)
	require.NotNil(t, draft.Secondary)
	assert.Equal(t, order.Version, draft.Version)

	res, err := f.svc.ToggleSlot(ctx, northOperator, draft.ID, key("Alex", threePM))
	require.NoError(t, err)
	require.True(t, res.Outcome.Accepted)
	assert.True(t, res.Outcome.Released)
	require.NotNil(t, res.Draft.Secondary)
	assert.Equal(t, []domain.TimeComponent{twoPM}, res.Draft.Secondary.Selection.Times)

	committed, err := f.svc.Commit(ctx, northOperator, draft.ID)
	require.NoError(t, err)
	require.True(t, committed.Outcome.Accepted)
	assert.Equal(t, "Alex-2025-03-10-2-PM,Sam-2025-03-10-2-PM", committed.Order.DateSlots)
	assert.Equal(t, 2, committed.Order.Version)

	for _, tech := range []string{"Alex", "Sam"} {
		assert.Equal(t, order.ID, f.slots.reservedBy(tech, planDate, twoPM))
		assert.Empty(t, f.slots.reservedBy(tech, planDate, threePM))
	}

	entries, err := f.history.ListByOrder(ctx, order.ID)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, domain.ChangeTypeSchedule, entries[len(entries)-1].ChangeType)

	types := f.events.types()
	assert.Contains(t, types, events.EventSlotReleased)
	assert.Contains(t, types, events.EventOrderScheduled)
}

func TestOwnReservationIsReselectable(t *testing.T) {
	f := newSchedulingFixture(t)
	order := f.committedOrder(t)
	ctx := context.Background()

	draft, err := f.svc.LoadDraftForOrder(ctx, northOperator, order.ID)
	require.NoError(t, err)
	res, err := f.svc.ToggleSlot(ctx, northOperator, draft.ID, key("Alex", threePM))
	require.NoError(t, err)
	require.True(t, res.Outcome.Accepted)

	res, err = f.svc.ToggleSlot(ctx, northOperator, draft.ID, key("Alex", threePM))
	require.NoError(t, err)
	assert.True(t, res.Outcome.Accepted)
	assert.Equal(t, []domain.TimeComponent{twoPM, threePM}, res.Draft.Primary.Times)
}

func TestCommitEvictsSecondaryThatBecameBusy(t *testing.T) {
	f := newSchedulingFixture(t)
	draft := f.plannedDraft(t)

	other := repository.ScheduleChange{Reserve: []scheduling.SlotKey{scheduling.NewSlotKey("Sam", planDate, threePM)}, Team: "South"}
	require.NoError(t, f.slots.apply("other-order", other))

	res, err := f.svc.Commit(context.Background(), northOperator, draft.ID)
	require.NoError(t, err)
	assert.False(t, res.Outcome.Accepted)
	assert.Nil(t, res.Order)
	assert.Equal(t, scheduling.ReasonIncompatible, res.Outcome.Reason)
	assert.Equal(t, []domain.TimeComponent{threePM}, res.Outcome.IncompatibleTimes)
	assert.Nil(t, res.Draft.Secondary)

	stored, err := f.svc.GetDraft(context.Background(), northOperator, draft.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Secondary)
	assert.Contains(t, f.events.types(), events.EventSecondaryIncompatible)

	retry, err := f.svc.Commit(context.Background(), northOperator, draft.ID)
	require.NoError(t, err)
	assert.True(t, retry.Outcome.Accepted)
	assert.Equal(t, "Alex-2025-03-10-2-PM,Alex-2025-03-10-3-PM", retry.Order.DateSlots)
}

func TestCommitRefusesPrimarySlotTakenMeanwhile(t *testing.T) {
	f := newSchedulingFixture(t)
	draft := f.plannedDraft(t)

	other := repository.ScheduleChange{Reserve: []scheduling.SlotKey{scheduling.NewSlotKey("Alex", planDate, twoPM)}, Team: "South"}
	require.NoError(t, f.slots.apply("other-order", other))

	res, err := f.svc.Commit(context.Background(), northOperator, draft.ID)
	require.NoError(t, err)
	assert.False(t, res.Outcome.Accepted)
	assert.Equal(t, scheduling.ReasonSlotUnavailable, res.Outcome.Reason)
	assert.Nil(t, res.Order)

	orders, err := f.orders.List(context.Background(), repository.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCommitStaleDraftIsConflict(t *testing.T) {
	f := newSchedulingFixture(t)
	order := f.committedOrder(t)
	ctx := context.Background()

	draft, err := f.svc.LoadDraftForOrder(ctx, northOperator, order.ID)
	require.NoError(t, err)

	current, err := f.orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	current.Comment = "edited elsewhere"
	require.NoError(t, f.orders.Update(ctx, current, nil))

	_, err = f.svc.Commit(ctx, northOperator, draft.ID)
	requireCode(t, err, apperrors.CodeConflict)
}

func TestCommitBufferedOrderIsInvalidTransition(t *testing.T) {
	f := newSchedulingFixture(t)
	order := f.committedOrder(t)
	ctx := context.Background()

	draft, err := f.svc.LoadDraftForOrder(ctx, northOperator, order.ID)
	require.NoError(t, err)

	current, err := f.orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	target := "South"
	current.TransferStatus = domain.TransferStatusInBuffer
	current.TransferredToTeam = &target
	current.TransferredFrom = &domain.TransferOrigin{Team: "North"}
	f.orders.put(*current)

	_, err = f.svc.Commit(ctx, northOperator, draft.ID)
	requireCode(t, err, apperrors.CodeInvalidTransition)
}

func TestDraftAccessAndDiscard(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()
	draft, err := f.svc.StartDraft(ctx, northOperator, DraftStartInput{Date: planDate})
	require.NoError(t, err)

	_, err = f.svc.GetDraft(ctx, southOperator, draft.ID)
	requireCode(t, err, apperrors.CodeForbidden)

	_, err = f.svc.GetDraft(ctx, northPeer, draft.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.Discard(ctx, northOperator, draft.ID))
	_, err = f.svc.GetDraft(ctx, northOperator, draft.ID)
	requireCode(t, err, apperrors.CodeNotFound)
}

func TestChangeDateClearsSelection(t *testing.T) {
	f := newSchedulingFixture(t)
	draft := f.plannedDraft(t)

	moved, err := f.svc.ChangeDate(context.Background(), northOperator, draft.ID, "2025-03-11")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-11", moved.Primary.Date)
	assert.Equal(t, "Alex", moved.Primary.Technician)
	assert.Empty(t, moved.Primary.Times)
	assert.Nil(t, moved.Secondary)

	_, err = f.svc.ChangeDate(context.Background(), northOperator, draft.ID, "11/03/2025")
	requireCode(t, err, apperrors.CodeValidationFailed)
}

func TestReconcileKeepsCompatibleSecondary(t *testing.T) {
	f := newSchedulingFixture(t)
	draft := f.plannedDraft(t)

	res, err := f.svc.Reconcile(context.Background(), northOperator, draft.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Draft.Secondary)
	assert.Empty(t, res.Outcome.Events)
}
