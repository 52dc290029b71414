package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/install-dispatch/internal/domain"
	"github.com/spec-kit/install-dispatch/internal/repository"
	"github.com/spec-kit/install-dispatch/internal/scheduling"
)

type memSlotRepo struct {
	mu        sync.Mutex
	schedules map[string]*domain.TechnicianSchedule
}

func newMemSlotRepo() *memSlotRepo {
	return &memSlotRepo{schedules: make(map[string]*domain.TechnicianSchedule)}
}

func (r *memSlotRepo) Snapshot(_ context.Context, from, to string) ([]domain.TechnicianSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.schedules))
	for name := range r.schedules {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []domain.TechnicianSchedule
	for _, name := range names {
		src := r.schedules[name]
		copied := domain.TechnicianSchedule{TechnicianName: src.TechnicianName, Team: src.Team, Schedule: map[string][]domain.TimeSlot{}}
		for date, slots := range src.Schedule {
			if date < from || date > to {
				continue
			}
			copied.Schedule[date] = append([]domain.TimeSlot(nil), slots...)
		}
		out = append(out, copied)
	}
	return out, nil
}

func (r *memSlotRepo) PublishDay(_ context.Context, technician, team, date string, free []domain.TimeComponent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sched := r.schedule(technician, team)
	var kept []domain.TimeSlot
	for _, slot := range sched.Schedule[date] {
		if slot.Busy {
			kept = append(kept, slot)
		}
	}
	for _, tc := range free {
		kept = append(kept, domain.TimeSlot{Hour: tc.Hour, Meridiem: tc.Meridiem})
	}
	sched.Schedule[date] = kept
	return nil
}

func (r *memSlotRepo) schedule(technician, team string) *domain.TechnicianSchedule {
	sched, ok := r.schedules[technician]
	if !ok {
		sched = &domain.TechnicianSchedule{TechnicianName: technician, Team: team, Schedule: map[string][]domain.TimeSlot{}}
		r.schedules[technician] = sched
	}
	return sched
}

// apply mirrors the reservation rules of the SQL repository.
func (r *memSlotRepo) apply(orderID string, change repository.ScheduleChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range change.Release {
		sched := r.schedule(key.Technician, change.Team)
		slots := sched.Schedule[key.Date]
		for i := range slots {
			if slots[i].Time() == key.Time() && slots[i].ReservedBy(orderID) {
				slots[i].Busy = false
				slots[i].ReservingOrderID = nil
			}
		}
	}
	for _, key := range change.Reserve {
		sched := r.schedule(key.Technician, change.Team)
		slots := sched.Schedule[key.Date]
		id := orderID
		found := false
		for i := range slots {
			if slots[i].Time() != key.Time() {
				continue
			}
			found = true
			if slots[i].Busy && !slots[i].ReservedBy(orderID) {
				return fmt.Errorf("%w: %s", repository.ErrSlotTaken, key)
			}
			slots[i].Busy = true
			slots[i].ReservingOrderID = &id
		}
		if !found {
			slots = append(slots, domain.TimeSlot{Hour: key.Hour, Meridiem: key.Meridiem, Busy: true, ReservingOrderID: &id})
		}
		sched.Schedule[key.Date] = slots
	}
	return nil
}

func (r *memSlotRepo) reservedBy(technician, date string, tc domain.TimeComponent) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	sched, ok := r.schedules[technician]
	if !ok {
		return ""
	}
	for _, slot := range sched.Schedule[date] {
		if slot.Time() == tc && slot.ReservingOrderID != nil {
			return *slot.ReservingOrderID
		}
	}
	return ""
}

type memOrderRepo struct {
	mu      sync.Mutex
	orders  map[string]domain.Order
	slots   *memSlotRepo
	history *memHistoryRepo
	// failHistory makes the next history write fail so rollback can be observed.
	failHistory error
}

func newMemOrderRepo(slots *memSlotRepo) *memOrderRepo {
	return &memOrderRepo{orders: make(map[string]domain.Order), slots: slots}
}

// historyFault returns the pending history failure once. Writes check it
// before touching any state, the way a failed insert rolls back the order.
func (r *memOrderRepo) historyFault() error {
	err := r.failHistory
	r.failHistory = nil
	return err
}

func (r *memOrderRepo) record(orderID string, entry *domain.OrderHistory) {
	if r.history == nil || entry == nil {
		return
	}
	entry.OrderID = orderID
	r.history.add(entry)
}

func (r *memOrderRepo) Create(_ context.Context, order *domain.Order, schedule repository.ScheduleChange, entry *domain.OrderHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.historyFault(); err != nil {
		return err
	}
	if r.slots != nil {
		if err := r.slots.apply(order.ID, schedule); err != nil {
			return err
		}
	}
	order.Version = 1
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	r.orders[order.ID] = *order
	r.record(order.ID, entry)
	return nil
}

func (r *memOrderRepo) Update(_ context.Context, order *domain.Order, entry *domain.OrderHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.update(order, nil, entry)
}

func (r *memOrderRepo) UpdateSchedule(_ context.Context, order *domain.Order, schedule repository.ScheduleChange, entry *domain.OrderHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.update(order, &schedule, entry)
}

// update checks everything that can fail before it mutates state, the way
// the SQL transaction rolls back as a unit.
func (r *memOrderRepo) update(order *domain.Order, schedule *repository.ScheduleChange, entry *domain.OrderHistory) error {
	stored, ok := r.orders[order.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if stored.Version != order.Version {
		return repository.ErrVersionConflict
	}
	if err := r.historyFault(); err != nil {
		return err
	}
	if schedule != nil && r.slots != nil {
		if err := r.slots.apply(order.ID, *schedule); err != nil {
			return err
		}
	}
	order.Version++
	order.UpdatedAt = time.Now()
	r.orders[order.ID] = *order
	r.record(order.ID, entry)
	return nil
}

func (r *memOrderRepo) GetByID(_ context.Context, id string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &order, nil
}

func (r *memOrderRepo) List(_ context.Context, filter repository.OrderFilter) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Order
	for _, order := range r.orders {
		if filter.OwnerTeam != "" && order.OwnerTeam != filter.OwnerTeam {
			continue
		}
		if filter.InBuffer != nil && order.InBuffer() != *filter.InBuffer {
			continue
		}
		out = append(out, order)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memOrderRepo) ListBuffered(_ context.Context, team string) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Order
	for _, order := range r.orders {
		if order.InBuffer() && order.TransferredToTeam != nil && *order.TransferredToTeam == team {
			out = append(out, order)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memOrderRepo) put(order domain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if order.Version == 0 {
		order.Version = 1
	}
	r.orders[order.ID] = order
}

type memRequestRepo struct {
	mu       sync.Mutex
	requests map[string]domain.UnclaimedRequest
	orders   *memOrderRepo
	seq      int
}

func newMemRequestRepo(orders *memOrderRepo) *memRequestRepo {
	return &memRequestRepo{requests: make(map[string]domain.UnclaimedRequest), orders: orders}
}

func (r *memRequestRepo) Create(_ context.Context, req *domain.UnclaimedRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	if req.ID == "" {
		req.ID = fmt.Sprintf("req-%d", r.seq)
	}
	req.CreatedAt = time.Now()
	r.requests[req.ID] = *req
	return nil
}

func (r *memRequestRepo) GetByID(_ context.Context, id string) (*domain.UnclaimedRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &req, nil
}

func (r *memRequestRepo) ListUnclaimed(_ context.Context, city string, _, _ int) ([]domain.UnclaimedRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.UnclaimedRequest
	for _, req := range r.requests {
		if req.Claimed() || (city != "" && req.City != city) {
			continue
		}
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRequestRepo) Claim(ctx context.Context, requestID string, order *domain.Order, entry *domain.OrderHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[requestID]
	if !ok {
		return pgx.ErrNoRows
	}
	if req.Claimed() {
		return repository.ErrRequestClaimed
	}
	if err := r.orders.Create(ctx, order, repository.ScheduleChange{}, entry); err != nil {
		return err
	}
	team := order.OwnerTeam
	now := time.Now()
	orderID := order.ID
	req.ClaimedByTeam = &team
	req.ClaimedAt = &now
	req.OrderID = &orderID
	r.requests[requestID] = req
	return nil
}

// markClaimed simulates another team winning the claim after the request was read.
func (r *memRequestRepo) markClaimed(id, team string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req := r.requests[id]
	req.ClaimedByTeam = &team
	r.requests[id] = req
}

type memHistoryRepo struct {
	mu      sync.Mutex
	entries []domain.OrderHistory
}

func (r *memHistoryRepo) add(history *domain.OrderHistory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	history.ID = fmt.Sprintf("hist-%d", len(r.entries)+1)
	history.CreatedAt = time.Now()
	r.entries = append(r.entries, *history)
}

func (r *memHistoryRepo) ListByOrder(_ context.Context, orderID string) ([]domain.OrderHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.OrderHistory
	for _, entry := range r.entries {
		if entry.OrderID == orderID {
			out = append(out, entry)
		}
	}
	return out, nil
}

type memTeamRepo struct {
	teams map[string]domain.Team
}

func newMemTeamRepo(names ...string) *memTeamRepo {
	repo := &memTeamRepo{teams: make(map[string]domain.Team)}
	for _, name := range names {
		repo.teams[name] = domain.Team{ID: name, Name: name, IsActive: true}
	}
	return repo
}

func (r *memTeamRepo) Create(_ context.Context, team *domain.Team) error {
	if _, exists := r.teams[team.Name]; exists {
		return fmt.Errorf("team %s exists", team.Name)
	}
	team.ID = team.Name
	r.teams[team.Name] = *team
	return nil
}

func (r *memTeamRepo) GetByName(_ context.Context, name string) (*domain.Team, error) {
	team, ok := r.teams[name]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &team, nil
}

func (r *memTeamRepo) ListActive(_ context.Context) ([]domain.Team, error) {
	var out []domain.Team
	for _, team := range r.teams {
		if team.IsActive {
			out = append(out, team)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memTeamRepo) ListCities(_ context.Context, name string) ([]domain.City, error) {
	team, ok := r.teams[name]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cities := make([]domain.City, 0, len(team.Cities))
	for _, city := range team.Cities {
		cities = append(cities, domain.City{Name: city})
	}
	return cities, nil
}

type memDraftStore struct {
	mu     sync.Mutex
	drafts map[string]scheduling.OrderDraft
}

func newMemDraftStore() *memDraftStore {
	return &memDraftStore{drafts: make(map[string]scheduling.OrderDraft)}
}

func (s *memDraftStore) Save(_ context.Context, draft scheduling.OrderDraft, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[draft.ID] = draft
	return nil
}

func (s *memDraftStore) Get(_ context.Context, id string) (scheduling.OrderDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	draft, ok := s.drafts[id]
	if !ok {
		return scheduling.OrderDraft{}, repository.ErrCacheMiss
	}
	return draft, nil
}

func (s *memDraftStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, id)
	return nil
}

type memCalendarCache struct {
	entries     map[string][]domain.TechnicianSchedule
	invalidated int
}

func newMemCalendarCache() *memCalendarCache {
	return &memCalendarCache{entries: make(map[string][]domain.TechnicianSchedule)}
}

func (c *memCalendarCache) Get(_ context.Context, from, to string) ([]domain.TechnicianSchedule, error) {
	schedules, ok := c.entries[from+":"+to]
	if !ok {
		return nil, repository.ErrCacheMiss
	}
	return schedules, nil
}

func (c *memCalendarCache) Set(_ context.Context, from, to string, schedules []domain.TechnicianSchedule, _ time.Duration) error {
	c.entries[from+":"+to] = schedules
	return nil
}

func (c *memCalendarCache) Invalidate(_ context.Context) error {
	c.invalidated++
	c.entries = make(map[string][]domain.TechnicianSchedule)
	return nil
}

func scheduleFor(technician string, times ...domain.TimeComponent) repository.ScheduleChange {
	change := repository.ScheduleChange{Team: "North"}
	for _, tc := range times {
		change.Reserve = append(change.Reserve, scheduling.NewSlotKey(technician, planDate, tc))
	}
	return change
}
