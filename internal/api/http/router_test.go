package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/install-dispatch/internal/api/http/handlers"
	"github.com/spec-kit/install-dispatch/internal/auth"
	"github.com/spec-kit/install-dispatch/internal/domain"
	"github.com/spec-kit/install-dispatch/internal/events"
	"github.com/spec-kit/install-dispatch/internal/observability"
	"github.com/spec-kit/install-dispatch/internal/repository"
	"github.com/spec-kit/install-dispatch/internal/scheduling"
	"github.com/spec-kit/install-dispatch/internal/service"
)

const planDate = "2025-03-10"

type stubRequestRepo struct {
	mu       sync.Mutex
	requests map[string]domain.UnclaimedRequest
	orders   *stubOrderRepo
}

func (r *stubRequestRepo) Create(_ context.Context, req *domain.UnclaimedRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req.ID = uuid.NewString()
	req.CreatedAt = time.Now()
	r.requests[req.ID] = *req
	return nil
}

func (r *stubRequestRepo) GetByID(_ context.Context, id string) (*domain.UnclaimedRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &req, nil
}

func (r *stubRequestRepo) ListUnclaimed(_ context.Context, _ string, _, _ int) ([]domain.UnclaimedRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.UnclaimedRequest
	for _, req := range r.requests {
		if !req.Claimed() {
			out = append(out, req)
		}
	}
	return out, nil
}

func (r *stubRequestRepo) Claim(ctx context.Context, requestID string, order *domain.Order, entry *domain.OrderHistory) error {
	r.mu.Lock()
	req := r.requests[requestID]
	if req.Claimed() {
		r.mu.Unlock()
		return repository.ErrRequestClaimed
	}
	team, orderID := order.OwnerTeam, order.ID
	req.ClaimedByTeam = &team
	req.OrderID = &orderID
	r.requests[requestID] = req
	r.mu.Unlock()
	return r.orders.Create(ctx, order, repository.ScheduleChange{}, entry)
}

type stubOrderRepo struct {
	mu     sync.Mutex
	orders map[string]domain.Order
}

func (r *stubOrderRepo) Create(_ context.Context, order *domain.Order, _ repository.ScheduleChange, _ *domain.OrderHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order.Version = 1
	r.orders[order.ID] = *order
	return nil
}

func (r *stubOrderRepo) Update(_ context.Context, order *domain.Order, _ *domain.OrderHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order.Version++
	r.orders[order.ID] = *order
	return nil
}

func (r *stubOrderRepo) UpdateSchedule(ctx context.Context, order *domain.Order, _ repository.ScheduleChange, entry *domain.OrderHistory) error {
	return r.Update(ctx, order, entry)
}

func (r *stubOrderRepo) GetByID(_ context.Context, id string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &order, nil
}

func (r *stubOrderRepo) List(_ context.Context, _ repository.OrderFilter) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Order, 0, len(r.orders))
	for _, order := range r.orders {
		out = append(out, order)
	}
	return out, nil
}

func (r *stubOrderRepo) ListBuffered(_ context.Context, _ string) ([]domain.Order, error) {
	return nil, nil
}

type stubHistoryRepo struct{}

func (stubHistoryRepo) ListByOrder(_ context.Context, _ string) ([]domain.OrderHistory, error) {
	return nil, nil
}

type stubSlotRepo struct {
	schedules []domain.TechnicianSchedule
}

func (r stubSlotRepo) Snapshot(_ context.Context, _, _ string) ([]domain.TechnicianSchedule, error) {
	return r.schedules, nil
}

func (r stubSlotRepo) PublishDay(_ context.Context, _, _, _ string, _ []domain.TimeComponent) error {
	return nil
}

type stubDraftStore struct {
	mu     sync.Mutex
	drafts map[string]scheduling.OrderDraft
}

func (s *stubDraftStore) Save(_ context.Context, draft scheduling.OrderDraft, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[draft.ID] = draft
	return nil
}

func (s *stubDraftStore) Get(_ context.Context, id string) (scheduling.OrderDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	draft, ok := s.drafts[id]
	if !ok {
		return scheduling.OrderDraft{}, repository.ErrCacheMiss
	}
	return draft, nil
}

func (s *stubDraftStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, id)
	return nil
}

type testServer struct {
	app    *fiber.App
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	busyBy := "other-order"
	slots := stubSlotRepo{schedules: []domain.TechnicianSchedule{{
		TechnicianName: "Alex",
		Team:           "North",
		Schedule: map[string][]domain.TimeSlot{planDate: {
			{Hour: 2, Meridiem: domain.MeridiemPM, Busy: true, ReservingOrderID: &busyBy},
			{Hour: 3, Meridiem: domain.MeridiemPM},
		}},
	}}}
	orders := &stubOrderRepo{orders: map[string]domain.Order{}}
	requests := &stubRequestRepo{requests: map[string]domain.UnclaimedRequest{}, orders: orders}
	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()
	logger := zap.NewNop()

	calendar := service.NewCalendarService(service.CalendarDependencies{SlotRepo: slots, Metrics: metrics, Logger: logger})
	scheduler := service.NewSchedulingService(service.SchedulingDependencies{
		DraftStore:  &stubDraftStore{drafts: map[string]scheduling.OrderDraft{}},
		OrderRepo:   orders,
		Calendar:    calendar,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Logger:      logger,
	})
	orderService := service.NewOrderService(service.OrderDependencies{
		OrderRepo:   orders,
		RequestRepo: requests,
		HistoryRepo: stubHistoryRepo{},
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Logger:      logger,
	})
	requestService := service.NewRequestService(service.RequestDependencies{RequestRepo: requests, Dispatcher: dispatcher, Logger: logger})

	tokens := auth.NewTokenManager("secret", "install-dispatch", time.Hour)
	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("install-dispatch", "test", nil),
		Requests:       handlers.NewRequestsHandler(requestService, orderService, nil),
		Orders:         handlers.NewOrdersHandler(orderService, service.NewBufferService(orders), nil),
		Drafts:         handlers.NewDraftsHandler(scheduler, nil),
		Calendar:       handlers.NewCalendarHandler(calendar, nil),
		Metrics:        metrics,
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})
	return testServer{app: app, tokens: tokens}
}

func (s testServer) token(t *testing.T, name, team string) string {
	t.Helper()
	token, _, err := s.tokens.GenerateToken(domain.Member{Name: name, Team: team, Role: domain.MemberRoleOperator})
	require.NoError(t, err)
	return token
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (s testServer) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	srv := newTestServer(t)

	status, _ := srv.do(t, nethttp.MethodGet, "/health/live", "", nil)
	assert.Equal(t, nethttp.StatusOK, status)

	resp, err := srv.app.Test(httptest.NewRequest(nethttp.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "http_requests_total")
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	srv := newTestServer(t)

	status, env := srv.do(t, nethttp.MethodGet, "/orders", "", nil)
	assert.Equal(t, nethttp.StatusUnauthorized, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
}

func TestUnknownRouteUsesErrorEnvelope(t *testing.T) {
	srv := newTestServer(t)

	status, env := srv.do(t, nethttp.MethodGet, "/nowhere", srv.token(t, "ann", "North"), nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestCreateRequestValidation(t *testing.T) {
	srv := newTestServer(t)

	status, env := srv.do(t, nethttp.MethodPost, "/requests", srv.token(t, "ann", "North"), map[string]string{"city": "Riga"})
	assert.Equal(t, nethttp.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
	assert.Equal(t, map[string]any{"ClientID": "required"}, env.Error.Details["fields"])
}

func TestClaimTwiceIsConflict(t *testing.T) {
	srv := newTestServer(t)
	north := srv.token(t, "ann", "North")

	status, env := srv.do(t, nethttp.MethodPost, "/requests", north, map[string]string{"client_id": "c-1", "city": "Riga"})
	require.Equal(t, nethttp.StatusCreated, status)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))

	status, env = srv.do(t, nethttp.MethodPost, "/requests/"+created.ID+"/claim", north, nil)
	require.Equal(t, nethttp.StatusCreated, status)
	var order struct {
		OwnerTeam string `json:"owner_team"`
		Status    string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &order))
	assert.Equal(t, "North", order.OwnerTeam)
	assert.Equal(t, "NEW", order.Status)

	status, env = srv.do(t, nethttp.MethodPost, "/requests/"+created.ID+"/claim", srv.token(t, "bo", "South"), nil)
	assert.Equal(t, nethttp.StatusConflict, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "ALREADY_CLAIMED", env.Error.Code)
}

func TestDraftToggleAndCommit(t *testing.T) {
	srv := newTestServer(t)
	north := srv.token(t, "ann", "North")

	status, env := srv.do(t, nethttp.MethodPost, "/drafts", north, map[string]string{"date": planDate, "client_id": "c-1"})
	require.Equal(t, nethttp.StatusCreated, status)
	var draft struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &draft))
	base := "/drafts/" + draft.ID

	status, _ = srv.do(t, nethttp.MethodPut, base+"/technician", north, map[string]string{"technician": "Alex"})
	require.Equal(t, nethttp.StatusOK, status)

	type commandData struct {
		Draft struct {
			Primary struct {
				Times []string `json:"times"`
			} `json:"primary"`
			DateSlots string `json:"date_slots"`
		} `json:"draft"`
		Outcome struct {
			Accepted bool   `json:"accepted"`
			Reason   string `json:"reason"`
		} `json:"outcome"`
	}

	status, env = srv.do(t, nethttp.MethodPost, base+"/slots/toggle", north, map[string]string{"key": "Alex-2025-03-10-2-PM"})
	require.Equal(t, nethttp.StatusOK, status)
	var refused commandData
	require.NoError(t, json.Unmarshal(env.Data, &refused))
	assert.False(t, refused.Outcome.Accepted)
	assert.Equal(t, "slot_unavailable", refused.Outcome.Reason)
	assert.Empty(t, refused.Draft.Primary.Times)

	status, env = srv.do(t, nethttp.MethodPost, base+"/slots/toggle", north, map[string]string{"key": "Alex-2025-03-10-3-PM"})
	require.Equal(t, nethttp.StatusOK, status)
	var accepted commandData
	require.NoError(t, json.Unmarshal(env.Data, &accepted))
	assert.True(t, accepted.Outcome.Accepted)
	assert.Equal(t, []string{"3-PM"}, accepted.Draft.Primary.Times)
	assert.Equal(t, "Alex-2025-03-10-3-PM", accepted.Draft.DateSlots)

	status, env = srv.do(t, nethttp.MethodPost, base+"/commit", north, nil)
	require.Equal(t, nethttp.StatusCreated, status)
	var committed struct {
		Order struct {
			DateSlots string `json:"date_slots"`
			OwnerTeam string `json:"owner_team"`
		} `json:"order"`
		Outcome struct {
			Accepted bool `json:"accepted"`
		} `json:"outcome"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &committed))
	assert.True(t, committed.Outcome.Accepted)
	assert.Equal(t, "Alex-2025-03-10-3-PM", committed.Order.DateSlots)
	assert.Equal(t, "North", committed.Order.OwnerTeam)

	status, env = srv.do(t, nethttp.MethodGet, base, north, nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
	require.NotNil(t, env.Error)
}

func TestToggleMalformedKey(t *testing.T) {
	srv := newTestServer(t)
	north := srv.token(t, "ann", "North")

	status, env := srv.do(t, nethttp.MethodPost, "/drafts", north, map[string]string{"date": planDate})
	require.Equal(t, nethttp.StatusCreated, status)
	var draft struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &draft))

	status, env = srv.do(t, nethttp.MethodPost, "/drafts/"+draft.ID+"/slots/toggle", north, map[string]string{"key": "Alex-2025-03-10-PM"})
	assert.Equal(t, nethttp.StatusUnprocessableEntity, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "MALFORMED_KEY", env.Error.Code)
}

func TestDraftOfAnotherTeamIsForbidden(t *testing.T) {
	srv := newTestServer(t)

	status, env := srv.do(t, nethttp.MethodPost, "/drafts", srv.token(t, "ann", "North"), map[string]string{})
	require.Equal(t, nethttp.StatusCreated, status)
	var draft struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &draft))

	status, env = srv.do(t, nethttp.MethodGet, "/drafts/"+draft.ID, srv.token(t, "bo", "South"), nil)
	assert.Equal(t, nethttp.StatusForbidden, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)
}

func TestMalformedPathIDIsValidationError(t *testing.T) {
	srv := newTestServer(t)
	north := srv.token(t, "ann", "North")

	for _, path := range []string{"/orders/not-a-uuid", "/orders/not-a-uuid/history"} {
		status, env := srv.do(t, nethttp.MethodGet, path, north, nil)
		assert.Equal(t, nethttp.StatusBadRequest, status, path)
		require.NotNil(t, env.Error, path)
		assert.Equal(t, "VALIDATION_FAILED", env.Error.Code, path)
	}

	status, env := srv.do(t, nethttp.MethodPost, "/requests/abc/claim", north, nil)
	assert.Equal(t, nethttp.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	status, env = srv.do(t, nethttp.MethodGet, "/orders/"+uuid.NewString(), north, nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}
