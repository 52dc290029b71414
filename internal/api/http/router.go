package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/install-dispatch/internal/api/http/handlers"
	"github.com/spec-kit/install-dispatch/internal/auth"
	"github.com/spec-kit/install-dispatch/internal/domain"
	"github.com/spec-kit/install-dispatch/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Requests       *handlers.RequestsHandler
	Orders         *handlers.OrdersHandler
	Drafts         *handlers.DraftsHandler
	Calendar       *handlers.CalendarHandler
	Metrics        *observability.Metrics
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	api := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	managers := auth.RequireRole(domain.MemberRoleDispatcher, domain.MemberRoleAdmin)

	api.Post("/requests", cfg.Requests.Create)
	api.Get("/requests", cfg.Requests.ListUnclaimed)
	api.Post("/requests/:id/claim", cfg.Requests.Claim)

	api.Get("/orders", cfg.Orders.List)
	api.Get("/orders/:id", cfg.Orders.Get)
	api.Get("/orders/:id/history", cfg.Orders.History)
	api.Post("/orders/:id/transfer", cfg.Orders.Transfer)
	api.Post("/orders/:id/return", cfg.Orders.Return)
	api.Post("/orders/:id/accept", cfg.Orders.Accept)
	api.Post("/orders/:id/status", cfg.Orders.ChangeStatus)
	api.Post("/orders/:id/invalid", cfg.Orders.MarkInvalid)
	api.Post("/orders/:id/draft", cfg.Drafts.LoadForOrder)
	api.Get("/buffer", cfg.Orders.Buffer)

	api.Post("/drafts", cfg.Drafts.Start)
	api.Get("/drafts/:id", cfg.Drafts.Get)
	api.Delete("/drafts/:id", cfg.Drafts.Discard)
	api.Put("/drafts/:id/technician", cfg.Drafts.SelectTechnician)
	api.Put("/drafts/:id/date", cfg.Drafts.ChangeDate)
	api.Post("/drafts/:id/slots/toggle", cfg.Drafts.ToggleSlot)
	api.Put("/drafts/:id/secondary", cfg.Drafts.SetSecondary)
	api.Delete("/drafts/:id/secondary", cfg.Drafts.ClearSecondary)
	api.Post("/drafts/:id/reconcile", cfg.Drafts.Reconcile)
	api.Post("/drafts/:id/commit", cfg.Drafts.Commit)

	api.Get("/calendar", cfg.Calendar.View)
	api.Put("/technicians/:name/availability", managers, cfg.Calendar.PublishAvailability)
	api.Get("/teams", cfg.Calendar.Teams)
	api.Post("/teams", auth.RequireRole(domain.MemberRoleAdmin), cfg.Calendar.CreateTeam)
	api.Get("/teams/:name/cities", cfg.Calendar.Cities)
}
