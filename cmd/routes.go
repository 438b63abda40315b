package main

import (
	"net/http"

	"github.com/bmizerany/pat"
	"github.com/justinas/alice"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storefront/internal/models"
)

func (app *application) JWTMiddlewareWithRole(requiredRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return app.JWTMiddleware(next, requiredRole)
	}
}

func (app *application) routes() http.Handler {
	standardMiddleware := alice.New(app.recoverPanic, app.logRequest, secureHeaders, makeResponseJSON)
	authMiddleware := standardMiddleware.Append(app.JWTMiddlewareWithRole(models.RoleCustomer))
	staffMiddleware := standardMiddleware.Append(app.JWTMiddlewareWithRole(models.RoleStaff))
	adminMiddleware := standardMiddleware.Append(app.JWTMiddlewareWithRole(models.RoleAdmin))

	mux := pat.New()

	// Auth
	mux.Post("/auth/sign_in", standardMiddleware.ThenFunc(app.authHandler.SignIn))

	// Notifications
	mux.Get("/api/notifications/unread-count", authMiddleware.ThenFunc(app.notificationHandler.UnreadCount))
	mux.Get("/api/notifications", authMiddleware.ThenFunc(app.notificationHandler.List))
	mux.Put("/api/notifications/read-all", authMiddleware.ThenFunc(app.notificationHandler.MarkAllRead))
	mux.Put("/api/notifications/:id/read", authMiddleware.ThenFunc(app.notificationHandler.MarkRead))
	mux.Del("/api/notifications/:id", authMiddleware.ThenFunc(app.notificationHandler.Delete))

	// Payments
	mux.Get("/api/payments/:id", authMiddleware.ThenFunc(app.paymentHandler.Get))
	mux.Post("/webhooks/pix", standardMiddleware.ThenFunc(app.paymentHandler.Callback))

	// Support tickets
	mux.Post("/api/tickets", authMiddleware.ThenFunc(app.ticketHandler.Create))
	mux.Get("/api/tickets/:id/messages", authMiddleware.ThenFunc(app.ticketHandler.Messages))
	mux.Post("/api/tickets/:id/messages", authMiddleware.ThenFunc(app.ticketHandler.SendMessage))
	mux.Get("/api/tickets/:id", authMiddleware.ThenFunc(app.ticketHandler.Get))

	// Sandbox controls
	mux.Post("/sandbox/notifications", adminMiddleware.ThenFunc(app.notificationHandler.Create))
	mux.Post("/sandbox/payments", adminMiddleware.ThenFunc(app.paymentHandler.Create))
	mux.Put("/sandbox/payments/:id/status", adminMiddleware.ThenFunc(app.paymentHandler.SetStatus))
	mux.Put("/sandbox/tickets/:id/status", staffMiddleware.ThenFunc(app.ticketHandler.SetStatus))

	// Push
	mux.Get("/ws", authMiddleware.ThenFunc(app.WebSocketHandler))

	mux.Get("/metrics", promhttp.Handler())
	mux.Get("/healthz", standardMiddleware.ThenFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	}))

	return mux
}
