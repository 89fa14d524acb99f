package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/erazemk/zaloga/internal/authz"
	"github.com/erazemk/zaloga/internal/catalog"
	"github.com/erazemk/zaloga/internal/metrics"
	"github.com/erazemk/zaloga/internal/notify"
	"github.com/erazemk/zaloga/internal/workflow"
)

// DefaultMaxUploadBytes bounds import uploads when Options leaves it unset.
const DefaultMaxUploadBytes = 16 << 20

// Options configures the API router. A nil Notifier logs notifications
// instead of mailing them.
type Options struct {
	DB             *sql.DB
	JWTSecret      string
	TokenTTL       time.Duration
	SecureCookie   bool
	MaxUploadBytes int64
	Notifier       workflow.Notifier
	Metrics        bool
}

// NewRouter creates the API router with all endpoints registered. The result
// is wrapped in LoggingMiddleware.
func NewRouter(opts Options) http.Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	db := opts.DB
	if opts.Notifier == nil {
		opts.Notifier = notify.NewDispatcher(notify.LogMailer{}, notify.StoreDirectory{DB: db}, "Zaloga")
	}
	flow := workflow.New(db, opts.Notifier)

	mux := http.NewServeMux()

	authHandler := &AuthHandler{
		DB:           db,
		JWTSecret:    opts.JWTSecret,
		TokenTTL:     opts.TokenTTL,
		SecureCookie: opts.SecureCookie,
		limiter:      newRateLimiter(loginAttempts, loginWindow),
	}
	usersHandler := &UsersHandler{DB: db}
	materialsHandler := &MaterialsHandler{
		DB:             db,
		Catalog:        catalog.New(db, opts.Notifier),
		MaxUploadBytes: opts.MaxUploadBytes,
	}
	requestsHandler := &RequestsHandler{Workflow: flow}
	transactionsHandler := &TransactionsHandler{DB: db}
	reportsHandler := &ReportsHandler{DB: db, Workflow: flow}

	authMW := AuthMiddleware(opts.JWTSecret, db)
	authed := func(h http.HandlerFunc) http.Handler { return authMW(h) }
	guarded := func(op authz.Operation, h http.HandlerFunc) http.Handler {
		return authMW(RequireOperation(op)(h))
	}

	// Public.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("GET /healthz", health(db))
	if opts.Metrics {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	// Session.
	mux.Handle("POST /api/auth/logout", authed(authHandler.Logout))
	mux.Handle("GET /api/auth/me", authed(authHandler.Me))
	mux.Handle("PUT /api/auth/password", authed(authHandler.ChangePassword))

	// Users (admin only).
	mux.Handle("GET /api/users", guarded(authz.ManageUsers, usersHandler.List))
	mux.Handle("POST /api/users", guarded(authz.ManageUsers, usersHandler.Create))
	mux.Handle("GET /api/users/{id}", guarded(authz.ManageUsers, usersHandler.Get))
	mux.Handle("PUT /api/users/{id}", guarded(authz.ManageUsers, usersHandler.Update))
	mux.Handle("PUT /api/users/{id}/password", guarded(authz.ManageUsers, usersHandler.ResetPassword))
	mux.Handle("DELETE /api/users/{id}", guarded(authz.ManageUsers, usersHandler.Delete))

	// Materials: read (all roles), write (manager+), deactivate (admin).
	mux.Handle("GET /api/materials", guarded(authz.ViewMaterials, materialsHandler.List))
	mux.Handle("GET /api/materials/categories", guarded(authz.ViewMaterials, materialsHandler.Categories))
	mux.Handle("GET /api/materials/export", guarded(authz.ViewReports, materialsHandler.Export))
	mux.Handle("POST /api/materials", guarded(authz.ManageMaterials, materialsHandler.Create))
	mux.Handle("POST /api/materials/import", guarded(authz.ImportMaterials, materialsHandler.Import))
	mux.Handle("GET /api/materials/{id}", guarded(authz.ViewMaterials, materialsHandler.Get))
	mux.Handle("PUT /api/materials/{id}", guarded(authz.ManageMaterials, materialsHandler.Update))
	mux.Handle("DELETE /api/materials/{id}", guarded(authz.DeactivateMaterial, materialsHandler.Delete))
	mux.Handle("POST /api/materials/{id}/stock", guarded(authz.RecordMovement, materialsHandler.Stock))
	mux.Handle("GET /api/materials/{id}/reconcile", guarded(authz.ReconcileStock, materialsHandler.Reconcile))
	mux.Handle("GET /api/material/{id}", guarded(authz.ViewMaterials, materialsHandler.Lookup))

	// Requests: the workflow enforces ownership and role per action.
	mux.Handle("GET /api/requests", guarded(authz.SubmitRequest, requestsHandler.List))
	mux.Handle("POST /api/requests", guarded(authz.SubmitRequest, requestsHandler.Create))
	mux.Handle("GET /api/requests/{id}", authed(requestsHandler.Get))
	mux.Handle("POST /api/requests/{id}/approve", guarded(authz.ApproveRequest, requestsHandler.Approve))
	mux.Handle("POST /api/requests/{id}/reject", guarded(authz.RejectRequest, requestsHandler.Reject))
	mux.Handle("POST /api/requests/{id}/issue", guarded(authz.IssueRequest, requestsHandler.Issue))
	mux.Handle("POST /api/requests/{id}/cancel", authed(requestsHandler.Cancel))

	// Transaction log (manager+).
	mux.Handle("GET /api/transactions", guarded(authz.ViewTransactions, transactionsHandler.List))
	mux.Handle("GET /api/transactions/export", guarded(authz.ViewTransactions, transactionsHandler.Export))

	// Dashboard and reports.
	mux.Handle("GET /api/dashboard", authed(reportsHandler.Dashboard))
	mux.Handle("GET /api/reports", guarded(authz.ViewReports, reportsHandler.Reports))
	mux.Handle("GET /api/low-stock-check", guarded(authz.TriggerAlerts, reportsHandler.LowStockCheck))

	return LoggingMiddleware(mux)
}

func health(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			jsonError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
