package api

import (
	"database/sql"
	"fmt"
	"net/http"

	"github.com/erazemk/zaloga/internal/authz"
	"github.com/erazemk/zaloga/internal/model"
	"github.com/erazemk/zaloga/internal/store"
	"github.com/erazemk/zaloga/internal/workflow"
)

// ReportsHandler handles dashboard, report and alert endpoints.
type ReportsHandler struct {
	DB       *sql.DB
	Workflow *workflow.Service
}

type reportsResponse struct {
	Categories []store.CategoryStat `json:"categories"`
	Monthly    []store.MonthlyStat  `json:"monthly"`
}

// Dashboard handles GET /api/dashboard. Users who may not see every request
// get their own recent requests instead.
func (h *ReportsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := store.Dashboard(r.Context(), h.DB)
	if err != nil {
		writeError(w, r, err)
		return
	}

	a := actor(r)
	if !authz.Allowed(a.Role, authz.ViewAllRequests) {
		page, err := h.Workflow.List(r.Context(), a, store.RequestFilter{PerPage: 5})
		if err != nil {
			writeError(w, r, err)
			return
		}
		stats.RecentRequests = page.Items
		stats.RecentTransactions = []model.Transaction{}
	}
	jsonResponse(w, http.StatusOK, stats)
}

// Reports handles GET /api/reports?months=N.
func (h *ReportsHandler) Reports(w http.ResponseWriter, r *http.Request) {
	months := queryInt(r, "months", 6)
	if months < 1 || months > 36 {
		writeError(w, r, model.Invalid("months", "must be between 1 and 36"))
		return
	}

	categories, err := store.CategoryStats(r.Context(), h.DB)
	if err != nil {
		writeError(w, r, err)
		return
	}
	monthly, err := store.MonthlyStats(r.Context(), h.DB, months)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, reportsResponse{Categories: categories, Monthly: monthly})
}

// LowStockCheck handles GET /api/low-stock-check.
func (h *ReportsHandler) LowStockCheck(w http.ResponseWriter, r *http.Request) {
	report, err := h.Workflow.CheckLowStock(r.Context(), actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	message := "No materials are low on stock"
	if report.Materials > 0 {
		message = fmt.Sprintf("Low stock alert sent for %d materials", report.Materials)
	}
	jsonResponse(w, http.StatusOK, map[string]any{
		"message":   message,
		"materials": report.Materials,
		"notified":  report.Notified,
	})
}
