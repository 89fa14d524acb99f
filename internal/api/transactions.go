package api

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/erazemk/zaloga/internal/model"
	"github.com/erazemk/zaloga/internal/sheet"
	"github.com/erazemk/zaloga/internal/store"
)

const dateLayout = "2006-01-02"

// TransactionsHandler handles transaction log endpoints.
type TransactionsHandler struct {
	DB *sql.DB
}

// transactionFilter reads type, material_id, user_id, from and to query parameters.
// Dates are whole days; to is inclusive.
func transactionFilter(r *http.Request) (store.TransactionFilter, error) {
	q := r.URL.Query()
	f := store.TransactionFilter{
		Type: q.Get("type"),
		Page: queryInt(r, "page", 1),
	}
	if f.Type != "" && !model.ValidTransactionType(f.Type) {
		return f, model.Invalid("type", fmt.Sprintf("unknown transaction type %q", f.Type))
	}

	for _, p := range []struct {
		name string
		dst  *int64
	}{{"material_id", &f.MaterialID}, {"user_id", &f.UserID}} {
		if v := q.Get(p.name); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return f, model.Invalid(p.name, "must be a number")
			}
			*p.dst = n
		}
	}

	if v := q.Get("from"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return f, model.Invalid("from", "must be a date (YYYY-MM-DD)")
		}
		f.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return f, model.Invalid("to", "must be a date (YYYY-MM-DD)")
		}
		f.To = t.AddDate(0, 0, 1)
	}
	return f, nil
}

// List handles GET /api/transactions.
func (h *TransactionsHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := transactionFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, err := store.ListTransactions(r.Context(), h.DB, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, page)
}

// Export handles GET /api/transactions/export. It takes the same filters as
// List but returns every match as an xlsx workbook.
func (h *TransactionsHandler) Export(w http.ResponseWriter, r *http.Request) {
	f, err := transactionFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	txs, err := store.ListAllTransactions(r.Context(), h.DB, f)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", sheet.ContentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="transactions-%s.xlsx"`, time.Now().Format(dateLayout)))
	if err := sheet.WriteTransactions(w, txs); err != nil {
		slog.Error("failed to write transaction export", "error", err)
	}
	slog.Info("transactions exported", "user", actor(r).Username, "rows", len(txs))
}
