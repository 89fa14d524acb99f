package api

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/zaloga/internal/catalog"
	"github.com/erazemk/zaloga/internal/model"
	"github.com/erazemk/zaloga/internal/sheet"
	"github.com/erazemk/zaloga/internal/store"
)

// recentMovements is how many transactions the material detail shows.
const recentMovements = 10

// MaterialsHandler handles material catalog endpoints.
type MaterialsHandler struct {
	DB             *sql.DB
	Catalog        *catalog.Service
	MaxUploadBytes int64
}

type materialDetail struct {
	Material           *model.Material     `json:"material"`
	RecentTransactions []model.Transaction `json:"recent_transactions"`
}

// compactMaterial is the lookup shape used by request forms.
type compactMaterial struct {
	ID             int64           `json:"id"`
	MaterialNumber string          `json:"material_number"`
	Description    string          `json:"description"`
	CurrentStock   decimal.Decimal `json:"current_stock"`
	Unit           string          `json:"unit"`
	Location       string          `json:"location"`
	IsLowStock     bool            `json:"is_low_stock"`
}

type movementResponse struct {
	Material    *model.Material    `json:"material"`
	Transaction *model.Transaction `json:"transaction"`
}

// List handles GET /api/materials.
func (h *MaterialsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := store.ListMaterials(r.Context(), h.DB, store.MaterialFilter{
		Search:   strings.TrimSpace(q.Get("search")),
		Category: q.Get("category"),
		Page:     queryInt(r, "page", 1),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, page)
}

// Categories handles GET /api/materials/categories.
func (h *MaterialsHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := store.ListCategories(r.Context(), h.DB)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, categories)
}

// Create handles POST /api/materials.
func (h *MaterialsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in catalog.MaterialInput
	if err := decodeJSON(r, &in); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := h.Catalog.Create(r.Context(), actor(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, m)
}

// Get handles GET /api/materials/{id}.
func (h *MaterialsHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, ok := h.load(w, r)
	if !ok {
		return
	}

	txs, err := store.RecentTransactions(r.Context(), h.DB, m.ID, recentMovements)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if txs == nil {
		txs = []model.Transaction{}
	}
	jsonResponse(w, http.StatusOK, materialDetail{Material: m, RecentTransactions: txs})
}

// Lookup handles GET /api/material/{id}.
func (h *MaterialsHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	m, ok := h.load(w, r)
	if !ok {
		return
	}
	jsonResponse(w, http.StatusOK, compactMaterial{
		ID:             m.ID,
		MaterialNumber: m.MaterialNumber,
		Description:    m.Description,
		CurrentStock:   m.CurrentStock,
		Unit:           m.Unit,
		Location:       m.Location,
		IsLowStock:     m.IsLowStock(),
	})
}

// load fetches the active material named by the {id} path value, writing an
// error response when it cannot.
func (h *MaterialsHandler) load(w http.ResponseWriter, r *http.Request) (*model.Material, bool) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid material id")
		return nil, false
	}
	m, err := store.GetMaterial(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	if m == nil || !m.IsActive {
		jsonError(w, http.StatusNotFound, "material not found")
		return nil, false
	}
	return m, true
}

// Update handles PUT /api/materials/{id}.
func (h *MaterialsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid material id")
		return
	}

	var in catalog.MaterialInput
	if err := decodeJSON(r, &in); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := h.Catalog.Update(r.Context(), actor(r), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, m)
}

// Delete handles DELETE /api/materials/{id}.
func (h *MaterialsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid material id")
		return
	}

	if err := h.Catalog.Deactivate(r.Context(), actor(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "material deactivated"})
}

// Stock handles POST /api/materials/{id}/stock.
func (h *MaterialsHandler) Stock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid material id")
		return
	}

	var in catalog.MovementInput
	if err := decodeJSON(r, &in); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.Catalog.RecordMovement(r.Context(), actor(r), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, movementResponse{Material: p.Material, Transaction: p.Transaction})
}

// Reconcile handles GET /api/materials/{id}/reconcile.
func (h *MaterialsHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid material id")
		return
	}

	rec, err := h.Catalog.Reconcile(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, rec)
}

// Import handles POST /api/materials/import with an xlsx file in the
// multipart field "file".
func (h *MaterialsHandler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)

	if err := r.ParseMultipartForm(h.MaxUploadBytes); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "file required")
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".xlsx") {
		writeError(w, r, model.Invalid("file", "must be an .xlsx workbook"))
		return
	}

	rows, err := sheet.ParseMaterials(file)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.Catalog.Import(r.Context(), actor(r), rows)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("material import uploaded", "user", actor(r).Username, "file", header.Filename, "rows", len(rows))
	jsonResponse(w, http.StatusOK, result)
}

// Export handles GET /api/materials/export.
func (h *MaterialsHandler) Export(w http.ResponseWriter, r *http.Request) {
	materials, err := store.ListAllMaterials(r.Context(), h.DB)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", sheet.ContentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="materials-%s.xlsx"`, time.Now().Format("2006-01-02")))
	if err := sheet.WriteMaterials(w, materials); err != nil {
		slog.Error("failed to write material export", "error", err)
	}
}
