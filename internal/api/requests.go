package api

import (
	"net/http"

	"github.com/erazemk/zaloga/internal/store"
	"github.com/erazemk/zaloga/internal/workflow"
)

// RequestsHandler handles material request endpoints.
type RequestsHandler struct {
	Workflow *workflow.Service
}

type remarksRequest struct {
	Remarks string `json:"remarks"`
}

// List handles GET /api/requests. Staff only see their own requests.
func (h *RequestsHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := h.Workflow.List(r.Context(), actor(r), store.RequestFilter{
		Status: r.URL.Query().Get("status"),
		Page:   queryInt(r, "page", 1),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, page)
}

// Create handles POST /api/requests.
func (h *RequestsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in workflow.SubmitInput
	if err := decodeJSON(r, &in); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req, err := h.Workflow.Submit(r.Context(), actor(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, req)
}

// Get handles GET /api/requests/{id}.
func (h *RequestsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	req, err := h.Workflow.Get(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, req)
}

// Approve handles POST /api/requests/{id}/approve.
func (h *RequestsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	var in workflow.ApproveInput
	if err := decodeOptionalJSON(r, &in); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req, err := h.Workflow.Approve(r.Context(), actor(r), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, req)
}

// Reject handles POST /api/requests/{id}/reject.
func (h *RequestsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	var in remarksRequest
	if err := decodeOptionalJSON(r, &in); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req, err := h.Workflow.Reject(r.Context(), actor(r), id, in.Remarks)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, req)
}

// Issue handles POST /api/requests/{id}/issue.
func (h *RequestsHandler) Issue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	req, err := h.Workflow.Issue(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, req)
}

// Cancel handles POST /api/requests/{id}/cancel.
func (h *RequestsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	var in remarksRequest
	if err := decodeOptionalJSON(r, &in); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req, err := h.Workflow.Cancel(r.Context(), actor(r), id, in.Remarks)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, req)
}
