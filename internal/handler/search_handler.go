package handler

import (
	"net/http"
	"strconv"

	"github.com/parisxmas/OxiDB/OxiAudit/internal/auth"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/service"
)

const maxSearchLimit = 100

type SearchHandler struct {
	svc *service.SearchService
}

func NewSearchHandler(svc *service.SearchService) *SearchHandler {
	return &SearchHandler{svc: svc}
}

// Search runs a document search. The engagement comes from the body or the
// scopeId query parameter; ?mine=1 narrows to files the caller uploaded.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req service.SearchRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	q := r.URL.Query()
	if req.ScopeID == "" {
		req.ScopeID = q.Get("scopeId")
	}
	if req.ScopeID != "" && !service.ValidKey(req.ScopeID) {
		writeError(w, http.StatusBadRequest, "invalid scopeId")
		return
	}
	if mine, _ := strconv.ParseBool(q.Get("mine")); mine {
		claims := auth.GetUser(r.Context())
		if claims == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if req.Filters == nil {
			req.Filters = map[string]service.FilterDescriptor{}
		}
		req.Filters["uploadedBy"] = service.FilterDescriptor{Value: claims.UserID}
	}
	if req.Limit > maxSearchLimit {
		req.Limit = maxSearchLimit
	}

	result, err := h.svc.Search(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
