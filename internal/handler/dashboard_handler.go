package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parisxmas/OxiDB/OxiAudit/internal/service"
)

type DashboardHandler struct {
	sections *service.SectionService
	docs     *service.DocumentService
}

func NewDashboardHandler(sections *service.SectionService, docs *service.DocumentService) *DashboardHandler {
	return &DashboardHandler{sections: sections, docs: docs}
}

func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	docCount, err := h.docs.Count(r.Context(), r.URL.Query().Get("scopeId"))
	if err != nil {
		writeErr(w, err)
		return
	}
	templates, _ := h.sections.Templates()

	writeJSON(w, http.StatusOK, map[string]any{
		"documentCount": docCount,
		"openSessions":  h.sections.OpenSessions(),
		"templateCount": len(templates),
	})
}

// Engagement reports per-section progress and document totals for one scope.
func (h *DashboardHandler) Engagement(w http.ResponseWriter, r *http.Request) {
	eng, err := h.sections.Engagement(r.Context(), chi.URLParam(r, "scopeId"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eng)
}
