package handler

import (
	"net/http"

	"github.com/parisxmas/OxiDB/OxiAudit/internal/service"
)

type AdminHandler struct {
	sections *service.SectionService
}

func NewAdminHandler(sections *service.SectionService) *AdminHandler {
	return &AdminHandler{sections: sections}
}

func (h *AdminHandler) ListIndexes(w http.ResponseWriter, r *http.Request) {
	indexes, err := h.sections.ListIndexes(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"indexes": indexes})
}

func (h *AdminHandler) Compact(w http.ResponseWriter, r *http.Request) {
	stats, err := h.sections.Compact(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
