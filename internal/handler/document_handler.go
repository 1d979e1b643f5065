package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/parisxmas/OxiDB/OxiAudit/internal/auth"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/service"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/uploads"
)

type DocumentHandler struct {
	svc       *service.DocumentService
	maxUpload int64
}

func NewDocumentHandler(svc *service.DocumentService, maxUpload int64) *DocumentHandler {
	if maxUpload <= 0 {
		maxUpload = 32 << 20
	}
	return &DocumentHandler{svc: svc, maxUpload: maxUpload}
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	skip, _ := strconv.Atoi(q.Get("skip"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit == 0 {
		limit = 20
	}

	scopeID := q.Get("scopeId")
	docs, total, err := h.svc.List(r.Context(), scopeID, skip, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"docs":    docs,
		"total":   total,
		"skip":    skip,
		"limit":   limit,
		"scopeId": scopeID,
	})
}

// Upload stores the "files" parts synchronously. Progress is still published
// on the event stream, so a client may follow it while the request runs.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	sources := make([]uploads.Source, 0, len(headers))
	for _, fh := range headers {
		src, err := readPart(fh)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		sources = append(sources, src)
	}

	uctx := uploads.Context{
		ScopeID:      r.FormValue("scopeId"),
		ContextID:    r.FormValue("contextId"),
		ContextLabel: r.FormValue("contextLabel"),
		GroupKey:     r.FormValue("groupKey"),
	}
	if claims := auth.GetUser(r.Context()); claims != nil {
		uctx.UploadedBy = claims.UserID
	}
	outcomes := h.svc.Upload(r.Context(), sources, r.FormValue("category"), uctx)

	status := http.StatusBadRequest
	for _, o := range outcomes {
		if o.OK {
			status = http.StatusCreated
			break
		}
	}
	writeJSON(w, status, map[string]any{"files": outcomes})
}

func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "docId")
	data, doc, err := h.svc.Download(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}

	disposition := "attachment"
	if uploads.Previewable(doc.Extension) || doc.Extension == ".pdf" {
		disposition = "inline"
	}
	w.Header().Set("Content-Type", doc.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`%s; filename=%q`, disposition, doc.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "docId")
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (h *DocumentHandler) AcceptedTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"acceptedTypes": h.svc.AcceptedTypes()})
}
