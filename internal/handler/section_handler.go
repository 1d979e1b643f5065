package handler

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/parisxmas/OxiDB/OxiAudit/internal/auth"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/questionnaire"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/service"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/uploads"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/workflow"
)

type SectionHandler struct {
	svc       *service.SectionService
	docs      *service.DocumentService
	maxUpload int64
}

// NewSectionHandler serves the section routes. maxUpload bounds the
// multipart body of an attach request.
func NewSectionHandler(svc *service.SectionService, docs *service.DocumentService, maxUpload int64) *SectionHandler {
	if maxUpload <= 0 {
		maxUpload = 32 << 20
	}
	return &SectionHandler{svc: svc, docs: docs, maxUpload: maxUpload}
}

type groupSummary struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Items int    `json:"items"`
}

func (h *SectionHandler) session(w http.ResponseWriter, r *http.Request) (*workflow.Session, bool) {
	s, err := h.svc.Session(r.Context(), chi.URLParam(r, "scopeId"), chi.URLParam(r, "sectionKey"))
	if err != nil {
		writeErr(w, err)
		return nil, false
	}
	return s, true
}

func lastSaved(s *workflow.Session) string {
	t := s.LastSaved()
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func (h *SectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	groups := s.Groups()
	summary := make([]groupSummary, 0, len(groups))
	for _, g := range groups {
		summary = append(summary, groupSummary{Key: g.Key, Title: g.Title, Items: len(g.Items)})
	}
	resp := map[string]any{
		"scopeId":    s.ScopeID(),
		"sectionKey": s.SectionKey(),
		"document":   s.Document(),
		"groups":     summary,
		"progress":   s.Progress(),
		"lastSaved":  lastSaved(s),
	}
	if err := s.LoadErr(); err != nil {
		resp["loadError"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *SectionHandler) View(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	unanswered, _ := strconv.ParseBool(q.Get("unanswered"))
	items, err := s.Render(chi.URLParam(r, "groupKey"), questionnaire.Filter{
		Query:          q.Get("q"),
		OnlyUnanswered: unanswered,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *SectionHandler) Progress(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"progress": s.Progress(), "lastSaved": lastSaved(s)})
}

// checkAnswer rejects a value that does not fit the target question's kind.
func checkAnswer(s *workflow.Session, groupKey, itemID string, value any) error {
	items, ok := s.Document().Items(groupKey)
	if !ok {
		return fmt.Errorf("%w: group %q", questionnaire.ErrNodeNotFound, groupKey)
	}
	node, ok := questionnaire.FindNode(items, itemID)
	if !ok {
		return fmt.Errorf("%w: %q in group %q", questionnaire.ErrNodeNotFound, itemID, groupKey)
	}
	_, err := node.DecodeAnswer(value)
	return err
}

func (h *SectionHandler) SetAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value any `json:"value"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	groupKey, itemID := chi.URLParam(r, "groupKey"), chi.URLParam(r, "itemId")
	if err := checkAnswer(s, groupKey, itemID, req.Value); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.SetAnswer(groupKey, itemID, req.Value); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"progress": s.Progress()})
}

// structural fields define the tree and cannot be patched.
var structural = map[string]bool{"id": true, "type": true, "questions": true, "items": true}

func (h *SectionHandler) Patch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Field string `json:"field"`
		Value any    `json:"value"`
		Merge bool   `json:"merge"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Field == "" || structural[req.Field] {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("field %q cannot be set", req.Field))
		return
	}
	if _, isObj := req.Value.(map[string]any); req.Merge && !isObj {
		writeError(w, http.StatusBadRequest, "merge requires an object value")
		return
	}
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	groupKey, itemID := chi.URLParam(r, "groupKey"), chi.URLParam(r, "itemId")
	if req.Field == questionnaire.FieldAnswer && !req.Merge {
		if err := checkAnswer(s, groupKey, itemID, req.Value); err != nil {
			writeErr(w, err)
			return
		}
	}
	if err := s.SetField(groupKey, itemID, req.Field, req.Value, req.Merge); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"progress": s.Progress()})
}

func (h *SectionHandler) Attach(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	sources := make([]uploads.Source, 0, len(headers))
	for _, fh := range headers {
		src, err := readPart(fh)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		sources = append(sources, src)
	}

	s, ok := h.session(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if claims := auth.GetUser(ctx); claims != nil {
		ctx = workflow.WithUploadedBy(ctx, claims.UserID)
	}
	records, err := s.Attach(ctx, chi.URLParam(r, "groupKey"), chi.URLParam(r, "itemId"), r.FormValue("label"), sources)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"records": records})
}

func readPart(fh *multipart.FileHeader) (uploads.Source, error) {
	f, err := fh.Open()
	if err != nil {
		return uploads.Source{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return uploads.Source{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return uploads.BytesSource(fh.Filename, data), nil
}

// Attachments returns the live upload records of one question together with
// the documents already stored for it.
func (h *SectionHandler) Attachments(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	itemID := chi.URLParam(r, "itemId")
	resp := map[string]any{
		"records":       s.Uploads(chi.URLParam(r, "groupKey"), itemID),
		"acceptedTypes": s.AcceptedTypes(),
	}
	if h.docs != nil {
		docs, err := h.docs.ListByContext(r.Context(), s.ScopeID(), s.SectionKey(), itemID)
		if err != nil {
			writeErr(w, err)
			return
		}
		resp["documents"] = docs
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *SectionHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Close(chi.URLParam(r, "scopeId"), chi.URLParam(r, "sectionKey")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SectionHandler) Templates(w http.ResponseWriter, r *http.Request) {
	keys, err := h.svc.Templates()
	if err != nil {
		writeErr(w, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": keys})
}
