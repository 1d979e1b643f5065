package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/parisxmas/OxiDB/OxiAudit/internal/questionnaire"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/service"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/workflow"
)

const maxJSONBody = 4 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Warning: encode response: %v", err)
	}
}

func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	return dec.Decode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeErr maps service and engine errors onto status codes.
func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, questionnaire.ErrNodeNotFound),
		errors.Is(err, service.ErrDocumentNotFound),
		errors.Is(err, service.ErrUserNotFound):
		status = http.StatusNotFound
	case errors.Is(err, questionnaire.ErrShapeMismatch),
		errors.Is(err, service.ErrInvalidKey),
		errors.Is(err, service.ErrInvalidFilter),
		errors.Is(err, service.ErrWeakCredentials),
		errors.Is(err, workflow.ErrNoFiles):
		status = http.StatusBadRequest
	case errors.Is(err, questionnaire.ErrDuplicateID),
		errors.Is(err, questionnaire.ErrSchemaShapeMismatch):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, workflow.ErrClosed),
		errors.Is(err, service.ErrEmailTaken):
		status = http.StatusConflict
	case errors.Is(err, service.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, workflow.ErrNoUploader):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		log.Printf("Warning: request failed: %v", err)
	}
	writeError(w, status, err.Error())
}
