package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/parisxmas/OxiDB/OxiAudit/internal/models"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/repository"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/uploads"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrUnsupportedType  = errors.New("unsupported file type")
	ErrEmptyFile        = errors.New("file data is empty")
	ErrFileTooLarge     = errors.New("file too large")
)

// DefaultAcceptedTypes is the extension allow-list used when none is configured.
var DefaultAcceptedTypes = []string{".pdf", ".docx", ".xlsx", ".png", ".jpg", ".jpeg", ".txt"}

const (
	readChunk         = 4 << 20
	progressInterval  = 120 * time.Millisecond
	readProgressShare = 90
)

type DocumentService struct {
	docs     *repository.DocumentRepo
	hub      *uploads.Hub
	accepted []string
	maxSize  int64
	now      func() time.Time
}

// NewDocumentService returns a service publishing progress on hub. A nil
// accepted list means DefaultAcceptedTypes; maxSize <= 0 disables the limit.
func NewDocumentService(docs *repository.DocumentRepo, hub *uploads.Hub, accepted []string, maxSize int64) *DocumentService {
	if len(accepted) == 0 {
		accepted = DefaultAcceptedTypes
	}
	norm := make([]string, 0, len(accepted))
	for _, ext := range accepted {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		norm = append(norm, ext)
	}
	return &DocumentService{docs: docs, hub: hub, accepted: norm, maxSize: maxSize, now: time.Now}
}

// AcceptedTypes lists the extensions Upload takes.
func (s *DocumentService) AcceptedTypes() []string { return slices.Clone(s.accepted) }

func (s *DocumentService) accepts(name string) bool {
	return slices.Contains(s.accepted, uploads.Extension(name))
}

// Upload stores every source and reports progress on the hub, tagged with
// category and uctx. Files that fail the type or size checks are rejected
// before any event is published for them.
func (s *DocumentService) Upload(ctx context.Context, sources []uploads.Source, category string, uctx uploads.Context) []uploads.Outcome {
	out := make([]uploads.Outcome, 0, len(sources))
	for _, src := range sources {
		o := uploads.Outcome{FileName: src.Name, FileSize: src.Size}
		if err := s.precheck(src); err != nil {
			o.Error = err.Error()
			out = append(out, o)
			continue
		}
		doc, err := s.uploadOne(ctx, src, category, uctx)
		if err != nil {
			log.Printf("Warning: upload %s: %v", src.Name, err)
			o.ID = doc.ID
			o.Error = err.Error()
			out = append(out, o)
			continue
		}
		o.ID, o.OK, o.PageCount = doc.ID, true, doc.PageCount
		out = append(out, o)
	}
	return out
}

func (s *DocumentService) precheck(src uploads.Source) error {
	if !s.accepts(src.Name) {
		ext := uploads.Extension(src.Name)
		if ext == "" {
			ext = "(none)"
		}
		return fmt.Errorf("%w %s", ErrUnsupportedType, ext)
	}
	if src.Size == 0 {
		return ErrEmptyFile
	}
	if s.maxSize > 0 && src.Size > s.maxSize {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrFileTooLarge, src.Size, s.maxSize)
	}
	return nil
}

// progressEmitter throttles progress events of one upload.
type progressEmitter struct {
	s       *DocumentService
	base    uploads.Event
	last    int
	lastAt  time.Time
	started bool
}

func (p *progressEmitter) emit(pct int, force bool) {
	now := p.s.now()
	if p.started && !force && pct-p.last < 1 && now.Sub(p.lastAt) < progressInterval {
		return
	}
	p.started, p.last, p.lastAt = true, pct, now
	ev := p.base
	ev.Progress, ev.Status = pct, uploads.StatusUploading
	p.s.publish(ev)
}

func (p *progressEmitter) finish(status uploads.Status, msg string) {
	ev := p.base
	ev.Status, ev.Error = status, msg
	ev.Progress = p.last
	if status == uploads.StatusSuccess {
		ev.Progress = 100
	}
	p.s.publish(ev)
}

func (s *DocumentService) publish(ev uploads.Event) {
	if s.hub != nil {
		s.hub.Publish(ev)
	}
}

func (s *DocumentService) uploadOne(ctx context.Context, src uploads.Source, category string, uctx uploads.Context) (models.Document, error) {
	doc := models.Document{
		ID:           uuid.New().String(),
		FileName:     src.Name,
		FileSize:     src.Size,
		Extension:    src.Extension(),
		MimeType:     detectContentType(src.Name),
		Category:     category,
		ScopeID:      uctx.ScopeID,
		ContextID:    uctx.ContextID,
		ContextLabel: uctx.ContextLabel,
		GroupKey:     uctx.GroupKey,
		UploadedBy:   uctx.UploadedBy,
	}
	p := &progressEmitter{s: s, base: uploads.Event{
		ID:           doc.ID,
		FileName:     doc.FileName,
		FileSize:     doc.FileSize,
		Extension:    doc.Extension,
		ScopeID:      doc.ScopeID,
		Category:     category,
		ContextID:    doc.ContextID,
		ContextLabel: doc.ContextLabel,
		GroupKey:     doc.GroupKey,
	}}
	p.emit(0, true)

	if err := s.store(ctx, src, &doc, p); err != nil {
		p.finish(uploads.StatusError, err.Error())
		return doc, err
	}
	p.finish(uploads.StatusSuccess, "")
	return doc, nil
}

func (s *DocumentService) store(ctx context.Context, src uploads.Source, doc *models.Document, p *progressEmitter) error {
	data, err := s.read(ctx, src, p)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return ErrEmptyFile
	}
	if doc.Extension == ".pdf" {
		pages, err := pdfPageCount(data)
		if err != nil {
			return err
		}
		doc.PageCount = pages
	}

	doc.FileSize = int64(len(data))
	doc.BlobKey = fmt.Sprintf("%s_%s", doc.ID, doc.FileName)
	meta := map[string]string{"docId": doc.ID, "scopeId": doc.ScopeID, "category": doc.Category}
	if err := s.docs.PutBlob(ctx, doc.BlobKey, data, doc.MimeType, meta); err != nil {
		return fmt.Errorf("upload blob: %w", err)
	}
	doc.CreatedAt = s.now().UTC().Format(time.RFC3339Nano)
	if err := s.docs.Create(ctx, doc); err != nil {
		if derr := s.docs.DeleteBlob(context.WithoutCancel(ctx), doc.BlobKey); derr != nil {
			log.Printf("Warning: orphan blob %s: %v", doc.BlobKey, derr)
		}
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

// read loads the source in chunks, reporting up to readProgressShare percent.
func (s *DocumentService) read(ctx context.Context, src uploads.Source, p *progressEmitter) ([]byte, error) {
	rc, err := src.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var buf bytes.Buffer
	if src.Size > 0 {
		buf.Grow(int(src.Size))
	}
	chunk := make([]byte, readChunk)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := rc.Read(chunk)
		buf.Write(chunk[:n])
		if src.Size > 0 && n > 0 {
			pct := int(int64(buf.Len()) * readProgressShare / src.Size)
			p.emit(min(pct, readProgressShare), false)
		}
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", src.Name, err)
		}
	}
}

func pdfPageCount(data []byte) (int, error) {
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return 0, fmt.Errorf("invalid pdf: %w", err)
	}
	return ctx.PageCount, nil
}

func (s *DocumentService) Download(ctx context.Context, id string) ([]byte, *models.Document, error) {
	doc, err := s.docs.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if doc == nil {
		return nil, nil, ErrDocumentNotFound
	}

	data, _, err := s.docs.GetBlob(ctx, doc.BlobKey)
	if err != nil {
		return nil, nil, fmt.Errorf("download blob: %w", err)
	}
	return data, doc, nil
}

func (s *DocumentService) List(ctx context.Context, scopeID string, skip, limit int) ([]models.Document, int, error) {
	return s.docs.FindAll(ctx, scopeID, skip, limit)
}

func (s *DocumentService) ListByContext(ctx context.Context, scopeID, category, contextID string) ([]models.Document, error) {
	return s.docs.FindByContext(ctx, scopeID, category, contextID)
}

func (s *DocumentService) Delete(ctx context.Context, id string) error {
	doc, err := s.docs.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if doc == nil {
		return ErrDocumentNotFound
	}
	if err := s.docs.DeleteBlob(ctx, doc.BlobKey); err != nil {
		log.Printf("Warning: delete blob %s: %v", doc.BlobKey, err)
	}
	return s.docs.Delete(ctx, id)
}

func (s *DocumentService) Count(ctx context.Context, scopeID string) (int, error) {
	return s.docs.Count(ctx, scopeID)
}

func detectContentType(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	types := map[string]string{
		".pdf":  "application/pdf",
		".png":  "image/png",
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".gif":  "image/gif",
		".doc":  "application/msword",
		".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		".xls":  "application/vnd.ms-excel",
		".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		".csv":  "text/csv",
		".txt":  "text/plain",
	}
	if ct, ok := types[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}
