package repository

import (
	"context"

	"github.com/parisxmas/OxiDB/OxiAudit/internal/db"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/models"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/oxidb"
)

const (
	DocumentsCollection = "_audit_documents"
	BlobBucket          = "audit_files"
)

type DocumentRepo struct {
	pool *db.Pool
}

func NewDocumentRepo(pool *db.Pool) *DocumentRepo {
	return &DocumentRepo{pool: pool}
}

func (r *DocumentRepo) EnsureIndexes(ctx context.Context) error {
	c, err := r.pool.Get(ctx)
	if err != nil {
		return err
	}
	if err := c.CreateUniqueIndex(ctx, DocumentsCollection, "id"); err != nil {
		return err
	}
	if err := c.CreateIndex(ctx, DocumentsCollection, "scopeId"); err != nil {
		return err
	}
	if err := c.CreateCompositeIndex(ctx, DocumentsCollection, []string{"scopeId", "category", "contextId"}); err != nil {
		return err
	}
	return c.CreateTextIndex(ctx, DocumentsCollection, []string{"fileName", "contextLabel"})
}

func (r *DocumentRepo) EnsureBucket(ctx context.Context) error {
	c, err := r.pool.Get(ctx)
	if err != nil {
		return err
	}
	return c.CreateBucket(ctx, BlobBucket)
}

func (r *DocumentRepo) Create(ctx context.Context, doc *models.Document) error {
	c, err := r.pool.Get(ctx)
	if err != nil {
		return err
	}
	_, err = c.Insert(ctx, DocumentsCollection, toDoc(doc))
	return err
}

// FindByID returns the document with the given id, or nil.
func (r *DocumentRepo) FindByID(ctx context.Context, id string) (*models.Document, error) {
	c, err := r.pool.Get(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := c.FindOne(ctx, DocumentsCollection, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	return fromDoc[models.Document](doc)
}

// FindAll lists documents newest first. An empty scopeID lists every scope.
func (r *DocumentRepo) FindAll(ctx context.Context, scopeID string, skip, limit int) ([]models.Document, int, error) {
	c, err := r.pool.Get(ctx)
	if err != nil {
		return nil, 0, err
	}
	query := map[string]any{}
	if scopeID != "" {
		query["scopeId"] = scopeID
	}

	total, err := c.Count(ctx, DocumentsCollection, query)
	if err != nil {
		return nil, 0, err
	}

	docs, err := c.Find(ctx, DocumentsCollection, query, &oxidb.FindOptions{
		Sort:  map[string]any{"createdAt": -1},
		Skip:  skip,
		Limit: limit,
	})
	if err != nil {
		return nil, 0, err
	}
	return fromDocs[models.Document](docs), total, nil
}

// FindByContext returns the documents attached to one question, oldest first.
func (r *DocumentRepo) FindByContext(ctx context.Context, scopeID, category, contextID string) ([]models.Document, error) {
	c, err := r.pool.Get(ctx)
	if err != nil {
		return nil, err
	}
	query := map[string]any{"scopeId": scopeID, "category": category}
	if contextID != "" {
		query["contextId"] = contextID
	}
	docs, err := c.Find(ctx, DocumentsCollection, query, &oxidb.FindOptions{
		Sort: map[string]any{"createdAt": 1},
	})
	if err != nil {
		return nil, err
	}
	return fromDocs[models.Document](docs), nil
}

func (r *DocumentRepo) TextSearch(ctx context.Context, query string, limit int) ([]models.Document, error) {
	c, err := r.pool.Get(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := c.TextSearch(ctx, DocumentsCollection, query, limit)
	if err != nil {
		return nil, err
	}
	return fromDocs[models.Document](docs), nil
}

func (r *DocumentRepo) Delete(ctx context.Context, id string) error {
	c, err := r.pool.Get(ctx)
	if err != nil {
		return err
	}
	_, err = c.Delete(ctx, DocumentsCollection, map[string]any{"id": id})
	return err
}

func (r *DocumentRepo) PutBlob(ctx context.Context, key string, data []byte, contentType string, meta map[string]string) error {
	c, err := r.pool.Get(ctx)
	if err != nil {
		return err
	}
	return c.PutObject(ctx, BlobBucket, key, data, contentType, meta)
}

func (r *DocumentRepo) GetBlob(ctx context.Context, key string) ([]byte, map[string]any, error) {
	c, err := r.pool.Get(ctx)
	if err != nil {
		return nil, nil, err
	}
	return c.GetObject(ctx, BlobBucket, key)
}

func (r *DocumentRepo) DeleteBlob(ctx context.Context, key string) error {
	c, err := r.pool.Get(ctx)
	if err != nil {
		return err
	}
	return c.DeleteObject(ctx, BlobBucket, key)
}

func (r *DocumentRepo) Count(ctx context.Context, scopeID string) (int, error) {
	c, err := r.pool.Get(ctx)
	if err != nil {
		return 0, err
	}
	query := map[string]any{}
	if scopeID != "" {
		query["scopeId"] = scopeID
	}
	return c.Count(ctx, DocumentsCollection, query)
}
