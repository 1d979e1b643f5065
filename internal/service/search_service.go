package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/parisxmas/OxiDB/OxiAudit/internal/db"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/oxidb"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/repository"
)

// ErrInvalidFilter is returned for filters on unknown fields or with unknown operators.
var ErrInvalidFilter = errors.New("invalid search filter")

// SearchService finds uploaded documents by metadata filters, by full text
// over file names and context labels, or both.
type SearchService struct {
	pool *db.Pool
}

func NewSearchService(pool *db.Pool) *SearchService {
	return &SearchService{pool: pool}
}

type SearchRequest struct {
	ScopeID   string                      `json:"scopeId,omitempty"`
	Filters   map[string]FilterDescriptor `json:"filters,omitempty"`
	TextQuery string                      `json:"textQuery,omitempty"`
	Skip      int                         `json:"skip"`
	Limit     int                         `json:"limit"`
}

type FilterDescriptor struct {
	Value any    `json:"value,omitempty"`
	Min   any    `json:"min,omitempty"`
	Max   any    `json:"max,omitempty"`
	Op    string `json:"op,omitempty"` // eq, ne, gt, gte, lt, lte, in
}

type SearchResult struct {
	Docs  []map[string]any `json:"docs"`
	Total int              `json:"total"`
	Mode  string           `json:"mode"`
}

// searchable lists the document fields filters may address.
var searchable = map[string]bool{
	"category": true, "contextId": true, "groupKey": true, "extension": true,
	"mimeType": true, "uploadedBy": true, "fileSize": true, "pageCount": true,
	"createdAt": true, "fileName": true,
}

const ftsCandidates = 500

func (s *SearchService) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	if req.Skip < 0 {
		req.Skip = 0
	}
	query, err := buildQuery(req.ScopeID, req.Filters)
	if err != nil {
		return nil, err
	}
	c, err := s.pool.Get(ctx)
	if err != nil {
		return nil, err
	}

	mode := "all"
	switch {
	case req.TextQuery != "" && len(req.Filters) > 0:
		mode = "combined"
	case req.TextQuery != "":
		mode = "fts"
	case len(req.Filters) > 0:
		mode = "structured"
	}

	if req.TextQuery != "" {
		hits, err := c.TextSearch(ctx, repository.DocumentsCollection, req.TextQuery, ftsCandidates)
		if err != nil {
			return nil, err
		}
		ids := make([]any, 0, len(hits))
		for _, h := range hits {
			if id, ok := h["id"].(string); ok {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			return &SearchResult{Docs: []map[string]any{}, Mode: mode}, nil
		}
		query["id"] = map[string]any{"$in": ids}
	}

	total, err := c.Count(ctx, repository.DocumentsCollection, query)
	if err != nil {
		return nil, err
	}
	docs, err := c.Find(ctx, repository.DocumentsCollection, query, &oxidb.FindOptions{
		Skip:  req.Skip,
		Limit: req.Limit,
		Sort:  map[string]any{"createdAt": -1},
	})
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		delete(d, "_id")
	}
	return &SearchResult{Docs: docs, Total: total, Mode: mode}, nil
}

func buildQuery(scopeID string, filters map[string]FilterDescriptor) (map[string]any, error) {
	query := map[string]any{}
	if scopeID != "" {
		query["scopeId"] = scopeID
	}

	for field, filter := range filters {
		if !searchable[field] {
			return nil, fmt.Errorf("%w: cannot filter on %q", ErrInvalidFilter, field)
		}

		// Range filter
		if filter.Min != nil || filter.Max != nil {
			rng := map[string]any{}
			if filter.Min != nil && filter.Min != "" {
				rng["$gte"] = filter.Min
			}
			if filter.Max != nil && filter.Max != "" {
				rng["$lte"] = filter.Max
			}
			if len(rng) > 0 {
				query[field] = rng
			}
			continue
		}

		if filter.Value == nil || filter.Value == "" {
			continue
		}
		switch filter.Op {
		case "", "eq":
			query[field] = filter.Value
		case "ne", "gt", "gte", "lt", "lte", "in":
			query[field] = map[string]any{"$" + filter.Op: filter.Value}
		default:
			return nil, fmt.Errorf("%w: unknown op %q", ErrInvalidFilter, filter.Op)
		}
	}
	return query, nil
}
