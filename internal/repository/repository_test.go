package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parisxmas/OxiDB/OxiAudit/internal/db"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/models"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/oxidb/oxidbtest"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/questionnaire"
)

func newPool(t *testing.T) (*db.Pool, *oxidbtest.Server) {
	t.Helper()
	srv := oxidbtest.New(t)
	pool, err := db.NewPool(context.Background(), srv.Addr(), 2, 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool, srv
}

func sampleSection(answer string) questionnaire.Document {
	return questionnaire.NewGroupedDocument("materiality",
		questionnaire.Group{Key: "zeta", Items: []any{
			map[string]any{"id": "Z1", "question": "Benchmark?", "type": "text", "answer": answer},
		}},
		questionnaire.Group{Key: "alpha", Items: []any{
			map[string]any{"id": "A1", "question": "Entity type?", "type": "radio", "options": []any{"Public", "Private"}},
		}},
	)
}

func groupKeys(doc questionnaire.Document) []string {
	var keys []string
	for _, g := range doc.Groups() {
		keys = append(keys, g.Key)
	}
	return keys
}

// sectionStore is what both section repositories provide.
type sectionStore interface {
	ReadSection(ctx context.Context, scopeID, sectionKey string) (questionnaire.Document, error)
	SaveSection(ctx context.Context, scopeID, sectionKey string, doc questionnaire.Document) error
	Get(ctx context.Context, scopeID, sectionKey string) (*models.Section, error)
	ListByScope(ctx context.Context, scopeID string) ([]models.Section, error)
	Delete(ctx context.Context, scopeID, sectionKey string) error
	Compact(ctx context.Context) (map[string]any, error)
}

func sectionStores(t *testing.T) map[string]sectionStore {
	pool, _ := newPool(t)
	oxi := NewSectionRepo(pool)
	require.NoError(t, oxi.EnsureIndexes(context.Background()))

	lite, err := OpenSQLiteSectionRepo(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { lite.Close() })

	return map[string]sectionStore{"oxidb": oxi, "sqlite": lite}
}

func TestSectionStores(t *testing.T) {
	for name, store := range sectionStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			doc, err := store.ReadSection(ctx, "eng-1", "materiality")
			require.NoError(t, err)
			assert.True(t, doc.IsZero())

			require.NoError(t, store.SaveSection(ctx, "eng-1", "materiality", sampleSection("")))
			require.NoError(t, store.SaveSection(ctx, "eng-1", "materiality", sampleSection("revenue")))
			require.NoError(t, store.SaveSection(ctx, "eng-1", "risk", questionnaire.NewDocument("risk", nil)))
			require.NoError(t, store.SaveSection(ctx, "eng-2", "materiality", sampleSection("assets")))

			doc, err = store.ReadSection(ctx, "eng-1", "materiality")
			require.NoError(t, err)
			assert.Equal(t, []string{"zeta", "alpha"}, groupKeys(doc))
			assert.Equal(t, "revenue", doc.AnswerMap("zeta")["Z1"])

			sec, err := store.Get(ctx, "eng-1", "materiality")
			require.NoError(t, err)
			require.NotNil(t, sec)
			assert.NotEmpty(t, sec.UpdatedAt)

			list, err := store.ListByScope(ctx, "eng-1")
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "materiality", list[0].SectionKey)
			assert.Equal(t, "risk", list[1].SectionKey)

			require.NoError(t, store.Delete(ctx, "eng-1", "risk"))
			missing, err := store.Get(ctx, "eng-1", "risk")
			require.NoError(t, err)
			assert.Nil(t, missing)

			stats, err := store.Compact(ctx)
			require.NoError(t, err)
			assert.Contains(t, stats, "docs_kept")
		})
	}
}

func TestSectionRepoSingleRow(t *testing.T) {
	pool, srv := newPool(t)
	repo := NewSectionRepo(pool)
	ctx := context.Background()
	for _, a := range []string{"a", "b", "c"} {
		require.NoError(t, repo.SaveSection(ctx, "eng", "risk", sampleSection(a)))
	}
	assert.Len(t, srv.Docs(SectionsCollection), 1)
}

func TestSectionRepoReadError(t *testing.T) {
	pool, srv := newPool(t)
	repo := NewSectionRepo(pool)
	srv.FailNext("find_one", "storage offline")
	_, err := repo.ReadSection(context.Background(), "eng", "risk")
	assert.ErrorContains(t, err, "storage offline")
}

func TestSQLiteListIndexes(t *testing.T) {
	lite, err := OpenSQLiteSectionRepo(":memory:")
	require.NoError(t, err)
	defer lite.Close()
	idx, err := lite.ListIndexes(context.Background())
	require.NoError(t, err)
	var names []any
	for _, m := range idx {
		names = append(names, m["name"])
	}
	assert.Contains(t, names, "idx_sections_updated")
}

func TestDocumentRepo(t *testing.T) {
	pool, _ := newPool(t)
	repo := NewDocumentRepo(pool)
	ctx := context.Background()
	require.NoError(t, repo.EnsureIndexes(ctx))
	require.NoError(t, repo.EnsureBucket(ctx))
	require.NoError(t, repo.EnsureBucket(ctx))

	docs := []models.Document{
		{ID: "d1", FileName: "board-minutes.pdf", ScopeID: "eng", Category: "materiality", ContextID: "Q1", ContextLabel: "Q1 • Board", CreatedAt: "2026-01-01T00:00:00Z"},
		{ID: "d2", FileName: "ledger.xlsx", ScopeID: "eng", Category: "materiality", ContextID: "Q2", CreatedAt: "2026-01-02T00:00:00Z"},
		{ID: "d3", FileName: "other.txt", ScopeID: "eng-2", Category: "risk", ContextID: "Q1", CreatedAt: "2026-01-03T00:00:00Z"},
	}
	for i := range docs {
		require.NoError(t, repo.Create(ctx, &docs[i]))
	}
	assert.Error(t, repo.Create(ctx, &docs[0]), "id is unique")

	got, err := repo.FindByID(ctx, "d2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ledger.xlsx", got.FileName)

	all, total, err := repo.FindAll(ctx, "", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, all, 3)
	assert.Equal(t, "d3", all[0].ID)

	scoped, total, err := repo.FindAll(ctx, "eng", 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, scoped, 1)
	assert.Equal(t, "d2", scoped[0].ID)

	byCtx, err := repo.FindByContext(ctx, "eng", "materiality", "Q1")
	require.NoError(t, err)
	require.Len(t, byCtx, 1)
	assert.Equal(t, "d1", byCtx[0].ID)

	hits, err := repo.TextSearch(ctx, "board", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "d1", hits[0].ID)

	require.NoError(t, repo.PutBlob(ctx, "k", []byte("pdf"), "application/pdf", map[string]string{"docId": "d1"}))
	data, meta, err := repo.GetBlob(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf"), data)
	assert.Equal(t, "d1", meta["docId"])
	require.NoError(t, repo.DeleteBlob(ctx, "k"))

	require.NoError(t, repo.Delete(ctx, "d1"))
	n, err := repo.Count(ctx, "eng")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUserRepo(t *testing.T) {
	pool, _ := newPool(t)
	repo := NewUserRepo(pool)
	ctx := context.Background()
	require.NoError(t, repo.EnsureIndexes(ctx))

	id, err := repo.Create(ctx, &models.User{Email: "a@audit.local", Name: "A", Role: "user"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = repo.Create(ctx, &models.User{Email: "a@audit.local"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	u, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, "a@audit.local", u.Email)

	none, err := repo.FindByEmail(ctx, "nobody@audit.local")
	require.NoError(t, err)
	assert.Nil(t, none)
}
