package records

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/recordd/internal/apperr"
	"github.com/fyrsmithlabs/recordd/internal/models"
	"github.com/fyrsmithlabs/recordd/internal/schema"
	"github.com/fyrsmithlabs/recordd/internal/store"
)

// stubEmbedder returns canned vectors keyed by input text.
type stubEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   []string
}

func (e *stubEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.calls = append(e.calls, text)
	if e.err != nil {
		return nil, e.err
	}
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0}, nil
}

type fixture struct {
	svc    Service
	models models.Service
	st     *store.SQLite
	emb    *stubEmbedder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ms, err := models.NewService(st, nil)
	require.NoError(t, err)

	emb := &stubEmbedder{vectors: map[string][]float32{}}
	svc, err := NewService(ms, st, emb, nil)
	require.NoError(t, err)

	return &fixture{svc: svc, models: ms, st: st, emb: emb}
}

func (f *fixture) createModel(t *testing.T, withEmbedding bool) string {
	t.Helper()
	req := &models.CreateRequest{
		Name: "tasks",
		Fields: map[string]schema.FieldDef{
			"title":  {Type: schema.TypeString, Required: true},
			"weight": {Type: schema.TypeNumber},
		},
	}
	if withEmbedding {
		req.Embedding = &schema.EmbeddingConfig{Enabled: true, SourceFields: []string{"title"}}
	}
	m, err := f.models.Create(context.Background(), "owner-1", req)
	require.NoError(t, err)
	return m.ID
}

func TestCreateAndGetProjection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	modelID := f.createModel(t, false)

	created, err := f.svc.Create(ctx, modelID, "owner-1", map[string]any{
		"title": "write docs",
		"extra": "open schema value",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created[KeyID])
	assert.NotEmpty(t, created[KeyCreatedAt])
	assert.NotEmpty(t, created[KeyUpdatedAt])
	assert.Equal(t, "write docs", created["title"])
	assert.Equal(t, "open schema value", created["extra"])
	assert.NotContains(t, created, "embedding")

	got, err := f.svc.Get(ctx, modelID, created[KeyID].(string))
	require.NoError(t, err)
	assert.Equal(t, created[KeyID], got[KeyID])
	assert.Equal(t, "write docs", got["title"])
}

func TestCreateValidatesAgainstModel(t *testing.T) {
	f := newFixture(t)
	modelID := f.createModel(t, false)

	_, err := f.svc.Create(context.Background(), modelID, "owner-1",
		map[string]any{"weight": 3})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCreateUnknownModel(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), "missing", "owner-1",
		map[string]any{"title": "x"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestCreateComputesEmbeddingFromSourceFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	modelID := f.createModel(t, true)
	f.emb.vectors["write docs"] = []float32{0.1, 0.2}

	created, err := f.svc.Create(ctx, modelID, "owner-1", map[string]any{"title": "write docs"})
	require.NoError(t, err)
	assert.Equal(t, []string{"write docs"}, f.emb.calls)

	stored, err := f.st.GetRecord(ctx, modelID, created[KeyID].(string))
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, stored.Embedding)
}

func TestCreateEmbeddingFailurePropagates(t *testing.T) {
	f := newFixture(t)
	modelID := f.createModel(t, true)
	f.emb.err = apperr.External("embedding service: boom")

	_, err := f.svc.Create(context.Background(), modelID, "owner-1",
		map[string]any{"title": "doomed"})
	assert.Equal(t, apperr.KindExternal, apperr.KindOf(err))
}

func TestUpdateMergesPatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	modelID := f.createModel(t, false)

	created, err := f.svc.Create(ctx, modelID, "owner-1",
		map[string]any{"title": "original", "weight": 1.0})
	require.NoError(t, err)
	id := created[KeyID].(string)

	updated, err := f.svc.Update(ctx, modelID, id, "owner-1",
		map[string]any{"weight": 2.0})
	require.NoError(t, err)
	assert.Equal(t, "original", updated["title"])
	assert.Equal(t, 2.0, updated["weight"])
}

func TestUpdateValidatesMergedDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	modelID := f.createModel(t, false)

	created, err := f.svc.Create(ctx, modelID, "owner-1",
		map[string]any{"title": "ok"})
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, modelID, created[KeyID].(string), "owner-1",
		map[string]any{"weight": "not a number"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestUpdateRecomputesEmbeddingOnlyForSourceFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	modelID := f.createModel(t, true)

	created, err := f.svc.Create(ctx, modelID, "owner-1",
		map[string]any{"title": "original"})
	require.NoError(t, err)
	id := created[KeyID].(string)
	require.Len(t, f.emb.calls, 1)

	_, err = f.svc.Update(ctx, modelID, id, "owner-1", map[string]any{"weight": 5.0})
	require.NoError(t, err)
	assert.Len(t, f.emb.calls, 1)

	_, err = f.svc.Update(ctx, modelID, id, "owner-1", map[string]any{"title": "revised"})
	require.NoError(t, err)
	require.Len(t, f.emb.calls, 2)
	assert.Equal(t, "revised", f.emb.calls[1])
}

func TestUpdateOwnerMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	modelID := f.createModel(t, false)

	created, err := f.svc.Create(ctx, modelID, "owner-1", map[string]any{"title": "mine"})
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, modelID, created[KeyID].(string), "intruder",
		map[string]any{"title": "stolen"})
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	modelID := f.createModel(t, false)

	created, err := f.svc.Create(ctx, modelID, "owner-1", map[string]any{"title": "a"})
	require.NoError(t, err)
	id := created[KeyID].(string)

	assert.Equal(t, apperr.KindAuthorization,
		apperr.KindOf(f.svc.Delete(ctx, modelID, id, "intruder")))

	require.NoError(t, f.svc.Delete(ctx, modelID, id, "owner-1"))

	_, err = f.svc.Get(ctx, modelID, id)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestListPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	modelID := f.createModel(t, false)

	for i := 0; i < 25; i++ {
		_, err := f.svc.Create(ctx, modelID, "owner-1",
			map[string]any{"title": "item", "weight": float64(i)})
		require.NoError(t, err)
	}

	page1, meta, err := f.svc.List(ctx, modelID, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, page1, 10)
	assert.Equal(t, 1, meta.Page)
	assert.Equal(t, 25, meta.Total)
	assert.Equal(t, 3, meta.TotalPages)
	assert.True(t, meta.HasNext)
	assert.False(t, meta.HasPrev)

	page3, meta, err := f.svc.List(ctx, modelID, ListOptions{Page: 3})
	require.NoError(t, err)
	assert.Len(t, page3, 5)
	assert.False(t, meta.HasNext)
	assert.True(t, meta.HasPrev)
}

func TestListEmptyModelReportsOnePage(t *testing.T) {
	f := newFixture(t)
	modelID := f.createModel(t, false)

	page, meta, err := f.svc.List(context.Background(), modelID, ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, page)
	assert.Equal(t, 0, meta.Total)
	assert.Equal(t, 1, meta.TotalPages)
}

func TestListRejectsBadPagination(t *testing.T) {
	f := newFixture(t)
	modelID := f.createModel(t, false)
	ctx := context.Background()

	_, _, err := f.svc.List(ctx, modelID, ListOptions{Page: -1})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, _, err = f.svc.List(ctx, modelID, ListOptions{Limit: MaxPageLimit + 1})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestListFilterCountMatchesPage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	modelID := f.createModel(t, false)

	for _, weight := range []float64{1, 5, 10} {
		_, err := f.svc.Create(ctx, modelID, "owner-1",
			map[string]any{"title": "t", "weight": weight})
		require.NoError(t, err)
	}

	page, meta, err := f.svc.List(ctx, modelID, ListOptions{
		Filter: map[string]any{"weight": map[string]any{"operator": "gt", "value": 1.0}},
	})
	require.NoError(t, err)
	assert.Len(t, page, 2)
	assert.Equal(t, 2, meta.Total)
}

func TestSearchRanksAndFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	modelID := f.createModel(t, true)
	f.emb.vectors["alpha"] = []float32{1, 0}
	f.emb.vectors["beta"] = []float32{0, 1}
	f.emb.vectors["find alpha"] = []float32{1, 0}

	_, err := f.svc.Create(ctx, modelID, "owner-1", map[string]any{"title": "alpha"})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, modelID, "owner-1", map[string]any{"title": "beta"})
	require.NoError(t, err)

	results, err := f.svc.Search(ctx, modelID, &SearchRequest{Query: "find alpha"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "alpha", results[0].Record["title"])
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
	assert.NotContains(t, results[0].Record, "embedding")
}

func TestSearchMinSimilarityOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	modelID := f.createModel(t, true)
	f.emb.vectors["alpha"] = []float32{1, 0}
	f.emb.vectors["beta"] = []float32{0, 1}
	f.emb.vectors["anything"] = []float32{1, 0}

	_, err := f.svc.Create(ctx, modelID, "owner-1", map[string]any{"title": "alpha"})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, modelID, "owner-1", map[string]any{"title": "beta"})
	require.NoError(t, err)

	// Zero threshold admits orthogonal vectors too.
	zero := 0.0
	results, err := f.svc.Search(ctx, modelID, &SearchRequest{Query: "anything", MinSimilarity: &zero})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearchRequiresEmbeddingEnabled(t *testing.T) {
	f := newFixture(t)
	modelID := f.createModel(t, false)

	_, err := f.svc.Search(context.Background(), modelID, &SearchRequest{Query: "x"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestSearchRequiresQuery(t *testing.T) {
	f := newFixture(t)
	modelID := f.createModel(t, true)

	_, err := f.svc.Search(context.Background(), modelID, &SearchRequest{})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestSearchRejectsEmptyQueryEmbedding(t *testing.T) {
	f := newFixture(t)
	modelID := f.createModel(t, true)
	f.emb.vectors["void"] = []float32{}

	_, err := f.svc.Search(context.Background(), modelID, &SearchRequest{Query: "void"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestSearchEmbedderFailure(t *testing.T) {
	f := newFixture(t)
	modelID := f.createModel(t, true)
	f.emb.err = errors.New("upstream down")

	_, err := f.svc.Search(context.Background(), modelID, &SearchRequest{Query: "x"})
	require.Error(t, err)
}

func TestBulkCreatePartialFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	modelID := f.createModel(t, false)

	items := []map[string]any{
		{"title": "first"},
		{"weight": 2.0}, // missing required title
		{"title": "third"},
	}
	result, err := f.svc.BulkCreate(ctx, modelID, "owner-1", items)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 1, result.Errors[0].Index)
	assert.Contains(t, result.Errors[0].Error, "title")
	assert.Len(t, result.Records, 2)
}

func TestBulkCreateDoesNotMutateInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	modelID := f.createModel(t, false)

	items := []map[string]any{{"title": "a", "_id": "client-supplied"}}
	_, err := f.svc.BulkCreate(ctx, modelID, "owner-1", items)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "a", "_id": "client-supplied"}, items[0])
}

func TestBulkUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	modelID := f.createModel(t, false)

	created, err := f.svc.Create(ctx, modelID, "owner-1", map[string]any{"title": "old"})
	require.NoError(t, err)

	items := []map[string]any{
		{KeyID: created[KeyID], "title": "new"},
		{"title": "no id"},
		{KeyID: "missing-record", "title": "x"},
	}
	result, err := f.svc.BulkUpdate(ctx, modelID, "owner-1", items)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 2, result.Failed)

	got, err := f.svc.Get(ctx, modelID, created[KeyID].(string))
	require.NoError(t, err)
	assert.Equal(t, "new", got["title"])
}
