package catalog_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aitoolsdir/harvester/internal/catalog"
	"github.com/aitoolsdir/harvester/internal/catalog/memory"
	"github.com/aitoolsdir/harvester/internal/harvest"
	"github.com/aitoolsdir/harvester/internal/staging"
)

func TestImportCreatesAndDefaults(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	imp := catalog.NewImporter(store, zap.NewNop())

	stats, err := imp.Import(context.Background(), []staging.Row{
		{Domain: "Alpha.IO", Name: "Alpha Writer", Website: "https://alpha.io/", Pricing: "freemium"},
		{Domain: "beta.dev", Description: "No name row", Website: "https://beta.dev/", Category: "Coding", Pricing: "Enterprise"},
	})
	require.NoError(t, err)
	require.Equal(t, harvest.ImportStats{Created: 2}, stats)

	alpha, ok := store.Tool("alpha.io")
	require.True(t, ok)
	require.Equal(t, "Alpha Writer", alpha.Name)
	require.Equal(t, "Freemium", alpha.Pricing)
	require.Equal(t, catalog.DefaultCategory, alpha.Category)
	require.Equal(t, catalog.StatusPendingReview, alpha.IngestionStatus)

	beta, ok := store.Tool("beta.dev")
	require.True(t, ok)
	// name falls back to the slug's first dot segment
	require.Equal(t, "beta", beta.Name)
	require.Equal(t, "Coding", beta.Category)
	// unmapped pricing labels stay unset
	require.Empty(t, beta.Pricing)
}

func TestImportIsIdempotent(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	imp := catalog.NewImporter(store, zap.NewNop())
	rows := []staging.Row{{Domain: "alpha.io", Name: "Alpha", Website: "https://alpha.io/"}}

	stats, err := imp.Import(context.Background(), rows)
	require.NoError(t, err)
	require.Equal(t, harvest.ImportStats{Created: 1}, stats)

	stats, err = imp.Import(context.Background(), rows)
	require.NoError(t, err)
	require.Equal(t, harvest.ImportStats{Updated: 1}, stats)
}

func TestImportPreservesModerationState(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	imp := catalog.NewImporter(store, zap.NewNop())
	ctx := context.Background()

	_, err := imp.Import(ctx, []staging.Row{{Domain: "alpha.io", Name: "Alpha", Website: "https://alpha.io/"}})
	require.NoError(t, err)

	n, err := store.SetIngestionStatus(ctx, []string{"alpha.io"}, catalog.StatusApproved)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = imp.Import(ctx, []staging.Row{{Domain: "alpha.io", Name: "Alpha", Website: "https://alpha.io/", Description: "changed"}})
	require.NoError(t, err)

	tool, ok := store.Tool("alpha.io")
	require.True(t, ok)
	require.Equal(t, catalog.StatusApproved, tool.IngestionStatus)
	require.Equal(t, "changed", tool.Description)
}

func TestImportReinitializesAbsentModerationState(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	ctx := context.Background()

	// a tool written outside the pipeline, with no moderation state
	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateTool(ctx, catalog.Tool{Slug: "legacy.io", Name: "Legacy"}))
	require.NoError(t, tx.Commit(ctx))

	imp := catalog.NewImporter(store, zap.NewNop())
	stats, err := imp.Import(ctx, []staging.Row{{Domain: "legacy.io", Name: "Legacy", Website: "https://legacy.io/"}})
	require.NoError(t, err)
	require.Equal(t, harvest.ImportStats{Updated: 1}, stats)

	tool, ok := store.Tool("legacy.io")
	require.True(t, ok)
	require.Equal(t, catalog.StatusPendingReview, tool.IngestionStatus)
}

func TestImportSkipsUnkeyedRows(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	imp := catalog.NewImporter(store, zap.NewNop())

	stats, err := imp.Import(context.Background(), []staging.Row{
		{Name: "No Key At All"},
		{Slug: "by-slug", Name: "By Slug", Website: "https://byslug.io/"},
		{Website: "https://www.byhost.io/pricing", Name: "By Host"},
	})
	require.NoError(t, err)
	require.Equal(t, harvest.ImportStats{Created: 2, Skipped: 1}, stats)

	_, ok := store.Tool("by-slug")
	require.True(t, ok)
	_, ok = store.Tool("byhost.io")
	require.True(t, ok)
}

// failingStore wraps the memory store and fails CreateTool for one slug.
type failingStore struct {
	*memory.Store
	failSlug string
}

func (f *failingStore) Begin(ctx context.Context) (catalog.Tx, error) {
	tx, err := f.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &failingTx{Tx: tx, failSlug: f.failSlug}, nil
}

type failingTx struct {
	catalog.Tx
	failSlug string
}

func (f *failingTx) Begin(ctx context.Context) (catalog.Tx, error) {
	tx, err := f.Tx.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &failingTx{Tx: tx, failSlug: f.failSlug}, nil
}

func (f *failingTx) CreateTool(ctx context.Context, tool catalog.Tool) error {
	if tool.Slug == f.failSlug {
		return errors.New("constraint violation")
	}
	return f.Tx.CreateTool(ctx, tool)
}

func TestImportRowFailureRollsBackOnlyThatRow(t *testing.T) {
	t.Parallel()

	mem := memory.NewStore()
	imp := catalog.NewImporter(&failingStore{Store: mem, failSlug: "bad.io"}, zap.NewNop())

	stats, err := imp.Import(context.Background(), []staging.Row{
		{Domain: "good.io", Name: "Good", Website: "https://good.io/"},
		{Domain: "bad.io", Name: "Bad", Website: "https://bad.io/", Category: "Poison"},
		{Domain: "fine.dev", Name: "Fine", Website: "https://fine.dev/"},
	})
	require.NoError(t, err)
	require.Equal(t, harvest.ImportStats{Created: 2, Skipped: 1}, stats)

	_, ok := mem.Tool("good.io")
	require.True(t, ok)
	_, ok = mem.Tool("bad.io")
	require.False(t, ok)
	_, ok = mem.Tool("fine.dev")
	require.True(t, ok)
}

func TestMapPricing(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"free":       "Free",
		"FREEMIUM":   "Freemium",
		" paid ":     "Paid",
		"Enterprise": "",
		"":           "",
	}
	for in, want := range cases {
		require.Equal(t, want, catalog.MapPricing(in), "input %q", in)
	}
}

func TestSlugForRow(t *testing.T) {
	t.Parallel()

	cases := []struct {
		row  staging.Row
		want string
	}{
		{staging.Row{Domain: "Alpha.IO"}, "alpha.io"},
		{staging.Row{Slug: "my-slug"}, "my-slug"},
		{staging.Row{Domain: "d.io", Slug: "ignored"}, "d.io"},
		{staging.Row{Website: "https://www.site.com/x"}, "site.com"},
		{staging.Row{}, ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, catalog.SlugForRow(tc.row))
	}
}
