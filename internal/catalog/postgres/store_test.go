package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/aitoolsdir/harvester/internal/catalog"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func toolColumns() []string {
	return []string{"slug", "name", "description", "website", "category", "pricing", "logo", "ingestion_status"}
}

func TestCreateToolInsideSavepoint(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectBegin() // savepoint
	mock.ExpectQuery("SELECT slug, name, description").
		WithArgs("alpha.io").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT title FROM categories").
		WithArgs("writing").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO categories").
		WithArgs("writing", "Writing").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO tools").
		WithArgs("alpha.io", "Alpha", "Writes things", "https://alpha.io/", "Writing", "Freemium", "", catalog.StatusPendingReview).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit() // savepoint
	mock.ExpectCommit()

	ctx := context.Background()
	batch, err := store.Begin(ctx)
	require.NoError(t, err)

	sp, err := batch.Begin(ctx)
	require.NoError(t, err)

	existing, err := sp.FindToolBySlug(ctx, "alpha.io")
	require.NoError(t, err)
	require.Nil(t, existing)

	category, err := sp.EnsureCategory(ctx, "Writing")
	require.NoError(t, err)
	require.Equal(t, "Writing", category)

	require.NoError(t, sp.CreateTool(ctx, catalog.Tool{
		Slug:            "alpha.io",
		Name:            "Alpha",
		Description:     "Writes things",
		Website:         "https://alpha.io/",
		Category:        category,
		Pricing:         "Freemium",
		IngestionStatus: catalog.StatusPendingReview,
	}))
	require.NoError(t, sp.Commit(ctx))
	require.NoError(t, batch.Commit(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindToolReturnsExisting(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT slug, name, description").
		WithArgs("beta.dev").
		WillReturnRows(pgxmock.NewRows(toolColumns()).
			AddRow("beta.dev", "Beta", "desc", "https://beta.dev/", "General", "", "", catalog.StatusApproved))
	mock.ExpectRollback()

	ctx := context.Background()
	batch, err := store.Begin(ctx)
	require.NoError(t, err)

	tool, err := batch.FindToolBySlug(ctx, "beta.dev")
	require.NoError(t, err)
	require.NotNil(t, tool)
	require.Equal(t, catalog.StatusApproved, tool.IngestionStatus)

	require.NoError(t, batch.Rollback(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTool(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE tools").
		WithArgs("beta.dev", "Beta", "new desc", "https://beta.dev/", "General", "Paid", "", catalog.StatusApproved).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	ctx := context.Background()
	batch, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, batch.UpdateTool(ctx, catalog.Tool{
		Slug:            "beta.dev",
		Name:            "Beta",
		Description:     "new desc",
		Website:         "https://beta.dev/",
		Category:        "General",
		Pricing:         "Paid",
		IngestionStatus: catalog.StatusApproved,
	}))
	require.NoError(t, batch.Commit(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetIngestionStatus(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	slugs := []string{"alpha.io", "beta.dev"}
	mock.ExpectExec("UPDATE tools SET ingestion_status").
		WithArgs(catalog.StatusApproved, slugs).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := store.SetIngestionStatus(context.Background(), slugs, catalog.StatusApproved)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetIngestionStatusNoSlugs(t *testing.T) {
	t.Parallel()

	store, _ := newMockStore(t)
	n, err := store.SetIngestionStatus(context.Background(), nil, catalog.StatusApproved)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestNewStoreWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewStoreWithPool(nil)
	require.Error(t, err)
}
