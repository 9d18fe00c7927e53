package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/aitoolsdir/harvester/internal/harvest"
	"github.com/aitoolsdir/harvester/internal/metrics"
	"github.com/aitoolsdir/harvester/internal/staging"
)

const maxToolNameLen = 140

// Importer upserts staged rows into the catalog. One call is one batch
// transaction; a bad row rolls back alone and the batch keeps going.
type Importer struct {
	store  Store
	logger *zap.Logger
}

// NewImporter builds an importer over the store.
func NewImporter(store Store, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Importer{store: store, logger: logger}
}

// ImportFile reads the staging CSV at path and imports it.
func (i *Importer) ImportFile(ctx context.Context, path string) (harvest.ImportStats, error) {
	rows, err := staging.ReadFile(path)
	if err != nil {
		return harvest.ImportStats{}, err
	}
	return i.Import(ctx, rows)
}

// Import upserts rows keyed by slug. Rows with no derivable slug are skipped,
// a row-level store failure rolls back only that row, and the whole batch
// commits once at the end.
func (i *Importer) Import(ctx context.Context, rows []staging.Row) (harvest.ImportStats, error) {
	var stats harvest.ImportStats

	tx, err := i.store.Begin(ctx)
	if err != nil {
		return stats, fmt.Errorf("begin import batch: %w", err)
	}

	for _, row := range rows {
		slug := SlugForRow(row)
		if slug == "" {
			stats.Skipped++
			metrics.ObserveImport("skipped")
			continue
		}
		created, rowErr := i.importRow(ctx, tx, slug, row)
		switch {
		case rowErr != nil:
			i.logger.Warn("import row failed", zap.String("slug", slug), zap.Error(rowErr))
			stats.Skipped++
			metrics.ObserveImport("skipped")
		case created:
			stats.Created++
			metrics.ObserveImport("created")
		default:
			stats.Updated++
			metrics.ObserveImport("updated")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return stats, fmt.Errorf("commit import batch: %w", err)
	}
	i.logger.Info("import finished",
		zap.Int("created", stats.Created),
		zap.Int("updated", stats.Updated),
		zap.Int("skipped", stats.Skipped),
	)
	return stats, nil
}

// importRow upserts one row inside its own savepoint. It reports whether the
// tool was created (vs updated).
func (i *Importer) importRow(ctx context.Context, batch Tx, slug string, row staging.Row) (bool, error) {
	sp, err := batch.Begin(ctx)
	if err != nil {
		return false, err
	}

	created, err := upsertTool(ctx, sp, slug, row)
	if err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			i.logger.Warn("savepoint rollback failed", zap.String("slug", slug), zap.Error(rbErr))
		}
		return false, err
	}
	if err := sp.Commit(ctx); err != nil {
		return false, err
	}
	return created, nil
}

func upsertTool(ctx context.Context, tx Tx, slug string, row staging.Row) (bool, error) {
	existing, err := tx.FindToolBySlug(ctx, slug)
	if err != nil {
		return false, err
	}

	category, err := tx.EnsureCategory(ctx, row.Category)
	if err != nil {
		return false, err
	}

	tool := Tool{
		Slug:        slug,
		Name:        NameForRow(row, slug),
		Description: strings.TrimSpace(row.Description),
		Website:     strings.TrimSpace(row.Website),
		Category:    category,
		Pricing:     MapPricing(row.Pricing),
		Logo:        strings.TrimSpace(row.Logo),
	}

	if existing != nil {
		// moderation state survives re-imports; rows that arrived without one
		// are put back in the review queue
		tool.IngestionStatus = existing.IngestionStatus
		if tool.IngestionStatus == "" {
			tool.IngestionStatus = StatusPendingReview
		}
		return false, tx.UpdateTool(ctx, tool)
	}
	tool.IngestionStatus = StatusPendingReview
	return true, tx.CreateTool(ctx, tool)
}

// SlugForRow derives the upsert key: the domain column, then an explicit slug
// column, then the website's host. Empty means the row cannot be keyed.
func SlugForRow(row staging.Row) string {
	for _, candidate := range []string{row.Domain, row.Slug} {
		if s := strings.ToLower(strings.TrimSpace(candidate)); s != "" {
			return s
		}
	}
	raw := strings.TrimSpace(row.Website)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	return host
}

// NameForRow picks the display name: the name column, else the first
// dot-separated segment of the slug. Capped at 140 characters.
func NameForRow(row staging.Row, slug string) string {
	name := strings.TrimSpace(row.Name)
	if name == "" {
		name, _, _ = strings.Cut(slug, ".")
	}
	return harvest.Truncate(name, maxToolNameLen)
}

// MapPricing normalizes a free-form pricing label onto the catalog's three
// tiers. Anything else maps to unset.
func MapPricing(raw string) string {
	val := harvest.TitleCase(strings.TrimSpace(raw))
	switch val {
	case "Free", "Freemium", "Paid":
		return val
	}
	return ""
}
