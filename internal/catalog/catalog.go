// Package catalog defines the directory's persistence model: tools,
// categories, and the transactional store the import engine runs against.
package catalog

import "context"

// Moderation states a tool moves through after import.
const (
	StatusPendingReview = "Pending Review"
	StatusApproved      = "Approved"
	StatusRejected      = "Rejected"
)

// Tool is one directory entry, keyed by slug.
type Tool struct {
	Slug            string
	Name            string
	Description     string
	Website         string
	Category        string
	Pricing         string
	Logo            string
	IngestionStatus string
}

// Category is a moderated grouping of tools, keyed by slug.
type Category struct {
	Slug  string
	Title string
}

// Store opens transactions against the catalog and applies bulk moderation.
type Store interface {
	// Begin opens a batch transaction. Nothing inside it is visible to other
	// readers until Commit.
	Begin(ctx context.Context) (Tx, error)
	// SetIngestionStatus moves the given slugs to status and reports how many
	// rows actually changed. Unknown slugs are ignored.
	SetIngestionStatus(ctx context.Context, slugs []string, status string) (int, error)
	Close()
}

// Tx is a catalog transaction. Begin on a Tx opens a savepoint so a single
// row's changes can be rolled back without losing the batch.
type Tx interface {
	FindToolBySlug(ctx context.Context, slug string) (*Tool, error)
	CreateTool(ctx context.Context, tool Tool) error
	UpdateTool(ctx context.Context, tool Tool) error
	// EnsureCategory resolves a category title to its canonical name,
	// creating the category when absent. An empty title maps to "General".
	EnsureCategory(ctx context.Context, title string) (string, error)

	Begin(ctx context.Context) (Tx, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// DefaultCategory is assigned when a staged row carries no category.
const DefaultCategory = "General"
