// Package memory provides an in-memory catalog store for tests and local
// runs without Postgres.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aitoolsdir/harvester/internal/catalog"
)

// Store keeps the catalog in maps keyed by slug. Transactions snapshot the
// state and merge back on commit, which gives the same rollback boundaries
// as the Postgres store.
type Store struct {
	mu         sync.Mutex
	tools      map[string]catalog.Tool
	categories map[string]catalog.Category
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		tools:      make(map[string]catalog.Tool),
		categories: make(map[string]catalog.Category),
	}
}

// Begin opens a transaction over a snapshot of the current state.
func (s *Store) Begin(_ context.Context) (catalog.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &tx{
		store:      s,
		tools:      cloneTools(s.tools),
		categories: cloneCategories(s.categories),
	}, nil
}

// SetIngestionStatus updates moderation state for the given slugs.
func (s *Store) SetIngestionStatus(_ context.Context, slugs []string, status string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := 0
	for _, slug := range slugs {
		tool, ok := s.tools[slug]
		if !ok || tool.IngestionStatus == status {
			continue
		}
		tool.IngestionStatus = status
		s.tools[slug] = tool
		changed++
	}
	return changed, nil
}

// Close is a no-op for the memory store.
func (s *Store) Close() {}

// Tool returns a tool by slug, for assertions in tests.
func (s *Store) Tool(slug string) (catalog.Tool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tool, ok := s.tools[slug]
	return tool, ok
}

// Categories returns the category count, for assertions in tests.
func (s *Store) Categories() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.categories)
}

type tx struct {
	store      *Store
	parent     *tx
	tools      map[string]catalog.Tool
	categories map[string]catalog.Category
	done       bool
}

func (t *tx) FindToolBySlug(_ context.Context, slug string) (*catalog.Tool, error) {
	if t.done {
		return nil, fmt.Errorf("transaction is closed")
	}
	tool, ok := t.tools[slug]
	if !ok {
		return nil, nil
	}
	return &tool, nil
}

func (t *tx) CreateTool(_ context.Context, tool catalog.Tool) error {
	if t.done {
		return fmt.Errorf("transaction is closed")
	}
	if _, exists := t.tools[tool.Slug]; exists {
		return fmt.Errorf("tool %q already exists", tool.Slug)
	}
	t.tools[tool.Slug] = tool
	return nil
}

func (t *tx) UpdateTool(_ context.Context, tool catalog.Tool) error {
	if t.done {
		return fmt.Errorf("transaction is closed")
	}
	if _, exists := t.tools[tool.Slug]; !exists {
		return fmt.Errorf("tool %q does not exist", tool.Slug)
	}
	t.tools[tool.Slug] = tool
	return nil
}

func (t *tx) EnsureCategory(_ context.Context, title string) (string, error) {
	if t.done {
		return "", fmt.Errorf("transaction is closed")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = catalog.DefaultCategory
	}
	slug := strings.ToLower(title)
	if existing, ok := t.categories[slug]; ok {
		return existing.Title, nil
	}
	t.categories[slug] = catalog.Category{Slug: slug, Title: title}
	return title, nil
}

// Begin opens a savepoint: a child transaction over a copy of this one.
func (t *tx) Begin(_ context.Context) (catalog.Tx, error) {
	if t.done {
		return nil, fmt.Errorf("transaction is closed")
	}
	return &tx{
		parent:     t,
		tools:      cloneTools(t.tools),
		categories: cloneCategories(t.categories),
	}, nil
}

func (t *tx) Commit(_ context.Context) error {
	if t.done {
		return fmt.Errorf("transaction is closed")
	}
	t.done = true
	if t.parent != nil {
		t.parent.tools = t.tools
		t.parent.categories = t.categories
		return nil
	}
	t.store.mu.Lock()
	t.store.tools = t.tools
	t.store.categories = t.categories
	t.store.mu.Unlock()
	return nil
}

func (t *tx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	return nil
}

func cloneTools(in map[string]catalog.Tool) map[string]catalog.Tool {
	out := make(map[string]catalog.Tool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneCategories(in map[string]catalog.Category) map[string]catalog.Category {
	out := make(map[string]catalog.Category, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
