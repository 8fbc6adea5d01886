package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when a single-row lookup matches nothing.
var ErrNotFound = errors.New("not found")

// ErrVectorSearchUnsupported is returned by drivers without vector search.
var ErrVectorSearchUnsupported = errors.New("semantic search requires PostgreSQL with pgvector")

// EntryMetadata is the free-form metadata recorded with an entry.
type EntryMetadata struct {
	MessageCount int    `json:"message_count"`
	Source       string `json:"source,omitempty"`
	Model        string `json:"model,omitempty"`
}

// JournalEntry is the raw user content of one finished conversation.
type JournalEntry struct {
	ID        string
	UserID    string
	Content   string
	Embedding []float32 // nil until computed
	Metadata  *EntryMetadata

	// Derived summary fields, best effort. Title and emoji may be edited by the user.
	Title     string
	Emoji     string
	Summary   string
	AISummary string

	CreatedTs int64
	UpdatedTs int64
}

// FindJournalEntry is the find condition for journal entries.
type FindJournalEntry struct {
	ID     *string
	UserID *string

	// Pagination. Entries are ordered newest first.
	Limit  *int
	Offset *int
}

// UpdateJournalEntry updates the editable fields of an entry. Nil fields are left unchanged.
type UpdateJournalEntry struct {
	ID        string
	UserID    string
	UpdatedTs int64

	Title     *string
	Emoji     *string
	Summary   *string
	AISummary *string
}

// SearchJournalEntries is the option set for semantic search.
type SearchJournalEntries struct {
	UserID string    // Required, only search entries of this user
	Vector []float32 // Query vector
	Limit  int       // Number of results to return, default 10
}

// JournalEntryWithScore is a semantic search hit.
type JournalEntryWithScore struct {
	Entry *JournalEntry
	Score float32 // Cosine similarity, higher is more similar
}

func (s *Store) CreateJournalEntry(ctx context.Context, create *JournalEntry) (*JournalEntry, error) {
	if create.ID == "" || create.UserID == "" {
		return nil, errors.New("journal entry requires id and user id")
	}
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	if create.UpdatedTs == 0 {
		create.UpdatedTs = create.CreatedTs
	}
	return s.driver.CreateJournalEntry(ctx, create)
}

// GetJournalEntry returns the entry or ErrNotFound.
func (s *Store) GetJournalEntry(ctx context.Context, find *FindJournalEntry) (*JournalEntry, error) {
	list, _, err := s.driver.ListJournalEntries(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return list[0], nil
}

// ListJournalEntries returns a page of entries and the total matching count.
func (s *Store) ListJournalEntries(ctx context.Context, find *FindJournalEntry) ([]*JournalEntry, int, error) {
	return s.driver.ListJournalEntries(ctx, find)
}

func (s *Store) UpdateJournalEntry(ctx context.Context, update *UpdateJournalEntry) error {
	return s.driver.UpdateJournalEntry(ctx, update)
}

func (s *Store) UpdateJournalEntryEmbedding(ctx context.Context, id string, embedding []float32) error {
	return s.driver.UpdateJournalEntryEmbedding(ctx, id, embedding)
}

// FindJournalEntriesWithoutEmbedding returns entries whose embedding is still NULL, oldest first.
func (s *Store) FindJournalEntriesWithoutEmbedding(ctx context.Context, limit int) ([]*JournalEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.driver.FindJournalEntriesWithoutEmbedding(ctx, limit)
}

// SearchJournalEntries performs vector similarity search.
func (s *Store) SearchJournalEntries(ctx context.Context, opts *SearchJournalEntries) ([]*JournalEntryWithScore, error) {
	if opts.UserID == "" {
		return nil, errors.New("search requires a user id")
	}
	if len(opts.Vector) == 0 {
		return nil, errors.New("search requires a query vector")
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	return s.driver.SearchJournalEntries(ctx, opts)
}
