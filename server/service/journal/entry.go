package journal

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	apperrors "github.com/hrygo/soulmap/server/internal/errors"
	"github.com/hrygo/soulmap/store"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

// EntryView is the JSON shape of a journal entry.
type EntryView struct {
	ID           string               `json:"id"`
	UserID       string               `json:"user_id"`
	Content      string               `json:"content"`
	Title        string               `json:"title"`
	Emoji        string               `json:"emoji"`
	Summary      string               `json:"summary"`
	AISummary    string               `json:"ai_summary"`
	Metadata     *store.EntryMetadata `json:"metadata,omitempty"`
	HasEmbedding bool                 `json:"has_embedding"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// NewEntryView converts a stored entry.
func NewEntryView(e *store.JournalEntry) *EntryView {
	return &EntryView{
		ID:           e.ID,
		UserID:       e.UserID,
		Content:      e.Content,
		Title:        e.Title,
		Emoji:        e.Emoji,
		Summary:      e.Summary,
		AISummary:    e.AISummary,
		Metadata:     e.Metadata,
		HasEmbedding: len(e.Embedding) > 0,
		CreatedAt:    time.Unix(e.CreatedTs, 0).UTC(),
		UpdatedAt:    time.Unix(e.UpdatedTs, 0).UTC(),
	}
}

// EntryPage is one page of entries.
type EntryPage struct {
	Data       []*EntryView     `json:"data"`
	Pagination store.Pagination `json:"pagination"`
}

// GetEntry returns one of the user's entries.
func (s *Service) GetEntry(ctx context.Context, userID, id string) (*EntryView, error) {
	uid := s.userID(userID)
	entry, err := s.store.GetJournalEntry(ctx, &store.FindJournalEntry{ID: &id, UserID: &uid})
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NotFound("journal entry not found").WithContext("entry_id", id)
	}
	if err != nil {
		return nil, apperrors.PersistenceFailed("failed to get journal entry", err)
	}
	return NewEntryView(entry), nil
}

// ListEntries returns the user's entries newest first.
func (s *Service) ListEntries(ctx context.Context, userID string, limit, offset int) (*EntryPage, error) {
	uid := s.userID(userID)
	limit, offset = store.NormalizePage(limit, offset)
	entries, total, err := s.store.ListJournalEntries(ctx, &store.FindJournalEntry{UserID: &uid, Limit: &limit, Offset: &offset})
	if err != nil {
		return nil, apperrors.PersistenceFailed("failed to list journal entries", err)
	}
	data := make([]*EntryView, 0, len(entries))
	for _, entry := range entries {
		data = append(data, NewEntryView(entry))
	}
	return &EntryPage{Data: data, Pagination: store.NewPagination(total, limit, offset)}, nil
}

// UpdateEntryRequest edits the user-editable fields of an entry.
type UpdateEntryRequest struct {
	ID     string  `json:"-" validate:"required"`
	UserID string  `json:"userId"`
	Title  *string `json:"title" validate:"omitempty,max=120"`
	Emoji  *string `json:"emoji" validate:"omitempty,max=16"`
}

// UpdateEntry sets the title and/or emoji of an entry.
func (s *Service) UpdateEntry(ctx context.Context, req *UpdateEntryRequest) (*EntryView, error) {
	if req == nil {
		return nil, apperrors.InvalidArgument("request body is required")
	}
	if err := validationError(s.validate.Struct(req)); err != nil {
		return nil, err
	}
	if req.Title == nil && req.Emoji == nil {
		return nil, apperrors.InvalidArgument("title or emoji is required")
	}

	update := &store.UpdateJournalEntry{
		ID:        req.ID,
		UserID:    s.userID(req.UserID),
		UpdatedTs: s.now().Unix(),
		Emoji:     req.Emoji,
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		update.Title = &title
	}
	if err := s.store.UpdateJournalEntry(ctx, update); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("journal entry not found").WithContext("entry_id", req.ID)
		}
		return nil, apperrors.PersistenceFailed("failed to update journal entry", err)
	}
	return s.GetEntry(ctx, update.UserID, req.ID)
}

// SearchHit is one semantic search result.
type SearchHit struct {
	Entry *EntryView `json:"entry"`
	Score float32    `json:"score"`
}

// Search embeds the query and returns the user's most similar entries.
func (s *Service) Search(ctx context.Context, userID, query string, limit int) ([]*SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.InvalidArgument("query is required")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	if s.embedder == nil {
		return nil, apperrors.UpstreamUnavailable("embedding service is not configured", nil)
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, apperrors.UpstreamUnavailable("failed to embed query", err)
	}
	results, err := s.store.SearchJournalEntries(ctx, &store.SearchJournalEntries{
		UserID: s.userID(userID),
		Vector: vector,
		Limit:  limit,
	})
	if errors.Is(err, store.ErrVectorSearchUnsupported) {
		return nil, apperrors.Unsupported("semantic search is not available", err)
	}
	if err != nil {
		return nil, apperrors.PersistenceFailed("failed to search journal entries", err)
	}

	hits := make([]*SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, &SearchHit{Entry: NewEntryView(r.Entry), Score: r.Score})
	}
	return hits, nil
}
