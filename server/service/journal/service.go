// Package journal implements the journal entry flows: finishing a chat into a
// persisted entry enriched with graph data and a summary, and reading, editing
// and searching entries afterwards.
package journal

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/soulmap/plugin/ai"
	"github.com/hrygo/soulmap/plugin/ai/graph"
	apperrors "github.com/hrygo/soulmap/server/internal/errors"
	"github.com/hrygo/soulmap/server/internal/observability"
	"github.com/hrygo/soulmap/store"
)

// SourceChat marks entries created from a chat.
const SourceChat = "chat"

// GraphExtractor proposes a graph for an entry's text.
type GraphExtractor interface {
	Extract(ctx context.Context, text string) graph.Result
}

// Service runs the journal flows.
type Service struct {
	store      *store.Store
	embedder   ai.EmbeddingService
	extractor  GraphExtractor
	summarizer *Summarizer
	metrics    *observability.Metrics
	validate   *validator.Validate

	defaultUserID string
	now           func() time.Time
}

// Config wires a Service. Extractor, Summarizer and Metrics may be nil, which
// disables graph enrichment, summaries and metrics respectively.
type Config struct {
	Store         *store.Store
	Embedder      ai.EmbeddingService
	Extractor     GraphExtractor
	Summarizer    *Summarizer
	Metrics       *observability.Metrics
	DefaultUserID string
}

// NewService creates a journal service.
func NewService(cfg Config) *Service {
	return &Service{
		store:         cfg.Store,
		embedder:      cfg.Embedder,
		extractor:     cfg.Extractor,
		summarizer:    cfg.Summarizer,
		metrics:       cfg.Metrics,
		validate:      newValidator(),
		defaultUserID: cfg.DefaultUserID,
		now:           time.Now,
	}
}

// FinishRequest is one finished chat.
type FinishRequest struct {
	Chat   []ChatMessage `json:"chat" validate:"required,min=1,dive"`
	UserID string        `json:"userId" validate:"omitempty,max=128"`
	// JournalEntryID is the client-local id of an entry saved offline.
	JournalEntryID string `json:"journal_entry_id" validate:"omitempty,max=64"`
	// CreatedAt is the RFC 3339 creation instant recorded by the client.
	CreatedAt string `json:"created_at"`
}

// FinishResult reports both phases of a finish. The entry phase succeeded
// whenever the result is returned; GraphErr and SummaryErr carry the outcome of
// the best-effort phase.
type FinishResult struct {
	EntryID string
	// Existing is set when the entry id was already saved and nothing was redone.
	Existing bool

	Graph      *store.MergeStats
	GraphErr   error
	SummaryErr error
}

// Degraded reports whether any best-effort step failed.
func (r *FinishResult) Degraded() bool {
	return r.GraphErr != nil || r.SummaryErr != nil
}

// Finish persists a chat as a journal entry and enriches it.
//
// Validation, embedding and the entry save are fatal and return an error.
// Graph extraction, graph merge and summary generation run afterwards, side by
// side, and never fail the call.
func (s *Service) Finish(ctx context.Context, req *FinishRequest) (*FinishResult, error) {
	if err := s.validateFinish(req); err != nil {
		s.metrics.RecordFinish(observability.OutcomeFailed)
		return nil, err
	}
	userID := s.userID(req.UserID)
	logger := observability.Logger(ctx).With(observability.LogFieldUserID, userID)

	createdAt := s.now()
	if req.CreatedAt != "" {
		t, err := time.Parse(time.RFC3339, req.CreatedAt)
		if err != nil {
			s.metrics.RecordFinish(observability.OutcomeFailed)
			return nil, apperrors.InvalidArgument("created_at must be an RFC 3339 timestamp")
		}
		createdAt = t
	}

	entryID := uuid.NewString()
	if id, err := uuid.Parse(req.JournalEntryID); err == nil {
		entryID = id.String()
		if existing, err := s.findOwnEntry(ctx, entryID, userID); err != nil {
			s.metrics.RecordFinish(observability.OutcomeFailed)
			return nil, err
		} else if existing {
			logger.Info("journal entry already saved, skipping", observability.LogFieldEntryID, entryID)
			s.metrics.RecordFinish(observability.OutcomeOK)
			return &FinishResult{EntryID: entryID, Existing: true}, nil
		}
	} else if req.JournalEntryID != "" {
		logger.Warn("ignoring non-UUID client entry id", "journal_entry_id", req.JournalEntryID)
	}

	text := FlattenChat(req.Chat)

	if s.embedder == nil {
		s.metrics.RecordFinish(observability.OutcomeFailed)
		return nil, apperrors.UpstreamUnavailable("embedding service is not configured", nil)
	}
	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.metrics.RecordFinish(observability.OutcomeFailed)
		return nil, apperrors.UpstreamUnavailable("failed to embed journal entry", err)
	}

	entry, err := s.store.CreateJournalEntry(ctx, &store.JournalEntry{
		ID:        entryID,
		UserID:    userID,
		Content:   text,
		Embedding: embedding,
		Metadata: &store.EntryMetadata{
			MessageCount: len(req.Chat),
			Source:       SourceChat,
			Model:        s.embedder.Model(),
		},
		CreatedTs: createdAt.Unix(),
		UpdatedTs: s.now().Unix(),
	})
	if err != nil {
		// A concurrent retry may have saved the same client id first.
		if existing, findErr := s.findOwnEntry(ctx, entryID, userID); findErr == nil && existing {
			s.metrics.RecordFinish(observability.OutcomeOK)
			return &FinishResult{EntryID: entryID, Existing: true}, nil
		}
		s.metrics.RecordFinish(observability.OutcomeFailed)
		return nil, apperrors.PersistenceFailed("failed to save journal entry", err)
	}
	logger.Info("journal entry saved", observability.LogFieldEntryID, entry.ID, "messages", len(req.Chat))

	result := &FinishResult{EntryID: entry.ID}
	s.enrich(context.WithoutCancel(ctx), logger, entry, result)

	if result.Degraded() {
		s.metrics.RecordFinish(observability.OutcomeDegraded)
	} else {
		s.metrics.RecordFinish(observability.OutcomeOK)
	}
	return result, nil
}

// enrich runs the best-effort phase. Each task records its own error.
func (s *Service) enrich(ctx context.Context, logger *slog.Logger, entry *store.JournalEntry, result *FinishResult) {
	var g errgroup.Group

	if s.extractor != nil {
		g.Go(func() error {
			stats, err := s.enrichGraph(ctx, entry)
			result.Graph, result.GraphErr = stats, err
			if err != nil {
				logger.Warn("graph enrichment failed", observability.LogFieldEntryID, entry.ID, "error", err)
			}
			return nil
		})
	}
	if s.summarizer != nil {
		g.Go(func() error {
			result.SummaryErr = s.summarize(ctx, entry)
			if result.SummaryErr != nil {
				logger.Warn("summary generation failed", observability.LogFieldEntryID, entry.ID, "error", result.SummaryErr)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Service) enrichGraph(ctx context.Context, entry *store.JournalEntry) (*store.MergeStats, error) {
	extraction := s.extractor.Extract(ctx, entry.Content)
	switch {
	case extraction.Err != nil:
		s.metrics.RecordExtraction(observability.OutcomeFailed)
		return nil, errors.Wrap(extraction.Err, "graph extraction")
	case extraction.Graph.IsEmpty():
		s.metrics.RecordExtraction(observability.OutcomeEmpty)
		return &store.MergeStats{}, nil
	default:
		s.metrics.RecordExtraction(observability.OutcomeOK)
	}

	merge := &store.MergeGraph{
		UserID:  entry.UserID,
		EntryID: entry.ID,
		Nodes:   make([]store.MergeNode, 0, len(extraction.Graph.Nodes)),
		Edges:   make([]store.MergeEdge, 0, len(extraction.Graph.Edges)),
		Now:     s.now(),
	}
	for _, n := range extraction.Graph.Nodes {
		merge.Nodes = append(merge.Nodes, store.MergeNode{Label: n.Label, Type: n.Type})
	}
	for _, e := range extraction.Graph.Edges {
		merge.Edges = append(merge.Edges, store.MergeEdge{From: e.From, To: e.To, Weight: e.Weight})
	}

	stats, err := s.store.MergeGraph(ctx, merge)
	if err != nil {
		return nil, errors.Wrap(err, "graph merge")
	}
	s.metrics.RecordMerge(stats)
	return stats, nil
}

func (s *Service) summarize(ctx context.Context, entry *store.JournalEntry) error {
	summary, err := s.summarizer.Summarize(ctx, entry.Content)
	if err != nil {
		return err
	}
	if err := s.store.UpdateJournalEntry(ctx, &store.UpdateJournalEntry{
		ID:        entry.ID,
		UserID:    entry.UserID,
		UpdatedTs: s.now().Unix(),
		Title:     &summary.Title,
		Emoji:     &summary.Emoji,
		Summary:   &summary.Summary,
		AISummary: &summary.AISummary,
	}); err != nil {
		return errors.Wrap(err, "failed to save summary")
	}
	entry.Title, entry.Emoji, entry.Summary, entry.AISummary = summary.Title, summary.Emoji, summary.Summary, summary.AISummary
	return nil
}

// findOwnEntry reports whether id is already saved for userID. An id owned by
// another user is a conflict.
func (s *Service) findOwnEntry(ctx context.Context, id, userID string) (bool, error) {
	entry, err := s.store.GetJournalEntry(ctx, &store.FindJournalEntry{ID: &id})
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.PersistenceFailed("failed to look up journal entry", err)
	}
	if entry.UserID != userID {
		return false, apperrors.InvalidArgument("journal_entry_id is already in use")
	}
	return true, nil
}

func (s *Service) userID(requested string) string {
	if requested = strings.TrimSpace(requested); requested != "" {
		return requested
	}
	return s.defaultUserID
}
