// Package embedding backfills journal entry embeddings that are still NULL,
// e.g. seeded entries or entries saved while the provider was down.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/hrygo/soulmap/plugin/ai"
	"github.com/hrygo/soulmap/server/internal/observability"
	"github.com/hrygo/soulmap/store"
)

const (
	defaultInterval  = 2 * time.Minute
	defaultBatchSize = 8
	// maxInputRunes keeps inputs within the context of common embedding models.
	maxInputRunes = 8000
)

type Runner struct {
	store            *store.Store
	embeddingService ai.EmbeddingService
	metrics          *observability.Metrics
	interval         time.Duration
	batchSize        int
}

// NewRunner creates an embedding backfill runner. A non-positive interval uses
// the default. metrics may be nil.
func NewRunner(store *store.Store, embeddingService ai.EmbeddingService, interval time.Duration, metrics *observability.Metrics) *Runner {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Runner{
		store:            store,
		embeddingService: embeddingService,
		metrics:          metrics,
		interval:         interval,
		batchSize:        defaultBatchSize,
	}
}

// Run processes pending entries on start and then every interval until ctx is done.
func (r *Runner) Run(ctx context.Context) {
	r.processPendingEntries(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.processPendingEntries(ctx)
		case <-ctx.Done():
			slog.Info("embedding runner stopped")
			return
		}
	}
}

// RunOnce processes pending entries once and returns how many were embedded.
func (r *Runner) RunOnce(ctx context.Context) int {
	return r.processPendingEntries(ctx)
}

func (r *Runner) processPendingEntries(ctx context.Context) int {
	entries, err := r.store.FindJournalEntriesWithoutEmbedding(ctx, r.batchSize*20)
	if err != nil {
		slog.Error("failed to find journal entries without embedding", "error", err)
		return 0
	}
	if len(entries) == 0 {
		return 0
	}

	slog.Info("processing journal entries for embedding", "count", len(entries))

	embedded := 0
	for i := 0; i < len(entries); i += r.batchSize {
		select {
		case <-ctx.Done():
			slog.Info("embedding processing cancelled", "processed", i, "total", len(entries))
			return embedded
		default:
		}

		end := min(i+r.batchSize, len(entries))
		n, err := r.processBatch(ctx, entries[i:end])
		embedded += n
		if err != nil {
			slog.Error("failed to process batch", "error", err)
			continue
		}
		slog.Info("batch processed", "count", n, "progress", fmt.Sprintf("%d/%d", end, len(entries)))
	}
	return embedded
}

func (r *Runner) processBatch(ctx context.Context, entries []*store.JournalEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = truncateRunes(e.Content, maxInputRunes)
	}

	vectors, err := r.embeddingService.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, err
	}
	if len(vectors) != len(entries) {
		return 0, fmt.Errorf("embedding provider returned %d vectors for %d entries", len(vectors), len(entries))
	}

	stored := 0
	for i, e := range entries {
		if err := r.store.UpdateJournalEntryEmbedding(ctx, e.ID, vectors[i]); err != nil {
			slog.Error("failed to store embedding", "entry_id", e.ID, "error", err)
			continue
		}
		stored++
	}
	if r.metrics != nil {
		r.metrics.EmbeddingsBackfilled.Add(float64(stored))
	}
	return stored, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
