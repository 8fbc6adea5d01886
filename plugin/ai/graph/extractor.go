package graph

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hrygo/soulmap/plugin/ai"
)

// ErrNoLLM is reported when extraction is requested without an LLM configured.
var ErrNoLLM = errors.New("graph extraction: no LLM configured")

const extractionSystemPrompt = `You build a personal knowledge graph from journal entries.
Return only a JSON object, no commentary, in this exact shape:
{"nodes":[{"label":"...","type":"..."}],"edges":[{"from":"...","to":"...","weight":0.0}]}

Rules:
1. type is one of: emotion, theme, person, event.
2. Use short, canonical labels (e.g. "Mom", "anxiety", "work deadline") so the same concept gets the same label across entries.
3. Every edge's from and to must be labels from nodes.
4. weight is between -1.0 and 1.0: negative when the relationship drains the writer, positive when it supports them.
5. Extract at most 10 nodes and 15 edges. Return {"nodes":[],"edges":[]} when nothing stands out.`

// Result is the tagged outcome of one extraction. Graph is always usable:
// it is empty whenever Err is non-nil.
type Result struct {
	Graph Graph
	// Err is nil, a *ParseError, a *ShapeError, or the LLM call error.
	Err error
}

// OK reports whether the extraction succeeded.
func (r Result) OK() bool { return r.Err == nil }

// ExtractorConfig tunes an Extractor.
type ExtractorConfig struct {
	// MaxConcurrent bounds in-flight LLM calls across all callers.
	MaxConcurrent int64
	// Timeout bounds a single LLM call. Zero means no extra deadline.
	Timeout time.Duration
	// MaxInputChars truncates long entries before prompting.
	MaxInputChars int
}

// DefaultExtractorConfig returns the production defaults.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		MaxConcurrent: 4,
		Timeout:       60 * time.Second,
		MaxInputChars: 8000,
	}
}

// Extractor turns journal text into a Graph.
type Extractor struct {
	llm    ai.LLMService
	sem    *semaphore.Weighted
	config ExtractorConfig
}

// NewExtractor creates an Extractor over llm.
func NewExtractor(llm ai.LLMService, config ExtractorConfig) *Extractor {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 1
	}
	return &Extractor{
		llm:    llm,
		sem:    semaphore.NewWeighted(config.MaxConcurrent),
		config: config,
	}
}

// Extract asks the LLM for the entry's graph. It never fails outright:
// errors are reported in Result.Err next to an empty graph.
func (e *Extractor) Extract(ctx context.Context, text string) Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{Graph: Empty()}
	}
	if e == nil || e.llm == nil {
		return Result{Graph: Empty(), Err: ErrNoLLM}
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return Result{Graph: Empty(), Err: err}
	}
	defer e.sem.Release(1)

	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	if e.config.MaxInputChars > 0 {
		text = truncateRunes(text, e.config.MaxInputChars)
	}

	start := time.Now()
	reply, err := e.llm.Chat(ctx, []ai.Message{
		ai.SystemPrompt(extractionSystemPrompt),
		ai.UserMessage(text),
	})
	if err != nil {
		slog.Warn("graph extraction LLM call failed",
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return Result{Graph: Empty(), Err: err}
	}

	g, err := ParseExtraction(reply)
	if err != nil {
		slog.Warn("graph extraction reply rejected",
			"error", err,
			"raw", truncateRunes(reply, 500),
		)
		return Result{Graph: Empty(), Err: err}
	}

	slog.Debug("graph extracted",
		"nodes", len(g.Nodes),
		"edges", len(g.Edges),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return Result{Graph: g}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
