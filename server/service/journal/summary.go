package journal

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/hrygo/soulmap/plugin/ai"
	"github.com/hrygo/soulmap/plugin/ai/graph"
)

const summarySystemPrompt = `You title and summarize personal journal entries.
Return only a JSON object, no commentary, in this exact shape:
{"title":"...","emoji":"...","summary":"...","ai_summary":"..."}

Rules:
1. title: at most 8 words, in the entry's language.
2. emoji: a single emoji matching the entry's mood.
3. summary: one sentence in the writer's voice.
4. ai_summary: two or three sentences reflecting on the entry as a supportive companion.`

const (
	maxTitleRunes   = 120
	maxSummaryRunes = 500
	maxEmojiRunes   = 8
)

// Summary is the derived display fields of an entry.
type Summary struct {
	Title     string `json:"title"`
	Emoji     string `json:"emoji"`
	Summary   string `json:"summary"`
	AISummary string `json:"ai_summary"`
}

// Summarizer derives a Summary with an LLM.
type Summarizer struct {
	llm     ai.LLMService
	timeout time.Duration
}

// NewSummarizer creates a Summarizer. A non-positive timeout means no extra deadline.
func NewSummarizer(llm ai.LLMService, timeout time.Duration) *Summarizer {
	return &Summarizer{llm: llm, timeout: timeout}
}

// Summarize asks the LLM for the entry's summary fields.
func (s *Summarizer) Summarize(ctx context.Context, text string) (*Summary, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	reply, err := s.llm.Chat(ctx, []ai.Message{
		ai.SystemPrompt(summarySystemPrompt),
		ai.UserMessage(text),
	})
	if err != nil {
		return nil, errors.Wrap(err, "summary completion failed")
	}
	return ParseSummary(reply)
}

// ParseSummary decodes a summary reply, tolerating fences and commentary.
func ParseSummary(reply string) (*Summary, error) {
	object, err := graph.ExtractJSONObject(reply)
	if err != nil {
		return nil, err
	}
	var summary Summary
	if err := json.Unmarshal([]byte(object), &summary); err != nil {
		return nil, &graph.ParseError{Raw: reply, Err: err}
	}

	summary.Title = clip(summary.Title, maxTitleRunes)
	summary.Emoji = clip(summary.Emoji, maxEmojiRunes)
	summary.Summary = clip(summary.Summary, maxSummaryRunes)
	summary.AISummary = strings.TrimSpace(summary.AISummary)
	if summary.Title == "" && summary.Summary == "" {
		return nil, &graph.ShapeError{Path: "title", Reason: "title and summary are both empty"}
	}
	return &summary, nil
}

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
