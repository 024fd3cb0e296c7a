package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/felixgeelhaar/milestone/pkg/domain/ai"
	"github.com/felixgeelhaar/milestone/pkg/domain/roadmap"
)

const DefaultAppName = "GymTracker"

// Fixed answers used when the provider cannot help.
const (
	AdviceProviderDown = "The AI is currently resting. Focus on completing your highest priority tasks!"
	AdviceEmptyAnswer  = "Keep pushing! Focus on finishing the core P1 features to launch your MVP."
	AdviceAllDone      = "Every core P1 feature is done. Your MVP is ready to ship, so pick the next tier!"
)

// AdviceSource says where the advice text came from.
type AdviceSource string

const (
	AdviceFromProvider AdviceSource = "provider"
	AdviceFromFallback AdviceSource = "fallback"
	AdviceFromRoadmap  AdviceSource = "roadmap"
)

// Advice is the result of one advisory request.
type Advice struct {
	Text      string        `json:"text"`
	Source    AdviceSource  `json:"source"`
	Remaining []string      `json:"remaining"`
	Model     string        `json:"model,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}

// AdvisoryService turns the outstanding core work into a short strategic hint.
// It only reads snapshots.
type AdvisoryService struct {
	provider ai.Provider
	appName  string
	logger   *slog.Logger
}

func NewAdvisoryService(provider ai.Provider, appName string, logger *slog.Logger) *AdvisoryService {
	if appName == "" {
		appName = DefaultAppName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AdvisoryService{provider: provider, appName: appName, logger: logger}
}

// BuildAdvicePrompt renders the product-manager prompt for the remaining P1 items.
func BuildAdvicePrompt(appName string, remaining []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a Senior Product Manager for a Fitness App called %s.\n", appName)
	b.WriteString("Here is the list of remaining core features (P1 priority):\n")
	b.WriteString(strings.Join(remaining, ", "))
	b.WriteString("\n\n")
	b.WriteString("Analyze these tasks and provide a short, motivating 2-3 sentence strategic advice ")
	b.WriteString("on what the developer should focus on next to achieve a Minimum Viable Product (MVP).\n")
	b.WriteString("Be concise and technical.\n")
	return b.String()
}

// Advise never fails: provider errors degrade to a fixed message.
func (s *AdvisoryService) Advise(ctx context.Context, snap roadmap.Snapshot) Advice {
	remaining := roadmap.IncompleteSubtasks(snap, roadmap.PriorityP1)
	if len(remaining) == 0 {
		return Advice{Text: AdviceAllDone, Source: AdviceFromRoadmap, Remaining: []string{}}
	}

	if s.provider == nil {
		s.logger.Warn("no AI provider configured")
		return Advice{Text: AdviceProviderDown, Source: AdviceFromFallback, Remaining: remaining}
	}

	start := time.Now()
	resp, err := s.provider.Complete(ctx, ai.CompletionRequest{
		Prompt: BuildAdvicePrompt(s.appName, remaining),
	})
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, ai.ErrEmptyCompletion):
		return Advice{Text: AdviceEmptyAnswer, Source: AdviceFromFallback, Remaining: remaining, Elapsed: elapsed}
	case err != nil:
		s.logger.Warn("advisory request failed", "provider", s.provider.ID(), "err", err, "elapsed", elapsed)
		return Advice{Text: AdviceProviderDown, Source: AdviceFromFallback, Remaining: remaining, Elapsed: elapsed}
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return Advice{Text: AdviceEmptyAnswer, Source: AdviceFromFallback, Remaining: remaining, Elapsed: elapsed}
	}

	s.logger.Debug("advisory generated", "provider", s.provider.ID(), "elapsed", elapsed,
		"tokens", resp.Usage.Total())
	return Advice{Text: text, Source: AdviceFromProvider, Remaining: remaining, Model: resp.Model, Elapsed: elapsed}
}
