package application_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	aiadapter "github.com/felixgeelhaar/milestone/pkg/ai"
	"github.com/felixgeelhaar/milestone/pkg/application"
	"github.com/felixgeelhaar/milestone/pkg/domain/ai"
	"github.com/felixgeelhaar/milestone/pkg/domain/roadmap"
)

func advisorySnapshot() roadmap.Snapshot {
	return roadmap.Snapshot{
		{ID: 1, Name: "Auth", Priority: roadmap.PriorityP1, Subtasks: []roadmap.SubTask{
			{ID: "1-1", Name: "Login", Completed: true},
			{ID: "1-2", Name: "Password reset"},
		}},
		{ID: 2, Name: "Workouts", Priority: roadmap.PriorityP1, Subtasks: []roadmap.SubTask{
			{ID: "2-1", Name: "Log sets"},
		}},
		{ID: 3, Name: "Social", Priority: roadmap.PriorityP2, Subtasks: []roadmap.SubTask{
			{ID: "3-1", Name: "Share workout"},
		}},
	}
}

func TestAdvisoryService_Advise(t *testing.T) {
	tests := []struct {
		name       string
		provider   *aiadapter.MockProvider
		wantText   string
		wantSource application.AdviceSource
	}{
		{
			name:       "provider answer",
			provider:   &aiadapter.MockProvider{Model: "m", Reply: "  Ship the logging flow first.\n"},
			wantText:   "Ship the logging flow first.",
			wantSource: application.AdviceFromProvider,
		},
		{
			name:       "provider error",
			provider:   &aiadapter.MockProvider{Err: errors.New("quota exceeded")},
			wantText:   application.AdviceProviderDown,
			wantSource: application.AdviceFromFallback,
		},
		{
			name:       "empty completion",
			provider:   &aiadapter.MockProvider{Err: fmt.Errorf("gemini: %w", ai.ErrEmptyCompletion)},
			wantText:   application.AdviceEmptyAnswer,
			wantSource: application.AdviceFromFallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := application.NewAdvisoryService(tt.provider, "", nil)
			advice := svc.Advise(context.Background(), advisorySnapshot())

			if advice.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", advice.Text, tt.wantText)
			}
			if advice.Source != tt.wantSource {
				t.Errorf("Source = %s, want %s", advice.Source, tt.wantSource)
			}
			if strings.Join(advice.Remaining, "|") != "Password reset|Log sets" {
				t.Errorf("Remaining = %v", advice.Remaining)
			}
			if len(tt.provider.Prompts) != 1 {
				t.Fatalf("expected one provider call, got %d", len(tt.provider.Prompts))
			}
		})
	}
}

func TestAdvisoryService_AllDoneSkipsProvider(t *testing.T) {
	provider := &aiadapter.MockProvider{}
	svc := application.NewAdvisoryService(provider, "", nil)

	snap := advisorySnapshot()
	snap = roadmap.ToggleSubtask(snap, 1, "1-2")
	snap = roadmap.ToggleSubtask(snap, 2, "2-1")

	advice := svc.Advise(context.Background(), snap)
	if advice.Text != application.AdviceAllDone || advice.Source != application.AdviceFromRoadmap {
		t.Errorf("unexpected advice %+v", advice)
	}
	if len(provider.Prompts) != 0 {
		t.Error("provider should not be called when P1 is complete")
	}
}

func TestAdvisoryService_NilProvider(t *testing.T) {
	svc := application.NewAdvisoryService(nil, "", nil)
	if got := svc.Advise(context.Background(), advisorySnapshot()); got.Text != application.AdviceProviderDown {
		t.Errorf("Text = %q", got.Text)
	}
}

func TestAdvisoryService_DoesNotMutate(t *testing.T) {
	snap := advisorySnapshot()
	before := snap.Clone()
	application.NewAdvisoryService(&aiadapter.MockProvider{}, "", nil).Advise(context.Background(), snap)
	if !snap.Equal(before) {
		t.Error("advisory mutated the snapshot")
	}
}

func TestBuildAdvicePrompt(t *testing.T) {
	provider := &aiadapter.MockProvider{}
	application.NewAdvisoryService(provider, "LiftLog", nil).Advise(context.Background(), advisorySnapshot())

	prompt := provider.Prompts[0]
	for _, want := range []string{"called LiftLog", "Password reset, Log sets", "Minimum Viable Product"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if strings.Contains(prompt, "Share workout") {
		t.Error("prompt should only list P1 items")
	}

	if got := application.BuildAdvicePrompt(application.DefaultAppName, nil); !strings.Contains(got, "GymTracker") {
		t.Errorf("default app name missing: %s", got)
	}
}
