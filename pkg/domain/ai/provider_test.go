package ai

import "testing"

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 0},
		{"abcd", 1},
		{"Focus on the logging flow.", 6},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestTokenUsage_Total(t *testing.T) {
	if got := (TokenUsage{InputTokens: 100, OutputTokens: 20}).Total(); got != 120 {
		t.Errorf("Total() = %d", got)
	}
}
