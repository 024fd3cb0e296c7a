package ai_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	infraAI "github.com/felixgeelhaar/milestone/pkg/ai"
	"github.com/felixgeelhaar/milestone/pkg/domain/ai"
)

func TestGeminiProvider_Complete_Success(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		_ = json.NewDecoder(r.Body).Decode(&received)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]string{{"text": "Ship auth first."}}}},
			},
			"usageMetadata": map[string]int{"promptTokenCount": 10, "candidatesTokenCount": 5},
		})
	}))
	defer server.Close()

	p := infraAI.NewGeminiProviderWithClient("", "test-key", server.URL, server.Client())
	resp, err := p.Complete(context.Background(), ai.CompletionRequest{Prompt: "Hello", System: "Be brief"})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if resp.Text != "Ship auth first." {
		t.Errorf("unexpected text %q", resp.Text)
	}
	if resp.Model != infraAI.DefaultGeminiModel {
		t.Errorf("expected default model, got %s", resp.Model)
	}
	if resp.Usage.InputTokens != 10 || resp.Usage.OutputTokens != 5 {
		t.Errorf("unexpected usage %+v", resp.Usage)
	}
	if _, ok := received["system_instruction"]; !ok {
		t.Error("expected system_instruction in request body")
	}
}

func TestGeminiProvider_Complete_Errors(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		p := infraAI.NewGeminiProvider("", "")
		if _, err := p.Complete(context.Background(), ai.CompletionRequest{Prompt: "x"}); err == nil {
			t.Fatal("expected error without API key")
		}
	})

	t.Run("bad status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		p := infraAI.NewGeminiProviderWithClient("m", "k", server.URL, server.Client())
		_, err := p.Complete(context.Background(), ai.CompletionRequest{Prompt: "x"})
		if err == nil || !strings.Contains(err.Error(), "429") {
			t.Fatalf("expected 429 error, got %v", err)
		}
	})

	t.Run("no candidates", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"candidates":[]}`))
		}))
		defer server.Close()

		p := infraAI.NewGeminiProviderWithClient("m", "k", server.URL, server.Client())
		_, err := p.Complete(context.Background(), ai.CompletionRequest{Prompt: "x"})
		if !errors.Is(err, ai.ErrEmptyCompletion) {
			t.Fatalf("expected ErrEmptyCompletion, got %v", err)
		}
	})
}

func TestOpenAIProvider_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		var req struct {
			Messages []struct {
				Role string `json:"role"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("expected system + user messages, got %+v", req.Messages)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Focus on sessions."}}],"usage":{"prompt_tokens":3,"completion_tokens":4}}`))
	}))
	defer server.Close()

	p := infraAI.NewOpenAIProviderWithClient("gpt-test", "sk-test", server.URL, server.Client())
	resp, err := p.Complete(context.Background(), ai.CompletionRequest{Prompt: "p", System: "s"})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Text != "Focus on sessions." || resp.Usage.OutputTokens != 4 {
		t.Errorf("unexpected response %+v", resp)
	}
	if p.ID() != "openai:gpt-test" {
		t.Errorf("ID() = %s", p.ID())
	}
}

func TestOllamaProvider_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"  Keep going.  ","done":true}`))
	}))
	defer server.Close()

	p := infraAI.NewOllamaProviderWithClient("llama3", server.URL, server.Client())
	resp, err := p.Complete(context.Background(), ai.CompletionRequest{Prompt: "12345678"})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Text != "Keep going." {
		t.Errorf("expected trimmed text, got %q", resp.Text)
	}
	if resp.Usage.InputTokens != 2 {
		t.Errorf("expected estimated 2 input tokens, got %d", resp.Usage.InputTokens)
	}
}

func TestOllamaProvider_RejectsUnsafeModel(t *testing.T) {
	p := infraAI.NewOllamaProvider("llama3; rm -rf /")
	if _, err := p.Complete(context.Background(), ai.CompletionRequest{Prompt: "x"}); err == nil {
		t.Fatal("expected invalid model error")
	}
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name    string
		wantID  string
		wantErr bool
	}{
		{"", "gemini:" + infraAI.DefaultGeminiModel, false},
		{"gemini", "gemini:" + infraAI.DefaultGeminiModel, false},
		{"openai", "openai:gpt-4o-mini", false},
		{"ollama", "ollama:llama3", false},
		{"mock", "mock:", false},
		{"watson", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := infraAI.NewProvider(tt.name, "")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewProvider: %v", err)
			}
			if p.ID() != tt.wantID {
				t.Errorf("ID() = %s, want %s", p.ID(), tt.wantID)
			}
		})
	}
}

func TestGetDefaultProvider_EnvOverride(t *testing.T) {
	t.Setenv("MILESTONE_AI_PROVIDER", "mock")
	t.Setenv("MILESTONE_AI_MODEL", "env-model")

	p, err := infraAI.GetDefaultProvider("gemini", "configured")
	if err != nil {
		t.Fatal(err)
	}
	if p.ID() != "mock:env-model" {
		t.Errorf("ID() = %s", p.ID())
	}
}
