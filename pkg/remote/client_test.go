package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/felixgeelhaar/milestone/pkg/domain/roadmap"
)

func testSnapshot() roadmap.Snapshot {
	return roadmap.Snapshot{{
		ID: 7, Name: "UI", Priority: roadmap.PriorityP1, Effort: 3, IsOpen: true,
		Subtasks: []roadmap.SubTask{{ID: "7-1", Name: "Dark mode", Completed: true}},
	}}
}

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, "bucket-1", "", append([]Option{WithHTTPClient(server.Client())}, opts...)...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClient(t *testing.T) {
	c, err := NewClient("https://kv.example.com/", "b", "k")
	if err != nil {
		t.Fatal(err)
	}
	if c.Endpoint() != "https://kv.example.com/b/k" {
		t.Errorf("Endpoint() = %s", c.Endpoint())
	}

	c, _ = NewClient("", "b", "")
	if c.Endpoint() != DefaultBaseURL+"/b/"+DefaultKey {
		t.Errorf("defaults not applied: %s", c.Endpoint())
	}

	if _, err := NewClient("", "", ""); err == nil {
		t.Error("expected error for empty bucket")
	}
}

func TestClient_Fetch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/bucket-1/roadmap" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(testSnapshot())
	})

	got, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !got.Equal(testSnapshot()) {
		t.Errorf("Fetch() = %+v", got)
	}
}

func TestClient_FetchErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"not found", http.StatusNotFound, "", roadmap.ErrNotFound},
		{"server error", http.StatusInternalServerError, "", roadmap.ErrNetwork},
		{"forbidden", http.StatusForbidden, "", roadmap.ErrNetwork},
		{"malformed body", http.StatusOK, "{oops", roadmap.ErrParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Fetch(context.Background())
			if !errors.Is(err, tt.want) {
				t.Errorf("Fetch() err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestClient_FetchUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c, _ := NewClient(url, "b", "")
	_, err := c.Fetch(context.Background())

	var netErr *roadmap.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
	if errors.Is(err, roadmap.ErrNotFound) {
		t.Error("unreachable must not look like not-found")
	}
}

func TestClient_FetchTimeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}, WithTimeout(20*time.Millisecond))

	_, err := c.Fetch(context.Background())
	if !errors.Is(err, roadmap.ErrNetwork) {
		t.Errorf("expected network error on timeout, got %v", err)
	}
}

func TestClient_Push(t *testing.T) {
	var body []byte
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	})

	if err := c.Push(context.Background(), testSnapshot()); err != nil {
		t.Fatalf("Push: %v", err)
	}

	got, err := roadmap.Decode("test", body)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(testSnapshot()) {
		t.Errorf("pushed body = %s", body)
	}
}

func TestClient_PushRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	err := c.Push(context.Background(), testSnapshot())
	var netErr *roadmap.NetworkError
	if !errors.As(err, &netErr) || netErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected NetworkError with 400, got %v", err)
	}
}
