package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCompleteReturnsAnswer(t *testing.T) {
	var gotAuth string
	var gotPrompt string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req completionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotPrompt = req.Prompt
		_ = json.NewEncoder(w).Encode(completionResponse{Answer: "  Vendeu 120 sacos de gelo hoje.  "})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "token-abc")
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	answer, err := client.Complete(context.Background(), "Quanto vendemos hoje?")
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if answer != "Vendeu 120 sacos de gelo hoje." {
		t.Fatalf("unexpected answer %q", answer)
	}
	if gotAuth != "Bearer token-abc" {
		t.Fatalf("expected bearer token, got %q", gotAuth)
	}
	if gotPrompt != "Quanto vendemos hoje?" {
		t.Fatalf("unexpected prompt %q", gotPrompt)
	}
}

func TestCompleteMapsStatusCodes(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{name: "server error", status: http.StatusInternalServerError, want: ErrUnavailable},
		{name: "client error", status: http.StatusUnprocessableEntity, want: ErrRejected},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			client, err := NewClient(srv.URL, "")
			if err != nil {
				t.Fatalf("NewClient returned error: %v", err)
			}

			_, err = client.Complete(context.Background(), "pergunta")
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCompleteRejectsEmptyAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(completionResponse{Answer: "   "})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "")
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	if _, err := client.Complete(context.Background(), "pergunta"); !errors.Is(err, ErrEmptyAnswer) {
		t.Fatalf("expected ErrEmptyAnswer, got %v", err)
	}
}

func TestCompleteRequiresPrompt(t *testing.T) {
	client, err := NewClient("http://localhost:1", "")
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if _, err := client.Complete(context.Background(), "   "); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected for blank prompt, got %v", err)
	}
}

func TestNewClientRequiresEndpoint(t *testing.T) {
	if _, err := NewClient("  ", "token"); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
}
