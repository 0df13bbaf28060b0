package firestore

import (
	"errors"
	"testing"
	"time"

	"github.com/gelomax/api/internal/platform/pagination"
)

func TestListTokenRoundTrip(t *testing.T) {
	at := time.Date(2025, 6, 7, 12, 30, 45, 123456789, time.UTC)
	token := encodeListToken(at, "doc_1")
	if token == "" {
		t.Fatalf("expected non-empty token")
	}

	ts, docID, err := decodeListToken(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ts.Equal(at) {
		t.Fatalf("expected %s, got %s", at, ts)
	}
	if docID != "doc_1" {
		t.Fatalf("expected doc_1, got %q", docID)
	}
}

func TestStringTokenRoundTrip(t *testing.T) {
	token := encodeStringToken("gelo escama", "prod_9")
	key, docID, err := decodeStringToken(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "gelo escama" || docID != "prod_9" {
		t.Fatalf("unexpected cursor %q/%q", key, docID)
	}
}

func TestDecodeTokenRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"not base64": "%%%",
		"wrong arity": func() string {
			token, _ := pagination.EncodeToken(pagination.Cursor{StartAfter: []any{"only-one"}})
			return token
		}(),
		"non-string elements": func() string {
			token, _ := pagination.EncodeToken(pagination.Cursor{StartAfter: []any{1, 2}})
			return token
		}(),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			if _, _, err := decodeStringToken(token); err == nil {
				t.Fatalf("expected error for token %q", token)
			}
		})
	}

	if _, _, err := decodeListToken(encodeStringToken("not-a-timestamp", "doc_1")); err == nil {
		t.Fatalf("expected timestamp parse error")
	}
	if _, _, err := decodeStringToken("!!not-base64!!"); !errors.Is(err, pagination.ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
}
