package pagination

import (
	"errors"
	"testing"
)

func TestEncodeDecodeTokenRoundTrip(t *testing.T) {
	cursor := Cursor{StartAfter: []any{"2026-02-10T12:00:00Z", "ordch_01"}}

	token, err := EncodeToken(cursor)
	if err != nil {
		t.Fatalf("encode token: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	decoded, err := DecodeToken(token)
	if err != nil {
		t.Fatalf("decode token: %v", err)
	}
	if len(decoded.StartAfter) != 2 {
		t.Fatalf("expected two cursor values, got %d", len(decoded.StartAfter))
	}
	if decoded.StartAfter[0] != "2026-02-10T12:00:00Z" {
		t.Fatalf("unexpected cursor value %v", decoded.StartAfter[0])
	}
}

func TestEncodeTokenEmptyCursor(t *testing.T) {
	token, err := EncodeToken(Cursor{})
	if err != nil {
		t.Fatalf("encode token: %v", err)
	}
	if token != "" {
		t.Fatalf("expected empty token for empty cursor, got %q", token)
	}
}

func TestDecodeTokenRejectsGarbage(t *testing.T) {
	if _, err := DecodeToken("%%%not-base64%%%"); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
}

func TestClampPageSize(t *testing.T) {
	if got := ClampPageSize(0); got != DefaultPageSize {
		t.Fatalf("expected default for zero, got %d", got)
	}
	if got := ClampPageSize(500); got != DefaultMaxPageSize {
		t.Fatalf("expected max cap, got %d", got)
	}
	if got := ClampPageSize(25); got != 25 {
		t.Fatalf("expected pass-through, got %d", got)
	}
}
