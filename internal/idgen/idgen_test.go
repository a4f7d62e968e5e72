package idgen

import (
	"regexp"
	"strings"
	"testing"
)

var txIDPattern = regexp.MustCompile(`^TX-\d{13}-[0-9A-F]{8}$`)

func TestTransactionID_Format(t *testing.T) {
	id := TransactionID()
	if !txIDPattern.MatchString(id) {
		t.Errorf("transaction ID %q does not match expected format", id)
	}
}

func TestTransactionID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := TransactionID()
		if seen[id] {
			t.Fatalf("duplicate transaction ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestNew_Format(t *testing.T) {
	id := New()
	parts := strings.Split(id, "-")
	if len(parts) != 5 {
		t.Errorf("expected 5 dash-separated groups, got %d in %q", len(parts), id)
	}
	if len(id) != 36 {
		t.Errorf("expected 36 chars, got %d in %q", len(id), id)
	}
}

func TestWithPrefix(t *testing.T) {
	id := WithPrefix("flag_")
	if !strings.HasPrefix(id, "flag_") {
		t.Errorf("expected flag_ prefix, got %q", id)
	}
	if len(id) != len("flag_")+24 {
		t.Errorf("expected 24 hex chars after prefix, got %q", id)
	}
}

func TestHex_Length(t *testing.T) {
	if got := Hex(8); len(got) != 16 {
		t.Errorf("Hex(8) returned %d chars, want 16", len(got))
	}
}
