package xid

import (
	"strings"
	"testing"
)

func TestNewIsPrefixedAndUnique(t *testing.T) {
	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		id := New("tx")
		if !strings.HasPrefix(id, "tx-") {
			t.Fatalf("expected tx- prefix, got %s", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestNewWithoutPrefix(t *testing.T) {
	id := New("")
	if len(id) != 32 || strings.Contains(id, "-") {
		t.Fatalf("expected bare 32 char id, got %q", id)
	}
}
