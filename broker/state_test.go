package broker

import (
	"strings"
	"testing"
)

func TestGenerateState(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		s, err := GenerateState()
		if err != nil {
			t.Fatalf("GenerateState error: %v", err)
		}
		if len(s) < 32 {
			t.Fatalf("state too short: %d chars", len(s))
		}
		for _, c := range s {
			if !strings.ContainsRune(stateAlphabet, c) {
				t.Fatalf("state contains non-alphanumeric character %q", c)
			}
		}
		if seen[s] {
			t.Fatalf("duplicate state generated: %s", s)
		}
		seen[s] = true
	}
}

func TestWrapSplitState(t *testing.T) {
	state := "abcDEF123abcDEF123abcDEF123abcDE"

	t.Run("no metadata", func(t *testing.T) {
		wrapped := WrapState(state, RedirectMeta{})
		if wrapped != state {
			t.Errorf("empty metadata should leave state bare, got %q", wrapped)
		}
		got, meta := SplitState(wrapped)
		if got != state || meta.RedirectTo != "" {
			t.Errorf("SplitState(%q) = %q, %+v", wrapped, got, meta)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		wrapped := WrapState(state, RedirectMeta{RedirectTo: "/settings"})
		if wrapped == state {
			t.Fatal("expected wrapped state to carry metadata")
		}
		got, meta := SplitState(wrapped)
		if got != state {
			t.Errorf("expected state %q, got %q", state, got)
		}
		if meta.RedirectTo != "/settings" {
			t.Errorf("expected redirectTo /settings, got %q", meta.RedirectTo)
		}
	})

	t.Run("malformed metadata ignored", func(t *testing.T) {
		got, meta := SplitState("%%%not-base64%%%::" + state)
		if got != state {
			t.Errorf("expected state %q, got %q", state, got)
		}
		if meta.RedirectTo != "" {
			t.Errorf("expected empty metadata, got %+v", meta)
		}
	})
}
