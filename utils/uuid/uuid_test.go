package uuid

import (
	"testing"
)

func TestUUIDUnique(t *testing.T) {
	u := NewUUID()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := u.ID()
		if seen[id] {
			t.Fatalf("duplicate ID: %s", id)
		}
		seen[id] = true
	}
}

func TestValid(t *testing.T) {
	for _, tc := range []struct {
		id   string
		want bool
	}{
		{NewUUID().ID(), true},
		{"53115671-3f45-49f5-b7cb-22ede8b8afdb", true},
		{"", false},
		{"../etc/passwd", false},
		{"not-a-uuid", false},
	} {
		if have := Valid(tc.id); have != tc.want {
			t.Errorf("Valid(%q): have: %v, want: %v", tc.id, have, tc.want)
		}
	}
}

func TestStaticIDs(t *testing.T) {
	u := NewStaticIDs("A", "B")
	for _, expected := range []string{"A", "B", "A", "B", "A"} {
		if have, want := u.ID(), expected; have != want {
			t.Errorf("unexpected ID: have: %v, want: %v", have, want)
		}
	}
}
