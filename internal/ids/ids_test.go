package ids

import (
	"testing"
	"time"
)

func TestGeneratorMonotonic(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	g := NewGenerator(func() time.Time { return fixed })

	prev := g.New()
	for i := 0; i < 100; i++ {
		next := g.New()
		if next <= prev {
			t.Fatalf("ids not monotonic: %s <= %s", next, prev)
		}
		prev = next
	}
	if !Valid(prev) {
		t.Fatalf("generated id %q is not a valid ULID", prev)
	}
}

func TestValidRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "42", "not-a-ulid"} {
		if Valid(s) {
			t.Fatalf("Valid(%q) = true", s)
		}
	}
}
