package id

import (
	"testing"
	"time"
)

func TestNewMatchesShape(t *testing.T) {
	got := New()
	if !Valid(got) {
		t.Fatalf("New() = %q, does not match ULID shape", got)
	}
	if len(got) != 26 {
		t.Fatalf("len(New()) = %d, want 26", len(got))
	}
}

func TestNewIsSortableWithinSameMillisecond(t *testing.T) {
	ids := make([]string, 100)
	for i := range ids {
		ids[i] = New()
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] < ids[i-1] {
			t.Fatalf("ids[%d]=%q < ids[%d]=%q, expected non-decreasing order", i, ids[i], i-1, ids[i-1])
		}
	}
}

func TestValidRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "not-a-ulid", "01ARZ3NDEKTSV4RRFFQ69G5FA", "01ARZ3NDEKTSV4RRFFQ69G5FAVX"} {
		if Valid(s) {
			t.Errorf("Valid(%q) = true, want false", s)
		}
	}
}

func TestTimeRoundTrips(t *testing.T) {
	before := time.Now().Truncate(time.Millisecond)
	generated := New()
	parsed, err := Time(generated)
	if err != nil {
		t.Fatalf("Time(%q) error: %v", generated, err)
	}
	if parsed.Before(before.Add(-time.Second)) || parsed.After(before.Add(time.Second)) {
		t.Errorf("Time(%q) = %v, want close to %v", generated, parsed, before)
	}
}
