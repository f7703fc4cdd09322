package membership

import "testing"

func TestStaticEmitsAddForEveryEndpoint(t *testing.T) {
	s := NewStatic("a", "b", "c")
	defer s.Close()

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		ev := <-s.Events()
		if ev.Type != ADD {
			t.Fatalf("expect ADD, got %v", ev.Type)
		}
		seen[ev.Endpoint] = true
	}
	if len(seen) != 3 || !seen["a"] || !seen["b"] || !seen["c"] {
		t.Fatalf("expect all three endpoints seen, got %v", seen)
	}
}

func TestManualAddRemove(t *testing.T) {
	m := NewManual[string]()
	defer m.Close()

	m.Add("x")
	ev := <-m.Events()
	if ev.Type != ADD || ev.Endpoint != "x" {
		t.Fatalf("expect ADD x, got %+v", ev)
	}

	m.Remove("x")
	ev = <-m.Events()
	if ev.Type != REMOVE || ev.Endpoint != "x" {
		t.Fatalf("expect REMOVE x, got %+v", ev)
	}
}

func TestManualCloseIsIdempotent(t *testing.T) {
	m := NewManual[string]()
	if err := m.Close(); err != nil {
		t.Fatalf("unexpected error on first close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("unexpected error on second close: %v", err)
	}
}

func TestEventTypeString(t *testing.T) {
	if ADD.String() != "ADD" {
		t.Fatalf("expect ADD, got %s", ADD.String())
	}
	if REMOVE.String() != "REMOVE" {
		t.Fatalf("expect REMOVE, got %s", REMOVE.String())
	}
}
