package presence

import "testing"

func TestTracker(t *testing.T) {
	tr := NewTracker()

	if tr.IsViewing("alice", "bob") {
		t.Error("expected no viewing state initially")
	}

	tr.SetViewing("alice", "bob")
	if !tr.IsViewing("alice", "bob") {
		t.Error("expected alice to be viewing bob")
	}
	if tr.IsViewing("alice", "carol") {
		t.Error("viewing bob should not count as viewing carol")
	}
	if tr.IsViewing("bob", "alice") {
		t.Error("viewing is not symmetric")
	}

	// Switching screens replaces the previous entry.
	tr.SetViewing("alice", "carol")
	if tr.IsViewing("alice", "bob") {
		t.Error("expected previous viewing state to be replaced")
	}

	tr.ClearViewing("alice")
	if tr.IsViewing("alice", "carol") {
		t.Error("expected viewing state cleared on exit")
	}
}
