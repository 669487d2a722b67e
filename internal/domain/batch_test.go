package domain

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to BatchStatus
		want     bool
	}{
		{BatchPending, BatchProcessing, true},
		{BatchProcessing, BatchCompleted, true},
		{BatchProcessing, BatchFailed, true},
		{BatchPending, BatchFailed, true},
		{BatchPending, BatchCompleted, false},
		{BatchCompleted, BatchProcessing, false},
		{BatchFailed, BatchCompleted, false},
		{BatchCompleted, BatchPending, false},
		{BatchProcessing, BatchProcessing, true},
		{BatchCompleted, BatchCompleted, true},
		{BatchStatus("archived"), BatchStatus("archived"), false},
	}
	for _, tc := range tests {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestAllowedFromIncludesTarget(t *testing.T) {
	got := AllowedFrom(BatchCompleted)
	if len(got) != 2 || got[0] != "completed" || got[1] != "processing" {
		t.Fatalf("AllowedFrom(completed) = %v", got)
	}
	if got := AllowedFrom(BatchPending); len(got) != 1 || got[0] != "pending" {
		t.Fatalf("AllowedFrom(pending) = %v", got)
	}
}

func TestStatusUpdateIsEmpty(t *testing.T) {
	if !(StatusUpdate{}).IsEmpty() {
		t.Fatal("zero update should be empty")
	}
	if StatusTo(BatchProcessing).IsEmpty() {
		t.Fatal("status update should not be empty")
	}
}
