package domain

import (
	"testing"

	"pgregory.net/rapid"
)

func TestProperty_ManifestTotals(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 40).Draw(t, "rows")
		rows := make([]ResultRow, n)
		succeeded := map[int64]bool{}
		var wantTime int64
		for i := range rows {
			id := rapid.Int64Range(1, 8).Draw(t, "image")
			rows[i] = ResultRow{ImageID: id, Status: ResultFailure}
			if rapid.Bool().Draw(t, "success") {
				rows[i].Status = ResultSuccess
				succeeded[id] = true
			} else if !succeeded[id] {
				succeeded[id] = false
			}
			if rapid.Bool().Draw(t, "timed") {
				ms := rapid.Int64Range(0, 10_000).Draw(t, "ms")
				rows[i].ProcessingTimeMS = &ms
				wantTime += ms
			}
		}
		var wantOK, wantFail int
		for _, ok := range succeeded {
			if ok {
				wantOK++
			} else {
				wantFail++
			}
		}
		m := BuildManifest(3, rows)
		if m.TotalImages != len(succeeded) {
			t.Fatalf("total_images %d, want %d distinct", m.TotalImages, len(succeeded))
		}
		if m.Successful+m.Failed != m.TotalImages {
			t.Fatalf("outcomes %d+%d do not add up to %d images", m.Successful, m.Failed, m.TotalImages)
		}
		if m.Successful != wantOK || m.Failed != wantFail || m.TotalProcessingTimeMS != wantTime {
			t.Fatalf("unexpected manifest %+v", m)
		}
		if len(m.Images) != n {
			t.Fatalf("manifest dropped rows: %d of %d", len(m.Images), n)
		}
	})
}

// Accepted transitions never leave a terminal status and never move backwards.
func TestProperty_TransitionsAreMonotonic(t *testing.T) {
	statuses := []BatchStatus{BatchPending, BatchProcessing, BatchCompleted, BatchFailed}
	rank := map[BatchStatus]int{BatchPending: 0, BatchProcessing: 1, BatchCompleted: 2, BatchFailed: 2}
	rapid.Check(t, func(t *rapid.T) {
		from := rapid.SampledFrom(statuses).Draw(t, "from")
		to := rapid.SampledFrom(statuses).Draw(t, "to")
		if !CanTransition(from, to) {
			return
		}
		if from.Terminal() && from != to {
			t.Fatalf("%s is terminal but moved to %s", from, to)
		}
		if rank[to] < rank[from] {
			t.Fatalf("%s -> %s goes backwards", from, to)
		}
	})
}
