package dispatch

import (
	"errors"
	"testing"

	"imagebatch/internal/domain"
)

func node(id int64, load, max, weight int) domain.Node {
	return domain.Node{ID: id, Status: domain.NodeActive, CurrentLoad: load, MaxConcurrentJobs: max, Weight: weight}
}

func TestRoundRobinCyclesInIDOrder(t *testing.T) {
	rr := &RoundRobin{}
	nodes := []domain.Node{node(3, 0, 5, 1), node(1, 0, 5, 1), node(2, 0, 5, 1)}

	var got []int64
	for i := 0; i < 4; i++ {
		n, err := rr.Pick(nodes)
		if err != nil {
			t.Fatalf("pick: %v", err)
		}
		got = append(got, n.ID)
	}
	want := []int64{1, 2, 3, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order %v, want %v", got, want)
		}
	}
}

func TestSelectorsRejectEmptyPool(t *testing.T) {
	for _, s := range []Selector{&RoundRobin{}, NewLeastLoaded()} {
		if _, err := s.Pick(nil); !errors.Is(err, domain.ErrNoActiveNodes) {
			t.Fatalf("%T: expected ErrNoActiveNodes, got %v", s, err)
		}
	}
}

func TestLeastLoadedPrefersFreeCapacity(t *testing.T) {
	ll := NewLeastLoaded()
	nodes := []domain.Node{node(1, 4, 5, 1), node(2, 1, 5, 1)}

	n, err := ll.Pick(nodes)
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	if n.ID != 2 {
		t.Fatalf("expected node 2, got %d", n.ID)
	}
}

func TestLeastLoadedCountsInflightUntilReleased(t *testing.T) {
	ll := NewLeastLoaded()
	nodes := []domain.Node{node(1, 0, 2, 1), node(2, 0, 2, 1)}

	seen := map[int64]int{}
	for i := 0; i < 4; i++ {
		n, _ := ll.Pick(nodes)
		seen[n.ID]++
	}
	if seen[1] != 2 || seen[2] != 2 {
		t.Fatalf("expected picks spread evenly, got %v", seen)
	}
	ll.Release(2)
	n, _ := ll.Pick(nodes)
	if n.ID != 2 {
		t.Fatalf("expected released node to be picked, got %d", n.ID)
	}
}

func TestLeastLoadedHonoursWeight(t *testing.T) {
	ll := NewLeastLoaded()
	nodes := []domain.Node{node(1, 0, 4, 1), node(2, 0, 4, 3)}
	n, _ := ll.Pick(nodes)
	if n.ID != 2 {
		t.Fatalf("expected heavier node, got %d", n.ID)
	}
}

func TestNewSelector(t *testing.T) {
	if _, err := NewSelector("least_loaded"); err != nil {
		t.Fatalf("least_loaded: %v", err)
	}
	if _, err := NewSelector(""); err != nil {
		t.Fatalf("default: %v", err)
	}
	if _, err := NewSelector("random"); err == nil {
		t.Fatalf("expected unknown selector error")
	}
}
