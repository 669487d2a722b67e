// Package dispatch chooses worker nodes and carries jobs to them.
package dispatch

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"imagebatch/internal/domain"
)

// Selector picks the node an image is sent to. Release is called once the
// job handed out by Pick has finished, successfully or not.
type Selector interface {
	Pick(nodes []domain.Node) (domain.Node, error)
	Release(nodeID int64)
}

// NewSelector returns the selector registered under name.
func NewSelector(name string) (Selector, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "round_robin", "roundrobin":
		return &RoundRobin{}, nil
	case "least_loaded", "leastloaded":
		return NewLeastLoaded(), nil
	default:
		return nil, fmt.Errorf("unknown node selector %q", name)
	}
}

// RoundRobin cycles through the nodes ordered by id.
type RoundRobin struct {
	next atomic.Uint64
}

func (r *RoundRobin) Pick(nodes []domain.Node) (domain.Node, error) {
	if len(nodes) == 0 {
		return domain.Node{}, domain.ErrNoActiveNodes
	}
	ordered := byID(nodes)
	i := r.next.Add(1) - 1
	return ordered[i%uint64(len(ordered))], nil
}

func (r *RoundRobin) Release(int64) {}

// LeastLoaded filters out nodes with no free slot and scores the rest by
// free capacity times weight. Jobs it handed out count against a node until
// released, so a burst of picks spreads across the pool.
type LeastLoaded struct {
	mu       sync.Mutex
	inflight map[int64]int
}

func NewLeastLoaded() *LeastLoaded {
	return &LeastLoaded{inflight: map[int64]int{}}
}

func (l *LeastLoaded) Pick(nodes []domain.Node) (domain.Node, error) {
	if len(nodes) == 0 {
		return domain.Node{}, domain.ErrNoActiveNodes
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	candidates := l.filter(nodes)
	if len(candidates) == 0 {
		// Every node is saturated; fall back to the least saturated one.
		candidates = byID(nodes)
	}
	best := candidates[0]
	bestScore := l.score(best)
	for _, n := range candidates[1:] {
		if s := l.score(n); s > bestScore {
			best, bestScore = n, s
		}
	}
	l.inflight[best.ID]++
	return best, nil
}

func (l *LeastLoaded) Release(nodeID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inflight[nodeID] > 1 {
		l.inflight[nodeID]--
		return
	}
	delete(l.inflight, nodeID)
}

func (l *LeastLoaded) filter(nodes []domain.Node) []domain.Node {
	out := make([]domain.Node, 0, len(nodes))
	for _, n := range byID(nodes) {
		if n.Status != domain.NodeActive {
			continue
		}
		if l.load(n) >= capacity(n) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func (l *LeastLoaded) load(n domain.Node) int {
	return n.CurrentLoad + l.inflight[n.ID]
}

func (l *LeastLoaded) score(n domain.Node) float64 {
	weight := n.Weight
	if weight <= 0 {
		weight = domain.DefaultNodeWeight
	}
	free := float64(capacity(n)-l.load(n)) / float64(capacity(n))
	return free * float64(weight)
}

func capacity(n domain.Node) int {
	if n.MaxConcurrentJobs <= 0 {
		return domain.DefaultMaxConcurrentJobs
	}
	return n.MaxConcurrentJobs
}

func byID(nodes []domain.Node) []domain.Node {
	out := append([]domain.Node(nil), nodes...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
