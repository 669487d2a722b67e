package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"imagebatch/internal/adapter/memrepo"
	"imagebatch/internal/domain"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestRegistry() (*Service, *memrepo.Store, *clock) {
	clk := &clock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := memrepo.New()
	store.SetClock(clk.now)
	svc := New(store.Nodes(), Options{LivenessWindow: 90 * time.Second, Logger: zerolog.Nop(), Now: clk.now})
	return svc, store, clk
}

func TestHeartbeatAutoRegistersUnknownNode(t *testing.T) {
	svc, _, clk := newTestRegistry()
	ctx := context.Background()

	created, err := svc.ReceiveHeartbeat(ctx, domain.Heartbeat{NodeID: 7})
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if !created {
		t.Fatalf("expected first heartbeat to create the node")
	}
	n, err := svc.GetNode(ctx, 7)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if n.Name != "Node-7" || n.IPAddress != "localhost" || n.Port != 50057 || n.Status != domain.NodeActive {
		t.Fatalf("unexpected defaults %+v", n)
	}

	clk.advance(10 * time.Second)
	load := 3
	created, err = svc.ReceiveHeartbeat(ctx, domain.Heartbeat{NodeID: 7, CurrentLoad: &load})
	if err != nil || created {
		t.Fatalf("second heartbeat: created=%v err=%v", created, err)
	}
	nodes, _ := svc.ListNodes(ctx)
	if len(nodes) != 1 {
		t.Fatalf("expected one node, got %d", len(nodes))
	}
	if !nodes[0].LastHeartbeat.Equal(clk.t) || nodes[0].CurrentLoad != 3 || nodes[0].Port != 50057 {
		t.Fatalf("unexpected merged node %+v", nodes[0])
	}
}

func TestStaleHeartbeatNeverMovesBackwards(t *testing.T) {
	svc, _, clk := newTestRegistry()
	ctx := context.Background()

	if _, err := svc.ReceiveHeartbeat(ctx, domain.Heartbeat{NodeID: 1}); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	latest := clk.t
	if _, err := svc.ReceiveHeartbeat(ctx, domain.Heartbeat{NodeID: 1, At: latest.Add(-time.Minute)}); err != nil {
		t.Fatalf("late heartbeat: %v", err)
	}
	n, _ := svc.GetNode(ctx, 1)
	if !n.LastHeartbeat.Equal(latest) {
		t.Fatalf("last heartbeat moved back to %v", n.LastHeartbeat)
	}
	if seen, _ := svc.LastSeen(1); !seen.Equal(latest) {
		t.Fatalf("in-process last seen moved back to %v", seen)
	}
}

func TestHeartbeatValidation(t *testing.T) {
	svc, _, _ := newTestRegistry()
	port := 70000
	for _, hb := range []domain.Heartbeat{{NodeID: 0}, {NodeID: 1, Port: &port}} {
		if _, err := svc.ReceiveHeartbeat(context.Background(), hb); !errors.Is(err, domain.ErrInvalidField) {
			t.Fatalf("expected ErrInvalidField for %+v, got %v", hb, err)
		}
	}
}

func TestActiveNodesRespectLivenessWindow(t *testing.T) {
	svc, _, clk := newTestRegistry()
	ctx := context.Background()

	_, _ = svc.ReceiveHeartbeat(ctx, domain.Heartbeat{NodeID: 1})
	clk.advance(60 * time.Second)
	_, _ = svc.ReceiveHeartbeat(ctx, domain.Heartbeat{NodeID: 2})
	clk.advance(45 * time.Second)

	active, err := svc.ListActiveNodes(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].ID != 2 {
		t.Fatalf("expected only node 2 alive, got %+v", active)
	}
}

func TestReapDemotesStaleNodes(t *testing.T) {
	svc, _, clk := newTestRegistry()
	ctx := context.Background()

	_, _ = svc.ReceiveHeartbeat(ctx, domain.Heartbeat{NodeID: 1})
	_, _ = svc.ReceiveHeartbeat(ctx, domain.Heartbeat{NodeID: 2})
	clk.advance(2 * time.Minute)
	_, _ = svc.ReceiveHeartbeat(ctx, domain.Heartbeat{NodeID: 2})

	ids, err := svc.Reap(ctx)
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("expected node 1 demoted, got %v", ids)
	}
	n, _ := svc.GetNode(ctx, 1)
	if n.Status != domain.NodeInactive {
		t.Fatalf("expected inactive, got %s", n.Status)
	}
	if _, ok := svc.LastSeen(1); ok {
		t.Fatalf("demoted node should leave the in-process table")
	}

	if _, err := svc.ReceiveHeartbeat(ctx, domain.Heartbeat{NodeID: 1}); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	n, _ = svc.GetNode(ctx, 1)
	if n.Status != domain.NodeActive {
		t.Fatalf("heartbeat should revive node, got %s", n.Status)
	}
}

func TestRunReaperStopsOnCancel(t *testing.T) {
	svc, _, _ := newTestRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.RunReaper(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("reaper did not stop")
	}
}

type staticGeo map[string]string

func (g staticGeo) CountryCode(host string) (string, error) { return g[host], nil }

func TestNodeMetricsAnnotatesNodes(t *testing.T) {
	clk := &clock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := memrepo.New()
	store.SetClock(clk.now)
	svc := New(store.Nodes(), Options{Geo: staticGeo{"81.2.69.142": "GB"}, Logger: zerolog.Nop(), Now: clk.now})
	ctx := context.Background()

	ip := "81.2.69.142"
	load := 2
	_, _ = svc.ReceiveHeartbeat(ctx, domain.Heartbeat{NodeID: 1, IPAddress: &ip, CurrentLoad: &load})
	clk.advance(30 * time.Second)

	metrics, err := svc.NodeMetrics(ctx)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	m := metrics[0]
	if !m.Alive || m.Country != "GB" || m.LoadRatio != 0.4 {
		t.Fatalf("unexpected metric %+v", m)
	}
	if m.SecondsSince == nil || *m.SecondsSince != 30 {
		t.Fatalf("unexpected seconds since heartbeat %v", m.SecondsSince)
	}
}
