// Package registry tracks worker nodes through their heartbeats.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"imagebatch/internal/domain"
	"imagebatch/internal/infra/geoip"
)

// DefaultLivenessWindow is how long a node stays alive without a heartbeat.
const DefaultLivenessWindow = 90 * time.Second

// Options configures a Service.
type Options struct {
	LivenessWindow time.Duration
	// Geo annotates node metrics with a country code. Optional.
	Geo    geoip.CountryResolver
	Logger zerolog.Logger
	Now    func() time.Time
}

// Service is the node registry.
type Service struct {
	nodes  domain.NodeRepository
	geo    geoip.CountryResolver
	window time.Duration
	logger zerolog.Logger
	now    func() time.Time

	mu       sync.Mutex
	lastSeen map[int64]time.Time
}

// New builds a registry over the node repository.
func New(nodes domain.NodeRepository, opts Options) *Service {
	if opts.LivenessWindow <= 0 {
		opts.LivenessWindow = DefaultLivenessWindow
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		nodes:    nodes,
		geo:      opts.Geo,
		window:   opts.LivenessWindow,
		logger:   opts.Logger,
		now:      opts.Now,
		lastSeen: map[int64]time.Time{},
	}
}

// LivenessWindow returns the configured window.
func (s *Service) LivenessWindow() time.Duration { return s.window }

// ReceiveHeartbeat records a liveness report, creating the node on first
// contact. It reports whether the node was created.
func (s *Service) ReceiveHeartbeat(ctx context.Context, hb domain.Heartbeat) (bool, error) {
	if hb.NodeID <= 0 {
		return false, fmt.Errorf("node_id must be positive: %w", domain.ErrInvalidField)
	}
	if hb.Port != nil && (*hb.Port <= 0 || *hb.Port > 65535) {
		return false, fmt.Errorf("port out of range: %w", domain.ErrInvalidField)
	}
	if hb.CurrentLoad != nil && *hb.CurrentLoad < 0 {
		return false, fmt.Errorf("current_load must not be negative: %w", domain.ErrInvalidField)
	}
	if hb.At.IsZero() {
		hb.At = s.now()
	}
	created, err := s.nodes.Heartbeat(ctx, hb)
	if err != nil {
		return false, err
	}
	s.touch(hb.NodeID, hb.At)
	if created {
		s.logger.Info().Int64("node_id", hb.NodeID).Msg("registry: node auto-registered from heartbeat")
	}
	return created, nil
}

// RegisterNode registers a node explicitly.
func (s *Service) RegisterNode(ctx context.Context, n domain.NewNode) (*domain.Node, error) {
	if n.ID < 0 {
		return nil, fmt.Errorf("node_id must not be negative: %w", domain.ErrInvalidField)
	}
	if n.Port < 0 || n.Port > 65535 {
		return nil, fmt.Errorf("port out of range: %w", domain.ErrInvalidField)
	}
	node, err := s.nodes.Register(ctx, n)
	if err != nil {
		return nil, err
	}
	s.touch(node.ID, s.now())
	s.logger.Info().Int64("node_id", node.ID).Str("address", node.Address()).Msg("registry: node registered")
	return node, nil
}

// ListActiveNodes returns nodes marked active whose last heartbeat falls in
// the liveness window.
func (s *Service) ListActiveNodes(ctx context.Context) ([]domain.Node, error) {
	now := s.now()
	nodes, err := s.nodes.ListActive(ctx, now.Add(-s.window))
	if err != nil {
		return nil, err
	}
	out := nodes[:0]
	for _, n := range nodes {
		if n.AliveAt(now, s.window) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *Service) ListNodes(ctx context.Context) ([]domain.Node, error) {
	return s.nodes.List(ctx)
}

func (s *Service) GetNode(ctx context.Context, id int64) (*domain.Node, error) {
	return s.nodes.GetByID(ctx, id)
}

// NodeMetrics returns every node with derived liveness and result counts.
func (s *Service) NodeMetrics(ctx context.Context) ([]domain.NodeMetric, error) {
	nodes, err := s.nodes.List(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.nodes.ResultCounts(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]domain.NodeMetric, 0, len(nodes))
	for _, n := range nodes {
		m := domain.NodeMetric{
			Node:      n,
			Alive:     n.AliveAt(now, s.window),
			LoadRatio: n.LoadRatio(),
		}
		if n.LastHeartbeat != nil {
			secs := int64(now.Sub(*n.LastHeartbeat) / time.Second)
			m.SecondsSince = &secs
		}
		if c, ok := counts[n.ID]; ok {
			m.ResultsTotal, m.ResultsFailed = c[0], c[1]
		}
		if s.geo != nil {
			cc, err := s.geo.CountryCode(n.IPAddress)
			if err != nil {
				s.logger.Debug().Err(err).Int64("node_id", n.ID).Msg("registry: geoip lookup failed")
			}
			m.Country = cc
		}
		out = append(out, m)
	}
	return out, nil
}

// LastSeen returns the last heartbeat this process observed for a node.
func (s *Service) LastSeen(id int64) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastSeen[id]
	return t, ok
}

func (s *Service) touch(id int64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.lastSeen[id]; ok && prev.After(at) {
		return
	}
	s.lastSeen[id] = at
}
