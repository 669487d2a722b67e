package nodeagent

import (
	"context"
	"errors"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"imagebatch/internal/bridge"
	"imagebatch/internal/domain"
)

// HeartbeatSender delivers a heartbeat to the orchestrator.
type HeartbeatSender interface {
	SendHeartbeat(ctx context.Context, hb domain.Heartbeat) (*bridge.Result, error)
}

// Heartbeater reports this node's liveness and load on a fixed interval.
type Heartbeater struct {
	sender   HeartbeatSender
	nodeID   int64
	ip       string
	port     int
	interval time.Duration
	load     atomic.Int64
	logger   zerolog.Logger
}

func NewHeartbeater(sender HeartbeatSender, nodeID int64, ip string, port int, interval time.Duration, logger zerolog.Logger) *Heartbeater {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Heartbeater{
		sender:   sender,
		nodeID:   nodeID,
		ip:       ip,
		port:     port,
		interval: interval,
		logger:   logger,
	}
}

// Acquire and Release track jobs in flight; the count is reported as current_load.
func (h *Heartbeater) Acquire() { h.load.Add(1) }
func (h *Heartbeater) Release() { h.load.Add(-1) }

func (h *Heartbeater) Load() int { return int(h.load.Load()) }

// Run sends one heartbeat immediately and then one per interval until ctx ends.
func (h *Heartbeater) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()
	for {
		if err := h.Send(ctx); err != nil && ctx.Err() == nil {
			h.logger.Warn().Err(err).Int64("node_id", h.nodeID).Msg("nodeagent: heartbeat failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Send delivers a single heartbeat.
func (h *Heartbeater) Send(ctx context.Context) error {
	hb := h.snapshot()
	res, err := h.sender.SendHeartbeat(ctx, hb)
	if err != nil {
		return err
	}
	if !res.Success {
		return errors.New(res.Message)
	}
	h.logger.Debug().Int64("node_id", h.nodeID).Int("load", *hb.CurrentLoad).Msg("nodeagent: heartbeat sent")
	return nil
}

func (h *Heartbeater) snapshot() domain.Heartbeat {
	ip, port, load := h.ip, h.port, h.Load()
	cores := runtime.NumCPU()
	hb := domain.Heartbeat{
		NodeID:      h.nodeID,
		IPAddress:   &ip,
		Port:        &port,
		CPUCores:    &cores,
		CurrentLoad: &load,
	}
	if gb, ok := totalMemoryGB(); ok {
		hb.RAMGB = &gb
	}
	return hb
}

// totalMemoryGB reads MemTotal from /proc/meminfo, rounded to one decimal.
func totalMemoryGB() (float64, bool) {
	b, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0, false
	}
	for _, line := range strings.Split(string(b), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != "MemTotal:" {
			continue
		}
		kb, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || kb <= 0 {
			return 0, false
		}
		return math.Round(kb/(1024*1024)*10) / 10, true
	}
	return 0, false
}
