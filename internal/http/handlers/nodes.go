package handlers

import (
	"net/http"

	"imagebatch/internal/domain"
)

func (a *App) ListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := a.Registry.ListNodes(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.nodes(w, nodes)
}

func (a *App) ListActiveNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := a.Registry.ListActiveNodes(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.nodes(w, nodes)
}

func (a *App) GetNode(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "nodeID")
	if !ok {
		return
	}
	node, err := a.Registry.GetNode(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, node)
}

func (a *App) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var hb domain.Heartbeat
	if !a.decode(w, r, &hb) {
		return
	}
	created, err := a.Registry.ReceiveHeartbeat(r.Context(), hb)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	a.json(w, code, map[string]any{"node_id": hb.NodeID, "created": created})
}

func (a *App) RegisterNode(w http.ResponseWriter, r *http.Request) {
	var req domain.NewNode
	if !a.decode(w, r, &req) {
		return
	}
	node, err := a.Registry.RegisterNode(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, node)
}

func (a *App) NodeMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := a.Registry.NodeMetrics(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if metrics == nil {
		metrics = []domain.NodeMetric{}
	}
	a.json(w, http.StatusOK, map[string]any{"nodes": metrics})
}

func (a *App) nodes(w http.ResponseWriter, nodes []domain.Node) {
	if nodes == nil {
		nodes = []domain.Node{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": nodes})
}
