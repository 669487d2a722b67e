package domain

import (
	"fmt"
	"time"
)

// NodeStatus is the liveness state of a worker node.
type NodeStatus string

const (
	NodeActive   NodeStatus = "active"
	NodeInactive NodeStatus = "inactive"
)

const (
	DefaultNodeHost          = "localhost"
	DefaultNodeBasePort      = 50050
	DefaultMaxConcurrentJobs = 5
	DefaultNodeWeight        = 1
)

// Node is a worker tracked through heartbeats. Nodes are never deleted.
type Node struct {
	ID                int64      `json:"node_id"`
	Name              string     `json:"node_name"`
	IPAddress         string     `json:"ip_address"`
	Port              int        `json:"port"`
	Status            NodeStatus `json:"status"`
	CPUCores          *int       `json:"cpu_cores,omitempty"`
	RAMGB             *float64   `json:"ram_gb,omitempty"`
	CurrentLoad       int        `json:"current_load"`
	MaxConcurrentJobs int        `json:"max_concurrent_jobs"`
	Weight            int        `json:"weight"`
	LastHeartbeat     *time.Time `json:"last_heartbeat,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Address returns host:port for dispatch.
func (n Node) Address() string {
	return fmt.Sprintf("%s:%d", n.IPAddress, n.Port)
}

// AliveAt reports whether the node is active and was seen within window of now.
func (n Node) AliveAt(now time.Time, window time.Duration) bool {
	if n.Status != NodeActive || n.LastHeartbeat == nil {
		return false
	}
	return now.Sub(*n.LastHeartbeat) <= window
}

// LoadRatio is current load over capacity, 1 when capacity is unknown.
func (n Node) LoadRatio() float64 {
	if n.MaxConcurrentJobs <= 0 {
		return 1
	}
	return float64(n.CurrentLoad) / float64(n.MaxConcurrentJobs)
}

// Heartbeat is a liveness report; nil attributes are left unchanged.
type Heartbeat struct {
	NodeID      int64     `json:"node_id"`
	IPAddress   *string   `json:"ip_address,omitempty"`
	Port        *int      `json:"port,omitempty"`
	CPUCores    *int      `json:"cpu_cores,omitempty"`
	RAMGB       *float64  `json:"ram_gb,omitempty"`
	CurrentLoad *int      `json:"current_load,omitempty"`
	At          time.Time `json:"-"`
}

// DefaultNodeName is the name given to nodes registered by heartbeat.
func DefaultNodeName(id int64) string {
	return fmt.Sprintf("Node-%d", id)
}

// DefaultNodePort is the port assumed for auto-registered nodes.
func DefaultNodePort(id int64) int {
	return DefaultNodeBasePort + int(id)
}

// NewNode holds the fields accepted for explicit registration. A zero ID lets
// the store assign one.
type NewNode struct {
	ID                int64    `json:"node_id,omitempty"`
	Name              string   `json:"node_name"`
	IPAddress         string   `json:"ip_address"`
	Port              int      `json:"port"`
	CPUCores          *int     `json:"cpu_cores,omitempty"`
	RAMGB             *float64 `json:"ram_gb,omitempty"`
	MaxConcurrentJobs int      `json:"max_concurrent_jobs,omitempty"`
	Weight            int      `json:"weight,omitempty"`
}

// NodeMetric is a node annotated with derived liveness data.
type NodeMetric struct {
	Node
	Alive         bool    `json:"alive"`
	LoadRatio     float64 `json:"load_ratio"`
	SecondsSince  *int64  `json:"seconds_since_heartbeat,omitempty"`
	Country       string  `json:"country,omitempty"`
	ResultsTotal  int     `json:"results_total"`
	ResultsFailed int     `json:"results_failed"`
}
