// Package config defines the tunable parameters of a cluster node and
// loads them from YAML. Grounded on the teacher's config.Parameters
// pattern (a flat struct of tunables, a set of named presets, and a
// Valid method), adapted to this module's Raft/DAG/wire domain and
// extended with YAML loading via gopkg.in/yaml.v3.
package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Errors returned by Valid.
var (
	ErrInvalidNodeID         = errors.New("config: node id must be nonzero")
	ErrInvalidElectionWindow = errors.New("config: election timeout window must be positive and ordered")
	ErrInvalidHeartbeat      = errors.New("config: heartbeat interval must be positive")
	ErrInvalidMajority       = errors.New("config: majority threshold unreachable with configured peer count")
)

// Peer describes one other node in the cluster.
type Peer struct {
	NodeID  uint32 `yaml:"node_id"`
	Address string `yaml:"address"`
}

// Parameters is the full set of tunables a node is constructed with.
type Parameters struct {
	NodeID uint32 `yaml:"node_id"`
	Peers  []Peer `yaml:"peers"`

	ElectionTimeoutMin time.Duration `yaml:"election_timeout_min"`
	ElectionTimeoutMax time.Duration `yaml:"election_timeout_max"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`

	ConflictIndexSize int `yaml:"conflict_index_size"`
	MaxDAGNodes       int `yaml:"max_dag_nodes"`
	MaxParents        int `yaml:"max_parents"`
	MaxChildren        int `yaml:"max_children"`
	NeighborThinningThreshold int `yaml:"neighbor_thinning_threshold"`
	NeighborThinningKeep      int `yaml:"neighbor_thinning_keep"`

	WireMaxPayloadSize int `yaml:"wire_max_payload_size"`

	LogLevel string `yaml:"log_level"`

	WALPath string `yaml:"wal_path"`
}

// DefaultParams mirrors the constants original_source hardcodes:
// election timeout in [150,300]ms, 50ms heartbeat, 1024-bucket conflict
// index, parents<=16, children<=32, neighbor thinning above 100 nodes
// keeping the most recent 20, and a 4096-byte wire payload cap.
func DefaultParams() Parameters {
	return Parameters{
		ElectionTimeoutMin:        150 * time.Millisecond,
		ElectionTimeoutMax:        300 * time.Millisecond,
		HeartbeatInterval:         50 * time.Millisecond,
		ConflictIndexSize:         1024,
		MaxDAGNodes:               100000,
		MaxParents:                16,
		MaxChildren:               32,
		NeighborThinningThreshold: 100,
		NeighborThinningKeep:      20,
		WireMaxPayloadSize:        4096,
		LogLevel:                  "info",
	}
}

// Load reads YAML from path and overlays it onto DefaultParams.
func Load(path string) (Parameters, error) {
	p := DefaultParams()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, err
	}
	return p, p.Valid()
}

// Valid checks structural invariants of the parameter set.
func (p Parameters) Valid() error {
	if p.NodeID == 0 {
		return ErrInvalidNodeID
	}
	if p.ElectionTimeoutMin <= 0 || p.ElectionTimeoutMax <= 0 || p.ElectionTimeoutMin > p.ElectionTimeoutMax {
		return ErrInvalidElectionWindow
	}
	if p.HeartbeatInterval <= 0 {
		return ErrInvalidHeartbeat
	}
	if p.Majority() < 1 {
		return ErrInvalidMajority
	}
	return nil
}

// Majority returns floor(n/2)+1 over the full cluster size (self plus
// peers), the threshold generate_epoch_output ratification requires.
func (p Parameters) Majority() int {
	n := len(p.Peers) + 1
	return n/2 + 1
}
