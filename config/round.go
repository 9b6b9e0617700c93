// Package config loads the launcher-level round configuration bulknode
// needs before it can construct an internal/bulk.NodeConfig: the fixed
// membership list and per-node addressing that, in this demo, is laid out
// once in a YAML file shared by every participant rather than discovered
// at runtime (spec.md §1 excludes peer discovery as a non-goal).
package config

import (
	"fmt"
	"os"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// NodeSpec is one entry in a RoundFile's member list.
type NodeSpec struct {
	ID   int    `yaml:"id"`
	Addr string `yaml:"addr"`
}

// RoundFile is the on-disk shape of a round's static configuration: the
// round id, the full membership in id order, and the key length every
// node should use.
type RoundFile struct {
	RoundID string     `yaml:"round_id"`
	KeyLen  int        `yaml:"key_len"`
	Nodes   []NodeSpec `yaml:"nodes"`
}

// Load reads and parses a round file from path.
func Load(path string) (RoundFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RoundFile{}, fmt.Errorf("config: read round file %q: %w", path, err)
	}
	var rf RoundFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return RoundFile{}, fmt.Errorf("config: parse round file %q: %w", path, err)
	}
	if err := rf.Validate(); err != nil {
		return RoundFile{}, err
	}
	return rf, nil
}

// Validate checks that the membership list is well formed: ids form a
// dense 0..N-1 range with no gaps or duplicates, and every node has an
// address.
func (rf RoundFile) Validate() error {
	if rf.RoundID == "" {
		return fmt.Errorf("config: round file missing round_id")
	}
	n := len(rf.Nodes)
	if n < 2 {
		return fmt.Errorf("config: round file has %d nodes, want at least 2", n)
	}
	seen := make(map[int]bool, n)
	for _, ns := range rf.Nodes {
		if ns.ID < 0 || ns.ID >= n {
			return fmt.Errorf("config: node id %d out of range [0,%d)", ns.ID, n)
		}
		if seen[ns.ID] {
			return fmt.Errorf("config: duplicate node id %d", ns.ID)
		}
		seen[ns.ID] = true
		if ns.Addr == "" {
			return fmt.Errorf("config: node %d has empty address", ns.ID)
		}
	}
	return nil
}

// AddrOf returns id's configured address, the ring predecessor's, and the
// ring successor's (wrapping around), the three addresses bulknode needs
// beyond id 0's leader address.
func (rf RoundFile) AddrOf(id int) (self, prev, next string) {
	n := len(rf.Nodes)
	byID := make(map[int]string, n)
	for _, ns := range rf.Nodes {
		byID[ns.ID] = ns.Addr
	}
	self = byID[id]
	prev = byID[(id-1+n)%n]
	next = byID[(id+1)%n]
	return self, prev, next
}

// LeaderAddr returns node 0's address.
func (rf RoundFile) LeaderAddr() string {
	idx := slices.IndexFunc(rf.Nodes, func(ns NodeSpec) bool { return ns.ID == 0 })
	if idx < 0 {
		return ""
	}
	return rf.Nodes[idx].Addr
}
