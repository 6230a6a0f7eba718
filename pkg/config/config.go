// Package config loads the node-level YAML configuration for an sps-node
// process: site and partition identity, replica addresses, durability mode,
// and the ambient bind addresses, following the same gopkg.in/yaml.v3
// unmarshal-a-struct approach the teacher's CLI uses for resource manifests
// (cmd/warren/apply.go).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk shape of an sps-node's configuration file.
type Config struct {
	// SiteID is this process's own site identifier within the partition.
	SiteID int32 `yaml:"siteId"`

	// PartitionID is the partition this site serves.
	PartitionID int32 `yaml:"partitionId"`

	// KSafety is the replication factor: the number of replica copies
	// beyond the leader (a k-safety of 2 means three total copies).
	KSafety int `yaml:"kSafety"`

	// Replicas lists every site in the partition's replica set, including
	// this one, each as a site id plus that site's transport address.
	Replicas []ReplicaAddr `yaml:"replicas"`

	// CommandLogMode selects synchronous, asynchronous, or disabled
	// durability logging; see pkg/sps.LogMode.
	CommandLogMode string `yaml:"commandLogMode"`

	// DataDir is the directory the command log and fault log are stored in.
	DataDir string `yaml:"dataDir"`

	// TransportAddr is the bind address for the gRPC mailbox server.
	TransportAddr string `yaml:"transportAddr"`

	// MembershipAddr is the bind address for this partition's raft elector.
	MembershipAddr string `yaml:"membershipAddr"`

	// MetricsAddr is the bind address for the Prometheus/health HTTP server.
	MetricsAddr string `yaml:"metricsAddr"`

	// TaskQueueCapacity bounds the number of tasks buffered for the
	// execution engine before Offer back-pressures.
	TaskQueueCapacity int `yaml:"taskQueueCapacity"`

	// TaskQueueWorkers is the number of goroutines draining the task queue.
	TaskQueueWorkers int `yaml:"taskQueueWorkers"`

	LogLevel string `yaml:"logLevel"`
	LogJSON  bool   `yaml:"logJson"`

	// MultiPartitionReplay enables the second replay-sequencer source
	// needed to merge the local command-log stream with the MPI sentinel
	// stream during replay of multi-partition transactions. Leave false
	// for a deployment that only ever runs single-partition procedures.
	MultiPartitionReplay bool `yaml:"multiPartitionReplay"`
}

// ReplicaAddr identifies one site in a partition's replica set.
type ReplicaAddr struct {
	SiteID int32  `yaml:"siteId"`
	Addr   string `yaml:"addr"`
}

// Defaults applied to zero-valued fields after loading; mirrors the
// teacher's flag-default conventions (cmd/warren's "127.0.0.1:NNNN" style)
// rather than requiring every field to be spelled out in every file.
const (
	DefaultCommandLogMode    = "sync"
	DefaultDataDir           = "./sps-data"
	DefaultTransportAddr     = "127.0.0.1:7000"
	DefaultMembershipAddr    = "127.0.0.1:7100"
	DefaultMetricsAddr       = "127.0.0.1:9090"
	DefaultTaskQueueCapacity = 1024
	DefaultTaskQueueWorkers  = 4
	DefaultLogLevel          = "info"
)

// Load reads and parses a Config from path, then fills in defaults for any
// field left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.CommandLogMode == "" {
		c.CommandLogMode = DefaultCommandLogMode
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.TransportAddr == "" {
		c.TransportAddr = DefaultTransportAddr
	}
	if c.MembershipAddr == "" {
		c.MembershipAddr = DefaultMembershipAddr
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = DefaultMetricsAddr
	}
	if c.TaskQueueCapacity == 0 {
		c.TaskQueueCapacity = DefaultTaskQueueCapacity
	}
	if c.TaskQueueWorkers == 0 {
		c.TaskQueueWorkers = DefaultTaskQueueWorkers
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// Validate checks the fields Load cannot default on its own.
func (c *Config) Validate() error {
	if len(c.Replicas) == 0 {
		return fmt.Errorf("config: replicas must not be empty")
	}
	found := false
	for _, r := range c.Replicas {
		if r.SiteID == c.SiteID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("config: siteId %d is not a member of replicas", c.SiteID)
	}
	switch c.CommandLogMode {
	case "sync", "async", "disabled":
	default:
		return fmt.Errorf("config: commandLogMode must be one of sync, async, disabled, got %q", c.CommandLogMode)
	}
	return nil
}

// ReplicaSiteIDs returns every replica's SiteID, in file order.
func (c *Config) ReplicaSiteIDs() []int32 {
	ids := make([]int32, len(c.Replicas))
	for i, r := range c.Replicas {
		ids[i] = r.SiteID
	}
	return ids
}
