package config

import (
	"os"
	"path/filepath"
	"testing"
)

const validYAML = `
siteId: 1
partitionId: 7
kSafety: 1
replicas:
  - siteId: 1
    addr: "127.0.0.1:7001"
  - siteId: 2
    addr: "127.0.0.1:7002"
commandLogMode: sync
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sps-node.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, validYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.SiteID != 1 {
		t.Errorf("SiteID = %d, want 1", cfg.SiteID)
	}
	if cfg.DataDir != DefaultDataDir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, DefaultDataDir)
	}
	if cfg.TaskQueueWorkers != DefaultTaskQueueWorkers {
		t.Errorf("TaskQueueWorkers = %d, want %d", cfg.TaskQueueWorkers, DefaultTaskQueueWorkers)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, DefaultLogLevel)
	}
}

func TestLoad_RejectsEmptyReplicas(t *testing.T) {
	path := writeConfig(t, "siteId: 1\npartitionId: 0\n")

	if _, err := Load(path); err == nil {
		t.Fatal("Load() error = nil, want an error for empty replicas")
	}
}

func TestLoad_RejectsSiteNotInReplicas(t *testing.T) {
	path := writeConfig(t, `
siteId: 99
partitionId: 0
replicas:
  - siteId: 1
    addr: "127.0.0.1:7001"
`)

	if _, err := Load(path); err == nil {
		t.Fatal("Load() error = nil, want an error when siteId is not a replica")
	}
}

func TestLoad_RejectsUnknownCommandLogMode(t *testing.T) {
	path := writeConfig(t, `
siteId: 1
partitionId: 0
replicas:
  - siteId: 1
    addr: "127.0.0.1:7001"
commandLogMode: eventually
`)

	if _, err := Load(path); err == nil {
		t.Fatal("Load() error = nil, want an error for an unrecognized commandLogMode")
	}
}

func TestReplicaSiteIDs(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	ids := cfg.ReplicaSiteIDs()
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Errorf("ReplicaSiteIDs() = %v, want [1 2]", ids)
	}
}
