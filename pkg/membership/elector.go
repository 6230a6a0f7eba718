package membership

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Kernelock/voltdb/pkg/ids"
	"github.com/Kernelock/voltdb/pkg/log"
	"github.com/Kernelock/voltdb/pkg/metrics"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// LeaderObserver receives leadership and replica-set change notifications.
// pkg/sps.Scheduler satisfies this directly via its SetLeaderState and
// UpdateReplicas methods.
type LeaderObserver interface {
	SetLeaderState(isLeader bool)
	UpdateReplicas(replicas []ids.SiteID, partitionMasters map[ids.PartitionID]ids.SiteID)
}

// ReplicaAddr identifies one voter in the partition's leadership group.
type ReplicaAddr struct {
	SiteID ids.SiteID
	Addr   string
}

// Config holds the configuration needed to construct an Elector.
type Config struct {
	SiteID      ids.SiteID
	PartitionID ids.PartitionID
	BindAddr    string
	DataDir     string
}

// Elector runs a Raft group over a partition's replica set purely to
// agree on leadership and the replica set's membership. It carries no
// transaction data — that state stays local to each site's scheduler,
// dispatched over pkg/transport instead of replicated through Raft.
type Elector struct {
	siteID      ids.SiteID
	partitionID ids.PartitionID
	bindAddr    string
	dataDir     string

	raft *raft.Raft
	fsm  *electorFSM

	observer LeaderObserver

	stopLeaderWatch chan struct{}
}

// NewElector constructs an Elector. Call Bootstrap (for the group's first
// formation) or Join (to attach to an already-bootstrapped group) before
// using it.
func NewElector(cfg Config, observer LeaderObserver) (*Elector, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create elector data directory: %w", err)
	}

	e := &Elector{
		siteID:          cfg.SiteID,
		partitionID:     cfg.PartitionID,
		bindAddr:        cfg.BindAddr,
		dataDir:         cfg.DataDir,
		observer:        observer,
		stopLeaderWatch: make(chan struct{}),
	}
	e.fsm = newElectorFSM(func(replicas []ids.SiteID, partitionMasters map[ids.PartitionID]ids.SiteID) {
		if e.observer != nil {
			e.observer.UpdateReplicas(replicas, partitionMasters)
		}
		metrics.PartitionReplicasTotal.Set(float64(len(replicas)))
	})
	return e, nil
}

func (e *Elector) raftConfig() *raft.Config {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(siteIDString(e.siteID))

	// Tuned for LAN partition groups rather than Raft's WAN-oriented
	// defaults (HeartbeatTimeout=1s, ElectionTimeout=1s,
	// LeaderLeaseTimeout=500ms): a slow leadership handoff directly
	// stalls the partition's dispatch loop.
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond
	return config
}

func (e *Elector) newRaft(config *raft.Config) (*raft.Raft, error) {
	addr, err := net.ResolveTCPAddr("tcp", e.bindAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(e.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create raft transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(e.dataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(e.dataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("create raft log store: %w", err)
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(e.dataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("create raft stable store: %w", err)
	}

	r, err := raft.NewRaft(config, e.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("create raft instance: %w", err)
	}
	return r, nil
}

// Bootstrap forms the leadership group from the full, known replica set.
// Every site in replicas calls Bootstrap with the same list; Raft's
// BootstrapCluster is a one-time operation, safe to call once per site on
// first startup since the replica set for a partition is configured
// statically rather than discovered.
func (e *Elector) Bootstrap(replicas []ReplicaAddr) error {
	config := e.raftConfig()
	r, err := e.newRaft(config)
	if err != nil {
		return err
	}
	e.raft = r

	servers := make([]raft.Server, 0, len(replicas))
	for _, rep := range replicas {
		servers = append(servers, raft.Server{
			ID:      raft.ServerID(siteIDString(rep.SiteID)),
			Address: raft.ServerAddress(rep.Addr),
		})
	}

	future := e.raft.BootstrapCluster(raft.Configuration{Servers: servers})
	if err := future.Error(); err != nil {
		return fmt.Errorf("bootstrap leadership group: %w", err)
	}

	e.watchLeadership()
	return nil
}

// Join attaches this site's raft instance to an already-bootstrapped
// group. The leader must separately call AddVoter for this site.
func (e *Elector) Join() error {
	config := e.raftConfig()
	r, err := e.newRaft(config)
	if err != nil {
		return err
	}
	e.raft = r
	e.watchLeadership()
	return nil
}

// AddVoter adds a new site to the leadership group. Only the leader may
// call this successfully.
func (e *Elector) AddVoter(site ids.SiteID, addr string) error {
	if e.raft == nil {
		return fmt.Errorf("elector: raft not initialized")
	}
	future := e.raft.AddVoter(raft.ServerID(siteIDString(site)), raft.ServerAddress(addr), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("add voter: %w", err)
	}
	return nil
}

// RemoveServer removes a site from the leadership group, e.g. after a
// persistent fault drops it below k-safety.
func (e *Elector) RemoveServer(site ids.SiteID) error {
	if e.raft == nil {
		return fmt.Errorf("elector: raft not initialized")
	}
	future := e.raft.RemoveServer(raft.ServerID(siteIDString(site)), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("remove server: %w", err)
	}
	return nil
}

// UpdateReplicaSet commits a new replica set and partition-masters map
// through the raft group; every site's electorFSM applies it and invokes
// the registered LeaderObserver once committed.
func (e *Elector) UpdateReplicaSet(replicas []ids.SiteID, partitionMasters map[ids.PartitionID]ids.SiteID) error {
	if e.raft == nil {
		return fmt.Errorf("elector: raft not initialized")
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.MembershipApplyDuration)

	data, err := json.Marshal(command{Replicas: replicas, PartitionMasters: partitionMasters})
	if err != nil {
		return fmt.Errorf("marshal replica set command: %w", err)
	}

	future := e.raft.Apply(data, 5*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("apply replica set command: %w", err)
	}
	return nil
}

// IsLeader reports whether this site currently holds leadership for the
// partition. It satisfies pkg/metrics.PartitionStatusSource.
func (e *Elector) IsLeader() bool {
	if e.raft == nil {
		return false
	}
	return e.raft.State() == raft.Leader
}

// ReplicaCount returns the size of the currently committed replica set.
// It satisfies pkg/metrics.PartitionStatusSource.
func (e *Elector) ReplicaCount() int {
	return len(e.fsm.currentReplicas())
}

// LeaderAddr returns the transport address of the current raft leader.
func (e *Elector) LeaderAddr() string {
	if e.raft == nil {
		return ""
	}
	return string(e.raft.Leader())
}

// watchLeadership spawns the goroutine that turns raft.Raft's LeaderCh
// into LeaderObserver.SetLeaderState calls and the partition-leader
// gauge/counter updates.
func (e *Elector) watchLeadership() {
	ch := e.raft.LeaderCh()
	go func() {
		for {
			select {
			case isLeader, ok := <-ch:
				if !ok {
					return
				}
				if e.observer != nil {
					e.observer.SetLeaderState(isLeader)
				}
				if isLeader {
					metrics.PartitionIsLeader.Set(1)
				} else {
					metrics.PartitionIsLeader.Set(0)
				}
				metrics.PartitionLeaderChangesTotal.Inc()
				log.WithPartition(int32(e.partitionID)).Info().
					Bool("is_leader", isLeader).
					Msg("partition leadership changed")
			case <-e.stopLeaderWatch:
				return
			}
		}
	}()
}

// Shutdown stops the raft instance and the leadership watcher.
func (e *Elector) Shutdown() error {
	close(e.stopLeaderWatch)
	if e.raft != nil {
		future := e.raft.Shutdown()
		if err := future.Error(); err != nil {
			return fmt.Errorf("shutdown raft: %w", err)
		}
	}
	return nil
}

func siteIDString(site ids.SiteID) string {
	return strconv.Itoa(int(site))
}
