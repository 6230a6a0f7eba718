package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/Kernelock/voltdb/pkg/commandlog"
	"github.com/Kernelock/voltdb/pkg/config"
	"github.com/Kernelock/voltdb/pkg/ids"
	"github.com/Kernelock/voltdb/pkg/log"
	"github.com/Kernelock/voltdb/pkg/membership"
	"github.com/Kernelock/voltdb/pkg/metrics"
	"github.com/Kernelock/voltdb/pkg/sps"
	"github.com/Kernelock/voltdb/pkg/taskqueue"
	"github.com/Kernelock/voltdb/pkg/transport"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "sps-node",
	Short:   "sps-node - single-partition scheduler for a VoltDB-style replicated partition",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"sps-node version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start this site's scheduler, command log, mailbox, and leadership elector",
	Long: `Run loads a node config file describing this partition's replica set and
starts every collaborator the single-partition scheduler needs: the durable
command log, the gRPC mailbox to the other replicas, the raft-backed
leadership elector, and the bounded task queue feeding the execution engine.

It blocks until interrupted or until the metrics server fails, then stops
the scheduler loop, the status collector, the task queue, the elector, the
mailbox, and the command log, in that order. The metrics HTTP server is not
stopped; it ends with the process.`,
	RunE: runNode,
}

func init() {
	runCmd.Flags().String("config", "", "Path to the node config file (required)")
}

func runNode(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		return fmt.Errorf("--config is required")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})
	nodeLog := log.WithSite(cfg.SiteID)
	nodeLog.Info().Int32("partition", cfg.PartitionID).Msg("starting sps-node")

	metricsCollector := metrics.NewCollector()
	metrics.SetVersion(Version)

	logMode, err := parseLogMode(cfg.CommandLogMode)
	if err != nil {
		return err
	}
	cmdLog, err := commandlog.Open(cfg.DataDir, logMode)
	if err != nil {
		return fmt.Errorf("open command log: %w", err)
	}
	metrics.RegisterComponent("commandlog", true, "ready")

	// Scheduler and mailbox construct each other: the mailbox needs a
	// Dispatcher and the scheduler needs a Mailbox. dispatchProxy breaks
	// the cycle by forwarding to the scheduler once it exists.
	proxy := &dispatchProxy{}
	mailbox := transport.New(ids.SiteID(cfg.SiteID), proxy, metricsCollector)

	replaySources := 1
	if cfg.MultiPartitionReplay {
		replaySources = 2
	}
	scheduler, err := sps.New(ids.SiteID(cfg.SiteID), cfg.PartitionID, mailbox, nodeLog, replaySources)
	if err != nil {
		_ = cmdLog.Close()
		return fmt.Errorf("create scheduler: %w", err)
	}
	proxy.setTarget(scheduler)
	scheduler.Metrics = metricsCollector
	scheduler.SetCommandLog(cmdLog)

	queue := taskqueue.New(cfg.TaskQueueCapacity, cfg.TaskQueueWorkers)
	queue.SetMetrics(metricsCollector)
	scheduler.SetTaskQueue(queue)
	metrics.RegisterComponent("taskqueue", true, "ready")

	if err := mailbox.Serve(cfg.TransportAddr); err != nil {
		_ = cmdLog.Close()
		return fmt.Errorf("start mailbox: %w", err)
	}
	for _, r := range cfg.Replicas {
		if r.SiteID != cfg.SiteID {
			mailbox.AddPeer(ids.SiteID(r.SiteID), r.Addr)
		}
	}
	metrics.RegisterComponent("transport", true, "ready")
	nodeLog.Info().Str("addr", cfg.TransportAddr).Msg("mailbox listening")

	elector, err := membership.NewElector(membership.Config{
		SiteID:      ids.SiteID(cfg.SiteID),
		PartitionID: ids.PartitionID(cfg.PartitionID),
		BindAddr:    cfg.MembershipAddr,
		DataDir:     cfg.DataDir,
	}, scheduler)
	if err != nil {
		mailbox.Stop()
		_ = cmdLog.Close()
		return fmt.Errorf("create elector: %w", err)
	}

	replicaAddrs := make([]membership.ReplicaAddr, len(cfg.Replicas))
	for i, r := range cfg.Replicas {
		replicaAddrs[i] = membership.ReplicaAddr{SiteID: ids.SiteID(r.SiteID), Addr: r.Addr}
	}
	if err := elector.Bootstrap(replicaAddrs); err != nil {
		mailbox.Stop()
		_ = cmdLog.Close()
		return fmt.Errorf("bootstrap elector: %w", err)
	}
	metrics.RegisterComponent("membership", true, "ready")
	nodeLog.Info().Str("addr", cfg.MembershipAddr).Msg("elector raft group bootstrapped")

	statusCollector := metrics.NewStatusCollector(elector, 0)
	statusCollector.Start()

	ctx, cancel := context.WithCancel(context.Background())
	var schedWG sync.WaitGroup
	schedWG.Add(1)
	go func() {
		defer schedWG.Done()
		scheduler.Run(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", metrics.HealthHandler())
		mux.Handle("/ready", metrics.ReadyHandler())
		mux.Handle("/live", metrics.LivenessHandler())
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			errCh <- fmt.Errorf("metrics server error: %w", err)
		}
	}()
	nodeLog.Info().Str("addr", cfg.MetricsAddr).Msg("metrics endpoint listening")
	metrics.RegisterComponent("api", true, "ready")

	nodeLog.Info().Msg("sps-node running; press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		nodeLog.Info().Msg("shutting down")
	case err := <-errCh:
		nodeLog.Error().Err(err).Msg("component error")
	}

	cancel()
	schedWG.Wait()
	statusCollector.Stop()
	queue.Stop()
	if err := elector.Shutdown(); err != nil {
		nodeLog.Error().Err(err).Msg("elector shutdown")
	}
	mailbox.Stop()
	if err := cmdLog.Close(); err != nil {
		nodeLog.Error().Err(err).Msg("command log close")
	}

	nodeLog.Info().Msg("shutdown complete")
	return nil
}

func parseLogMode(mode string) (sps.LogMode, error) {
	switch mode {
	case "sync":
		return sps.ModeSync, nil
	case "async":
		return sps.ModeAsync, nil
	case "disabled":
		return sps.ModeDisabled, nil
	default:
		return 0, fmt.Errorf("unknown commandLogMode %q", mode)
	}
}

// dispatchProxy forwards Dispatch calls to a target set after
// construction, breaking the cyclic dependency between the mailbox
// (which needs a Dispatcher) and the scheduler (which needs a Mailbox).
type dispatchProxy struct {
	mu     sync.RWMutex
	target transport.Dispatcher
}

func (p *dispatchProxy) setTarget(t transport.Dispatcher) {
	p.mu.Lock()
	p.target = t
	p.mu.Unlock()
}

func (p *dispatchProxy) Dispatch(ctx context.Context, msg any) error {
	p.mu.RLock()
	t := p.target
	p.mu.RUnlock()
	if t == nil {
		return fmt.Errorf("dispatchProxy: scheduler not ready")
	}
	return t.Dispatch(ctx, msg)
}
