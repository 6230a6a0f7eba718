package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Scheduler core metrics
	FatalTerminationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sps_fatal_terminations_total",
			Help: "Total number of cluster-fatal terminations raised by the scheduler (e.g. hash mismatch)",
		},
	)

	CounterOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sps_counter_outcomes_total",
			Help: "Total duplicate counters reaching a terminal outcome, by outcome",
		},
		[]string{"outcome"},
	)

	HandlesAllocatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sps_handles_allocated_total",
			Help: "Total number of sp-handles allocated by this partition's scheduler",
		},
	)

	BufferedReadDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sps_buffered_read_depth",
			Help: "Current number of SAFE reads held pending the gating write's commit",
		},
	)

	// Task queue metrics
	TaskQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sps_task_queue_depth",
			Help: "Current number of tasks buffered in the execution engine's task queue",
		},
	)

	// Command log metrics
	CommandLogAppendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sps_command_log_append_duration_seconds",
			Help:    "Time taken to append an entry to the durable command log, by mode",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	CommandLogAppendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sps_command_log_appends_total",
			Help: "Total command log append attempts, by mode and result",
		},
		[]string{"mode", "result"},
	)

	FaultLogEntriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sps_fault_log_entries_total",
			Help: "Total number of fault log entries written",
		},
	)

	// Partition membership metrics
	PartitionIsLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sps_partition_is_leader",
			Help: "Whether this site holds leadership for its partition (1 = leader, 0 = replica)",
		},
	)

	PartitionReplicasTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sps_partition_replicas_total",
			Help: "Total number of sites in this partition's replica set",
		},
	)

	PartitionLeaderChangesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sps_partition_leader_changes_total",
			Help: "Total number of leadership changes observed for this partition",
		},
	)

	// Transport metrics
	TransportMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sps_transport_messages_total",
			Help: "Total messages sent over the mailbox transport, by direction and kind",
		},
		[]string{"direction", "kind"},
	)

	TransportSendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sps_transport_send_duration_seconds",
			Help:    "Time taken to hand a message to the transport layer, by kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// Truncation / replay metrics
	TruncationHandle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sps_truncation_handle",
			Help: "Current repair-log truncation point (tau)",
		},
	)

	ReplayHeldTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sps_replay_held_total",
			Help: "Current number of replay messages held in the sequencer, awaiting coverage of all sources",
		},
	)

	// Membership metrics
	MembershipApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sps_membership_apply_duration_seconds",
			Help:    "Time taken for a replica-set change to commit through the leadership raft group",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(FatalTerminationsTotal)
	prometheus.MustRegister(CounterOutcomesTotal)
	prometheus.MustRegister(HandlesAllocatedTotal)
	prometheus.MustRegister(BufferedReadDepth)
	prometheus.MustRegister(TaskQueueDepth)
	prometheus.MustRegister(CommandLogAppendDuration)
	prometheus.MustRegister(CommandLogAppendsTotal)
	prometheus.MustRegister(FaultLogEntriesTotal)
	prometheus.MustRegister(PartitionIsLeader)
	prometheus.MustRegister(PartitionReplicasTotal)
	prometheus.MustRegister(PartitionLeaderChangesTotal)
	prometheus.MustRegister(TransportMessagesTotal)
	prometheus.MustRegister(TransportSendDuration)
	prometheus.MustRegister(TruncationHandle)
	prometheus.MustRegister(ReplayHeldTotal)
	prometheus.MustRegister(MembershipApplyDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Collector adapts the package-level Prometheus metrics to the small
// push-style interfaces the scheduler and task queue depend on
// (sps.Metrics, taskqueue.Metrics), so neither package needs to import
// prometheus directly.
type Collector struct{}

// NewCollector returns a Collector wired to the package-level metrics.
func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) IncFatalTerminations() {
	FatalTerminationsTotal.Inc()
}

func (c *Collector) IncCounterOutcome(outcome string) {
	CounterOutcomesTotal.WithLabelValues(outcome).Inc()
}

func (c *Collector) ObserveHandleAllocated() {
	HandlesAllocatedTotal.Inc()
}

func (c *Collector) SetBufferedReadDepth(n int) {
	BufferedReadDepth.Set(float64(n))
}

func (c *Collector) SetTaskQueueDepth(n int) {
	TaskQueueDepth.Set(float64(n))
}

func (c *Collector) SetPartitionLeader(isLeader bool) {
	if isLeader {
		PartitionIsLeader.Set(1)
	} else {
		PartitionIsLeader.Set(0)
	}
	PartitionLeaderChangesTotal.Inc()
}

func (c *Collector) SetPartitionReplicas(n int) {
	PartitionReplicasTotal.Set(float64(n))
}

func (c *Collector) SetTruncationHandle(tau int64) {
	TruncationHandle.Set(float64(tau))
}

func (c *Collector) SetReplayHeld(n int) {
	ReplayHeldTotal.Set(float64(n))
}

func (c *Collector) ObserveCommandLogAppend(mode string, d time.Duration, err error) {
	CommandLogAppendDuration.WithLabelValues(mode).Observe(d.Seconds())
	result := "ok"
	if err != nil {
		result = "error"
	}
	CommandLogAppendsTotal.WithLabelValues(mode, result).Inc()
}

func (c *Collector) IncFaultLogEntry() {
	FaultLogEntriesTotal.Inc()
}

func (c *Collector) ObserveTransportSend(kind, direction string, d time.Duration) {
	TransportMessagesTotal.WithLabelValues(direction, kind).Inc()
	TransportSendDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
