package metrics

import "time"

// PartitionStatusSource is the small slice of the partition elector's state
// that is worth polling into gauges on a fixed cadence rather than pushing
// on every change: leadership and replica-set size change rarely enough
// that a ticker is simpler than wiring a callback through every call site.
type PartitionStatusSource interface {
	IsLeader() bool
	ReplicaCount() int
}

// StatusCollector periodically samples a PartitionStatusSource into the
// package-level partition gauges, following the same ticker-driven
// collect loop the teacher uses for its cluster metrics collector.
type StatusCollector struct {
	source PartitionStatusSource
	period time.Duration
	stopCh chan struct{}
}

// NewStatusCollector returns a StatusCollector sampling source every period.
func NewStatusCollector(source PartitionStatusSource, period time.Duration) *StatusCollector {
	if period <= 0 {
		period = 15 * time.Second
	}
	return &StatusCollector{
		source: source,
		period: period,
		stopCh: make(chan struct{}),
	}
}

// Start begins sampling in the background, collecting once immediately.
func (c *StatusCollector) Start() {
	ticker := time.NewTicker(c.period)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts sampling.
func (c *StatusCollector) Stop() {
	close(c.stopCh)
}

func (c *StatusCollector) collect() {
	if c.source == nil {
		return
	}
	if c.source.IsLeader() {
		PartitionIsLeader.Set(1)
	} else {
		PartitionIsLeader.Set(0)
	}
	PartitionReplicasTotal.Set(float64(c.source.ReplicaCount()))
}
