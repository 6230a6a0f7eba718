package sps

// Metrics receives scheduler observability events. It is implemented by
// pkg/metrics; a nil Metrics on Scheduler is valid and simply drops
// observations.
type Metrics interface {
	IncFatalTerminations()
	IncCounterOutcome(outcome string)
	ObserveHandleAllocated()
	SetBufferedReadDepth(n int)
}

func (s *Scheduler) observeHandleAllocatedLocked() {
	if s.Metrics != nil {
		s.Metrics.ObserveHandleAllocated()
	}
}

func (s *Scheduler) incCounterOutcomeLocked(outcome string) {
	if s.Metrics != nil {
		s.Metrics.IncCounterOutcome(outcome)
	}
}

func (s *Scheduler) setBufferedReadDepthLocked() {
	if s.Metrics != nil {
		s.Metrics.SetBufferedReadDepth(s.bufferedReads.Len())
	}
}
