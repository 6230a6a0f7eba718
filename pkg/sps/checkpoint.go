package sps

import "github.com/Kernelock/voltdb/pkg/ids"

// CheckpointBalance begins a leader migration (spec.md §4.7): it
// records H_cp as the current high-water mark so the outgoing leader
// can later tell when all in-flight work it scheduled has completed and
// may safely be replayed by the new leader.
func (s *Scheduler) CheckpointBalance() ids.SpHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpointHCP = s.alloc.MaxScheduledH()
	s.checkpointActive = true
	return s.checkpointHCP
}

// TxnDoneBeforeCheckpoint reports whether every duplicate counter
// opened before the checkpoint handle has reached a terminal state
// (spec.md §8 scenario 5). Once true, it resets the internal H_cp so a
// subsequent checkpoint starts clean.
func (s *Scheduler) TxnDoneBeforeCheckpoint() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.checkpointActive {
		return true
	}
	for key := range s.counters.byKey {
		if key.H < s.checkpointHCP {
			return false
		}
	}
	s.checkpointActive = false
	s.checkpointHCP = 0
	return true
}
