package sps

import (
	"context"

	"github.com/Kernelock/voltdb/pkg/bufferedread"
	"github.com/Kernelock/voltdb/pkg/dupcounter"
	"github.com/Kernelock/voltdb/pkg/ids"
)

// handleInitiateTaskLocked implements spec.md §4.1's M_init classification.
func (s *Scheduler) handleInitiateTaskLocked(ctx context.Context, m InitiateTask) error {
	if !s.isLeader && !m.ReadOnly {
		// Replica receiving a write replica-copy: track the high-water
		// mark, adopt the unique-id, and execute without a counter. The
		// leader piggy-backs its current τ on this message (spec.md
		// §4.3); a replica always applies it forced, since it did not
		// originate the advance itself.
		s.truncTracker.Advance(m.TruncHandle, true)
		s.alloc.AdvanceMaxSeenH(m.H)
		s.alloc.AdoptUniqueID(m.U)
		s.txns[m.T] = &TxnState{T: m.T, Kind: KindSPWrite, FirstH: m.H, Notice: m}
		s.offerTaskLocked(ctx, Task{Kind: "sp-write-replica", T: m.T, H: m.H, Exec: noopExec})
		return nil
	}

	isWrite := !m.ReadOnly
	var h ids.SpHandle
	var u ids.UniqueID

	switch {
	case m.ForReplay:
		s.alloc.AdoptUniqueID(m.U)
		h = s.alloc.NextHandle()
		u = m.U
	case s.isLeader && isWrite:
		h = s.alloc.NextHandle()
		u = s.alloc.NextUniqueID()
	default:
		// Read, or short-circuit read: reuse the high-water mark rather
		// than minting a new handle.
		h = s.alloc.MaxScheduledH()
		u = s.alloc.NextUniqueID()
	}
	s.observeHandleAllocatedLocked()

	stamped := m
	stamped.H = h
	stamped.U = u
	if !m.ForReplay && !m.SysProc {
		stamped.T = ids.TxnID(h)
	}
	t := stamped.T

	if s.isLeader && isWrite && len(s.replicas) > 0 {
		replicaCopy := stamped
		replicaCopy.IsReplicaCopy = true
		replicaCopy.TruncHandle = s.truncTracker.Tau()
		if err := s.mailbox.Multicast(ctx, s.replicas, replicaCopy); err != nil {
			s.log.Warn().Err(err).Msg("sp-write replica multicast failed")
		} else {
			s.truncTracker.PiggybackSent(replicaCopy.TruncHandle)
		}
		expected := append([]ids.SiteID{s.self}, s.replicas...)
		s.openCounterLocked(t, h, expected, m.InitiatorID, dupcounter.OpenedBy{}, s.onInitiateCounterDoneLocked)
	}

	s.txns[t] = &TxnState{T: t, Kind: kindFor(isWrite), FirstH: h, ReadOnly: m.ReadOnly, Notice: stamped}

	// A short-circuit read needs nothing replayed, so it is never logged;
	// every write and every forced replay entry is.
	if isWrite || m.ForReplay {
		s.logAndOfferLocked(ctx, t, h, u, "sp-procedure")
	} else {
		s.offerTaskLocked(ctx, Task{Kind: "sp-read", T: t, H: h, Exec: noopExec})
	}
	return nil
}

func (s *Scheduler) onInitiateCounterDoneLocked(ctx context.Context, outcome dupcounter.Outcome, dc *dupcounter.Counter) {
	s.truncTracker.Advance(dc.H, false)
	resp := InitiateResponse{T: dc.TxnID, H: dc.H, SourceID: s.self, Results: dc.LastPayload()}
	if err := s.mailbox.Send(ctx, dc.Dest, resp); err != nil {
		s.log.Warn().Err(err).Msg("failed to forward aggregated initiate response")
	}
	delete(s.txns, dc.TxnID)
	s.releaseBufferedReadsLocked(ctx)
}

// handleInitiateResponseLocked implements spec.md §4.1's R_init
// classification.
func (s *Scheduler) handleInitiateResponseLocked(ctx context.Context, m InitiateResponse) error {
	if m.ReadOnly {
		safe := false
		if txn, ok := s.txns[m.T]; ok {
			if it, ok := txn.Notice.(InitiateTask); ok {
				safe = it.Safe
			}
		}
		if s.isLeader && safe {
			s.bufferedReads.Enqueue(bufferedread.Entry{Gate: s.truncTracker.Tau(), Dest: m.InitiatorID, Payload: m.Results})
			s.setBufferedReadDepthLocked()
		} else if err := s.mailbox.Send(ctx, m.InitiatorID, m); err != nil {
			s.log.Warn().Err(err).Msg("failed to forward read response")
		}
		delete(s.txns, m.T)
		return nil
	}

	if _, ok := s.counters.get(m.T, m.H); ok {
		s.offerLocked(ctx, m.T, m.H, dupcounter.Response{Source: m.SourceID, Hashes: m.Hashes, Aborted: m.Aborted, Payload: m.Results})
		return nil
	}

	// Single-replica case: no counter was ever opened for this write.
	s.truncTracker.Advance(m.H, false)
	if err := s.mailbox.Send(ctx, m.InitiatorID, m); err != nil {
		s.log.Warn().Err(err).Msg("failed to forward single-replica response")
	}
	delete(s.txns, m.T)
	s.releaseBufferedReadsLocked(ctx)
	return nil
}

// handleFragmentTaskLocked implements spec.md §4.1's M_frag
// classification.
func (s *Scheduler) handleFragmentTaskLocked(ctx context.Context, m FragmentTask) error {
	acting := s.isLeader || m.HandleByOriginalLeader
	if !acting {
		s.alloc.AdvanceMaxSeenH(m.H)
		if _, exists := s.txns[m.T]; !exists {
			s.txns[m.T] = &TxnState{T: m.T, Kind: KindMPParticipant, FirstH: m.H, ReadOnly: m.ReadOnly, Notice: m}
		}
		s.offerTaskLocked(ctx, Task{Kind: "fragment-replica", T: m.T, H: m.H, Exec: noopExec})
		if m.Final && m.ReadOnly {
			delete(s.txns, m.T)
		}
		return nil
	}

	var h ids.SpHandle
	if m.ReadOnly {
		h = s.alloc.MaxScheduledH()
	} else {
		h = s.alloc.NextHandle()
	}
	s.observeHandleAllocatedLocked()
	stamped := m
	stamped.H = h

	if len(s.replicas) > 0 && (!m.ReadOnly || m.SysProc) {
		replicaCopy := stamped
		replicaCopy.IsReplicaCopy = true
		if err := s.mailbox.Multicast(ctx, s.replicas, replicaCopy); err != nil {
			s.log.Warn().Err(err).Msg("fragment replica multicast failed")
		}
		expected := append([]ids.SiteID{s.self}, s.replicas...)
		s.openCounterLocked(m.T, h, expected, m.CoordinatorID, dupcounter.OpenedBy{}, s.onFragmentCounterDoneLocked)
	}

	txn, exists := s.txns[m.T]
	gateJustOpened := false
	if !exists {
		txn = &TxnState{T: m.T, Kind: KindMPParticipant, FirstH: h, ReadOnly: m.ReadOnly, Notice: stamped}
		s.txns[m.T] = txn

		if !m.ReadOnly && !m.Safe && s.commandLog != nil && s.commandLog.Mode() != ModeDisabled {
			future := s.commandLog.Append(ctx, LogEntry{H: h, T: m.T})
			if s.commandLog.Mode() == ModeSync {
				// The first fragment's own task still goes straight to
				// execution below; only later fragments and the complete
				// message for T are held behind this gate (spec.md §4.6),
				// drained when the durabilityResolved event posted below
				// (once the future resolves) is dispatched.
				s.mpGate.Open(m.T)
				gateJustOpened = true
				if future != nil {
					go func(t ids.TxnID) {
						s.Post(Event{Message: durabilityResolved{T: t, Err: future.Error()}})
					}(m.T)
				}
			}
		}
	}

	task := Task{Kind: "fragment", T: m.T, H: h, Exec: noopExec}
	if !gateJustOpened && s.mpGate.IsOpen(m.T) {
		s.mpGate.Enqueue(m.T, task)
	} else {
		s.offerTaskLocked(ctx, task)
	}

	if m.Final && m.ReadOnly {
		delete(s.txns, m.T)
	}
	return nil
}

func (s *Scheduler) onFragmentCounterDoneLocked(ctx context.Context, outcome dupcounter.Outcome, dc *dupcounter.Counter) {
	forward := FragmentResponse{T: dc.TxnID, H: dc.H, SourceID: s.self, DestID: dc.Dest, Status: StatusOK}
	if err := s.mailbox.Send(ctx, dc.Dest, forward); err != nil {
		s.log.Warn().Err(err).Msg("failed to forward aggregated fragment response")
	}
	if txn, ok := s.txns[dc.TxnID]; ok && txn.Done {
		s.truncTracker.Advance(dc.H, false)
	}
}

// handleFragmentResponseLocked implements spec.md §4.1's R_frag
// classification.
func (s *Scheduler) handleFragmentResponseLocked(ctx context.Context, m FragmentResponse) error {
	if m.Misrouted {
		if err := s.mailbox.Send(ctx, m.DestID, m); err != nil {
			s.log.Warn().Err(err).Msg("failed to forward misrouted fragment response")
		}
		return nil
	}

	if _, ok := s.counters.get(m.T, m.H); ok {
		s.offerLocked(ctx, m.T, m.H, dupcounter.Response{Source: m.SourceID, Hashes: m.Hashes, Aborted: m.Status == StatusAborted})
		return nil
	}

	txn := s.txns[m.T]
	if s.isLeader && len(s.replicas) > 0 && txn != nil && txn.ReadOnly {
		safe := false
		if ft, ok := txn.Notice.(FragmentTask); ok {
			safe = ft.Safe
		}
		if safe {
			s.bufferedReads.Enqueue(bufferedread.Entry{Gate: txn.FirstH, Dest: m.DestID})
			s.setBufferedReadDepthLocked()
			return nil
		}
	}
	if err := s.mailbox.Send(ctx, m.DestID, m); err != nil {
		s.log.Warn().Err(err).Msg("failed to forward fragment response")
	}
	return nil
}

// handleCompleteTransactionMessageLocked implements spec.md §4.1's
// M_complete classification.
func (s *Scheduler) handleCompleteTransactionMessageLocked(ctx context.Context, m CompleteTransactionMessage) error {
	// Open Question (spec.md §9): the source's
	// `(isLeader && toLeader) || toLeader` is unconditionally equivalent
	// to `toLeader`; preserved as such rather than re-derived.
	if m.ToLeader {
		stamped := m
		stamped.H = s.alloc.NextHandle()
		s.observeHandleAllocatedLocked()
		stamped.ToLeader = false
		stamped.AckRequested = true

		if len(s.replicas) > 0 {
			if err := s.mailbox.Multicast(ctx, s.replicas, stamped); err != nil {
				s.log.Warn().Err(err).Msg("complete-transaction multicast failed")
			}
		}
		if !m.ReadOnly && !m.Restart {
			expected := append([]ids.SiteID{s.self}, s.replicas...)
			s.openCounterLocked(m.T, stamped.H, expected, m.CoordinatorID,
				dupcounter.OpenedBy{IsCompleteTransaction: true, CoordinatorID: m.CoordinatorID},
				s.onCompleteCounterDoneLocked)
		}
		m = stamped
	}

	task := Task{Kind: "complete-transaction", T: m.T, H: m.H, Exec: noopExec}
	if s.mpGate.IsOpen(m.T) {
		s.mpGate.Enqueue(m.T, task)
	} else {
		s.offerTaskLocked(ctx, task)
	}

	if _, exists := s.txns[m.T]; !exists {
		// The transaction state is gone (a rejoin snapshot cut it off):
		// synthesize a self-response so any counter waiting on this site
		// is not stuck forever.
		s.offerLocked(ctx, m.T, m.H, dupcounter.Response{Source: s.self})
	}
	return nil
}

func (s *Scheduler) onCompleteCounterDoneLocked(ctx context.Context, outcome dupcounter.Outcome, dc *dupcounter.Counter) {
	if txn, ok := s.txns[dc.TxnID]; ok {
		txn.Done = true
		delete(s.txns, dc.TxnID)
	}
	s.truncTracker.Advance(dc.H, false)
	s.releaseBufferedReadsLocked(ctx)
}

// handleCompleteTransactionResponseLocked implements spec.md §4.1's
// complete-transaction-response classification.
func (s *Scheduler) handleCompleteTransactionResponseLocked(ctx context.Context, m CompleteTransactionResponse) error {
	if _, ok := s.counters.get(m.T, m.H); ok {
		s.offerLocked(ctx, m.T, m.H, dupcounter.Response{Source: m.SpiID})
		return nil
	}
	if m.AckRequested && !s.isLeader {
		if err := s.mailbox.Send(ctx, m.SpiID, m); err != nil {
			s.log.Warn().Err(err).Msg("failed to ack complete-transaction response")
		}
	}
	return nil
}

// handleBorrowTaskLocked handles a borrow task (an MP read executed
// locally without replication) by offering its task directly, stamped
// with the current MaxScheduledH. No transaction state is created for it,
// and nothing marks the resulting response as a borrow.
func (s *Scheduler) handleBorrowTaskLocked(ctx context.Context, m BorrowTask) error {
	h := s.alloc.MaxScheduledH()
	s.offerTaskLocked(ctx, Task{Kind: "borrow", T: m.Fragment.T, H: h, Exec: noopExec})
	return nil
}

// handleDummyTransactionTaskLocked implements spec.md §4.1's dummy-task
// handling, treated identically to an SP write with no procedure.
func (s *Scheduler) handleDummyTransactionTaskLocked(ctx context.Context, m DummyTransactionTask) error {
	h := s.alloc.NextHandle()
	s.observeHandleAllocatedLocked()
	s.logAndOfferLocked(ctx, m.T, h, m.U, "dummy")
	return nil
}

func (s *Scheduler) handleDummyTransactionResponseLocked(ctx context.Context, m DummyTransactionResponse) error {
	s.truncTracker.Advance(m.H, false)
	s.releaseBufferedReadsLocked(ctx)
	return nil
}

// handleLogFaultMessageLocked implements spec.md §4.1's log-fault
// handling: a replica receives this when the leader writes a
// viable-replay entry, and must mirror it before advancing.
func (s *Scheduler) handleLogFaultMessageLocked(ctx context.Context, m Iv2LogFaultMessage) error {
	if s.commandLog != nil {
		if err := s.commandLog.AppendSync(ctx, LogEntry{H: m.HFault, U: m.U}); err != nil {
			s.log.Error().Err(err).Msg("replica log-fault write failed")
		}
	}
	s.alloc.AdvanceMaxSeenH(m.HFault)
	s.alloc.AdoptUniqueID(m.U)
	return nil
}

// handleRepairMessageLocked implements spec.md §4.1's repair-message
// handling: opens a counter over exactly the sites that need repairing,
// performs the work locally if this site is one of them, and forwards a
// repair-marked copy to the rest.
func (s *Scheduler) handleRepairMessageLocked(ctx context.Context, m RepairMessage) error {
	inNeedsRepair := false
	remaining := make([]ids.SiteID, 0, len(m.NeedsRepair))
	for _, site := range m.NeedsRepair {
		if site == s.self {
			inNeedsRepair = true
		} else {
			remaining = append(remaining, site)
		}
	}

	s.openCounterLocked(m.T, m.H, m.NeedsRepair, s.self, dupcounter.OpenedBy{}, func(ctx context.Context, outcome dupcounter.Outcome, dc *dupcounter.Counter) {
		s.truncTracker.Advance(dc.H, false)
	})

	if inNeedsRepair {
		s.offerTaskLocked(ctx, Task{Kind: "repair", T: m.T, H: m.H, Exec: noopExec})
	}
	if len(remaining) > 0 {
		if err := s.mailbox.Multicast(ctx, remaining, m); err != nil {
			s.log.Warn().Err(err).Msg("repair forward failed")
		}
	}
	return nil
}

// handleRepairLogTruncationLocked implements spec.md §4.3's dedicated
// (non-piggybacked) truncation-handle broadcast receipt: the amortized
// fallback RunScheduledBroadcast sends when no ordinary replicated
// message has piggy-backed a fresher τ by the time it runs. A replica
// always applies it forced, since it did not originate the advance.
func (s *Scheduler) handleRepairLogTruncationLocked(ctx context.Context, m RepairLogTruncationMessage) error {
	s.truncTracker.Advance(m.Tau, true)
	return nil
}

func (s *Scheduler) handleDumpMessageLocked(ctx context.Context, m DumpMessage) error {
	s.log.Info().Str("reason", m.Reason).Msg("dump requested")
	return nil
}

func (s *Scheduler) handleDumpPlanThenExitLocked(ctx context.Context, m DumpPlanThenExitMessage) error {
	s.log.Error().Str("proc", m.ProcName).Str("reason", m.Reason).Msg("peer requested coordinated crash")
	if s.Terminate != nil {
		s.Terminate()
	}
	return nil
}

// logAndOfferLocked logs the entry according to the command log's mode,
// then offers the corresponding task. In ModeAsync the append's future is
// not awaited and the task is offered at once; in ModeSync AppendSync
// blocks until the entry is durable, and on failure the error is logged
// and no task is offered. With no command log, or in ModeDisabled, the
// task is offered directly.
func (s *Scheduler) logAndOfferLocked(ctx context.Context, t ids.TxnID, h ids.SpHandle, u ids.UniqueID, kind string) {
	if s.commandLog != nil && s.commandLog.Mode() != ModeDisabled {
		entry := LogEntry{H: h, T: t, U: u}
		switch s.commandLog.Mode() {
		case ModeAsync:
			s.commandLog.Append(ctx, entry)
		case ModeSync:
			if err := s.commandLog.AppendSync(ctx, entry); err != nil {
				s.log.Error().Err(err).Msg("synchronous command log append failed")
				return
			}
		}
	}
	s.offerTaskLocked(ctx, Task{Kind: kind, T: t, H: h, Exec: noopExec})
}

func noopExec(ctx context.Context) Response { return Response{} }
