package sps

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/Kernelock/voltdb/pkg/bufferedread"
	"github.com/Kernelock/voltdb/pkg/dupcounter"
	"github.com/Kernelock/voltdb/pkg/ids"
	"github.com/Kernelock/voltdb/pkg/mpgate"
	"github.com/Kernelock/voltdb/pkg/replay"
	"github.com/Kernelock/voltdb/pkg/spshandle"
	"github.com/Kernelock/voltdb/pkg/trunc"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event is one unit of work posted to the scheduler's single-threaded
// dispatch loop (spec.md §5). Done, if non-nil, is closed once the
// message has been fully dispatched — used by synchronous callers (the
// Run loop's own bookkeeping, tests) that need to observe completion.
type Event struct {
	Message any
	Done    chan<- struct{}
}

// durabilityResolved is posted back onto the event stream once a
// command-log durability future completes, continuing on the same loop
// rather than being awaited inline (spec.md §9's "callback chains on
// durability futures" note).
type durabilityResolved struct {
	T   ids.TxnID
	Err error
}

// Scheduler is the single-partition scheduler: the dispatch loop and
// state machine described in spec.md §4.1. All mutation of §3 state
// happens while holding mu. Every exported method takes mu, so the Run
// loop, the transport's receive goroutines, the elector's callbacks and
// tests may call them from any goroutine.
type Scheduler struct {
	mu sync.Mutex

	self        ids.SiteID
	partitionID int32

	isLeader         bool
	replicas         []ids.SiteID // current replica set, excluding self
	partitionMasters map[ids.PartitionID]ids.SiteID

	alloc *spshandle.Allocator

	counters *counterIndex
	onDone   map[dcKey]func(ctx context.Context, outcome dupcounter.Outcome, dc *dupcounter.Counter)

	txns map[ids.TxnID]*TxnState

	truncTracker  *trunc.Tracker
	bufferedReads *bufferedread.Log
	mpGate        *mpgate.Gate
	replaySeq     *replay.Sequencer

	mailbox    Mailbox
	commandLog CommandLog
	taskQueue  TaskQueue

	// Metrics receives scheduler observability events; nil is valid.
	Metrics Metrics

	log zerolog.Logger

	// Terminate is invoked by fatalLocked after peer diagnostics are sent. It
	// defaults to os.Exit(1) and is replaced with a channel signal in
	// tests so the fatal path can be observed without killing the test
	// binary (SPEC_FULL.md §7 expansion).
	Terminate func()

	events chan Event

	checkpointHCP    ids.SpHandle
	checkpointActive bool

	faultLogEnabled bool
}

// New creates a Scheduler for the given site, owning partitionID.
// replaySources is the number of concurrent unique-id-ordered streams the
// replay sequencer must merge: 1 for a partition that never runs MP
// procedures (only the local command-log replay stream exists), 2 once MP
// replay is enabled (the local stream plus the MPI sentinel stream, per
// spec.md §4.5). Values below 1 are treated as 1.
func New(self ids.SiteID, partitionID int32, mailbox Mailbox, logger zerolog.Logger, replaySources int) (*Scheduler, error) {
	alloc, err := spshandle.NewAllocator(partitionID)
	if err != nil {
		return nil, fmt.Errorf("sps: %w", err)
	}
	s := &Scheduler{
		self:          self,
		partitionID:   partitionID,
		alloc:         alloc,
		counters:      newCounterIndex(),
		onDone:        make(map[dcKey]func(context.Context, dupcounter.Outcome, *dupcounter.Counter)),
		txns:          make(map[ids.TxnID]*TxnState),
		bufferedReads: bufferedread.New(),
		mpGate:        mpgate.New(),
		replaySeq:     replay.New(replaySources),
		mailbox:       mailbox,
		log:           logger,
		Terminate:     func() { os.Exit(1) },
		events:        make(chan Event, 256),
	}
	s.truncTracker = trunc.New(s)
	return s, nil
}

// SetLeaderState implements the membership command of the same name
// (spec.md §6): on entering LEADER, the allocator begins minting
// handles for this site and the tracker starts scheduling broadcasts.
func (s *Scheduler) SetLeaderState(isLeader bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isLeader = isLeader
	s.truncTracker.SetLeader(isLeader)
	if isLeader {
		s.log.Info().Int32("partition", s.partitionID).Msg("entering LEADER state")
	} else {
		s.log.Info().Int32("partition", s.partitionID).Msg("entering FOLLOWER state")
	}
}

// UpdateReplicas implements the membership command of the same name
// (spec.md §6, §4.7): recomputes the send set, runs UpdateReplicas on
// every outstanding counter, finalizes newly-DONE ones in T order to
// preserve response ordering (P2), and writes a viable-replay entry.
func (s *Scheduler) UpdateReplicas(replicas []ids.SiteID, partitionMasters map[ids.PartitionID]ids.SiteID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sendTo := make([]ids.SiteID, 0, len(replicas))
	for _, r := range replicas {
		if r != s.self {
			sendTo = append(sendTo, r)
		}
	}
	s.replicas = sendTo
	s.partitionMasters = partitionMasters

	var done []dcKey
	for _, key := range s.counters.orderedKeys() {
		dc, ok := s.counters.get(key.T, key.H)
		if !ok {
			continue
		}
		outcome := dc.UpdateReplicas(replicas)
		if len(dc.ExpectedReplicas()) == 0 {
			// Every replica this counter was waiting on vanished with no
			// response recorded: spec.md §4.8 calls for the counter to be
			// dropped rather than left waiting forever.
			s.log.Warn().Int64("t", int64(key.T)).Int64("h", int64(key.H)).Msg("dropping duplicate counter: replica set emptied before it finished")
			s.counters.delete(key.T, key.H)
			delete(s.onDone, key)
			continue
		}
		if outcome == dupcounter.Done {
			done = append(done, key)
		}
	}
	for _, key := range done {
		dc, ok := s.counters.get(key.T, key.H)
		if !ok {
			continue
		}
		cb := s.onDone[key]
		s.counters.delete(key.T, key.H)
		delete(s.onDone, key)
		if cb != nil {
			cb(context.Background(), dupcounter.Done, dc)
		}
	}

	if s.isLeader {
		s.writeViableReplayEntryLocked(context.Background())
	}
}

// SetCommandLog implements the membership command of the same name.
func (s *Scheduler) SetCommandLog(log CommandLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commandLog = log
}

// SetTaskQueue wires the task queue; not itself a membership command,
// but configured the same way during startup.
func (s *Scheduler) SetTaskQueue(q TaskQueue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taskQueue = q
}

// EnableWritingFaultLog implements the membership command of the same
// name: the viable-replay fault log is only written once the membership
// service has confirmed it is safe to do so.
func (s *Scheduler) EnableWritingFaultLog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faultLogEnabled = true
}

// NotifyDurable continues a command-log Append that was previously
// gated through MpDurabilityGate, draining the tasks held for t. The
// scheduler does the same on its own when the durabilityResolved event
// posted by the first fragment's handler is dispatched; NotifyDurable
// lets a caller that learns of durability directly (a test, for
// instance) drain the gate without going through the event loop.
func (s *Scheduler) NotifyDurable(ctx context.Context, t ids.TxnID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifyDurableLocked(ctx, t, err)
}

func (s *Scheduler) notifyDurableLocked(ctx context.Context, t ids.TxnID, err error) {
	if err != nil {
		s.log.Error().Err(err).Msg("command log durability failed for gated MP transaction")
	}
	for _, task := range s.mpGate.Drain(t) {
		if tk, ok := task.(Task); ok {
			s.offerTaskLocked(ctx, tk)
		}
	}
}

// OfferReplay feeds a command-log-replay or MP-sentinel message through
// the replay sequencer before scheduler classification, per spec.md
// §2's data flow ("inbound messages → (replay sequencer, if replay) →
// scheduler classification"). A duplicate unique-id is not an error
// (property P7): it synthesizes an IGNORED_TRANSACTION response instead
// of dispatching a second time.
func (s *Scheduler) OfferReplay(ctx context.Context, m replay.Message) error {
	s.mu.Lock()
	accepted, deliverable := s.replaySeq.Offer(m)
	s.mu.Unlock()

	if !accepted {
		if it, ok := m.Body.(InitiateTask); ok {
			return s.mailbox.Send(ctx, it.InitiatorID, InitiateResponse{
				T: it.T, InitiatorID: it.InitiatorID, Results: []byte("IGNORED_TRANSACTION"),
			})
		}
		return nil
	}
	if !deliverable {
		return nil
	}

	s.mu.Lock()
	drained := s.replaySeq.Drain()
	s.mu.Unlock()

	for _, dm := range drained {
		if err := s.Dispatch(ctx, dm.Body); err != nil {
			return err
		}
	}
	return nil
}

// Post enqueues an event for the Run loop. Safe to call from any
// goroutine (the mailbox inbox reader, the elector's notification
// callback, a durability continuation).
func (s *Scheduler) Post(ev Event) {
	s.events <- ev
}

// Run drains the event channel until ctx is cancelled, dispatching each
// message and then running any deferred truncation broadcast — the
// realization of spec.md §5's single initiator-thread loop.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			if err := s.Dispatch(ctx, ev.Message); err != nil {
				s.log.Error().Err(err).Msg("dispatch failed")
			}
			s.Tick(ctx)
			if ev.Done != nil {
				close(ev.Done)
			}
		}
	}
}

// DrainEvents processes every currently-queued event without blocking;
// intended for tests that drive the scheduler without starting Run.
func (s *Scheduler) DrainEvents(ctx context.Context) {
	for {
		select {
		case ev := <-s.events:
			if err := s.Dispatch(ctx, ev.Message); err != nil {
				s.log.Error().Err(err).Msg("dispatch failed")
			}
			s.Tick(ctx)
			if ev.Done != nil {
				close(ev.Done)
			}
		default:
			return
		}
	}
}

// Tick runs any pending deferred truncation broadcast (spec.md §4.3):
// suppressed if an ordinary replicated message has already piggy-backed
// a fresher τ since it was scheduled.
func (s *Scheduler) Tick(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.truncTracker.HasPendingBroadcast() {
		s.truncTracker.RunScheduledBroadcast()
	}
}

// Dispatch classifies msg per spec.md §4.1 and applies it to scheduler
// state. It is the synchronous core the Run loop and DrainEvents both
// call under the partition mutex.
func (s *Scheduler) Dispatch(ctx context.Context, msg any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch m := msg.(type) {
	case InitiateTask:
		return s.handleInitiateTaskLocked(ctx, m)
	case InitiateResponse:
		return s.handleInitiateResponseLocked(ctx, m)
	case FragmentTask:
		return s.handleFragmentTaskLocked(ctx, m)
	case FragmentResponse:
		return s.handleFragmentResponseLocked(ctx, m)
	case CompleteTransactionMessage:
		return s.handleCompleteTransactionMessageLocked(ctx, m)
	case CompleteTransactionResponse:
		return s.handleCompleteTransactionResponseLocked(ctx, m)
	case BorrowTask:
		return s.handleBorrowTaskLocked(ctx, m)
	case DummyTransactionTask:
		return s.handleDummyTransactionTaskLocked(ctx, m)
	case DummyTransactionResponse:
		return s.handleDummyTransactionResponseLocked(ctx, m)
	case Iv2LogFaultMessage:
		return s.handleLogFaultMessageLocked(ctx, m)
	case RepairMessage:
		return s.handleRepairMessageLocked(ctx, m)
	case RepairLogTruncationMessage:
		return s.handleRepairLogTruncationLocked(ctx, m)
	case DumpMessage:
		return s.handleDumpMessageLocked(ctx, m)
	case DumpPlanThenExitMessage:
		return s.handleDumpPlanThenExitLocked(ctx, m)
	case durabilityResolved:
		s.notifyDurableLocked(ctx, m.T, m.Err)
		return nil
	default:
		return fmt.Errorf("sps: unrecognized message type %T", msg)
	}
}

// Fatal escalates reason/err to a cluster-fatal condition (spec.md §7):
// it logs, multicasts a coordinated-crash request to peers, and
// terminates the local process.
func (s *Scheduler) Fatal(reason string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fatalLocked(context.Background(), reason, err)
}

func (s *Scheduler) fatalLocked(ctx context.Context, reason string, err error) {
	dumpID := uuid.New().String()
	s.log.Error().Err(err).Str("reason", reason).Str("dump_id", dumpID).Int32("partition", s.partitionID).Msg("cluster-fatal condition")
	if s.Metrics != nil {
		s.Metrics.IncFatalTerminations()
	}
	if len(s.replicas) > 0 && s.mailbox != nil {
		if mErr := s.mailbox.Multicast(ctx, s.replicas, DumpPlanThenExitMessage{Reason: reason, DumpID: dumpID}); mErr != nil {
			s.log.Warn().Err(mErr).Msg("failed to multicast dump-plan-then-exit")
		}
	}
	if s.Terminate != nil {
		s.Terminate()
	}
}

// BroadcastTruncation implements trunc.Broadcaster. It is only invoked
// by trunc.Tracker.RunScheduledBroadcast, which this package only calls
// from Tick while already holding mu.
func (s *Scheduler) BroadcastTruncation(tau ids.SpHandle) {
	if len(s.replicas) == 0 || s.mailbox == nil {
		return
	}
	if err := s.mailbox.Multicast(context.Background(), s.replicas, RepairLogTruncationMessage{Tau: tau}); err != nil {
		s.log.Warn().Err(err).Msg("truncation broadcast failed")
	}
}

func (s *Scheduler) writeViableReplayEntryLocked(ctx context.Context) {
	if s.commandLog == nil || !s.faultLogEnabled {
		return
	}
	entry := FaultLogEntry{
		LeaderHSId:  s.self,
		ReplicaSet:  append([]ids.SiteID{s.self}, s.replicas...),
		PartitionID: ids.PartitionID(s.partitionID),
		HFault:      s.alloc.MaxScheduledH(),
	}
	if err := s.commandLog.WriteFaultLog(ctx, entry); err != nil {
		s.log.Error().Err(err).Msg("viable-replay fault log write failed")
	}
}

func (s *Scheduler) releaseBufferedReadsLocked(ctx context.Context) {
	entries := s.bufferedReads.Release(s.truncTracker.Tau())
	for _, e := range entries {
		if err := s.mailbox.Send(ctx, e.Dest, InitiateResponse{Results: e.Payload}); err != nil {
			s.log.Warn().Err(err).Msg("failed to deliver released buffered read")
		}
	}
	s.setBufferedReadDepthLocked()
}

func (s *Scheduler) offerTaskLocked(ctx context.Context, task Task) {
	if s.taskQueue != nil {
		s.taskQueue.Offer(ctx, task)
	}
}

// openCounterLocked opens a new duplicate counter and registers its
// completion continuation. Colliding with an already-open {T,H} is a
// protocol-invariant violation unless both openers are
// complete-transaction messages from distinct coordinators (spec.md
// §4.2's tie-break).
func (s *Scheduler) openCounterLocked(t ids.TxnID, h ids.SpHandle, expected []ids.SiteID, dest ids.SiteID, opened dupcounter.OpenedBy, onDone func(context.Context, dupcounter.Outcome, *dupcounter.Counter)) {
	key := dcKey{T: t, H: h}
	if existing, ok := s.counters.get(t, h); ok {
		if opened.IsCompleteTransaction && existing.OpenMessage.IsCompleteTransaction && opened.CoordinatorID != existing.OpenMessage.CoordinatorID {
			// Legal artefact of leader migration (spec.md §4.2); keep the
			// existing counter and its continuation.
			return
		}
		s.fatalLocked(context.Background(), "duplicate-counter collision", fmt.Errorf("sps: {%v,%v} already has an open counter", t, h))
		return
	}
	dc := dupcounter.New(t, h, expected, dest, opened)
	s.counters.put(dc)
	s.onDone[key] = onDone
}

// offerLocked feeds a replica response into the counter for {t,h}, if
// one is open, and handles the terminal outcome.
func (s *Scheduler) offerLocked(ctx context.Context, t ids.TxnID, h ids.SpHandle, resp dupcounter.Response) {
	key := dcKey{T: t, H: h}
	dc, ok := s.counters.get(t, h)
	if !ok {
		return
	}
	outcome, err := dc.Offer(resp)
	if err != nil {
		s.log.Warn().Err(err).Msg("duplicate counter rejected response")
		return
	}

	switch outcome {
	case dupcounter.Done:
		s.incCounterOutcomeLocked("DONE")
		cb := s.onDone[key]
		s.counters.delete(t, h)
		delete(s.onDone, key)
		if cb != nil {
			cb(ctx, outcome, dc)
		}
	case dupcounter.Mismatch:
		s.incCounterOutcomeLocked("MISMATCH")
		s.counters.delete(t, h)
		delete(s.onDone, key)
		s.fatalLocked(ctx, "HASH MISMATCH", fmt.Errorf("sps: {%v,%v} replica hash divergence", t, h))
	case dupcounter.Abort:
		s.incCounterOutcomeLocked("ABORT")
		s.counters.delete(t, h)
		delete(s.onDone, key)
		s.fatalLocked(ctx, "PARTIAL ABORT", fmt.Errorf("sps: {%v,%v} partial abort across replicas", t, h))
	}
}

func kindFor(isWrite bool) Kind {
	if isWrite {
		return KindSPWrite
	}
	return KindSPRead
}
