package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/Kernelock/voltdb/pkg/ids"
	"github.com/Kernelock/voltdb/pkg/log"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Dispatcher receives a decoded message addressed to this site, in the
// order it arrived from each individual peer. pkg/sps.Scheduler.Dispatch
// satisfies this directly.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg any) error
}

// SendObserver receives a (kind, direction, duration) sample for every
// message handed to or received from the transport; pkg/metrics.Collector
// satisfies this via ObserveTransportSend.
type SendObserver interface {
	ObserveTransportSend(kind, direction string, d time.Duration)
}

// Mailbox implements pkg/sps.Mailbox over gRPC: one persistent
// bidirectional stream per peer, so messages from a given source arrive
// in the order they were sent (spec.md's per-source FIFO requirement)
// without any additional sequencing layer in this package.
type Mailbox struct {
	self     ids.SiteID
	dispatch Dispatcher
	observer SendObserver
	log      zerolog.Logger

	server   *grpc.Server
	listener net.Listener

	mu    sync.Mutex
	peers map[ids.SiteID]*peerClient
}

// New constructs a Mailbox. dispatch receives every decoded message
// addressed to self; observer may be nil.
func New(self ids.SiteID, dispatch Dispatcher, observer SendObserver) *Mailbox {
	return &Mailbox{
		self:     self,
		dispatch: dispatch,
		observer: observer,
		log:      log.WithComponent("transport"),
		peers:    make(map[ids.SiteID]*peerClient),
	}
}

// AddPeer registers the dial address for a replica site. Sites not yet
// registered cannot be reached by Send/Multicast.
func (m *Mailbox) AddPeer(site ids.SiteID, addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.peers[site]; ok {
		return
	}
	m.peers[site] = &peerClient{addr: addr}
}

// RemovePeer drops a peer connection, e.g. after RemoveServer during a
// k-safety-affecting fault.
func (m *Mailbox) RemovePeer(site ids.SiteID) {
	m.mu.Lock()
	pc, ok := m.peers[site]
	delete(m.peers, site)
	m.mu.Unlock()
	if ok {
		pc.close()
	}
}

// Serve starts accepting inbound peer connections on addr. It returns
// once the listener is up; Stream handling runs on grpc.Server's own
// goroutines.
func (m *Mailbox) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	m.listener = lis
	m.server = grpc.NewServer()
	RegisterTransportServer(m.server, m)

	go func() {
		if err := m.server.Serve(lis); err != nil {
			m.log.Error().Err(err).Msg("transport server stopped")
		}
	}()
	return nil
}

// Stop gracefully stops the inbound server and closes every outbound
// peer connection.
func (m *Mailbox) Stop() {
	if m.server != nil {
		m.server.GracefulStop()
	}
	m.mu.Lock()
	peers := m.peers
	m.peers = make(map[ids.SiteID]*peerClient)
	m.mu.Unlock()
	for _, pc := range peers {
		pc.close()
	}
}

// Stream implements TransportServer: reads Envelopes from one inbound
// peer stream and dispatches each in arrival order.
func (m *Mailbox) Stream(stream Transport_StreamServer) error {
	for {
		env, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		start := time.Now()
		if err := m.dispatch.Dispatch(context.Background(), env.Msg); err != nil {
			m.log.Error().Err(err).
				Int32("from", int32(env.From)).
				Msg("dispatch failed")
		}
		if m.observer != nil {
			m.observer.ObserveTransportSend(fmt.Sprintf("%T", env.Msg), "in", time.Since(start))
		}
	}
}

// Send implements sps.Mailbox.
func (m *Mailbox) Send(ctx context.Context, dest ids.SiteID, msg any) error {
	pc := m.peer(dest)
	if pc == nil {
		return fmt.Errorf("transport: no peer registered for site %d", dest)
	}

	start := time.Now()
	err := pc.send(ctx, &Envelope{
		From:   m.self,
		To:     dest,
		SentAt: timestamppb.New(start),
		Msg:    msg,
	})
	if m.observer != nil {
		m.observer.ObserveTransportSend(fmt.Sprintf("%T", msg), "out", time.Since(start))
	}
	return err
}

// Multicast implements sps.Mailbox. It sends to every destination and
// returns the first error encountered, after attempting all of them —
// a failure on one replica link must not prevent delivery to the others.
func (m *Mailbox) Multicast(ctx context.Context, dests []ids.SiteID, msg any) error {
	var firstErr error
	for _, dest := range dests {
		if err := m.Send(ctx, dest, msg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Mailbox) peer(site ids.SiteID) *peerClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peers[site]
}

// peerClient owns the single outbound stream to one peer, dialing and
// re-opening it lazily on first use or after a send failure.
type peerClient struct {
	addr string

	mu     sync.Mutex
	conn   *grpc.ClientConn
	stream Transport_StreamClient
}

func (p *peerClient) send(ctx context.Context, env *Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		if err := p.dialLocked(ctx); err != nil {
			return err
		}
	}

	if err := p.stream.Send(env); err != nil {
		p.resetLocked()
		return fmt.Errorf("transport: send to %s: %w", p.addr, err)
	}
	return nil
}

func (p *peerClient) dialLocked(ctx context.Context) error {
	conn, err := grpc.NewClient(p.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", p.addr, err)
	}
	client := NewTransportClient(conn)
	stream, err := client.Stream(ctx)
	if err != nil {
		conn.Close()
		return fmt.Errorf("transport: open stream to %s: %w", p.addr, err)
	}
	p.conn = conn
	p.stream = stream
	return nil
}

func (p *peerClient) resetLocked() {
	if p.conn != nil {
		p.conn.Close()
	}
	p.conn = nil
	p.stream = nil
}

func (p *peerClient) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
}
