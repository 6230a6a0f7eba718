/*
Package transport implements pkg/sps.Mailbox over gRPC: one persistent
bidirectional stream per peer site, carrying gob-encoded pkg/sps message
values instead of protoc-generated protobuf messages.

# Architecture

	┌──────────────────── MAILBOX TRANSPORT ────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │              Mailbox                         │          │
	│  │  - Send/Multicast (sps.Mailbox)              │          │
	│  │  - Serve() accepts inbound peer streams      │          │
	│  │  - one peerClient per destination site       │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         gRPC bidi stream (per peer)          │          │
	│  │  - hand-written ServiceDesc (no protoc)      │          │
	│  │  - gob codec, not the protobuf wire format   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Envelope                        │          │
	│  │  - From, To, SentAt, Msg (any)                │          │
	│  └────────────────────────────────────────────┘           │
	└──────────────────────────────────────────────────────────┘

# Why gob over gRPC instead of protobuf messages

This module cannot run protoc, so there is no generated message set to
exchange. gRPC's encoding.Codec interface only requires Marshal/Unmarshal
over interface{} — it does not require a proto.Message — so a gob codec
(registered in codec.go, requested per-stream via
grpc.CallContentSubtype) carries pkg/sps's plain Go structs instead.
google.golang.org/protobuf is still used, but only for its prebuilt
timestamppb.Timestamp helper on Envelope.SentAt.

The service/stream stubs in service.go are written by hand in the same
shape protoc-gen-go-grpc would generate from a .proto file: a
grpc.ServiceDesc with one bidirectional-streaming method, and
client/server wrapper types around grpc.ClientStream/grpc.ServerStream.

# Core Components

Mailbox:
  - Implements sps.Mailbox's Send/Multicast
  - Serve accepts inbound connections and registers this process as a
    TransportServer; Stream reads one peer's Envelopes in arrival order
    and hands each to the registered Dispatcher (pkg/sps.Scheduler)
  - AddPeer/RemovePeer manage the known replica-set addresses;
    cmd/sps-node calls AddPeer once per configured replica at startup,
    and nothing in this module updates them on a replica set change

peerClient:
  - One persistent outbound stream per destination site, dialed lazily
    on first Send and redialed after any stream error

Envelope:
  - The wire struct: From, To, SentAt (timestamppb.Timestamp), and Msg
    (any of pkg/sps's message types, gob.Register'd in envelope.go)

# Usage

	// dispatcher forwards to the scheduler once it has been built
	mailbox := transport.New(selfSite, dispatcher, metricsCollector)
	scheduler, err := sps.New(selfSite, cfg.PartitionID, mailbox, logger, replaySources)
	if err != nil {
		log.Fatal(err)
	}
	if err := mailbox.Serve(cfg.TransportAddr); err != nil {
		log.Fatal(err)
	}
	for _, r := range cfg.Replicas {
		if r.SiteID != cfg.SiteID {
			mailbox.AddPeer(ids.SiteID(r.SiteID), r.Addr)
		}
	}

# Integration Points

This package integrates with:

  - pkg/sps: Mailbox satisfies sps.Mailbox; Scheduler.Dispatch satisfies
    Dispatcher
  - pkg/metrics: Collector satisfies SendObserver via ObserveTransportSend
  - cmd/sps-node: constructs and starts the Mailbox during startup

# Design Patterns

Per-peer stream, not per-message RPC:
  - A single long-lived bidirectional stream per destination preserves
    the per-source FIFO ordering spec.md requires without an extra
    sequencing layer: gRPC delivers a stream's messages in send order,
    and Stream's receive loop processes them one at a time

Lazy reconnect:
  - peerClient dials on first use and on any send error, rather than
    maintaining a background reconnect loop, keeping failure handling on
    the caller's own goroutine and timeout
*/
package transport
