// Package ids collects the small identifier types shared across the
// scheduler's component packages, breaking an otherwise-circular
// dependency between them and the top-level dispatch loop.
package ids

import "github.com/Kernelock/voltdb/pkg/spshandle"

// SiteID identifies a replica (a host/site) within a partition's replica
// set.
type SiteID int32

// PartitionID identifies a partition within the cluster.
type PartitionID int32

// TxnID (T) identifies a transaction. For single-partition writes on the
// leader T == H; for multi-partition and replayed transactions T is
// assigned upstream and may differ from the local H.
type TxnID int64

// SpHandle (H) is the per-partition monotonically increasing identifier;
// re-exported from pkg/spshandle so component packages need not import the
// allocator itself.
type SpHandle = spshandle.SpHandle

// UniqueID (U) is the command log's idempotency/DR identifier;
// re-exported from pkg/spshandle for the same reason.
type UniqueID = spshandle.UniqueID
