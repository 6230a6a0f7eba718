package sps

import "github.com/Kernelock/voltdb/pkg/ids"

// Kind classifies a transaction state (spec.md §3).
type Kind int

const (
	KindSPWrite Kind = iota
	KindSPRead
	KindMPParticipant
	KindMPBorrow
	KindDummy
)

func (k Kind) String() string {
	switch k {
	case KindSPWrite:
		return "SP-write"
	case KindSPRead:
		return "SP-read"
	case KindMPParticipant:
		return "MP-participant"
	case KindMPBorrow:
		return "MP-borrow"
	case KindDummy:
		return "Dummy"
	default:
		return "unknown"
	}
}

// TxnState is the one-per-outstanding-T record from spec.md §3. It is
// created on the first message for T (an initiate or first fragment),
// mutated as execution proceeds, and removed once the final response has
// been aggregated and Done is set, or at the end of a read-only MP final
// fragment.
type TxnState struct {
	T        ids.TxnID
	Kind     Kind
	FirstH   ids.SpHandle
	ReadOnly bool
	Done     bool
	// Notice is the message that created this state, kept for
	// diagnostics only.
	Notice any
}
