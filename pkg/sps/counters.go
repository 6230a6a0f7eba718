package sps

import (
	"sort"

	"github.com/Kernelock/voltdb/pkg/dupcounter"
	"github.com/Kernelock/voltdb/pkg/ids"
)

// dcKey identifies a duplicate counter by {T, H} (spec.md §3 invariant 1).
type dcKey struct {
	T ids.TxnID
	H ids.SpHandle
}

// counterIndex is the hash-map-plus-ordered-collection structure
// spec.md §9 calls for: byKey gives O(1) lookup, byT gives the T-order
// enumeration updateReplicas needs to finalize DONE counters in T order
// so response ordering (P2) is preserved across a membership change.
type counterIndex struct {
	byKey map[dcKey]*dupcounter.Counter
	byT   map[ids.TxnID][]ids.SpHandle
}

func newCounterIndex() *counterIndex {
	return &counterIndex{
		byKey: make(map[dcKey]*dupcounter.Counter),
		byT:   make(map[ids.TxnID][]ids.SpHandle),
	}
}

func (c *counterIndex) put(dc *dupcounter.Counter) {
	key := dcKey{T: dc.TxnID, H: dc.H}
	if _, exists := c.byKey[key]; !exists {
		c.byT[dc.TxnID] = append(c.byT[dc.TxnID], dc.H)
	}
	c.byKey[key] = dc
}

func (c *counterIndex) get(t ids.TxnID, h ids.SpHandle) (*dupcounter.Counter, bool) {
	dc, ok := c.byKey[dcKey{T: t, H: h}]
	return dc, ok
}

func (c *counterIndex) delete(t ids.TxnID, h ids.SpHandle) {
	delete(c.byKey, dcKey{T: t, H: h})
	hs := c.byT[t]
	for i, hh := range hs {
		if hh == h {
			c.byT[t] = append(hs[:i], hs[i+1:]...)
			break
		}
	}
	if len(c.byT[t]) == 0 {
		delete(c.byT, t)
	}
}

// orderedKeys returns every outstanding {T,H} key sorted by T then H,
// for the drain-in-T-order pass of updateReplicas (spec.md §4.7).
func (c *counterIndex) orderedKeys() []dcKey {
	ts := make([]ids.TxnID, 0, len(c.byT))
	for t := range c.byT {
		ts = append(ts, t)
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })

	keys := make([]dcKey, 0, len(c.byKey))
	for _, t := range ts {
		hs := append([]ids.SpHandle(nil), c.byT[t]...)
		sort.Slice(hs, func(i, j int) bool { return hs[i] < hs[j] })
		for _, h := range hs {
			keys = append(keys, dcKey{T: t, H: h})
		}
	}
	return keys
}
