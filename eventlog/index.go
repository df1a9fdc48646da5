package eventlog

import "sort"

// aggregateIndex maps an aggregate key to the offsets of its frames, in
// append order. It is derived data: at any point it equals the result of
// replaying the whole log from the start, even though it is normally built
// incrementally on every append.
type aggregateIndex struct {
	byKey map[uint64][]uint64
}

func newAggregateIndex() *aggregateIndex {
	return &aggregateIndex{byKey: make(map[uint64][]uint64)}
}

// add records offset under key. Offsets arrive in strictly increasing order
// on the append path; on the rebuild path an offset already present for the
// key is skipped so that re-replaying an already-indexed region is
// idempotent (the log never reorders, so per-key offset lists are sorted).
func (ix *aggregateIndex) add(key, offset uint64) {
	list := ix.byKey[key]
	if n := len(list); n > 0 && offset <= list[n-1] {
		return
	}
	ix.byKey[key] = append(list, offset)
}

// offsets returns a copy of the offset list for key, nil if unseen.
func (ix *aggregateIndex) offsets(key uint64) []uint64 {
	list := ix.byKey[key]
	if list == nil {
		return nil
	}
	out := make([]uint64, len(list))
	copy(out, list)
	return out
}

// keys returns every indexed aggregate key in ascending order.
func (ix *aggregateIndex) keys() []uint64 {
	out := make([]uint64, 0, len(ix.byKey))
	for k := range ix.byKey {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
