package astiplay

// reorderEntry is one (ts, handle) pair held in a Reorder buffer, the Go
// shape of decoder_vt.c's intrusive struct async_frame linked-list node.
type reorderEntry struct {
	ts   int64
	item any
}

// Reorder converts decode-order delivery into presentation order with
// bounded lookahead (spec.md §4.3). It is grounded on
// original_source/decoder_vt.c's decode_callback: an ordered slice replaces
// the original's intrusive singly-linked list per spec.md §9's
// recommendation ("any container giving O(log n) or O(n) insert is fine; n
// is bounded small").
//
// Reorder is owned by the hardware decode callback thread family only; the
// decoder worker never touches it directly (spec.md §5).
type Reorder struct {
	entries []reorderEntry
	gov     govAdjuster
}

// govAdjuster is the subset of *governor.Governor Reorder needs, kept as an
// interface so this package does not import pkg/governor directly into its
// public API.
type govAdjuster interface {
	AdjustMax(delta int)
}

// NewReorder creates an empty reorder buffer backed by gov, whose AdjustMax
// is called once per entry that enters or leaves the buffer.
func NewReorder(gov govAdjuster) *Reorder {
	return &Reorder{gov: gov}
}

// Len reports how many entries are currently buffered.
func (r *Reorder) Len() int {
	return len(r.entries)
}

// Insert adds (ts, item) in ts order and returns every entry now safe to
// emit: every buffered entry whose ts is strictly less than the new one's,
// in ascending ts order, per §4.3's "walk forward: every node whose ts is
// strictly less than the new frame's ts is now safe to emit... then insert
// the new frame."
func (r *Reorder) Insert(ts int64, item any) []reorderEntryResult {
	var ready []reorderEntryResult

	pos := 0
	for pos < len(r.entries) && r.entries[pos].ts < ts {
		ready = append(ready, reorderEntryResult{TS: r.entries[pos].ts, Item: r.entries[pos].item})
		pos++
	}

	// Entries [0, pos) are the ones walked past ("passed a frame, which as a
	// result becomes a valid frame to push"); drop them from the buffer and
	// credit the governor's cap for each. Since the buffer is kept sorted,
	// every remaining entry already has ts >= the new one's, so the new
	// entry's sorted position is always the new front.
	if pos > 0 {
		r.entries = r.entries[pos:]
		for range ready {
			r.gov.AdjustMax(-1)
		}
	}

	r.entries = append(r.entries, reorderEntry{})
	copy(r.entries[1:], r.entries[:len(r.entries)-1])
	r.entries[0] = reorderEntry{ts: ts, item: item}
	r.gov.AdjustMax(1)

	return ready
}

// reorderEntryResult is a flushed (ts, item) pair, returned in ascending ts
// order by Insert and Drain.
type reorderEntryResult struct {
	TS   int64
	Item any
}

// Drain flushes every remaining entry in ts order, crediting the governor's
// cap for each, per §4.3's "a full flush of the buffer (at EOS or drop)
// emits everything remaining in ts order."
func (r *Reorder) Drain() []reorderEntryResult {
	out := make([]reorderEntryResult, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, reorderEntryResult{TS: e.ts, Item: e.item})
		r.gov.AdjustMax(-1)
	}
	r.entries = nil
	return out
}
