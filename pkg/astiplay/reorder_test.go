package astiplay

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeGov struct{ adjustments []int }

func (g *fakeGov) AdjustMax(delta int) { g.adjustments = append(g.adjustments, delta) }

func TestReorderEmitsInTSOrderAsTheyBecomeSafe(t *testing.T) {
	gov := &fakeGov{}
	r := NewReorder(gov)

	// Frame arrives in decode order 20, 10, 30: 10 is earlier than the
	// current head, so it just inserts; 30 walks past 10 and 20 (both < 30),
	// flushing them in order, then stays buffered on its own.
	require.Empty(t, r.Insert(20, "a"))
	require.Empty(t, r.Insert(10, "b"))
	ready := r.Insert(30, "c")
	require.Len(t, ready, 2)
	require.Equal(t, int64(10), ready[0].TS)
	require.Equal(t, "b", ready[0].Item)
	require.Equal(t, int64(20), ready[1].TS)
	require.Equal(t, "a", ready[1].Item)

	require.Equal(t, 1, r.Len())

	// A late-arriving frame with ts=25 passes nothing (30 is not < 25), so
	// it flushes nothing and inserts itself before 30.
	ready = r.Insert(25, "d")
	require.Empty(t, ready)

	require.Equal(t, 2, r.Len()) // 25 and 30 remain buffered
}

func TestReorderInsertAdjustsGovernorMaxByOnePerEntry(t *testing.T) {
	gov := &fakeGov{}
	r := NewReorder(gov)

	r.Insert(1, "a")
	// 2 passes over 1, so max goes -1 for 1 leaving then +1 for 2 entering.
	r.Insert(2, "b")
	require.Equal(t, []int{1, -1, 1}, gov.adjustments)

	// 3 passes over 2 (the only entry left), so again -1 then +1.
	r.Insert(3, "c")
	require.Equal(t, []int{1, -1, 1, -1, 1}, gov.adjustments)
}

func TestReorderDrainFlushesEverythingInOrder(t *testing.T) {
	gov := &fakeGov{}
	r := NewReorder(gov)
	r.Insert(5, "a")
	r.Insert(1, "b")
	r.Insert(3, "c") // passes over 1, which Insert returns; 3 and 5 stay buffered

	out := r.Drain()
	require.Len(t, out, 2)
	require.Equal(t, []int64{3, 5}, []int64{out[0].TS, out[1].TS})
	require.Equal(t, 0, r.Len())
}

func TestReorderEmptyInsertJustAddsHead(t *testing.T) {
	gov := &fakeGov{}
	r := NewReorder(gov)
	ready := r.Insert(42, "only")
	require.Empty(t, ready)
	require.Equal(t, 1, r.Len())
}
