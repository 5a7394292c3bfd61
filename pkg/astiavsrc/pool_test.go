package astiavsrc

import (
	"testing"
	"time"

	"github.com/asticode/go-astikit"
	"github.com/stretchr/testify/require"
)

func TestFramePoolDeltaStats(t *testing.T) {
	c := astikit.NewCloser()
	defer c.Close()
	fp := newFramePool(c)

	ss := fp.deltaStats()
	require.Len(t, ss, 1)
	require.Equal(t, DeltaStatNameAllocatedFrames, ss[0].Metadata.Name)

	f1 := fp.get()
	require.Len(t, fp.fs, 0)
	require.Equal(t, uint64(1), ss[0].Valuer.Value(time.Second))

	f2 := fp.get()
	require.NotSame(t, f1, f2)
	require.Equal(t, uint64(2), ss[0].Valuer.Value(time.Second))

	fp.put(f1)
	require.Len(t, fp.fs, 1)
	require.Equal(t, uint64(2), ss[0].Valuer.Value(time.Second))

	f3 := fp.get()
	require.Same(t, f1, f3)
	require.Equal(t, uint64(2), ss[0].Valuer.Value(time.Second))
}

func TestPacketPoolDeltaStats(t *testing.T) {
	c := astikit.NewCloser()
	defer c.Close()
	pp := newPacketPool(c)

	ss := pp.deltaStats()
	require.Len(t, ss, 1)
	require.Equal(t, DeltaStatNameAllocatedPackets, ss[0].Metadata.Name)

	pkt1 := pp.get()
	require.Equal(t, uint64(1), ss[0].Valuer.Value(time.Second))

	pkt2 := pp.get()
	require.NotSame(t, pkt1, pkt2)
	require.Equal(t, uint64(2), ss[0].Valuer.Value(time.Second))

	pp.put(pkt1)
	require.Len(t, pp.ps, 1)
	require.Equal(t, uint64(2), ss[0].Valuer.Value(time.Second))
}
