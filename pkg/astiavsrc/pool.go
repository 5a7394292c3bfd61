// Package astiavsrc supplies concrete, github.com/asticode/go-astiav-backed
// implementations of the Source/Decoder/Filter capabilities pkg/astiplay
// defines, so the pipeline can run against real media files.
package astiavsrc

import (
	"sync"
	"sync/atomic"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
)

// DeltaStat names for the pools below, mirroring the teacher's per-pool
// allocation counters.
const (
	DeltaStatNameAllocatedFrames  = "astiavsrc_allocated_frames"
	DeltaStatNameAllocatedPackets = "astiavsrc_allocated_packets"
)

// framePool reuses *astiav.Frame allocations across pipeline stages, adapted
// from the teacher's pkg/libs/astiav/frame_pool.go.
type framePool struct {
	c  *astikit.Closer
	mu sync.Mutex
	fs []*astiav.Frame

	allocated uint64
}

func newFramePool(c *astikit.Closer) *framePool {
	return &framePool{c: c}
}

func (fp *framePool) get() *astiav.Frame {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	if len(fp.fs) == 0 {
		f := astiav.AllocFrame()
		atomic.AddUint64(&fp.allocated, 1)
		fp.c.Add(f.Free)
		return f
	}

	f := fp.fs[0]
	fp.fs = fp.fs[1:]
	return f
}

func (fp *framePool) put(f *astiav.Frame) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	f.Unref()
	fp.fs = append(fp.fs, f)
}

func (fp *framePool) deltaStats() []astikit.DeltaStat {
	return []astikit.DeltaStat{
		{
			Metadata: astikit.DeltaStatMetadata{
				Description: "Number of allocated frames",
				Label:       "Allocated frames",
				Name:        DeltaStatNameAllocatedFrames,
				Unit:        "f",
			},
			Valuer: astikit.NewAtomicUint64CumulativeDeltaStat(&fp.allocated),
		},
	}
}

// packetPool reuses *astiav.Packet allocations, adapted from the teacher's
// pkg/libs/astiav/packet_pool.go.
type packetPool struct {
	c  *astikit.Closer
	mu sync.Mutex
	ps []*astiav.Packet

	allocated uint64
}

func newPacketPool(c *astikit.Closer) *packetPool {
	return &packetPool{c: c}
}

func (pp *packetPool) get() *astiav.Packet {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	if len(pp.ps) == 0 {
		pkt := astiav.AllocPacket()
		atomic.AddUint64(&pp.allocated, 1)
		pp.c.Add(pkt.Free)
		return pkt
	}

	pkt := pp.ps[0]
	pp.ps = pp.ps[1:]
	return pkt
}

func (pp *packetPool) put(pkt *astiav.Packet) {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	pkt.Unref()
	pp.ps = append(pp.ps, pkt)
}

func (pp *packetPool) deltaStats() []astikit.DeltaStat {
	return []astikit.DeltaStat{
		{
			Metadata: astikit.DeltaStatMetadata{
				Description: "Number of allocated packets",
				Label:       "Allocated packets",
				Name:        DeltaStatNameAllocatedPackets,
				Unit:        "p",
			},
			Valuer: astikit.NewAtomicUint64CumulativeDeltaStat(&pp.allocated),
		},
	}
}
