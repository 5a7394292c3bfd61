package astiplay

import "github.com/asticode/go-astiav"

// Packet is an opaque compressed payload pulled from the source. Owned by
// the reader worker until queued, by the decoder worker thereafter, and
// released after decode submission.
type Packet struct {
	Data     []byte
	PTS      int64 // in TimeBase
	KeyFrame bool
	HasDur   bool
	Duration int64
	TimeBase astiav.Rational

	// Native is an adapter-owned handle to the underlying codec/container
	// object (e.g. an *astiav.Packet) backing this Packet, so a Decoder
	// implementation sharing the same adapter family can avoid a copy.
	// Capabilities that don't recognize the concrete type ignore it.
	Native any

	release func()
}

// Release returns the packet's backing buffer to its pool, if it came from
// one. Safe to call on a packet with no pool.
func (p *Packet) Release() {
	if p != nil && p.release != nil {
		p.release()
	}
}

// SetRelease attaches the pool-release hook a Source adapter uses to return
// this packet's backing storage once the pipeline is done with it.
func (p *Packet) SetRelease(release func()) { p.release = release }

// FramePayload is either a software pixel-plane set or an opaque
// hardware-buffer handle, matching spec.md §3's "payload (either a software
// pixel plane set or an opaque hardware buffer handle)".
type FramePayload interface {
	// isFramePayload is unexported so only this package's two payload kinds
	// (SoftwareFrame, HardwareFrame) can satisfy the interface.
	isFramePayload()
}

// SoftwareFrame is a decoded pixel-plane payload.
type SoftwareFrame struct {
	Planes [][]byte
	Stride []int
}

func (SoftwareFrame) isFramePayload() {}

// HardwareFrame is an opaque buffer handle owned by a hardware decoder
// adapter (§4.9); Handle is adapter-defined (e.g. a CVPixelBuffer pointer
// equivalent).
type HardwareFrame struct {
	Handle any
}

func (HardwareFrame) isFramePayload() {}

// Frame is a decoded image or audio block. PTS is always in canonical
// microsecond ts (see time.go) by the time a Frame leaves the decoder
// worker's emit callback; everything downstream assumes this.
type Frame struct {
	Payload FramePayload
	Width   int
	Height  int
	Format  astiav.PixelFormat

	// PTS is in TimeBase when a Decoder capability hands the frame to its
	// FrameEmitFunc, and in canonical microsecond ts (time.go) once the
	// decoder worker's async_queue_frame fixup rule has run and the frame
	// reaches frames_queue; everything downstream of that point assumes PTS
	// is canonical.
	PTS      int64
	TimeBase astiav.Rational

	// Native mirrors Packet.Native: an adapter-owned handle (e.g. an
	// *astiav.Frame) for capabilities in the same adapter family.
	Native any

	release func()
}

// Release returns the frame to its pool and, for hardware frames, credits
// the buffer-count governor (adapter-supplied release hook).
func (f *Frame) Release() {
	if f != nil && f.release != nil {
		f.release()
	}
}

// SetRelease attaches the pool-release/governor-credit hook a Decoder
// adapter uses to reclaim this frame's backing storage once the pipeline is
// done with it.
func (f *Frame) SetRelease(release func()) { f.release = release }

// MessageKind tags the sum type flowing through the packet queue.
type MessageKind int

const (
	// MessageKindPacket carries a Packet.
	MessageKindPacket MessageKind = iota
	// MessageKindSeek carries a seek target in canonical ts.
	MessageKindSeek
)

// Message is the packet queue's tagged union: Packet(payload) | Seek(target),
// per spec.md §3 ("Queue message. Tagged union"). Seek messages share the
// packet queue so ordering with packets is preserved.
type Message struct {
	Kind       MessageKind
	Packet     *Packet
	SeekTarget int64
}

// Release releases the message's owned resources (its Packet, if any) on
// queue teardown, matching spec.md §4.1's "the queue owns unsent/undelivered
// items and must release them."
func (m Message) Release() {
	if m.Kind == MessageKindPacket {
		m.Packet.Release()
	}
}
