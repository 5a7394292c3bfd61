package astiplay

import (
	"context"
	"errors"

	"github.com/asticode/go-astiav"
)

// ErrEAgain is the source's "nothing available yet, retry" condition. Unlike
// ErrEOF it never latches a queue; the reader worker sleeps and retries.
var ErrEAgain = errors.New("astiplay: eagain")

// Source is the byte-level collaborator (spec.md §6). Implementations pull
// compressed packets from a seekable container and honor seeks by canonical
// ts. The software/hardware codec and the container format are external
// collaborators; pkg/astiavsrc supplies concrete astiav-backed adapters.
type Source interface {
	// PullPacket returns the next packet, ErrEAgain (retryable), ErrEOF, or
	// another error.
	PullPacket(ctx context.Context) (*Packet, error)
	// Seek repositions the source at or before canonicalTS.
	Seek(ctx context.Context, canonicalTS int64) error
}

// FrameEmitFunc is the decoder capability's callback for each frame it
// produces, the Go shape of spec.md §6's "must call back into
// async_queue_frame(ctx, frame_or_null) for each emitted frame, with null
// signalling end-of-stream for this segment." It may be invoked from any
// goroutine, including ones the Decoder implementation owns internally
// (§4.9's "decode callback may run on any thread").
type FrameEmitFunc func(frame *Frame) error

// DecoderOptions carries the subset of Options (see options.go) a decoder
// capability needs at Init.
type DecoderOptions struct {
	AutoHWAccel         bool
	UsePacketDuration    bool
	MaxPixels            int
	SWPixelFormat        astiav.PixelFormat
	Autorotate           bool
	ExportMotionVectors  bool
}

// Decoder is the codec collaborator (spec.md §6). A single Flush covers both
// uses the decoder worker makes of it: draining on seek (whose output the
// worker discards) and draining on upstream EOF (whose output the worker
// keeps). Frames are always delivered through the FrameEmitFunc passed to
// Init, never as a PushPacket return value, so synchronous (software) and
// asynchronous (hardware, §4.9) implementations share one interface.
type Decoder interface {
	Init(ctx context.Context, opts DecoderOptions, emit FrameEmitFunc) error
	// PushPacket submits pkt for decode. The decoder capability calls emit
	// for every frame the packet produces before PushPacket returns, for a
	// synchronous implementation; an asynchronous one may return before emit
	// has been called for this packet's frames.
	PushPacket(ctx context.Context, pkt *Packet) error
	// Flush drains whatever the decoder is holding internally, calling emit
	// for each buffered frame in presentation order, then emit(nil) once
	// drain is complete. It does not tear down the decoder; PushPacket may
	// be called again afterward.
	Flush(ctx context.Context) error
	Uninit(ctx context.Context) error
}

// FormatHint tells a Filter what frame shape to expect, mirroring the
// teacher's frame_filterer.go configuration surface (content/pixel format)
// without needing the frame itself.
type FormatHint struct {
	Width    int
	Height   int
	Format   astiav.PixelFormat
	TimeBase astiav.Rational
}

// Filter is the filter-graph collaborator (spec.md §6). It owns its own
// pull-transform-push loop once Run is called, pulling from in and pushing
// to out until in's receive-side latch is observed, matching the capability
// signature spec.md §6 specifies directly (init(in_queue,out_queue,hint),
// run() blocking, uninit(), free()).
type Filter interface {
	Init(ctx context.Context, in FrameQueue, out FrameQueue, hint FormatHint) error
	Run(ctx context.Context) error
	Uninit(ctx context.Context) error
	Free(ctx context.Context) error
}

// FrameQueue is the minimal queue surface Filter needs, satisfied by
// *queue.Queue[*Frame]; kept as an interface here so pkg/astiplay does not
// import pkg/queue's generic instantiation directly into the capability
// contract.
type FrameQueue interface {
	Send(f *Frame) error
	Recv() (*Frame, error)
}
