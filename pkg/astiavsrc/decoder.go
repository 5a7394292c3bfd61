package astiavsrc

import (
	"context"
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/asticode/go-astiplay/pkg/astiplay"
)

// codecContextReader is the subset of *astiav.CodecContext CodecContextDecoder
// drives, narrowed the way the teacher's decoderReader interface narrows it
// (pkg/libs/astiav/decoder.go).
type codecContextReader interface {
	Free()
	FromCodecParameters(cp *astiav.CodecParameters) error
	Open(c *astiav.Codec, d *astiav.Dictionary) error
	ReceiveFrame(f *astiav.Frame) error
	SendPacket(p *astiav.Packet) error
	SetThreadCount(int)
	SetThreadType(astiav.ThreadType)
	TimeBase() astiav.Rational
}

var newCodecContextReader = func(c *astiav.Codec) codecContextReader {
	return astiav.AllocCodecContext(c)
}

// CodecContextDecoder is a software astiplay.Decoder backed by
// *astiav.CodecContext, grounded on the teacher's Decoder.createReader/
// decode/receiveFrame (pkg/libs/astiav/decoder.go), collapsed from the
// flow-graph's per-parent reader-refresh machinery to the single fixed
// stream a media session decodes.
type CodecContextDecoder struct {
	stream *astiav.Stream
	logger astikit.CompleteLogger

	r    codecContextReader
	pool *framePool
	emit astiplay.FrameEmitFunc
}

// NewCodecContextDecoder constructs a decoder bound to stream; call Init to
// open the codec context.
func NewCodecContextDecoder(stream *astiav.Stream, logger astikit.CompleteLogger) *CodecContextDecoder {
	if logger == nil {
		logger = astikit.AdaptStdLogger(nil)
	}
	return &CodecContextDecoder{stream: stream, logger: logger}
}

func (d *CodecContextDecoder) Init(_ context.Context, opts astiplay.DecoderOptions, emit astiplay.FrameEmitFunc) error {
	cp := d.stream.CodecParameters()
	codec := astiav.FindDecoder(cp.CodecID())
	if codec == nil {
		return astiplay.NewError(astiplay.ErrKindUnsupported, "astiavsrc.decoder.init", fmt.Errorf("no decoder found for codec id %s", cp.CodecID()))
	}

	r := newCodecContextReader(codec)
	if err := r.FromCodecParameters(cp); err != nil {
		return astiplay.NewError(astiplay.ErrKindUnsupported, "astiavsrc.decoder.init", fmt.Errorf("initializing reader with codec parameters failed: %w", err))
	}
	if err := r.Open(codec, nil); err != nil {
		r.Free()
		return astiplay.NewError(astiplay.ErrKindUnsupported, "astiavsrc.decoder.init", fmt.Errorf("opening reader failed: %w", err))
	}

	d.r = r
	d.pool = newFramePool(astikit.NewCloser())
	d.emit = emit
	return nil
}

func (d *CodecContextDecoder) PushPacket(_ context.Context, pkt *astiplay.Packet) error {
	native, _ := pkt.Native.(*astiav.Packet)
	if err := d.r.SendPacket(native); err != nil {
		return astiplay.NewError(astiplay.ErrKindDecoder, "astiavsrc.decoder.push_packet", err)
	}
	return d.drainReceive()
}

// Flush drains whatever the codec context is holding: a nil SendPacket per
// avcodec's drain-mode contract, then ReceiveFrame until EAGAIN/EOF,
// mirroring the teacher's Decoder.flush/decode(nil, pd) call.
func (d *CodecContextDecoder) Flush(_ context.Context) error {
	if err := d.r.SendPacket(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
		return astiplay.NewError(astiplay.ErrKindDecoder, "astiavsrc.decoder.flush", err)
	}
	if err := d.drainReceive(); err != nil {
		return err
	}
	return d.emit(nil)
}

func (d *CodecContextDecoder) drainReceive() error {
	for {
		f := d.pool.get()
		if err := d.r.ReceiveFrame(f); err != nil {
			d.pool.put(f)
			if errors.Is(err, astiav.ErrEof) || errors.Is(err, astiav.ErrEagain) {
				return nil
			}
			return astiplay.NewError(astiplay.ErrKindDecoder, "astiavsrc.decoder.receive_frame", err)
		}

		frame := d.toFrame(f)
		if err := d.emit(frame); err != nil {
			return err
		}
	}
}

func (d *CodecContextDecoder) toFrame(f *astiav.Frame) *astiplay.Frame {
	out := &astiplay.Frame{
		Width:    f.Width(),
		Height:   f.Height(),
		Format:   f.PixelFormat(),
		PTS:      f.Pts(),
		TimeBase: d.r.TimeBase(),
		Native:   f,
	}
	// Data().Bytes packs the frame's planes into one contiguous buffer
	// (linesize padding stripped), so a single-plane payload is enough here;
	// a hardware adapter populates HardwareFrame instead (hwdecoder.go).
	if buf, err := f.Data().Bytes(1); err == nil {
		out.Payload = astiplay.SoftwareFrame{Planes: [][]byte{buf}}
	}
	out.SetRelease(func() { d.pool.put(f) })
	return out
}

func (d *CodecContextDecoder) Uninit(_ context.Context) error {
	if d.r != nil {
		d.r.Free()
	}
	return nil
}

// DeltaStats exposes the frame pool's allocation counters, mirroring the
// teacher's Decoder.DeltaStats (pkg/libs/astiav/decoder.go). Returns nil
// before Init has allocated the pool.
func (d *CodecContextDecoder) DeltaStats() []astikit.DeltaStat {
	if d.pool == nil {
		return nil
	}
	return d.pool.deltaStats()
}
