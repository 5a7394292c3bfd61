package astiavsrc

import (
	"context"
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/asticode/go-astiplay/pkg/astiplay"
)

// formatContextReader is the subset of *astiav.FormatContext FormatContextSource
// drives, narrowed to ease faking in tests. Adapted from the teacher's
// demuxerReader interface (pkg/libs/astiav/demuxer.go).
type formatContextReader interface {
	CloseInput()
	FindStreamInfo(d *astiav.Dictionary) error
	Free()
	OpenInput(url string, fmt *astiav.InputFormat, d *astiav.Dictionary) error
	ReadFrame(p *astiav.Packet) error
	SeekFrame(streamIndex int, timestamp int64, f astiav.SeekFlags) error
	Streams() []*astiav.Stream
}

var newFormatContextReader = func() formatContextReader {
	return astiav.AllocFormatContext()
}

// FormatContextSource is an astiplay.Source backed by a demuxed container,
// grounded on the teacher's Demuxer.Open/readFrame/nextPacket
// (pkg/libs/astiav/demuxer.go), stripped of the flow-graph dispatch and
// emulate-rate/loop concerns that belong to a live-streaming demuxer rather
// than a single-stream media player.
type FormatContextSource struct {
	c      *astikit.Closer
	logger astikit.CompleteLogger

	r       formatContextReader
	stream  *astiav.Stream
	pool    *packetPool

	selectKind astiplay.AVSelect
}

// FormatContextSourceOptions configures which stream FormatContextSource
// reads from a multi-stream container.
type FormatContextSourceOptions struct {
	AVSelect astiplay.AVSelect
	Logger   astikit.CompleteLogger
}

// NewFormatContextSource allocates the underlying container reader. Call
// Open before use.
func NewFormatContextSource(o FormatContextSourceOptions) *FormatContextSource {
	logger := o.Logger
	if logger == nil {
		logger = astikit.AdaptStdLogger(nil)
	}
	c := astikit.NewCloser()
	r := newFormatContextReader()
	c.Add(r.Free)
	return &FormatContextSource{
		c:          c,
		logger:     logger,
		r:          r,
		pool:       newPacketPool(c),
		selectKind: o.AVSelect,
	}
}

// Open opens url, probes stream info, and selects the first stream whose
// media type matches the configured AVSelect, mirroring Demuxer.Open's
// OpenInput/FindStreamInfo/Streams sequence.
func (s *FormatContextSource) Open(ctx context.Context, url string) error {
	if err := s.r.OpenInput(url, nil, nil); err != nil {
		return fmt.Errorf("astiavsrc: opening input failed: %w", err)
	}
	s.c.Add(s.r.CloseInput)

	if ctx != nil && ctx.Err() != nil {
		return fmt.Errorf("astiavsrc: context error: %w", ctx.Err())
	}

	if err := s.r.FindStreamInfo(nil); err != nil {
		return fmt.Errorf("astiavsrc: finding stream info failed: %w", err)
	}

	wantType := astiav.MediaTypeVideo
	if s.selectKind == astiplay.AVSelectAudio {
		wantType = astiav.MediaTypeAudio
	}

	for _, stream := range s.r.Streams() {
		if stream.CodecParameters().MediaType() == wantType {
			s.stream = stream
			break
		}
	}
	if s.stream == nil {
		return fmt.Errorf("astiavsrc: no %s stream found", wantType)
	}
	return nil
}

// Stream exposes the selected stream, e.g. for a Decoder adapter's Init.
func (s *FormatContextSource) Stream() *astiav.Stream { return s.stream }

// Close releases the format context and pooled packets.
func (s *FormatContextSource) Close() error { return s.c.Close() }

// DeltaStats exposes the packet pool's allocation counters, mirroring the
// teacher's Demuxer.DeltaStats (pkg/libs/astiav/demuxer.go).
func (s *FormatContextSource) DeltaStats() []astikit.DeltaStat {
	return s.pool.deltaStats()
}

// PullPacket reads the next packet belonging to the selected stream,
// discarding packets from other streams (a single-stream player has no use
// for them), mirroring nextPacket/readFrame's loop without the probe-replay
// or loop-restamp machinery a live demuxer needs.
func (s *FormatContextSource) PullPacket(ctx context.Context) (*astiplay.Packet, error) {
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		pkt := s.pool.get()
		if err := s.r.ReadFrame(pkt); err != nil {
			s.pool.put(pkt)
			if errors.Is(err, astiav.ErrEof) {
				return nil, astiplay.ErrEOF
			}
			if errors.Is(err, astiav.ErrEagain) {
				return nil, astiplay.ErrEAgain
			}
			return nil, astiplay.NewError(astiplay.ErrKindExternal, "astiavsrc.pull_packet", err)
		}

		if pkt.StreamIndex() != s.stream.Index() {
			s.pool.put(pkt)
			continue
		}

		return s.toPacket(pkt), nil
	}
}

func (s *FormatContextSource) toPacket(pkt *astiav.Packet) *astiplay.Packet {
	out := &astiplay.Packet{
		Data:     append([]byte(nil), pkt.Data()...),
		PTS:      pkt.Pts(),
		KeyFrame: pkt.Flags().Has(astiav.PacketFlagKey),
		TimeBase: s.stream.TimeBase(),
		Native:   pkt,
	}
	if pkt.Duration() > 0 {
		out.HasDur = true
		out.Duration = pkt.Duration()
	}
	out.SetRelease(func() { s.pool.put(pkt) })
	return out
}

// Seek repositions the source at or before canonicalTS, rescaling into the
// selected stream's time base, mirroring the teacher's SeekFrame call with
// SeekFlagBackward (decoder_vt.c's seek path expects the same "seek to the
// keyframe at or before the target" semantics).
func (s *FormatContextSource) Seek(_ context.Context, canonicalTS int64) error {
	streamTS := astiplay.FromCanonical(canonicalTS, s.stream.TimeBase())
	if err := s.r.SeekFrame(s.stream.Index(), streamTS, astiav.NewSeekFlags(astiav.SeekFlagBackward)); err != nil {
		return astiplay.NewError(astiplay.ErrKindExternal, "astiavsrc.seek", err)
	}
	return nil
}
