package astiavsrc

import (
	"context"
	"errors"
	"testing"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astiplay/pkg/astiplay"
	"github.com/stretchr/testify/require"
)

var _ formatContextReader = (*mockedFormatContextReader)(nil)

type mockedFormatContextReader struct {
	previous             func() formatContextReader
	inputClosed          bool
	freed                bool
	openInputFmt         *astiav.InputFormat
	openInputUrl         string
	streamInfoFound      bool
	streams              []*astiav.Stream
	readFrameFunc        func(p *astiav.Packet) error
	seekFrameStreamIndex int
	seekFrameTimestamp   int64
	seekFrameFlags       astiav.SeekFlags
}

func newMockedFormatContextReader() *mockedFormatContextReader {
	r := &mockedFormatContextReader{previous: newFormatContextReader}
	newFormatContextReader = func() formatContextReader { return r }
	return r
}

func (r *mockedFormatContextReader) close() { newFormatContextReader = r.previous }

func (r *mockedFormatContextReader) CloseInput() { r.inputClosed = true }
func (r *mockedFormatContextReader) Free()       { r.freed = true }

func (r *mockedFormatContextReader) FindStreamInfo(d *astiav.Dictionary) error {
	r.streamInfoFound = true
	return nil
}

func (r *mockedFormatContextReader) OpenInput(url string, fmt *astiav.InputFormat, d *astiav.Dictionary) error {
	r.openInputFmt = fmt
	r.openInputUrl = url
	return nil
}

func (r *mockedFormatContextReader) ReadFrame(p *astiav.Packet) error {
	if r.readFrameFunc != nil {
		return r.readFrameFunc(p)
	}
	return astiav.ErrEof
}

func (r *mockedFormatContextReader) SeekFrame(streamIndex int, timestamp int64, f astiav.SeekFlags) error {
	r.seekFrameStreamIndex = streamIndex
	r.seekFrameTimestamp = timestamp
	r.seekFrameFlags = f
	return nil
}

func (r *mockedFormatContextReader) Streams() []*astiav.Stream { return r.streams }

func TestFormatContextSourceOpenSelectsFirstMatchingStream(t *testing.T) {
	r := newMockedFormatContextReader()
	defer r.close()

	fc := astiav.AllocFormatContext()
	defer fc.Free()
	audio := fc.NewStream(nil)
	audio.CodecParameters().SetMediaType(astiav.MediaTypeAudio)
	audio.SetIndex(0)
	video := fc.NewStream(nil)
	video.CodecParameters().SetMediaType(astiav.MediaTypeVideo)
	video.SetIndex(1)
	r.streams = []*astiav.Stream{audio, video}

	s := NewFormatContextSource(FormatContextSourceOptions{AVSelect: astiplay.AVSelectVideo})
	require.NoError(t, s.Open(context.Background(), "url"))
	require.Equal(t, "url", r.openInputUrl)
	require.True(t, r.streamInfoFound)
	require.Equal(t, video, s.Stream())
}

func TestFormatContextSourcePullPacketSkipsOtherStreams(t *testing.T) {
	r := newMockedFormatContextReader()
	defer r.close()

	fc := astiav.AllocFormatContext()
	defer fc.Free()
	video := fc.NewStream(nil)
	video.CodecParameters().SetMediaType(astiav.MediaTypeVideo)
	video.SetIndex(1)
	r.streams = []*astiav.Stream{video}

	s := NewFormatContextSource(FormatContextSourceOptions{AVSelect: astiplay.AVSelectVideo})
	require.NoError(t, s.Open(context.Background(), "url"))

	calls := 0
	r.readFrameFunc = func(p *astiav.Packet) error {
		calls++
		if calls == 1 {
			p.SetStreamIndex(0) // belongs to a stream we didn't pick; must be skipped
			return nil
		}
		p.SetStreamIndex(1)
		p.SetPts(42)
		return nil
	}

	pkt, err := s.PullPacket(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(42), pkt.PTS)
	require.Equal(t, 2, calls)
}

func TestFormatContextSourcePullPacketTranslatesEOF(t *testing.T) {
	r := newMockedFormatContextReader()
	defer r.close()

	fc := astiav.AllocFormatContext()
	defer fc.Free()
	video := fc.NewStream(nil)
	video.CodecParameters().SetMediaType(astiav.MediaTypeVideo)
	r.streams = []*astiav.Stream{video}

	s := NewFormatContextSource(FormatContextSourceOptions{AVSelect: astiplay.AVSelectVideo})
	require.NoError(t, s.Open(context.Background(), "url"))

	r.readFrameFunc = func(p *astiav.Packet) error { return astiav.ErrEof }
	_, err := s.PullPacket(context.Background())
	require.ErrorIs(t, err, astiplay.ErrEOF)
}

func TestFormatContextSourcePullPacketWrapsOtherErrors(t *testing.T) {
	r := newMockedFormatContextReader()
	defer r.close()

	fc := astiav.AllocFormatContext()
	defer fc.Free()
	video := fc.NewStream(nil)
	video.CodecParameters().SetMediaType(astiav.MediaTypeVideo)
	r.streams = []*astiav.Stream{video}

	s := NewFormatContextSource(FormatContextSourceOptions{AVSelect: astiplay.AVSelectVideo})
	require.NoError(t, s.Open(context.Background(), "url"))

	r.readFrameFunc = func(p *astiav.Packet) error { return errors.New("disk read failure") }
	_, err := s.PullPacket(context.Background())
	require.Error(t, err)
	require.False(t, errors.Is(err, astiplay.ErrEOF))
}

func TestFormatContextSourceSeekConvertsCanonicalTimestamp(t *testing.T) {
	r := newMockedFormatContextReader()
	defer r.close()

	fc := astiav.AllocFormatContext()
	defer fc.Free()
	video := fc.NewStream(nil)
	video.CodecParameters().SetMediaType(astiav.MediaTypeVideo)
	video.SetIndex(3)
	video.SetTimeBase(astiav.NewRational(1, 1000))
	r.streams = []*astiav.Stream{video}

	s := NewFormatContextSource(FormatContextSourceOptions{AVSelect: astiplay.AVSelectVideo})
	require.NoError(t, s.Open(context.Background(), "url"))

	require.NoError(t, s.Seek(context.Background(), 2000)) // 2ms in canonical microseconds base
	require.Equal(t, 3, r.seekFrameStreamIndex)
}

func TestFormatContextSourceCloseClosesInputAndFreesContext(t *testing.T) {
	r := newMockedFormatContextReader()
	defer r.close()

	fc := astiav.AllocFormatContext()
	defer fc.Free()
	video := fc.NewStream(nil)
	video.CodecParameters().SetMediaType(astiav.MediaTypeVideo)
	r.streams = []*astiav.Stream{video}

	s := NewFormatContextSource(FormatContextSourceOptions{AVSelect: astiplay.AVSelectVideo})
	require.NoError(t, s.Open(context.Background(), "url"))
	require.NoError(t, s.Close())
	require.True(t, r.inputClosed)
	require.True(t, r.freed)
}
