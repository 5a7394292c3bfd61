package astiavsrc

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/asticode/go-astiplay/pkg/astiplay"
	"github.com/stretchr/testify/require"
)

// fakeHardwareSession is a scripted HardwareSession: Submit invokes the
// configured callback synchronously (from the calling goroutine, simulating
// decode_callback firing inline rather than on a separate VT thread), which
// is enough to exercise AsyncHardwareDecoder's reorder/governor wiring
// without a real platform decode session.
type fakeHardwareSession struct {
	mu       sync.Mutex
	onFrame  func(pts int64, handle any)
	submits  []int64
	closed   bool
	openErr  error
	subErr   error
	produces func(pts int64) any // nil handle => "no output" callback
}

func (s *fakeHardwareSession) Open(_ []byte, _, _ int, onFrame func(pts int64, handle any)) error {
	s.onFrame = onFrame
	return s.openErr
}

func (s *fakeHardwareSession) Submit(_ []byte, pts int64) error {
	if s.subErr != nil {
		return s.subErr
	}
	s.mu.Lock()
	s.submits = append(s.submits, pts)
	s.mu.Unlock()

	var handle any
	if s.produces != nil {
		handle = s.produces(pts)
	} else {
		handle = pts // the pts itself stands in for an opaque buffer handle
	}
	s.onFrame(pts, handle)
	return nil
}

func (s *fakeHardwareSession) FinishDelayedFrames() error { return nil }
func (s *fakeHardwareSession) Close() error               { s.closed = true; return nil }

func TestAsyncHardwareDecoderReordersOutOfOrderCallbacks(t *testing.T) {
	sess := &fakeHardwareSession{}
	var mu sync.Mutex
	var emitted []int64
	d := NewAsyncHardwareDecoder(sess, nil, 64, 64, nil)

	require.NoError(t, d.Init(context.Background(), astiplay.DecoderOptions{}, func(f *astiplay.Frame) error {
		mu.Lock()
		defer mu.Unlock()
		if f == nil {
			emitted = append(emitted, -1)
			return nil
		}
		emitted = append(emitted, f.PTS)
		f.Release()
		return nil
	}))

	// Decode callbacks can complete out of submission order; the reorder
	// buffer must still emit in ascending pts.
	sess.produces = func(pts int64) any { return pts }
	require.NoError(t, d.PushPacket(context.Background(), &astiplay.Packet{Data: []byte{1}, PTS: 20}))
	require.NoError(t, d.PushPacket(context.Background(), &astiplay.Packet{Data: []byte{1}, PTS: 10}))
	require.NoError(t, d.PushPacket(context.Background(), &astiplay.Packet{Data: []byte{1}, PTS: 30}))

	require.NoError(t, d.Flush(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int64{10, 20, 30, -1}, emitted)
}

func TestAsyncHardwareDecoderNilOutputJustDecrementsQueue(t *testing.T) {
	sess := &fakeHardwareSession{}
	sess.produces = func(int64) any { return nil }
	var emitted []int64
	d := NewAsyncHardwareDecoder(sess, nil, 64, 64, nil)

	require.NoError(t, d.Init(context.Background(), astiplay.DecoderOptions{}, func(f *astiplay.Frame) error {
		if f == nil {
			emitted = append(emitted, -1)
			return nil
		}
		emitted = append(emitted, f.PTS)
		f.Release()
		return nil
	}))

	require.NoError(t, d.PushPacket(context.Background(), &astiplay.Packet{Data: []byte{1}, PTS: 1}))
	require.NoError(t, d.Flush(context.Background()))

	require.Equal(t, []int64{-1}, emitted) // only the flush's terminal emit(nil)
}

func TestAsyncHardwareDecoderEmptyPacketIsPushPacketNoOp(t *testing.T) {
	sess := &fakeHardwareSession{}
	d := NewAsyncHardwareDecoder(sess, nil, 64, 64, nil)
	require.NoError(t, d.Init(context.Background(), astiplay.DecoderOptions{}, func(*astiplay.Frame) error { return nil }))

	require.NoError(t, d.PushPacket(context.Background(), &astiplay.Packet{Data: nil, PTS: 0}))
	require.Empty(t, sess.submits)
}

func TestAsyncHardwareDecoderSubmitErrorResetsQueue(t *testing.T) {
	sess := &fakeHardwareSession{subErr: errors.New("decode session malfunction")}
	d := NewAsyncHardwareDecoder(sess, nil, 64, 64, nil)
	require.NoError(t, d.Init(context.Background(), astiplay.DecoderOptions{}, func(*astiplay.Frame) error { return nil }))

	err := d.PushPacket(context.Background(), &astiplay.Packet{Data: []byte{1}, PTS: 5})
	require.Error(t, err)

	d.mu.Lock()
	nbQueued := d.nbQueued
	d.mu.Unlock()
	require.Equal(t, 0, nbQueued)
}

func TestAsyncHardwareDecoderUninitClosesSession(t *testing.T) {
	sess := &fakeHardwareSession{}
	d := NewAsyncHardwareDecoder(sess, nil, 64, 64, nil)
	require.NoError(t, d.Init(context.Background(), astiplay.DecoderOptions{}, func(*astiplay.Frame) error { return nil }))
	require.NoError(t, d.Uninit(context.Background()))
	require.True(t, sess.closed)
}
