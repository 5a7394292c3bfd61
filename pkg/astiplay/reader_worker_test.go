package astiplay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeSource is a scripted Source: PullPacket returns entries from a slice
// in order, after returning ErrEAgain for a configured number of polls
// before the first real entry to exercise the reader's retry-sleep path.
type fakeSource struct {
	mu       sync.Mutex
	packets  []*Packet
	eagains  int // remaining EAGAIN responses before the next real packet
	seekLog  []int64
	pullErr  error // returned once packets is exhausted, default ErrEOF
}

func (s *fakeSource) PullPacket(_ context.Context) (*Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eagains > 0 {
		s.eagains--
		return nil, ErrEAgain
	}
	if len(s.packets) == 0 {
		if s.pullErr != nil {
			return nil, s.pullErr
		}
		return nil, ErrEOF
	}
	pkt := s.packets[0]
	s.packets = s.packets[1:]
	return pkt, nil
}

func (s *fakeSource) Seek(_ context.Context, canonicalTS int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seekLog = append(s.seekLog, canonicalTS)
	return nil
}

func TestReaderWorkerForwardsPacketsThenLatchesEOF(t *testing.T) {
	src := &fakeSource{packets: []*Packet{{PTS: 1}, {PTS: 2}}}
	pq := NewMessageQueue(4)
	w := NewReaderWorker(src, pq, nil)

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	msg, err := pq.Recv()
	require.NoError(t, err)
	require.Equal(t, MessageKindPacket, msg.Kind)
	require.Equal(t, int64(1), msg.Packet.PTS)

	msg, err = pq.Recv()
	require.NoError(t, err)
	require.Equal(t, int64(2), msg.Packet.PTS)

	require.NoError(t, <-done)
	require.ErrorIs(t, pq.ErrRecv(), ErrEOF)
}

func TestReaderWorkerRetriesOnEAgain(t *testing.T) {
	src := &fakeSource{eagains: 2, packets: []*Packet{{PTS: 7}}}
	pq := NewMessageQueue(4)
	w := NewReaderWorker(src, pq, nil)

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	select {
	case <-done:
		t.Fatal("reader exited before delivering the packet")
	case <-time.After(10 * time.Millisecond):
	}

	msg, err := pq.Recv()
	require.NoError(t, err)
	require.Equal(t, int64(7), msg.Packet.PTS)

	require.NoError(t, <-done)
}

func TestReaderWorkerPushesSeekMessageBeforeSourceSeek(t *testing.T) {
	src := &fakeSource{packets: []*Packet{{PTS: 42}}}
	pq := NewMessageQueue(4)
	w := NewReaderWorker(src, pq, nil)
	w.RequestSeek(30)

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	msg, err := pq.Recv()
	require.NoError(t, err)
	require.Equal(t, MessageKindSeek, msg.Kind)
	require.Equal(t, int64(30), msg.SeekTarget)

	msg, err = pq.Recv()
	require.NoError(t, err)
	require.Equal(t, MessageKindPacket, msg.Kind)

	<-done
	require.Equal(t, []int64{30}, src.seekLog)
}

func TestReaderWorkerLaterSeekReplacesEarlierPending(t *testing.T) {
	src := &fakeSource{packets: nil}
	pq := NewMessageQueue(4)
	w := NewReaderWorker(src, pq, nil)

	w.RequestSeek(10)
	w.RequestSeek(20)

	target := w.takeRequestSeek()
	require.NotNil(t, target)
	require.Equal(t, int64(20), *target)
}
