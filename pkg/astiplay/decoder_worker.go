package astiplay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/asticode/go-astikit"
	"github.com/asticode/go-astiplay/pkg/queue"
)

// MessageQueue is the packet/seek queue type every stage shares.
type MessageQueue = queue.Queue[Message]

// FrameSinkQueue is the frame queue type every stage downstream of the
// decoder worker shares (frames queue, sink queue).
type FrameSinkQueue = queue.Queue[*Frame]

// NewMessageQueue creates a packet/seek queue of the given capacity,
// releasing any undelivered Message's owned Packet on teardown.
func NewMessageQueue(capacity int) *MessageQueue {
	return queue.New[Message](capacity, Message.Release)
}

// NewFrameQueue creates a frame queue of the given capacity, releasing any
// undelivered Frame on teardown.
func NewFrameQueue(capacity int) *FrameSinkQueue {
	return queue.New[*Frame](capacity, (*Frame).Release)
}

// DecoderWorker runs the decode stage of the pipeline (spec.md §4.4):
// consumes packets/seek-markers from a packet queue, drives a Decoder
// capability, rescales timestamps through the async_queue_frame fixup rule,
// and emits frames to a frames queue for the filter worker.
//
// Grounded on original_source/async.c's decoder_thread/async_queue_frame,
// restructured in the teacher's single-goroutine-per-stage worker shape
// (pkg/libs/astiav/decoder.go's onPacket/receiveFrame split).
type DecoderWorker struct {
	decoder     Decoder
	packetQueue *MessageQueue
	framesQueue *FrameSinkQueue
	logger      astikit.CompleteLogger

	seekMu        sync.Mutex
	seekArmed     bool
	seekTarget    int64
	cachedSkipped *Frame
}

// NewDecoderWorker builds a decoder worker. packetQueue is read-only to this
// worker, framesQueue is write-only.
func NewDecoderWorker(decoder Decoder, packetQueue *MessageQueue, framesQueue *FrameSinkQueue, logger astikit.CompleteLogger) *DecoderWorker {
	if logger == nil {
		logger = astikit.AdaptStdLogger(nil)
	}
	w := &DecoderWorker{
		decoder:     decoder,
		packetQueue: packetQueue,
		framesQueue: framesQueue,
		logger:      logger,
	}
	return w
}

// Run executes the decoder worker's full lifecycle: Init, Running, Drain,
// Teardown (spec.md §4.4). It returns once the packet queue's receive-side
// latch is observed and drain completes.
func (w *DecoderWorker) Run(ctx context.Context, opts DecoderOptions) error {
	if err := w.decoder.Init(ctx, opts, w.asyncQueueFrame); err != nil {
		return NewError(ErrKindUnsupported, "decoder_worker.init", err)
	}

	var runErr error
loop:
	for {
		msg, err := w.packetQueue.Recv()
		if err != nil {
			runErr = w.drain(ctx, err)
			break loop
		}

		switch msg.Kind {
		case MessageKindSeek:
			if err := w.decoder.Flush(ctx); err != nil {
				w.logger.Error(fmt.Errorf("astiplay: decoder flush on seek failed: %w", err))
			}
			// Discard whatever the flush above just emitted: it is stale,
			// pre-seek output (spec.md §4.4's "drain codec... call
			// frames_queue.flush()").
			w.framesQueue.Flush()
			w.armSeek(msg.SeekTarget)

		case MessageKindPacket:
			if err := w.decoder.PushPacket(ctx, msg.Packet); err != nil {
				w.logger.Error(fmt.Errorf("astiplay: push_packet failed: %w", err))
				if IsFatal(err) {
					runErr = err
					break loop
				}
			}
		}
	}

	w.framesQueue.SetErrRecv(errOrEOF(runErr))
	if err := w.decoder.Uninit(ctx); err != nil {
		w.logger.Error(fmt.Errorf("astiplay: decoder uninit failed: %w", err))
	}
	// Tell the reader to stop sending even if it hasn't hit EOF on the
	// source yet (e.g. this worker stopped because of a fatal decode
	// error), mirroring async.c's unconditional set_err_send(pkt_queue) at
	// decoder_thread's very end.
	w.packetQueue.SetErrSend(errOrEOF(runErr))
	return runErr
}

// drain handles the upstream-EOF/error case: ask the decoder to flush out
// whatever it is holding (those frames are kept, not discarded), per
// spec.md §4.4's Drain state.
func (w *DecoderWorker) drain(ctx context.Context, upstreamErr error) error {
	if err := w.decoder.Flush(ctx); err != nil {
		w.logger.Error(fmt.Errorf("astiplay: decoder flush on drain failed: %w", err))
	}
	if errors.Is(upstreamErr, ErrEOF) {
		return nil
	}
	return upstreamErr
}

func (w *DecoderWorker) armSeek(target int64) {
	w.seekMu.Lock()
	defer w.seekMu.Unlock()
	w.seekArmed = true
	w.seekTarget = target
	if w.cachedSkipped != nil {
		w.cachedSkipped.Release()
		w.cachedSkipped = nil
	}
}

// asyncQueueFrame is the FrameEmitFunc passed to the Decoder capability: the
// timestamp-fixup rule of spec.md §4.4, steps 1-6. It may be called from any
// goroutine (hardware decoders call back from pool threads), so every access
// to seek-arm state is under seekMu.
func (w *DecoderWorker) asyncQueueFrame(frame *Frame) error {
	w.seekMu.Lock()

	if frame == nil {
		// Step 1: a nil frame ends this segment. Promote a cached skipped
		// frame, if any; nothing is queued for the nil itself and nil is
		// returned.
		cached := w.cachedSkipped
		w.cachedSkipped = nil
		w.seekMu.Unlock()
		if cached != nil {
			if err := w.framesQueue.Send(cached); err != nil {
				cached.Release()
				return err
			}
		}
		return nil
	}

	// Step 2: rescale to canonical ts.
	frame.PTS = ToCanonical(frame.PTS, frame.TimeBase)

	if w.seekArmed && frame.PTS < w.seekTarget {
		// Step 3: undershoot. Cache this frame as the new "last frame before
		// the seek target," dropping any previously cached one.
		if w.cachedSkipped != nil {
			w.cachedSkipped.Release()
		}
		w.cachedSkipped = frame
		w.seekMu.Unlock()
		return nil
	}

	// Step 4: a cached skipped frame becomes deliverable the moment any
	// frame reaches or passes the seek target; emit it first, in order.
	cached := w.cachedSkipped
	w.cachedSkipped = nil

	armed := w.seekArmed
	target := w.seekTarget
	w.seekArmed = false
	w.seekMu.Unlock()

	if cached != nil {
		if err := w.framesQueue.Send(cached); err != nil {
			cached.Release()
			frame.Release()
			return err
		}
	}

	// Step 5: overshoot clamp.
	if armed && target > 0 && frame.PTS > target {
		frame.PTS = target
	}

	// Step 6: disarm (already done above) and emit.
	if err := w.framesQueue.Send(frame); err != nil {
		frame.Release()
		return err
	}
	return nil
}

func errOrEOF(err error) error {
	if err == nil {
		return ErrEOF
	}
	return err
}
