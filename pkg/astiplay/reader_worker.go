package astiplay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/asticode/go-astikit"
)

// readerPollInterval is the fixed sleep applied on ErrEAgain before retrying
// pull, matching spec.md §4.6 ("sleep a short fixed interval (tens of
// milliseconds) and retry").
const readerPollInterval = 20 * time.Millisecond

// ReaderWorker runs the read stage of the pipeline (spec.md §4.6): pulls
// packets from the source, interleaves seek markers, feeds the packet queue.
//
// Grounded on original_source/async.c's reader_thread. request_seek is
// modeled as an explicit *int64 rather than the original's "-1.0 sentinel in
// an integer field" per spec.md §9's open-question note.
type ReaderWorker struct {
	source      Source
	packetQueue *MessageQueue
	logger      astikit.CompleteLogger

	mu          sync.Mutex
	requestSeek *int64
}

// NewReaderWorker builds a reader worker.
func NewReaderWorker(source Source, packetQueue *MessageQueue, logger astikit.CompleteLogger) *ReaderWorker {
	if logger == nil {
		logger = astikit.AdaptStdLogger(nil)
	}
	return &ReaderWorker{source: source, packetQueue: packetQueue, logger: logger}
}

// RequestSeek arms a pending seek to canonicalTS, owned by the reader's own
// mutex and mutated from the controller goroutine (spec.md §5). Idempotent
// within a single poll cycle: a later call before the reader observes the
// pending one replaces it.
func (w *ReaderWorker) RequestSeek(canonicalTS int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.requestSeek = &canonicalTS
}

func (w *ReaderWorker) takeRequestSeek() *int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	target := w.requestSeek
	w.requestSeek = nil
	return target
}

// Run executes the reader's loop until the source is exhausted or errors,
// then installs the packet queue's receive-side latch (this worker is the
// packet queue's producer) and returns.
func (w *ReaderWorker) Run(ctx context.Context) error {
	var runErr error

loop:
	for {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			break loop
		default:
		}

		// Step 1-2: take-and-clear request_seek; if set, push the Seek
		// message BEFORE the source seek so the decoder observes the
		// boundary before any post-seek packets arrive.
		if target := w.takeRequestSeek(); target != nil {
			if err := w.packetQueue.Send(Message{Kind: MessageKindSeek, SeekTarget: *target}); err != nil {
				runErr = err
				break loop
			}
			if err := w.source.Seek(ctx, *target); err != nil {
				w.logger.Error(fmt.Errorf("astiplay: source seek failed: %w", err))
			}
		}

		// Step 3: pull a packet.
		pkt, err := w.source.PullPacket(ctx)
		if err != nil {
			if errors.Is(err, ErrEAgain) {
				astikit.Sleep(ctx, readerPollInterval)
				continue
			}
			runErr = err
			break loop
		}

		// Step 4: send it on; release on send failure.
		if err := w.packetQueue.Send(Message{Kind: MessageKindPacket, Packet: pkt}); err != nil {
			pkt.Release()
			runErr = err
			break loop
		}
	}

	w.packetQueue.SetErrRecv(errOrEOF(runErr))
	if errors.Is(runErr, ErrEOF) || runErr == nil {
		return nil
	}
	return runErr
}
