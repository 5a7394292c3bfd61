package astiplay

import (
	"context"
	"errors"
	"fmt"

	"github.com/asticode/go-astikit"
)

// FilterWorker runs the filter stage of the pipeline (spec.md §4.5): pulls
// frames from frames_queue, applies the externally-configured Filter
// capability, pushes the result to sink_queue.
//
// Grounded on original_source/async.c's filterer_thread/filtering_run. The
// Filter capability owns its own pull/transform/push loop (spec.md §6), so
// this worker's job is just lifecycle: Init, spawn Run, and on shutdown
// ensure sink_queue observes EOF even if the filter's own drain already
// pushed a final sentinel.
type FilterWorker struct {
	filter      Filter
	framesQueue *FrameSinkQueue
	sinkQueue   *FrameSinkQueue
	logger      astikit.CompleteLogger
}

// NewFilterWorker builds a filter worker. framesQueue is read-only to this
// worker (via the Filter capability), sinkQueue is write-only.
func NewFilterWorker(filter Filter, framesQueue *FrameSinkQueue, sinkQueue *FrameSinkQueue, logger astikit.CompleteLogger) *FilterWorker {
	if logger == nil {
		logger = astikit.AdaptStdLogger(nil)
	}
	return &FilterWorker{filter: filter, framesQueue: framesQueue, sinkQueue: sinkQueue, logger: logger}
}

// Run initializes the filter with hint and blocks for the filter's Run,
// returning once frames_queue's receive-side error (set by the decoder
// worker at its teardown) has been observed and drained. Terminal condition
// per spec.md §4.5: "on shutdown the decoder sets frames_queue receive-side
// error to EOF, the filter drains, emits a final null sentinel, and
// returns."
func (w *FilterWorker) Run(ctx context.Context, hint FormatHint) error {
	if err := w.filter.Init(ctx, w.framesQueue, w.sinkQueue, hint); err != nil {
		w.framesQueue.SetErrSend(ErrEOF)
		w.sinkQueue.SetErrRecv(ErrEOF)
		return NewError(ErrKindUnsupported, "filter_worker.init", err)
	}

	runErr := w.filter.Run(ctx)

	if err := w.filter.Uninit(ctx); err != nil {
		w.logger.Error(fmt.Errorf("astiplay: filter uninit failed: %w", err))
	}
	if err := w.filter.Free(ctx); err != nil {
		w.logger.Error(fmt.Errorf("astiplay: filter free failed: %w", err))
	}

	// This worker is frames_queue's consumer: once Run stops calling Recv,
	// the decoder worker must be unblocked from a pending Send too, the same
	// pairing rule decoder_worker.go follows for packet_queue.
	w.framesQueue.SetErrSend(errOrEOF(runErr))
	w.sinkQueue.SetErrRecv(errOrEOF(runErr))
	if runErr != nil && !errors.Is(runErr, ErrEOF) {
		return runErr
	}
	return nil
}
