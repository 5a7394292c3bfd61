package astiplay

import (
	"context"
	"sync"

	"github.com/asticode/go-astikit"
)

// sinkQueueCapacity is the "small capacity, e.g. 3" spec.md §4.7 specifies
// for the queue feeding the client.
const sinkQueueCapacity = 3

// Controller owns the reader/decoder/filter worker trio for one media
// session and its start/stop/seek/pop_frame lifecycle (spec.md §4.7).
//
// Grounded on original_source/async.c's async_start/async_stop/async_wait/
// async_seek/async_pop_frame.
type Controller struct {
	source  Source
	decoder Decoder
	filter  Filter
	opts    Options
	hint    FormatHint
	logger  astikit.CompleteLogger

	mu        sync.Mutex
	running   bool
	reader    *ReaderWorker
	sinkQueue *FrameSinkQueue
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewController builds a controller for one media session. hint is passed to
// the filter capability at each Start; a zero FormatHint is valid, letting
// the concrete filter adapter negotiate format from the first frame.
func NewController(source Source, decoder Decoder, filter Filter, opts Options, hint FormatHint, logger astikit.CompleteLogger) *Controller {
	if logger == nil {
		logger = astikit.AdaptStdLogger(nil)
	}
	return &Controller{source: source, decoder: decoder, filter: filter, opts: opts, hint: hint, logger: logger}
}

// Start spawns the reader/decoder/filter workers. Idempotent: calling Start
// while already running is a no-op, matching spec.md §8 scenario 3's
// "start; start" and the "stop is idempotent; re-entry re-seeks" scenario 4.
// If skipSeconds > 0, an initial seek to that position is armed before the
// reader's first poll.
func (c *Controller) Start(ctx context.Context, skipSeconds float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	packetCap := c.opts.MaxPacketsQueue
	if packetCap <= 0 {
		packetCap = DefaultOptions().MaxPacketsQueue
	}
	framesCap := c.opts.MaxFramesQueue
	if framesCap <= 0 {
		framesCap = DefaultOptions().MaxFramesQueue
	}

	packetQueue := NewMessageQueue(packetCap)
	framesQueue := NewFrameQueue(framesCap)
	c.sinkQueue = NewFrameQueue(sinkQueueCapacity)

	c.reader = NewReaderWorker(c.source, packetQueue, c.logger)
	decoderWorker := NewDecoderWorker(c.decoder, packetQueue, framesQueue, c.logger)
	filterWorker := NewFilterWorker(c.filter, framesQueue, c.sinkQueue, c.logger)

	if skipSeconds > 0 {
		c.reader.RequestSeek(SecondsToCanonical(skipSeconds))
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(3)
	go func() {
		defer c.wg.Done()
		if err := c.reader.Run(runCtx); err != nil {
			c.logger.Error(err)
		}
	}()
	go func() {
		defer c.wg.Done()
		if err := decoderWorker.Run(runCtx, c.opts.decoderOptions()); err != nil {
			c.logger.Error(err)
		}
	}()
	go func() {
		defer c.wg.Done()
		if err := filterWorker.Run(runCtx, c.hint); err != nil {
			c.logger.Error(err)
		}
	}()

	c.running = true
	return nil
}

// Stop tears the session down: sets the sink queue's send-side latch (the
// controller is the sink queue's consumer, so this is the "I'm gone, stop
// producing" signal to the filter worker), flushes it, cancels the workers'
// context, and joins all three. Idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}

	c.sinkQueue.SetErrSend(ErrEOF)
	c.sinkQueue.Flush()
	c.cancel()
	c.wg.Wait()

	c.running = false
}

// Seek arms a pending seek on the reader, idempotent within a single
// source-poll cycle per spec.md §4.7 (a later seek replaces an earlier
// pending one, handled by ReaderWorker.RequestSeek itself).
func (c *Controller) Seek(canonicalTS int64) {
	c.mu.Lock()
	reader := c.reader
	c.mu.Unlock()
	if reader != nil {
		reader.RequestSeek(canonicalTS)
	}
}

// PopFrame blocks for the next frame off the sink queue, returning nil on
// error/EOF, per spec.md §4.7.
func (c *Controller) PopFrame() *Frame {
	c.mu.Lock()
	sinkQueue := c.sinkQueue
	c.mu.Unlock()
	if sinkQueue == nil {
		return nil
	}
	f, err := sinkQueue.Recv()
	if err != nil {
		return nil
	}
	return f
}
