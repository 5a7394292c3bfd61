package astiavsrc

import (
	"context"
	"fmt"
	"sync"

	"github.com/asticode/go-astikit"
	"github.com/asticode/go-astiplay/pkg/astiplay"
	"github.com/asticode/go-astiplay/pkg/governor"
)

// HardwareSession is the platform-specific half of an asynchronous hardware
// decode session (VideoToolbox, VAAPI, NVDEC, ...), grounded on
// original_source/decoder_vt.c's vtdec_context/VTDecompressionSession pair.
// Submit hands off a compressed sample; the session calls back into the
// AsyncHardwareDecoder-supplied callback (passed to Open) from whatever
// thread the platform's decode callback runs on, exactly as
// VTDecompressionSessionDecodeFrame's decode_callback does.
type HardwareSession interface {
	// Open configures the session for the given codec extradata/dimensions
	// and registers onFrame as the decode-completion callback. A nil handle
	// reports this decode produced no output (decoder_vt.c's "NULL output
	// image buffer" path).
	Open(extradata []byte, width, height int, onFrame func(pts int64, handle any)) error
	// Submit decodes one packet's payload, returning once the session has
	// accepted it (not once decode completes; decode finishes
	// asynchronously via onFrame).
	Submit(payload []byte, pts int64) error
	// FinishDelayedFrames blocks until every in-flight Submit's onFrame
	// callback has fired, mirroring VTDecompressionSessionFinishDelayedFrames
	// + VTDecompressionSessionWaitForAsynchronousFrames.
	FinishDelayedFrames() error
	Close() error
}

// maxInFlightSubmits caps how many Submit calls may be outstanding at once,
// mirroring vtdec_push_packet's hardcoded "nb_queued >= 3" deadlock
// avoidance for VideoToolbox.
const maxInFlightSubmits = 3

// AsyncHardwareDecoder is an astiplay.Decoder wrapping a HardwareSession,
// reordering its asynchronous, decode-order callbacks into presentation
// order via a Reorder buffer and throttling outstanding hardware buffers
// via a Governor, grounded end-to-end on original_source/decoder_vt.c
// (bufcount_context, decode_callback, vtdec_push_packet, vtdec_flush).
type AsyncHardwareDecoder struct {
	session HardwareSession
	logger  astikit.CompleteLogger

	mu        sync.Mutex
	nbQueued  int
	queuedCond *sync.Cond

	gov     *governor.Governor
	reorder *astiplay.Reorder
	emit    astiplay.FrameEmitFunc

	width, height int
	extradata     []byte
}

// NewAsyncHardwareDecoder builds a decoder around session, configured for a
// codec with the given extradata/dimensions.
func NewAsyncHardwareDecoder(session HardwareSession, extradata []byte, width, height int, logger astikit.CompleteLogger) *AsyncHardwareDecoder {
	if logger == nil {
		logger = astikit.AdaptStdLogger(nil)
	}
	d := &AsyncHardwareDecoder{session: session, logger: logger, width: width, height: height, extradata: extradata}
	d.queuedCond = sync.NewCond(&d.mu)
	return d
}

func (d *AsyncHardwareDecoder) Init(_ context.Context, _ astiplay.DecoderOptions, emit astiplay.FrameEmitFunc) error {
	d.emit = emit
	d.gov = governor.New(3, func() {})
	d.reorder = astiplay.NewReorder(d.gov)

	if err := d.session.Open(d.extradata, d.width, d.height, d.onDecodeCallback); err != nil {
		return astiplay.NewError(astiplay.ErrKindUnsupported, "astiavsrc.hwdecoder.init", fmt.Errorf("opening hardware session failed: %w", err))
	}
	return nil
}

// onDecodeCallback runs on whatever thread the platform session invokes it
// from, exactly like decode_callback; it walks the reorder buffer and
// credits the governor the same way decode_callback does via
// bufcount_update_max/bufcount_update_ref.
func (d *AsyncHardwareDecoder) onDecodeCallback(pts int64, handle any) {
	d.mu.Lock()
	d.nbQueued--
	d.queuedCond.Broadcast()
	d.mu.Unlock()

	if handle == nil {
		return
	}

	ready := d.reorder.Insert(pts, handle)
	for _, r := range ready {
		d.emitReady(r.TS, r.Item)
	}
	d.gov.AdjustRef(1)
}

func (d *AsyncHardwareDecoder) emitReady(pts int64, handle any) {
	frame := &astiplay.Frame{
		PTS:     pts,
		Payload: astiplay.HardwareFrame{Handle: handle},
	}
	frame.SetRelease(func() { d.gov.AdjustRef(-1) })
	if err := d.emit(frame); err != nil {
		frame.Release()
	}
}

func (d *AsyncHardwareDecoder) PushPacket(_ context.Context, pkt *astiplay.Packet) error {
	d.mu.Lock()
	for d.nbQueued >= maxInFlightSubmits {
		d.queuedCond.Wait()
	}
	d.mu.Unlock()

	if len(pkt.Data) == 0 {
		return nil
	}

	d.mu.Lock()
	d.nbQueued++
	d.mu.Unlock()

	if err := d.session.Submit(pkt.Data, pkt.PTS); err != nil {
		d.mu.Lock()
		d.nbQueued = 0
		d.queuedCond.Broadcast()
		d.mu.Unlock()
		return astiplay.NewError(astiplay.ErrKindExternal, "astiavsrc.hwdecoder.push_packet", err)
	}
	return nil
}

// Flush waits for every in-flight submit to complete, then emits the
// reorder buffer's remaining entries in ts order followed by a final nil,
// mirroring vtdec_flush's "wait for nb_queued to reach 0, then
// send_queued_frames". The decoder worker's seek path still gets discard
// semantics, since DecoderWorker.Run always calls framesQueue.Flush() right
// after a seek-triggered Flush.
func (d *AsyncHardwareDecoder) Flush(_ context.Context) error {
	if err := d.session.FinishDelayedFrames(); err != nil {
		return astiplay.NewError(astiplay.ErrKindExternal, "astiavsrc.hwdecoder.flush", err)
	}

	d.mu.Lock()
	for d.nbQueued > 0 {
		d.queuedCond.Wait()
	}
	d.mu.Unlock()

	for _, r := range d.reorder.Drain() {
		d.emitReady(r.TS, r.Item)
	}
	return d.emit(nil)
}

// Uninit drops whatever the reorder buffer still holds (drop_queued_frames'
// push=false path) and closes the session; vtdec_uninit's final
// bufcount_update_ref(vt->bufcount, -1) is this decoder's own share of the
// governor, released by letting gov fall out of scope.
func (d *AsyncHardwareDecoder) Uninit(_ context.Context) error {
	d.reorder.Drain()
	return d.session.Close()
}
