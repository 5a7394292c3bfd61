package player

import (
	"context"
	"fmt"
	"sync"

	"github.com/asticode/go-astikit"
	"github.com/asticode/go-astiplay/pkg/astiavsrc"
	"github.com/asticode/go-astiplay/pkg/astiplay"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Context owns every Media session created through AddMedia, mirroring the
// teacher's habit of a top-level owner (astiflow.Flow) that every worker is
// registered under so a single Free/Stop can tear the whole tree down.
type Context struct {
	logger astikit.CompleteLogger

	mu     sync.Mutex
	medias map[uuid.UUID]*Media
}

// CreateContext builds an empty client context, spec.md §6's
// create_context(filename) — the filename argument belongs to the first
// AddMedia call in this API, not to context creation itself, since one
// context may own several media sessions (spec.md §2's "media" vs. "ctx"
// split).
func CreateContext(logger astikit.CompleteLogger) *Context {
	if logger == nil {
		logger = astikit.AdaptStdLogger(nil)
	}
	return &Context{logger: logger, medias: make(map[uuid.UUID]*Media)}
}

// AddMedia opens filename and wires the astiav-backed Source/Decoder/Filter
// adapters (pkg/astiavsrc) into a fresh Controller, per SPEC_FULL.md §4's
// "astiav-backed adapters" expansion. Call Start to begin decoding.
func (c *Context) AddMedia(ctx context.Context, filename string, opts Options) (*Media, error) {
	source := astiavsrc.NewFormatContextSource(astiavsrc.FormatContextSourceOptions{
		AVSelect: opts.AVSelect,
		Logger:   c.logger,
	})
	if err := source.Open(ctx, filename); err != nil {
		return nil, fmt.Errorf("player: opening %q failed: %w", filename, err)
	}

	decoder := astiavsrc.NewCodecContextDecoder(source.Stream(), c.logger)
	filter := astiavsrc.NewFilterGraphFilter(opts.Filters, c.logger)

	m := newMedia(uuid.New(), source, decoder, filter, opts, c.logger)

	c.mu.Lock()
	c.medias[m.id] = m
	c.mu.Unlock()
	return m, nil
}

// addMediaWithCapabilities builds a Media from already-constructed
// capabilities, bypassing astiavsrc's real file I/O. Used by tests driving
// scripted fakes (SPEC_FULL.md §8's "scripted fake Source" scenario tests).
func (c *Context) addMediaWithCapabilities(source astiplay.Source, decoder astiplay.Decoder, filter astiplay.Filter, opts Options) *Media {
	m := newMedia(uuid.New(), source, decoder, filter, opts, c.logger)
	c.mu.Lock()
	c.medias[m.id] = m
	c.mu.Unlock()
	return m
}

// Free stops every media session this context owns, concurrently, and
// forgets them; spec.md §6's free(ctx). Idempotent.
func (c *Context) Free() error {
	c.mu.Lock()
	medias := make([]*Media, 0, len(c.medias))
	for _, m := range c.medias {
		medias = append(medias, m)
	}
	c.medias = make(map[uuid.UUID]*Media)
	c.mu.Unlock()

	var g errgroup.Group
	for _, m := range medias {
		m := m
		g.Go(func() error {
			m.Stop()
			return nil
		})
	}
	return g.Wait()
}

// Media is one decoded stream session: a Controller plus the client-facing
// get-frame adapter state of spec.md §4.8.
type Media struct {
	id      uuid.UUID
	opts    Options
	logger  astikit.CompleteLogger
	ctrl    *astiplay.Controller
	source  astiplay.Source
	decoder astiplay.Decoder

	mu           sync.Mutex
	lastFrame    *astiplay.Frame // last frame delivered to the client (ts <= requested t)
	peekedFrame  *astiplay.Frame // a pulled frame that overshot the previous target, held for reuse
	lastTS       *int64          // canonical ts of lastFrame, nil until the first delivery
}

func newMedia(id uuid.UUID, source astiplay.Source, decoder astiplay.Decoder, filter astiplay.Filter, opts Options, logger astikit.CompleteLogger) *Media {
	ctrl := astiplay.NewController(source, decoder, filter, opts, astiplay.FormatHint{}, logger)
	return &Media{id: id, opts: opts, logger: logger, ctrl: ctrl, source: source, decoder: decoder}
}

// deltaStatter is implemented by the astiav-backed Source/Decoder adapters
// in pkg/astiavsrc; scripted test fakes need not implement it.
type deltaStatter interface {
	DeltaStats() []astikit.DeltaStat
}

// DeltaStats aggregates the allocation counters of whichever of this
// session's Source/Decoder capabilities expose them, mirroring the
// teacher's Demuxer.DeltaStats/Decoder.DeltaStats pattern
// (pkg/libs/astiav/demuxer.go, decoder.go).
func (m *Media) DeltaStats() []astikit.DeltaStat {
	var ss []astikit.DeltaStat
	if s, ok := m.source.(deltaStatter); ok {
		ss = append(ss, s.DeltaStats()...)
	}
	if d, ok := m.decoder.(deltaStatter); ok {
		ss = append(ss, d.DeltaStats()...)
	}
	return ss
}

// SetOption mutates one named option, spec.md §6's set_option. Options
// already applied by Start (queue capacities, decoder hints) only take
// effect on the next Start.
func (m *Media) SetOption(name string, value any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts.SetOption(name, value)
}

// Start begins decoding, idempotent per spec.md §8 scenario 3. The
// configured Skip option (if any) arms an initial seek before the reader's
// first poll, matching async_start(skip).
func (m *Media) Start(ctx context.Context) error {
	m.mu.Lock()
	skip := m.opts.Skip
	m.mu.Unlock()
	return m.ctrl.Start(ctx, skip)
}

// Stop tears the session down and resets the get-frame adapter's cached
// state, so a subsequent Start behaves like a fresh context per spec.md §8
// scenario 4 ("first get_frame after start;stop;start yields the same result
// as a fresh context"). Idempotent.
func (m *Media) Stop() {
	m.ctrl.Stop()
	m.mu.Lock()
	m.resetCacheLocked()
	m.mu.Unlock()
}

func (m *Media) resetCacheLocked() {
	if m.lastFrame != nil {
		m.lastFrame.Release()
		m.lastFrame = nil
	}
	if m.peekedFrame != nil {
		m.peekedFrame.Release()
		m.peekedFrame = nil
	}
	m.lastTS = nil
}

// Seek arms an explicit reader seek to seconds, spec.md §6's seek(media,
// seconds). It does not by itself reset the get-frame adapter's L/cache
// state; the next GetFrame call still decides for itself whether another
// seek is warranted, per spec.md §4.8.
func (m *Media) Seek(seconds float64) {
	m.ctrl.Seek(astiplay.SecondsToCanonical(seconds))
}

// GetFrame implements the client get-frame adapter of spec.md §4.8: given a
// target time (seconds) and the last delivered frame's ts L, decide whether
// a seek is warranted, then pull frames from the sink until one overshoots
// the target, returning the last frame at or before it (floor semantics,
// per spec.md §8's invariant "returned.ts ≤ t ... no frame in the source
// with source-ts in (returned.source_ts, t] that the decoder could have
// delivered"). Blocks while waiting for frames; returns nil when no frame at
// or before the target is available, i.e. the sink reached EOF first or the
// first frame pulled already overshoots the target.
func (m *Media) GetFrame(targetSeconds float64) *astiplay.Frame {
	targetTS := astiplay.SecondsToCanonical(targetSeconds)

	m.mu.Lock()
	defer m.mu.Unlock()

	needsSeek := m.lastTS == nil || targetTS < *m.lastTS
	if !needsSeek && m.lastTS != nil {
		trigger := astiplay.SecondsToCanonical(m.opts.DistTimeSeekTrigger)
		needsSeek = targetTS-*m.lastTS > trigger
	}
	if needsSeek {
		m.resetCacheLocked()
		m.ctrl.Seek(targetTS)
	}

	for {
		var frame *astiplay.Frame
		if m.peekedFrame != nil {
			frame = m.peekedFrame
			m.peekedFrame = nil
		} else {
			frame = m.ctrl.PopFrame()
			if frame == nil {
				// EOF (or no frame yet): the last buffered frame, if any, is
				// the answer; nothing newer is coming for this target.
				return frameView(m.lastFrame)
			}
		}

		if frame.PTS <= targetTS {
			if m.lastFrame != nil && m.lastFrame != frame {
				m.lastFrame.Release()
			}
			m.lastFrame = frame
			ts := frame.PTS
			m.lastTS = &ts
			continue
		}

		// Overshoot: frame is not the answer for this target, but keep it
		// for the next call instead of dropping it (a queue read is
		// destructive, and a repeated or nearby target may still want it).
		m.peekedFrame = frame
		return frameView(m.lastFrame)
	}
}

// frameView returns a copy of f carrying no release hook, so the client can
// freely ReleaseFrame it without invalidating the adapter's own cached
// reference to f (held for possible redelivery to a later GetFrame call,
// e.g. spec.md §8 scenario 1's repeated sub-frame-interval query). The
// caller's copy shares f's Payload/Native; it must not outlive a Stop that
// would release the real f.
func frameView(f *astiplay.Frame) *astiplay.Frame {
	if f == nil {
		return nil
	}
	view := *f
	view.SetRelease(nil)
	return &view
}

// ReleaseFrame returns frame's backing storage to its pool, spec.md §6's
// release_frame. Safe to call on a frame returned by GetFrame; GetFrame
// retains its own reference internally (lastFrame/peekedFrame), so the
// caller's release is independent and does not invalidate a future
// redelivery of the same data — callers must not mutate a frame after
// releasing it.
func (m *Media) ReleaseFrame(frame *astiplay.Frame) {
	if frame != nil {
		frame.Release()
	}
}
