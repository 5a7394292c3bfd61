package astiavsrc

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/asticode/go-astiplay/pkg/astiplay"
)

// FilterGraphFilter is an astiplay.Filter backed by a single-input,
// single-output *astiav.FilterGraph (buffer -> ... -> buffersink), grounded
// on the teacher's FrameFilterer.createFilterUnlocked/pullFilteredFrameUnlocked
// (pkg/libs/astiav/frame_filterer.go), stripped of the multi-alias PTS
// synchronization queuer a flow graph's fan-in needs but a single decoded
// stream never does.
type FilterGraphFilter struct {
	content string
	logger  astikit.CompleteLogger

	c             *astikit.Closer
	graph         *astiav.FilterGraph
	buffersrcCtx  *astiav.BuffersrcFilterContext
	buffersinkCtx *astiav.BuffersinkFilterContext
	pool          *framePool

	in  astiplay.FrameQueue
	out astiplay.FrameQueue
}

// NewFilterGraphFilter builds a filter that applies content (an ffmpeg
// filtergraph description, e.g. "scale=640:-1"), or a passthrough "null"/
// "anull" graph when content is empty.
func NewFilterGraphFilter(content string, logger astikit.CompleteLogger) *FilterGraphFilter {
	if logger == nil {
		logger = astikit.AdaptStdLogger(nil)
	}
	return &FilterGraphFilter{content: content, logger: logger}
}

func (f *FilterGraphFilter) Init(_ context.Context, in, out astiplay.FrameQueue, hint astiplay.FormatHint) error {
	f.in, f.out = in, out
	f.c = astikit.NewCloser()
	f.pool = newFramePool(f.c)

	f.graph = astiav.AllocFilterGraph()
	f.c.Add(f.graph.Free)

	content := f.content
	isAudio := hint.Format == 0 && hint.Width == 0 && hint.Height == 0
	var buffersrc, buffersink *astiav.Filter
	var args astiav.FilterArgs
	if isAudio {
		if content == "" {
			content = "anull"
		}
		buffersrc = astiav.FindFilterByName("abuffer")
		buffersink = astiav.FindFilterByName("abuffersink")
		args = astiav.FilterArgs{"time_base": hint.TimeBase.String()}
	} else {
		if content == "" {
			content = "null"
		}
		buffersrc = astiav.FindFilterByName("buffer")
		buffersink = astiav.FindFilterByName("buffersink")
		args = astiav.FilterArgs{
			"width":     strconv.Itoa(hint.Width),
			"height":    strconv.Itoa(hint.Height),
			"pix_fmt":   strconv.Itoa(int(hint.Format)),
			"time_base": hint.TimeBase.String(),
		}
	}
	if buffersrc == nil || buffersink == nil {
		return astiplay.NewError(astiplay.ErrKindUnsupported, "astiavsrc.filter.init", errors.New("buffer/buffersink filter not found"))
	}

	var err error
	if f.buffersrcCtx, err = f.graph.NewBuffersrcFilterContext(buffersrc, "in", args); err != nil {
		return astiplay.NewError(astiplay.ErrKindUnsupported, "astiavsrc.filter.init", fmt.Errorf("creating buffersrc context failed: %w", err))
	}
	if f.buffersinkCtx, err = f.graph.NewBuffersinkFilterContext(buffersink, "out", nil); err != nil {
		return astiplay.NewError(astiplay.ErrKindUnsupported, "astiavsrc.filter.init", fmt.Errorf("creating buffersink context failed: %w", err))
	}

	inputs := astiav.AllocFilterInOut()
	defer inputs.Free()
	inputs.SetName("out")
	inputs.SetFilterContext(f.buffersinkCtx.FilterContext())
	inputs.SetPadIdx(0)
	inputs.SetNext(nil)

	outputs := astiav.AllocFilterInOut()
	defer outputs.Free()
	outputs.SetName("in")
	outputs.SetFilterContext(f.buffersrcCtx.FilterContext())
	outputs.SetPadIdx(0)
	outputs.SetNext(nil)

	if err := f.graph.Parse(content, inputs, outputs); err != nil {
		return astiplay.NewError(astiplay.ErrKindUnsupported, "astiavsrc.filter.init", fmt.Errorf("parsing filter content failed: %w", err))
	}
	if err := f.graph.Configure(); err != nil {
		return astiplay.NewError(astiplay.ErrKindUnsupported, "astiavsrc.filter.init", fmt.Errorf("configuring filter graph failed: %w", err))
	}
	return nil
}

// Run pulls decoded frames, pushes each into the buffersrc, and drains the
// buffersink into out, mirroring onFrame/pullFilteredFrameUnlocked's
// push-then-drain loop without the multi-parent queuer.
func (f *FilterGraphFilter) Run(_ context.Context) error {
	for {
		frame, err := f.in.Recv()
		if err != nil {
			return err
		}

		native, _ := frame.Native.(*astiav.Frame)
		addErr := f.buffersrcCtx.AddFrame(native, astiav.NewBuffersrcFlags(astiav.BuffersrcFlagKeepRef))
		frame.Release()
		if addErr != nil {
			return astiplay.NewError(astiplay.ErrKindDecoder, "astiavsrc.filter.run", fmt.Errorf("adding frame to buffersrc failed: %w", addErr))
		}

		if err := f.drainBuffersink(); err != nil {
			return err
		}
	}
}

func (f *FilterGraphFilter) drainBuffersink() error {
	for {
		nf := f.pool.get()
		if err := f.buffersinkCtx.GetFrame(nf, astiav.NewBuffersinkFlags()); err != nil {
			f.pool.put(nf)
			if errors.Is(err, astiav.ErrEof) || errors.Is(err, astiav.ErrEagain) {
				return nil
			}
			return astiplay.NewError(astiplay.ErrKindDecoder, "astiavsrc.filter.run", fmt.Errorf("getting frame from buffersink failed: %w", err))
		}

		out := &astiplay.Frame{
			Width:    nf.Width(),
			Height:   nf.Height(),
			Format:   nf.PixelFormat(),
			PTS:      nf.Pts(),
			TimeBase: f.buffersinkCtx.TimeBase(),
			Native:   nf,
		}
		if buf, err := nf.Data().Bytes(1); err == nil {
			out.Payload = astiplay.SoftwareFrame{Planes: [][]byte{buf}}
		}
		out.SetRelease(func() { f.pool.put(nf) })

		if err := f.out.Send(out); err != nil {
			out.Release()
			return err
		}
	}
}

func (f *FilterGraphFilter) Uninit(_ context.Context) error { return nil }

func (f *FilterGraphFilter) Free(_ context.Context) error {
	if f.c != nil {
		return f.c.Close()
	}
	return nil
}
