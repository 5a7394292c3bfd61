package astiplay

import "github.com/asticode/go-astiav"

// AVSelect chooses which stream kind a media session decodes.
type AVSelect int

const (
	AVSelectVideo AVSelect = iota
	AVSelectAudio
)

// Options replaces the original's global AVOption registry (spec.md §9):
// a plain record mutated field-by-field via SetOption, covering every
// option spec.md §6 enumerates. No reflection, no dynamic property tree.
type Options struct {
	AutoHWAccel         bool
	UsePacketDuration    bool
	MaxPixels            int
	VTPixelFormat        astiav.PixelFormat
	SWPixelFormat        astiav.PixelFormat
	Autorotate           bool
	ExportMotionVectors  bool
	AVSelect             AVSelect
	Skip                 float64 // seconds
	TrimDuration         float64 // seconds, 0 = untrimmed
	DistTimeSeekTrigger  float64 // seconds
	MaxFramesQueue       int
	MaxPacketsQueue      int
	PacketSkipModulo     int
	Filters              string
}

// DefaultOptions mirrors the original's built-in defaults for the options
// spec.md §8's scenarios exercise without explicit configuration.
func DefaultOptions() Options {
	return Options{
		DistTimeSeekTrigger: 1.0,
		MaxFramesQueue:      5,
		MaxPacketsQueue:     100,
		PacketSkipModulo:    1,
	}
}

// SetOption mutates a single named option, matching spec.md §6's
// set_option(media, name, value) entry point. Recognized names are the
// original's snake_case option names (e.g. "auto_hwaccel", "max_nb_frames"),
// not the Go field names. Returns false for an unrecognized name.
func (o *Options) SetOption(name string, value any) bool {
	switch name {
	case "auto_hwaccel":
		o.AutoHWAccel, _ = value.(bool)
	case "use_pkt_duration":
		o.UsePacketDuration, _ = value.(bool)
	case "max_pixels":
		o.MaxPixels, _ = value.(int)
	case "vt_pix_fmt":
		o.VTPixelFormat, _ = value.(astiav.PixelFormat)
	case "sw_pix_fmt":
		o.SWPixelFormat, _ = value.(astiav.PixelFormat)
	case "autorotate":
		o.Autorotate, _ = value.(bool)
	case "export_mvs":
		o.ExportMotionVectors, _ = value.(bool)
	case "avselect":
		o.AVSelect, _ = value.(AVSelect)
	case "skip":
		o.Skip, _ = value.(float64)
	case "trim_duration":
		o.TrimDuration, _ = value.(float64)
	case "dist_time_seek_trigger":
		o.DistTimeSeekTrigger, _ = value.(float64)
	case "max_nb_frames":
		o.MaxFramesQueue, _ = value.(int)
	case "max_nb_packets":
		o.MaxPacketsQueue, _ = value.(int)
	case "pkt_skip_mod":
		o.PacketSkipModulo, _ = value.(int)
	case "filters":
		o.Filters, _ = value.(string)
	default:
		return false
	}
	return true
}

func (o Options) decoderOptions() DecoderOptions {
	return DecoderOptions{
		AutoHWAccel:         o.AutoHWAccel,
		UsePacketDuration:   o.UsePacketDuration,
		MaxPixels:           o.MaxPixels,
		SWPixelFormat:       o.SWPixelFormat,
		Autorotate:          o.Autorotate,
		ExportMotionVectors: o.ExportMotionVectors,
	}
}
