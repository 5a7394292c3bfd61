// Package player implements the client API surface of spec.md §6:
// create_context/add_media/set_option/start/stop/seek/get_frame/
// release_frame/free, layered on top of pkg/astiplay.Controller the way the
// teacher's examples/astiav/demuxing_decoding/main.go wires a Demuxer/
// Decoder/FrameFilterer trio together for an application.
package player

import "github.com/asticode/go-astiplay/pkg/astiplay"

// Options is astiplay.Options, re-exported so callers never need to import
// pkg/astiplay directly to configure a Media.
type Options = astiplay.Options

// DefaultOptions mirrors astiplay.DefaultOptions.
func DefaultOptions() Options { return astiplay.DefaultOptions() }
