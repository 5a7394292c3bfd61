// Command astiplay-dump opens a media file through pkg/player and dumps the
// timestamp of every frame get_frame returns for a list of seek targets,
// wiring the package the way the teacher's
// examples/astiav/demuxing_decoding/main.go wires astiflow plugins: a
// logger, a worker carrying signal handling, and a single owning object
// whose Free tears everything down on exit.
package main

import (
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/asticode/go-astikit"
	"github.com/asticode/go-astilog"
	"github.com/asticode/go-astiplay/pkg/player"
)

var (
	input = flag.String("i", "", "input path")
	seeks = flag.String("t", "0", "comma-separated list of target seconds to get_frame at")
)

func main() {
	flag.Parse()

	if *input == "" {
		log.Println("Usage: <binary path> -i <input path> [-t 0,1.5,3.2]")
		return
	}

	targets, err := parseTargets(*seeks)
	if err != nil {
		log.Println(fmt.Errorf("astiplay-dump: %w", err))
		return
	}

	l := astilog.New(astilog.Configuration{})

	w := astikit.NewWorker(astikit.WorkerOptions{Logger: l})
	w.HandleSignals(astikit.TermSignalHandler(w.Stop))

	ctx := player.CreateContext(l)
	defer ctx.Free()

	m, err := ctx.AddMedia(w.Context(), *input, player.DefaultOptions())
	if err != nil {
		l.Error(fmt.Errorf("astiplay-dump: adding media failed: %w", err))
		return
	}

	if err := m.Start(w.Context()); err != nil {
		l.Error(fmt.Errorf("astiplay-dump: starting media failed: %w", err))
		return
	}
	defer m.Stop()

	for _, t := range targets {
		f := m.GetFrame(t)
		if f == nil {
			l.Infof("astiplay-dump: get_frame(%g): no frame yet", t)
			continue
		}
		l.Infof("astiplay-dump: get_frame(%g): pts=%d %dx%d", t, f.PTS, f.Width, f.Height)
		m.ReleaseFrame(f)
	}

	dumpDeltaStats(l, m.DeltaStats())
}

// dumpDeltaStats logs the source/decoder allocation counters, the way the
// teacher pushes Demuxer/Decoder.DeltaStats() to its monitor plugin
// (pkg/plugins/monitor/server), simplified here to a one-shot log line since
// this command has no push server to send them to.
func dumpDeltaStats(l astikit.CompleteLogger, ss []astikit.DeltaStat) {
	for _, s := range ss {
		l.Infof("astiplay-dump: %s: %v %s", s.Metadata.Label, s.Valuer.Value(time.Second), s.Metadata.Unit)
	}
}

func parseTargets(raw string) ([]float64, error) {
	parts := strings.Split(raw, ",")
	targets := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing target %q failed: %w", p, err)
		}
		targets = append(targets, v)
	}
	return targets, nil
}
