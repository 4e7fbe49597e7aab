// Command replay plays back a CSV capture log: it prints each frame's
// temperature range and can export one PNG per frame or import the frames
// into a frame archive.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/banshee-data/ircam/internal/capture"
	"github.com/banshee-data/ircam/internal/db"
	"github.com/banshee-data/ircam/internal/framepub"
	"github.com/banshee-data/ircam/internal/framestats"
	"github.com/banshee-data/ircam/internal/render"
)

type options struct {
	file     string
	pngDir   string
	dbPath   string
	bins     int
	histMax  float64
	interval time.Duration
}

func main() {
	var o options
	flag.StringVar(&o.file, "file", "", "CSV capture log to replay (required)")
	flag.StringVar(&o.pngDir, "png-dir", "", "write one PNG per frame to this directory")
	flag.StringVar(&o.dbPath, "db", "", "import the frames into this archive database")
	flag.IntVar(&o.bins, "bins", framestats.ReplayBins, "histogram bins in exported PNGs")
	flag.Float64Var(&o.histMax, "hist-max", 0, "fixed histogram count axis for PNGs (0 auto-scales)")
	flag.DurationVar(&o.interval, "interval", 0, "pause between frames")
	flag.Parse()

	if o.file == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, o options, out io.Writer) error {
	f, err := os.Open(o.file)
	if err != nil {
		return err
	}
	defer f.Close()

	var store *db.DB
	if o.dbPath != "" {
		if store, err = db.NewDB(o.dbPath); err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		defer store.Close()
	}
	if o.pngDir != "" {
		if err := os.MkdirAll(o.pngDir, 0o755); err != nil {
			return err
		}
	}

	session, err := capture.NewSession(capture.Options{
		Source: "replay:" + filepath.Base(o.file),
		Zeros:  true,
		Store:  store,
	})
	if err != nil {
		return err
	}

	var sinkErr error
	session.Publisher().AddSink(framepub.SinkFunc(func(p framepub.Published) {
		fmt.Fprintf(out, "frame %d: %s\n", p.Seq, render.FrameTitle(p.Summary))
		if o.pngDir != "" && sinkErr == nil {
			sinkErr = writePNG(o, p)
		}
		if o.interval > 0 {
			time.Sleep(o.interval)
		}
	}))

	stats, err := session.Replay(ctx, f)
	err = errors.Join(err, sinkErr, session.Close())
	fmt.Fprintf(out, "%d lines, %d frames\n", stats.Lines, stats.Frames)
	if store != nil {
		fmt.Fprintf(out, "archived as session %s\n", session.ID())
	}
	return err
}

func writePNG(o options, p framepub.Published) error {
	name := filepath.Join(o.pngDir, fmt.Sprintf("frame-%05d.png", p.Seq))
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	opts := render.PNGOptions{
		Title:        render.FrameTitle(p.Summary),
		Bins:         o.bins,
		HistogramMax: o.histMax,
	}
	if err := render.WritePNG(f, p.Frame, opts); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", name, err)
	}
	return f.Close()
}
