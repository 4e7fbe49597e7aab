// Command simcam emits a synthetic radial wave as the camera would: either
// capture log lines or the serial wire protocol, optionally corrupted.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/banshee-data/ircam/internal/simcam"
	"github.com/banshee-data/ircam/internal/thermal"
	"github.com/banshee-data/ircam/internal/thermal/csvlog"
)

type options struct {
	format    string
	duration  float64
	step      float64
	frequency float64
	noise     float64
	seed      int64
	realtime  bool
}

func main() {
	var o options
	flag.StringVar(&o.format, "format", "csv", "output format: csv or wire")
	flag.Float64Var(&o.duration, "duration", 30, "simulated seconds")
	flag.Float64Var(&o.step, "step", 0.5, "seconds between frames")
	flag.Float64Var(&o.frequency, "freq", 0.1, "wave frequency in Hz")
	flag.Float64Var(&o.noise, "noise", 0, "probability of corrupting each wire byte")
	flag.Int64Var(&o.seed, "seed", 1, "noise random seed")
	flag.BoolVar(&o.realtime, "realtime", false, "sleep between frames")
	flag.Parse()

	w := bufio.NewWriter(os.Stdout)
	if err := run(o, w); err != nil {
		log.Fatal(err)
	}
	if err := w.Flush(); err != nil {
		log.Fatal(err)
	}
}

func run(o options, out io.Writer) error {
	if o.step <= 0 {
		return fmt.Errorf("step must be positive, got %v", o.step)
	}
	if o.format != "csv" && o.format != "wire" {
		return fmt.Errorf("unknown format %q", o.format)
	}

	wave := simcam.NewWave(o.frequency)
	rng := rand.New(rand.NewSource(o.seed))
	for t := 0.0; t < o.duration; t += o.step {
		if err := emit(o, out, wave.Frame(t), rng); err != nil {
			return err
		}
		if o.realtime {
			if f, ok := out.(interface{ Flush() error }); ok {
				f.Flush()
			}
			time.Sleep(time.Duration(o.step * float64(time.Second)))
		}
	}
	return nil
}

func emit(o options, out io.Writer, f thermal.Frame, rng *rand.Rand) error {
	if o.format == "csv" {
		return csvlog.WriteFrame(out, f)
	}
	b, err := thermal.EncodeFrame(f)
	if err != nil {
		return err
	}
	simcam.Corrupt(b, o.noise, rng)
	b = append(b, '\r', '\n')
	_, err = out.Write(b)
	return err
}
