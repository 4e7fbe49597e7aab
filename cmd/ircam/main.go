package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/ircam/internal/api"
	"github.com/banshee-data/ircam/internal/capture"
	"github.com/banshee-data/ircam/internal/config"
	"github.com/banshee-data/ircam/internal/db"
	"github.com/banshee-data/ircam/internal/serialmux"
	"github.com/banshee-data/ircam/internal/simcam"
	"github.com/banshee-data/ircam/internal/version"
)

var (
	configPath    = flag.String("config", "", "Path to a JSON capture config (defaults apply when empty)")
	devMode       = flag.Bool("dev", false, "Run against a synthetic camera instead of the serial port")
	disableCamera = flag.Bool("disable-camera", false, "Serve the API and archive without a camera")
	listen        = flag.String("listen", config.DefaultListen, "Listen address")
	port          = flag.String("port", config.DefaultPort, "Serial port to use (ignored in dev mode)")
	rate          = flag.Float64("rate", config.DefaultReportRateHz, "Sensor refresh rate in Hz")
	captureDir    = flag.String("capture-dir", config.DefaultCaptureDir, "Directory for CSV capture logs (empty disables)")
	dbPath        = flag.String("db-path", config.DefaultDBPath, "Frame archive database (empty disables)")
	assetsHost    = flag.String("assets-host", "", "Host serving echarts assets for /frame.html")
	listPorts     = flag.Bool("list-ports", false, "List serial ports and exit")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

// portFactory opens the camera's serial port; tests swap in a mock.
var portFactory serialmux.SerialPortFactory = serialmux.RealPortFactory{}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *listPorts {
		ports, err := serialmux.ListPorts()
		if err != nil {
			log.Fatalf("failed to list serial ports: %v", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	cfg, err := loadConfig(*configPath, flag.CommandLine)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if flag.Arg(0) == "migrate" {
		if err := db.RunMigrateCommand(flag.Args()[1:], cfg.GetDBPath(), os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}
	if flag.NArg() > 0 {
		usage()
		os.Exit(2)
	}

	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
	log.Printf("Graceful shutdown complete")
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: %s [flags] [migrate <action>]\n\n", os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintln(out)
	db.PrintMigrateHelp(out)
}

// loadConfig reads the optional config file, then applies every flag that
// was set explicitly on the command line.
func loadConfig(path string, fs *flag.FlagSet) (*config.CaptureConfig, error) {
	cfg := &config.CaptureConfig{}
	if path != "" {
		var err error
		if cfg, err = config.LoadCaptureConfig(path); err != nil {
			return nil, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Listen = listen
		case "port":
			cfg.Port = port
		case "rate":
			cfg.ReportRateHz = rate
		case "capture-dir":
			cfg.CaptureDir = captureDir
		case "db-path":
			cfg.DBPath = dbPath
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openCamera returns the serial mux for the configured mode and a label for
// logs and the archive.
func openCamera(cfg *config.CaptureConfig) (serialmux.SerialMuxInterface, string, error) {
	switch {
	case *disableCamera:
		return serialmux.NewDisabledSerialMux(), "disabled", nil
	case *devMode:
		rateHz := cfg.GetReportRateHz()
		wave := simcam.NewWave(0.1)
		// One wave period at the configured rate.
		n := max(1, int(rateHz*10))
		chunks, err := simcam.WireFrames(wave.Frames(n, 1/rateHz))
		if err != nil {
			return nil, "", err
		}
		interval := time.Duration(float64(time.Second) / rateHz)
		return serialmux.NewMockSerialMux(interval, chunks...), "simcam", nil
	default:
		m, err := serialmux.OpenSerialMux(portFactory, cfg.GetPort(), cfg.PortOptions())
		if err != nil {
			return nil, "", fmt.Errorf("failed to open camera port: %w", err)
		}
		return m, cfg.GetPort(), nil
	}
}

func run(cfg *config.CaptureConfig) error {
	camera, source, err := openCamera(cfg)
	if err != nil {
		return err
	}
	defer camera.Close()

	if err := camera.Initialize(cfg.GetReportRateHz()); err != nil {
		return fmt.Errorf("failed to initialize camera: %w", err)
	}
	log.Printf("initialized camera %s at %v Hz (%s)", source, cfg.GetReportRateHz(), cfg.PortOptions())

	var store *db.DB
	if path := cfg.GetDBPath(); path != "" {
		store, err = db.NewDB(path)
		if err != nil {
			return fmt.Errorf("failed to open frame archive: %w", err)
		}
		defer store.Close()
	}

	session, err := capture.NewSession(capture.Options{
		Source:        source,
		CaptureDir:    cfg.GetCaptureDir(),
		Zeros:         cfg.GetSeed() == config.SeedZeros,
		StatsInterval: cfg.GetStatsInterval(),
		Store:         store,
	})
	if err != nil {
		return fmt.Errorf("failed to start capture session: %w", err)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// the capture routine owns the decoder; a transport failure ends the
	// whole process and is returned to the caller
	var runErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := session.Run(ctx, camera); err != nil {
			log.Printf("capture session ended: %v", err)
			runErr = err
		}
		log.Print("capture routine terminated")
		stop()
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		apiServer := api.NewServer(camera, session.Publisher(), session, store, cfg.GetCaptureDir())
		apiServer.AssetsHost = *assetsHost
		mux := apiServer.ServeMux()
		camera.AttachAdminRoutes(mux)
		if store != nil {
			store.AttachAdminRoutes(mux)
		}

		server := &http.Server{
			Addr:    cfg.GetListen(),
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("HTTP server failed: %v", err)
				stop()
			}
		}()
		log.Printf("listening on %s", cfg.GetListen())

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()

	if err := camera.Shutdown(); err != nil {
		log.Printf("failed to stop camera output: %v", err)
	}
	return runErr
}
