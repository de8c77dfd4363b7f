// Command presence runs the presence-sensing daemon: it follows a
// probe-request capture stream, keeps a registry of nearby devices, samples
// a camera for free-space detection, and serves the HTTP API and charts.
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/presence.report/internal/api"
	"github.com/banshee-data/presence.report/internal/camera"
	"github.com/banshee-data/presence.report/internal/capture"
	"github.com/banshee-data/presence.report/internal/charts"
	"github.com/banshee-data/presence.report/internal/config"
	"github.com/banshee-data/presence.report/internal/coord"
	"github.com/banshee-data/presence.report/internal/db"
	"github.com/banshee-data/presence.report/internal/oui"
	"github.com/banshee-data/presence.report/internal/publish"
	"github.com/banshee-data/presence.report/internal/radio"
	"github.com/banshee-data/presence.report/internal/trust"
)

var (
	devMode    = flag.Bool("dev", false, "Run in dev mode (replayed capture, synthetic camera)")
	listen     = flag.String("listen", ":8080", "Listen address")
	configPath = flag.String("config", "", "Path to tuning config JSON (optional)")
	dbFile     = flag.String("db", "presence.db", "Path to sqlite database ('' disables history)")

	source     = flag.String("source", "exec", "Capture source: exec, serial, replay, or pcap")
	iface      = flag.String("iface", "wlan1", "Monitor-mode interface for exec/pcap sources")
	serialPath = flag.String("serial", "/dev/ttyUSB0", "Serial port for the serial source")
	replayFile = flag.String("replay", "fixtures.txt", "Capture file for the replay source")

	cameraURL = flag.String("camera", "", "Snapshot URL of the IP camera ('' disables detection)")
	ouiFile   = flag.String("oui", "", "Extra vendor prefix file (optional)")
)

func openSource(ctx context.Context) (io.ReadCloser, error) {
	switch *source {
	case "exec":
		return capture.NewExecSource(ctx, "tcpdump", capture.DefaultTcpdumpArgs(*iface)...)
	case "serial":
		return capture.NewSerialSource(*serialPath, capture.PortOptions{})
	case "replay":
		return capture.NewReplaySource(*replayFile, 100*time.Millisecond)
	case "pcap":
		return capture.NewPcapSource(ctx, *iface)
	}
	return nil, nil
}

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg := config.DefaultTuningConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	trustStore, err := trust.Load(cfg.GetTrustedDevicesPath())
	if err != nil {
		log.Fatalf("failed to load trusted devices: %v", err)
	}

	vendors := oui.NewTable()
	if *ouiFile != "" {
		if err := vendors.LoadFile(*ouiFile); err != nil {
			log.Fatalf("failed to load vendor prefixes: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *devMode {
		*source = "replay"
	}
	lineSource, err := openSource(ctx)
	if err != nil {
		log.Fatalf("failed to open capture source %q: %v", *source, err)
	}
	if lineSource == nil {
		log.Fatalf("unknown capture source %q", *source)
	}
	mux := capture.NewMux(lineSource)
	defer mux.Close()

	var database *db.DB
	if *dbFile != "" {
		database, err = db.NewDB(*dbFile)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer database.Close()
	}

	var cam camera.Source
	if *devMode {
		cam = camera.NewSynthSource(320, 240)
	} else if *cameraURL != "" {
		cam = camera.NewHTTPSource(*cameraURL, nil)
	}
	if cam != nil {
		defer cam.Close()
	}

	sinks := publish.MultiSink{publish.LogSink{}}
	if broker := cfg.GetMQTTBroker(); broker != "" {
		mqttSink, err := publish.NewMQTTSink(publish.MQTTConfig{
			Broker:   broker,
			ClientID: "presence-report",
			Topic:    cfg.GetMQTTTopic(),
		})
		if err != nil {
			log.Fatalf("failed to connect MQTT sink: %v", err)
		}
		sinks = append(sinks, mqttSink)
	}
	defer sinks.Close()

	c := coord.New(coord.Options{
		Trust:               trustStore,
		Vendors:             vendors,
		Camera:              cam,
		Sink:                sinks,
		Store:               database,
		DeviceTTL:           cfg.GetDeviceTTL(),
		SampleInterval:      cfg.GetSampleInterval(),
		ReportInterval:      cfg.GetReportInterval(),
		SweepInterval:       cfg.GetSweepInterval(),
		DiffThreshold:       uint8(cfg.GetDiffThreshold()),
		BackgroundThreshold: uint8(cfg.GetBackgroundThreshold()),
		Radio: radio.Settings{
			TxPowerDBm:       cfg.GetTxPowerDBm(),
			PathLossExponent: cfg.GetPathLossExponent(),
			ScanRadiusMeters: cfg.GetScanRadiusMeters(),
		},
	})

	var wg sync.WaitGroup

	// run the monitor routine to manage IO on the capture stream
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mux.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor capture stream: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// consume capture lines into the registry
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := c.RunCapture(ctx, mux); err != nil && err != context.Canceled {
			log.Printf("capture routine failed: %v", err)
		}
		log.Print("capture routine terminated")
	}()

	// evict devices that have gone quiet
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := c.RunSweeper(ctx); err != nil && err != context.Canceled {
			log.Printf("sweeper routine failed: %v", err)
		}
		log.Print("sweeper routine terminated")
	}()

	if cam != nil {
		// seed the baseline so detection starts without operator action;
		// the API can re-capture at any time
		if err := c.CaptureBaseline(ctx); err != nil {
			log.Printf("initial baseline capture failed: %v", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.RunSampler(ctx); err != nil && err != context.Canceled {
				log.Printf("sampler routine failed: %v", err)
			}
			log.Print("sampler routine terminated")
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.RunReporter(ctx); err != nil && err != context.Canceled {
				log.Printf("reporter routine failed: %v", err)
			}
			log.Print("reporter routine terminated")
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		httpMux := api.NewServer(c, mux, database).ServeMux()
		if database != nil {
			charts.NewHandler(database).Attach(httpMux)
		}

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(httpMux),
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Print("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Print("Graceful shutdown complete")
}
