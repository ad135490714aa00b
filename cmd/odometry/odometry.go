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
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/odometry/internal/api"
	"github.com/banshee-data/odometry/internal/config"
	"github.com/banshee-data/odometry/internal/db"
	"github.com/banshee-data/odometry/internal/encoderfeed"
	"github.com/banshee-data/odometry/internal/grpcstream"
	"github.com/banshee-data/odometry/internal/monitor"
	"github.com/banshee-data/odometry/internal/monitoring"
	"github.com/banshee-data/odometry/internal/pipeline"
	"github.com/banshee-data/odometry/internal/serialmux"
	"github.com/banshee-data/odometry/internal/units"
	"github.com/banshee-data/odometry/internal/version"
)

// disabledValue turns off the feature named by a string flag.
const disabledValue = "off"

var (
	configPath  = flag.String("config", "", "Path to a JSON config file (built-in defaults when empty)")
	port        = flag.String("port", "", "Serial port to use, \"off\" runs without a board (ignored in dev mode)")
	devMode     = flag.Bool("dev", false, "Run in dev mode, replaying --fixtures through a mock serial port")
	fixtures    = flag.String("fixtures", "fixtures.txt", "Encoder fixture file replayed in dev mode")
	pcapFile    = flag.String("pcap", "", "Replay encoder frames carried over UDP in a pcap capture")
	pcapPort    = flag.Int("pcap-port", 0, "UDP port of encoder frames in --pcap (0 accepts any)")
	listen      = flag.String("listen", "", "HTTP listen address")
	grpcListen  = flag.String("grpc-listen", "", "gRPC listen address, \"off\" disables streaming")
	dbPath      = flag.String("db", "", "SQLite database path, \"off\" disables persistence")
	unitsFlag   = flag.String("units", "", "Speed units for API output (mps, mph, kmph, kph)")
	plotDir     = flag.String("plot-dir", "", "Directory for the track PNG written on shutdown")
	showVersion = flag.Bool("version", false, "Print version information and exit")
	verbose     = flag.Bool("verbose", false, "Log every processed frame")
)

// settings are the effective values after flags override the config file.
type settings struct {
	Port            string
	PortOptions     serialmux.PortOptions
	StreamRateHz    int
	Listen          string
	GRPCListen      string
	DBPath          string
	Units           string
	PersistInterval time.Duration
}

func override(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

// enabled maps the "off" sentinel to the empty string.
func enabled(v string) string {
	if strings.EqualFold(v, disabledValue) {
		return ""
	}
	return v
}

func resolveSettings(cfg *config.OdometryConfig) (settings, error) {
	s := settings{
		Port: enabled(override(*port, cfg.GetSerialPort())),
		PortOptions: serialmux.PortOptions{
			BaudRate: cfg.GetBaudRate(),
			DataBits: cfg.GetDataBits(),
			StopBits: cfg.GetStopBits(),
			Parity:   cfg.GetParity(),
		},
		StreamRateHz:    cfg.GetStreamRateHz(),
		Listen:          override(*listen, cfg.GetListen()),
		GRPCListen:      enabled(override(*grpcListen, cfg.GetGRPCListen())),
		DBPath:          enabled(override(*dbPath, cfg.GetDBPath())),
		Units:           override(*unitsFlag, cfg.GetUnits()),
		PersistInterval: cfg.GetPersistInterval(),
	}
	if s.Listen == "" {
		return s, errors.New("listen address is required")
	}
	if !units.IsValid(s.Units) {
		return s, fmt.Errorf("invalid units %q: must be one of %s", s.Units, units.GetValidUnitsString())
	}
	if _, err := s.PortOptions.Normalize(); err != nil {
		return s, err
	}
	return s, nil
}

func loadConfig() (*config.OdometryConfig, error) {
	if *configPath == "" {
		return config.DefaultOdometryConfig(), nil
	}
	return config.LoadConfig(*configPath)
}

// replayInterval spaces replayed lines at the configured board rate.
func replayInterval(hz int) time.Duration {
	if hz <= 0 {
		hz = serialmux.DefaultStreamRateHz
	}
	return time.Second / time.Duration(hz)
}

// replayLines loads frames from the pcap or fixture file and renders them as
// board lines.
func replayLines(path string, fromPCAP bool) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var frames []encoderfeed.Frame
	if fromPCAP {
		frames, err = encoderfeed.ReadPCAP(f, *pcapPort)
	} else {
		frames, err = encoderfeed.ReadFixtures(f)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no encoder frames in %s", path)
	}

	lines := make([]string, len(frames))
	for i, fr := range frames {
		lines[i] = encoderfeed.FormatCSV(fr)
	}
	return lines, nil
}

// openSensor picks the line source: pcap replay, fixture replay, a real
// board, or nothing at all.
func openSensor(s settings) (serialmux.SerialMuxInterface, error) {
	switch {
	case *pcapFile != "":
		lines, err := replayLines(*pcapFile, true)
		if err != nil {
			return nil, err
		}
		return serialmux.NewReplaySerialMux(lines, replayInterval(s.StreamRateHz)), nil
	case *devMode:
		lines, err := replayLines(*fixtures, false)
		if err != nil {
			return nil, err
		}
		return serialmux.NewReplaySerialMux(lines, replayInterval(s.StreamRateHz)), nil
	case s.Port == "":
		log.Printf("no serial port configured, running without a board")
		return serialmux.NewDisabledSerialMux(), nil
	default:
		mux, err := serialmux.NewRealSerialMux(s.Port, s.PortOptions)
		if err != nil {
			return nil, err
		}
		mux.SetStreamRate(s.StreamRateHz)
		log.Printf("opened %s at %s", s.Port, s.PortOptions)
		return mux, nil
	}
}

// Main
func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	monitoring.SetVerbose(*verbose)

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	s, err := resolveSettings(cfg)
	if err != nil {
		log.Fatalf("invalid settings: %v", err)
	}

	pipe := pipeline.New(cfg.ToOdometry(), nil)
	defer pipe.Close()

	sensor, err := openSensor(s)
	if err != nil {
		log.Fatalf("failed to open encoder feed: %v", err)
	}
	defer sensor.Close()

	if err := sensor.Initialize(); err != nil {
		log.Fatalf("failed to initialize encoder board: %v", err)
	}

	var (
		database *db.DB
		recorder *db.Recorder
	)
	if s.DBPath != "" {
		database, err = db.NewDB(s.DBPath)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer database.Close()

		sess, err := database.StartSession(pipe.Config(), time.Now())
		if err != nil {
			log.Fatalf("failed to start session: %v", err)
		}
		log.Printf("recording session %s to %s every %v", sess.ID, database.Path(), s.PersistInterval)
		recorder = db.NewRecorder(database, sess.ID, s.PersistInterval)
		defer func() {
			if err := database.EndSession(recorder.SessionID(), time.Now()); err != nil {
				log.Printf("failed to end session: %v", err)
			}
		}()
	}
	plotter := monitor.NewTrackPlotter(*plotDir, 0)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sensor.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// route board lines into the pipeline
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, c := sensor.Subscribe()
		defer sensor.Unsubscribe(id)
		for {
			select {
			case payload, ok := <-c:
				if !ok {
					log.Printf("serial feed closed")
					return
				}
				if err := serialmux.HandleEvent(pipe, payload); err != nil {
					log.Printf("error handling event: %v", err)
				}
			case <-ctx.Done():
				log.Printf("subscribe routine terminated")
				return
			}
		}
	}()

	if recorder != nil {
		_, updates := pipe.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := recorder.Run(ctx, updates); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("recorder stopped: %v", err)
			}
		}()
	}

	_, trackUpdates := pipe.Subscribe()
	wg.Add(1)
	go func() {
		defer wg.Done()
		plotter.Run(ctx, trackUpdates)
	}()

	if s.GRPCListen != "" {
		gs := grpcstream.NewServer(pipe, s.Units)
		if err := gs.Start(s.GRPCListen); err != nil {
			log.Fatalf("failed to start gRPC server: %v", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			// Ending the subscriptions lets open streams finish.
			pipe.Close()
			gs.Stop()
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		srv := api.NewServer(sensor, pipe, database, s.Units)
		srv.SetPlotter(plotter)
		if recorder != nil {
			srv.SetRecorder(recorder)
		}
		mux := srv.ServeMux()
		sensor.AttachAdminRoutes(mux)
		if database != nil {
			database.AttachAdminRoutes(mux)
		}

		server := &http.Server{
			Addr:    s.Listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("HTTP API listening on %s", s.Listen)
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
	}()

	wg.Wait()

	if *plotDir != "" {
		name := "track-" + time.Now().UTC().Format("20060102T150405Z")
		if _, err := plotter.Save(name); err != nil {
			log.Printf("failed to save track plot: %v", err)
		}
	}
	log.Printf("graceful shutdown complete")
}
