// Package main implements the sxvrs-daemon, the core multi-camera video
// recording supervisor.
//
// sxvrs-daemon is designed for 24/7 unattended operation, managing multiple
// cameras with automatic failure recovery and graceful shutdown.
//
// Usage:
//
//	sxvrs-daemon [options]
//
// Options:
//
//	--config=PATH     Path to config file (default: /etc/sxvrs/config.yaml)
//	--lock-dir=PATH   Directory for lock files (default: /var/run/sxvrs)
//	--log-level=LEVEL Log level: debug, info, warn, error (default: info)
//	--help            Show this help message
//
// The daemon, per configured camera:
//   - Starts the recorder subprocess and restarts it with exponential backoff
//   - Runs the watcher pipeline (motion -> object detection -> actions)
//   - Publishes status to the command bus and to WebSocket subscribers
//   - Handles SIGINT/SIGTERM for graceful shutdown
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/zebatus/sxvrs-go/internal/action"
	"github.com/zebatus/sxvrs-go/internal/bus"
	"github.com/zebatus/sxvrs-go/internal/camera"
	"github.com/zebatus/sxvrs-go/internal/config"
	"github.com/zebatus/sxvrs-go/internal/health"
	"github.com/zebatus/sxvrs-go/internal/memory"
	"github.com/zebatus/sxvrs-go/internal/motion"
	"github.com/zebatus/sxvrs-go/internal/storage"
	"github.com/zebatus/sxvrs-go/internal/supervisor"
	"github.com/zebatus/sxvrs-go/internal/watcher"
)

// quotaCheckInterval is how often each camera's on-disk footprint is
// measured against its configured quota.
const quotaCheckInterval = 5 * time.Minute

// Build information (set by ldflags).
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	configPath = flag.String("config", config.ConfigFilePath, "Path to configuration file")
	lockDir    = flag.String("lock-dir", "/var/run/sxvrs", "Directory for lock files")
	logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	showHelp   = flag.Bool("help", false, "Show help message")
)

func main() {
	flag.Parse()

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)
	logger.Printf("sxvrs-daemon %s (%s) built %s", Version, Commit, BuildTime)

	if err := os.MkdirAll(*lockDir, 0750); err != nil { //nolint:gosec // lock dir needs group read for service monitoring
		logger.Fatalf("failed to create lock directory: %v", err)
	}

	cfg, err := loadConfiguration(*configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration: %v", err)
	}
	logger.Printf("loaded configuration from %s", *configPath)

	registry := newStatusRegistry()

	var busClient bus.Client
	if cfg.MQTT.Broker != "" {
		mqttClient, err := bus.NewMQTTClient(cfg.MQTT, logger)
		if err != nil {
			logger.Printf("warning: command bus unavailable: %v", err)
		} else {
			busClient = mqttClient
			defer busClient.Close()
		}
	}

	hub := health.NewHub(logger)

	tree := supervisor.NewTree(supervisor.TreeConfig{
		ShutdownTimeout: 30 * time.Second,
		Logger:          os.Stderr,
	})

	names := make([]string, 0, len(cfg.Recorders))
	for name := range cfg.Recorders {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cc := cfg.GetCameraConfig(name)
		desc, err := camera.NewDescriptor(name, cc)
		if err != nil {
			logger.Printf("warning: skipping camera %q: %v", name, err)
			continue
		}

		if err := registerCamera(tree, desc, cfg, *lockDir, registry, busClient, hub, logger, *logLevel == "debug"); err != nil {
			logger.Printf("warning: failed to register camera %q: %v", name, err)
			continue
		}
		logger.Printf("registered camera: %s -> %s", name, desc.StreamURL)
	}

	if tree.ServiceCount() == 0 {
		logger.Println("no cameras registered, exiting")
		os.Exit(0)
	}

	if cfg.HTTPServer.Addr != "" {
		mux := http.NewServeMux()
		healthHandler := health.NewHandler(registry)
		mux.Handle("/healthz", healthHandler)
		mux.Handle("/metrics", healthHandler)
		if cfg.HTTPServer.EnableWS {
			mux.HandleFunc("/ws", hub.ServeWS)
		}
		go func() {
			if err := health.ListenAndServe(context.Background(), cfg.HTTPServer.Addr, mux); err != nil {
				logger.Printf("health server stopped: %v", err)
			}
		}()
		logger.Printf("health endpoint listening on %s", cfg.HTTPServer.Addr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("received signal %v, initiating shutdown...", sig)
		cancel()
	}()

	logger.Printf("starting %d camera(s)...", tree.ServiceCount())
	if err := tree.Run(ctx); err != nil && err != context.Canceled {
		logger.Printf("supervision tree error: %v", err)
	}

	logger.Println("shutdown complete")
}

// registerCamera builds the per-camera Supervisor and Watcher and adds both
// as services to tree.
func registerCamera(tree *supervisor.Tree, desc camera.Descriptor, cfg *config.Config, lockDir string, registry *statusRegistry, busClient bus.Client, hub *health.Hub, logger *log.Logger, debug bool) error {
	spoolDir := filepath.Join(cfg.TempStorage.Path, desc.Name)
	if err := os.MkdirAll(spoolDir, 0750); err != nil {
		return fmt.Errorf("create spool dir: %w", err)
	}

	mem := memory.New(desc.Memory)
	dispatcher := action.NewDispatcher(desc.Name, desc.Actions, mem, logger)

	w := &watcher.Watcher{
		CameraName: desc.Name,
		SpoolDir:   spoolDir,
		Descriptor: desc,
		ObjectCfg:  cfg.ObjectDetect,
		TempCfg:    cfg.TempStorage,
		Motion:     motion.New(desc.Motion),
		Memory:     mem,
		Dispatcher: dispatcher,
		Logger:     os.Stderr,
	}

	reporter := &daemonReporter{
		name:     desc.Name,
		watcher:  w,
		bus:      busClient,
		hub:      hub,
		registry: registry,
	}

	var logWriter = io.Discard
	if debug {
		logWriter = os.Stderr
	}

	sup := supervisor.New(supervisor.Config{
		Descriptor: desc,
		LockDir:    lockDir,
		Logger:     logWriter,
		Reporter:   reporter,
	})
	w.Reporter = sup

	if err := tree.Add(sup); err != nil {
		return fmt.Errorf("add supervisor service: %w", err)
	}
	if err := tree.Add(&watcherService{name: desc.Name + "-watcher", sup: sup, w: w}); err != nil {
		return fmt.Errorf("add watcher service: %w", err)
	}

	if desc.StorageMaxBytes > 0 {
		qe := &quotaEnforcer{
			name:     desc.Name + "-quota",
			path:     desc.StoragePath,
			maxBytes: desc.StorageMaxBytes,
			interval: quotaCheckInterval,
			logger:   logger,
		}
		if err := tree.Add(qe); err != nil {
			return fmt.Errorf("add quota service: %w", err)
		}
	}

	if busClient != nil {
		topic := bus.TopicDaemon(desc.Name)
		_ = busClient.Subscribe(topic, 1, func(_ string, payload []byte) {
			handleCommand(sup, payload, logger)
		})
	}

	return nil
}

// watcherService adapts *watcher.Watcher into a supervisor.Service, gating
// its sweep loop on the supervisor's watcher on/off toggle.
type watcherService struct {
	name string
	sup  *supervisor.Supervisor
	w    *watcher.Watcher
}

func (s *watcherService) Name() string { return s.name }

func (s *watcherService) Run(ctx context.Context) error {
	return s.w.Run(ctx, s.sup.WatcherEnabled)
}

// quotaEnforcer periodically bounds one camera's on-disk footprint, running
// storage.EnforceQuota against its storage path/max-size as a supervisor.Service
// alongside the recording and watcher services so a recorder that never
// manages its own retention never fills the disk.
type quotaEnforcer struct {
	name     string
	path     string
	maxBytes int64
	interval time.Duration
	logger   *log.Logger
}

func (q *quotaEnforcer) Name() string { return q.name }

func (q *quotaEnforcer) Run(ctx context.Context) error {
	interval := q.interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			deleted, err := storage.EnforceQuota(q.path, q.maxBytes)
			if err != nil {
				q.logger.Printf("quota enforcement for %s: %v", q.name, err)
				continue
			}
			if len(deleted) > 0 {
				q.logger.Printf("quota enforcement for %s: deleted %d file(s) over %d bytes", q.name, len(deleted), q.maxBytes)
			}
		}
	}
}

// daemonReporter implements supervisor.Reporter: it folds the FSM's Status
// with the watcher's own counters into a bus.StatusSnapshot, publishes it to
// the command bus, broadcasts it to WebSocket subscribers, and updates the
// health registry.
type daemonReporter struct {
	name     string
	watcher  *watcher.Watcher
	bus      bus.Client
	hub      *health.Hub
	registry *statusRegistry
}

func (r *daemonReporter) Report(status supervisor.Status) {
	counters := r.watcher.CountersSnapshot()

	snap := bus.StatusSnapshot{
		Name:             status.Name,
		Status:           status.State.String(),
		ErrorCount:       status.ErrorCount,
		LatestFile:       status.LastFile,
		Record:           status.State == supervisor.StateRecording,
		MotionThrottling: status.ThrottleLevel,
		FramesAnalyzed:   counters.FramesAnalyzed,
		MotionFrames:     counters.MotionFrames,
		ObjectFrames:     counters.ObjectFrames,
		InMemorySuppress: counters.SuppressedByMem,
	}

	if r.bus != nil {
		if data, err := json.Marshal(snap); err == nil {
			_ = r.bus.Publish(bus.TopicClients(r.name), 1, true, data)
		}
	}
	if r.hub != nil {
		r.hub.Broadcast(snap)
	}

	r.registry.update(health.ServiceInfo{
		Name:      status.Name,
		State:     status.State.String(),
		Uptime:    status.Uptime,
		Healthy:   status.State != supervisor.StateError,
		Restarts:  status.RestartCount,
		Failures:  status.ErrorCount,
		Recording: status.State == supervisor.StateRecording,
		ObjectFrames: counters.ObjectFrames,
	})
}

// handleCommand applies a bus.Command received on this camera's daemon/
// topic.
func handleCommand(sup *supervisor.Supervisor, payload []byte, logger *log.Logger) {
	var cmd bus.Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		logger.Printf("command bus: malformed command: %v", err)
		return
	}
	switch cmd.Cmd {
	case "start":
		sup.ToggleRecording(true)
	case "stop":
		sup.ToggleRecording(false)
	case "restart":
		sup.Restart()
	case "status":
		sup.PublishStatus()
	case "watch_on":
		sup.ToggleWatcher(true)
	case "watch_off":
		sup.ToggleWatcher(false)
	default:
		logger.Printf("command bus: unrecognized command %q for %s", cmd.Cmd, sup.Name())
	}
}

// loadConfiguration loads the config file, falling back to DefaultConfig when
// the file doesn't exist (nothing is written to disk).
func loadConfiguration(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.DefaultConfig(), nil
	}
	return config.LoadConfig(path)
}

func printUsage() {
	fmt.Println("sxvrs-daemon - multi-camera recording supervisor")
	fmt.Printf("Version: %s (%s)\n\n", Version, Commit)
	fmt.Println("Usage: sxvrs-daemon [options]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Signals:")
	fmt.Println("  SIGINT, SIGTERM  Graceful shutdown")
}
