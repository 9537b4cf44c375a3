// Package main implements sxvrs-objdetect, the standalone object-detector
// worker process.
//
// It runs independently of sxvrs-daemon so that a slow or crashing detector
// (a gocv DNN forward pass, or a flaky cloud endpoint) never blocks camera
// recording or motion scanning. One internal/objectdetect.Worker is started
// per configured camera, each polling that camera's own spool directory for
// .obj.wait frames and completing the rendezvous protocol by renaming them
// to .obj.found (with a JSON sidecar) or .obj.none.
//
// Usage:
//
//	sxvrs-objdetect [options]
//
// Options:
//
//	--config=PATH  Path to config file (default: /etc/sxvrs/config.yaml)
//	--help         Show this help message
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"syscall"

	"github.com/zebatus/sxvrs-go/internal/config"
	"github.com/zebatus/sxvrs-go/internal/objectdetect"
)

// defaultClasses is the label set threaded through NewLocalDetector when the
// configured model doesn't carry its own names file. It covers the subjects
// a property-perimeter camera cares about.
var defaultClasses = []string{
	"person", "bicycle", "car", "motorcycle", "bus", "truck",
	"cat", "dog", "bird", "horse",
}

var (
	configPath = flag.String("config", config.ConfigFilePath, "Path to configuration file")
	showHelp   = flag.Bool("help", false, "Show help message")
)

func main() {
	flag.Parse()

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	logger := log.New(os.Stderr, "[sxvrs-objdetect] ", log.LstdFlags)

	cfg, err := loadConfiguration(*configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration: %v", err)
	}
	logger.Printf("loaded configuration from %s", *configPath)

	detector, err := objectdetect.Select(cfg.ObjectDetect, defaultClasses)
	if err != nil {
		logger.Fatalf("failed to initialize detector: %v", err)
	}
	defer detector.Close()
	logger.Printf("detector ready: mode=%s", modeLabel(cfg.ObjectDetect.Mode))

	names := make([]string, 0, len(cfg.Recorders))
	for name := range cfg.Recorders {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) == 0 {
		logger.Println("no cameras configured, exiting")
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("received signal %v, shutting down...", sig)
		cancel()
	}()

	var wg sync.WaitGroup
	for _, name := range names {
		spoolDir := filepath.Join(cfg.TempStorage.Path, name)
		if err := os.MkdirAll(spoolDir, 0750); err != nil {
			logger.Printf("warning: skipping camera %q: %v", name, err)
			continue
		}

		w := &objectdetect.Worker{
			SpoolDir: spoolDir,
			Detector: detector,
			Interval: cfg.ObjectDetect.WatchDelay,
			Timeout:  cfg.ObjectDetect.DetectTimeout,
			Logger:   os.Stderr,
		}

		wg.Add(1)
		go func(name string, w *objectdetect.Worker) {
			defer wg.Done()
			logger.Printf("worker started for camera %q (spool %s)", name, w.SpoolDir)
			if err := w.Run(ctx); err != nil {
				logger.Printf("worker for camera %q stopped: %v", name, err)
			}
		}(name, w)
	}

	wg.Wait()
	logger.Println("shutdown complete")
}

func modeLabel(mode string) string {
	if mode == "" {
		return "local"
	}
	return mode
}

func loadConfiguration(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.DefaultConfig(), nil
	}
	return config.LoadConfig(path)
}

func printUsage() {
	fmt.Println("sxvrs-objdetect - standalone object-detector worker")
	fmt.Println()
	fmt.Println("Usage: sxvrs-objdetect [options]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
}
