package main

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/zebatus/sxvrs-go/internal/bus"
	"github.com/zebatus/sxvrs-go/internal/camera"
	"github.com/zebatus/sxvrs-go/internal/config"
	"github.com/zebatus/sxvrs-go/internal/health"
	"github.com/zebatus/sxvrs-go/internal/supervisor"
)

func TestLoadConfiguration(t *testing.T) {
	t.Run("non-existent file uses defaults", func(t *testing.T) {
		cfg, err := loadConfiguration(filepath.Join(t.TempDir(), "missing.yaml"))
		if err != nil {
			t.Fatalf("loadConfiguration() unexpected error: %v", err)
		}
		if cfg == nil {
			t.Fatal("loadConfiguration() returned nil config")
		}
	})

	t.Run("valid config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		content := `
temp_storage:
  path: /tmp/sxvrs-spool
global:
  storage_path: /tmp/sxvrs-storage
  storage_max_size: 10
  cmd_recorder_start: "ffmpeg -i {url} {out}"
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cfg, err := loadConfiguration(path)
		if err != nil {
			t.Fatalf("loadConfiguration() unexpected error: %v", err)
		}
		if cfg.TempStorage.Path != "/tmp/sxvrs-spool" {
			t.Errorf("TempStorage.Path = %q, want /tmp/sxvrs-spool", cfg.TempStorage.Path)
		}
	})

	t.Run("invalid yaml surfaces an error", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "bad.yaml")
		if err := os.WriteFile(path, []byte("not: valid: yaml: ["), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		if _, err := loadConfiguration(path); err == nil {
			t.Error("loadConfiguration() expected error for malformed yaml, got nil")
		}
	})
}

func newTestSupervisor(t *testing.T) *supervisor.Supervisor {
	t.Helper()
	desc := camera.Descriptor{Name: "cam0"}
	return supervisor.New(supervisor.Config{
		Descriptor: desc,
		LockDir:    t.TempDir(),
	})
}

func TestHandleCommandTogglesWatcher(t *testing.T) {
	sup := newTestSupervisor(t)
	logger := log.New(os.Stderr, "", 0)

	onPayload, err := json.Marshal(bus.Command{Cmd: "watch_off"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	handleCommand(sup, onPayload, logger)
	if sup.WatcherEnabled() {
		t.Error("expected watcher to be disabled after watch_off command")
	}

	offPayload, err := json.Marshal(bus.Command{Cmd: "watch_on"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	handleCommand(sup, offPayload, logger)
	if !sup.WatcherEnabled() {
		t.Error("expected watcher to be enabled after watch_on command")
	}
}

func TestHandleCommandStartStopGatesRecording(t *testing.T) {
	sup := newTestSupervisor(t)
	logger := log.New(os.Stderr, "", 0)

	stopPayload, err := json.Marshal(bus.Command{Cmd: "stop"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	handleCommand(sup, stopPayload, logger)
	if sup.RecordEnabled() {
		t.Error("expected recording disabled after stop command")
	}

	startPayload, err := json.Marshal(bus.Command{Cmd: "start"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	handleCommand(sup, startPayload, logger)
	if !sup.RecordEnabled() {
		t.Error("expected recording enabled after start command")
	}
}

func TestHandleCommandStatusAndRestartDoNotPanic(t *testing.T) {
	sup := newTestSupervisor(t)
	logger := log.New(os.Stderr, "", 0)

	statusPayload, err := json.Marshal(bus.Command{Cmd: "status"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	handleCommand(sup, statusPayload, logger)

	restartPayload, err := json.Marshal(bus.Command{Cmd: "restart"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	handleCommand(sup, restartPayload, logger)
}

func TestHandleCommandMalformedPayload(t *testing.T) {
	sup := newTestSupervisor(t)
	logger := log.New(os.Stderr, "", 0)

	// Should not panic on malformed JSON.
	handleCommand(sup, []byte("{not json"), logger)
}

func TestHandleCommandUnrecognized(t *testing.T) {
	sup := newTestSupervisor(t)
	logger := log.New(os.Stderr, "", 0)

	payload, err := json.Marshal(bus.Command{Cmd: "reboot"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	// Should not panic and should leave watcher state untouched.
	before := sup.WatcherEnabled()
	handleCommand(sup, payload, logger)
	if sup.WatcherEnabled() != before {
		t.Error("unrecognized command should not change watcher state")
	}
}

func TestRegisterCameraWiresServices(t *testing.T) {
	tree := supervisor.NewTree(supervisor.DefaultTreeConfig())
	registry := newStatusRegistry()
	logger := log.New(os.Stderr, "", 0)

	cfg := config.DefaultConfig()
	cfg.TempStorage.Path = t.TempDir()

	desc := camera.Descriptor{Name: "cam0"}

	if err := registerCamera(tree, desc, cfg, t.TempDir(), registry, nil, nil, logger, false); err != nil {
		t.Fatalf("registerCamera() error = %v", err)
	}

	if tree.ServiceCount() != 2 {
		t.Errorf("ServiceCount() = %d, want 2 (supervisor + watcher)", tree.ServiceCount())
	}
}

func TestRegisterCameraWiresQuotaServiceWhenStorageMaxBytesSet(t *testing.T) {
	tree := supervisor.NewTree(supervisor.DefaultTreeConfig())
	registry := newStatusRegistry()
	logger := log.New(os.Stderr, "", 0)

	cfg := config.DefaultConfig()
	cfg.TempStorage.Path = t.TempDir()

	desc := camera.Descriptor{Name: "cam0", StoragePath: t.TempDir(), StorageMaxBytes: 1024}

	if err := registerCamera(tree, desc, cfg, t.TempDir(), registry, nil, nil, logger, false); err != nil {
		t.Fatalf("registerCamera() error = %v", err)
	}

	if tree.ServiceCount() != 3 {
		t.Errorf("ServiceCount() = %d, want 3 (supervisor + watcher + quota)", tree.ServiceCount())
	}
}

func TestStatusRegistry(t *testing.T) {
	r := newStatusRegistry()
	if len(r.Services()) != 0 {
		t.Fatalf("expected empty registry, got %d entries", len(r.Services()))
	}

	r.update(health.ServiceInfo{Name: "cam0", State: "recording"})
	r.update(health.ServiceInfo{Name: "cam1", State: "error"})
	r.update(health.ServiceInfo{Name: "cam0", State: "stopped"}) // overwrite

	services := r.Services()
	if len(services) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(services))
	}

	found := map[string]string{}
	for _, s := range services {
		found[s.Name] = s.State
	}
	if found["cam0"] != "stopped" {
		t.Errorf("cam0 state = %q, want stopped (overwritten)", found["cam0"])
	}
	if found["cam1"] != "error" {
		t.Errorf("cam1 state = %q, want error", found["cam1"])
	}
}
