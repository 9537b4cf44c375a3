// SPDX-License-Identifier: MIT

package action

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zebatus/sxvrs-go/internal/config"
	"github.com/zebatus/sxvrs-go/internal/memory"
	"github.com/zebatus/sxvrs-go/internal/spool"
)

type testLogger struct{ lines []string }

func (l *testLogger) Printf(format string, v ...any) {
	l.lines = append(l.lines, format)
}

func writeFrame(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "frame.jpg")
	if err := os.WriteFile(path, []byte("fake-jpeg"), 0640); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDispatchLogActionWritesJSONLine(t *testing.T) {
	dir := t.TempDir()
	frame := writeFrame(t, dir)
	logPath := filepath.Join(dir, "detections.jsonl")

	actions := map[string]config.ActionConfig{
		"log1": {Type: "log", TargetPath: logPath},
	}
	d := NewDispatcher("cam0", actions, memory.New(config.MemoryConfig{RememberTime: -1}), nil)

	objects := []Object{{Detection: spool.DetectedObject{Class: "person", Score: 91, Box: [4]int{1, 2, 3, 4}}, ClusterID: -1}}
	d.Dispatch("ok", objects, frame)

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("expected log file to be written: %v", err)
	}
	var line logLine
	if err := json.Unmarshal(data[:len(data)-1], &line); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if line.Camera != "cam0" || len(line.Objects) != 1 {
		t.Errorf("unexpected log line: %+v", line)
	}
}

func TestDispatchSkipsActionWhenNoObjectsMatchClass(t *testing.T) {
	dir := t.TempDir()
	frame := writeFrame(t, dir)
	logPath := filepath.Join(dir, "detections.jsonl")

	actions := map[string]config.ActionConfig{
		"log1": {Type: "log", TargetPath: logPath, Objects: []string{"car"}},
	}
	d := NewDispatcher("cam0", actions, memory.New(config.MemoryConfig{RememberTime: -1}), nil)
	objects := []Object{{Detection: spool.DetectedObject{Class: "person", Score: 91}, ClusterID: -1}}
	d.Dispatch("ok", objects, frame)

	if _, err := os.Stat(logPath); err == nil {
		t.Fatal("log file should not have been created: class did not match whitelist")
	}
}

func TestDispatchCopyActionCopiesFileAndMarksMemory(t *testing.T) {
	dir := t.TempDir()
	frame := writeFrame(t, dir)
	targetDir := filepath.Join(dir, "out")

	mem := memory.New(config.MemoryConfig{RememberTime: 60 * time.Second, AreaIntersect: 50, SizeSimilarity: 20, MoveThreshold: 10})
	id, _ := mem.Add("person", [4]int{10, 10, 50, 50}, time.Now())

	actions := map[string]config.ActionConfig{
		"copy1": {Type: "copy", TargetPath: targetDir, UseMemory: true},
	}
	d := NewDispatcher("cam0", actions, mem, nil)
	objects := []Object{{Detection: spool.DetectedObject{Class: "person", Score: 91, Box: [4]int{10, 10, 50, 50}}, ClusterID: id}}
	d.Dispatch("ok", objects, frame)

	entries, err := os.ReadDir(targetDir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one copied file, got entries=%v err=%v", entries, err)
	}
	if !mem.HasTriggered(id, "copy1") {
		t.Error("expected cluster to be marked as triggered for copy1")
	}

	// Dispatch again: use_memory should suppress the repeat copy.
	d.Dispatch("ok", objects, frame)
	entries, _ = os.ReadDir(targetDir)
	if len(entries) != 1 {
		t.Errorf("second dispatch should not copy again (use_memory), got %d files", len(entries))
	}
}

func TestDispatchMissingOutcomeSkipsEveryAction(t *testing.T) {
	dir := t.TempDir()
	frame := writeFrame(t, dir)
	logPath := filepath.Join(dir, "detections.jsonl")

	actions := map[string]config.ActionConfig{
		"log1": {Type: "log", TargetPath: logPath},
	}
	d := NewDispatcher("cam0", actions, nil, nil)
	objects := []Object{{Detection: spool.DetectedObject{Class: "person", Score: 91}}}
	d.Dispatch("error: inference timeout", objects, frame)

	if _, err := os.Stat(logPath); err == nil {
		t.Fatal("no action should run when report outcome is not ok")
	}
}

func TestBoxTouchesPolygon(t *testing.T) {
	square := [][2]int{{0, 0}, {100, 0}, {100, 100}, {0, 100}}
	if !boxTouchesPolygon([4]int{10, 10, 50, 50}, square) {
		t.Error("box fully inside polygon should touch it")
	}
	if boxTouchesPolygon([4]int{200, 200, 250, 250}, square) {
		t.Error("box fully outside polygon should not touch it")
	}
}

func TestClassAllowedWhitelistAndBlacklist(t *testing.T) {
	cfg := config.ActionConfig{Objects: []string{"person", "car"}, ObjectsExclude: []string{"car"}}
	if !classAllowed(cfg, "person") {
		t.Error("person should be allowed")
	}
	if classAllowed(cfg, "car") {
		t.Error("car is blacklisted even though whitelisted: blacklist wins")
	}
	if classAllowed(cfg, "dog") {
		t.Error("dog is not in the whitelist")
	}
}
