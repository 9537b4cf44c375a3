// SPDX-License-Identifier: MIT

package watcher

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zebatus/sxvrs-go/internal/action"
	"github.com/zebatus/sxvrs-go/internal/camera"
	"github.com/zebatus/sxvrs-go/internal/config"
	"github.com/zebatus/sxvrs-go/internal/memory"
	"github.com/zebatus/sxvrs-go/internal/spool"
)

type fakeMotion struct {
	detected bool
	err      error
}

func (f *fakeMotion) Detect(path string) (bool, error) { return f.detected, f.err }

type fakeReporter struct {
	results  []bool
	divisor  int
}

func (f *fakeReporter) NoteObjectResult(found bool) { f.results = append(f.results, found) }
func (f *fakeReporter) ThrottleDivisor(objectThrottling float64) int {
	if f.divisor == 0 {
		return 1
	}
	return f.divisor
}

func newWatcher(t *testing.T, dir string, motionDetected bool, objectEnabled bool) (*Watcher, *fakeReporter) {
	t.Helper()
	rep := &fakeReporter{divisor: 1}
	w := &Watcher{
		CameraName: "cam0",
		SpoolDir:   dir,
		Descriptor: camera.Descriptor{SamplePeriod: 10 * time.Millisecond, ObjectEnabled: objectEnabled},
		ObjectCfg:  config.ObjectDetectorConfig{WatchDelay: 5 * time.Millisecond, DetectTimeout: 100 * time.Millisecond},
		TempCfg:    config.TempStorageConfig{ObjectThrottling: 0},
		Motion:     &fakeMotion{detected: motionDetected},
		Memory:     memory.New(config.MemoryConfig{RememberTime: time.Minute, AreaIntersect: 50}),
		Reporter:   rep,
	}
	return w, rep
}

func writeRecFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("frame"), 0640); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestProcessFrameDeletesOnNoMotion(t *testing.T) {
	dir := t.TempDir()
	rec := writeRecFile(t, dir, "cam0_1.rec")
	w, _ := newWatcher(t, dir, false, true)

	w.processFrame(context.Background(), rec, 1)

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected spool empty after no-motion frame, got %v", entries)
	}
}

func TestProcessFrameDeletesWhenObjectDetectionDisabled(t *testing.T) {
	dir := t.TempDir()
	rec := writeRecFile(t, dir, "cam0_2.rec")
	w, _ := newWatcher(t, dir, true, false)

	w.processFrame(context.Background(), rec, 1)

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected spool empty when object detection disabled, got %v", entries)
	}
}

func TestProcessFrameStartsRendezvousOnMotion(t *testing.T) {
	dir := t.TempDir()
	rec := writeRecFile(t, dir, "cam0_3.rec")
	w, _ := newWatcher(t, dir, true, true)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	w.processFrame(ctx, rec, 1)

	waitPath := filepath.Join(dir, "cam0_3.obj.wait")
	if _, err := os.Stat(waitPath); err != nil {
		t.Fatalf("expected %s to exist: %v", waitPath, err)
	}
}

func TestAwaitOutcomeHandlesObjNone(t *testing.T) {
	dir := t.TempDir()
	waitPath := filepath.Join(dir, "cam0_4.obj.wait")
	if err := os.WriteFile(waitPath, []byte("frame"), 0640); err != nil {
		t.Fatal(err)
	}
	w, rep := newWatcher(t, dir, true, true)

	go func() {
		time.Sleep(15 * time.Millisecond)
		os.Rename(waitPath, filepath.Join(dir, "cam0_4.obj.none"))
	}()

	w.awaitOutcome(context.Background(), waitPath)

	if len(rep.results) != 1 || rep.results[0] != false {
		t.Fatalf("expected one false NoteObjectResult, got %v", rep.results)
	}
	if _, err := os.Stat(filepath.Join(dir, "cam0_4.obj.none")); !os.IsNotExist(err) {
		t.Fatalf("expected .obj.none to be deleted")
	}
}

func TestAwaitOutcomeHandlesObjFoundAndDispatches(t *testing.T) {
	dir := t.TempDir()
	waitPath := filepath.Join(dir, "cam0_5.obj.wait")
	if err := os.WriteFile(waitPath, []byte("frame"), 0640); err != nil {
		t.Fatal(err)
	}
	w, rep := newWatcher(t, dir, true, true)

	logged := filepath.Join(dir, "actions.jsonl")
	w.Dispatcher = action.NewDispatcher("cam0", map[string]config.ActionConfig{
		"log": {Type: "log", TargetPath: logged},
	}, w.Memory, nil)

	go func() {
		time.Sleep(15 * time.Millisecond)
		foundPath := filepath.Join(dir, "cam0_5.obj.found")
		os.Rename(waitPath, foundPath)
		report := spool.DetectionReport{
			Outcome: "ok",
			Objects: []spool.DetectedObject{{Class: "person", Score: 90, Box: [4]int{1, 1, 10, 10}}},
			Frame:   foundPath,
		}
		data, _ := json.Marshal(report)
		os.WriteFile(filepath.Join(dir, "cam0_5.obj.found.info"), data, 0640)
	}()

	w.awaitOutcome(context.Background(), waitPath)

	if len(rep.results) != 1 || rep.results[0] != true {
		t.Fatalf("expected one true NoteObjectResult, got %v", rep.results)
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".jsonl" {
			t.Fatalf("expected siblings deleted, found %s", e.Name())
		}
	}
}

func TestThrottleDivisorHelper(t *testing.T) {
	if got := throttleDivisor(0, 5); got != 1 {
		t.Fatalf("got %d, want 1", got)
	}
	if got := throttleDivisor(12, 5); got != 3 {
		t.Fatalf("got %d, want 3", got)
	}
	if got := throttleDivisor(7, 0); got != 1 {
		t.Fatalf("got %d, want 1", got)
	}
}
