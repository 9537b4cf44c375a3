// SPDX-License-Identifier: MIT

// Package watcher implements the Watcher Pipeline: it
// consumes frames from the Frame Spool, runs motion detection, rendezvous
// with the object detector, deduplicates via Detection Memory, dispatches
// actions, and maintains throttling. One Watcher runs per camera.
package watcher

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"sync/atomic"
	"time"

	"github.com/zebatus/sxvrs-go/internal/action"
	"github.com/zebatus/sxvrs-go/internal/camera"
	"github.com/zebatus/sxvrs-go/internal/config"
	"github.com/zebatus/sxvrs-go/internal/memory"
	"github.com/zebatus/sxvrs-go/internal/spool"
	"github.com/zebatus/sxvrs-go/internal/util"
)

// MotionDetector is the subset of motion.Detector the Watcher needs, so
// tests can supply a fake without cgo.
type MotionDetector interface {
	Detect(path string) (bool, error)
}

// CounterReporter is the subset of supervisor.Supervisor the Watcher needs
// for consecutive-no-object throttling.
type CounterReporter interface {
	NoteObjectResult(found bool)
	ThrottleDivisor(objectThrottling float64) int
}

// Counters are the pipeline's own rolling counts, read by the supervisor's
// status publication.
type Counters struct {
	FramesAnalyzed  int64
	MotionFrames    int64
	ObjectFrames    int64
	SuppressedByMem int64
}

// Watcher drives one camera's spool through the per-frame algorithm.
type Watcher struct {
	CameraName string
	SpoolDir   string
	Descriptor camera.Descriptor
	ObjectCfg  config.ObjectDetectorConfig
	TempCfg    config.TempStorageConfig

	Motion     MotionDetector
	Memory     *memory.Memory
	Dispatcher *action.Dispatcher
	Reporter   CounterReporter
	Logger     io.Writer

	counters Counters
	iter     int64
}

func (w *Watcher) logf(format string, v ...any) {
	if w.Logger != nil {
		fmt.Fprintf(w.Logger, "[watcher:%s] "+format+"\n", append([]any{w.CameraName}, v...)...)
	}
}

// CountersSnapshot returns a snapshot of the rolling counters.
func (w *Watcher) CountersSnapshot() Counters {
	return Counters{
		FramesAnalyzed:  atomic.LoadInt64(&w.counters.FramesAnalyzed),
		MotionFrames:    atomic.LoadInt64(&w.counters.MotionFrames),
		ObjectFrames:    atomic.LoadInt64(&w.counters.ObjectFrames),
		SuppressedByMem: atomic.LoadInt64(&w.counters.SuppressedByMem),
	}
}

// Run polls the spool for newly-recorded frames and fans out one goroutine
// per claimed frame until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context, enabled func() bool) error {
	ticker := time.NewTicker(w.Descriptor.SamplePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if enabled != nil && !enabled() {
				continue
			}
			w.sweep(ctx)
		}
	}
}

// sweep claims every .rec frame currently in the spool and fans out one
// short-lived task per frame.
func (w *Watcher) sweep(ctx context.Context) {
	recs, err := spool.ListByStage(w.SpoolDir, spool.SuffixRecorded)
	if err != nil {
		w.logf("list spool: %v", err)
		return
	}

	for _, rec := range recs {
		iter := atomic.AddInt64(&w.iter, 1)
		rec := rec
		util.SafeGo("watcher-frame", w.Logger, func() {
			w.processFrame(ctx, rec, iter)
		}, nil)
	}
}

// processFrame runs claim, motion-check, and rendezvous-start for one frame.
func (w *Watcher) processFrame(ctx context.Context, recPath string, iter int64) {
	wchPath, err := spool.ClaimForWatch(recPath)
	if err != nil {
		if err != spool.ErrVanished {
			w.logf("claim %s: %v", recPath, err)
		}
		return
	}

	atomic.AddInt64(&w.counters.FramesAnalyzed, 1)

	// Throttling: pre-emptively drop frames once consecutive-no-object
	// pressure crosses the configured divisor.
	if w.Reporter != nil {
		if t := w.Reporter.ThrottleDivisor(w.TempCfg.ObjectThrottling); t > 1 && iter%int64(t) != 0 {
			spool.Delete(wchPath)
			return
		}
	}

	if w.Motion != nil {
		motionDetected, err := w.Motion.Detect(wchPath)
		if err != nil {
			w.logf("motion detect %s: %v", wchPath, err)
			spool.Delete(wchPath)
			return
		}
		if !motionDetected {
			spool.Delete(wchPath)
			return
		}
	}
	atomic.AddInt64(&w.counters.MotionFrames, 1)

	if !w.Descriptor.ObjectEnabled {
		spool.Delete(wchPath)
		return
	}

	waitPath, err := spool.StartRendezvous(wchPath)
	if err != nil {
		if err != spool.ErrVanished {
			w.logf("start rendezvous %s: %v", wchPath, err)
		}
		return
	}
	atomic.AddInt64(&w.counters.ObjectFrames, 1)

	w.awaitOutcome(ctx, waitPath)
}

// awaitOutcome polls for the object detector's verdict, handling the
// .obj.none, .obj.found, and timeout outcomes.
func (w *Watcher) awaitOutcome(ctx context.Context, waitPath string) {
	delay := w.ObjectCfg.WatchDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	deadline := time.Now().Add(w.ObjectCfg.DetectTimeout)

	base := stripSuffix(waitPath, spool.SuffixObjWait)
	nonePath := base + spool.SuffixObjNone
	foundPath := base + spool.SuffixObjFound

	ticker := time.NewTicker(delay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if _, err := os.Stat(nonePath); err == nil {
			if w.Reporter != nil {
				w.Reporter.NoteObjectResult(false)
			}
			spool.Delete(nonePath)
			return
		}
		if _, err := os.Stat(foundPath); err == nil {
			w.handleFound(foundPath)
			return
		}

		if w.ObjectCfg.DetectTimeout > 0 && time.Now().After(deadline) {
			w.logf("timeout awaiting detector outcome for %s", waitPath)
			if w.Reporter != nil {
				w.Reporter.NoteObjectResult(false)
			}
			spool.DeleteSiblings(waitPath)
			return
		}
	}
}

// handleFound implements step 5's .obj.found branch: read the report,
// fold each detection into memory, and dispatch actions if eligible.
func (w *Watcher) handleFound(foundPath string) {
	report, err := spool.ReadReport(foundPath)
	if err != nil {
		w.logf("read report %s: %v", foundPath, err)
		spool.DeleteSiblings(foundPath)
		return
	}

	now := time.Now()
	objects := make([]action.Object, 0, len(report.Objects))
	anyNotSuppressed := false
	for _, det := range report.Objects {
		clusterID, eligible := -1, true
		if w.Memory != nil {
			clusterID, eligible = w.Memory.Add(det.Class, det.Box, now)
		}
		if eligible {
			anyNotSuppressed = true
		} else {
			atomic.AddInt64(&w.counters.SuppressedByMem, 1)
		}
		objects = append(objects, action.Object{Detection: det, ClusterID: clusterID, InMemory: !eligible})
	}

	if w.Reporter != nil {
		w.Reporter.NoteObjectResult(anyNotSuppressed)
	}

	if w.Dispatcher != nil && len(objects) > 0 {
		w.Dispatcher.Dispatch(report.Outcome, objects, foundPath)
	}

	spool.DeleteSiblings(foundPath)
}

func stripSuffix(path, suffix string) string {
	if len(path) >= len(suffix) && path[len(path)-len(suffix):] == suffix {
		return path[:len(path)-len(suffix)]
	}
	return path
}

// throttleDivisor mirrors supervisor.Supervisor.ThrottleDivisor's formula
// for callers that only have a raw count (used by tests).
func throttleDivisor(consecutiveNoObject int, objectThrottling float64) int {
	if objectThrottling <= 0 || consecutiveNoObject == 0 {
		return 1
	}
	return int(math.Ceil(float64(consecutiveNoObject) / objectThrottling))
}
