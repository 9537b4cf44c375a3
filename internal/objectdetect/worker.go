// SPDX-License-Identifier: MIT

package objectdetect

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/zebatus/sxvrs-go/internal/spool"
)

// Worker polls the spool for .obj.wait frames and runs them through a
// Detector, following the rendezvous protocol verbatim:
// claim (.obj.wait -> .obj.start), detect, then .obj.found+sidecar or
// .obj.none. It never deletes or mutates files afterward — that's the
// watcher pipeline's job.
type Worker struct {
	SpoolDir string
	Detector Detector
	Interval time.Duration
	// Timeout is the watcher's object_detector_timeout for this camera. A
	// candidate whose mtime is older than Timeout-2s is left alone: the
	// watcher is about to (or already did) delete its .obj.* siblings, and
	// claiming it here would race that cleanup. Zero disables the floor.
	Timeout time.Duration
	Logger  io.Writer
}

// claimAgeMargin races the watcher's own timeout cleanup
// (internal/watcher.Watcher.awaitOutcome deletes .obj.* siblings after
// ObjectCfg.DetectTimeout). Leaving a 2-second margin keeps this worker from
// claiming a frame the watcher is about to reap out from under it.
const claimAgeMargin = 2 * time.Second

// Run polls SpoolDir every Interval until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	interval := w.Interval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			w.sweep(ctx)
		}
	}
}

func (w *Worker) sweep(ctx context.Context) {
	waiting, err := spool.ListByStage(w.SpoolDir, spool.SuffixObjWait)
	if err != nil {
		w.logf("list %s: %v", w.SpoolDir, err)
		return
	}

	var minMtime time.Time
	if w.Timeout > claimAgeMargin {
		minMtime = time.Now().Add(-(w.Timeout - claimAgeMargin))
	}

	for _, path := range waiting {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !minMtime.IsZero() {
			info, err := os.Stat(path)
			if err != nil || info.ModTime().Before(minMtime) {
				continue
			}
		}
		w.processOne(ctx, path)
	}
}

func (w *Worker) processOne(ctx context.Context, waitPath string) {
	startPath, err := spool.ClaimForDetect(waitPath)
	if err != nil {
		if err != spool.ErrVanished {
			w.logf("claim %s: %v", waitPath, err)
		}
		return
	}

	report, err := w.Detector.Detect(ctx, startPath)
	if err != nil {
		w.logf("detect %s: %v", startPath, err)
		report = spool.DetectionReport{Outcome: err.Error(), Frame: startPath}
		if _, markErr := spool.MarkNone(startPath); markErr != nil {
			w.logf("mark none %s: %v", startPath, markErr)
		}
		return
	}

	if len(report.Objects) == 0 {
		if _, err := spool.MarkNone(startPath); err != nil {
			w.logf("mark none %s: %v", startPath, err)
		}
		return
	}

	report.Outcome = "ok"
	report.Frame = startPath
	if _, err := spool.MarkFound(startPath, report); err != nil {
		w.logf("mark found %s: %v", startPath, err)
	}
}

func (w *Worker) logf(format string, args ...interface{}) {
	if w.Logger != nil {
		_, _ = fmt.Fprintf(w.Logger, "[objectdetect] "+format+"\n", args...)
	}
}
