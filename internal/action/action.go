// SPDX-License-Identifier: MIT

// Package action implements the Action Dispatcher: a tagged
// variant of per-camera side effects (annotate, log, copy, move, mail),
// gated by a shared predicate and dispatched exhaustively rather than
// through a chain of string-keyed conditionals.
package action

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/zebatus/sxvrs-go/internal/config"
	"github.com/zebatus/sxvrs-go/internal/memory"
	"github.com/zebatus/sxvrs-go/internal/spool"
)

// Kind is the closed set of action variants.
type Kind string

const (
	KindAnnotate Kind = "annotate"
	KindLog      Kind = "log"
	KindCopy     Kind = "copy"
	KindMove     Kind = "move"
	KindMail     Kind = "mail"
)

// Object pairs one detection with the Detection Memory cluster it folded
// into, so the gating predicate can consult use_memory without the
// Dispatcher reaching back into the memory arena mid-dispatch.
type Object struct {
	Detection spool.DetectedObject
	ClusterID int
	InMemory  bool // matched an existing cluster rather than starting a new one
}

// Logger is the subset of *log.Logger the dispatcher needs, so callers can
// pass the supervisor's rotating logger.
type Logger interface {
	Printf(format string, v ...any)
}

// Dispatcher runs every configured action against one Detection Report for
// one camera. Actions execute independently and best-effort: a failure in
// one must not block the rest.
type Dispatcher struct {
	CameraName string
	Actions    map[string]config.ActionConfig
	Memory     *memory.Memory
	Logger     Logger
	Painter    *Painter
	Mailer     *Mailer
}

// NewDispatcher builds a Dispatcher for one camera.
func NewDispatcher(cameraName string, actions map[string]config.ActionConfig, mem *memory.Memory, logger Logger) *Dispatcher {
	return &Dispatcher{
		CameraName: cameraName,
		Actions:    actions,
		Memory:     mem,
		Logger:     logger,
		Painter:    NewPainter(),
		Mailer:     NewMailer(),
	}
}

func (d *Dispatcher) logf(format string, v ...any) {
	if d.Logger != nil {
		d.Logger.Printf(format, v...)
	}
}

// Dispatch evaluates the gating predicate for every configured action
// against outcome/objects, in deterministic (sorted-name) order, and runs
// whichever actions pass. framePath is the "current" frame; annotate may
// rewrite it to a new path for subsequent actions in the same dispatch.
func (d *Dispatcher) Dispatch(outcome string, objects []Object, framePath string) {
	names := make([]string, 0, len(d.Actions))
	for name := range d.Actions {
		names = append(names, name)
	}
	sort.Strings(names)

	current := framePath
	for _, name := range names {
		cfg := d.Actions[name]
		matched := gate(cfg, outcome, objects, d.Memory, name)
		if len(matched) == 0 {
			continue
		}

		next, err := d.run(name, cfg, matched, outcome, objects, current)
		if err != nil {
			d.logf("action %s/%s failed: %v", d.CameraName, name, err)
			continue
		}
		if next != "" {
			current = next
		}
	}
}

// run executes one action kind, returning a replacement frame path when the
// action rewrites the image (annotate only).
func (d *Dispatcher) run(name string, cfg config.ActionConfig, matched []Object, outcome string, all []Object, framePath string) (string, error) {
	switch Kind(cfg.Type) {
	case KindAnnotate:
		return d.runAnnotate(cfg, all, framePath)
	case KindLog:
		return "", d.runLog(cfg, outcome, all, framePath)
	case KindCopy:
		return "", d.runCopyOrMove(name, cfg, matched, framePath, false)
	case KindMove:
		return "", d.runCopyOrMove(name, cfg, matched, framePath, true)
	case KindMail:
		return "", d.runMail(name, cfg, matched, framePath)
	default:
		return "", fmt.Errorf("action: unknown kind %q", cfg.Type)
	}
}

func (d *Dispatcher) runAnnotate(cfg config.ActionConfig, objects []Object, framePath string) (string, error) {
	target := cfg.TargetPath
	if target == "" {
		target = framePath
	}
	dets := make([]spool.DetectedObject, len(objects))
	for i, o := range objects {
		dets[i] = o.Detection
	}
	if err := d.Painter.Paint(framePath, target, dets, cfg.Polygon, cfg.Quality); err != nil {
		return "", fmt.Errorf("annotate: %w", err)
	}
	return target, nil
}

// logLine is the JSON line appended by the log action.
type logLine struct {
	Time    time.Time               `json:"time"`
	Camera  string                  `json:"camera"`
	Outcome string                  `json:"outcome"`
	Frame   string                  `json:"frame"`
	Objects []spool.DetectedObject  `json:"objects"`
}

func (d *Dispatcher) runLog(cfg config.ActionConfig, outcome string, objects []Object, framePath string) error {
	if cfg.TargetPath == "" {
		return fmt.Errorf("log: target_path not configured")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.TargetPath), 0750); err != nil {
		return err
	}
	f, err := os.OpenFile(cfg.TargetPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err != nil {
		return err
	}
	defer f.Close()

	dets := make([]spool.DetectedObject, len(objects))
	for i, o := range objects {
		dets[i] = o.Detection
	}
	line := logLine{Time: time.Now(), Camera: d.CameraName, Outcome: outcome, Frame: framePath, Objects: dets}
	data, err := json.Marshal(line)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if _, err := w.Write(append(data, '\n')); err != nil {
		return err
	}
	return w.Flush()
}

func (d *Dispatcher) runCopyOrMove(actionName string, cfg config.ActionConfig, matched []Object, framePath string, move bool) error {
	if cfg.TargetPath == "" {
		return fmt.Errorf("copy/move: target_path not configured")
	}
	if err := os.MkdirAll(cfg.TargetPath, 0750); err != nil {
		return err
	}

	var firstErr error
	for i, o := range matched {
		if cfg.UseMemory && d.Memory != nil && d.Memory.HasTriggered(o.ClusterID, actionName) {
			continue
		}

		dst := filepath.Join(cfg.TargetPath, fmt.Sprintf("%s_%s_%d%s", d.CameraName, o.Detection.Class, i, filepath.Ext(framePath)))
		var err error
		if move {
			err = moveFile(framePath, dst)
		} else {
			err = copyFile(framePath, dst)
		}
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if cfg.UseMemory && d.Memory != nil {
			d.Memory.MarkTriggered(o.ClusterID, actionName)
		}
	}
	return firstErr
}

func (d *Dispatcher) runMail(actionName string, cfg config.ActionConfig, matched []Object, framePath string) error {
	if cfg.UseMemory {
		allInMemory := true
		for _, o := range matched {
			if !o.InMemory {
				allInMemory = false
				break
			}
		}
		if allInMemory {
			return nil
		}
	}

	if err := d.Mailer.Send(cfg.Mail, d.CameraName, framePath, matched); err != nil {
		return err
	}
	if cfg.UseMemory && d.Memory != nil {
		for _, o := range matched {
			d.Memory.MarkTriggered(o.ClusterID, actionName)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// moveFile renames src to dst, falling back to copy-then-remove across
// filesystem boundaries (mirrors shutil.move's EXDEV fallback).
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}
