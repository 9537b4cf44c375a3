// SPDX-License-Identifier: MIT

// Package spool implements the Frame Spool's filename-extension protocol: a
// flat, memory-backed directory where frames move through
//
//	<f>.rec -> <f>.wch -> <f>.obj.wait -> <f>.obj.start (detector-private)
//	                                    -> <f>.obj.found + <f>.obj.found.info
//	                                    | <f>.obj.none
//
// via atomic os.Rename. Every stage transition is a rename, never a copy, so
// a frame is always owned by exactly one process and a crash mid-pipeline
// leaves it parked at its last completed stage rather than corrupted.
package spool

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Filename suffixes for each spool stage.
const (
	SuffixRecorded = ".rec"
	SuffixWatched  = ".wch"
	SuffixObjWait  = ".obj.wait"
	SuffixObjStart = ".obj.start"
	SuffixObjFound = ".obj.found"
	SuffixObjNone  = ".obj.none"
	SuffixInfo     = ".obj.found.info"
)

// ErrVanished is returned when a rename's source file no longer exists —
// the watcher pipeline's "if the source vanished, skip" case.
var ErrVanished = errors.New("spool: source frame vanished")

// DetectedObject is one classified bounding box from an object detector.
type DetectedObject struct {
	Class string     `json:"class"`
	Score float64    `json:"score"` // 0..100, percentage
	Box   [4]int     `json:"box"`   // x1, y1, x2, y2
}

// DetectionReport is the sidecar JSON written alongside an .obj.found frame.
type DetectionReport struct {
	Outcome string           `json:"outcome"` // "ok" or an error string
	Objects []DetectedObject `json:"objects"`
	Frame   string           `json:"frame"`
}

func rename(from, to string) (string, error) {
	if _, err := os.Stat(from); err != nil {
		if os.IsNotExist(err) {
			return "", ErrVanished
		}
		return "", err
	}
	if err := os.Rename(from, to); err != nil {
		if os.IsNotExist(err) {
			return "", ErrVanished
		}
		return "", fmt.Errorf("spool: rename %s -> %s: %w", from, to, err)
	}
	return to, nil
}

func withSuffix(path, oldSuffix, newSuffix string) string {
	return strings.TrimSuffix(path, oldSuffix) + newSuffix
}

// ClaimForWatch renames a freshly-produced frame from .rec to .wch,
// claiming it for the watcher pipeline.
func ClaimForWatch(recPath string) (string, error) {
	return rename(recPath, withSuffix(recPath, SuffixRecorded, SuffixWatched))
}

// StartRendezvous renames a motion-positive frame from .wch to .obj.wait,
// publishing it for the object-detector worker to pick up.
func StartRendezvous(wchPath string) (string, error) {
	return rename(wchPath, withSuffix(wchPath, SuffixWatched, SuffixObjWait))
}

// ClaimForDetect renames an .obj.wait frame to .obj.start, the detector's
// private claim so two detector workers never race on the same frame.
func ClaimForDetect(waitPath string) (string, error) {
	return rename(waitPath, withSuffix(waitPath, SuffixObjWait, SuffixObjStart))
}

// MarkFound renames an .obj.start frame to .obj.found and writes the
// Detection Report as its JSON sidecar.
func MarkFound(startPath string, report DetectionReport) (string, error) {
	foundPath, err := rename(startPath, withSuffix(startPath, SuffixObjStart, SuffixObjFound))
	if err != nil {
		return "", err
	}

	infoPath := strings.TrimSuffix(foundPath, SuffixObjFound) + SuffixInfo
	data, err := json.Marshal(report)
	if err != nil {
		return foundPath, fmt.Errorf("spool: marshal detection report: %w", err)
	}
	if err := os.WriteFile(infoPath, data, 0640); err != nil {
		return foundPath, fmt.Errorf("spool: write sidecar %s: %w", infoPath, err)
	}
	return foundPath, nil
}

// MarkNone renames an .obj.start frame to .obj.none: no surviving objects,
// or a detector inference error.
func MarkNone(startPath string) (string, error) {
	return rename(startPath, withSuffix(startPath, SuffixObjStart, SuffixObjNone))
}

// ReadReport reads and parses the sidecar JSON for an .obj.found frame.
func ReadReport(foundPath string) (DetectionReport, error) {
	infoPath := strings.TrimSuffix(foundPath, SuffixObjFound) + SuffixInfo
	data, err := os.ReadFile(infoPath)
	if err != nil {
		return DetectionReport{}, fmt.Errorf("spool: read sidecar %s: %w", infoPath, err)
	}
	var report DetectionReport
	if err := json.Unmarshal(data, &report); err != nil {
		return DetectionReport{}, fmt.Errorf("spool: parse sidecar %s: %w", infoPath, err)
	}
	return report, nil
}

// DeleteSiblings removes every file that shares the frame's base name
// (before its first dot) — the final cleanup step owned by the watcher
// pipeline after it has consumed an .obj.found/.obj.none outcome.
func DeleteSiblings(anyStagePath string) error {
	dir := filepath.Dir(anyStagePath)
	base := baseName(anyStagePath)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("spool: list %s: %w", dir, err)
	}

	var firstErr error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if baseName(e.Name()) != base {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Delete removes a single spool file, tolerating a concurrent deletion.
func Delete(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// baseName returns the portion of a spool filename before its first dot,
// e.g. "cam0_42_person.obj.found" -> "cam0_42_person".
func baseName(path string) string {
	name := filepath.Base(path)
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}

// ListByStage returns all files in dir carrying the given suffix, sorted by
// name as plain strings. Frame indexes in "{camera}_{frame_index}_{label}"
// are not zero-padded, so this is chronological within one camera only
// among indexes of the same digit count (cam0_10 sorts before cam0_9).
func ListByStage(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("spool: list %s: %w", dir, err)
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), suffix) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// FrameName builds the canonical spool filename for a frame.
func FrameName(camera string, frameIndex int64, label string) string {
	if label == "" {
		return fmt.Sprintf("%s_%d%s", camera, frameIndex, SuffixRecorded)
	}
	return fmt.Sprintf("%s_%d_%s%s", camera, frameIndex, label, SuffixRecorded)
}
