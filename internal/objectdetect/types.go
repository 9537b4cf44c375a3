// SPDX-License-Identifier: MIT

// Package objectdetect implements the object-detector worker that drives
// the Frame Spool's rendezvous protocol: it claims
// .obj.wait frames, classifies them, and renames them to .obj.found (with a
// JSON sidecar) or .obj.none.
package objectdetect

import (
	"context"

	"github.com/zebatus/sxvrs-go/internal/spool"
)

// Detector is the narrow capability both the local (gocv) and cloud (HTTP)
// variants implement. Selection between them is configuration-driven;
// callers never branch on variant.
type Detector interface {
	// Detect classifies the frame at framePath and returns a Detection
	// Report. It must not rename or delete the frame — the detector
	// worker moves it through the spool stages, and the watcher pipeline
	// deletes it.
	Detect(ctx context.Context, framePath string) (spool.DetectionReport, error)

	// Close releases any held resources (model handles, HTTP clients).
	Close() error
}
