//go:build !cgo

// SPDX-License-Identifier: MIT

package motion

import (
	"fmt"

	"github.com/zebatus/sxvrs-go/internal/config"
)

// Detector is unavailable in a build without cgo/gocv support.
type Detector struct{}

// New constructs a Detector stub; Detect always errors.
func New(cfg config.MotionConfig) *Detector {
	return &Detector{}
}

// Close is a no-op on the stub.
func (d *Detector) Close() {}

// Detect always errors: motion detection requires a build with cgo enabled.
func (d *Detector) Detect(path string) (bool, error) {
	return false, fmt.Errorf("motion: detector requires a build with cgo enabled")
}
