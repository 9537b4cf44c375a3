//go:build !cgo

// SPDX-License-Identifier: MIT

package action

import (
	"fmt"

	"github.com/zebatus/sxvrs-go/internal/spool"
)

// Painter is unavailable without cgo/gocv support; Paint always errors.
type Painter struct{}

// NewPainter constructs a Painter.
func NewPainter() *Painter {
	return &Painter{}
}

// Paint reports an error: annotation requires a build with cgo enabled.
func (p *Painter) Paint(srcPath, dstPath string, objects []spool.DetectedObject, polygon [][2]int, quality int) error {
	return fmt.Errorf("action: annotate requires a build with cgo enabled")
}
