//go:build cgo

// SPDX-License-Identifier: MIT

package action

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/zebatus/sxvrs-go/internal/spool"
)

// Painter draws the configured detection polygon and per-object boxes +
// labels onto a frame, then writes the result as a JPEG at the given
// quality. Grounded on cls/Painter.py's
// draw-polygon-then-boxes ordering.
type Painter struct{}

// NewPainter constructs a Painter.
func NewPainter() *Painter {
	return &Painter{}
}

var (
	boxColor  = color.RGBA{R: 0, G: 200, B: 0, A: 0}
	polyColor = color.RGBA{R: 200, G: 0, B: 0, A: 0}
)

// Paint reads srcPath, draws polygon and object boxes/labels, and writes
// the annotated image to dstPath at quality (1..100; 0 uses gocv's default).
func (p *Painter) Paint(srcPath, dstPath string, objects []spool.DetectedObject, polygon [][2]int, quality int) error {
	img := gocv.IMRead(srcPath, gocv.IMReadColor)
	if img.Empty() {
		return fmt.Errorf("painter: cannot read %s", srcPath)
	}
	defer img.Close()

	if len(polygon) >= 3 {
		pts := make([]image.Point, len(polygon))
		for i, pt := range polygon {
			pts[i] = image.Pt(pt[0], pt[1])
		}
		gocv.Polylines(&img, [][]image.Point{pts}, true, polyColor, 2)
	}

	for _, o := range objects {
		rect := image.Rect(o.Box[0], o.Box[1], o.Box[2], o.Box[3])
		gocv.Rectangle(&img, rect, boxColor, 2)
		label := fmt.Sprintf("%s %.0f%%", o.Class, o.Score)
		gocv.PutText(&img, label, image.Pt(o.Box[0], o.Box[1]-6), gocv.FontHersheyPlain, 1.2, boxColor, 2)
	}

	params := []int{}
	if quality > 0 {
		params = []int{gocv.IMWriteJpegQuality, quality}
	}
	if ok := gocv.IMWriteWithParams(dstPath, img, params); !ok {
		return fmt.Errorf("painter: failed to write %s", dstPath)
	}
	return nil
}
