//go:build cgo

// Package motion implements the Motion Detector: a per-camera, stateful
// frame-difference comparator that decides whether a spooled frame shows
// enough change to warrant object detection.
package motion

import (
	"fmt"
	"image"
	"math/rand"

	"gocv.io/x/gocv"

	"github.com/zebatus/sxvrs-go/internal/config"
)

// Detector compares each new frame against a rolling background window.
// It is stateful and must not be shared across cameras; one Detector per
// camera, called from a single goroutine.
type Detector struct {
	cfg config.MotionConfig

	scale    float64
	scaleSet bool

	contourMinArea, contourMaxArea float64
	areaSet                        bool

	backgrounds []gocv.Mat

	lastBackground    gocv.Mat
	hasLastBackground bool

	framesChanged int
	framesStatic  int
}

// New creates a Detector for one camera's motion configuration.
func New(cfg config.MotionConfig) *Detector {
	return &Detector{cfg: cfg}
}

// Close releases retained background frames.
func (d *Detector) Close() {
	for _, m := range d.backgrounds {
		m.Close()
	}
	d.backgrounds = nil
	if d.hasLastBackground {
		d.lastBackground.Close()
		d.hasLastBackground = false
	}
}

// Detect loads the frame at path and compares it to the background window,
// returning true once enough consecutive frames have changed
// (cfg.MinFramesChanged). The first frame (no background yet) always
// returns false.
func (d *Detector) Detect(path string) (bool, error) {
	orig := gocv.IMRead(path, gocv.IMReadColor)
	if orig.Empty() {
		return false, fmt.Errorf("motion: cannot read frame %s", path)
	}
	defer orig.Close()

	height, width := orig.Rows(), orig.Cols()
	if !d.scaleSet {
		d.scale = computeScale(height, width, d.cfg.MaxImageHeight, d.cfg.MaxImageWidth)
		d.scaleSet = true
	}

	frame := orig
	ownsFrame := false
	if d.scale < 1 {
		resized := gocv.NewMat()
		newSize := image.Pt(int(float64(width)*d.scale), int(float64(height)*d.scale))
		gocv.Resize(orig, &resized, newSize, 0, 0, gocv.InterpolationDefault)
		frame = resized
		ownsFrame = true
		height, width = frame.Rows(), frame.Cols()
	}
	if ownsFrame {
		defer frame.Close()
	}

	gray := gocv.NewMat()
	gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)

	d.backgrounds = append(d.backgrounds, gray)
	for len(d.backgrounds) > maxInt(d.cfg.BgFrameCount, 2) {
		old := d.backgrounds[0]
		old.Close()
		d.backgrounds = d.backgrounds[1:]
	}

	if len(d.backgrounds) < 2 {
		return false, nil
	}

	idx := 0
	if len(d.backgrounds) > 2 {
		idx = rand.Intn(len(d.backgrounds) - 2)
	}
	prev := d.backgrounds[idx]

	delta := gocv.NewMat()
	defer delta.Close()
	gocv.AbsDiff(prev, gray, &delta)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(delta, &thresh, float32(d.cfg.Threshold), 255, gocv.ThresholdBinary)

	var motionDetected bool
	if d.cfg.ContourMode {
		var err error
		motionDetected, err = d.detectByContour(thresh, height, width)
		if err != nil {
			d.discardNewestBackground()
			return false, nil // too many contours: treat as noise, not motion
		}
	} else {
		mean := gocv.NewMat()
		defer mean.Close()
		stddev := gocv.NewMat()
		defer stddev.Close()
		gocv.MeanStdDev(delta, &mean, &stddev)
		dev := stddev.GetDoubleAt(0, 0)
		motionDetected = dev > d.cfg.DiffThreshold
	}

	if motionDetected {
		d.backgroundCheck()
		d.framesChanged++
		d.framesStatic = 0
		motionDetected = d.framesChanged >= d.cfg.MinFramesChanged
	} else {
		d.framesStatic++
		if d.framesStatic >= d.cfg.MaxFramesStatic && d.framesChanged > 0 {
			d.framesChanged = 0
		}
	}

	return motionDetected, nil
}

// backgroundCheck compares the newest background frame against the previous
// one retained across calls and discards the newest from the background
// window if the scene itself shifted significantly, rather than holding it
// as a reference for future comparisons. Without this, a camera pan or a
// lighting change gets baked into the background and every frame after it
// reads as "changed" until the window rolls past it.
func (d *Detector) backgroundCheck() {
	if len(d.backgrounds) == 0 {
		return
	}
	newest := d.backgrounds[len(d.backgrounds)-1]

	if !d.hasLastBackground {
		d.lastBackground = newest.Clone()
		d.hasLastBackground = true
		return
	}

	delta := gocv.NewMat()
	gocv.AbsDiff(d.lastBackground, newest, &delta)
	defer delta.Close()

	d.lastBackground.Close()
	d.lastBackground = newest.Clone()

	mean := gocv.NewMat()
	defer mean.Close()
	stddev := gocv.NewMat()
	defer stddev.Close()
	gocv.MeanStdDev(delta, &mean, &stddev)
	dev := stddev.GetDoubleAt(0, 0)

	if dev > d.cfg.DiffThreshold {
		d.discardNewestBackground()
	}
}

// discardNewestBackground drops the most recently appended background
// frame, used both when the scene shifted too much to trust it and when the
// contour detector found pathologically many contours in it.
func (d *Detector) discardNewestBackground() {
	if len(d.backgrounds) == 0 {
		return
	}
	last := len(d.backgrounds) - 1
	d.backgrounds[last].Close()
	d.backgrounds = d.backgrounds[:last]
}

// errTooManyContours signals the "skip this frame" path, matching the
// Python detector's behavior of discarding frames with pathologically
// many contours (sensor noise, not motion).
type errTooManyContours struct{ count, max int }

func (e errTooManyContours) Error() string {
	return fmt.Sprintf("too many contours: %d > %d", e.count, e.max)
}

func (d *Detector) detectByContour(thresh gocv.Mat, height, width int) (bool, error) {
	if !d.areaSet {
		d.contourMinArea = defineArea(d.cfg.ContourMinArea, d.cfg.AreaIsPercent, height, width)
		d.contourMaxArea = defineArea(d.cfg.ContourMaxArea, d.cfg.AreaIsPercent, height, width)
		d.areaSet = true
	}

	dilated := gocv.NewMat()
	defer dilated.Close()
	kernel := gocv.NewMat()
	defer kernel.Close()
	gocv.Dilate(thresh, &dilated, kernel)

	contours := gocv.FindContours(dilated, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	if contours.Size() > d.cfg.ContourMaxCount {
		return false, errTooManyContours{count: contours.Size(), max: d.cfg.ContourMaxCount}
	}

	var maxArea float64
	for i := 0; i < contours.Size(); i++ {
		area := gocv.ContourArea(contours.At(i))
		if area > maxArea {
			maxArea = area
		}
	}

	return maxArea >= d.contourMinArea && maxArea <= d.contourMaxArea, nil
}

// computeScale returns the downscale factor applied before comparison,
// never upscaling.
func computeScale(height, width, maxHeight, maxWidth int) float64 {
	scale := 1.0
	if maxHeight > 0 && height > maxHeight {
		if r := float64(maxHeight) / float64(height); r < scale {
			scale = r
		}
	}
	if maxWidth > 0 && width > maxWidth {
		if r := float64(maxWidth) / float64(width); r < scale {
			scale = r
		}
	}
	return scale
}

// defineArea resolves a configured contour area threshold, which may be an
// absolute pixel count or (when areaIsPercent) a percentage of the frame.
func defineArea(value float64, isPercent bool, height, width int) float64 {
	if isPercent {
		return value * float64(height*width) / 100
	}
	return value
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
