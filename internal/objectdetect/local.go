//go:build cgo

package objectdetect

import (
	"context"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/zebatus/sxvrs-go/internal/spool"
)

// inputSize is the square blob size fed to the DNN, matching common
// MobileNet-SSD/YOLO export configurations.
const inputSize = 300

// LocalDetector runs inference on-box via a gocv.Net loaded from a model +
// config file pair (Caffe, Darknet, ONNX — whatever gocv.ReadNet supports).
type LocalDetector struct {
	net      gocv.Net
	classes  []string
	minScore float64
}

// NewLocalDetector loads a network from modelPath/configPath and returns a
// Detector that keeps scores at or above minScore (0..100, percentage).
func NewLocalDetector(modelPath, configPath string, classes []string, minScore float64) (Detector, error) {
	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return nil, fmt.Errorf("objectdetect: failed to load model %s / %s", modelPath, configPath)
	}
	return &LocalDetector{net: net, classes: classes, minScore: minScore}, nil
}

// Detect implements Detector using a single forward pass.
func (d *LocalDetector) Detect(_ context.Context, framePath string) (spool.DetectionReport, error) {
	img := gocv.IMRead(framePath, gocv.IMReadColor)
	if img.Empty() {
		return spool.DetectionReport{}, fmt.Errorf("objectdetect: cannot read frame %s", framePath)
	}
	defer img.Close()

	blob := gocv.BlobFromImage(img, 1.0/127.5, image.Pt(inputSize, inputSize), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	report := spool.DetectionReport{Outcome: "ok", Frame: framePath}

	rows := output.Size()[2]
	height, width := img.Rows(), img.Cols()

	for i := 0; i < rows; i++ {
		confidence := output.GetFloatAt3(0, 0, i, 2)
		score := float64(confidence) * 100
		if score < d.minScore {
			continue
		}

		classID := int(output.GetFloatAt3(0, 0, i, 1))
		class := fmt.Sprintf("class_%d", classID)
		if classID >= 0 && classID < len(d.classes) {
			class = d.classes[classID]
		}

		x1 := int(output.GetFloatAt3(0, 0, i, 3) * float32(width))
		y1 := int(output.GetFloatAt3(0, 0, i, 4) * float32(height))
		x2 := int(output.GetFloatAt3(0, 0, i, 5) * float32(width))
		y2 := int(output.GetFloatAt3(0, 0, i, 6) * float32(height))

		report.Objects = append(report.Objects, spool.DetectedObject{
			Class: class,
			Score: score,
			Box:   [4]int{x1, y1, x2, y2},
		})
	}

	return report, nil
}

// Close releases the loaded network.
func (d *LocalDetector) Close() error {
	return d.net.Close()
}
