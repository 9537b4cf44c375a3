//go:build !cgo

package objectdetect

import "fmt"

// NewLocalDetector is unavailable in a build without cgo/gocv support.
func NewLocalDetector(modelPath, configPath string, classes []string, minScore float64) (Detector, error) {
	return nil, fmt.Errorf("objectdetect: local detector requires a build with cgo enabled")
}
