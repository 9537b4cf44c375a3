//go:build cgo

package motion

import "testing"

func TestComputeScaleNoDownscaleNeeded(t *testing.T) {
	if got := computeScale(480, 640, 720, 1280); got != 1.0 {
		t.Errorf("computeScale = %v, want 1.0", got)
	}
}

func TestComputeScaleDownscalesToSmallerRatio(t *testing.T) {
	// height needs 480/960=0.5, width needs 640/1280=0.5 -> both equal
	got := computeScale(960, 1280, 480, 640)
	if got != 0.5 {
		t.Errorf("computeScale = %v, want 0.5", got)
	}
}

func TestComputeScalePicksSmallerOfTwoRatios(t *testing.T) {
	// height ratio 480/960=0.5, width ratio 640/640=1 (no width downscale needed)
	got := computeScale(960, 640, 480, 640)
	if got != 0.5 {
		t.Errorf("computeScale = %v, want 0.5", got)
	}
}

func TestDefineAreaPercent(t *testing.T) {
	got := defineArea(50, true, 100, 100)
	if got != 5000 {
		t.Errorf("defineArea = %v, want 5000", got)
	}
}

func TestDefineAreaAbsolute(t *testing.T) {
	got := defineArea(250, false, 100, 100)
	if got != 250 {
		t.Errorf("defineArea = %v, want 250", got)
	}
}
