// SPDX-License-Identifier: MIT

// Package camera defines the Camera Descriptor value type: the immutable,
// fully-resolved per-camera configuration bundle the rest of the daemon
// operates on.
package camera

import (
	"fmt"
	"strings"
	"time"

	"github.com/zebatus/sxvrs-go/internal/config"
)

// Descriptor is the immutable configuration bundle for one camera instance.
// It is built once at startup from config.CameraConfig and never mutated
// afterward.
type Descriptor struct {
	Name      string // stable, sanitized camera name
	StreamURL string
	PingAddr  string // reachability probe target (IP or host)

	StoragePath      string
	StorageMaxBytes  int64
	RecorderCmd      string // command template for recording mode
	SnapshotCmd      string // command template for snapshot-only mode

	FrameWidth, FrameHeight, FrameChannels int

	SegmentDuration    time.Duration
	SamplePeriod       time.Duration
	PingInterval       time.Duration
	StatusInterval     time.Duration
	StartErrThreshold  time.Duration
	StartErrAttemptCnt int
	StartErrSleep      time.Duration
	StopTimeout        time.Duration

	MotionEnabled bool
	ObjectEnabled bool
	Motion        config.MotionConfig
	Memory        config.MemoryConfig
	Actions       map[string]config.ActionConfig

	AutoStart bool
}

// NewDescriptor validates a merged CameraConfig and returns an immutable
// Descriptor, rejecting malformed config at startup.
func NewDescriptor(name string, cc config.CameraConfig) (Descriptor, error) {
	name = SanitizeName(name)

	if cc.StreamURL == "" {
		return Descriptor{}, fmt.Errorf("camera %q: stream_url cannot be empty", name)
	}
	if cc.StoragePath == "" {
		return Descriptor{}, fmt.Errorf("camera %q: storage_path cannot be empty", name)
	}
	if cc.StorageMaxSizeGB <= 0 {
		return Descriptor{}, fmt.Errorf("camera %q: storage_max_size must be positive", name)
	}
	if cc.CmdRecorderStart == "" {
		return Descriptor{}, fmt.Errorf("camera %q: cmd_recorder_start cannot be empty", name)
	}

	d := Descriptor{
		Name:               name,
		StreamURL:          cc.StreamURL,
		PingAddr:           cc.IP,
		StoragePath:        cc.StoragePath,
		StorageMaxBytes:    int64(cc.StorageMaxSizeGB * 1024 * 1024 * 1024),
		RecorderCmd:        cc.CmdRecorderStart,
		SnapshotCmd:        cc.CmdTakeSnapshot,
		FrameWidth:         cc.FrameWidth,
		FrameHeight:        cc.FrameHeight,
		FrameChannels:      cc.FrameChannels,
		SegmentDuration:    cc.SegmentDuration,
		SamplePeriod:       cc.SamplePeriod,
		PingInterval:       cc.CameraPingInterval,
		StatusInterval:     cc.SendStatusInterval,
		StartErrThreshold:  cc.StartErrorThreshold,
		StartErrAttemptCnt: cc.StartErrorAttemptCnt,
		StartErrSleep:      cc.StartErrorSleep,
		StopTimeout:        cc.StopTimeout,
		MotionEnabled:      cc.MotionEnabled,
		ObjectEnabled:      cc.ObjectEnabled,
		Motion:             cc.Motion,
		Memory:             cc.Memory,
		Actions:            cc.Actions,
		AutoStart:          cc.AutoStart,
	}

	if d.PingAddr == "" {
		d.PingAddr = hostFromURL(cc.StreamURL)
	}
	if d.StartErrAttemptCnt <= 0 {
		d.StartErrAttemptCnt = 3
	}
	if d.StopTimeout <= 0 {
		d.StopTimeout = 5 * time.Second
	}

	return d, nil
}

// hostFromURL extracts a best-effort host for the reachability probe from a
// stream URL like "rtsp://10.0.0.5:554/stream1".
func hostFromURL(u string) string {
	rest := u
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.IndexAny(rest, "/:"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

const (
	// MaxNameLength is the maximum length for a sanitized camera name.
	MaxNameLength = 64
	// maxRawInputLength rejects pathological input before processing it.
	maxRawInputLength = 1024
)

// SanitizeName sanitizes a camera name for safe use in file paths, topic
// names and the spool's filename protocol.
//
// Sanitization rules:
//  1. Reject suspicious patterns (path traversal, command injection): return a fallback name
//  2. Truncate to 64 characters maximum
//  3. Replace non-alphanumeric characters with underscore
//  4. Collapse consecutive underscores
//  5. Strip leading and trailing underscores
//  6. Prefix "cam_" if starts with digit
//  7. Return a fallback name if empty after sanitization
func SanitizeName(name string) string {
	if name == "" || len(name) > maxRawInputLength || containsControlChars(name) {
		return fallbackName()
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, "/$") || strings.HasPrefix(name, "-") {
		return fallbackName()
	}

	if len(name) > MaxNameLength {
		name = name[:MaxNameLength]
	}

	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if isAlphanumeric(c) {
			b.WriteByte(c)
		} else {
			b.WriteByte('_')
		}
	}
	sanitized := collapseUnderscores(b.String())
	sanitized = strings.Trim(sanitized, "_")

	if len(sanitized) > 0 && sanitized[0] >= '0' && sanitized[0] <= '9' {
		sanitized = "cam_" + sanitized
		if len(sanitized) > MaxNameLength {
			sanitized = strings.TrimRight(sanitized[:MaxNameLength], "_")
		}
	}
	if sanitized == "" {
		return fallbackName()
	}
	return sanitized
}

func isAlphanumeric(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func collapseUnderscores(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevUnderscore := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '_' {
			if prevUnderscore {
				continue
			}
			prevUnderscore = true
		} else {
			prevUnderscore = false
		}
		b.WriteByte(c)
	}
	return b.String()
}

func containsControlChars(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 && c != 0x09 && c != 0x0A && c != 0x0D {
			return true
		}
		if c == 0x7F {
			return true
		}
	}
	return false
}

func fallbackName() string {
	return fmt.Sprintf("unknown_camera_%d", time.Now().Unix())
}
