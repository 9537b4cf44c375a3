// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v3"
)

// ConfigFilePath is the default location for the configuration file.
const ConfigFilePath = "/etc/sxvrs/config.yaml"

// Config represents the complete sxvrs configuration tree.
type Config struct {
	Logger       LoggerConfig            `yaml:"logger" koanf:"logger"`
	MQTT         MQTTConfig              `yaml:"mqtt" koanf:"mqtt"`
	TempStorage  TempStorageConfig       `yaml:"temp_storage" koanf:"temp_storage"`
	ObjectDetect ObjectDetectorConfig    `yaml:"object_detector" koanf:"object_detector"`
	HTTPServer   HTTPServerConfig        `yaml:"http_server" koanf:"http_server"`
	Global       CameraConfig            `yaml:"global" koanf:"global"`
	Recorders    map[string]CameraConfig `yaml:"recorders" koanf:"recorders"`
}

// LoggerConfig controls the structured logger.
type LoggerConfig struct {
	Level string `yaml:"level" koanf:"level"`
	File  string `yaml:"file" koanf:"file"`
}

// MQTTConfig configures the command-bus client (internal/bus).
type MQTTConfig struct {
	Broker         string `yaml:"broker" koanf:"broker"`
	ClientID       string `yaml:"client_id" koanf:"client_id"`
	Username       string `yaml:"username" koanf:"username"`
	Password       string `yaml:"password" koanf:"password"`
	TopicPublish   string `yaml:"topic_publish" koanf:"topic_publish"`     // "clients/{source}"
	TopicSubscribe string `yaml:"topic_subscribe" koanf:"topic_subscribe"` // "daemon/{source}"
}

// TempStorageConfig configures the memory-backed Frame Spool.
type TempStorageConfig struct {
	Path               string  `yaml:"path" koanf:"path"`
	ThrottlingMinBytes int64   `yaml:"throttling_min_mem_size" koanf:"throttling_min_mem_size"`
	ThrottlingMaxBytes int64   `yaml:"throttling_max_mem_size" koanf:"throttling_max_mem_size"`
	ObjectThrottling   float64 `yaml:"object_throttling" koanf:"object_throttling"`
}

// ObjectDetectorConfig selects and configures the object-detector variant.
type ObjectDetectorConfig struct {
	Mode          string        `yaml:"mode" koanf:"mode"` // "local" or "cloud"
	ModelPath     string        `yaml:"model_path" koanf:"model_path"`
	ConfigPath    string        `yaml:"config_path" koanf:"config_path"`
	MinScore      float64       `yaml:"min_score" koanf:"min_score"` // 0..100, percentage
	CloudURL      string        `yaml:"cloud_url" koanf:"cloud_url"`
	CloudAPIKey   string        `yaml:"cloud_api_key" koanf:"cloud_api_key"`
	Timeout       time.Duration `yaml:"timeout" koanf:"timeout"`
	WatchDelay    time.Duration `yaml:"object_watch_delay" koanf:"object_watch_delay"`
	DetectTimeout time.Duration `yaml:"object_detector_timeout" koanf:"object_detector_timeout"`
}

// HTTPServerConfig configures the dashboard facade.
type HTTPServerConfig struct {
	Addr      string `yaml:"addr" koanf:"addr"`
	EnableWS  bool   `yaml:"enable_ws" koanf:"enable_ws"`
	EnableLog bool   `yaml:"enable_access_log" koanf:"enable_access_log"`
}

// ActionConfig is one entry of a camera's action list.
type ActionConfig struct {
	Type           string     `yaml:"type" koanf:"type"` // annotate|log|copy|move|mail
	Objects        []string   `yaml:"objects" koanf:"objects"`
	ObjectsExclude []string   `yaml:"objects_exclude" koanf:"objects_exclude"`
	ScoreMin       float64    `yaml:"score" koanf:"score"` // 0..100
	Polygon        [][2]int   `yaml:"area" koanf:"area"`
	UseMemory      bool       `yaml:"use_memory" koanf:"use_memory"`
	TargetPath     string     `yaml:"target_path" koanf:"target_path"`
	Quality        int        `yaml:"quality" koanf:"quality"`
	Mail           MailConfig `yaml:"mail" koanf:"mail"`
}

// MailConfig configures the mail action's SMTP-over-TLS endpoint.
type MailConfig struct {
	SMTPHost string `yaml:"smtp_host" koanf:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port" koanf:"smtp_port"`
	From     string `yaml:"from" koanf:"from"`
	To       string `yaml:"to" koanf:"to"`
	Username string `yaml:"username" koanf:"username"`
	Password string `yaml:"password" koanf:"password"`
}

// CameraConfig is the per-camera (or `global` default) configuration block.
// It is merged into an immutable camera.Descriptor at startup (GetCameraConfig).
type CameraConfig struct {
	IP                 string                  `yaml:"ip" koanf:"ip"`
	StreamURL          string                  `yaml:"stream_url" koanf:"stream_url"`
	StoragePath        string                  `yaml:"storage_path" koanf:"storage_path"`
	StorageMaxSizeGB   float64                 `yaml:"storage_max_size" koanf:"storage_max_size"`
	CmdRecorderStart   string                  `yaml:"cmd_recorder_start" koanf:"cmd_recorder_start"`
	CmdTakeSnapshot    string                  `yaml:"cmd_take_snapshot" koanf:"cmd_take_snapshot"`
	FrameWidth         int                     `yaml:"frame_width" koanf:"frame_width"`
	FrameHeight        int                     `yaml:"frame_height" koanf:"frame_height"`
	FrameChannels      int                     `yaml:"frame_channels" koanf:"frame_channels"`
	SegmentDuration    time.Duration           `yaml:"segment_duration" koanf:"segment_duration"`
	SamplePeriod       time.Duration           `yaml:"sample_period" koanf:"sample_period"`
	CameraPingInterval time.Duration           `yaml:"camera_ping_interval" koanf:"camera_ping_interval"`
	SendStatusInterval time.Duration           `yaml:"send_status_interval" koanf:"send_status_interval"`
	StartErrorThreshold time.Duration          `yaml:"start_error_threshold" koanf:"start_error_threshold"`
	StartErrorAttemptCnt int                   `yaml:"start_error_atempt_cnt" koanf:"start_error_atempt_cnt"`
	StartErrorSleep    time.Duration           `yaml:"start_error_sleep" koanf:"start_error_sleep"`
	StopTimeout        time.Duration           `yaml:"stop_timeout" koanf:"stop_timeout"`
	MotionEnabled      bool                    `yaml:"motion_enabled" koanf:"motion_enabled"`
	ObjectEnabled      bool                    `yaml:"object_enabled" koanf:"object_enabled"`
	Motion             MotionConfig            `yaml:"motion" koanf:"motion"`
	Memory             MemoryConfig            `yaml:"memory" koanf:"memory"`
	Actions            map[string]ActionConfig `yaml:"actions" koanf:"actions"`
	AutoStart          bool                    `yaml:"auto_start" koanf:"auto_start"`
}

// MotionConfig configures the Motion Detector.
type MotionConfig struct {
	BgFrameCount         int     `yaml:"motion_detector_bg_frame_count" koanf:"motion_detector_bg_frame_count"`
	MaxImageHeight       int     `yaml:"max_image_height" koanf:"max_image_height"`
	MaxImageWidth        int     `yaml:"max_image_width" koanf:"max_image_width"`
	Threshold            float64 `yaml:"motion_detector_threshold" koanf:"motion_detector_threshold"`
	ContourMode          bool    `yaml:"contour_mode" koanf:"contour_mode"`
	ContourMaxCount      int     `yaml:"motion_contour_max_count" koanf:"motion_contour_max_count"`
	ContourMinArea       float64 `yaml:"motion_contour_min_area" koanf:"motion_contour_min_area"`
	ContourMaxArea       float64 `yaml:"motion_contour_max_area" koanf:"motion_contour_max_area"`
	AreaIsPercent        bool    `yaml:"area_is_percent" koanf:"area_is_percent"`
	DiffThreshold        float64 `yaml:"detect_by_diff_threshold" koanf:"detect_by_diff_threshold"`
	MinFramesChanged     int     `yaml:"motion_min_frames_changes" koanf:"motion_min_frames_changes"`
	MaxFramesStatic      int     `yaml:"motion_max_frames_static" koanf:"motion_max_frames_static"`
}

// MemoryConfig configures Detection Memory.
type MemoryConfig struct {
	RememberTime    time.Duration `yaml:"memory_remember_time" koanf:"memory_remember_time"`
	AreaIntersect   float64       `yaml:"memory_area_intersect" koanf:"memory_area_intersect"`
	SizeSimilarity  float64       `yaml:"memory_size_similarity" koanf:"memory_size_similarity"`
	MoveThreshold   float64       `yaml:"memory_move_threshold" koanf:"memory_move_threshold"`
	Objects         []string      `yaml:"memory_objects" koanf:"memory_objects"`
	ObjectsExclude  []string      `yaml:"memory_objects_exclude" koanf:"memory_objects_exclude"`
}

// LoadConfig reads and parses the configuration file.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 - Config path is from administrator-controlled configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// atomicFile abstracts file operations used by Save for testability.
type atomicFile interface {
	Write([]byte) (int, error)
	Sync() error
	Chmod(os.FileMode) error
	Close() error
	Name() string
}

type atomicCreateTemp func(dir, pattern string) (atomicFile, error)

func defaultCreateTemp(dir, pattern string) (atomicFile, error) {
	return os.CreateTemp(dir, pattern) // #nosec G304
}

// Save writes the configuration to a YAML file using a write-temp-then-rename
// sequence so a crash mid-write never leaves a partially written config.
func (c *Config) Save(path string) error {
	return c.saveWith(path, defaultCreateTemp)
}

func (c *Config) saveWith(path string, createTemp atomicCreateTemp) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)

	tmpFile, err := createTemp(dir, ".config.*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write temp config file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp config file: %w", err)
	}
	// Config may carry MQTT/mail credentials; restrict to owner+group.
	if err := tmpFile.Chmod(0640); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp config file: %w", err)
	}

	success = true
	return nil
}

// GetCameraConfig returns the merged configuration for a camera: the
// `global` block overridden field-by-field by the camera's own `recorders`
// entry. A field overrides only when the camera sets it to a non-zero value.
// The boolean toggles are true when either block sets them, so a camera
// cannot turn off a toggle that `global` turns on. The motion and memory
// blocks always come from `global`; a camera's own motion and memory
// settings are not read.
func (c *Config) GetCameraConfig(name string) CameraConfig {
	result := c.Global

	rec, ok := c.Recorders[name]
	if !ok {
		return result
	}

	if rec.IP != "" {
		result.IP = rec.IP
	}
	if rec.StreamURL != "" {
		result.StreamURL = rec.StreamURL
	}
	if rec.StoragePath != "" {
		result.StoragePath = rec.StoragePath
	}
	if rec.StorageMaxSizeGB != 0 {
		result.StorageMaxSizeGB = rec.StorageMaxSizeGB
	}
	if rec.CmdRecorderStart != "" {
		result.CmdRecorderStart = rec.CmdRecorderStart
	}
	if rec.CmdTakeSnapshot != "" {
		result.CmdTakeSnapshot = rec.CmdTakeSnapshot
	}
	if rec.FrameWidth != 0 {
		result.FrameWidth = rec.FrameWidth
	}
	if rec.FrameHeight != 0 {
		result.FrameHeight = rec.FrameHeight
	}
	if rec.FrameChannels != 0 {
		result.FrameChannels = rec.FrameChannels
	}
	if rec.SegmentDuration != 0 {
		result.SegmentDuration = rec.SegmentDuration
	}
	if rec.SamplePeriod != 0 {
		result.SamplePeriod = rec.SamplePeriod
	}
	if rec.CameraPingInterval != 0 {
		result.CameraPingInterval = rec.CameraPingInterval
	}
	if rec.SendStatusInterval != 0 {
		result.SendStatusInterval = rec.SendStatusInterval
	}
	if rec.StartErrorThreshold != 0 {
		result.StartErrorThreshold = rec.StartErrorThreshold
	}
	if rec.StartErrorAttemptCnt != 0 {
		result.StartErrorAttemptCnt = rec.StartErrorAttemptCnt
	}
	if rec.StartErrorSleep != 0 {
		result.StartErrorSleep = rec.StartErrorSleep
	}
	if rec.StopTimeout != 0 {
		result.StopTimeout = rec.StopTimeout
	}
	result.MotionEnabled = rec.MotionEnabled || result.MotionEnabled
	result.ObjectEnabled = rec.ObjectEnabled || result.ObjectEnabled
	if len(rec.Actions) > 0 {
		result.Actions = rec.Actions
	}
	result.AutoStart = rec.AutoStart || result.AutoStart

	return result
}

// Validate checks configuration for invalid values.
func (c *Config) Validate() error {
	if err := c.Global.Validate(); err != nil {
		return fmt.Errorf("global config: %w", err)
	}
	for name, rec := range c.Recorders {
		if err := rec.ValidatePartial(); err != nil {
			return fmt.Errorf("recorder %q: %w", name, err)
		}
	}
	if c.TempStorage.Path == "" {
		return fmt.Errorf("temp_storage.path must be set")
	}
	switch c.ObjectDetect.Mode {
	case "", "local", "cloud":
	default:
		return fmt.Errorf("object_detector.mode must be local or cloud (got %q)", c.ObjectDetect.Mode)
	}
	return nil
}

// Validate checks a complete camera configuration (used for the `global` block).
func (cc *CameraConfig) Validate() error {
	if cc.StoragePath == "" {
		return fmt.Errorf("storage_path cannot be empty")
	}
	if cc.StorageMaxSizeGB <= 0 {
		return fmt.Errorf("storage_max_size must be positive")
	}
	if cc.CmdRecorderStart == "" {
		return fmt.Errorf("cmd_recorder_start cannot be empty")
	}
	return nil
}

// ValidatePartial checks a per-camera override block, which may leave any
// field at its zero value to inherit from `global`.
func (cc *CameraConfig) ValidatePartial() error {
	if cc.StorageMaxSizeGB < 0 {
		return fmt.Errorf("storage_max_size must not be negative (0 means inherit default)")
	}
	if cc.FrameChannels < 0 || cc.FrameChannels > 4 {
		return fmt.Errorf("frame_channels must be between 0 and 4")
	}
	return nil
}

// DefaultConfig returns a configuration with sensible defaults, used when no
// config file exists yet or in tests.
func DefaultConfig() *Config {
	return &Config{
		Logger: LoggerConfig{Level: "info"},
		MQTT: MQTTConfig{
			Broker:         "tcp://localhost:1883",
			ClientID:       "sxvrs-daemon",
			TopicPublish:   "clients/{source}",
			TopicSubscribe: "daemon/{source}",
		},
		TempStorage: TempStorageConfig{
			Path:               "/dev/shm/sxvrs",
			ThrottlingMinBytes: 64 * 1024 * 1024,
			ThrottlingMaxBytes: 256 * 1024 * 1024,
			ObjectThrottling:   10,
		},
		ObjectDetect: ObjectDetectorConfig{
			Mode:          "local",
			MinScore:      50,
			Timeout:       10 * time.Second,
			WatchDelay:    500 * time.Millisecond,
			DetectTimeout: 5 * time.Second,
		},
		HTTPServer: HTTPServerConfig{
			Addr:     "127.0.0.1:8090",
			EnableWS: true,
		},
		Global: CameraConfig{
			StoragePath:          "/var/lib/sxvrs/storage",
			StorageMaxSizeGB:     10,
			CmdRecorderStart:     "",
			FrameWidth:           1280,
			FrameHeight:          720,
			FrameChannels:        3,
			SegmentDuration:      time.Hour,
			SamplePeriod:         time.Second,
			CameraPingInterval:   30 * time.Second,
			SendStatusInterval:   10 * time.Second,
			StartErrorThreshold:  5 * time.Second,
			StartErrorAttemptCnt: 3,
			StartErrorSleep:      30 * time.Second,
			StopTimeout:          5 * time.Second,
			MotionEnabled:        true,
			ObjectEnabled:        true,
			Motion: MotionConfig{
				BgFrameCount:     10,
				MaxImageHeight:   480,
				MaxImageWidth:    640,
				Threshold:        25,
				ContourMode:      true,
				ContourMaxCount:  20,
				ContourMinArea:   0.5,
				ContourMaxArea:   80,
				AreaIsPercent:    true,
				DiffThreshold:    6,
				MinFramesChanged: 2,
				MaxFramesStatic:  5,
			},
			Memory: MemoryConfig{
				RememberTime:   60 * time.Second,
				AreaIntersect:  50,
				SizeSimilarity: 50,
				MoveThreshold:  10,
			},
		},
		Recorders: make(map[string]CameraConfig),
	}
}
