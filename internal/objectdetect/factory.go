// SPDX-License-Identifier: MIT

package objectdetect

import (
	"fmt"
	"strings"

	"github.com/zebatus/sxvrs-go/internal/config"
)

// Select constructs the configured Detector variant.
func Select(cfg config.ObjectDetectorConfig, classes []string) (Detector, error) {
	switch strings.ToLower(cfg.Mode) {
	case "cloud":
		if cfg.CloudURL == "" {
			return nil, fmt.Errorf("objectdetect: cloud_url must be set for mode=cloud")
		}
		return NewCloudDetector(cfg.CloudURL, cfg.CloudAPIKey, cfg.MinScore, cfg.Timeout), nil
	case "local", "":
		return NewLocalDetector(cfg.ModelPath, cfg.ConfigPath, classes, cfg.MinScore)
	default:
		return nil, fmt.Errorf("objectdetect: unknown mode %q (want local or cloud)", cfg.Mode)
	}
}
