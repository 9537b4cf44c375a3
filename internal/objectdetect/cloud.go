// SPDX-License-Identifier: MIT

package objectdetect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/zebatus/sxvrs-go/internal/spool"
)

// DefaultCloudTimeout bounds a single inference request when the caller
// doesn't configure one.
const DefaultCloudTimeout = 10 * time.Second

// CloudDetector posts a frame's raw bytes to a remote inference endpoint
// and parses its JSON response.
type CloudDetector struct {
	baseURL    string
	apiKey     string
	minScore   float64
	httpClient *http.Client
}

// CloudOption configures a CloudDetector.
type CloudOption func(*CloudDetector)

// WithCloudHTTPClient overrides the HTTP client (e.g. for tests).
func WithCloudHTTPClient(c *http.Client) CloudOption {
	return func(d *CloudDetector) { d.httpClient = c }
}

// NewCloudDetector creates a CloudDetector targeting baseURL.
func NewCloudDetector(baseURL, apiKey string, minScore float64, timeout time.Duration, opts ...CloudOption) *CloudDetector {
	if timeout <= 0 {
		timeout = DefaultCloudTimeout
	}
	d := &CloudDetector{
		baseURL:    baseURL,
		apiKey:     apiKey,
		minScore:   minScore,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// cloudResponse is the remote endpoint's response envelope.
type cloudResponse struct {
	Objects []struct {
		Class string  `json:"class"`
		Score float64 `json:"score"`
		Box   [4]int  `json:"box"`
	} `json:"objects"`
}

// Detect implements Detector by POSTing the frame's bytes to baseURL.
func (d *CloudDetector) Detect(ctx context.Context, framePath string) (spool.DetectionReport, error) {
	data, err := os.ReadFile(framePath)
	if err != nil {
		return spool.DetectionReport{}, fmt.Errorf("objectdetect: read frame %s: %w", framePath, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL, bytes.NewReader(data))
	if err != nil {
		return spool.DetectionReport{}, fmt.Errorf("objectdetect: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return spool.DetectionReport{}, fmt.Errorf("objectdetect: cloud request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return spool.DetectionReport{}, fmt.Errorf("objectdetect: cloud returned status %d: %s", resp.StatusCode, string(body))
	}

	var cr cloudResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return spool.DetectionReport{}, fmt.Errorf("objectdetect: decode cloud response: %w", err)
	}

	report := spool.DetectionReport{Outcome: "ok", Frame: framePath}
	for _, o := range cr.Objects {
		if o.Score < d.minScore {
			continue
		}
		report.Objects = append(report.Objects, spool.DetectedObject{
			Class: o.Class,
			Score: o.Score,
			Box:   o.Box,
		})
	}
	return report, nil
}

// Close is a no-op for CloudDetector; the underlying http.Client has no
// resources that need releasing.
func (d *CloudDetector) Close() error { return nil }
