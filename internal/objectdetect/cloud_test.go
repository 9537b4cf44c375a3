// SPDX-License-Identifier: MIT

package objectdetect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestCloudDetectorParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing/incorrect auth header: %q", r.Header.Get("Authorization"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"objects": []map[string]any{
				{"class": "person", "score": 91.0, "box": [4]int{10, 20, 110, 220}},
				{"class": "cat", "score": 12.0, "box": [4]int{0, 0, 5, 5}},
			},
		})
	}))
	defer srv.Close()

	dir := t.TempDir()
	framePath := filepath.Join(dir, "frame.jpg")
	if err := os.WriteFile(framePath, []byte("fake-jpeg"), 0640); err != nil {
		t.Fatal(err)
	}

	d := NewCloudDetector(srv.URL, "test-key", 50, 0)
	report, err := d.Detect(context.Background(), framePath)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(report.Objects) != 1 {
		t.Fatalf("got %d objects (expected low-score one filtered out), want 1", len(report.Objects))
	}
	if report.Objects[0].Class != "person" {
		t.Errorf("got class %q, want person", report.Objects[0].Class)
	}
}

func TestCloudDetectorErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	framePath := filepath.Join(dir, "frame.jpg")
	if err := os.WriteFile(framePath, []byte("fake-jpeg"), 0640); err != nil {
		t.Fatal(err)
	}

	d := NewCloudDetector(srv.URL, "", 50, 0)
	if _, err := d.Detect(context.Background(), framePath); err == nil {
		t.Fatal("expected error for 500 response")
	}
}
