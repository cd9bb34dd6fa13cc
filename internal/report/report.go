// Package report writes playback reports: the raw platform responses for a
// video, saved for offline debugging.
package report

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Playback holds the raw artifacts captured for one video.
type Playback struct {
	URL       string `json:"url"`
	JS        string `json:"js"`
	WatchHTML string `json:"watch_html"`
	VideoInfo string `json:"video_info"`
}

// FileName returns "yt-video-{id}-{unix}.json.gz".
func FileName(videoID string, at time.Time) string {
	return fmt.Sprintf("yt-video-%s-%d.json.gz", videoID, at.UTC().Unix())
}

// Encode writes p as gzip-compressed JSON.
func Encode(w io.Writer, p Playback) error {
	zw := gzip.NewWriter(w)
	if err := json.NewEncoder(zw).Encode(p); err != nil {
		_ = zw.Close()
		return fmt.Errorf("encode report: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flush report: %w", err)
	}
	return nil
}

// Decode reads a report written by Encode.
func Decode(r io.Reader) (Playback, error) {
	var p Playback
	zr, err := gzip.NewReader(r)
	if err != nil {
		return p, fmt.Errorf("open report: %w", err)
	}
	defer zr.Close()
	if err := json.NewDecoder(zr).Decode(&p); err != nil {
		return p, fmt.Errorf("decode report: %w", err)
	}
	return p, nil
}

// Write stores p in dir, creating it if needed, and returns the file path.
// The report is written to a temporary file and renamed into place.
func Write(dir, videoID string, at time.Time, p Playback) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(dir, FileName(videoID, at))
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	if err := Encode(f, p); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("close report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("rename report: %w", err)
	}
	return path, nil
}
