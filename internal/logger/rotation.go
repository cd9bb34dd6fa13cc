package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// RotatingWriter is an io.Writer over a log file that rolls the file over
// once it grows past maxSize or gets older than maxAge.
type RotatingWriter struct {
	filename   string
	maxSize    int64
	maxAge     time.Duration
	maxBackups int
	compress   bool

	mu         sync.Mutex
	file       *os.File
	size       int64
	lastRotate time.Time
}

// NewRotatingWriter opens (or creates) filename for appending.
func NewRotatingWriter(filename string, maxSize int64, maxAge time.Duration, maxBackups int, compress bool) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	rw := &RotatingWriter{
		filename:   filename,
		maxSize:    maxSize,
		maxAge:     maxAge,
		maxBackups: maxBackups,
		compress:   compress,
	}
	if err := rw.open(); err != nil {
		return nil, err
	}
	return rw, nil
}

func (rw *RotatingWriter) open() error {
	file, err := os.OpenFile(rw.filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	rw.file = file
	rw.size = stat.Size()
	rw.lastRotate = time.Now()
	return nil
}

// Write implements io.Writer.
func (rw *RotatingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.needsRotation(int64(len(p))) {
		if err := rw.rotate(); err != nil {
			return 0, fmt.Errorf("rotate log file: %w", err)
		}
	}

	n, err := rw.file.Write(p)
	rw.size += int64(n)
	return n, err
}

// Close closes the current log file.
func (rw *RotatingWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return nil
	}
	err := rw.file.Close()
	rw.file = nil
	return err
}

func (rw *RotatingWriter) needsRotation(incoming int64) bool {
	if rw.maxSize > 0 && rw.size > 0 && rw.size+incoming > rw.maxSize {
		return true
	}
	return rw.maxAge > 0 && time.Since(rw.lastRotate) >= rw.maxAge
}

func (rw *RotatingWriter) rotate() error {
	if err := rw.file.Close(); err != nil {
		return fmt.Errorf("close current file: %w", err)
	}

	rotated := fmt.Sprintf("%s.%s", rw.filename, time.Now().Format("2006-01-02-15-04-05.000"))
	if err := os.Rename(rw.filename, rotated); err != nil {
		return fmt.Errorf("rename log file: %w", err)
	}

	if rw.compress {
		if err := gzipFile(rotated); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to compress log file %s: %v\n", rotated, err)
		}
	}
	if err := rw.cleanupOldBackups(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to cleanup old log backups: %v\n", err)
	}

	return rw.open()
}

// gzipFile replaces filename with filename.gz.
func gzipFile(filename string) error {
	src, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("open source file: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(filename + ".gz")
	if err != nil {
		return fmt.Errorf("create compressed file: %w", err)
	}
	zw := gzip.NewWriter(dst)
	if _, err := io.Copy(zw, src); err != nil {
		_ = dst.Close()
		return fmt.Errorf("compress file: %w", err)
	}
	if err := zw.Close(); err != nil {
		_ = dst.Close()
		return fmt.Errorf("close gzip writer: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("close compressed file: %w", err)
	}
	_ = src.Close()
	return os.Remove(filename)
}

func (rw *RotatingWriter) cleanupOldBackups() error {
	if rw.maxBackups <= 0 {
		return nil
	}
	dir := filepath.Dir(rw.filename)
	prefix := filepath.Base(rw.filename) + "."

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read log directory: %w", err)
	}

	type backup struct {
		path    string
		modTime time.Time
	}
	var backups []backup
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, backup{path: filepath.Join(dir, entry.Name()), modTime: info.ModTime()})
	}
	if len(backups) <= rw.maxBackups {
		return nil
	}

	// oldest first
	sort.Slice(backups, func(i, j int) bool { return backups[i].modTime.Before(backups[j].modTime) })
	for _, b := range backups[:len(backups)-rw.maxBackups] {
		if err := os.Remove(b.path); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to remove old backup %s: %v\n", b.path, err)
		}
	}
	return nil
}
