package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ytget/ytfetch/internal/logger"
)

const (
	defaultChunkSizeBytes  = 1 << 20 // 1MB
	defaultMaxRetries      = 3       // chunk retries
	temporaryFileSuffix    = ".tmp"  // suffix for temp download
	initialBackoffDuration = 200 * time.Millisecond
	maxBackoffDuration     = 3 * time.Second
	copyBufferSizeBytes    = 32 * 1024 // 32KB

	headerRange          = "Range"
	headerContentRange   = "Content-Range"
	headerContentLength  = "Content-Length"
	headerUserAgent      = "User-Agent"
	headerAccept         = "Accept"
	headerAcceptLanguage = "Accept-Language"
	headerAcceptEncoding = "Accept-Encoding"
	headerConnection     = "Connection"
	headerCacheControl   = "Cache-Control"

	successMinHTTPStatusCode      = 200
	successMaxHTTPStatusExclusive = 400

	userAgentValue = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36"
)

var (
	// ErrEmptyDownload is returned when the server produced no bytes.
	ErrEmptyDownload = errors.New("empty download: 0 bytes written")
	// ErrSizeMismatch is returned when the written byte count differs from the reported total.
	ErrSizeMismatch = errors.New("downloaded size does not match total size")
)

// ProgressFunc receives the cumulative byte count and the total size
// (0 when unknown) after every written buffer.
type ProgressFunc func(received, total int64)

// Options tune a Downloader. Zero values use defaults; RateLimit 0 disables limiting.
type Options struct {
	ChunkSize int64
	Retries   int
	RateLimit int64 // bytes per second
	UserAgent string
}

// Downloader fetches media with ranged HTTP requests, resumes from a
// temporary file, retries failed chunks, and can cap bandwidth.
type Downloader struct {
	Client *http.Client

	chunkSize int64
	retries   int
	userAgent string
	limiter   *rate.Limiter
	log       *logger.ComponentLogger
}

// New creates a downloader. If client is nil, a default http.Client is used.
func New(client *http.Client, opts Options) *Downloader {
	if client == nil {
		client = &http.Client{}
	}
	d := &Downloader{
		Client:    client,
		chunkSize: opts.ChunkSize,
		retries:   opts.Retries,
		userAgent: opts.UserAgent,
		log:       logger.WithComponent(logger.ComponentTransfer),
	}
	if d.chunkSize <= 0 {
		d.chunkSize = defaultChunkSizeBytes
	}
	if d.retries <= 0 {
		d.retries = defaultMaxRetries
	}
	if d.userAgent == "" {
		d.userAgent = userAgentValue
	}
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < copyBufferSizeBytes {
			burst = copyBufferSizeBytes
		}
		d.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return d
}

func isGoogleVideoHost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	h := strings.ToLower(u.Hostname())
	return strings.HasSuffix(h, ".googlevideo.com") || h == "googlevideo.com"
}

func (d *Downloader) newRequest(ctx context.Context, method, urlStr string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, urlStr, nil)
	if err != nil {
		return nil, err
	}
	ua := d.userAgent
	if ua == "" {
		ua = userAgentValue
	}
	req.Header.Set(headerUserAgent, ua)
	req.Header.Set(headerAccept, "*/*")
	req.Header.Set(headerAcceptEncoding, "identity")
	req.Header.Set(headerConnection, "keep-alive")
	req.Header.Set(headerCacheControl, "no-cache")
	if !isGoogleVideoHost(urlStr) {
		req.Header.Set(headerAcceptLanguage, "en-US,en;q=0.9")
	}
	return req, nil
}

// sizeFromHeaders reads the total from Content-Range ("bytes a-b/total"),
// falling back to Content-Length.
func sizeFromHeaders(h http.Header) (int64, bool) {
	if cr := h.Get(headerContentRange); cr != "" {
		if parts := strings.Split(cr, "/"); len(parts) == 2 {
			if v, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
				return v, true
			}
		}
	}
	if cl := h.Get(headerContentLength); cl != "" {
		if v, err := strconv.ParseInt(cl, 10, 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

// detectTotalSize tries HEAD first, then GET range 0-1 to infer total size.
// googlevideo hosts reject HEAD, so they go straight to the ranged GET.
func (d *Downloader) detectTotalSize(ctx context.Context, urlStr string) (int64, error) {
	if !isGoogleVideoHost(urlStr) {
		req, err := d.newRequest(ctx, http.MethodHead, urlStr)
		if err != nil {
			return 0, err
		}
		req.Header.Set(headerRange, "bytes=0-1")
		if resp, err := d.Client.Do(req); err == nil {
			_ = resp.Body.Close()
			d.logger().Debug("HEAD probe", map[string]interface{}{"status": resp.StatusCode})
			if v, ok := sizeFromHeaders(resp.Header); ok {
				return v, nil
			}
		}
	}

	req, err := d.newRequest(ctx, http.MethodGet, urlStr)
	if err != nil {
		return 0, err
	}
	req.Header.Set(headerRange, "bytes=0-1")
	resp, err := d.Client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	d.logger().Debug("GET range probe", map[string]interface{}{"status": resp.StatusCode})
	if v, ok := sizeFromHeaders(resp.Header); ok {
		return v, nil
	}
	return 0, errors.New("cannot determine total size")
}

// Download fetches urlStr into outputPath. Bytes land in outputPath+".tmp"
// first; an existing temporary file is resumed. The file is renamed into
// place once complete.
func (d *Downloader) Download(ctx context.Context, urlStr string, outputPath string, progress ProgressFunc) error {
	log := d.logger()
	tmpPath := outputPath + temporaryFileSuffix

	outFile, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open temp file: %w", err)
	}
	defer func() { _ = outFile.Close() }()

	info, err := outFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat temp file: %w", err)
	}
	downloaded := info.Size()

	totalSize, err := d.detectTotalSize(ctx, urlStr)
	if err != nil {
		log.Warn("could not determine total size", map[string]interface{}{"error": err.Error()})
		totalSize = 0
	}
	if totalSize > 0 && downloaded > totalSize {
		log.Warn("temp file larger than total, restarting", map[string]interface{}{
			"resumed": downloaded,
			"total":   totalSize,
		})
		if err := restart(outFile); err != nil {
			return err
		}
		downloaded = 0
	}
	log.Info("transfer started", map[string]interface{}{
		"path":    outputPath,
		"resumed": downloaded,
		"total":   totalSize,
	})

	for totalSize == 0 || downloaded < totalSize {
		start := downloaded
		end := start + d.chunkSize - 1
		if totalSize > 0 && end >= totalSize {
			end = totalSize - 1
		}

		resp, err := d.fetchChunk(ctx, urlStr, start, end)
		if err != nil {
			return fmt.Errorf("download chunk failed: %w", err)
		}
		// A non-partial response carries the whole resource from byte 0.
		full := resp.StatusCode != http.StatusPartialContent
		if full && start > 0 {
			log.Warn("range not honored, restarting", map[string]interface{}{
				"status": resp.StatusCode,
				"offset": start,
			})
			if err := restart(outFile); err != nil {
				_ = resp.Body.Close()
				return err
			}
			downloaded, start = 0, 0
		}

		n, err := d.copyBody(ctx, outFile, resp.Body, downloaded, totalSize, progress)
		_ = resp.Body.Close()
		downloaded += n
		if err != nil {
			return err
		}

		if full || (totalSize == 0 && n < end-start+1) {
			break
		}
	}

	if err := outFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if downloaded == 0 {
		_ = os.Remove(tmpPath)
		return ErrEmptyDownload
	}
	if totalSize > 0 && downloaded != totalSize {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: got %d, want %d", ErrSizeMismatch, downloaded, totalSize)
	}
	log.Info("transfer finished", map[string]interface{}{"path": outputPath, "bytes": downloaded})
	return os.Rename(tmpPath, outputPath)
}

// restart empties the temp file; it is opened with O_APPEND so later
// writes land at offset 0.
func restart(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate temp file: %w", err)
	}
	return nil
}

func (d *Downloader) fetchChunk(ctx context.Context, urlStr string, start, end int64) (*http.Response, error) {
	var lastErr error
	backoff := initialBackoffDuration
	for attempt := 0; attempt < d.retries; attempt++ {
		req, err := d.newRequest(ctx, http.MethodGet, urlStr)
		if err != nil {
			return nil, err
		}
		req.Header.Set(headerRange, fmt.Sprintf("bytes=%d-%d", start, end))

		resp, err := d.Client.Do(req)
		if err == nil && resp.StatusCode >= successMinHTTPStatusCode && resp.StatusCode < successMaxHTTPStatusExclusive {
			return resp, nil
		}
		if err == nil {
			_ = resp.Body.Close()
			err = fmt.Errorf("HTTP status %d", resp.StatusCode)
		}
		lastErr = err
		d.logger().Debug("chunk request failed", map[string]interface{}{
			"attempt": attempt + 1,
			"range":   req.Header.Get(headerRange),
			"error":   err.Error(),
		})

		if attempt == d.retries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoffDuration)
	}
	return nil, lastErr
}

func (d *Downloader) copyBody(ctx context.Context, w io.Writer, body io.Reader, already, total int64, progress ProgressFunc) (int64, error) {
	buf := make([]byte, copyBufferSizeBytes)
	var read int64
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return read, fmt.Errorf("failed to write chunk: %w", werr)
			}
			read += int64(n)
			if progress != nil {
				progress(already+read, total)
			}
			if err := d.wait(ctx, n); err != nil {
				return read, err
			}
		}
		if rerr == io.EOF {
			return read, nil
		}
		if rerr != nil {
			return read, fmt.Errorf("failed to read response body: %w", rerr)
		}
	}
}

// wait blocks until the limiter admits n more bytes.
func (d *Downloader) wait(ctx context.Context, n int) error {
	if d.limiter == nil || n <= 0 {
		return nil
	}
	return d.limiter.WaitN(ctx, n)
}

func (d *Downloader) logger() *logger.ComponentLogger {
	if d.log == nil {
		d.log = logger.WithComponent(logger.ComponentTransfer)
	}
	return d.log
}
