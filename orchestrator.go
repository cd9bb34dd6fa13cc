package ytfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/ytget/ytfetch/downloader"
	"github.com/ytget/ytfetch/errs"
	"github.com/ytget/ytfetch/internal/logger"
	"github.com/ytget/ytfetch/internal/mimeext"
	"github.com/ytget/ytfetch/internal/mux"
	"github.com/ytget/ytfetch/internal/sanitize"
	"github.com/ytget/ytfetch/types"
	"github.com/ytget/ytfetch/youtube/formats"
)

// Catalog lists the streams of a video and transfers one of them to disk.
// Client is the platform implementation.
type Catalog interface {
	ListStreams(ctx context.Context, v *types.Video) ([]types.Stream, error)
	Transfer(ctx context.Context, s types.Stream, path string, progress downloader.ProgressFunc) error
}

// Progress receives byte counts during a transfer. progress.Bar implements it.
type Progress interface {
	OnChunk(received, total int64)
	Done()
}

// Muxer merges a video and an audio file. mux.Muxer implements it.
type Muxer interface {
	Mux(ctx context.Context, videoPath, audioPath, outputPath string) (mux.Result, error)
}

// Outcome is the result of one orchestration run.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeDownloaded
	OutcomeAlreadyDownloaded
	OutcomeNotFound
	OutcomeMuxed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDownloaded:
		return "downloaded"
	case OutcomeAlreadyDownloaded:
		return "already downloaded"
	case OutcomeNotFound:
		return "not found"
	case OutcomeMuxed:
		return "muxed"
	default:
		return "failed"
	}
}

// Target is where a download lands: a directory and an optional
// extension-less file name.
type Target struct {
	Dir      string
	Filename string
}

func (t Target) dir() string {
	if strings.TrimSpace(t.Dir) == "" {
		return "."
	}
	return t.Dir
}

// ext is the stream subtype, or the extension implied by its mime type.
func ext(s types.Stream) string {
	if s.Subtype != "" {
		return s.Subtype
	}
	return mimeext.ExtFromMime(s.MimeType)
}

// name is the file name of s inside the target: the explicit Filename plus
// the stream extension, or the sanitized title.
func (t Target) name(title string, s types.Stream) string {
	if t.Filename != "" {
		return t.Filename + "." + ext(s)
	}
	return sanitize.ToSafeFilename(title, ext(s))
}

// Path resolves the concrete file path for s of a video titled title.
func (t Target) Path(title string, s types.Stream) string {
	return filepath.Join(t.dir(), t.name(title, s))
}

// MergedPath is the mux output for a video titled title,
// "{safe title}_merged.mp4". The suffix keeps it apart from the
// "{safe title}.{ext}" files single-stream downloads write.
func (t Target) MergedPath(title string) string {
	return filepath.Join(t.dir(), sanitize.ToSafeName(title)+mergedSuffix+".mp4")
}

const mergedSuffix = "_merged"

// Orchestrator selects streams, skips files already on disk, transfers the
// rest one at a time and merges adaptive halves.
type Orchestrator struct {
	Catalog  Catalog
	Progress Progress
	Muxer    Muxer
	// Out receives the user-facing lines; nil means os.Stdout.
	Out io.Writer
	Log *logger.ComponentLogger
}

func (o *Orchestrator) out() io.Writer {
	if o.Out == nil {
		return os.Stdout
	}
	return o.Out
}

func (o *Orchestrator) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(o.out(), format, args...)
}

func (o *Orchestrator) runLogger(v *types.Video) *logger.ComponentLogger {
	log := o.Log
	if log == nil {
		log = logger.WithComponent(logger.ComponentOrchestrator)
	}
	return log.With(map[string]interface{}{"run": uuid.NewString(), "video": v.ID})
}

// Run downloads the single stream chosen by p. A selection miss is printed
// and reported as OutcomeNotFound with a nil error.
func (o *Orchestrator) Run(ctx context.Context, v *types.Video, p formats.Policy, t Target) (Outcome, error) {
	log := o.runLogger(v)
	log.Debug("run", map[string]interface{}{"policy": p.String()})

	switch p.Kind {
	case formats.PolicyExplicitResolution:
		o.printf("Downloading %s...\n", p.Resolution)
	case formats.PolicyBestProgressive:
		o.printf("Downloading highest resolution progressive stream...\n")
	case formats.PolicyAudioOnly:
		o.printf("%s\n", v.Title)
	case formats.PolicyBestAdaptive:
		return o.RunAdaptive(ctx, v, p.Resolution, t)
	}

	streams, err := o.Catalog.ListStreams(ctx, v)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("list streams: %w", err)
	}
	s, err := formats.Select(streams, p)
	if errors.Is(err, errs.ErrStreamNotFound) {
		o.printf("%s\n", notFoundMessage(p))
		log.Info("no stream selected", map[string]interface{}{"policy": p.String(), "streams": len(streams)})
		return OutcomeNotFound, nil
	}
	if err != nil {
		return OutcomeFailed, err
	}
	logger.WithComponent(logger.ComponentSelector).Debug("selected", map[string]interface{}{
		"policy": p.String(),
		"itag":   s.Itag,
	})
	if p.Kind == formats.PolicyExplicitItag {
		o.printf("Downloading stream with itag %d...\n", p.Itag)
	}

	return o.download(ctx, log, s, t.name(v.Title, s), t.Path(v.Title, s))
}

func notFoundMessage(p formats.Policy) string {
	switch p.Kind {
	case formats.PolicyExplicitItag:
		return fmt.Sprintf("No stream found with itag %d.", p.Itag)
	case formats.PolicyExplicitResolution:
		return fmt.Sprintf("No stream found for resolution %s", p.Resolution)
	case formats.PolicyAudioOnly:
		return "No audio stream found."
	case formats.PolicyBestAdaptive:
		res := p.Resolution
		if res == "" {
			res = "best"
		}
		return fmt.Sprintf("No streams found for resolution %s", res)
	default:
		return "No progressive stream found."
	}
}

// download prints the "{name} | {MB} MB" line and transfers s to path
// unless path already exists.
func (o *Orchestrator) download(ctx context.Context, log *logger.ComponentLogger, s types.Stream, name, path string) (Outcome, error) {
	o.printf("%s | %d MB\n", name, s.Size/(1<<20))
	if exists(path) {
		o.printf("Already downloaded at:\n%s\n", path)
		log.Debug("skip existing", map[string]interface{}{"path": path})
		return OutcomeAlreadyDownloaded, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return OutcomeFailed, fmt.Errorf("create target dir: %w", err)
	}

	var cb downloader.ProgressFunc
	if o.Progress != nil {
		cb = o.Progress.OnChunk
	}
	if err := o.Catalog.Transfer(ctx, s, path, cb); err != nil {
		return OutcomeFailed, fmt.Errorf("transfer itag %d: %w", s.Itag, err)
	}
	if o.Progress != nil {
		o.Progress.Done()
	}
	log.Info("downloaded", map[string]interface{}{"itag": s.Itag, "path": path})
	return OutcomeDownloaded, nil
}

// RunAdaptive downloads the best (or res) video stream and the best audio
// stream, video first, then merges them into MergedPath. The run stops
// early when the merged file exists. Halves left complete by an earlier
// run are merged without transferring them again.
func (o *Orchestrator) RunAdaptive(ctx context.Context, v *types.Video, res string, t Target) (Outcome, error) {
	log := o.runLogger(v)
	policy := formats.BestAdaptive(res)
	log.Debug("run", map[string]interface{}{"policy": policy.String()})

	merged := t.MergedPath(v.Title)
	if exists(merged) {
		o.printf("Already downloaded at:\n%s\n", merged)
		return OutcomeAlreadyDownloaded, nil
	}

	streams, err := o.Catalog.ListStreams(ctx, v)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("list streams: %w", err)
	}
	video, audio, err := formats.SelectAdaptive(streams, res)
	if errors.Is(err, errs.ErrStreamNotFound) {
		o.printf("%s\n", notFoundMessage(policy))
		return OutcomeNotFound, nil
	}
	if err != nil {
		return OutcomeFailed, err
	}
	logger.WithComponent(logger.ComponentSelector).Debug("selected pair", map[string]interface{}{
		"video": video.Itag,
		"audio": audio.Itag,
	})

	dir := t.dir()
	videoPath, videoDone := completePart(dir, v.Title, video, types.KindVideo)
	audioPath, audioDone := completePart(dir, v.Title, audio, types.KindAudio)
	outcome := OutcomeAlreadyDownloaded
	if videoDone && audioDone {
		o.printf("Already downloaded both video and audio.\n")
	} else {
		videoName, err := sanitize.UniqueName(v.Title, ext(video), string(types.KindVideo), dir)
		if err != nil {
			return OutcomeFailed, err
		}
		audioName, err := sanitize.UniqueName(v.Title, ext(audio), string(types.KindAudio), dir)
		if err != nil {
			return OutcomeFailed, err
		}
		videoTarget := Target{Dir: dir, Filename: videoName}
		audioTarget := Target{Dir: dir, Filename: audioName}
		videoPath, audioPath = videoTarget.Path(v.Title, video), audioTarget.Path(v.Title, audio)

		if _, err := o.download(ctx, log, video, videoName, videoPath); err != nil {
			return OutcomeFailed, err
		}
		if _, err := o.download(ctx, log, audio, audioName, audioPath); err != nil {
			return OutcomeFailed, err
		}
		outcome = OutcomeDownloaded
	}

	if o.Muxer == nil {
		return outcome, nil
	}
	result, err := o.Muxer.Mux(ctx, videoPath, audioPath, merged)
	if err != nil {
		return OutcomeFailed, err
	}
	if result.ExitCode != 0 {
		log.Warn("merge skipped", map[string]interface{}{"exit_code": result.ExitCode})
		return outcome, nil
	}
	log.Info("merged", map[string]interface{}{"output": merged})
	return OutcomeMuxed, nil
}

// completePart reports the path of the first-allocated half for s and
// whether it already holds exactly s.Size bytes.
func completePart(dir, title string, s types.Stream, kind types.MediaKind) (string, bool) {
	path := filepath.Join(dir, sanitize.PartName(title, string(kind), 0)+"."+ext(s))
	if s.Size <= 0 {
		return path, false
	}
	info, err := os.Stat(path)
	return path, err == nil && info.Mode().IsRegular() && info.Size() == s.Size
}
