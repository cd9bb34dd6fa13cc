package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ytget/ytfetch"
	"github.com/ytget/ytfetch/errs"
	"github.com/ytget/ytfetch/internal/botguard"
	"github.com/ytget/ytfetch/internal/logger"
	"github.com/ytget/ytfetch/internal/mux"
	"github.com/ytget/ytfetch/internal/progress"
	"github.com/ytget/ytfetch/internal/report"
	"github.com/ytget/ytfetch/pkg/client"
	"github.com/ytget/ytfetch/types"
	"github.com/ytget/ytfetch/youtube/captions"
	"github.com/ytget/ytfetch/youtube/formats"
	"github.com/ytget/ytfetch/youtube/hls"
)

var version = "dev"

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	if addr := os.Getenv("YTFETCH_PPROF"); addr != "" {
		startPprofServer(addr)
	}
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// startPprofServer serves the runtime profiles on addr (e.g. "localhost:6060").
func startPprofServer(addr string) {
	go func() {
		sm := http.NewServeMux()
		sm.HandleFunc("/debug/pprof/", pprof.Index)
		sm.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		sm.HandleFunc("/debug/pprof/profile", pprof.Profile)
		sm.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		sm.HandleFunc("/debug/pprof/trace", pprof.Trace)

		log := logger.WithComponent(logger.ComponentApp)
		log.Info("pprof server listening", map[string]interface{}{"addr": addr})
		if err := http.ListenAndServe(addr, sm); err != nil {
			log.Warn("pprof server stopped", map[string]interface{}{"error": err.Error()})
		}
	}()
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "ytfetch %s\n", version)
		return exitOK
	}

	logCfg := logger.EnvironmentConfig()
	logCfg.ApplyFlags(opts.verbose, opts.logfile)
	lg, closer, err := logCfg.Build()
	if err != nil {
		fmt.Fprintf(stderr, "Error: logging: %v\n", err)
		return exitUsage
	}
	defer func() { _ = closer.Close() }()
	logger.SetGlobalLogger(lg)

	rateLimit, err := parseRate(opts.rateLimit)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	attestor, err := newAttestor(opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	name, ver := parseClient(opts.client)
	c := ytfetch.New(ytfetch.Options{
		HTTP: client.Config{
			Timeout:   opts.timeout,
			Retries:   opts.retries,
			UserAgent: opts.ua,
			ProxyURL:  opts.proxy,
		},
		RateLimit:     rateLimit,
		ClientName:    name,
		ClientVersion: ver,
		Botguard:      attestor,
	})
	if err := c.ProxyError(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	a := &app{
		opts:   opts,
		client: c,
		out:    stdout,
		log:    logger.WithComponent(logger.ComponentApp),
		orch: &ytfetch.Orchestrator{
			Catalog: c,
			Muxer:   mux.New(opts.ffmpegPath, opts.strictMux),
			Out:     stdout,
		},
	}
	if !opts.noProgress {
		a.orch.Progress = progress.New(stdout)
	}

	if opts.playlist != "" {
		err = a.runPlaylist(ctx, opts.playlist)
	} else {
		err = a.runURL(ctx, opts.url)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	return exitOK
}

func newAttestor(opts *options) (*botguard.Attestor, error) {
	mode, err := botguard.ParseMode(opts.botguard)
	if err != nil {
		return nil, err
	}
	if mode == botguard.Off {
		return nil, nil
	}
	if opts.botguardScript == "" {
		return nil, fmt.Errorf("--botguard %s requires --botguard-script", mode)
	}
	var cache botguard.Cache = botguard.NewMemoryCache()
	if opts.botguardCache != "" {
		fc, err := botguard.NewFileCache(opts.botguardCache)
		if err != nil {
			return nil, err
		}
		cache = fc
	}
	return botguard.NewAttestor(botguard.NewScriptSolver(opts.botguardScript), mode, cache, 30*time.Minute), nil
}

type app struct {
	opts   *options
	client *ytfetch.Client
	orch   *ytfetch.Orchestrator
	out    io.Writer
	log    *logger.ComponentLogger
}

func (a *app) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(a.out, format, args...)
}

func (a *app) runURL(ctx context.Context, rawURL string) error {
	v, err := a.client.Video(ctx, rawURL)
	if err != nil {
		return err
	}
	return a.perform(ctx, v)
}

// runPlaylist resolves entries one at a time and runs the same actions on
// each. A failing entry is reported and the loop continues.
func (a *app) runPlaylist(ctx context.Context, rawURL string) error {
	pl, err := a.client.Playlist(ctx, rawURL, a.opts.limit)
	if err != nil {
		return err
	}
	a.printf("Downloading playlist: %s\n", pl.Title)
	log := logger.WithComponent(logger.ComponentPlaylist)
	failed := 0
	for i, item := range pl.Items {
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Info("entry", map[string]interface{}{"index": i + 1, "total": len(pl.Items), "video": item.VideoID})
		if err := a.runURL(ctx, item.VideoID); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			failed++
			a.printf("Error processing %s: %v\n", item.VideoID, err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d playlist entries failed", failed, len(pl.Items))
	}
	return nil
}

// perform runs the requested actions on v in a fixed order: report,
// list-captions, list, itag, caption, resolution, ffmpeg, audio and finally
// the highest resolution progressive download when nothing else was asked.
func (a *app) perform(ctx context.Context, v *types.Video) error {
	o := a.opts
	target := ytfetch.Target{Dir: o.target}
	acted := false

	if o.report {
		acted = true
		if err := a.buildReport(ctx, v); err != nil {
			return err
		}
	}
	if o.listCaptions {
		acted = true
		a.listCaptions(v)
	}
	if o.list {
		acted = true
		if err := a.listStreams(ctx, v); err != nil {
			return err
		}
	}
	if o.itag > 0 {
		acted = true
		if _, err := a.orch.Run(ctx, v, formats.ExplicitItag(o.itag), target); err != nil {
			return err
		}
	}
	if o.caption != "" {
		acted = true
		if err := a.downloadCaption(ctx, v, o.caption); err != nil {
			return err
		}
	}
	if o.resolution != "" {
		acted = true
		if _, err := a.orch.Run(ctx, v, formats.ExplicitResolution(o.resolution), target); err != nil {
			return err
		}
	}
	if o.ffmpeg.set {
		acted = true
		if _, err := a.orch.RunAdaptive(ctx, v, o.ffmpeg.res, target); err != nil {
			return err
		}
	}
	if o.audio {
		acted = true
		if _, err := a.orch.Run(ctx, v, formats.AudioOnly(), target); err != nil {
			return err
		}
	}
	if !acted {
		if _, err := a.orch.Run(ctx, v, formats.BestProgressive(), target); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) buildReport(ctx context.Context, v *types.Video) error {
	p, err := a.client.PlaybackReport(ctx, v)
	if err != nil {
		return fmt.Errorf("playback report: %w", err)
	}
	path, err := report.Write(a.opts.target, v.ID, time.Now(), p)
	if err != nil {
		return err
	}
	logger.WithComponent(logger.ComponentReport).Info("playback report written", map[string]interface{}{
		"path": path,
		"size": humanize.Bytes(uint64(len(p.JS) + len(p.WatchHTML) + len(p.VideoInfo))),
	})
	return nil
}

func (a *app) listCaptions(v *types.Video) {
	a.printf("Available captions:\n")
	for _, t := range v.Captions {
		a.printf(" - %s: %s\n", t.LanguageCode, t.Name)
	}
}

func (a *app) listStreams(ctx context.Context, v *types.Video) error {
	streams, err := a.client.ListStreams(ctx, v)
	if err != nil {
		return err
	}
	a.printf("Available streams for %s:\n", v.Title)
	for _, s := range streams {
		a.printf(" - %s\n", streamLine(s))
	}
	if v.HLSManifestURL == "" {
		return nil
	}
	variants, err := a.client.HLSVariants(ctx, v)
	if err != nil {
		a.log.Warn("hls manifest unavailable", map[string]interface{}{"error": err.Error()})
		return nil
	}
	a.printf("Available HLS variants:\n")
	for _, hv := range variants {
		a.printf(" - %s\n", hlsLine(hv))
	}
	return nil
}

func streamLine(s types.Stream) string {
	if s.Size <= 0 {
		return s.String()
	}
	return s.String() + " " + humanize.IBytes(uint64(s.Size))
}

func hlsLine(v hls.Variant) string {
	return v.String() + " " + humanize.SI(float64(v.Bandwidth), "bps")
}

func (a *app) downloadCaption(ctx context.Context, v *types.Video, code string) error {
	a.printf("Downloading captions for language: %s...\n", code)
	track, err := captions.Find(v.Captions, code)
	if errors.Is(err, errs.ErrCaptionNotFound) {
		a.printf("No captions found for language code: %s.\n", code)
		return nil
	}
	if err != nil {
		return err
	}
	path, err := a.client.DownloadCaption(ctx, track, v.Title, a.opts.target)
	if err != nil {
		return err
	}
	logger.WithComponent(logger.ComponentCaptions).Info("caption saved", map[string]interface{}{"path": path})
	return nil
}
