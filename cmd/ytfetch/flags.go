package main

import (
	"flag"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

type options struct {
	url          string
	playlist     string
	limit        int
	audio        bool
	resolution   string
	itag         int
	ffmpeg       ffmpegFlag
	list         bool
	caption      string
	listCaptions bool
	report       bool
	target       string

	verbose     bool
	logfile     string
	showVersion bool

	strictMux  bool
	ffmpegPath string
	noProgress bool

	rateLimit string
	timeout   time.Duration
	retries   int
	ua        string
	proxy     string

	client         string
	botguard       string
	botguardScript string
	botguardCache  string
}

// ffmpegFlag is a string flag whose value is optional: a bare -f means "best".
type ffmpegFlag struct {
	set bool
	res string
}

func (f *ffmpegFlag) String() string { return f.res }

func (f *ffmpegFlag) Set(s string) error {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "":
		f.set, f.res = true, "best"
	case "false":
		f.set, f.res = false, ""
	default:
		f.set, f.res = true, strings.TrimSpace(s)
	}
	return nil
}

func (f *ffmpegFlag) IsBoolFlag() bool { return true }

var resolutionArg = regexp.MustCompile(`^(?i)(best|[0-9]{3,4}p[0-9]*)$`)

// normalizeArgs joins "-f RES" into "-f=RES" so the optional value of the
// ffmpeg flag survives flag parsing.
func normalizeArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		if (a == "-f" || a == "--ffmpeg" || a == "-ffmpeg") && i+1 < len(args) && resolutionArg.MatchString(args[i+1]) {
			out = append(out, a+"="+args[i+1])
			i++
			continue
		}
		out = append(out, a)
	}
	return out
}

func newFlagSet(opts *options, output io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("ytfetch", flag.ContinueOnError)
	fs.SetOutput(output)

	str := func(p *string, short, long, value, usage string) {
		if short != "" {
			fs.StringVar(p, short, value, usage)
		}
		fs.StringVar(p, long, value, usage)
	}
	boolean := func(p *bool, short, long, usage string) {
		if short != "" {
			fs.BoolVar(p, short, false, usage)
		}
		fs.BoolVar(p, long, false, usage)
	}

	str(&opts.url, "u", "url", "", "The YouTube /watch URL for a video")
	str(&opts.playlist, "pl", "playlist", "", "The URL for a YouTube playlist")
	fs.IntVar(&opts.limit, "limit", 0, "Max items to process for playlist (0 means all)")
	boolean(&opts.audio, "a", "audio", "Download the audio for the provided URL")
	str(&opts.resolution, "r", "resolution", "", "The resolution for the desired stream")
	fs.IntVar(&opts.itag, "itag", 0, "The itag for the desired stream")
	fs.Var(&opts.ffmpeg, "f", "Download video and audio and merge them with ffmpeg (-f[=RES], default best)")
	fs.Var(&opts.ffmpeg, "ffmpeg", "Download video and audio and merge them with ffmpeg (--ffmpeg[=RES], default best)")
	boolean(&opts.list, "l", "list", "List available streams for the provided URL")
	str(&opts.caption, "c", "caption-code", "", "Download captions for a given language code")
	boolean(&opts.listCaptions, "lc", "list-captions", "List available caption codes for a video")
	boolean(&opts.report, "", "build-playback-report", "Save the HTML and JS to disk")
	str(&opts.target, "t", "target", ".", "The directory downloads are written to")

	boolean(&opts.verbose, "v", "verbose", "Set logger output to verbose output")
	str(&opts.logfile, "", "logfile", "", "Log debug and error messages into a file")
	boolean(&opts.showVersion, "V", "version", "Print the version and exit")

	boolean(&opts.strictMux, "", "strict-mux", "Fail when ffmpeg exits with an error")
	str(&opts.ffmpegPath, "", "ffmpeg-path", "ffmpeg", "ffmpeg executable")
	boolean(&opts.noProgress, "", "no-progress", "Disable progress output")

	str(&opts.rateLimit, "", "rate-limit", "", "Download rate limit (e.g., 2MiB/s, 500KiB/s)")
	fs.DurationVar(&opts.timeout, "http-timeout", 30*time.Second, "HTTP timeout (e.g., 30s, 1m)")
	fs.IntVar(&opts.retries, "retries", 3, "HTTP retries for transient errors")
	str(&opts.ua, "", "ua", "", "Override User-Agent header")
	str(&opts.proxy, "", "proxy", "", "Proxy URL (http/https/socks)")

	str(&opts.client, "", "client", "", "InnerTube client as NAME[:VERSION] (default ANDROID)")
	str(&opts.botguard, "", "botguard", "off", "Botguard attestation mode: off, auto or force")
	str(&opts.botguardScript, "", "botguard-script", "", "JavaScript file defining bgAttest(input)")
	str(&opts.botguardCache, "", "botguard-cache", "", "Directory caching Botguard tokens (default in memory)")

	fs.Usage = func() {
		fmt.Fprintf(output, "Usage: ytfetch [flags] -u <video_url> | -pl <playlist_url>\n")
		fmt.Fprintln(output, "\nFlags:")
		fs.PrintDefaults()
	}
	return fs
}

// parseArgs parses the command line. A single positional argument is taken
// as the video URL when -u and -pl are absent.
func parseArgs(args []string, output io.Writer) (*options, error) {
	opts := &options{}
	fs := newFlagSet(opts, output)
	if err := fs.Parse(normalizeArgs(args)); err != nil {
		return nil, err
	}
	rest := fs.Args()
	if opts.url == "" && opts.playlist == "" && len(rest) == 1 {
		opts.url = rest[0]
		rest = nil
	}
	if len(rest) > 0 {
		fs.Usage()
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(rest, " "))
	}
	if opts.showVersion {
		return opts, nil
	}
	if opts.url == "" && opts.playlist == "" {
		fs.Usage()
		return nil, fmt.Errorf("one of -u/--url or -pl/--playlist is required")
	}
	if opts.itag < 0 {
		return nil, fmt.Errorf("invalid itag %d", opts.itag)
	}
	return opts, nil
}

// parseRate parses strings like "2MiB/s", "500KiB/s" or "1.5MB" into bytes per second.
func parseRate(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	s = strings.TrimSuffix(strings.TrimSuffix(s, "/s"), "/S")
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid rate limit %q: %w", s, err)
	}
	return int64(n), nil
}

// parseClient splits "NAME[:VERSION]".
func parseClient(s string) (name, version string) {
	name, version, _ = strings.Cut(strings.TrimSpace(s), ":")
	return strings.TrimSpace(name), strings.TrimSpace(version)
}
