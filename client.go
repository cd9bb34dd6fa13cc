// Package ytfetch downloads videos: it selects streams from a platform
// catalog, skips files already on disk, transfers the rest and merges
// adaptive audio and video halves with an external muxer.
package ytfetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/ytget/ytfetch/downloader"
	"github.com/ytget/ytfetch/internal/botguard"
	"github.com/ytget/ytfetch/internal/logger"
	"github.com/ytget/ytfetch/internal/report"
	"github.com/ytget/ytfetch/pkg/client"
	"github.com/ytget/ytfetch/types"
	"github.com/ytget/ytfetch/youtube/captions"
	"github.com/ytget/ytfetch/youtube/cipher"
	"github.com/ytget/ytfetch/youtube/formats"
	"github.com/ytget/ytfetch/youtube/hls"
	"github.com/ytget/ytfetch/youtube/innertube"
)

const (
	// DefaultClientName is the InnerTube client used when none is configured.
	DefaultClientName = "ANDROID"
	// DefaultClientVersion goes with DefaultClientName.
	DefaultClientVersion = "20.10.38"

	defaultPlaylistLimit = 1000
)

// Options configures a Client. Zero values use defaults.
type Options struct {
	HTTP          client.Config
	RateLimit     int64 // bytes per second, 0 disables
	ClientName    string
	ClientVersion string
	Botguard      *botguard.Attestor
	// BaseURL overrides the platform origin for pages, API calls and player scripts.
	BaseURL string
}

type videoState struct {
	player *innertube.PlayerResponse
	page   *cipher.Page
}

// Client is the YouTube implementation of Catalog. It resolves videos and
// playlists through InnerTube, deciphers stream URLs and transfers them
// with the chunked downloader.
type Client struct {
	http     *client.Client
	it       *innertube.Client
	cipher   *cipher.Resolver
	dl       *downloader.Downloader
	baseURL  string
	log      *logger.ComponentLogger
	mu       sync.Mutex
	videos   map[string]*videoState
	proxyErr error
}

// New builds a Client from opts.
func New(opts Options) *Client {
	hc, proxyErr := client.NewWithProxy(opts.HTTP)
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = innertube.DefaultBaseURL
	}

	it := innertube.New(hc.HTTPClient)
	it.BaseURL = base
	name, ver := strings.TrimSpace(opts.ClientName), strings.TrimSpace(opts.ClientVersion)
	if name == "" {
		name = DefaultClientName
		if ver == "" {
			ver = DefaultClientVersion
		}
	}
	it.WithClient(name, ver)
	if opts.Botguard.Enabled() {
		it.WithBotguard(opts.Botguard)
	}

	cr := cipher.New(hc)
	cr.BaseURL = base

	c := &Client{
		http:     hc,
		it:       it,
		cipher:   cr,
		baseURL:  base,
		log:      logger.WithComponent(logger.ComponentApp),
		videos:   make(map[string]*videoState),
		proxyErr: proxyErr,
		dl: downloader.New(hc.HTTPClient, downloader.Options{
			Retries:   hc.Retries,
			RateLimit: opts.RateLimit,
			UserAgent: hc.UserAgent,
		}),
	}
	if proxyErr != nil {
		c.log.Warn("ignoring proxy", map[string]interface{}{"error": proxyErr.Error()})
	}
	return c
}

// ProxyError reports an unusable proxy setting; the client then uses the
// environment proxy.
func (c *Client) ProxyError() error { return c.proxyErr }

// HTTPClient exposes the underlying HTTP client.
func (c *Client) HTTPClient() *http.Client { return c.http.HTTPClient }

// WatchURL returns the watch page URL for a video id.
func (c *Client) WatchURL(id string) string {
	return c.baseURL + "/watch?v=" + url.QueryEscape(id)
}

// Video resolves a watch URL (or bare id) to a video with its stream catalog.
func (c *Client) Video(ctx context.Context, rawURL string) (*types.Video, error) {
	id, err := ExtractVideoID(rawURL)
	if err != nil {
		return nil, err
	}
	pr, err := c.player(ctx, id)
	if err != nil {
		return nil, err
	}
	title := pr.VideoDetails.Title
	if strings.TrimSpace(title) == "" {
		title = id
	}
	v := &types.Video{
		ID:             id,
		Title:          title,
		Author:         pr.VideoDetails.Author,
		LengthSeconds:  pr.LengthSeconds(),
		WatchURL:       c.WatchURL(id),
		HLSManifestURL: pr.StreamingData.HLSManifestURL,
		Streams:        formats.ParseFormats(pr),
		Captions:       captions.Tracks(pr),
	}
	c.log.Debug("video resolved", map[string]interface{}{
		"id":       id,
		"streams":  len(v.Streams),
		"captions": len(v.Captions),
		"live":     pr.VideoDetails.IsLive,
	})
	return v, nil
}

func (c *Client) player(ctx context.Context, id string) (*innertube.PlayerResponse, error) {
	c.mu.Lock()
	st, ok := c.videos[id]
	c.mu.Unlock()
	if ok && st.player != nil {
		return st.player, nil
	}

	pr, err := c.it.Player(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get player response: %w", err)
	}
	if err := pr.Playable(); err != nil {
		return nil, err
	}
	if pr.VideoDetails.VideoID == "" {
		pr.VideoDetails.VideoID = id
	}
	c.mu.Lock()
	if st, ok = c.videos[id]; !ok {
		st = &videoState{}
		c.videos[id] = st
	}
	st.player = pr
	c.mu.Unlock()
	return pr, nil
}

// watchPage fetches and remembers the watch page of id. A page without a
// player script URL is returned together with the cipher error.
func (c *Client) watchPage(ctx context.Context, id string) (*cipher.Page, error) {
	c.mu.Lock()
	st, ok := c.videos[id]
	c.mu.Unlock()
	if ok && st.page != nil && st.page.PlayerURL != "" {
		return st.page, nil
	}
	page, err := c.cipher.WatchPage(ctx, c.WatchURL(id))
	if page != nil {
		c.mu.Lock()
		if st, ok = c.videos[id]; !ok {
			st = &videoState{}
			c.videos[id] = st
		}
		st.page = page
		c.mu.Unlock()
	}
	return page, err
}

// ListStreams returns the stream catalog of v, fetching it when v carries none.
func (c *Client) ListStreams(ctx context.Context, v *types.Video) ([]types.Stream, error) {
	if v == nil {
		return nil, errors.New("nil video")
	}
	if len(v.Streams) > 0 {
		return v.Streams, nil
	}
	pr, err := c.player(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	v.Streams = formats.ParseFormats(pr)
	return v.Streams, nil
}

// needsPlayer reports whether s can only be fetched after deciphering.
func needsPlayer(s types.Stream) bool {
	if strings.TrimSpace(s.URL) == "" {
		return true
	}
	u, err := url.Parse(s.URL)
	return err == nil && u.Query().Get("n") != ""
}

// StreamURL returns the final downloadable URL of s.
func (c *Client) StreamURL(ctx context.Context, s types.Stream) (string, error) {
	if !needsPlayer(s) {
		return s.URL, nil
	}
	var playerURL string
	if s.VideoID != "" {
		page, err := c.watchPage(ctx, s.VideoID)
		if err != nil && strings.TrimSpace(s.URL) == "" {
			return "", fmt.Errorf("player script for %s: %w", s.VideoID, err)
		}
		if page != nil {
			playerURL = page.PlayerURL
		}
	}
	return formats.ResolveURL(ctx, c.cipher, s, playerURL)
}

// Transfer downloads s to path, reporting progress after every buffer.
func (c *Client) Transfer(ctx context.Context, s types.Stream, path string, progress downloader.ProgressFunc) error {
	u, err := c.StreamURL(ctx, s)
	if err != nil {
		return fmt.Errorf("resolve itag %d: %w", s.Itag, err)
	}
	c.log.Debug("transfer", map[string]interface{}{"itag": s.Itag, "path": path})
	if err := c.dl.Download(ctx, u, path, progress); err != nil {
		return fmt.Errorf("download itag %d: %w", s.Itag, err)
	}
	return nil
}

// Playlist resolves a playlist URL (or bare id) to its items, at most limit
// of them; limit <= 0 uses a generous default.
func (c *Client) Playlist(ctx context.Context, rawURL string, limit int) (*types.Playlist, error) {
	id, err := ParsePlaylistID(rawURL)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPlaylistLimit
	}
	pl, err := c.it.Playlist(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("get playlist %s: %w", id, err)
	}
	return pl, nil
}

// DownloadCaption writes the track as "{title} ({code}).srt" into dir.
func (c *Client) DownloadCaption(ctx context.Context, track types.CaptionTrack, title, dir string) (string, error) {
	return captions.Download(ctx, c.http, track, title, dir)
}

// HLSVariants lists the renditions of a live video's manifest. Videos
// without a manifest have none.
func (c *Client) HLSVariants(ctx context.Context, v *types.Video) ([]hls.Variant, error) {
	if v == nil || v.HLSManifestURL == "" {
		return nil, nil
	}
	return hls.Fetch(ctx, c.http, v.HLSManifestURL)
}

// PlaybackReport gathers the raw material needed to debug playback of v:
// the watch page, the player script and the raw player response.
func (c *Client) PlaybackReport(ctx context.Context, v *types.Video) (report.Playback, error) {
	pr, err := c.player(ctx, v.ID)
	if err != nil {
		return report.Playback{}, err
	}
	rep := report.Playback{URL: v.WatchURL, VideoInfo: string(pr.Raw)}
	page, err := c.watchPage(ctx, v.ID)
	if page == nil {
		return rep, fmt.Errorf("watch page: %w", err)
	}
	rep.WatchHTML = page.HTML
	if page.PlayerURL == "" {
		c.log.Warn("player script url not found", map[string]interface{}{"video": v.ID})
		return rep, nil
	}
	js, err := c.cipher.PlayerJS(ctx, page.PlayerURL)
	if err != nil {
		return rep, err
	}
	rep.JS = js
	return rep, nil
}

var errInvalidVideoURL = errors.New("invalid youtube url")

// ExtractVideoID accepts watch, short-link, shorts, embed and live URLs as
// well as a bare 11-character id.
func ExtractVideoID(videoURL string) (string, error) {
	videoURL = strings.TrimSpace(videoURL)
	if isVideoID(videoURL) {
		return videoURL, nil
	}
	u, err := url.Parse(videoURL)
	if err != nil || u.Host == "" {
		return "", errInvalidVideoURL
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	var id string
	switch host {
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	case "youtube.com", "music.youtube.com":
		switch {
		case u.Path == "/watch":
			id = u.Query().Get("v")
		default:
			for _, prefix := range []string{"/shorts/", "/embed/", "/live/", "/v/"} {
				if strings.HasPrefix(u.Path, prefix) {
					id = strings.Trim(strings.TrimPrefix(u.Path, prefix), "/")
					break
				}
			}
		}
	}
	if id == "" || strings.Contains(id, "/") {
		return "", errInvalidVideoURL
	}
	return id, nil
}

func isVideoID(s string) bool {
	if len(s) != 11 {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

// ParsePlaylistID accepts a playlist URL or a raw playlist id.
func ParsePlaylistID(input string) (string, error) {
	input = strings.TrimSpace(input)
	for _, prefix := range []string{"PL", "UU", "LL", "FL", "RD", "OLAK5uy_"} {
		if strings.HasPrefix(input, prefix) && !strings.ContainsAny(input, "/?&=") {
			return input, nil
		}
	}
	u, err := url.Parse(input)
	if err != nil {
		return "", err
	}
	if id := u.Query().Get("list"); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("playlist id not found in %q", input)
}

// exists reports whether path names an existing file.
func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
