package innertube

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/ytget/ytfetch/errs"
	"github.com/ytget/ytfetch/internal/botguard"
	"github.com/ytget/ytfetch/internal/logger"
	"github.com/ytget/ytfetch/types"
)

const (
	// DefaultBaseURL is the platform origin used for pages and API calls.
	DefaultBaseURL = "https://www.youtube.com"

	playerPath            = "/youtubei/v1/player"
	browsePath            = "/youtubei/v1/browse"
	userAgentValue        = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36"
	headerContentTypeJSON = "application/json"
	clientNameWEB         = "WEB"
	defaultClientVersion  = "2.20250312.04.00"
	browseIDPrefix        = "VL"
	defaultPlaylistLimit  = 100
	continuationLimitMax  = 1 << 20
	visitorIDMaxAge       = 10 * time.Hour
)

var (
	apiKeyRe    = regexp.MustCompile(`"INNERTUBE_API_KEY":"([^"]+)"`)
	clientVerRe = regexp.MustCompile(`"INNERTUBE_CLIENT_VERSION":"([^"]+)"`)
)

// clientCodeFromName returns X-YouTube-Client-Name numeric code for known clients
func clientCodeFromName(name string) string {
	switch strings.ToUpper(name) {
	case "WEB":
		return "1"
	case "MWEB":
		return "2"
	case "ANDROID":
		return "3"
	case "IOS":
		return "5"
	case "TVHTML5":
		return "7"
	case "WEB_EMBEDDED_PLAYER":
		return "56"
	case "WEB_CREATOR":
		return "62"
	case "WEB_REMIX":
		return "67"
	case "TVHTML5_SIMPLY":
		return "75"
	case "TVHTML5_SIMPLY_EMBEDDED_PLAYER":
		return "85"
	default:
		return ""
	}
}

// Client talks to the InnerTube API.
type Client struct {
	HTTPClient *http.Client
	// BaseURL overrides DefaultBaseURL.
	BaseURL string

	mu         sync.Mutex
	apiKey     string
	clientVer  string
	clientName string
	visitorID  struct {
		value   string
		updated time.Time
	}
	bg  *botguard.Attestor
	log *logger.ComponentLogger
}

// New creates a new InnerTube client.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		HTTPClient: httpClient,
		BaseURL:    DefaultBaseURL,
		clientName: clientNameWEB,
		log:        logger.WithComponent(logger.ComponentInnerTube),
	}
}

// WithClient overrides InnerTube client name/version to shape playback URLs.
func (c *Client) WithClient(name, version string) *Client {
	if strings.TrimSpace(name) != "" {
		c.clientName = strings.ToUpper(strings.TrimSpace(name))
	}
	if strings.TrimSpace(version) != "" {
		c.clientVer = strings.TrimSpace(version)
	}
	return c
}

// WithBotguard attaches an attestor used on 403 responses (Auto) or before every call (Force).
func (c *Client) WithBotguard(a *botguard.Attestor) *Client {
	c.bg = a
	return c
}

// ClientName returns the configured InnerTube client name.
func (c *Client) ClientName() string { return c.clientName }

// Format is one entry of streamingData.formats or adaptiveFormats.
type Format struct {
	Itag            int    `json:"itag"`
	URL             string `json:"url"`
	SignatureCipher string `json:"signatureCipher"`
	Cipher          string `json:"cipher"`
	MimeType        string `json:"mimeType"`
	Bitrate         int    `json:"bitrate"`
	AverageBitrate  int    `json:"averageBitrate"`
	ContentLength   string `json:"contentLength"`
	QualityLabel    string `json:"qualityLabel"`
	FPS             int    `json:"fps"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	AudioQuality    string `json:"audioQuality"`
}

// Text is the InnerTube text node: either simpleText or a list of runs.
type Text struct {
	SimpleText string `json:"simpleText"`
	Runs       []struct {
		Text string `json:"text"`
	} `json:"runs"`
}

// String flattens the text node.
func (t Text) String() string {
	if t.SimpleText != "" {
		return t.SimpleText
	}
	var b strings.Builder
	for _, r := range t.Runs {
		b.WriteString(r.Text)
	}
	return b.String()
}

// CaptionTrack is an entry of playerCaptionsTracklistRenderer.captionTracks.
type CaptionTrack struct {
	BaseURL      string `json:"baseUrl"`
	Name         Text   `json:"name"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
}

// PlayerResponse represents a response from the InnerTube /player endpoint.
type PlayerResponse struct {
	StreamingData struct {
		Formats          []Format `json:"formats"`
		AdaptiveFormats  []Format `json:"adaptiveFormats"`
		HLSManifestURL   string   `json:"hlsManifestUrl"`
		ExpiresInSeconds string   `json:"expiresInSeconds"`
	} `json:"streamingData"`
	VideoDetails struct {
		VideoID       string `json:"videoId"`
		Title         string `json:"title"`
		Author        string `json:"author"`
		LengthSeconds string `json:"lengthSeconds"`
		IsLive        bool   `json:"isLive"`
	} `json:"videoDetails"`
	PlayabilityStatus struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
	Captions struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []CaptionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`

	// Raw is the decoded response body as received.
	Raw []byte `json:"-"`
}

// Playable maps playabilityStatus onto the errs sentinels. An empty or "OK"
// status is playable.
func (p *PlayerResponse) Playable() error {
	status := strings.ToUpper(p.PlayabilityStatus.Status)
	reason := p.PlayabilityStatus.Reason
	switch status {
	case "", "OK":
		return nil
	case "LOGIN_REQUIRED":
		lr := strings.ToLower(reason)
		if strings.Contains(lr, "age") || strings.Contains(lr, "inappropriate") {
			return fmt.Errorf("%w: %s", errs.ErrAgeRestricted, reason)
		}
		if strings.Contains(lr, "private") {
			return fmt.Errorf("%w: %s", errs.ErrPrivate, reason)
		}
		return fmt.Errorf("%w: %s", errs.ErrVideoUnavailable, reason)
	case "UNPLAYABLE":
		if strings.Contains(strings.ToLower(reason), "country") {
			return fmt.Errorf("%w: %s", errs.ErrGeoBlocked, reason)
		}
		return fmt.Errorf("%w: %s", errs.ErrVideoUnavailable, reason)
	default:
		return fmt.Errorf("%w: %s %s", errs.ErrVideoUnavailable, status, reason)
	}
}

// LengthSeconds parses videoDetails.lengthSeconds, 0 when absent.
func (p *PlayerResponse) LengthSeconds() int {
	n, _ := strconv.Atoi(p.VideoDetails.LengthSeconds)
	return n
}

func (c *Client) base() string {
	if c.BaseURL == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(c.BaseURL, "/")
}

func (c *Client) logger() *logger.ComponentLogger {
	if c.log == nil {
		c.log = logger.WithComponent(logger.ComponentInnerTube)
	}
	return c.log
}

func setPageHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgentValue)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, br")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}

// fetchPage GETs an HTML page and returns its decoded body.
func (c *Client) fetchPage(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	setPageHeaders(req)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("innertube: GET %s: HTTP status %d", rawURL, resp.StatusCode)
	}
	return decodeBody(resp)
}

// decodeBody reads resp.Body honoring Content-Encoding.
func decodeBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer func() { _ = gz.Close() }()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	}
	return io.ReadAll(reader)
}

func (c *Client) ensureKey(ctx context.Context, id string, isPlaylist bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.apiKey != "" && c.clientVer != "" {
		return
	}

	first := c.base() + "/watch?v=" + id
	if isPlaylist {
		first = c.base() + "/playlist?list=" + id
	}
	for _, source := range []string{first, c.base()} {
		if c.apiKey != "" && c.clientVer != "" {
			break
		}
		body, err := c.fetchPage(ctx, source)
		if err != nil {
			c.logger().Debug("key source failed", map[string]interface{}{"source": source, "error": err.Error()})
			continue
		}
		if c.apiKey == "" {
			if m := apiKeyRe.FindSubmatch(body); len(m) == 2 {
				c.apiKey = string(m[1])
			}
		}
		if c.clientVer == "" {
			if m := clientVerRe.FindSubmatch(body); len(m) == 2 {
				c.clientVer = string(m[1])
			}
		}
	}
	if c.clientVer == "" {
		c.clientVer = defaultClientVersion
	}
}

// clientContext builds the "context.client" object and the matching User-Agent.
func (c *Client) clientContext() (map[string]any, string) {
	name := c.clientName
	if name == "" {
		name = clientNameWEB
	}
	ver := c.clientVer
	if name != clientNameWEB && ver == defaultClientVersion {
		ver = "2.0"
	}
	client := map[string]any{
		"clientName":    name,
		"clientVersion": ver,
		"hl":            "en",
	}
	ua := userAgentValue
	if name == "ANDROID" {
		client["androidSdkVersion"] = 30
		client["osName"] = "Android"
		client["osVersion"] = "11"
		ua = "com.google.android.youtube/" + ver + " (Linux; U; Android 11) gzip"
		client["userAgent"] = ua
	}
	return client, ua
}

// post sends an InnerTube API call and returns the decoded body.
func (c *Client) post(ctx context.Context, path string, payload map[string]any) ([]byte, error) {
	client, ua := c.clientContext()
	payload["context"] = map[string]any{"client": client}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	visitor, _ := c.getVisitorID(ctx)
	newReq := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base()+path+"?key="+c.apiKey, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", headerContentTypeJSON)
		req.Header.Set("User-Agent", ua)
		req.Header.Set("Accept", "*/*")
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		req.Header.Set("Accept-Encoding", "gzip, br")
		req.Header.Set("Referer", c.base()+"/")
		req.Header.Set("Origin", c.base())
		if code := clientCodeFromName(fmt.Sprint(client["clientName"])); code != "" {
			req.Header.Set("X-YouTube-Client-Name", code)
		}
		req.Header.Set("X-YouTube-Client-Version", fmt.Sprint(client["clientVersion"]))
		if visitor != "" {
			req.Header.Set("X-Goog-Visitor-Id", visitor)
		}
		return req, nil
	}

	resp, err := c.doWithBotguardRetry(ctx, newReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	c.logger().Debug("api response", map[string]interface{}{
		"path":     path,
		"status":   resp.StatusCode,
		"encoding": resp.Header.Get("Content-Encoding"),
	})
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errs.ErrRateLimited
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("innertube: POST %s: HTTP status %d", path, resp.StatusCode)
	}
	return decodeBody(resp)
}

// Player fetches the /player response for videoID.
func (c *Client) Player(ctx context.Context, videoID string) (*PlayerResponse, error) {
	c.ensureKey(ctx, videoID, false)
	if c.apiKey == "" {
		return nil, errors.New("innertube: api key not found")
	}
	body, err := c.post(ctx, playerPath, map[string]any{"videoId": videoID})
	if err != nil {
		return nil, err
	}
	var pr PlayerResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return nil, fmt.Errorf("innertube: parse player response: %w", err)
	}
	pr.Raw = body
	c.logger().Debug("player response", map[string]interface{}{
		"video":    videoID,
		"status":   pr.PlayabilityStatus.Status,
		"formats":  len(pr.StreamingData.Formats),
		"adaptive": len(pr.StreamingData.AdaptiveFormats),
	})
	return &pr, nil
}

// Playlist fetches playlist metadata and up to limit items, following continuations.
func (c *Client) Playlist(ctx context.Context, playlistID string, limit int) (*types.Playlist, error) {
	c.ensureKey(ctx, playlistID, true)
	if c.apiKey == "" {
		return nil, errors.New("innertube: api key not found")
	}
	if limit <= 0 {
		limit = defaultPlaylistLimit
	}

	body, err := c.post(ctx, browsePath, map[string]any{"browseId": browseIDPrefix + playlistID})
	if err != nil {
		return nil, err
	}
	var root any
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("innertube: parse browse response: %w", err)
	}

	pl := &types.Playlist{ID: playlistID, Title: findPlaylistTitle(root)}
	collectPlaylistVideoRenderers(root, &pl.Items, limit)

	token := findFirstContinuationToken(root)
	for token != "" && len(pl.Items) < limit {
		more, next, err := c.playlistContinuation(ctx, token)
		if err != nil {
			c.logger().Warn("continuation failed", map[string]interface{}{"error": err.Error()})
			break
		}
		pl.Items = append(pl.Items, more...)
		token = next
	}
	if len(pl.Items) > limit {
		pl.Items = pl.Items[:limit]
	}
	return pl, nil
}

func (c *Client) playlistContinuation(ctx context.Context, continuation string) ([]types.PlaylistItem, string, error) {
	body, err := c.post(ctx, browsePath, map[string]any{"continuation": continuation})
	if err != nil {
		return nil, "", err
	}
	var root any
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, "", err
	}
	items := make([]types.PlaylistItem, 0, 50)
	collectPlaylistVideoRenderers(root, &items, continuationLimitMax)
	next := findFirstContinuationToken(root)
	if next == continuation {
		next = ""
	}
	return items, next, nil
}

func textOf(node any) string {
	m, ok := node.(map[string]any)
	if !ok {
		return ""
	}
	if s, ok := m["simpleText"].(string); ok {
		return s
	}
	var b strings.Builder
	if runs, ok := m["runs"].([]any); ok {
		for _, r := range runs {
			if rm, ok := r.(map[string]any); ok {
				if s, ok := rm["text"].(string); ok {
					b.WriteString(s)
				}
			}
		}
	}
	return b.String()
}

func collectPlaylistVideoRenderers(node any, out *[]types.PlaylistItem, limit int) {
	if len(*out) >= limit {
		return
	}
	switch v := node.(type) {
	case map[string]any:
		if r, ok := v["playlistVideoRenderer"].(map[string]any); ok {
			var it types.PlaylistItem
			it.VideoID, _ = r["videoId"].(string)
			if n, err := strconv.Atoi(textOf(r["index"])); err == nil {
				it.Index = n
			}
			it.Title = textOf(r["title"])
			if it.VideoID != "" {
				*out = append(*out, it)
			}
			return
		}
		for _, val := range v {
			collectPlaylistVideoRenderers(val, out, limit)
			if len(*out) >= limit {
				return
			}
		}
	case []any:
		for _, val := range v {
			collectPlaylistVideoRenderers(val, out, limit)
			if len(*out) >= limit {
				return
			}
		}
	}
}

// findPlaylistTitle looks for metadata.playlistMetadataRenderer.title, then
// a playlistHeaderRenderer title.
func findPlaylistTitle(root any) string {
	m, ok := root.(map[string]any)
	if !ok {
		return ""
	}
	if md, ok := m["metadata"].(map[string]any); ok {
		if r, ok := md["playlistMetadataRenderer"].(map[string]any); ok {
			if s, ok := r["title"].(string); ok {
				return s
			}
		}
	}
	if h, ok := m["header"].(map[string]any); ok {
		if r, ok := h["playlistHeaderRenderer"].(map[string]any); ok {
			return textOf(r["title"])
		}
	}
	return ""
}

func findFirstContinuationToken(node any) string {
	switch v := node.(type) {
	case map[string]any:
		if cc, ok := v["continuationCommand"].(map[string]any); ok {
			if tok, ok := cc["token"].(string); ok && tok != "" {
				return tok
			}
		}
		if nd, ok := v["nextContinuationData"].(map[string]any); ok {
			if tok, ok := nd["continuation"].(string); ok && tok != "" {
				return tok
			}
		}
		if tok, ok := v["continuation"].(string); ok && tok != "" {
			return tok
		}
		for _, val := range v {
			if t := findFirstContinuationToken(val); t != "" {
				return t
			}
		}
	case []any:
		for _, val := range v {
			if t := findFirstContinuationToken(val); t != "" {
				return t
			}
		}
	}
	return ""
}

// getVisitorID returns the current visitor ID, refreshing it when stale.
func (c *Client) getVisitorID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.visitorID.updated.IsZero() && time.Since(c.visitorID.updated) <= visitorIDMaxAge {
		return c.visitorID.value, nil
	}
	// Failures are remembered too so a page without ytcfg is not refetched per call.
	err := c.refreshVisitorID(ctx)
	c.visitorID.updated = time.Now()
	return c.visitorID.value, err
}

// refreshVisitorID reads INNERTUBE_CONTEXT.client.visitorData from the home page.
func (c *Client) refreshVisitorID(ctx context.Context) error {
	const sep = "\nytcfg.set("

	data, err := c.fetchPage(ctx, c.base())
	if err != nil {
		return err
	}
	_, rest, found := strings.Cut(string(data), sep)
	if !found {
		return errors.New("visitor ID not found in YouTube response")
	}

	var value struct {
		InnertubeContext struct {
			Client struct {
				VisitorData string `json:"visitorData"`
			} `json:"client"`
		} `json:"INNERTUBE_CONTEXT"`
	}
	if err := json.NewDecoder(strings.NewReader(rest)).Decode(&value); err != nil {
		return err
	}
	c.visitorID.value = strings.ReplaceAll(value.InnertubeContext.Client.VisitorData, "%3D", "=")
	return nil
}

// doWithBotguardRetry executes the request. In Force mode a token is applied
// before the first attempt; in Auto mode a 403 triggers attestation and a
// single retry.
func (c *Client) doWithBotguardRetry(ctx context.Context, newReq func() (*http.Request, error)) (*http.Response, error) {
	req, err := newReq()
	if err != nil {
		return nil, err
	}
	if !c.bg.Enabled() {
		return c.HTTPClient.Do(req)
	}

	if c.bg.Mode == botguard.Force {
		c.applyBotguard(ctx, req)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusForbidden {
		return resp, err
	}
	_ = resp.Body.Close()

	c.logger().Info("403 received, attempting botguard attestation")
	retry, err := newReq()
	if err != nil {
		return nil, err
	}
	if err := c.applyBotguard(ctx, retry); err != nil {
		return nil, fmt.Errorf("innertube: botguard attestation: %w", err)
	}
	return c.HTTPClient.Do(retry)
}

// applyBotguard obtains a token and sets it on req.
func (c *Client) applyBotguard(ctx context.Context, req *http.Request) error {
	name := c.clientName
	if name == "" {
		name = clientNameWEB
	}
	tok, err := c.bg.Token(ctx, botguard.Input{
		UserAgent:     req.Header.Get("User-Agent"),
		PageURL:       c.base() + "/",
		ClientName:    name,
		ClientVersion: c.clientVer,
		VisitorID:     req.Header.Get("X-Goog-Visitor-Id"),
	})
	if err != nil {
		return err
	}
	if tok != "" {
		req.Header.Set(botguard.HeaderName, tok)
	}
	return nil
}
