package ytfetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ytget/ytfetch/errs"
	"github.com/ytget/ytfetch/types"
)

const (
	testWatchHTML = `<html><script>ytcfg.set({"INNERTUBE_API_KEY":"test-key"});var cfg={"jsUrl":"/s/player/test/base.js"};</script></html>`
	testPlayerJS  = `function decipher(a){return a.split("").reverse().join("")}
function ncode(n){return n+"-ok"}`
	testCaptionXML = `<?xml version="1.0" encoding="utf-8" ?><transcript><text start="0" dur="1">hi</text></transcript>`
	testMaster     = "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=854x480\n480.m3u8\n"
)

func testPlayerResponse(base, status string) string {
	sc, _ := json.Marshal(url.Values{"s": {"abc"}, "sp": {"sig"}, "url": {base + "/media/22?n=q"}}.Encode())
	return fmt.Sprintf(`{
		"playabilityStatus": {"status": %[3]q, "reason": "Sign in to confirm your age"},
		"videoDetails": {"videoId": "abcdefghijk", "title": "Test Video", "author": "Someone", "lengthSeconds": "61"},
		"streamingData": {
			"formats": [
				{"itag": 18, "url": "%[1]s/media/18", "mimeType": "video/mp4; codecs=\"avc1.42001E, mp4a.40.2\"", "qualityLabel": "360p", "contentLength": "4096"},
				{"itag": 22, "signatureCipher": %[2]s, "mimeType": "video/mp4; codecs=\"avc1.64001F, mp4a.40.2\"", "qualityLabel": "720p"}
			],
			"adaptiveFormats": [
				{"itag": 140, "url": "%[1]s/media/140", "mimeType": "audio/mp4; codecs=\"mp4a.40.2\"", "averageBitrate": 129000}
			],
			"hlsManifestUrl": "%[1]s/hls/master.m3u8"
		},
		"captions": {"playerCaptionsTracklistRenderer": {"captionTracks": [
			{"baseUrl": "%[1]s/tt?lang=en", "name": {"simpleText": "English"}, "languageCode": "en"}
		]}}
	}`, base, sc, status)
}

var testMedia = bytes.Repeat([]byte("0123456789abcdef"), 256)

func newFakePlatform(t *testing.T, status string) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/watch", func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, testWatchHTML) })
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, "<html></html>") })
	mux.HandleFunc("/youtubei/v1/player", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, testPlayerResponse(srv.URL, status))
	})
	mux.HandleFunc("/s/player/test/base.js", func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, testPlayerJS) })
	mux.HandleFunc("/tt", func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, testCaptionXML) })
	mux.HandleFunc("/hls/master.m3u8", func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, testMaster) })
	mux.HandleFunc("/media/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/22") {
			q := r.URL.Query()
			if q.Get("sig") != "cba" || q.Get("n") != "q-ok" {
				http.Error(w, "bad signature", http.StatusForbidden)
				return
			}
		}
		http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(testMedia))
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(srv *httptest.Server) *Client {
	return New(Options{BaseURL: srv.URL, ClientName: "WEB"})
}

func TestClient_Video(t *testing.T) {
	srv := newFakePlatform(t, "OK")
	c := newTestClient(srv)

	v, err := c.Video(context.Background(), "abcdefghijk")
	if err != nil {
		t.Fatalf("Video: %v", err)
	}
	if v.Title != "Test Video" || v.Author != "Someone" || v.LengthSeconds != 61 {
		t.Errorf("video = %+v", v)
	}
	if v.WatchURL != srv.URL+"/watch?v=abcdefghijk" {
		t.Errorf("WatchURL = %s", v.WatchURL)
	}
	if len(v.Streams) != 3 || v.Streams[0].Itag != 18 || v.Streams[2].Kind != types.KindAudio {
		t.Errorf("streams = %+v", v.Streams)
	}
	if len(v.Captions) != 1 || v.Captions[0].Name != "English" {
		t.Errorf("captions = %+v", v.Captions)
	}

	streams, err := c.ListStreams(context.Background(), &types.Video{ID: "abcdefghijk"})
	if err != nil || len(streams) != 3 {
		t.Errorf("ListStreams = %d, %v", len(streams), err)
	}
}

func TestClient_VideoUnplayable(t *testing.T) {
	srv := newFakePlatform(t, "LOGIN_REQUIRED")
	_, err := newTestClient(srv).Video(context.Background(), "abcdefghijk")
	if !errors.Is(err, errs.ErrAgeRestricted) {
		t.Fatalf("err = %v, want age restricted", err)
	}
}

func TestClient_Transfer(t *testing.T) {
	srv := newFakePlatform(t, "OK")
	c := newTestClient(srv)
	v, err := c.Video(context.Background(), "abcdefghijk")
	if err != nil {
		t.Fatal(err)
	}

	for _, itag := range []int{18, 22} {
		t.Run(fmt.Sprint(itag), func(t *testing.T) {
			var s types.Stream
			for _, st := range v.Streams {
				if st.Itag == itag {
					s = st
				}
			}
			path := filepath.Join(t.TempDir(), "out.mp4")
			var last int64
			if err := c.Transfer(context.Background(), s, path, func(received, total int64) { last = received }); err != nil {
				t.Fatalf("Transfer: %v", err)
			}
			got, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, testMedia) {
				t.Errorf("content mismatch: %d bytes", len(got))
			}
			if last != int64(len(testMedia)) {
				t.Errorf("last progress = %d", last)
			}
		})
	}
}

func TestClient_StreamURL(t *testing.T) {
	srv := newFakePlatform(t, "OK")
	c := newTestClient(srv)

	direct := types.Stream{Itag: 18, URL: srv.URL + "/media/18"}
	if got, err := c.StreamURL(context.Background(), direct); err != nil || got != direct.URL {
		t.Errorf("direct = %q, %v", got, err)
	}

	withN := types.Stream{Itag: 140, URL: srv.URL + "/media/140?n=zz", VideoID: "abcdefghijk"}
	got, err := c.StreamURL(context.Background(), withN)
	if err != nil {
		t.Fatal(err)
	}
	u, _ := url.Parse(got)
	if u.Query().Get("n") != "zz-ok" {
		t.Errorf("n not rewritten: %s", got)
	}
}

func TestClient_CaptionsHLSAndReport(t *testing.T) {
	srv := newFakePlatform(t, "OK")
	c := newTestClient(srv)
	ctx := context.Background()
	v, err := c.Video(ctx, "https://www.youtube.com/watch?v=abcdefghijk")
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	path, err := c.DownloadCaption(ctx, v.Captions[0], v.Title, dir)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "Test Video (en).srt" {
		t.Errorf("caption path = %s", path)
	}

	variants, err := c.HLSVariants(ctx, v)
	if err != nil || len(variants) != 1 || variants[0].Resolution != "480p" {
		t.Errorf("HLSVariants = %+v, %v", variants, err)
	}
	if none, err := c.HLSVariants(ctx, &types.Video{}); none != nil || err != nil {
		t.Errorf("no manifest = %v, %v", none, err)
	}

	rep, err := c.PlaybackReport(ctx, v)
	if err != nil {
		t.Fatal(err)
	}
	if rep.URL != v.WatchURL || rep.JS != testPlayerJS || rep.WatchHTML != testWatchHTML {
		t.Errorf("report = %+v", rep)
	}
	if !strings.Contains(rep.VideoInfo, `"Test Video"`) {
		t.Errorf("video info missing raw response")
	}
}

func TestExtractVideoID(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://www.youtube.com/watch?v=abc123", "abc123"},
		{"https://youtu.be/xyz789", "xyz789"},
		{"https://www.youtube.com/shorts/brZCOVlyPPo", "brZCOVlyPPo"},
		{"https://youtube.com/shorts/abc123", "abc123"},
		{"https://www.youtube.com/shorts/xyz789?si=3E6i4QoYvnJjqS_b", "xyz789"},
		{"https://youtube.com/watch?app=desktop&v=def456&feature=youtu.be", "def456"},
		{"https://youtu.be/ghi789?si=token", "ghi789"},
		{"https://m.youtube.com/watch?v=mobile1", "mobile1"},
		{"https://www.youtube.com/embed/emb123", "emb123"},
		{"https://www.youtube.com/live/live123", "live123"},
		{"dQw4w9WgXcQ", "dQw4w9WgXcQ"},
	}
	for _, tc := range cases {
		got, err := ExtractVideoID(tc.url)
		if err != nil {
			t.Fatalf("%s -> error: %v (want %s)", tc.url, err, tc.want)
		}
		if got != tc.want {
			t.Fatalf("%s -> got %s (want %s)", tc.url, got, tc.want)
		}
	}
}

func TestExtractVideoID_Invalid(t *testing.T) {
	cases := []string{
		"https://www.youtube.com/watch?foo=bar",
		"https://example.com/",
		"not a url",
		"https://www.youtube.com/playlist?list=PLxxxx",
		"https://www.youtube.com/channel/UCxxxx",
	}
	for _, u := range cases {
		got, err := ExtractVideoID(u)
		if got != "" || err == nil {
			t.Fatalf("%s -> got=%q err=%v; want empty id and error", u, got, err)
		}
	}
}

func TestParsePlaylistID(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"PLabc123", "PLabc123", false},
		{"OLAK5uy_xyz", "OLAK5uy_xyz", false},
		{"https://www.youtube.com/playlist?list=PLxyz", "PLxyz", false},
		{"https://www.youtube.com/watch?v=abc&list=UUq", "UUq", false},
		{"https://www.youtube.com/watch?v=abc", "", true},
	}
	for _, tc := range cases {
		got, err := ParsePlaylistID(tc.in)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Errorf("ParsePlaylistID(%q) = %q, %v", tc.in, got, err)
		}
	}
}

func TestNeedsPlayer(t *testing.T) {
	cases := map[string]struct {
		s    types.Stream
		want bool
	}{
		"direct":           {types.Stream{URL: "https://x/v?itag=18"}, false},
		"throttled":        {types.Stream{URL: "https://x/v?n=abc"}, true},
		"signature cipher": {types.Stream{SignatureCipher: "s=1&url=x"}, true},
	}
	for name, tc := range cases {
		if got := needsPlayer(tc.s); got != tc.want {
			t.Errorf("%s: needsPlayer = %v", name, got)
		}
	}
}
