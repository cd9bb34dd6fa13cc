package hls

import (
	"context"
	"errors"
	"strings"
	"testing"
)

const master = `#EXTM3U
#EXT-X-INDEPENDENT-SEGMENTS
#EXT-X-STREAM-INF:BANDWIDTH=1500000,CODECS="avc1.4d401f,mp4a.40.2",RESOLUTION=1280x720,FRAME-RATE=30
720/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=4500000,CODECS="avc1.640028,mp4a.40.2",RESOLUTION=1920x1080,FRAME-RATE=60
https://cdn.example/1080/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=500000,CODECS="avc1.4d4015,mp4a.40.2",RESOLUTION=640x360
360/index.m3u8
`

const media = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:5
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:5.0,
seg0.ts
#EXT-X-ENDLIST
`

func TestParse(t *testing.T) {
	got, err := Parse(strings.NewReader(master), "https://manifest.example/live/master.m3u8")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d variants", len(got))
	}
	want := []struct {
		res string
		uri string
		h   int
	}{
		{"1080p", "https://cdn.example/1080/index.m3u8", 1080},
		{"720p", "https://manifest.example/live/720/index.m3u8", 720},
		{"360p", "https://manifest.example/live/360/index.m3u8", 360},
	}
	for i, w := range want {
		if got[i].Resolution != w.res || got[i].URI != w.uri || got[i].Height != w.h {
			t.Errorf("variant %d = %+v, want %+v", i, got[i], w)
		}
	}
	if got[0].FrameRate != 60 || got[0].Width != 1920 {
		t.Errorf("variant 0 = %+v", got[0])
	}
}

func TestParse_MediaPlaylistRejected(t *testing.T) {
	if _, err := Parse(strings.NewReader(media), ""); err == nil {
		t.Fatal("expected error for media playlist")
	}
}

func TestVariantString(t *testing.T) {
	v := Variant{Resolution: "720p", Bandwidth: 1500000, FrameRate: 30, Codecs: "avc1"}
	if got := v.String(); got != `<HLS: res="720p" bandwidth="1500000" fps="30fps" codecs="avc1">` {
		t.Errorf("String() = %s", got)
	}
	if got := (Variant{Bandwidth: 64000}).String(); got != `<HLS: res="audio" bandwidth="64000">` {
		t.Errorf("String() = %s", got)
	}
}

type fakeGetter struct {
	body string
	err  error
}

func (f fakeGetter) GetBody(ctx context.Context, url string) ([]byte, error) {
	return []byte(f.body), f.err
}

func TestFetch(t *testing.T) {
	got, err := Fetch(context.Background(), fakeGetter{body: master}, "https://m/x.m3u8")
	if err != nil || len(got) != 3 {
		t.Fatalf("Fetch() = %d, %v", len(got), err)
	}
	if _, err := Fetch(context.Background(), fakeGetter{err: errors.New("boom")}, "https://m/x.m3u8"); err == nil {
		t.Error("expected fetch error")
	}
}
