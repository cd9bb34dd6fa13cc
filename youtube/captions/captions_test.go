package captions

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ytget/ytfetch/errs"
	"github.com/ytget/ytfetch/types"
	"github.com/ytget/ytfetch/youtube/innertube"
)

const srv3 = `<?xml version="1.0" encoding="utf-8" ?><timedtext format="3">
<body>
<p t="0" d="1500">Hello</p>
<p t="1500" d="2250"><s>multi</s><s t="300"> part</s></p>
<p t="3750" d="1000"></p>
<p t="3661001" d="999">late &amp; last</p>
</body>
</timedtext>`

const legacy = `<?xml version="1.0" encoding="utf-8" ?><transcript>
<text start="0.5" dur="1.25">it&amp;#39;s here</text>
<text start="2" dur="3">line one
line two</text>
</transcript>`

func TestToSRT_Format3(t *testing.T) {
	got, err := ToSRT([]byte(srv3))
	if err != nil {
		t.Fatal(err)
	}
	want := "1\n00:00:00,000 --> 00:00:01,500\nHello\n\n" +
		"2\n00:00:01,500 --> 00:00:03,750\nmulti part\n\n" +
		"3\n01:01:01,001 --> 01:01:02,000\nlate & last\n\n"
	if got != want {
		t.Errorf("ToSRT() =\n%q\nwant\n%q", got, want)
	}
}

func TestToSRT_Legacy(t *testing.T) {
	got, err := ToSRT([]byte(legacy))
	if err != nil {
		t.Fatal(err)
	}
	want := "1\n00:00:00,500 --> 00:00:01,750\nit's here\n\n" +
		"2\n00:00:02,000 --> 00:00:05,000\nline one\nline two\n\n"
	if got != want {
		t.Errorf("ToSRT() =\n%q\nwant\n%q", got, want)
	}
}

func TestToSRT_Errors(t *testing.T) {
	for _, in := range []string{"", "<transcript></transcript>", "<p t='1'>unterminated"} {
		if _, err := ToSRT([]byte(in)); err == nil {
			t.Errorf("ToSRT(%q) expected error", in)
		}
	}
}

func TestSrtTime(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00:00,000"},
		{1500 * time.Millisecond, "00:00:01,500"},
		{2*time.Hour + 3*time.Minute + 4*time.Second + 5*time.Millisecond, "02:03:04,005"},
		{-time.Second, "00:00:00,000"},
	}
	for _, tt := range tests {
		if got := srtTime(tt.in); got != tt.want {
			t.Errorf("srtTime(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTracksAndFind(t *testing.T) {
	var pr innertube.PlayerResponse
	pr.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks = []innertube.CaptionTrack{
		{BaseURL: "https://x/en", Name: innertube.Text{SimpleText: "English"}, LanguageCode: "en"},
		{BaseURL: "https://x/a.en", Name: innertube.Text{SimpleText: "English (auto-generated)"}, LanguageCode: "a.en", Kind: "asr"},
	}
	tracks := Tracks(&pr)
	if len(tracks) != 2 || tracks[0].Name != "English" || tracks[1].Kind != "asr" {
		t.Fatalf("Tracks() = %+v", tracks)
	}
	if Tracks(nil) != nil {
		t.Error("Tracks(nil) should be nil")
	}

	got, err := Find(tracks, "a.en")
	if err != nil || got.BaseURL != "https://x/a.en" {
		t.Errorf("Find(a.en) = %+v, %v", got, err)
	}
	if _, err := Find(tracks, "EN"); !errors.Is(err, errs.ErrCaptionNotFound) {
		t.Errorf("Find is exact match, err = %v", err)
	}
}

func TestFileName(t *testing.T) {
	if got := FileName("A/B: c", "en"); got != "A_B_ c (en).srt" {
		t.Errorf("FileName() = %q", got)
	}
}

type fakeGetter map[string]string

func (f fakeGetter) GetBody(ctx context.Context, url string) ([]byte, error) {
	body, ok := f[url]
	if !ok {
		return nil, errors.New("404")
	}
	return []byte(body), nil
}

func TestDownload(t *testing.T) {
	dir := t.TempDir()
	g := fakeGetter{"https://x/en": legacy}
	track := types.CaptionTrack{LanguageCode: "en", BaseURL: "https://x/en"}

	path, err := Download(context.Background(), g, track, "My Video", dir)
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(dir, "My Video (en).srt") {
		t.Errorf("path = %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 || data[0] != '1' {
		t.Errorf("unexpected content %q", data)
	}

	if _, err := Download(context.Background(), g, types.CaptionTrack{LanguageCode: "de", BaseURL: "https://x/de"}, "v", dir); err == nil {
		t.Error("expected fetch error")
	}
	if _, err := Download(context.Background(), g, types.CaptionTrack{LanguageCode: "fr"}, "v", dir); err == nil {
		t.Error("expected missing url error")
	}
}

func TestDownload_CreatesTargetDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "new", "subs")
	g := fakeGetter{"https://x/en": legacy}
	track := types.CaptionTrack{LanguageCode: "en", BaseURL: "https://x/en"}

	path, err := Download(context.Background(), g, track, "T", dir)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if path != filepath.Join(dir, "T (en).srt") {
		t.Errorf("path = %q", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("caption not written: %v", err)
	}
}
