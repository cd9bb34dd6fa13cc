// Package captions lists caption tracks and converts timed-text XML to SRT.
package captions

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ytget/ytfetch/errs"
	"github.com/ytget/ytfetch/internal/logger"
	"github.com/ytget/ytfetch/internal/sanitize"
	"github.com/ytget/ytfetch/types"
	"github.com/ytget/ytfetch/youtube/innertube"
)

// Getter fetches a URL body.
type Getter interface {
	GetBody(ctx context.Context, url string) ([]byte, error)
}

// Tracks returns the caption tracks advertised by a player response.
func Tracks(pr *innertube.PlayerResponse) []types.CaptionTrack {
	if pr == nil {
		return nil
	}
	src := pr.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks
	out := make([]types.CaptionTrack, 0, len(src))
	for _, t := range src {
		out = append(out, types.CaptionTrack{
			LanguageCode: t.LanguageCode,
			Name:         t.Name.String(),
			BaseURL:      t.BaseURL,
			Kind:         t.Kind,
		})
	}
	return out
}

// Find returns the track with the exact language code.
func Find(tracks []types.CaptionTrack, code string) (types.CaptionTrack, error) {
	for _, t := range tracks {
		if t.LanguageCode == code {
			return t, nil
		}
	}
	return types.CaptionTrack{}, fmt.Errorf("%w: %s", errs.ErrCaptionNotFound, code)
}

// FileName returns "{title} ({code}).srt" with the title made file-system safe.
func FileName(title, code string) string {
	return fmt.Sprintf("%s (%s).srt", sanitize.ToSafeName(title), code)
}

type cue struct {
	start, dur time.Duration
	text       string
}

// ToSRT converts timed-text XML into SubRip. Both the srv3 layout
// (<p t="ms" d="ms">) and the legacy layout (<text start="s" dur="s">) are
// understood. Empty cues are dropped.
func ToSRT(data []byte) (string, error) {
	cues, err := parseTimedText(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	n := 0
	for _, c := range cues {
		if c.text == "" {
			continue
		}
		n++
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", n, srtTime(c.start), srtTime(c.start+c.dur), c.text)
	}
	return b.String(), nil
}

func parseTimedText(r io.Reader) ([]cue, error) {
	dec := xml.NewDecoder(r)
	var (
		cues  []cue
		cur   *cue
		text  strings.Builder
		depth int
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse timed text: %w", err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			if cur != nil {
				depth++
				if el.Name.Local == "br" {
					text.WriteString("\n")
				}
				continue
			}
			c, ok := cueFromElement(el)
			if !ok {
				continue
			}
			cur = &c
			text.Reset()
			depth = 0
		case xml.EndElement:
			if cur == nil {
				continue
			}
			if depth > 0 {
				depth--
				continue
			}
			cur.text = cleanText(text.String())
			cues = append(cues, *cur)
			cur = nil
		case xml.CharData:
			if cur != nil {
				text.Write(el)
			}
		}
	}
	if len(cues) == 0 {
		return nil, errors.New("parse timed text: no cues")
	}
	return cues, nil
}

func cueFromElement(el xml.StartElement) (cue, bool) {
	attr := func(name string) string {
		for _, a := range el.Attr {
			if a.Name.Local == name {
				return a.Value
			}
		}
		return ""
	}
	switch el.Name.Local {
	case "p":
		return cue{start: millis(attr("t")), dur: millis(attr("d"))}, true
	case "text":
		return cue{start: seconds(attr("start")), dur: seconds(attr("dur"))}, true
	}
	return cue{}, false
}

func millis(v string) time.Duration {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0
	}
	return time.Duration(n) * time.Millisecond
}

func seconds(v string) time.Duration {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return time.Duration(f * float64(time.Second)).Round(time.Millisecond)
}

// cleanText undoes the double HTML escaping found in legacy tracks and trims
// every line.
func cleanText(s string) string {
	s = html.UnescapeString(s)
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

func srtTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	h := ms / 3600000
	m := ms / 60000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms%1000)
}

// Download fetches track, converts it to SRT and writes FileName(title,
// track.LanguageCode) into dir. It returns the written path.
func Download(ctx context.Context, g Getter, track types.CaptionTrack, title, dir string) (string, error) {
	log := logger.WithComponent(logger.ComponentCaptions)
	if strings.TrimSpace(track.BaseURL) == "" {
		return "", fmt.Errorf("caption %s has no url", track.LanguageCode)
	}
	body, err := g.GetBody(ctx, track.BaseURL)
	if err != nil {
		return "", fmt.Errorf("fetch caption %s: %w", track.LanguageCode, err)
	}
	srt, err := ToSRT(body)
	if err != nil {
		return "", fmt.Errorf("convert caption %s: %w", track.LanguageCode, err)
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create caption dir: %w", err)
	}
	path := filepath.Join(dir, FileName(title, track.LanguageCode))
	if err := os.WriteFile(path, []byte(srt), 0o644); err != nil {
		return "", fmt.Errorf("write caption: %w", err)
	}
	log.Debug("caption written", map[string]interface{}{"path": path, "bytes": len(srt)})
	return path, nil
}
