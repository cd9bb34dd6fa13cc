// Package hls lists the variants of a live-stream HLS master playlist.
package hls

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/grafov/m3u8"
)

// Getter fetches a URL body.
type Getter interface {
	GetBody(ctx context.Context, url string) ([]byte, error)
}

// Variant is one rendition of a master playlist.
type Variant struct {
	URI        string
	Bandwidth  uint32
	Width      int
	Height     int
	Codecs     string
	FrameRate  float64
	Resolution string
}

func (v Variant) String() string {
	res := v.Resolution
	if res == "" {
		res = "audio"
	}
	s := fmt.Sprintf(`<HLS: res="%s" bandwidth="%d"`, res, v.Bandwidth)
	if v.FrameRate > 0 {
		s += fmt.Sprintf(` fps="%sfps"`, strconv.FormatFloat(v.FrameRate, 'f', -1, 64))
	}
	if v.Codecs != "" {
		s += fmt.Sprintf(` codecs="%s"`, v.Codecs)
	}
	return s + ">"
}

// Parse decodes a master playlist and returns its variants ordered by
// bandwidth, highest first. Relative URIs are resolved against base.
func Parse(r io.Reader, base string) ([]Variant, error) {
	playlist, listType, err := m3u8.DecodeFrom(r, true)
	if err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if listType != m3u8.MASTER {
		return nil, errors.New("manifest is not a master playlist")
	}
	master := playlist.(*m3u8.MasterPlaylist)
	baseURL, _ := url.Parse(base)

	out := make([]Variant, 0, len(master.Variants))
	for _, mv := range master.Variants {
		if mv == nil || mv.Iframe {
			continue
		}
		v := Variant{
			URI:       mv.URI,
			Bandwidth: mv.Bandwidth,
			Codecs:    mv.Codecs,
			FrameRate: mv.FrameRate,
		}
		if baseURL != nil {
			if ref, err := url.Parse(mv.URI); err == nil {
				v.URI = baseURL.ResolveReference(ref).String()
			}
		}
		if w, h, ok := strings.Cut(mv.Resolution, "x"); ok {
			v.Width, _ = strconv.Atoi(w)
			v.Height, _ = strconv.Atoi(h)
			if v.Height > 0 {
				v.Resolution = strconv.Itoa(v.Height) + "p"
			}
		}
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Bandwidth > out[j].Bandwidth })
	return out, nil
}

// Fetch downloads and parses the master playlist at manifestURL.
func Fetch(ctx context.Context, g Getter, manifestURL string) ([]Variant, error) {
	body, err := g.GetBody(ctx, manifestURL)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	return Parse(bytes.NewReader(body), manifestURL)
}
