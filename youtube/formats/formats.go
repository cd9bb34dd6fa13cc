// Package formats turns InnerTube formats into streams and selects among them.
package formats

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/ytget/ytfetch/internal/mimeext"
	"github.com/ytget/ytfetch/types"
	"github.com/ytget/ytfetch/youtube/innertube"
)

var heightRe = regexp.MustCompile(`^([0-9]{2,4})p`)

func parseHeight(label string) int {
	m := heightRe.FindStringSubmatch(strings.TrimSpace(label))
	if len(m) >= 2 {
		if v, err := strconv.Atoi(m[1]); err == nil {
			return v
		}
	}
	return 0
}

// StreamFromFormat converts one InnerTube format. A video MIME type listing
// an even number of codecs carries audio too and is progressive.
func StreamFromFormat(f innertube.Format) types.Stream {
	mt := mimeext.Parse(f.MimeType)
	s := types.Stream{
		Itag:            f.Itag,
		MimeType:        f.MimeType,
		Subtype:         mt.Subtype,
		Codecs:          mt.Codecs,
		FPS:             f.FPS,
		Bitrate:         f.Bitrate,
		AverageBitrate:  f.AverageBitrate,
		URL:             f.URL,
		SignatureCipher: f.SignatureCipher,
	}
	if s.SignatureCipher == "" {
		s.SignatureCipher = f.Cipher
	}
	if n, err := strconv.ParseInt(f.ContentLength, 10, 64); err == nil {
		s.Size = n
	}

	switch mt.Type {
	case "audio":
		s.Kind = types.KindAudio
		br := f.AverageBitrate
		if br == 0 {
			br = f.Bitrate
		}
		if br > 0 {
			s.ABR = fmt.Sprintf("%dkbps", int(math.Round(float64(br)/1000)))
		}
	default:
		s.Progressive = len(mt.Codecs)%2 == 0
		s.Kind = types.KindVideo
		if s.Progressive {
			s.Kind = types.KindProgressive
		}
		h := parseHeight(f.QualityLabel)
		if h == 0 {
			h = f.Height
		}
		if h > 0 {
			s.Resolution = strconv.Itoa(h) + "p"
		}
	}
	return s
}

// ParseFormats returns progressive formats followed by adaptive ones, in
// response order. Formats with neither a URL nor a signature cipher are
// dropped.
func ParseFormats(data *innertube.PlayerResponse) []types.Stream {
	all := make([]types.Stream, 0, len(data.StreamingData.Formats)+len(data.StreamingData.AdaptiveFormats))
	for _, f := range data.StreamingData.Formats {
		all = append(all, StreamFromFormat(f))
	}
	for _, f := range data.StreamingData.AdaptiveFormats {
		all = append(all, StreamFromFormat(f))
	}
	for i := range all {
		all[i].VideoID = data.VideoDetails.VideoID
	}
	return NewQuery(all).Filter(HasURL()).All()
}

// Decipherer transforms signatures and n parameters with the player script.
type Decipherer interface {
	Decipher(ctx context.Context, playerURL, signature string) (string, error)
	DecipherN(ctx context.Context, playerURL, n string) (string, error)
}

// ResolveURL builds the final downloadable URL for s. Direct URLs only get
// their n parameter rewritten; signatureCipher streams are deciphered first.
// A failing n rewrite keeps the original value.
func ResolveURL(ctx context.Context, d Decipherer, s types.Stream, playerURL string) (string, error) {
	var (
		u   *url.URL
		err error
	)
	switch {
	case strings.TrimSpace(s.URL) != "":
		if u, err = url.Parse(s.URL); err != nil {
			return "", fmt.Errorf("parse direct url failed: %w", err)
		}
	case strings.TrimSpace(s.SignatureCipher) != "":
		parsed, err := url.ParseQuery(s.SignatureCipher)
		if err != nil {
			return "", fmt.Errorf("parse signatureCipher failed: %w", err)
		}
		sig, sp, cipherURL := parsed.Get("s"), parsed.Get("sp"), parsed.Get("url")
		if sp == "" {
			sp = "signature"
		}
		if cipherURL == "" || sig == "" {
			return "", errors.New("signatureCipher missing signature or url")
		}
		if d == nil {
			return "", errors.New("signatureCipher requires a decipherer")
		}
		decoded, err := d.Decipher(ctx, playerURL, sig)
		if err != nil {
			return "", fmt.Errorf("decipher signature failed: %w", err)
		}
		if u, err = url.Parse(cipherURL); err != nil {
			return "", fmt.Errorf("parse cipher url failed: %w", err)
		}
		q := u.Query()
		q.Set(sp, decoded)
		u.RawQuery = q.Encode()
	default:
		return "", fmt.Errorf("itag %d: no url or signatureCipher", s.Itag)
	}

	q := u.Query()
	if nval := q.Get("n"); nval != "" && d != nil {
		if nout, err := d.DecipherN(ctx, playerURL, nval); err == nil && nout != "" {
			q.Set("n", nout)
		}
	}
	if q.Get("ratebypass") == "" {
		q.Set("ratebypass", "yes")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
