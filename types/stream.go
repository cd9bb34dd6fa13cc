package types

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MediaKind tells what a stream carries.
type MediaKind string

const (
	KindVideo       MediaKind = "video"
	KindAudio       MediaKind = "audio"
	KindProgressive MediaKind = "progressive"
)

var (
	resolutionRe = regexp.MustCompile(`^([0-9]{2,4})p`)
	abrRe        = regexp.MustCompile(`^([0-9]+)kbps$`)
)

// Stream describes one downloadable media track.
type Stream struct {
	Itag           int
	MimeType       string
	Subtype        string
	Kind           MediaKind
	Codecs         []string
	Resolution     string
	ABR            string
	FPS            int
	Bitrate        int
	AverageBitrate int
	Size           int64
	Progressive    bool

	URL             string
	SignatureCipher string
	// VideoID names the video the stream belongs to, for deciphering.
	VideoID string
}

// IsAudio reports whether the stream is an audio-only track.
func (s Stream) IsAudio() bool { return s.Kind == KindAudio }

// IsVideo reports whether the stream is a video-only track.
func (s Stream) IsVideo() bool { return s.Kind == KindVideo }

// ResolutionValue returns the numeric height from the resolution label,
// or 0 when the stream has none.
func (s Stream) ResolutionValue() int {
	m := resolutionRe.FindStringSubmatch(s.Resolution)
	if len(m) < 2 {
		return 0
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return v
}

// ABRValue returns the average bitrate in kbps from the ABR label,
// falling back to AverageBitrate when the label is missing.
func (s Stream) ABRValue() int {
	if m := abrRe.FindStringSubmatch(s.ABR); len(m) == 2 {
		if v, err := strconv.Atoi(m[1]); err == nil {
			return v
		}
	}
	return s.AverageBitrate / 1000
}

// String renders the stream the way the stream listing prints it.
func (s Stream) String() string {
	parts := []string{
		fmt.Sprintf(`itag="%d"`, s.Itag),
		fmt.Sprintf(`mime_type="%s"`, baseMime(s.MimeType)),
	}
	switch s.Kind {
	case KindAudio:
		parts = append(parts, fmt.Sprintf(`abr="%s"`, s.ABR))
	default:
		parts = append(parts, fmt.Sprintf(`res="%s"`, s.Resolution), fmt.Sprintf(`fps="%dfps"`, s.FPS))
	}
	if len(s.Codecs) > 0 {
		parts = append(parts, fmt.Sprintf(`codecs="%s"`, strings.Join(s.Codecs, ",")))
	}
	parts = append(parts, fmt.Sprintf(`progressive="%t"`, s.Progressive), fmt.Sprintf(`type="%s"`, s.Kind))
	return "<Stream: " + strings.Join(parts, " ") + ">"
}

func baseMime(mime string) string {
	if i := strings.Index(mime, ";"); i >= 0 {
		return strings.TrimSpace(mime[:i])
	}
	return strings.TrimSpace(mime)
}
