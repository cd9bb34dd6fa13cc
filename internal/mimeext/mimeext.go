package mimeext

import (
	"strings"
)

const (
	// DefaultExt is the extension used when MIME is unknown or empty.
	DefaultExt = "mp4"

	// ExtM4A is the file extension for MP4 audio.
	ExtM4A = "m4a"
	// ExtWebM is the file extension for WebM media.
	ExtWebM = "webm"

	// MimeVideoMP4 is the MIME type for MP4 video.
	MimeVideoMP4 = "video/mp4"
	// MimeAudioMP4 is the MIME type for MP4 audio.
	MimeAudioMP4 = "audio/mp4"
	// MimeVideoWebM is the MIME type for WebM video.
	MimeVideoWebM = "video/webm"
	// MimeAudioWebM is the MIME type for WebM audio.
	MimeAudioWebM = "audio/webm"
)

// Parsed is a split "type/subtype; codecs=..." MIME value.
type Parsed struct {
	Type    string
	Subtype string
	Codecs  []string
}

// Parse splits a platform MIME string such as
// `video/mp4; codecs="avc1.64001F, mp4a.40.2"`.
func Parse(mime string) Parsed {
	var p Parsed
	mime = strings.TrimSpace(mime)
	base, params, _ := strings.Cut(mime, ";")
	base = strings.ToLower(strings.TrimSpace(base))
	if t, st, ok := strings.Cut(base, "/"); ok {
		p.Type, p.Subtype = t, st
	}
	for _, param := range strings.Split(params, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || strings.TrimSpace(k) != "codecs" {
			continue
		}
		for _, c := range strings.Split(strings.Trim(strings.TrimSpace(v), `"`), ",") {
			if c = strings.TrimSpace(c); c != "" {
				p.Codecs = append(p.Codecs, c)
			}
		}
	}
	return p
}

// ExtFromMime returns file extension (without dot) for given mime type.
// Falls back to subtype or mp4 if unknown.
func ExtFromMime(mime string) string {
	mime = strings.TrimSpace(mime)
	if mime == "" {
		return DefaultExt
	}
	base := mime
	if i := strings.Index(mime, ";"); i >= 0 {
		base = strings.TrimSpace(mime[:i])
	}
	switch base {
	case MimeVideoMP4:
		return DefaultExt
	case MimeAudioMP4:
		return ExtM4A
	case MimeVideoWebM, MimeAudioWebM:
		return ExtWebM
	}
	if p := Parse(base); p.Subtype != "" {
		return p.Subtype
	}
	return DefaultExt
}
