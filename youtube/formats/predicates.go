package formats

import (
	"sort"
	"strings"

	"github.com/ytget/ytfetch/types"
)

// Predicate reports whether a stream is kept by Query.Filter.
type Predicate func(types.Stream) bool

// Itag keeps the stream with the given itag. Non-positive itags match nothing.
func Itag(itag int) Predicate {
	return func(s types.Stream) bool { return itag > 0 && s.Itag == itag }
}

// Progressive keeps streams carrying both audio and video.
func Progressive() Predicate {
	return func(s types.Stream) bool { return s.Progressive }
}

// Adaptive keeps audio-only and video-only streams.
func Adaptive() Predicate {
	return func(s types.Stream) bool { return !s.Progressive }
}

// OnlyVideo keeps adaptive video streams.
func OnlyVideo() Predicate {
	return func(s types.Stream) bool { return s.IsVideo() }
}

// OnlyAudio keeps adaptive audio streams.
func OnlyAudio() Predicate {
	return func(s types.Stream) bool { return s.IsAudio() }
}

// Resolution keeps streams whose resolution label equals res ("720p").
func Resolution(res string) Predicate {
	res = strings.ToLower(strings.TrimSpace(res))
	return func(s types.Stream) bool { return res != "" && strings.ToLower(s.Resolution) == res }
}

// Subtype keeps streams with the container subtype (e.g. mp4, webm). The
// value is case-insensitive and may start with a dot.
func Subtype(subtype string) Predicate {
	want := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(subtype)), ".")
	return func(s types.Stream) bool { return want == "" || s.Subtype == want }
}

// HasURL keeps streams that are directly fetchable or carry a signature cipher.
func HasURL() Predicate {
	return func(s types.Stream) bool {
		return strings.TrimSpace(s.URL) != "" || strings.TrimSpace(s.SignatureCipher) != ""
	}
}

// Query is an immutable, ordered view over a stream catalog.
type Query struct {
	streams []types.Stream
}

// NewQuery wraps streams. The slice is not modified by any Query method.
func NewQuery(streams []types.Stream) Query {
	return Query{streams: streams}
}

// Filter keeps streams matching every predicate, preserving order.
func (q Query) Filter(preds ...Predicate) Query {
	out := make([]types.Stream, 0, len(q.streams))
next:
	for _, s := range q.streams {
		for _, p := range preds {
			if !p(s) {
				continue next
			}
		}
		out = append(out, s)
	}
	return Query{streams: out}
}

// OrderBy sorts ascending by key, dropping streams whose key is 0 (no value).
// Equal keys keep their catalog order.
func (q Query) OrderBy(key func(types.Stream) int) Query {
	out := make([]types.Stream, 0, len(q.streams))
	for _, s := range q.streams {
		if key(s) != 0 {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return key(out[i]) < key(out[j]) })
	return Query{streams: out}
}

// First returns the first stream.
func (q Query) First() (types.Stream, bool) {
	if len(q.streams) == 0 {
		return types.Stream{}, false
	}
	return q.streams[0], true
}

// Last returns the last stream.
func (q Query) Last() (types.Stream, bool) {
	if len(q.streams) == 0 {
		return types.Stream{}, false
	}
	return q.streams[len(q.streams)-1], true
}

// All returns a copy of the streams in order.
func (q Query) All() []types.Stream {
	return append([]types.Stream(nil), q.streams...)
}

// ByResolution orders by numeric resolution.
func ByResolution(s types.Stream) int { return s.ResolutionValue() }

// ByABR orders by numeric average bitrate (kbps).
func ByABR(s types.Stream) int { return s.ABRValue() }
