package formats

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ytget/ytfetch/errs"
	"github.com/ytget/ytfetch/types"
)

// PolicyKind enumerates selection policies.
type PolicyKind int

const (
	PolicyBestProgressive PolicyKind = iota
	PolicyExplicitItag
	PolicyExplicitResolution
	PolicyBestAdaptive
	PolicyAudioOnly
)

// Policy drives Select.
type Policy struct {
	Kind       PolicyKind
	Itag       int
	Resolution string
}

// ExplicitItag selects the stream with the given itag.
func ExplicitItag(itag int) Policy { return Policy{Kind: PolicyExplicitItag, Itag: itag} }

// ExplicitResolution selects the first adaptive stream with resolution res.
func ExplicitResolution(res string) Policy {
	return Policy{Kind: PolicyExplicitResolution, Resolution: res}
}

// BestProgressive selects the highest resolution progressive stream.
func BestProgressive() Policy { return Policy{Kind: PolicyBestProgressive} }

// BestAdaptive selects a video/audio pair; use SelectAdaptive. res may be
// empty or "best".
func BestAdaptive(res string) Policy { return Policy{Kind: PolicyBestAdaptive, Resolution: res} }

// AudioOnly selects the best mp4 audio stream, or any audio stream.
func AudioOnly() Policy { return Policy{Kind: PolicyAudioOnly} }

func (p Policy) String() string {
	switch p.Kind {
	case PolicyExplicitItag:
		return "itag " + strconv.Itoa(p.Itag)
	case PolicyExplicitResolution:
		return "resolution " + p.Resolution
	case PolicyBestAdaptive:
		if isBest(p.Resolution) {
			return "best adaptive"
		}
		return "adaptive resolution " + p.Resolution
	case PolicyAudioOnly:
		return "audio only"
	default:
		return "best progressive"
	}
}

func isBest(res string) bool {
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "" || res == "best"
}

func notFound(p Policy) error {
	return fmt.Errorf("%w: %s", errs.ErrStreamNotFound, p)
}

// Select picks one stream from catalog according to p. No match yields an
// error wrapping errs.ErrStreamNotFound. For PolicyBestAdaptive the video
// half of SelectAdaptive is returned.
func Select(catalog []types.Stream, p Policy) (types.Stream, error) {
	q := NewQuery(catalog)
	var (
		s  types.Stream
		ok bool
	)
	switch p.Kind {
	case PolicyExplicitItag:
		s, ok = q.Filter(Itag(p.Itag)).First()
	case PolicyExplicitResolution:
		s, ok = q.Filter(Adaptive(), Resolution(p.Resolution)).First()
	case PolicyBestProgressive:
		s, ok = q.Filter(Progressive()).OrderBy(ByResolution).Last()
	case PolicyAudioOnly:
		audio := q.Filter(OnlyAudio())
		if s, ok = audio.Filter(Subtype("mp4")).OrderBy(ByABR).Last(); !ok {
			s, ok = audio.OrderBy(ByABR).Last()
		}
		if !ok {
			s, ok = audio.Last()
		}
	case PolicyBestAdaptive:
		return selectAdaptiveVideo(q, p)
	default:
		return types.Stream{}, fmt.Errorf("unknown selection policy %d", p.Kind)
	}
	if !ok {
		return types.Stream{}, notFound(p)
	}
	return s, nil
}

func selectAdaptiveVideo(q Query, p Policy) (types.Stream, error) {
	if !isBest(p.Resolution) {
		s, ok := q.Filter(Adaptive(), Resolution(p.Resolution)).First()
		if !ok {
			return types.Stream{}, notFound(p)
		}
		return s, nil
	}
	video := q.Filter(Adaptive(), OnlyVideo())
	highest, ok := video.OrderBy(ByResolution).Last()
	if !ok {
		return types.Stream{}, notFound(p)
	}
	if mp4, ok := video.Filter(Subtype("mp4")).OrderBy(ByResolution).Last(); ok &&
		mp4.ResolutionValue() == highest.ResolutionValue() {
		return mp4, nil
	}
	return highest, nil
}

// SelectAdaptive picks the video and audio halves of a dual-stream download.
// res is a resolution label or "best"/"" for the highest available. Audio is
// the adaptive stream with the highest average bitrate regardless of
// container; its absence yields errs.ErrNoAudioStream.
func SelectAdaptive(catalog []types.Stream, res string) (video, audio types.Stream, err error) {
	q := NewQuery(catalog)
	video, err = selectAdaptiveVideo(q, BestAdaptive(res))
	if err != nil {
		return types.Stream{}, types.Stream{}, err
	}
	audio, ok := q.Filter(Adaptive(), OnlyAudio()).OrderBy(ByABR).Last()
	if !ok {
		return types.Stream{}, types.Stream{}, errs.ErrNoAudioStream
	}
	return video, audio, nil
}
