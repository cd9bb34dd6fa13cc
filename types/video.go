package types

// CaptionTrack is one subtitle track offered for a video.
type CaptionTrack struct {
	LanguageCode string
	Name         string
	BaseURL      string
	// Kind is "asr" for auto-generated tracks.
	Kind string
}

// Video is a single platform video with its stream catalog.
type Video struct {
	ID             string
	Title          string
	Author         string
	LengthSeconds  int
	WatchURL       string
	HLSManifestURL string
	Streams        []Stream
	Captions       []CaptionTrack
}

// PlaylistItem is a minimal playlist entry.
type PlaylistItem struct {
	VideoID string
	Title   string
	Index   int
}

// Playlist is an ordered list of videos, resolved one by one.
type Playlist struct {
	ID    string
	Title string
	Items []PlaylistItem
}
