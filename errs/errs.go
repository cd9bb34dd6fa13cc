package errs

import (
	"errors"
)

var (
	// ErrVideoUnavailable indicates that the requested video cannot be accessed.
	ErrVideoUnavailable = errors.New("video unavailable")
	// ErrPrivate indicates that the video is private and cannot be downloaded.
	ErrPrivate = errors.New("video is private")
	// ErrAgeRestricted indicates that the video has an age restriction.
	ErrAgeRestricted = errors.New("age restricted")
	// ErrCipherFailed indicates failure during signature deciphering.
	ErrCipherFailed = errors.New("cipher failed")
	// ErrGeoBlocked indicates the video is not available in the current region.
	ErrGeoBlocked = errors.New("geo blocked")
	// ErrRateLimited indicates throttling or rate limiting by the remote service.
	ErrRateLimited = errors.New("rate limited")

	// ErrStreamNotFound indicates that no stream matches the selection policy.
	ErrStreamNotFound = errors.New("stream not found")
	// ErrNoAudioStream indicates an adaptive download found no audio track to mux.
	ErrNoAudioStream = errors.New("no audio stream")
	// ErrCaptionNotFound indicates that no caption track has the requested language code.
	ErrCaptionNotFound = errors.New("caption not found")
	// ErrMuxFailed indicates the external muxer exited with a non-zero status.
	ErrMuxFailed = errors.New("mux failed")
	// ErrNameSpaceExhausted indicates no free file name could be allocated.
	ErrNameSpaceExhausted = errors.New("file name space exhausted")
)
