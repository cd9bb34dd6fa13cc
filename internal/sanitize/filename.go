package sanitize

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ytget/ytfetch/errs"
)

const (
	// MaxFilenameLength is the maximum allowed length for the filename base.
	MaxFilenameLength = 120
	// DefaultExt is the default extension used when none is provided.
	DefaultExt = "mp4"
	// DefaultName is the replacement name when the title is empty.
	DefaultName = "video"
	// MaxUniqueAttempts bounds the UniqueName counter.
	MaxUniqueAttempts = 1 << 20
)

var unsafeChars = regexp.MustCompile(`[\\/:*?"<>|]+`)

// ToSafeName strips characters that are unsafe in file names on any platform
// and bounds the length. The result never contains an extension.
func ToSafeName(title string) string {
	name := strings.TrimSpace(title)
	if name == "" {
		name = DefaultName
	}
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.TrimSpace(name)
	if len(name) > MaxFilenameLength {
		name = strings.TrimSpace(name[:MaxFilenameLength])
	}
	return name
}

// ToSafeFilename builds a cross-platform safe filename from title and extension (without dot in ext).
func ToSafeFilename(title, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		ext = DefaultExt
	}
	return filepath.Clean(ToSafeName(title) + "." + ext)
}

// PartName is the extension-less name of one half of an adaptive download:
// "{safe base}_{kind}_{counter}".
func PartName(base, kind string, counter int) string {
	return fmt.Sprintf("%s_%s_%d", ToSafeName(base), kind, counter)
}

// UniqueName returns "{base}_{kind}_{n}" for the smallest n >= 0 such that
// "{base}_{kind}_{n}.{subtype}" does not exist in dir. The returned name has
// no extension. Concurrent callers on the same dir can race.
func UniqueName(base, subtype, kind, dir string) (string, error) {
	subtype = strings.TrimPrefix(strings.ToLower(subtype), ".")
	if subtype == "" {
		subtype = DefaultExt
	}
	for counter := 0; counter < MaxUniqueAttempts; counter++ {
		name := PartName(base, kind, counter)
		_, err := os.Stat(filepath.Join(dir, name+"."+subtype))
		if errors.Is(err, os.ErrNotExist) {
			return name, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", name, err)
		}
	}
	return "", fmt.Errorf("%s_%s_*.%s in %s: %w", ToSafeName(base), kind, subtype, dir, errs.ErrNameSpaceExhausted)
}
