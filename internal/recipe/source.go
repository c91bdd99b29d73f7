package recipe

import (
	"path"
	"strings"
)

// SignatureSuffixes are the file suffixes of detached signatures.
var SignatureSuffixes = []string{".sig", ".sign", ".asc"}

// Source is one parsed "[filename::]locator" descriptor.
type Source struct {
	Raw      string
	Filename string
	Locator  string
}

// ParseSource splits a source descriptor. Without an explicit filename the
// last path element of the locator is used.
func ParseSource(raw string) Source {
	name, locator, renamed := strings.Cut(raw, "::")
	if !renamed {
		locator = raw
		name = raw
	}
	return Source{
		Raw:      raw,
		Filename: path.Base(name),
		Locator:  locator,
	}
}

// Remote reports whether the locator names a network location.
func (s Source) Remote() bool {
	return strings.Contains(s.Locator, "://")
}

// Archive reports whether the locator is a plain http, https or ftp download.
func (s Source) Archive() bool {
	return strings.HasPrefix(s.Locator, "http://") ||
		strings.HasPrefix(s.Locator, "https://") ||
		strings.HasPrefix(s.Locator, "ftp://")
}

// IsSignature reports whether the filename carries a signature suffix.
func (s Source) IsSignature() bool {
	return HasSignatureSuffix(s.Filename)
}

// HasSignatureSuffix reports whether name ends in a detached-signature suffix.
func HasSignatureSuffix(name string) bool {
	ext := path.Ext(name)
	for _, suffix := range SignatureSuffixes {
		if ext == suffix {
			return true
		}
	}
	return false
}

// Filenames returns the derived filename of every source, in order.
func Filenames(sources []Source) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = s.Filename
	}
	return out
}
