// Package document defines document keys and the upload validation rules:
// which filenames are accepted and how they are turned into storage keys.
package document

import (
	"strings"
)

// Reason explains why an upload was rejected.
type Reason string

const (
	ReasonEmptyFilename     Reason = "empty filename"
	ReasonUnsupportedFormat Reason = "unsupported format"
)

// Extensions is the set of accepted filename extensions, without the dot.
type Extensions map[string]struct{}

func NewExtensions(exts ...string) Extensions {
	set := make(Extensions, len(exts))
	for _, ext := range exts {
		set[strings.TrimPrefix(ext, ".")] = struct{}{}
	}
	return set
}

// Allowed reports whether filename has an extension in the set. The match is
// exact and case-sensitive on the text after the final dot.
func (e Extensions) Allowed(filename string) bool {
	i := strings.LastIndexByte(filename, '.')
	if i < 0 {
		return false
	}
	_, ok := e[filename[i+1:]]
	return ok
}

// KeyFor validates an uploaded filename and returns the storage key for it.
// A non-empty Reason means the upload must be rejected.
func KeyFor(filename string, allowed Extensions) (string, Reason) {
	if filename == "" {
		return "", ReasonEmptyFilename
	}
	if !allowed.Allowed(filename) {
		return "", ReasonUnsupportedFormat
	}
	key := SecureFilename(filename)
	switch {
	case key == "":
		return "", ReasonEmptyFilename
	case !allowed.Allowed(key):
		// ".txt" sanitizes to "txt"
		return "", ReasonUnsupportedFormat
	}
	return key, ""
}
