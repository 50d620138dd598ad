package imaging

import (
	"fmt"
	"path/filepath"
	"strings"
)

var supportedTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
}

var supportedExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// UnsupportedError rejects an upload that is not JPEG, PNG or WebP.
type UnsupportedError struct {
	Filename string
	Type     string
}

func (e *UnsupportedError) Error() string {
	return "unsupported image " + e.Label()
}

// Label names the file the way a user picked it, e.g. "text/plain (notes.txt)".
func (e *UnsupportedError) Label() string {
	switch {
	case e.Type != "" && e.Filename != "":
		return fmt.Sprintf("%s (%s)", e.Type, e.Filename)
	case e.Type != "":
		return e.Type
	default:
		return e.Filename
	}
}

// Supported reports whether an upload is JPEG, PNG or WebP by its declared
// type, its file extension or its content.
func Supported(name, declaredType string, data []byte) bool {
	if supportedTypes[normalizeType(declaredType)] {
		return true
	}
	if supportedExts[strings.ToLower(filepath.Ext(strings.TrimSpace(name)))] {
		return true
	}
	return len(data) > 0 && supportedTypes[Sniff(data)]
}

// CheckSupported returns an *UnsupportedError when Supported is false.
func CheckSupported(name, declaredType string, data []byte) error {
	if Supported(name, declaredType, data) {
		return nil
	}
	typ := normalizeType(declaredType)
	if typ == "" && len(data) > 0 {
		typ = Sniff(data)
	}
	return &UnsupportedError{Filename: filepath.Base(strings.TrimSpace(name)), Type: typ}
}

func normalizeType(t string) string {
	t, _, _ = strings.Cut(t, ";")
	return strings.ToLower(strings.TrimSpace(t))
}
