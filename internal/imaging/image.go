package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	_ "golang.org/x/image/webp"
)

// Image is an encoded image buffer with its declared type and pixel size.
// Values are treated as immutable once created.
type Image struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
	Filename string

	// Passthrough marks a buffer that could not be decoded and was kept as-is.
	Passthrough bool
}

func (img Image) Empty() bool {
	return len(img.Data) == 0
}

func (img Image) LongEdge() int {
	if img.Width > img.Height {
		return img.Width
	}
	return img.Height
}

func (img Image) DataURL() string {
	mimeType := img.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(img.Data))
}

// ErrTooLarge rejects a buffer whose header declares more pixels than allowed.
var ErrTooLarge = errors.New("image exceeds the pixel budget")

// Decode decodes the buffer, refusing anything over DefaultMaxPixels.
func (img Image) Decode() (image.Image, error) {
	if img.Empty() {
		return nil, errors.New("empty image")
	}
	decoded, err := decodeBounded(img.Data, DefaultMaxPixels)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", img.Filename, err)
	}
	return decoded, nil
}

// decodeBounded reads the header first so a small file declaring huge
// dimensions is refused before any pixel buffer is allocated.
func decodeBounded(data []byte, maxPixels int) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}
	decoded, _, err := image.Decode(bytes.NewReader(data))
	return decoded, err
}

// FromBase64 accepts either a bare base64 payload or a data URI.
func FromBase64(payload string, filename string) (Image, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return Image{}, errors.New("empty image payload")
	}

	declared := ""
	if strings.HasPrefix(payload, "data:") {
		meta, data, ok := strings.Cut(payload, ",")
		if !ok {
			return Image{}, errors.New("invalid data url")
		}
		meta = strings.TrimPrefix(meta, "data:")
		declared = strings.TrimSpace(strings.SplitN(meta, ";", 2)[0])
		payload = data
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, fmt.Errorf("decode base64: %w", err)
	}
	if len(raw) == 0 {
		return Image{}, errors.New("empty image payload")
	}

	out := Image{
		Data:     raw,
		MIMEType: declared,
		Filename: filename,
	}
	if out.MIMEType == "" {
		out.MIMEType = Sniff(raw)
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(raw)); err == nil {
		out.Width = cfg.Width
		out.Height = cfg.Height
	}
	return out, nil
}

func Sniff(data []byte) string {
	mimeType := http.DetectContentType(data)
	if strings.Contains(mimeType, ";") {
		mimeType = strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return mimeType
}
