package imaging

import (
	"bytes"
	"image"
	"image/jpeg"
	"math"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
)

const (
	DefaultMaxSide = 1024
	DefaultQuality = 85
	// DefaultMaxPixels bounds the pixel count a buffer may declare before it is
	// fully decoded.
	DefaultMaxPixels = 50_000_000
)

type Options struct {
	MaxSide   int
	Quality   int
	MaxPixels int
}

func DefaultOptions() Options {
	return Options{MaxSide: DefaultMaxSide, Quality: DefaultQuality, MaxPixels: DefaultMaxPixels}
}

// Downscale bounds the longer edge of data to opts.MaxSide and re-encodes it as
// JPEG at opts.Quality. Images are never upscaled. When data cannot be decoded,
// or declares more than opts.MaxPixels, the original bytes are returned with
// Passthrough set.
func Downscale(name string, data []byte, opts Options) Image {
	opts = normalizeOptions(opts)

	src, err := decodeBounded(data, opts.MaxPixels)
	if err != nil {
		return passthrough(name, data)
	}

	bounds := src.Bounds()
	w, h := TargetSize(bounds.Dx(), bounds.Dy(), opts.MaxSide)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	// JPEG has no alpha channel, so transparent areas land on white.
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	if w == bounds.Dx() && h == bounds.Dy() {
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return passthrough(name, data)
	}

	return Image{
		Data:     buf.Bytes(),
		MIMEType: "image/jpeg",
		Width:    w,
		Height:   h,
		Filename: jpegName(name),
	}
}

// TargetSize returns the dimensions after bounding the longer edge to maxSide.
// The longer edge of a reduced image is exactly maxSide.
func TargetSize(width, height, maxSide int) (int, int) {
	if width <= 0 || height <= 0 || maxSide <= 0 {
		return width, height
	}
	long := width
	if height > long {
		long = height
	}
	if long <= maxSide {
		return width, height
	}

	scale := float64(maxSide) / float64(long)
	if width >= height {
		return maxSide, atLeastOne(int(math.Round(float64(height) * scale)))
	}
	return atLeastOne(int(math.Round(float64(width) * scale))), maxSide
}

func normalizeOptions(opts Options) Options {
	if opts.MaxSide <= 0 {
		opts.MaxSide = DefaultMaxSide
	}
	if opts.Quality <= 0 {
		opts.Quality = DefaultQuality
	}
	if opts.Quality > 100 {
		opts.Quality = 100
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = DefaultMaxPixels
	}
	return opts
}

func passthrough(name string, data []byte) Image {
	out := Image{
		Data:        bytes.Clone(data),
		MIMEType:    Sniff(data),
		Filename:    filepath.Base(name),
		Passthrough: true,
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		out.Width = cfg.Width
		out.Height = cfg.Height
	}
	return out
}

func jpegName(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == "/" {
		base = "image"
	}
	return base + ".jpg"
}

func atLeastOne(v int) int {
	if v < 1 {
		return 1
	}
	return v
}
