package imaging

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeTestImage(t *testing.T, format string, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 90, A: 255})
		}
	}

	buf := new(bytes.Buffer)
	var err error
	switch format {
	case "png":
		err = png.Encode(buf, img)
	case "jpeg":
		err = jpeg.Encode(buf, img, nil)
	default:
		t.Fatalf("unsupported format: %s", format)
	}
	require.NoError(t, err)
	return buf.Bytes()
}

// inflatedPNG returns a tiny PNG whose header claims w x h pixels.
func inflatedPNG(t *testing.T, w, h uint32) []byte {
	t.Helper()
	data := bytes.Clone(encodeTestImage(t, "png", 2, 2))
	// Signature (8) + chunk length (4), then "IHDR", width, height.
	binary.BigEndian.PutUint32(data[16:20], w)
	binary.BigEndian.PutUint32(data[20:24], h)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func TestDownscale(t *testing.T) {
	opts := Options{MaxSide: 1024, Quality: 85}

	t.Run("small images keep their dimensions", func(t *testing.T) {
		for _, size := range [][2]int{{10, 10}, {1024, 300}, {640, 1024}, {1, 1}} {
			out := Downscale("small.png", encodeTestImage(t, "png", size[0], size[1]), opts)
			assert.False(t, out.Passthrough)
			assert.Equal(t, size[0], out.Width)
			assert.Equal(t, size[1], out.Height)
			assert.Equal(t, "image/jpeg", out.MIMEType)
		}
	})

	t.Run("large images are bounded to max side exactly", func(t *testing.T) {
		cases := []struct {
			w, h         int
			wantW, wantH int
		}{
			{2000, 1000, 1024, 512},
			{1000, 2000, 512, 1024},
			{1500, 1500, 1024, 1024},
			{3001, 7, 1024, 2},
		}
		for _, tc := range cases {
			out := Downscale("big.png", encodeTestImage(t, "png", tc.w, tc.h), opts)
			assert.Equal(t, tc.wantW, out.Width, "%dx%d", tc.w, tc.h)
			assert.Equal(t, tc.wantH, out.Height, "%dx%d", tc.w, tc.h)
			assert.Equal(t, 1024, out.LongEdge())

			cfg, format, err := image.DecodeConfig(bytes.NewReader(out.Data))
			require.NoError(t, err)
			assert.Equal(t, "jpeg", format)
			assert.Equal(t, tc.wantW, cfg.Width)
			assert.Equal(t, tc.wantH, cfg.Height)
		}
	})

	t.Run("output gets a jpg filename and the input is untouched", func(t *testing.T) {
		in := encodeTestImage(t, "png", 1200, 800)
		orig := bytes.Clone(in)

		out := Downscale("uploads/buckle.PNG", in, opts)
		assert.Equal(t, "buckle.jpg", out.Filename)
		assert.Equal(t, orig, in)
	})

	t.Run("undecodable input is returned unchanged", func(t *testing.T) {
		in := []byte("this is not an image")
		out := Downscale("notes.txt", in, opts)
		assert.True(t, out.Passthrough)
		assert.Equal(t, in, out.Data)
		assert.Equal(t, "notes.txt", out.Filename)
		assert.Equal(t, 0, out.Width)
	})

	t.Run("header declaring too many pixels is not decoded", func(t *testing.T) {
		in := inflatedPNG(t, 30000, 30000)
		out := Downscale("bomb.png", in, opts)
		assert.True(t, out.Passthrough)
		assert.Equal(t, in, out.Data)
		assert.Equal(t, 30000, out.Width)

		_, err := Image{Data: in, Filename: "bomb.png"}.Decode()
		assert.ErrorIs(t, err, ErrTooLarge)
	})

	t.Run("pixel budget is configurable", func(t *testing.T) {
		out := Downscale("x.png", encodeTestImage(t, "png", 20, 20), Options{MaxSide: 1024, Quality: 85, MaxPixels: 100})
		assert.True(t, out.Passthrough)

		out = Downscale("x.png", encodeTestImage(t, "png", 10, 10), Options{MaxSide: 1024, Quality: 85, MaxPixels: 100})
		assert.False(t, out.Passthrough)
	})

	t.Run("zero options fall back to defaults", func(t *testing.T) {
		out := Downscale("x.jpg", encodeTestImage(t, "jpeg", 1100, 50), Options{})
		assert.Equal(t, DefaultMaxSide, out.Width)
	})
}

func TestTargetSize(t *testing.T) {
	w, h := TargetSize(4000, 3000, 1024)
	assert.Equal(t, 1024, w)
	assert.Equal(t, 768, h)

	w, h = TargetSize(800, 800, 1024)
	assert.Equal(t, 800, w)
	assert.Equal(t, 800, h)

	w, h = TargetSize(800, 600, 0)
	assert.Equal(t, 800, w)
	assert.Equal(t, 600, h)
}

func TestFromBase64(t *testing.T) {
	raw := encodeTestImage(t, "png", 4, 3)
	plain := Image{Data: raw, MIMEType: "image/png"}.DataURL()

	t.Run("data url", func(t *testing.T) {
		img, err := FromBase64(plain, "out.png")
		require.NoError(t, err)
		assert.Equal(t, "image/png", img.MIMEType)
		assert.Equal(t, raw, img.Data)
		assert.Equal(t, 4, img.Width)
		assert.Equal(t, 3, img.Height)
	})

	t.Run("bare base64 is sniffed", func(t *testing.T) {
		_, payload, _ := bytes.Cut([]byte(plain), []byte(","))
		img, err := FromBase64(string(payload), "")
		require.NoError(t, err)
		assert.Equal(t, "image/png", img.MIMEType)
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		_, err := FromBase64("%%%not-base64", "")
		assert.Error(t, err)
		_, err = FromBase64("   ", "")
		assert.Error(t, err)
	})
}
