package collage

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"shoe-concept-studio/internal/imaging"
)

const (
	placeholderText = "Optional"
	unreadableText  = "Unreadable"
	labelInset      = 12
)

// Compose renders cells onto board and returns a PNG.
// Exactly four cards are always drawn; missing or empty cells become placeholders.
func Compose(cells []Cell, board Board) (imaging.Image, error) {
	geo := Layout(board)
	if err := geo.validate(); err != nil {
		return imaging.Image{}, err
	}

	canvas := image.NewRGBA(geo.Canvas)
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(board.Background), image.Point{}, draw.Src)
	drawText(canvas, board.Title, geo.Header, board.Text, 3, true)

	for i, card := range geo.Cards {
		var cell Cell
		if i < len(cells) {
			cell = cells[i]
		}
		drawCard(canvas, card, cell, board)
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := enc.Encode(&buf, canvas); err != nil {
		return imaging.Image{}, fmt.Errorf("encode collage: %w", err)
	}

	return imaging.Image{
		Data:     buf.Bytes(),
		MIMEType: "image/png",
		Width:    board.Width,
		Height:   board.Height,
		Filename: "collage.png",
	}, nil
}

func drawCard(canvas *image.RGBA, card Card, cell Cell, board Board) {
	mask := roundedRect{r: card.Bounds, radius: board.CornerRadius}
	draw.DrawMask(canvas, card.Bounds, image.NewUniform(board.Card), image.Point{}, mask, card.Bounds.Min, draw.Over)

	label := strings.ToUpper(strings.TrimSpace(cell.Label))
	if label != "" {
		inner := card.Label
		inner.Min.X += labelInset
		drawText(canvas, label, inner, board.Text, 2, false)
	}

	if cell.Image.Empty() {
		drawPlaceholder(canvas, card, mask, board, placeholderText)
		return
	}

	src, err := cell.Image.Decode()
	if err != nil {
		drawPlaceholder(canvas, card, mask, board, unreadableText)
		return
	}

	area := card.Image
	fitted := image.NewRGBA(image.Rect(0, 0, area.Dx(), area.Dy()))
	crop := CoverCrop(src.Bounds(), area.Dx(), area.Dy())
	draw.CatmullRom.Scale(fitted, fitted.Bounds(), src, crop, draw.Src, nil)
	draw.DrawMask(canvas, area, fitted, image.Point{}, mask, area.Min, draw.Over)
}

func drawPlaceholder(canvas *image.RGBA, card Card, mask image.Image, board Board, text string) {
	draw.DrawMask(canvas, card.Image, image.NewUniform(board.Placeholder), image.Point{}, mask, card.Image.Min, draw.Over)
	drawText(canvas, text, card.Image, board.MutedText, 3, true)
}

// drawText renders with the 7x13 bitmap face and scales it up with nearest
// neighbour so output does not depend on installed fonts.
func drawText(dst draw.Image, text string, area image.Rectangle, col color.Color, scale int, centered bool) {
	face := basicfont.Face7x13
	w := font.MeasureString(face, text).Ceil()
	h := face.Height
	if w <= 0 || area.Empty() {
		return
	}

	glyphs := image.NewAlpha(image.Rect(0, 0, w, h))
	d := font.Drawer{
		Dst:  glyphs,
		Src:  image.Opaque,
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(text)

	if scale < 1 {
		scale = 1
	}
	for scale > 1 && (w*scale > area.Dx() || h*scale > area.Dy()) {
		scale--
	}
	sw, sh := w*scale, h*scale

	x := area.Min.X
	if centered {
		x += (area.Dx() - sw) / 2
	}
	y := area.Min.Y + (area.Dy()-sh)/2
	target := image.Rect(x, y, x+sw, y+sh)

	scaled := image.NewAlpha(image.Rect(0, 0, sw, sh))
	draw.NearestNeighbor.Scale(scaled, scaled.Bounds(), glyphs, glyphs.Bounds(), draw.Src, nil)
	clipped := target.Intersect(area)
	draw.DrawMask(dst, clipped, image.NewUniform(col), image.Point{}, scaled, clipped.Min.Sub(target.Min), draw.Over)
}

type roundedRect struct {
	r      image.Rectangle
	radius int
}

func (m roundedRect) ColorModel() color.Model { return color.AlphaModel }

func (m roundedRect) Bounds() image.Rectangle { return m.r }

func (m roundedRect) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}).In(m.r) {
		return color.Transparent
	}
	rad := m.radius
	if rad <= 0 {
		return color.Opaque
	}

	left, right := m.r.Min.X+rad, m.r.Max.X-1-rad
	top, bottom := m.r.Min.Y+rad, m.r.Max.Y-1-rad

	cx, cy := x, y
	switch {
	case x < left:
		cx = left
	case x > right:
		cx = right
	}
	switch {
	case y < top:
		cy = top
	case y > bottom:
		cy = bottom
	}
	dx, dy := x-cx, y-cy
	if dx*dx+dy*dy > rad*rad {
		return color.Transparent
	}
	return color.Opaque
}
