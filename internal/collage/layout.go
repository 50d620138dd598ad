package collage

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"shoe-concept-studio/internal/imaging"
)

const CardCount = 4

type Cell struct {
	Label string
	Image imaging.Image
}

// Board describes the fixed 2x2 concept board. Pixel sizes are absolute canvas units.
type Board struct {
	Width        int
	Height       int
	Padding      int
	Gap          int
	HeaderHeight int
	LabelHeight  int
	CornerRadius int
	Title        string

	Background  color.RGBA
	Card        color.RGBA
	Placeholder color.RGBA
	Text        color.RGBA
	MutedText   color.RGBA
}

func DefaultBoard() Board {
	return Board{
		Width:        1024,
		Height:       1024,
		Padding:      32,
		Gap:          24,
		HeaderHeight: 72,
		LabelHeight:  36,
		CornerRadius: 18,
		Title:        "FOOTWEAR CONCEPT BOARD",
		Background:   color.RGBA{R: 0x16, G: 0x16, B: 0x18, A: 0xff},
		Card:         color.RGBA{R: 0x26, G: 0x26, B: 0x2a, A: 0xff},
		Placeholder:  color.RGBA{R: 0x3a, G: 0x3a, B: 0x40, A: 0xff},
		Text:         color.RGBA{R: 0xf2, G: 0xf2, B: 0xf2, A: 0xff},
		MutedText:    color.RGBA{R: 0x9a, G: 0x9a, B: 0xa2, A: 0xff},
	}
}

type Card struct {
	Bounds image.Rectangle
	Label  image.Rectangle
	Image  image.Rectangle
}

type Geometry struct {
	Canvas image.Rectangle
	Header image.Rectangle
	Cards  [CardCount]Card
}

// Layout computes where everything goes without touching any pixels.
func Layout(board Board) Geometry {
	geo := Geometry{
		Canvas: image.Rect(0, 0, board.Width, board.Height),
		Header: image.Rect(board.Padding, board.Padding, board.Width-board.Padding, board.Padding+board.HeaderHeight),
	}

	gridTop := board.Padding + board.HeaderHeight
	cellW := (board.Width - 2*board.Padding - board.Gap) / 2
	cellH := (board.Height - gridTop - board.Padding - board.Gap) / 2

	for i := 0; i < CardCount; i++ {
		col, row := i%2, i/2
		x0 := board.Padding + col*(cellW+board.Gap)
		y0 := gridTop + row*(cellH+board.Gap)
		bounds := image.Rect(x0, y0, x0+cellW, y0+cellH)
		geo.Cards[i] = Card{
			Bounds: bounds,
			Label:  image.Rect(x0, y0, x0+cellW, y0+board.LabelHeight),
			Image:  image.Rect(x0, y0+board.LabelHeight, x0+cellW, y0+cellH),
		}
	}
	return geo
}

func (g Geometry) validate() error {
	if g.Canvas.Empty() {
		return errors.New("collage canvas is empty")
	}
	for i, c := range g.Cards {
		if c.Image.Empty() || !c.Bounds.In(g.Canvas) {
			return fmt.Errorf("collage card %d does not fit: %v", i, c.Bounds)
		}
	}
	return nil
}

// CoverCrop returns the centered region of src that, scaled uniformly, exactly
// fills a dstW x dstH area.
func CoverCrop(src image.Rectangle, dstW, dstH int) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	if sw <= 0 || sh <= 0 || dstW <= 0 || dstH <= 0 {
		return src
	}

	if sw*dstH > dstW*sh {
		cw := int(math.Round(float64(sh) * float64(dstW) / float64(dstH)))
		if cw < 1 {
			cw = 1
		}
		x0 := src.Min.X + (sw-cw)/2
		return image.Rect(x0, src.Min.Y, x0+cw, src.Max.Y)
	}

	ch := int(math.Round(float64(sw) * float64(dstH) / float64(dstW)))
	if ch < 1 {
		ch = 1
	}
	y0 := src.Min.Y + (sh-ch)/2
	return image.Rect(src.Min.X, y0, src.Max.X, y0+ch)
}
