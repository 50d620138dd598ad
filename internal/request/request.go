package request

import (
	"maps"

	"shoe-concept-studio/internal/imaging"
)

// Draft is the set of values a request is built from: the live form state, or
// the merge of a previous request with the live form during regeneration.
type Draft struct {
	Images     map[Slot]imaging.Image
	Prompt     string
	Preset     string
	Variations int
	Background string
}

func (d Draft) Clone() Draft {
	d.Images = maps.Clone(d.Images)
	return d
}

func (d Draft) Image(s Slot) (imaging.Image, bool) {
	img, ok := d.Images[s]
	if !ok || img.Empty() {
		return imaging.Image{}, false
	}
	return img, true
}

// GenerationRequest is the immutable unit handed to the generation backend.
type GenerationRequest struct {
	// Images holds either the slot images in board order or a single collage.
	Images     []imaging.Image
	ImageSlots []Slot
	Collage    bool

	// Prompt is the effective text sent to the backend.
	Prompt     string
	UserPrompt string
	Preset     string
	Variations int
	Background string

	inputs map[Slot]imaging.Image
}

// Draft returns the values this request was built from.
func (r *GenerationRequest) Draft() Draft {
	if r == nil {
		return Draft{}
	}
	return Draft{
		Images:     maps.Clone(r.inputs),
		Prompt:     r.UserPrompt,
		Preset:     r.Preset,
		Variations: r.Variations,
		Background: r.Background,
	}
}
