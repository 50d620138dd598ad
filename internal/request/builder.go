package request

import (
	"fmt"
	"strings"

	"shoe-concept-studio/internal/collage"
	"shoe-concept-studio/internal/imaging"
	"shoe-concept-studio/internal/prompt"
)

const (
	DefaultMaxVariations = 4
	DefaultPrompt        = "Design a photorealistic shoe using the provided reference images."
)

type Config struct {
	Required      []Slot
	Mode          Mode
	MaxVariations int
	DefaultPrompt string
	Collage       collage.Board
}

func DefaultConfig() Config {
	return Config{
		Required:      []Slot{Hardware, Material},
		Mode:          ModeMulti,
		MaxVariations: DefaultMaxVariations,
		DefaultPrompt: DefaultPrompt,
		Collage:       collage.DefaultBoard(),
	}
}

type Reason string

const MissingRequiredInput Reason = "missing_required_input"

type ValidationError struct {
	Reason  Reason
	Missing []Slot
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Missing))
	for _, s := range e.Missing {
		names = append(names, string(s))
	}
	return fmt.Sprintf("%s: %s", e.Reason, strings.Join(names, ", "))
}

// Message is the guidance shown next to the form.
func (e *ValidationError) Message() string {
	labels := make([]string, 0, len(e.Missing))
	for _, s := range e.Missing {
		labels = append(labels, s.Label())
	}
	switch len(labels) {
	case 0:
		return "Some required inputs are missing."
	case 1:
		return fmt.Sprintf("Please upload %s.", labels[0])
	default:
		return fmt.Sprintf("Please upload %s and %s.", strings.Join(labels[:len(labels)-1], ", "), labels[len(labels)-1])
	}
}

type Builder struct {
	cfg Config
}

func NewBuilder(cfg Config) *Builder {
	if cfg.MaxVariations < 1 {
		cfg.MaxVariations = DefaultMaxVariations
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeMulti
	}
	if cfg.Collage.Width == 0 {
		cfg.Collage = collage.DefaultBoard()
	}
	cfg.Required = append([]Slot(nil), cfg.Required...)
	return &Builder{cfg: cfg}
}

func (b *Builder) Config() Config {
	cfg := b.cfg
	cfg.Required = append([]Slot(nil), b.cfg.Required...)
	return cfg
}

func (b *Builder) ClampVariations(n int) int {
	if n < 1 {
		return 1
	}
	if n > b.cfg.MaxVariations {
		return b.cfg.MaxVariations
	}
	return n
}

// Build validates d and packages it for the backend. A *ValidationError is
// returned when a required slot has no image.
func (b *Builder) Build(d Draft) (*GenerationRequest, error) {
	var missing []Slot
	for _, s := range b.cfg.Required {
		if _, ok := d.Image(s); !ok {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Reason: MissingRequiredInput, Missing: missing}
	}

	inputs := make(map[Slot]imaging.Image, len(d.Images))
	for s, img := range d.Images {
		if !img.Empty() {
			inputs[s] = img
		}
	}

	presetText := ""
	if p, ok := prompt.Lookup(d.Preset); ok {
		presetText = p.Directive
	}
	effective := prompt.Compose(presetText, d.Prompt)
	if strings.TrimSpace(effective) == "" {
		effective = b.cfg.DefaultPrompt
	}

	req := &GenerationRequest{
		Prompt:     effective,
		UserPrompt: d.Prompt,
		Preset:     d.Preset,
		Variations: b.ClampVariations(d.Variations),
		Background: d.Background,
		inputs:     inputs,
	}

	switch b.cfg.Mode {
	case ModeCollage:
		cells := make([]collage.Cell, 0, len(Slots()))
		for _, s := range Slots() {
			cells = append(cells, collage.Cell{Label: s.Label(), Image: inputs[s]})
		}
		board, err := collage.Compose(cells, b.cfg.Collage)
		if err != nil {
			return nil, fmt.Errorf("compose collage: %w", err)
		}
		req.Images = []imaging.Image{board}
		req.Collage = true
	default:
		for _, s := range Slots() {
			if img, ok := inputs[s]; ok {
				req.Images = append(req.Images, img)
				req.ImageSlots = append(req.ImageSlots, s)
			}
		}
	}

	return req, nil
}
