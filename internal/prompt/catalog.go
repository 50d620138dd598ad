package prompt

import "strings"

type Preset struct {
	ID        string
	Name      string
	Directive string
}

const (
	StudioProduct    = "studio_product"
	OnFootModel      = "on_foot_model"
	Flatlay          = "flatlay"
	EcomCatalog      = "ecom_catalog"
	LifestyleOutdoor = "lifestyle_outdoor"
)

const (
	studioProductDirective = "Studio product photograph of a single shoe concept. Seamless light-grey backdrop, " +
		"three-quarter side view, soft key light with gentle rim light, realistic materials and stitching, " +
		"crisp focus from toe to heel, no text, no logos, no watermark."

	onFootModelDirective = "On-foot photograph: the shoe concept worn by a model, cropped from mid-calf down. " +
		"Natural stance on a clean concrete floor, soft daylight, shallow depth of field, the shoe stays " +
		"sharp and dominant, no visible face, no text, no watermark."

	flatlayDirective = "Top-down flatlay of the shoe concept on a neutral textured surface, pair arranged " +
		"symmetrically, even diffused lighting, subtle shadows, material swatches may appear at the edges, " +
		"no text, no watermark."

	ecomCatalogDirective = "E-commerce catalog image: the shoe concept isolated on pure white, lateral side view, " +
		"centered with generous margins, neutral colour-accurate lighting, soft contact shadow only, " +
		"no props, no text, no watermark."

	lifestyleOutdoorDirective = "Lifestyle outdoor photograph of the shoe concept in a natural setting " +
		"(city street, park path or rocky trail as fits the design), golden-hour light, cinematic but " +
		"realistic colour, the shoe remains the hero of the frame, no text, no watermark."
)

var presets = map[string]Preset{
	"":               {ID: "", Name: "None"},
	StudioProduct:    {ID: StudioProduct, Name: "Studio Product", Directive: studioProductDirective},
	OnFootModel:      {ID: OnFootModel, Name: "On-Foot Model", Directive: onFootModelDirective},
	Flatlay:          {ID: Flatlay, Name: "Flatlay", Directive: flatlayDirective},
	EcomCatalog:      {ID: EcomCatalog, Name: "Ecom Catalog", Directive: ecomCatalogDirective},
	LifestyleOutdoor: {ID: LifestyleOutdoor, Name: "Lifestyle Outdoor", Directive: lifestyleOutdoorDirective},
}

// Presets returns the catalog in display order, starting with the empty preset.
func Presets() []Preset {
	order := []string{
		"",
		StudioProduct,
		OnFootModel,
		Flatlay,
		EcomCatalog,
		LifestyleOutdoor,
	}

	out := make([]Preset, 0, len(order))
	for _, id := range order {
		if p, ok := presets[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Lookup accepts an id or a display name, case-insensitively.
func Lookup(key string) (Preset, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	if p, ok := presets[key]; ok {
		return p, true
	}
	for _, p := range presets {
		if p.ID != "" && strings.EqualFold(p.Name, key) {
			return p, true
		}
	}
	return Preset{}, false
}
