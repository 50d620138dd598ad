package request

import (
	"fmt"
	"strings"
)

type Slot string

const (
	Hardware    Slot = "hardware"
	Material    Slot = "material"
	Sole        Slot = "sole"
	Inspiration Slot = "inspiration"
)

// Slots returns every input slot in board order.
func Slots() []Slot {
	return []Slot{Hardware, Material, Sole, Inspiration}
}

func (s Slot) Label() string {
	switch s {
	case Hardware:
		return "Hardware"
	case Material:
		return "Material"
	case Sole:
		return "Sole"
	case Inspiration:
		return "Inspiration"
	default:
		return string(s)
	}
}

var slotAliases = map[string]Slot{
	"hardware":    Hardware,
	"accessory":   Hardware,
	"part1":       Hardware,
	"material":    Material,
	"part2":       Material,
	"sole":        Sole,
	"part3":       Sole,
	"inspiration": Inspiration,
	"part4":       Inspiration,
}

// ParseSlot accepts slot names and the legacy part1..part4 / accessory field names.
func ParseSlot(value string) (Slot, bool) {
	s, ok := slotAliases[strings.ToLower(strings.TrimSpace(value))]
	return s, ok
}

// ParseSlots reads a comma separated list. Unknown names are an error.
func ParseSlots(value string) ([]Slot, error) {
	var out []Slot
	seen := make(map[Slot]struct{})
	for _, raw := range strings.Split(value, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		s, ok := ParseSlot(raw)
		if !ok {
			return nil, fmt.Errorf("unknown slot %q", raw)
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out, nil
}

type Mode string

const (
	ModeMulti   Mode = "multi"
	ModeCollage Mode = "collage"
)

func ParseMode(value string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case ModeMulti, "":
		return ModeMulti, true
	case ModeCollage:
		return ModeCollage, true
	default:
		return "", false
	}
}
