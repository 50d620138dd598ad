package lock

import (
	"strings"

	"shoe-concept-studio/internal/imaging"
	"shoe-concept-studio/internal/request"
)

type Field string

const (
	Prompt     Field = "prompt"
	Preset     Field = "preset"
	Variations Field = "variations"
)

func SlotField(s request.Slot) Field {
	return Field(s)
}

// Fields lists every lockable field: one per input slot, then prompt, preset
// and variation count.
func Fields() []Field {
	out := make([]Field, 0, len(request.Slots())+3)
	for _, s := range request.Slots() {
		out = append(out, SlotField(s))
	}
	return append(out, Prompt, Preset, Variations)
}

func ParseField(value string) (Field, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	if s, ok := request.ParseSlot(value); ok {
		return SlotField(s), true
	}
	switch Field(value) {
	case Prompt, Preset, Variations:
		return Field(value), true
	case "n", "variation", "count":
		return Variations, true
	}
	return "", false
}

const fieldCount = 7

// State is a value type; copying it copies every flag.
type State struct {
	locked [fieldCount]bool
}

// AllLocked is the starting state: regenerate reuses everything until a field
// is unlocked.
func AllLocked() State {
	var st State
	for i := range st.locked {
		st.locked[i] = true
	}
	return st
}

func (s State) Locked(f Field) bool {
	i, ok := fieldIndex(f)
	if !ok {
		return false
	}
	return s.locked[i]
}

func (s State) With(f Field, locked bool) State {
	if i, ok := fieldIndex(f); ok {
		s.locked[i] = locked
	}
	return s
}

func (s State) Toggle(f Field) State {
	return s.With(f, !s.Locked(f))
}

func (s State) Map() map[Field]bool {
	out := make(map[Field]bool, fieldCount)
	for _, f := range Fields() {
		out[f] = s.Locked(f)
	}
	return out
}

func fieldIndex(f Field) (int, bool) {
	for i, candidate := range Fields() {
		if candidate == f {
			return i, true
		}
	}
	return 0, false
}

// Merge produces the draft for the next request. Each locked field is taken
// whole from last, each unlocked field from live. With no previous request the
// live draft is used as-is. Background is not lockable and always comes from
// live.
func Merge(last *request.GenerationRequest, st State, live request.Draft) request.Draft {
	if last == nil {
		return live.Clone()
	}
	prev := last.Draft()

	out := request.Draft{
		Images:     make(map[request.Slot]imaging.Image, len(request.Slots())),
		Prompt:     pick(st.Locked(Prompt), prev.Prompt, live.Prompt),
		Preset:     pick(st.Locked(Preset), prev.Preset, live.Preset),
		Variations: pick(st.Locked(Variations), prev.Variations, live.Variations),
		Background: live.Background,
	}

	for _, s := range request.Slots() {
		src := live
		if st.Locked(SlotField(s)) {
			src = prev
		}
		if img, ok := src.Image(s); ok {
			out.Images[s] = img
		}
	}
	return out
}

func pick[T any](locked bool, prev, live T) T {
	if locked {
		return prev
	}
	return live
}
