package bot

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"shoe-concept-studio/internal/journal"
	"shoe-concept-studio/internal/lock"
	"shoe-concept-studio/internal/prompt"
	"shoe-concept-studio/internal/request"
	"shoe-concept-studio/internal/studio"
)

func formText(d request.Draft) string {
	var b strings.Builder
	b.WriteString("📋 Form\n")
	for _, slot := range request.Slots() {
		mark := "missing"
		if img, ok := d.Image(slot); ok {
			mark = fmt.Sprintf("✅ %dx%d", img.Width, img.Height)
		}
		fmt.Fprintf(&b, "%s: %s\n", slot.Label(), mark)
	}

	presetName := "None"
	if p, ok := prompt.Lookup(d.Preset); ok && p.ID != "" {
		presetName = p.Name
	}
	fmt.Fprintf(&b, "Preset: %s\n", presetName)
	fmt.Fprintf(&b, "Variations: %d\n", d.Variations)
	fmt.Fprintf(&b, "Prompt: %s", quoteOrNone(d.Prompt))
	return b.String()
}

func locksText(st *studio.Studio) string {
	locks := st.Locks()
	var b strings.Builder
	b.WriteString("🔐 Locks (locked fields are reused by /regenerate)\n")
	for _, f := range lock.Fields() {
		fmt.Fprintf(&b, "%s %s\n", lockIcon(locks.Locked(f)), fieldLabel(f))
	}
	if st.Phase() == studio.PhaseInitial {
		b.WriteString("\nNo request yet: the first generation uses the form as is.")
	}
	return b.String()
}

func historyText(st *studio.Studio) string {
	entries := st.History()
	if len(entries) == 0 {
		return "History is empty."
	}

	var b strings.Builder
	b.WriteString("🕘 History (newest first)\n")
	for i, e := range entries {
		text := ""
		if e.Request != nil {
			text = e.Request.UserPrompt
		}
		switch {
		case e.OK():
			fmt.Fprintf(&b, "%d. ✅ %d image(s) · %s\n", i+1, len(e.Result.Images), shorten(quoteOrNone(text), 60))
		case e.Failure != nil:
			fmt.Fprintf(&b, "%d. ❌ %s · %s\n", i+1, e.Failure.UserMessage(), shorten(quoteOrNone(text), 60))
		}
	}
	b.WriteString("\n/reuse <n> loads an entry.")
	return b.String()
}

func journalText(recs []journal.Record) string {
	if len(recs) == 0 {
		return "The journal is empty."
	}

	var b strings.Builder
	b.WriteString("📓 Journal (newest first)\n")
	for i, rec := range recs {
		at := rec.CreatedAt.UTC().Format("Jan 2 15:04")
		text := shorten(quoteOrNone(rec.UserPrompt), 40)
		if rec.Outcome == journal.OutcomeOK {
			fmt.Fprintf(&b, "%d. ✅ %s · %d image(s) · %s\n", i+1, at, rec.ImagesOut, text)
			continue
		}
		outcome := rec.Outcome
		if rec.Status != 0 {
			outcome += " " + strconv.Itoa(rec.Status)
		}
		fmt.Fprintf(&b, "%d. ❌ %s · %s · %s\n", i+1, at, outcome, text)
	}
	return b.String()
}

const lockCallbackPrefix = "lk"

func (h *Handler) lockKeyboard(ownerID int64, st *studio.Studio) tgbotapi.InlineKeyboardMarkup {
	locks := st.Locks()
	fields := lock.Fields()

	var rows [][]tgbotapi.InlineKeyboardButton
	for i := 0; i < len(fields); i += 2 {
		var row []tgbotapi.InlineKeyboardButton
		for _, f := range fields[i:min(i+2, len(fields))] {
			label := lockIcon(locks.Locked(f)) + " " + fieldLabel(f)
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, lockCallback(ownerID, string(f))))
		}
		rows = append(rows, row)
	}
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("🎨 Regenerate", lockCallback(ownerID, "regen")),
	})
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func lockCallback(ownerID int64, action string) string {
	return lockCallbackPrefix + ":" + strconv.FormatInt(ownerID, 10) + ":" + action
}

func lockIcon(locked bool) string {
	if locked {
		return "🔒"
	}
	return "🔓"
}

func fieldLabel(f lock.Field) string {
	switch f {
	case lock.Prompt:
		return "Prompt"
	case lock.Preset:
		return "Preset"
	case lock.Variations:
		return "Variations"
	}
	if slot, ok := request.ParseSlot(string(f)); ok {
		return slot.Label()
	}
	return string(f)
}

func quoteOrNone(text string) string {
	if strings.TrimSpace(text) == "" {
		return "(none)"
	}
	return "«" + text + "»"
}

func shorten(text string, maxRunes int) string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes-1]) + "…"
}
