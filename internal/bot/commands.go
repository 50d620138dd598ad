package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"shoe-concept-studio/internal/generation"
	"shoe-concept-studio/internal/lock"
	"shoe-concept-studio/internal/prompt"
	"shoe-concept-studio/internal/request"
	"shoe-concept-studio/internal/studio"
)

const helpText = "👟 Footwear Concept Studio\n\n" +
	"Send reference photos. Caption a photo with hardware, material, sole or inspiration to pick its slot; " +
	"photos without a caption fill the next empty slot. Hardware and material are required.\n\n" +
	"Any plain text message becomes the prompt.\n\n" +
	"Commands:\n" +
	"/generate - generate from the current form\n" +
	"/regenerate - generate again, keeping locked fields from the last request\n" +
	"/locks - show the lock panel\n" +
	"/lock <field> - toggle a lock (hardware, material, sole, inspiration, prompt, preset, variations)\n" +
	"/prompt <text> - set the prompt\n" +
	"/preset <id> - choose a style preset (/preset alone lists them)\n" +
	"/variations <n> - number of images to request\n" +
	"/status - show the form\n" +
	"/history - list past attempts\n" +
	"/journal - recent attempts, kept across restarts when the journal is on\n" +
	"/reuse <n> - load history entry n into the form\n" +
	"/last - restore the last prompt you generated with\n" +
	"/reset - empty the form\n" +
	"/clear - clear history"

func (h *Handler) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	chatID := msg.Chat.ID
	id := sessionID(chatID, msg.From.ID)
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		return h.tg.SendText(chatID, helpText)
	case "prompt":
		if args == "" {
			return h.tg.SendText(chatID, formText(h.sessions.Draft(id)))
		}
		return h.setPrompt(chatID, id, args)
	case "preset":
		return h.setPreset(chatID, id, args)
	case "variations":
		return h.setVariations(chatID, id, args)
	case "lock":
		field, ok := lock.ParseField(args)
		if !ok {
			return h.tg.SendText(chatID, "❌ Unknown field. Use one of: "+fieldList()+".")
		}
		h.sessions.Studio(id).ToggleLock(field)
		return h.tg.SendText(chatID, locksText(h.sessions.Studio(id)))
	case "locks":
		return h.sendLockPanel(chatID, msg.From.ID)
	case "generate":
		return h.generate(ctx, chatID, id, false)
	case "regenerate":
		return h.generate(ctx, chatID, id, true)
	case "status":
		return h.tg.SendText(chatID, formText(h.sessions.Draft(id)))
	case "history":
		return h.tg.SendText(chatID, historyText(h.sessions.Studio(id)))
	case "journal":
		return h.sendJournal(ctx, chatID, id)
	case "reuse":
		return h.reuse(chatID, id, args)
	case "last":
		text, ok := h.sessions.Studio(id).LastPrompt()
		if !ok {
			return h.tg.SendText(chatID, "Nothing generated yet.")
		}
		h.sessions.UpdateDraft(id, func(d *request.Draft) { d.Prompt = text })
		return h.tg.SendText(chatID, "✅ Prompt restored:\n"+quoteOrNone(text))
	case "reset":
		h.sessions.ResetDraft(id)
		return h.tg.SendText(chatID, "✅ Form cleared. Locks and history are kept.")
	case "clear":
		h.sessions.Studio(id).ClearHistory()
		return h.tg.SendText(chatID, "✅ History cleared.")
	default:
		return h.tg.SendText(chatID, "❌ Unknown command. See /help.")
	}
}

func (h *Handler) setPrompt(chatID int64, id, text string) error {
	cleaned := prompt.Clean(text)
	h.sessions.UpdateDraft(id, func(d *request.Draft) { d.Prompt = cleaned })
	return h.tg.SendText(chatID, "✅ Prompt set:\n"+quoteOrNone(cleaned))
}

func (h *Handler) setPreset(chatID int64, id, arg string) error {
	if arg == "" {
		var b strings.Builder
		b.WriteString("Presets:\n")
		for _, p := range prompt.Presets() {
			key := p.ID
			if key == "" {
				key = "none"
			}
			fmt.Fprintf(&b, "• %s - %s\n", key, p.Name)
		}
		b.WriteString("\nUse /preset <id>.")
		return h.tg.SendText(chatID, b.String())
	}

	if strings.EqualFold(arg, "none") {
		arg = ""
	}
	p, ok := prompt.Lookup(arg)
	if !ok {
		return h.tg.SendText(chatID, "❌ Unknown preset. Send /preset to see the list.")
	}
	h.sessions.UpdateDraft(id, func(d *request.Draft) { d.Preset = p.ID })
	return h.tg.SendText(chatID, "✅ Preset: "+p.Name)
}

func (h *Handler) setVariations(chatID int64, id, arg string) error {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return h.tg.SendText(chatID, fmt.Sprintf("❌ Send a number from 1 to %d, e.g. /variations 2", h.maxVariations))
	}
	n = max(1, min(n, h.maxVariations))
	h.sessions.UpdateDraft(id, func(d *request.Draft) { d.Variations = n })
	return h.tg.SendText(chatID, fmt.Sprintf("✅ Variations: %d", n))
}

func (h *Handler) generate(ctx context.Context, chatID int64, id string, regenerate bool) error {
	st := h.sessions.Studio(id)
	if st.Busy() {
		return h.tg.SendText(chatID, studio.Message(studio.ErrBusy))
	}

	draft := h.sessions.Draft(id)
	h.tg.SendUploading(chatID)

	var (
		res *generation.Result
		err error
	)
	if regenerate {
		res, err = st.Regenerate(ctx, draft)
	} else {
		res, err = st.Generate(ctx, draft)
	}
	if err != nil {
		h.logger.Warn("generation not delivered", "session", id, "err", err)
		text := "❌ " + studio.Message(err)
		if generation.IsRetryable(err) {
			text += "\n\n🔁 This is usually temporary. Send /" + retryCommand(regenerate) + " to try again."
		}
		return h.tg.SendText(chatID, text)
	}

	caption := fmt.Sprintf("✅ %d concept(s) ready. /regenerate to refine, /locks to choose what to keep.", len(res.Images))
	return h.tg.SendImages(chatID, res.Images, caption)
}

func retryCommand(regenerate bool) string {
	if regenerate {
		return "regenerate"
	}
	return "generate"
}

const journalLimit = 10

func (h *Handler) sendJournal(ctx context.Context, chatID int64, id string) error {
	if h.journal == nil {
		return h.tg.SendText(chatID, "The journal is off. Use /history for this session.")
	}
	recs, err := h.journal.Recent(ctx, id, journalLimit)
	if err != nil {
		h.logger.Error("journal read failed", "session", id, "err", err)
		return h.tg.SendText(chatID, "❌ Could not read the journal.")
	}
	return h.tg.SendText(chatID, journalText(recs))
}

func (h *Handler) reuse(chatID int64, id, arg string) error {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return h.tg.SendText(chatID, "❌ Send the entry number from /history, e.g. /reuse 2")
	}

	d, err := h.sessions.Studio(id).Reuse(n - 1)
	if err != nil {
		return h.tg.SendText(chatID, "❌ "+studio.Message(err))
	}
	h.sessions.UpdateDraft(id, func(form *request.Draft) {
		*form = d
	})
	return h.tg.SendText(chatID, "✅ Entry loaded into the form.\n\n"+formText(d))
}

func fieldList() string {
	names := make([]string, 0, len(lock.Fields()))
	for _, f := range lock.Fields() {
		names = append(names, string(f))
	}
	return strings.Join(names, ", ")
}
