package bot

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"shoe-concept-studio/internal/lock"
)

func (h *Handler) sendLockPanel(chatID, userID int64) error {
	st := h.sessions.Studio(sessionID(chatID, userID))
	_, err := h.tg.SendTextWithKeyboard(chatID, locksText(st), h.lockKeyboard(userID, st))
	return err
}

func (h *Handler) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if q == nil || q.Message == nil || q.Message.Chat == nil || q.From == nil {
		return nil
	}
	parts := strings.Split(strings.TrimSpace(q.Data), ":")
	if len(parts) != 3 || parts[0] != lockCallbackPrefix {
		return nil
	}

	ownerID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil
	}
	if ownerID != q.From.ID {
		_ = h.tg.AnswerCallback(q.ID, "This panel belongs to someone else.", true)
		return nil
	}

	chatID := q.Message.Chat.ID
	id := sessionID(chatID, ownerID)
	st := h.sessions.Studio(id)

	if parts[2] == "regen" {
		_ = h.tg.AnswerCallback(q.ID, "Generating…", false)
		return h.generate(ctx, chatID, id, true)
	}

	field, ok := lock.ParseField(parts[2])
	if !ok {
		_ = h.tg.AnswerCallback(q.ID, "Unknown field.", true)
		return nil
	}
	locks := st.ToggleLock(field)

	state := "unlocked"
	if locks.Locked(field) {
		state = "locked"
	}
	_ = h.tg.AnswerCallback(q.ID, fieldLabel(field)+" "+state, false)
	return h.tg.EditTextWithKeyboard(chatID, q.Message.MessageID, locksText(st), h.lockKeyboard(ownerID, st))
}
