package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"shoe-concept-studio/internal/imaging"
	"shoe-concept-studio/internal/journal"
	"shoe-concept-studio/internal/mediagroup"
	"shoe-concept-studio/internal/request"
	"shoe-concept-studio/internal/session"
	"shoe-concept-studio/internal/telegram"
)

// Messenger is the part of the Telegram client the handler needs.
type Messenger interface {
	SendText(chatID int64, text string) error
	SendTextWithKeyboard(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) (int, error)
	EditTextWithKeyboard(chatID int64, messageID int, text string, kb tgbotapi.InlineKeyboardMarkup) error
	AnswerCallback(callbackID string, text string, alert bool) error
	SendImages(chatID int64, images []imaging.Image, caption string) error
	SendUploading(chatID int64)
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
}

// Journal reads past attempts back for /journal.
type Journal interface {
	Recent(ctx context.Context, session string, limit int) ([]journal.Record, error)
}

type Options struct {
	Telegram      Messenger
	Sessions      *session.Store
	Journal       Journal
	Logger        *slog.Logger
	MaxVariations int
	// DownloadConcurrency bounds parallel album downloads.
	DownloadConcurrency int
}

type Handler struct {
	tg            Messenger
	sessions      *session.Store
	journal       Journal
	logger        *slog.Logger
	maxVariations int
	downloads     int
	aggregator    *mediagroup.Aggregator
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = session.NewStore(session.Options{})
	}
	maxVariations := opts.MaxVariations
	if maxVariations < 1 {
		maxVariations = request.DefaultMaxVariations
	}
	downloads := opts.DownloadConcurrency
	if downloads < 1 {
		downloads = 4
	}

	return &Handler{
		tg:            opts.Telegram,
		sessions:      sessions,
		journal:       opts.Journal,
		logger:        logger,
		maxVariations: maxVariations,
		downloads:     downloads,
	}
}

func (h *Handler) SetMediaGroupAggregator(ag *mediagroup.Aggregator) {
	h.aggregator = ag
}

func (h *Handler) HandleUpdate(ctx context.Context, update telegram.Update) error {
	if update.CallbackQuery != nil {
		return h.handleCallback(ctx, update.CallbackQuery)
	}
	if update.Message == nil || update.Message.From == nil || update.Message.Chat == nil {
		return nil
	}

	msg := update.Message
	switch {
	case msg.IsCommand():
		return h.handleCommand(ctx, msg)
	case len(msg.Photo) > 0 || msg.Document != nil:
		return h.handlePhoto(ctx, msg)
	case strings.TrimSpace(msg.Text) != "":
		return h.setPrompt(msg.Chat.ID, sessionID(msg.Chat.ID, msg.From.ID), msg.Text)
	}
	return nil
}

func sessionID(chatID, userID int64) string {
	return fmt.Sprintf("tg:%d:%d", chatID, userID)
}
