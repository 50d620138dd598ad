package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"shoe-concept-studio/internal/imaging"
	"shoe-concept-studio/internal/mediagroup"
	"shoe-concept-studio/internal/request"
	"shoe-concept-studio/internal/studio"
)

var errSlotsFull = errors.New("all slots are filled")

func (h *Handler) handlePhoto(ctx context.Context, msg *tgbotapi.Message) error {
	fileID, name, mimeType := photoFile(msg)
	item := mediagroup.Item{
		ChatID:       msg.Chat.ID,
		UserID:       msg.From.ID,
		MediaGroupID: msg.MediaGroupID,
		MessageID:    msg.MessageID,
		Caption:      msg.Caption,
		FileID:       fileID,
		FileName:     name,
		MIMEType:     mimeType,
	}

	if msg.MediaGroupID != "" && h.aggregator != nil {
		h.aggregator.Add(item)
		return nil
	}

	return h.processItems(ctx, msg.Chat.ID, msg.From.ID, []mediagroup.Item{item})
}

func (h *Handler) HandleMediaGroup(ctx context.Context, group mediagroup.Group) {
	if err := h.processItems(ctx, group.ChatID, group.UserID, group.Items); err != nil {
		h.logger.Error("media group processing failed", "err", err)
	}
}

// processItems downloads every photo in parallel, then fills slots: captioned
// photos go to the slot they name, the rest fill empty slots in board order.
// Files that are not JPEG, PNG or WebP are reported and fill nothing.
func (h *Handler) processItems(ctx context.Context, chatID, userID int64, items []mediagroup.Item) error {
	downloads := make([][]byte, len(items))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(h.downloads)
	for i, item := range items {
		eg.Go(func() error {
			data, err := h.tg.DownloadFile(egCtx, item.FileID)
			if err != nil {
				return fmt.Errorf("download %s: %w", item.FileID, err)
			}
			downloads[i] = data
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		h.logger.Error("photo download failed", "err", err)
		return h.tg.SendText(chatID, "❌ Could not download the photo. Please send it again.")
	}

	id := sessionID(chatID, userID)
	st := h.sessions.Studio(id)

	var (
		images   = make([]imaging.Image, len(items))
		accepted []int
		rejected []string
	)
	for i, item := range items {
		img, err := st.Upload(item.FileName, item.MIMEType, downloads[i])
		if err != nil {
			rejected = append(rejected, studio.Message(err))
			continue
		}
		images[i] = img
		accepted = append(accepted, i)
	}

	var (
		filled  []request.Slot
		skipped int
	)
	h.sessions.UpdateDraft(id, func(d *request.Draft) {
		if d.Images == nil {
			d.Images = make(map[request.Slot]imaging.Image)
		}
		var rest []int
		for _, i := range accepted {
			slot, ok := captionSlot(items[i].Caption)
			if !ok {
				rest = append(rest, i)
				continue
			}
			d.Images[slot] = images[i]
			filled = append(filled, slot)
		}
		for _, i := range rest {
			slot, err := nextEmptySlot(*d)
			if err != nil {
				skipped++
				continue
			}
			d.Images[slot] = images[i]
			filled = append(filled, slot)
		}
	})

	var b strings.Builder
	for _, msg := range rejected {
		fmt.Fprintf(&b, "⚠️ %s\n", msg)
	}
	for _, slot := range filled {
		fmt.Fprintf(&b, "✅ %s saved.\n", slot.Label())
	}
	if skipped > 0 {
		fmt.Fprintf(&b, "⚠️ %d photo(s) skipped: %s. Caption a photo with a slot name (hardware, material, sole, inspiration) to replace one.\n", skipped, errSlotsFull)
	}
	b.WriteString("\n")
	b.WriteString(formText(h.sessions.Draft(id)))
	return h.tg.SendText(chatID, b.String())
}

// photoFile picks the largest size of a compressed photo, which Telegram always
// re-encodes as JPEG, or the document as sent.
func photoFile(msg *tgbotapi.Message) (fileID, name, mimeType string) {
	if len(msg.Photo) > 0 {
		largest := msg.Photo[len(msg.Photo)-1]
		return largest.FileID, largest.FileUniqueID + ".jpg", "image/jpeg"
	}
	if msg.Document != nil {
		return msg.Document.FileID, msg.Document.FileName, msg.Document.MimeType
	}
	return "", "", ""
}

// captionSlot reads a slot name from the first word of a caption.
func captionSlot(caption string) (request.Slot, bool) {
	fields := strings.Fields(caption)
	if len(fields) == 0 {
		return "", false
	}
	return request.ParseSlot(strings.Trim(fields[0], ":,.#"))
}

func nextEmptySlot(d request.Draft) (request.Slot, error) {
	for _, slot := range request.Slots() {
		if _, ok := d.Image(slot); !ok {
			return slot, nil
		}
	}
	return "", errSlotsFull
}
