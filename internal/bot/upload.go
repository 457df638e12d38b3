package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/timmy/memetag/internal/domain"
	"github.com/timmy/memetag/internal/logger"
	"github.com/timmy/memetag/internal/service"
)

func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message) {
	// Telegram lists sizes smallest first.
	photo := msg.Photo[len(msg.Photo)-1]
	b.save(ctx, msg, photo.FileID, int64(photo.FileSize))
}

func (b *Bot) handleDocument(ctx context.Context, msg *tgbotapi.Message) {
	doc := msg.Document
	if !strings.HasPrefix(doc.MimeType, "image/") {
		b.reply(ctx, msg, "Only images can be saved. Send a photo or an image file.")
		return
	}
	b.save(ctx, msg, doc.FileID, int64(doc.FileSize))
}

func (b *Bot) save(ctx context.Context, msg *tgbotapi.Message, fileID string, size int64) {
	if size > b.maxBytes {
		b.reply(ctx, msg, fmt.Sprintf("That file is too large (limit %d MB).", b.maxBytes>>20))
		return
	}
	data, err := b.download(ctx, fileID)
	if err != nil {
		logger.CtxError(ctx, "Download of %s failed: %v", fileID, err)
		b.reply(ctx, msg, "Could not download the file from Telegram. Please try again.")
		return
	}

	caption := msg.Caption
	if caption == "" {
		caption = msg.Text
	}
	meme, err := b.ingest.Ingest(ctx, service.IngestRequest{Data: data, Caption: caption})
	b.reply(ctx, msg, ingestReply(meme, err))
}

func ingestReply(meme *domain.Meme, err error) string {
	var storageErr *domain.StorageIOError
	switch {
	case err == nil:
		if len(meme.Tags) == 0 {
			return fmt.Sprintf("Meme saved (id %s) but no text was found on it.", meme.ID)
		}
		return fmt.Sprintf("Meme saved with tags: %s", formatTags(meme.Tags))
	case errors.Is(err, domain.ErrDuplicate):
		return fmt.Sprintf("This meme is already saved (id %s).", meme.ID)
	case errors.Is(err, domain.ErrInvalidImage):
		return "That file is not a supported image."
	case domain.IsExtractionError(err) && meme != nil:
		return fmt.Sprintf("Meme saved (id %s), but text recognition failed. It is marked unindexed; use /retag %s later.", meme.ID, meme.ID)
	case errors.As(err, &storageErr):
		return "Could not store the image; nothing was saved."
	default:
		return errorText("Saving", err)
	}
}

// download fetches a file through the Bot API file endpoint.
func (b *Bot) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve file: %w", err)
	}
	resp, err := b.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("file download returned status %d", resp.StatusCode())
	}
	data := resp.Body()
	if int64(len(data)) > b.maxBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", b.maxBytes)
	}
	return data, nil
}
