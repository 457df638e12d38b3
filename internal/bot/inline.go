package bot

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/timmy/memetag/internal/domain"
	"github.com/timmy/memetag/internal/logger"
)

// maxInlineResults is the Bot API limit per answer.
const maxInlineResults = 50

func (b *Bot) handleInline(ctx context.Context, q *tgbotapi.InlineQuery) {
	if q.From == nil {
		return
	}
	ctx, log := b.scope(ctx, q.From.ID, 0)
	answer := tgbotapi.InlineConfig{
		InlineQueryID: q.ID,
		CacheTime:     1,
		IsPersonal:    true,
		Results:       []interface{}{},
	}
	if !b.isAllowed(q.From) {
		log.Warn("Unauthorized inline query rejected")
		b.request(ctx, answer)
		return
	}

	results, err := b.query.Query(ctx, q.Query)
	switch {
	case errors.Is(err, domain.ErrMalformedQuery):
		log.WithError(err).Debug("Malformed inline query")
	case err != nil:
		logger.CtxError(ctx, "Inline query failed: %v", err)
	}

	for i, r := range results {
		if i == maxInlineResults {
			break
		}
		answer.Results = append(answer.Results, tgbotapi.NewInlineQueryResultPhotoWithThumb(r.MemeID, r.ImageURL, r.ThumbnailURL))
	}
	log.WithField(logger.FieldCount, len(answer.Results)).Debug("Inline query answered")
	b.request(ctx, answer)
}
