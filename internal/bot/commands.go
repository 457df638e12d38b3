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

const (
	clearPrefix = "clear:"
	clearCancel = clearPrefix + "cancel"
)

const helpText = "I keep your memes and find them again by the text on them.\n\n" +
	"Send a photo (or an image file) to save it; the caption is added to its tags.\n" +
	"Type @<bot name> <words> in any chat to search.\n\n" +
	"Commands:\n" +
	"/dump - list every saved meme\n" +
	"/retag <id> - run text recognition again for one meme\n" +
	"/delete <id> - delete one meme and its files\n" +
	"/retag_all - retag every meme\n" +
	"/rescan - index image files that have no record\n" +
	"/regenerate_thumbnails - create missing thumbnails\n" +
	"/cancel - stop the running maintenance job\n" +
	"/clear - empty the index (files are kept)"

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	command := msg.Command()
	ctx = logger.WithField(ctx, logger.FieldCommand, command)
	logger.CtxInfo(ctx, "Command received: /%s", command)

	args := strings.TrimSpace(msg.CommandArguments())
	switch command {
	case "start", "help":
		b.reply(ctx, msg, helpText)
	case "dump":
		b.dump(ctx, msg)
	case "clear":
		b.askClear(ctx, msg)
	case "retag":
		b.retag(ctx, msg, args)
	case "delete":
		b.delete(ctx, msg, args)
	case "retag_all":
		b.startJob(ctx, msg, domain.JobRetagAll)
	case "rescan":
		b.startJob(ctx, msg, domain.JobRescan)
	case "regenerate_thumbnails":
		b.startJob(ctx, msg, domain.JobThumbnails)
	case "cancel":
		b.cancelJob(ctx, msg)
	default:
		b.reply(ctx, msg, "Unknown command. Send /help for the list.")
	}
}

func (b *Bot) dump(ctx context.Context, msg *tgbotapi.Message) {
	memes, err := b.ingest.ListAll(ctx)
	if err != nil {
		logger.CtxError(ctx, "Dump failed: %v", err)
		b.reply(ctx, msg, errorText("Dump", err))
		return
	}
	if len(memes) == 0 {
		b.reply(ctx, msg, "The index is empty.")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d memes:\n", len(memes))
	for _, m := range memes {
		fmt.Fprintf(&sb, "ID: %s, Path: %s, Status: %s, Tags: %s\n", m.ID, m.AssetPath, m.Status, formatTags(m.Tags))
	}
	b.reply(ctx, msg, sb.String())
}

func (b *Bot) askClear(ctx context.Context, msg *tgbotapi.Message) {
	token := b.ingest.RequestClear()
	out := tgbotapi.NewMessage(msg.Chat.ID,
		"Are you sure you want to clear the entire meme index? Image files are kept and /rescan can restore it.")
	out.ReplyToMessageID = msg.MessageID
	out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Yes, clear it", clearPrefix+token),
			tgbotapi.NewInlineKeyboardButtonData("No, cancel", clearCancel),
		),
	)
	b.send(ctx, out)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.From == nil {
		return
	}
	var chatID int64
	if cb.Message != nil && cb.Message.Chat != nil {
		chatID = cb.Message.Chat.ID
	}
	ctx, log := b.scope(ctx, cb.From.ID, chatID)
	if !b.isAllowed(cb.From) {
		log.Warn("Unauthorized callback rejected")
		b.request(ctx, tgbotapi.NewCallbackWithAlert(cb.ID, unauthorizedText))
		return
	}
	if !strings.HasPrefix(cb.Data, clearPrefix) {
		b.request(ctx, tgbotapi.NewCallback(cb.ID, ""))
		return
	}

	text := b.confirmClear(ctx, cb.Data)
	b.request(ctx, tgbotapi.NewCallback(cb.ID, ""))
	if cb.Message != nil && cb.Message.Chat != nil {
		b.send(ctx, tgbotapi.NewEditMessageText(chatID, cb.Message.MessageID, text))
	}
}

func (b *Bot) confirmClear(ctx context.Context, data string) string {
	if data == clearCancel {
		return "Operation cancelled."
	}
	n, err := b.ingest.ConfirmClear(ctx, strings.TrimPrefix(data, clearPrefix))
	switch {
	case errors.Is(err, domain.ErrInvalidConfirmation):
		return "This confirmation has expired. Send /clear again."
	case err != nil:
		logger.CtxError(ctx, "Clear failed: %v", err)
		return errorText("Clear", err)
	}
	return fmt.Sprintf("Index cleared: %d records removed. Files were kept; /rescan restores them.", n)
}

func (b *Bot) retag(ctx context.Context, msg *tgbotapi.Message, id string) {
	if id == "" {
		b.reply(ctx, msg, "Usage: /retag <id>")
		return
	}
	meme, err := b.ingest.Retag(ctx, id)
	switch {
	case domain.IsNotFound(err):
		b.reply(ctx, msg, fmt.Sprintf("Meme %s not found.", id))
	case domain.IsExtractionError(err):
		b.reply(ctx, msg, fmt.Sprintf("Text recognition failed again for %s; it stays unindexed.", id))
	case err != nil:
		logger.CtxError(ctx, "Retag of %s failed: %v", id, err)
		b.reply(ctx, msg, errorText("Retag", err))
	default:
		b.reply(ctx, msg, fmt.Sprintf("Meme %s retagged with tags: %s", id, formatTags(meme.Tags)))
	}
}

func (b *Bot) delete(ctx context.Context, msg *tgbotapi.Message, id string) {
	if id == "" {
		b.reply(ctx, msg, "Usage: /delete <id>")
		return
	}
	err := b.ingest.Delete(ctx, id)
	switch {
	case domain.IsNotFound(err):
		b.reply(ctx, msg, fmt.Sprintf("Meme %s not found.", id))
	case err != nil:
		logger.CtxError(ctx, "Delete of %s failed: %v", id, err)
		b.reply(ctx, msg, errorText("Delete", err))
	default:
		b.reply(ctx, msg, fmt.Sprintf("Meme %s deleted.", id))
	}
}

// jobLabels names each maintenance job and its success counter in replies.
var jobLabels = map[domain.JobKind][2]string{
	domain.JobRetagAll:   {"Retag", "Updated"},
	domain.JobRescan:     {"Rescan", "Added"},
	domain.JobThumbnails: {"Thumbnail regeneration", "Generated"},
}

func (b *Bot) jobFunc(kind domain.JobKind, extra *string) service.JobFunc {
	switch kind {
	case domain.JobRetagAll:
		return func(ctx context.Context) (service.JobOutcome, error) {
			summary, err := b.ingest.RetagAll(ctx)
			if summary == nil {
				return service.JobOutcome{}, err
			}
			return summary.Outcome(), err
		}
	case domain.JobRescan:
		return func(ctx context.Context) (service.JobOutcome, error) {
			summary, err := b.ingest.Rescan(ctx)
			if summary == nil {
				return service.JobOutcome{}, err
			}
			if summary.Unindexed > 0 {
				*extra = fmt.Sprintf("Unindexed (text recognition failed): %d\n", summary.Unindexed)
			}
			return summary.Outcome(), err
		}
	default:
		return func(ctx context.Context) (service.JobOutcome, error) {
			summary, err := b.ingest.RegenerateThumbnails(ctx)
			if summary == nil {
				return service.JobOutcome{}, err
			}
			return summary.Outcome(), err
		}
	}
}

func (b *Bot) startJob(ctx context.Context, msg *tgbotapi.Message, kind domain.JobKind) {
	labels := jobLabels[kind]
	chatID := msg.Chat.ID

	var extra string
	job, err := b.jobs.Start(ctx, kind, requester(msg.From), b.jobFunc(kind, &extra),
		func(job *domain.MaintenanceJob, outcome service.JobOutcome, err error) {
			var sb strings.Builder
			switch job.Status {
			case domain.JobStatusCancelled:
				fmt.Fprintf(&sb, "%s cancelled.\n", labels[0])
			case domain.JobStatusFailed:
				fmt.Fprintf(&sb, "%s stopped: %v\n", labels[0], err)
			default:
				fmt.Fprintf(&sb, "%s complete.\n", labels[0])
			}
			fmt.Fprintf(&sb, "%s: %d\nSkipped: %d\nFailed: %d\n", labels[1], outcome.Succeeded, outcome.Skipped, outcome.Failed)
			sb.WriteString(extra)
			if len(outcome.Failures) > 0 {
				sb.WriteString("\n")
				sb.WriteString(service.FormatFailures(outcome.Failures, 10))
			}
			for _, chunk := range splitMessage(sb.String(), maxMessageLen) {
				b.send(ctx, tgbotapi.NewMessage(chatID, chunk))
			}
		})
	if errors.Is(err, service.ErrJobRunning) {
		current := b.jobs.Current()
		running := "another job"
		if current != nil {
			running = string(current.Kind)
		}
		b.reply(ctx, msg, fmt.Sprintf("A maintenance job is already running (%s). Use /cancel to stop it first.", running))
		return
	}
	if err != nil {
		logger.CtxError(ctx, "Failed to start %s: %v", kind, err)
		b.reply(ctx, msg, errorText(labels[0], err))
		return
	}
	logger.CtxInfo(ctx, "Started job %s (%s)", job.ID, kind)
	b.reply(ctx, msg, fmt.Sprintf("%s started. Use /cancel to stop it.", labels[0]))
}

func (b *Bot) cancelJob(ctx context.Context, msg *tgbotapi.Message) {
	current := b.jobs.Current()
	if current == nil || !b.jobs.Cancel() {
		b.reply(ctx, msg, "No maintenance job is running.")
		return
	}
	b.reply(ctx, msg, fmt.Sprintf("Cancelling %s; progress so far is kept.", current.Kind))
}
