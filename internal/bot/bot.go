// Package bot adapts the meme services to the Telegram Bot API.
package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/timmy/memetag/internal/logger"
	"github.com/timmy/memetag/internal/service"
)

const (
	maxMessageLen = 4000 // Telegram limit is 4096; leave margin

	unauthorizedText = "You are not authorized to use this bot."
)

// botSender is the subset of tgbotapi.BotAPI the handlers use, allowing tests
// to supply a fake without a live connection.
type botSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// updateSource delivers updates by long polling.
type updateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Config holds bot behaviour settings.
type Config struct {
	AllowedUserIDs []int64
	PollTimeout    int
	// MaxDownloadBytes caps uploaded files; Telegram bots cannot fetch more than 20 MB.
	MaxDownloadBytes int64
	DownloadTimeout  time.Duration
}

// Bot routes Telegram updates to the ingest, query and maintenance services.
type Bot struct {
	api      botSender
	ingest   *service.IngestService
	query    *service.QueryService
	jobs     *service.JobRunner
	http     *resty.Client
	logger   *logger.Logger
	allowed  map[int64]struct{}
	poll     int
	maxBytes int64

	wg sync.WaitGroup
}

// New creates a bot. An empty allow-list rejects everyone.
func New(api botSender, ingest *service.IngestService, query *service.QueryService, jobs *service.JobRunner, log *logger.Logger, cfg Config) *Bot {
	if log == nil {
		log = logger.GetDefault()
	}
	allowed := make(map[int64]struct{}, len(cfg.AllowedUserIDs))
	for _, id := range cfg.AllowedUserIDs {
		allowed[id] = struct{}{}
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 60
	}
	if cfg.MaxDownloadBytes <= 0 {
		cfg.MaxDownloadBytes = 20 << 20
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 30 * time.Second
	}
	log = log.WithField(logger.FieldComponent, "bot")
	if len(allowed) == 0 {
		log.Warn("No allowed Telegram user ids configured; every update will be rejected")
	}
	return &Bot{
		api:      api,
		ingest:   ingest,
		query:    query,
		jobs:     jobs,
		http:     resty.New().SetTimeout(cfg.DownloadTimeout),
		logger:   log,
		allowed:  allowed,
		poll:     cfg.PollTimeout,
		maxBytes: cfg.MaxDownloadBytes,
	}
}

// Run polls for updates until ctx is cancelled, handling each one in its own
// goroutine, then waits for in-flight handlers.
func (b *Bot) Run(ctx context.Context, src updateSource) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.poll
	updates := src.GetUpdatesChan(u)
	defer b.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			src.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.HandleUpdate(ctx, update)
			}()
		}
	}
}

// HandleUpdate dispatches one update.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithField("update_id", update.UpdateID).Errorf("Panic while handling update: %v", r)
		}
	}()

	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.InlineQuery != nil:
		b.handleInline(ctx, update.InlineQuery)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) isAllowed(user *tgbotapi.User) bool {
	if user == nil {
		return false
	}
	_, ok := b.allowed[user.ID]
	return ok
}

// scope attaches the caller to the logger carried by ctx.
func (b *Bot) scope(ctx context.Context, userID, chatID int64) (context.Context, *logger.Logger) {
	fields := logger.Fields{logger.FieldUserID: userID}
	if chatID != 0 {
		fields[logger.FieldChatID] = chatID
	}
	log := b.logger.WithFields(fields)
	return log.WithContext(ctx), log
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	ctx, log := b.scope(ctx, msg.From.ID, msg.Chat.ID)
	if !b.isAllowed(msg.From) {
		log.Warn("Unauthorized message rejected")
		b.reply(ctx, msg, unauthorizedText)
		return
	}

	switch {
	case msg.IsCommand():
		b.handleCommand(ctx, msg)
	case len(msg.Photo) > 0:
		b.handlePhoto(ctx, msg)
	case msg.Document != nil:
		b.handleDocument(ctx, msg)
	default:
		b.reply(ctx, msg, "Send me an image to save it, or /help for commands.")
	}
}

// reply sends text to the message's chat as a reply, split into chunks that fit one message.
func (b *Bot) reply(ctx context.Context, msg *tgbotapi.Message, text string) {
	for i, chunk := range splitMessage(text, maxMessageLen) {
		out := tgbotapi.NewMessage(msg.Chat.ID, chunk)
		if i == 0 {
			out.ReplyToMessageID = msg.MessageID
		}
		b.send(ctx, out)
	}
}

func (b *Bot) send(ctx context.Context, c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to send Telegram message")
	}
}

func (b *Bot) request(ctx context.Context, c tgbotapi.Chattable) {
	if _, err := b.api.Request(c); err != nil {
		logger.FromContext(ctx).WithError(err).Error("Telegram request failed")
	}
}

// splitMessage breaks text into chunks of at most limit bytes, preferring line
// boundaries and never splitting a UTF-8 sequence.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndexByte(text[:limit], '\n') + 1
		if cut <= 0 {
			cut = limit
			for cut > 0 && !isRuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

func isRuneStart(c byte) bool {
	return c&0xC0 != 0x80
}

func requester(user *tgbotapi.User) string {
	if user == nil {
		return ""
	}
	if user.UserName != "" {
		return strconv.FormatInt(user.ID, 10) + " (@" + user.UserName + ")"
	}
	return strconv.FormatInt(user.ID, 10)
}

func formatTags(tags []string) string {
	if len(tags) == 0 {
		return "(none)"
	}
	return strings.Join(tags, ", ")
}

func errorText(action string, err error) string {
	return fmt.Sprintf("%s failed: %v", action, err)
}
