package bot

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/memetag/internal/config"
	"github.com/timmy/memetag/internal/logger"
	"github.com/timmy/memetag/internal/repository"
	"github.com/timmy/memetag/internal/service"
	"github.com/timmy/memetag/internal/signing"
	"github.com/timmy/memetag/internal/storage"
)

const (
	ownerID    int64 = 1001
	strangerID int64 = 666
	chatID     int64 = 5005
)

// fakeBotSender records every Send and Request call.
type fakeBotSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	fileURL  string
}

func (f *fakeBotSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeBotSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeBotSender) GetFileDirectURL(string) (string, error) {
	return f.fileURL, nil
}

func (f *fakeBotSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		switch v := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, v.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, v.Text)
		}
	}
	return out
}

func (f *fakeBotSender) lastText() string {
	texts := f.texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

func (f *fakeBotSender) lastMessage(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if m, ok := f.sent[i].(tgbotapi.MessageConfig); ok {
			return m
		}
	}
	t.Fatal("no message sent")
	return tgbotapi.MessageConfig{}
}

func (f *fakeBotSender) lastRequest() tgbotapi.Chattable {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}

type tagsExtractor struct {
	mu   sync.Mutex
	tags []string
}

func (e *tagsExtractor) Extract(context.Context, []byte, string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.tags...), nil
}

type fixture struct {
	bot    *Bot
	api    *fakeBotSender
	ingest *service.IngestService
	image  []byte
}

func newFixture(t *testing.T, tags ...string) *fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(dir, "memes.db"),
		AutoMigrate: true,
	}, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repository.Close(db) })

	memes, err := storage.NewLocalStore(filepath.Join(dir, "memes"))
	require.NoError(t, err)
	thumbs, err := storage.NewLocalStore(filepath.Join(dir, "thumbnails"))
	require.NoError(t, err)
	stores := &storage.Stores{Memes: memes, Thumbnails: thumbs}
	signer, err := signing.NewSigner("0123456789abcdef0123456789abcdef", signing.StoreResolver{Stores: stores})
	require.NoError(t, err)

	memeRepo := repository.NewMemeRepository(db)
	ingest := service.NewIngestService(memeRepo, stores, &tagsExtractor{tags: tags},
		service.NewThumbnailer(32, 32, 80), signer, logger.Discard(), &service.IngestConfig{Workers: 2})
	query := service.NewQueryService(memeRepo, signer, logger.Discard(), &service.QueryConfig{
		PublicURL:  "https://memes.example.com",
		URLTTL:     time.Hour,
		MaxResults: 50,
		MaxLength:  128,
	})
	jobs := service.NewJobRunner(repository.NewJobRepository(db), logger.Discard())

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.Set(1, 1, color.Black)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(buf.Bytes())
	}))
	t.Cleanup(srv.Close)

	api := &fakeBotSender{fileURL: srv.URL + "/file/photo.png"}
	b := New(api, ingest, query, jobs, logger.Discard(), Config{AllowedUserIDs: []int64{ownerID}})
	return &fixture{bot: b, api: api, ingest: ingest, image: buf.Bytes()}
}

func command(from int64, text string) tgbotapi.Update {
	cmd := strings.Fields(text)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 10,
		From:      &tgbotapi.User{ID: from},
		Chat:      &tgbotapi.Chat{ID: chatID},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func photo(from int64, caption string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 11,
		From:      &tgbotapi.User{ID: from},
		Chat:      &tgbotapi.Chat{ID: chatID},
		Caption:   caption,
		Photo: []tgbotapi.PhotoSize{
			{FileID: "small", Width: 4, Height: 4},
			{FileID: "large", Width: 8, Height: 8},
		},
	}}
}

func TestUnauthorizedUsersAreRejected(t *testing.T) {
	f := newFixture(t, "cat")
	ctx := context.Background()

	f.bot.HandleUpdate(ctx, photo(strangerID, ""))
	assert.Equal(t, unauthorizedText, f.api.lastText())
	memes, err := f.ingest.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, memes)

	f.bot.HandleUpdate(ctx, tgbotapi.Update{InlineQuery: &tgbotapi.InlineQuery{
		ID: "q1", From: &tgbotapi.User{ID: strangerID}, Query: "cat",
	}})
	inline, ok := f.api.lastRequest().(tgbotapi.InlineConfig)
	require.True(t, ok)
	assert.Empty(t, inline.Results)

	f.bot.HandleUpdate(ctx, tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID: "cb1", From: &tgbotapi.User{ID: strangerID}, Data: clearCancel,
	}})
	cb, ok := f.api.lastRequest().(tgbotapi.CallbackConfig)
	require.True(t, ok)
	assert.True(t, cb.ShowAlert)
	assert.Equal(t, unauthorizedText, cb.Text)
}

func TestPhotoIsSavedAndFoundInline(t *testing.T) {
	f := newFixture(t, "cat")
	ctx := context.Background()

	f.bot.HandleUpdate(ctx, photo(ownerID, "Grumpy monday"))
	assert.Equal(t, "Meme saved with tags: cat, grumpy, monday", f.api.lastText())

	f.bot.HandleUpdate(ctx, photo(ownerID, ""))
	assert.Contains(t, f.api.lastText(), "already saved")

	f.bot.HandleUpdate(ctx, tgbotapi.Update{InlineQuery: &tgbotapi.InlineQuery{
		ID: "q2", From: &tgbotapi.User{ID: ownerID}, Query: "grump",
	}})
	inline, ok := f.api.lastRequest().(tgbotapi.InlineConfig)
	require.True(t, ok)
	assert.Equal(t, 1, inline.CacheTime)
	assert.True(t, inline.IsPersonal)
	require.Len(t, inline.Results, 1)
	result := inline.Results[0].(tgbotapi.InlineQueryResultPhoto)
	assert.True(t, strings.HasPrefix(result.URL, "https://memes.example.com/a/"))
	assert.True(t, strings.HasPrefix(result.ThumbURL, "https://memes.example.com/a/"))
	assert.NotEqual(t, result.URL, result.ThumbURL)

	f.bot.HandleUpdate(ctx, tgbotapi.Update{InlineQuery: &tgbotapi.InlineQuery{
		ID: "q3", From: &tgbotapi.User{ID: ownerID}, Query: "xyz123",
	}})
	inline = f.api.lastRequest().(tgbotapi.InlineConfig)
	assert.Empty(t, inline.Results)
}

func TestNonImageDocumentIsRefused(t *testing.T) {
	f := newFixture(t)
	f.bot.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: ownerID},
		Chat:     &tgbotapi.Chat{ID: chatID},
		Document: &tgbotapi.Document{FileID: "doc", MimeType: "application/pdf"},
	}})
	assert.Contains(t, f.api.lastText(), "Only images")
}

func TestClearConfirmation(t *testing.T) {
	f := newFixture(t, "cat")
	ctx := context.Background()
	f.bot.HandleUpdate(ctx, photo(ownerID, ""))

	f.bot.HandleUpdate(ctx, command(ownerID, "/clear"))
	prompt := f.api.lastMessage(t)
	keyboard, ok := prompt.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, keyboard.InlineKeyboard, 1)
	require.Len(t, keyboard.InlineKeyboard[0], 2)
	confirm := *keyboard.InlineKeyboard[0][0].CallbackData
	assert.LessOrEqual(t, len(confirm), 64)

	callback := func(data string) {
		f.bot.HandleUpdate(ctx, tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
			ID:      "cb",
			From:    &tgbotapi.User{ID: ownerID},
			Message: &tgbotapi.Message{MessageID: 77, Chat: &tgbotapi.Chat{ID: chatID}},
			Data:    data,
		}})
	}

	callback(clearCancel)
	assert.Equal(t, "Operation cancelled.", f.api.lastText())
	memes, err := f.ingest.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, memes, 1)

	callback(clearPrefix + "forged.token")
	assert.Contains(t, f.api.lastText(), "expired")

	callback(confirm)
	assert.Contains(t, f.api.lastText(), "1 records removed")
	memes, err = f.ingest.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, memes)
}

func TestCommands(t *testing.T) {
	f := newFixture(t, "cat")
	ctx := context.Background()

	f.bot.HandleUpdate(ctx, command(ownerID, "/retag"))
	assert.Equal(t, "Usage: /retag <id>", f.api.lastText())

	f.bot.HandleUpdate(ctx, command(ownerID, "/delete nope"))
	assert.Equal(t, "Meme nope not found.", f.api.lastText())

	f.bot.HandleUpdate(ctx, command(ownerID, "/dump"))
	assert.Equal(t, "The index is empty.", f.api.lastText())

	f.bot.HandleUpdate(ctx, photo(ownerID, ""))
	memes, err := f.ingest.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, memes, 1)
	id := memes[0].ID

	f.bot.HandleUpdate(ctx, command(ownerID, "/dump"))
	assert.Contains(t, f.api.lastText(), "ID: "+id)

	f.bot.HandleUpdate(ctx, command(ownerID, "/retag "+id))
	assert.Equal(t, "Meme "+id+" retagged with tags: cat", f.api.lastText())

	f.bot.HandleUpdate(ctx, command(ownerID, "/cancel"))
	assert.Equal(t, "No maintenance job is running.", f.api.lastText())

	f.bot.HandleUpdate(ctx, command(ownerID, "/delete "+id))
	assert.Equal(t, "Meme "+id+" deleted.", f.api.lastText())
}

func TestMaintenanceJobReportsSummary(t *testing.T) {
	f := newFixture(t, "cat")
	ctx := context.Background()
	f.bot.HandleUpdate(ctx, photo(ownerID, ""))

	f.bot.HandleUpdate(ctx, command(ownerID, "/regenerate_thumbnails"))
	require.Eventually(t, func() bool {
		for _, text := range f.api.texts() {
			if strings.HasPrefix(text, "Thumbnail regeneration complete.") {
				return strings.Contains(text, "Skipped: 1")
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))

	chunks := splitMessage("line one\nline two\nline three\n", 12)
	assert.Equal(t, []string{"line one\n", "line two\n", "line three\n"}, chunks)

	long := strings.Repeat("я", 10) // 20 bytes
	chunks = splitMessage(long, 7)
	assert.Equal(t, long, strings.Join(chunks, ""))
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 7)
		assert.True(t, strings.HasPrefix(c, "я"))
	}
}
