package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/timmy/memetag/internal/api"
	"github.com/timmy/memetag/internal/api/middleware"
	"github.com/timmy/memetag/internal/app"
	"github.com/timmy/memetag/internal/bot"
	"github.com/timmy/memetag/internal/config"
	"github.com/timmy/memetag/internal/logger"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewFromEnv(logger.LoadFromEnv().Override(cfg.Log.Level, cfg.Log.Format, "memebot"))
	logger.SetDefaultLogger(log)
	defer logger.Sync()

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("memebot stopped with error")
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Telegram.Token == "" {
		return errors.New("telegram.token is required (set TELEGRAM_TOKEN)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	a.RecoverJobs(ctx)

	router := api.SetupRouter(api.RouterConfig{
		Mode: cfg.Server.Mode,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
		Logger: log,
		Assets: a.Assets,
		Checks: a.ReadinessChecks(),
	})
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.WithFields(logger.Fields{
			"port":       cfg.Server.Port,
			"mode":       cfg.Server.Mode,
			"public_url": cfg.Server.PublicURL,
		}).Info("Starting asset server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	tg, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return fmt.Errorf("telegram connect: %w", err)
	}
	log.Infof("Authorized on Telegram as @%s", tg.Self.UserName)

	b := bot.New(tg, a.Ingest, a.Query, a.Runner, log, bot.Config{
		AllowedUserIDs: cfg.Telegram.AllowedUserIDs,
		PollTimeout:    cfg.Telegram.PollTimeout,
	})
	botDone := make(chan error, 1)
	go func() { botDone <- b.Run(ctx, tg) }()

	select {
	case <-ctx.Done():
		log.Info("Shutting down...")
	case err := <-serverErr:
		stop()
		<-botDone
		return fmt.Errorf("asset server: %w", err)
	}

	if a.Runner.Cancel() {
		log.Info("Cancelled running maintenance job")
	}
	<-botDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("memebot exited")
	return nil
}
