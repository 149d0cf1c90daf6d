package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v9"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/shinyyama/musclecat-chat/internal/feed"
	"github.com/shinyyama/musclecat-chat/internal/feed/httpsource"
	"github.com/shinyyama/musclecat-chat/internal/tui"
)

type cliConfig struct {
	URL        string `env:"FEEDTAIL_URL" envDefault:"http://localhost:8080"`
	Token      string `env:"FEEDTAIL_TOKEN,required"`
	PageSize   int    `env:"FEEDTAIL_PAGE_SIZE" envDefault:"30"`
	WindowSize int    `env:"FEEDTAIL_WINDOW_SIZE" envDefault:"30"`
	LogFile    string `env:"FEEDTAIL_LOG_FILE"`
	MarkRead   bool   `env:"FEEDTAIL_MARK_READ" envDefault:"true"`
}

func main() {
	_ = godotenv.Load()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "feedtail: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg cliConfig
	if err := env.Parse(&cfg); err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogFile)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// assigned before Start, which is when status frames begin
	var f *feed.Feed
	client, err := httpsource.New(httpsource.Options{
		BaseURL: cfg.URL,
		Token:   cfg.Token,
		Logger:  logger.Named("http"),
		OnServerStatus: func(status, _ string) {
			f.SetUpstreamStatus(feed.ParseStatus(status))
		},
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	meCtx, meCancel := context.WithTimeout(ctx, 10*time.Second)
	me, err := client.Me(meCtx)
	meCancel()
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	if cfg.MarkRead {
		if _, err := client.MarkRead(ctx); err != nil {
			logger.Warn("mark read failed", zap.Error(err))
		}
	}

	f = feed.NewFeed(client, feed.Options{
		PageSize:   cfg.PageSize,
		WindowSize: cfg.WindowSize,
		Logger:     logger.Named("feed"),
	})
	defer f.Close()

	model := tui.New(tui.Options{
		Feed:        f,
		Sender:      client,
		UID:         me.UID,
		Role:        me.Role,
		DisplayName: me.DisplayName,
		Logger:      logger.Named("tui"),
	})
	if err := f.Start(ctx); err != nil {
		return err
	}
	_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion()).Run()
	return err
}

// newLogger writes to a file when asked; the terminal belongs to the UI.
func newLogger(path string) (*zap.Logger, error) {
	if path == "" {
		return zap.NewNop(), nil
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	return cfg.Build()
}
