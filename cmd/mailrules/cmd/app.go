package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mailrules/internal/config"
	"mailrules/internal/gmail"
	"mailrules/internal/metrics"
	"mailrules/internal/processor"
	"mailrules/internal/rules"
	"mailrules/internal/storage"
)

// app bundles the components shared by subcommands.
type app struct {
	cfg   *config.Config
	log   *slog.Logger
	store *storage.SQLite
	rules *rules.Store
	eval  *rules.Evaluator
}

func newApp() (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	log := newLogger(cfg.LogLevel)

	store, err := openStore(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	vocab := rules.DefaultVocabulary()
	rs := rules.NewStore(rules.NewLoader(vocab, log), rules.FileSource(cfg.RulesPath))
	metrics.RulesLoaded.Set(float64(len(rs.Rules())))

	return &app{
		cfg:   cfg,
		log:   log,
		store: store,
		rules: rs,
		eval:  rules.NewEvaluator(vocab, log),
	}, nil
}

func (a *app) Close() {
	_ = a.store.Close()
}

func openStore(path string) (*storage.SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}
	store, err := storage.NewSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	return store, nil
}

// gmailClient authorizes against Gmail, running the browser flow on first use.
func (a *app) gmailClient(ctx context.Context) (*gmail.Client, error) {
	svc, err := gmail.NewService(ctx, a.cfg.Gmail.ConfigDir, a.log)
	if err != nil {
		return nil, fmt.Errorf("gmail: %w", err)
	}
	pace := time.Duration(float64(time.Second) / a.cfg.Processing.RateLimitPerSec)
	return gmail.New(svc, pace, a.log), nil
}

func (a *app) processor(actions processor.Actions) *processor.Processor {
	return processor.New(actions, a.store, a.rules, a.eval, processor.Config{
		BatchSize:       a.cfg.Processing.BatchSize,
		RateLimitPerSec: a.cfg.Processing.RateLimitPerSec,
		MaxProcessTime:  a.cfg.Processing.MaxProcessTime,
	}, a.log)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
