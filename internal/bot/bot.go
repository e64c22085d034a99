// Package bot implements the Telegram control bot: rule inspection, reloads,
// on-demand processing runs and run notifications.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"mailrules/internal/config"
	"mailrules/internal/model"
	"mailrules/internal/processor"
	"mailrules/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// RuleStore is the rule set the bot inspects and reloads.
type RuleStore interface {
	Rules() model.RuleSet
	Reload() int
	Summary() model.Summary
}

// Runner starts a processing run.
type Runner interface {
	ProcessInBatches(ctx context.Context) (processor.Stats, error)
}

// Bot is the Telegram bot that handles operator commands and sends run
// summaries.
type Bot struct {
	api    telegramAPI
	store  storage.Storage
	rules  RuleStore
	runner Runner
	cfg    *config.Config
	log    *slog.Logger

	mu      sync.Mutex
	lastRun *processor.Stats
	lastErr error
}

// New creates a Bot with the given Telegram token and collaborators.
func New(token string, store storage.Storage, rules RuleStore, runner Runner, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:    api,
		store:  store,
		rules:  rules,
		runner: runner,
		cfg:    cfg,
		log:    log,
	}, nil
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				if !b.cfg.IsUserAllowed(update.CallbackQuery.From.ID) {
					continue
				}
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

// NotifyRun records the outcome of a scheduled run and reports it to the
// configured chat.
func (b *Bot) NotifyRun(stats processor.Stats, err error) {
	b.recordRun(stats, err)
	if b.cfg.Telegram.ChatID == 0 {
		return
	}
	b.SendMessage(b.cfg.Telegram.ChatID, FormatRunResult(stats, err))
}

func (b *Bot) recordRun(stats processor.Stats, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastRun = &stats
	b.lastErr = err
}

func (b *Bot) lastRunState() (*processor.Stats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastRun, b.lastErr
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case cmdRules:
		b.handleRules(chatID)
	case cmdRule:
		b.handleRule(chatID, args)
	case cmdReload:
		b.handleReload(chatID)
	case cmdProcess:
		b.handleProcess(ctx, chatID)
	case "status":
		b.handleStatus(ctx, chatID)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
