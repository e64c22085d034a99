package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"mailrules/internal/metrics"
	"mailrules/internal/processor"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to Mail Rules Bot!

Stored mail is matched against your rules and the rule actions are applied
to your mailbox.

Quick start:
1. /rules - see the loaded rules
2. /process - run the rules now
3. /status - check the last run

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Rules:
/rules - list loaded rules
/rule <n> - rule details
/reload - re-read the rules file

Processing:
/process - apply rules to stored mail now
/status - stored mail, loaded rules and last run`)
}

func (b *Bot) handleRules(chatID int64) {
	sum := b.rules.Summary()
	msg := tgbotapi.NewMessage(chatID, FormatRuleList(sum))
	if n := len(sum.Rules); n > 0 {
		msg.ReplyMarkup = ruleKeyboard(n)
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send rule list", "chat_id", chatID, "error", err)
	}
}

func ruleKeyboard(n int) tgbotapi.InlineKeyboardMarkup {
	const perRow = 5
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for i := 1; i <= n; i++ {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("#%d", i), fmt.Sprintf("%s:%d", cmdRule, i)))
		if len(row) == perRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Run now", "process_confirm:0"),
		tgbotapi.NewInlineKeyboardButtonData("Reload", cmdReload+":0"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) handleRule(chatID int64, args string) {
	set := b.rules.Rules()
	n, err := ParseRuleNumber(args, len(set))
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	b.reply(chatID, FormatRule(n, set[n-1]))
}

func (b *Bot) handleReload(chatID int64) {
	n := b.rules.Reload()
	metrics.RulesLoaded.Set(float64(n))
	b.log.Info("rules reloaded", "count", n, "chat_id", chatID)
	b.reply(chatID, fmt.Sprintf("Rules reloaded: %d active.", n))
}

func (b *Bot) handleProcess(ctx context.Context, chatID int64) {
	if b.runner == nil {
		b.reply(chatID, "Processing is not available.")
		return
	}
	b.reply(chatID, "Processing started...")

	stats, err := b.runner.ProcessInBatches(ctx)
	if errors.Is(err, processor.ErrRunInProgress) {
		b.reply(chatID, "A processing run is already in progress.")
		return
	}
	b.recordRun(stats, err)
	b.reply(chatID, FormatRunResult(stats, err))
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64) {
	count, err := b.store.CountEmails(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	last, lastErr := b.lastRunState()
	b.reply(chatID, FormatStatus(count, len(b.rules.Rules()), last, lastErr))
}
