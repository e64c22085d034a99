// Package fetcher pulls mail into local storage, from a remote mailbox or
// from message files on disk.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mailrules/internal/mailfile"
	"mailrules/internal/model"
	"mailrules/internal/storage"
)

// Mailbox is the interface for listing messages from a mail provider.
type Mailbox interface {
	FetchEmails(ctx context.Context, label string, limit int64) ([]model.Email, error)
}

// Fetcher stores messages from a Mailbox.
type Fetcher struct {
	mailbox Mailbox
	store   storage.Storage
	label   string
	log     *slog.Logger
	now     func() time.Time
}

// New creates a Fetcher that lists messages carrying label. mailbox may be
// nil when only file import is used.
func New(mailbox Mailbox, store storage.Storage, label string, log *slog.Logger) *Fetcher {
	return &Fetcher{
		mailbox: mailbox,
		store:   store,
		label:   label,
		log:     log,
		now:     time.Now,
	}
}

// FetchAndStore downloads up to limit messages and upserts them. It returns
// the number of stored emails.
func (f *Fetcher) FetchAndStore(ctx context.Context, limit int64) (int, error) {
	if f.mailbox == nil {
		return 0, fmt.Errorf("fetch: no mailbox configured")
	}
	emails, err := f.mailbox.FetchEmails(ctx, f.label, limit)
	if err != nil {
		return 0, fmt.Errorf("fetch emails: %w", err)
	}
	if len(emails) == 0 {
		f.log.Info("no emails fetched", "label", f.label)
		return 0, nil
	}

	n, err := f.store.UpsertEmails(ctx, emails)
	if err != nil {
		return 0, fmt.Errorf("store emails: %w", err)
	}
	f.log.Info("stored emails", "count", n, "label", f.label)
	return n, nil
}

// ImportFiles parses message files and upserts them. Unparseable files are
// logged and skipped; the returned count covers stored emails only.
func (f *Fetcher) ImportFiles(ctx context.Context, paths []string) (int, error) {
	now := f.now()
	emails := make([]model.Email, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		em, err := mailfile.ParseFile(p, now)
		if err != nil {
			f.log.Warn("skip message file", "path", p, "error", err)
			continue
		}
		emails = append(emails, em)
	}
	if len(emails) == 0 {
		return 0, nil
	}

	n, err := f.store.UpsertEmails(ctx, emails)
	if err != nil {
		return 0, fmt.Errorf("store emails: %w", err)
	}
	f.log.Info("imported message files", "count", n, "skipped", len(paths)-n)
	return n, nil
}
