// Package processor applies the active rule set to stored emails and
// executes the matched rules' actions against the mail provider.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"mailrules/internal/metrics"
	"mailrules/internal/model"
	"mailrules/internal/rules"
	"mailrules/internal/storage"
)

// ErrRunInProgress is returned when a run starts while another is active.
var ErrRunInProgress = errors.New("processing run already in progress")

// Actions is the interface for side effects on the mail provider.
// Move returns the message's labels after the move, or nil if unknown.
type Actions interface {
	MarkRead(ctx context.Context, id string, read bool) error
	Move(ctx context.Context, id, destination string) ([]string, error)
}

// RuleSource supplies the active rule set.
type RuleSource interface {
	Rules() model.RuleSet
}

// Config controls batching, pacing and run limits.
type Config struct {
	BatchSize       int
	RateLimitPerSec float64
	MaxProcessTime  time.Duration
}

// Stats summarizes one processing run.
type Stats struct {
	RunID           string        `json:"run_id"`
	Processed       int           `json:"processed"`
	Matched         int           `json:"matched"`
	ActionsExecuted int           `json:"actions_executed"`
	ActionsFailed   int           `json:"actions_failed"`
	RulesProcessed  int           `json:"rules_processed"`
	TimedOut        bool          `json:"timed_out"`
	Duration        time.Duration `json:"duration"`
}

// Processor runs rules over stored emails.
type Processor struct {
	actions Actions
	store   storage.Storage
	rules   RuleSource
	eval    *rules.Evaluator
	cfg     Config
	log     *slog.Logger
	running sync.Mutex

	newRunID func() string
	sleep    func(ctx context.Context, d time.Duration) error
}

// New creates a Processor.
func New(actions Actions, store storage.Storage, src RuleSource, eval *rules.Evaluator, cfg Config, log *slog.Logger) *Processor {
	return &Processor{
		actions:  actions,
		store:    store,
		rules:    src,
		eval:     eval,
		cfg:      cfg,
		log:      log,
		newRunID: uuid.NewString,
		sleep:    sleep,
	}
}

// ExecuteActions runs actions on one email in order, recording each outcome
// in the action log under runID. A failed action does not stop the rest.
// It returns the counts of successful and failed actions; the error is
// non-nil only when ctx ends.
func (p *Processor) ExecuteActions(ctx context.Context, runID, label string, email model.Email, actions []model.Action) (ok, failed int, err error) {
	for _, a := range actions {
		if err := ctx.Err(); err != nil {
			return ok, failed, err
		}

		err := p.execute(ctx, &email, a)
		metrics.ObserveAction(string(a.Type), err)

		entry := &model.ActionLogEntry{
			RunID:     runID,
			EmailID:   email.ID,
			RuleLabel: label,
			Action:    a.String(),
			Success:   err == nil,
		}
		if err != nil {
			failed++
			entry.Error = err.Error()
			p.log.Warn("action failed", "run_id", runID, "email_id", email.ID, "action", a.String(), "error", err)
		} else {
			ok++
			p.log.Debug("action executed", "run_id", runID, "email_id", email.ID, "action", a.String())
		}
		if rerr := p.store.RecordAction(ctx, entry); rerr != nil {
			p.log.Error("record action", "run_id", runID, "email_id", email.ID, "error", rerr)
		}

		if err := p.sleep(ctx, p.interval()); err != nil {
			return ok, failed, err
		}
	}
	return ok, failed, nil
}

func (p *Processor) execute(ctx context.Context, email *model.Email, a model.Action) error {
	switch a.Type {
	case model.ActionMarkRead, model.ActionMarkUnread:
		read := a.Type == model.ActionMarkRead
		if a.Type == model.ActionMarkRead && a.Read != nil {
			read = *a.Read
		}
		return p.markRead(ctx, email, read)
	case model.ActionMoveMessage:
		return p.move(ctx, email, a.Destination)
	default:
		return fmt.Errorf("unknown action %q", a.Type)
	}
}

func (p *Processor) markRead(ctx context.Context, email *model.Email, read bool) error {
	if err := p.actions.MarkRead(ctx, email.ID, read); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	email.IsRead = read
	email.Labels = toggleUnread(email.Labels, read)

	if err := p.store.MarkRead(ctx, email.ID, read); err != nil {
		return fmt.Errorf("store read state: %w", err)
	}
	if err := p.store.UpdateLabels(ctx, email.ID, email.Labels); err != nil {
		return fmt.Errorf("store labels: %w", err)
	}
	return nil
}

func (p *Processor) move(ctx context.Context, email *model.Email, destination string) error {
	labels, err := p.actions.Move(ctx, email.ID, destination)
	if err != nil {
		return fmt.Errorf("move to %q: %w", destination, err)
	}
	if labels == nil {
		labels = movedLabels(email.Labels, destination)
	}
	email.Labels = labels
	if err := p.store.UpdateLabels(ctx, email.ID, labels); err != nil {
		return fmt.Errorf("store labels: %w", err)
	}
	return nil
}

// ProcessAll evaluates the rule set against every stored email and executes
// the actions of each match.
func (p *Processor) ProcessAll(ctx context.Context) (Stats, error) {
	return p.run(ctx, func(ctx context.Context, r *runState) error {
		emails, err := p.store.ListEmails(ctx, 0)
		if err != nil {
			return fmt.Errorf("list emails: %w", err)
		}
		if len(emails) == 0 {
			p.log.Info("no emails found", "run_id", r.stats.RunID)
			return nil
		}
		p.log.Info("processing emails", "run_id", r.stats.RunID, "count", len(emails), "rules", len(r.set))
		return r.apply(ctx, emails)
	})
}

// ProcessInBatches pages through stored emails BatchSize at a time, applying
// the rule set to each page.
func (p *Processor) ProcessInBatches(ctx context.Context) (Stats, error) {
	return p.run(ctx, func(ctx context.Context, r *runState) error {
		total, err := p.store.CountEmails(ctx)
		if err != nil {
			return err
		}
		if total == 0 {
			p.log.Info("no emails found", "run_id", r.stats.RunID)
			return nil
		}
		size := p.cfg.BatchSize
		if size <= 0 {
			size = total
		}
		p.log.Info("processing emails in batches", "run_id", r.stats.RunID, "count", total, "batch_size", size)

		for offset := 0; offset < total; offset += size {
			batch, err := p.store.ListEmailsPage(ctx, offset, size)
			if err != nil {
				return fmt.Errorf("list emails page: %w", err)
			}
			if len(batch) == 0 {
				break
			}
			p.log.Info("processing batch", "run_id", r.stats.RunID, "from", offset+1, "to", offset+len(batch))
			if err := r.apply(ctx, batch); err != nil {
				return err
			}
			p.log.Info("batch completed", "run_id", r.stats.RunID, "processed", r.stats.Processed, "total", total)

			if offset+size < total {
				if err := p.sleep(ctx, 2*p.interval()); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

type runState struct {
	p     *Processor
	set   model.RuleSet
	stats Stats
}

// apply evaluates set against emails and executes the matched actions.
func (r *runState) apply(ctx context.Context, emails []model.Email) error {
	results := r.p.eval.Run(emails, r.set)
	r.stats.Processed += len(emails)
	metrics.EmailsProcessedTotal.Add(float64(len(emails)))

	for _, m := range results {
		if m.Count == 0 {
			r.p.log.Debug("rule matched no emails", "rule", m.Label)
			continue
		}
		r.p.log.Info("rule matched", "run_id", r.stats.RunID, "rule", m.Label, "count", m.Count)
		r.stats.Matched += m.Count
		metrics.RuleMatchesTotal.WithLabelValues(m.Label).Add(float64(m.Count))

		for _, email := range m.Emails {
			// An earlier rule may have changed labels or read state.
			if cur, err := r.p.store.GetEmail(ctx, email.ID); err == nil {
				email = *cur
			}
			ok, failed, err := r.p.ExecuteActions(ctx, r.stats.RunID, m.Label, email, m.Rule.Actions)
			r.stats.ActionsExecuted += ok
			r.stats.ActionsFailed += failed
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Processor) run(ctx context.Context, body func(context.Context, *runState) error) (Stats, error) {
	if !p.running.TryLock() {
		return Stats{}, ErrRunInProgress
	}
	defer p.running.Unlock()

	start := time.Now()
	set := p.rules.Rules()
	metrics.RulesLoaded.Set(float64(len(set)))

	r := &runState{
		p:     p,
		set:   set,
		stats: Stats{RunID: p.newRunID(), RulesProcessed: len(set)},
	}

	runCtx := ctx
	if p.cfg.MaxProcessTime > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.cfg.MaxProcessTime)
		defer cancel()
	}

	err := body(runCtx, r)
	r.stats.Duration = time.Since(start)
	metrics.RunDuration.Observe(r.stats.Duration.Seconds())

	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		r.stats.TimedOut = true
		p.log.Warn("processing stopped at time limit", "run_id", r.stats.RunID, "limit", p.cfg.MaxProcessTime, "processed", r.stats.Processed)
		err = nil
	}
	if err != nil {
		return r.stats, fmt.Errorf("process run %s: %w", r.stats.RunID, err)
	}

	p.log.Info("processing completed",
		"run_id", r.stats.RunID,
		"processed", r.stats.Processed,
		"matched", r.stats.Matched,
		"actions_executed", r.stats.ActionsExecuted,
		"actions_failed", r.stats.ActionsFailed,
	)
	return r.stats, nil
}

func (p *Processor) interval() time.Duration {
	if p.cfg.RateLimitPerSec <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / p.cfg.RateLimitPerSec)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func toggleUnread(labels []string, read bool) []string {
	out := make([]string, 0, len(labels)+1)
	for _, l := range labels {
		if l != "UNREAD" {
			out = append(out, l)
		}
	}
	if !read {
		out = append(out, "UNREAD")
	}
	return out
}

func movedLabels(labels []string, destination string) []string {
	out := make([]string, 0, len(labels)+1)
	for _, l := range labels {
		if l != "INBOX" && l != destination {
			out = append(out, l)
		}
	}
	return append(out, destination)
}
