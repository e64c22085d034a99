// Package gmail talks to the Gmail API: authentication, fetching messages
// and applying rule actions.
package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gmailv1 "google.golang.org/api/gmail/v1"

	"mailrules/internal/model"
)

const user = "me"

// Client wraps a Gmail service for one mailbox.
type Client struct {
	svc  *gmailv1.Service
	log  *slog.Logger
	pace time.Duration
	now  func() time.Time

	mu       sync.Mutex
	labelIDs map[string]string
}

// New creates a Client over svc. pace is the pause between message
// downloads during FetchEmails; zero disables pacing.
func New(svc *gmailv1.Service, pace time.Duration, log *slog.Logger) *Client {
	return &Client{svc: svc, log: log, pace: pace, now: time.Now}
}

// FetchEmails lists up to limit messages carrying label and downloads each in
// full. Messages that fail to download are logged and skipped.
func (c *Client) FetchEmails(ctx context.Context, label string, limit int64) ([]model.Email, error) {
	call := c.svc.Users.Messages.List(user).MaxResults(limit).Context(ctx)
	if label != "" {
		call = call.LabelIds(label)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	c.log.Info("listed messages", "label", label, "count", len(resp.Messages))

	emails := make([]model.Email, 0, len(resp.Messages))
	for i, ref := range resp.Messages {
		if i > 0 && c.pace > 0 {
			if err := sleep(ctx, c.pace); err != nil {
				return emails, err
			}
		}
		msg, err := c.svc.Users.Messages.Get(user, ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			if ctx.Err() != nil {
				return emails, ctx.Err()
			}
			c.log.Error("get message", "id", ref.Id, "error", err)
			continue
		}
		emails = append(emails, ParseMessage(msg, c.now()))
	}
	return emails, nil
}

// Profile returns the authenticated user's profile.
func (c *Client) Profile(ctx context.Context) (*gmailv1.Profile, error) {
	p, err := c.svc.Users.GetProfile(user).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// Labels returns every label in the mailbox.
func (c *Client) Labels(ctx context.Context) ([]*gmailv1.Label, error) {
	resp, err := c.svc.Users.Labels.List(user).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	return resp.Labels, nil
}

// MarkRead adds or removes the UNREAD label.
func (c *Client) MarkRead(ctx context.Context, id string, read bool) error {
	req := &gmailv1.ModifyMessageRequest{}
	if read {
		req.RemoveLabelIds = []string{LabelUnread}
	} else {
		req.AddLabelIds = []string{LabelUnread}
	}
	if _, err := c.svc.Users.Messages.Modify(user, id, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("modify message %s: %w", id, err)
	}
	return nil
}

// Move takes the message out of INBOX and applies the destination label,
// creating it if needed. It returns the message's resulting label IDs.
func (c *Client) Move(ctx context.Context, id, destination string) ([]string, error) {
	labelID, err := c.labelID(ctx, destination)
	if err != nil {
		return nil, err
	}

	req := &gmailv1.ModifyMessageRequest{AddLabelIds: []string{labelID}}
	if labelID != LabelInbox {
		req.RemoveLabelIds = []string{LabelInbox}
	}
	msg, err := c.svc.Users.Messages.Modify(user, id, req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("modify message %s: %w", id, err)
	}
	c.log.Info("moved message", "id", id, "destination", destination)
	return msg.LabelIds, nil
}

// labelID resolves a label name to its ID, creating user labels that do not
// exist yet. Resolved IDs are cached for the lifetime of the client.
func (c *Client) labelID(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.labelIDs[name]; ok {
		return id, nil
	}

	labels, err := c.Labels(ctx)
	if err != nil {
		return "", err
	}
	c.labelIDs = make(map[string]string, len(labels))
	for _, l := range labels {
		c.labelIDs[l.Name] = l.Id
	}
	if id, ok := c.labelIDs[name]; ok {
		return id, nil
	}

	if IsSystemLabel(name) {
		return "", fmt.Errorf("system label %q not found", name)
	}

	created, err := c.svc.Users.Labels.Create(user, &gmailv1.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create label %s: %w", name, err)
	}
	c.log.Info("created label", "name", name, "id", created.Id)
	c.labelIDs[name] = created.Id
	return created.Id, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
