package gmail

import (
	"encoding/base64"
	"net/mail"
	"strings"
	"time"

	"github.com/k3a/html2text"
	gmailv1 "google.golang.org/api/gmail/v1"

	"mailrules/internal/model"
)

// Label IDs Gmail reserves.
const (
	LabelInbox  = "INBOX"
	LabelUnread = "UNREAD"
)

var systemLabels = map[string]bool{
	"INBOX":     true,
	"SENT":      true,
	"DRAFT":     true,
	"SPAM":      true,
	"TRASH":     true,
	"STARRED":   true,
	"UNREAD":    true,
	"IMPORTANT": true,
}

// IsSystemLabel reports whether name is one of Gmail's built-in labels,
// which can be applied but never created.
func IsSystemLabel(name string) bool {
	return systemLabels[name]
}

// ParseMessage maps a full-format Gmail message to an Email. A missing or
// unparseable Date header falls back to now.
func ParseMessage(msg *gmailv1.Message, now time.Time) model.Email {
	em := model.Email{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Labels:   append([]string{}, msg.LabelIds...),
	}

	var date string
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "from":
				em.From = h.Value
			case "to":
				em.To = h.Value
			case "subject":
				em.Subject = h.Value
			case "date":
				date = h.Value
			}
		}
		em.Message = extractBody(msg.Payload)
	}

	received := now
	if t, err := mail.ParseDate(date); err == nil {
		received = t
	}
	received = received.UTC()
	em.Received = received.Format(time.RFC3339)
	em.ReceivedAt = received
	em.IsRead = !em.HasLabel(LabelUnread)
	return em
}

// extractBody prefers text/plain and falls back to HTML rendered as text.
func extractBody(part *gmailv1.MessagePart) string {
	if body := extractPlainText(part); body != "" {
		return body
	}
	if html := extractHTML(part); html != "" {
		return strings.TrimSpace(html2text.HTML2Text(html))
	}
	return ""
}

// extractPlainText walks the part tree and returns the first text/plain
// body, preferring direct children of a multipart node.
func extractPlainText(part *gmailv1.MessagePart) string {
	if part == nil {
		return ""
	}
	if strings.EqualFold(part.MimeType, "text/plain") && part.Body != nil && part.Body.Data != "" {
		return decodeBase64URL(part.Body.Data)
	}
	for _, sub := range part.Parts {
		if strings.EqualFold(sub.MimeType, "text/plain") {
			if body := extractPlainText(sub); body != "" {
				return body
			}
		}
	}
	for _, sub := range part.Parts {
		if body := extractPlainText(sub); body != "" {
			return body
		}
	}
	return ""
}

func extractHTML(part *gmailv1.MessagePart) string {
	if part == nil {
		return ""
	}
	if strings.EqualFold(part.MimeType, "text/html") && part.Body != nil && part.Body.Data != "" {
		return decodeBase64URL(part.Body.Data)
	}
	for _, sub := range part.Parts {
		if body := extractHTML(sub); body != "" {
			return body
		}
	}
	return ""
}

func decodeBase64URL(data string) string {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		// Gmail usually sends unpadded base64url.
		b, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return ""
		}
	}
	return string(b)
}
