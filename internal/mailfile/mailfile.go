// Package mailfile reads RFC 5322 message files (.eml) into emails so rules
// can run against mail exported from any client.
package mailfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset" // legacy charset decoding
	"github.com/emersion/go-message/mail"
	"github.com/k3a/html2text"

	"mailrules/internal/model"
)

// maxBodySize caps how much of a single text part is read.
const maxBodySize = 5 * 1024 * 1024

// labelsHeader carries Gmail labels in Takeout exports.
const labelsHeader = "X-Gmail-Labels"

var defaultLabels = []string{"INBOX", "UNREAD"}

// Parse reads one message from r. fallbackID is used when the message has no
// Message-ID; now stands in for a missing or unparseable Date header.
func Parse(r io.Reader, fallbackID string, now time.Time) (model.Email, error) {
	entity, err := message.Read(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return model.Email{}, fmt.Errorf("read message: %w", err)
	}

	h := mail.Header{Header: entity.Header}
	em := model.Email{ID: fallbackID}

	if id, err := h.MessageID(); err == nil && id != "" {
		em.ID = id
	}
	if em.ID == "" {
		return model.Email{}, errors.New("message has no Message-ID and no fallback id")
	}
	em.ThreadID = threadID(h, em.ID)
	em.From = addressText(h, "From")
	em.To = addressText(h, "To")
	if s, err := h.Subject(); err == nil {
		em.Subject = s
	}

	received := now
	if t, err := h.Date(); err == nil && !t.IsZero() {
		received = t
	}
	received = received.UTC()
	em.Received = received.Format(time.RFC3339)
	em.ReceivedAt = received

	body, err := extractBody(entity)
	if err != nil {
		return model.Email{}, err
	}
	em.Message = body

	em.Labels = labels(h)
	em.IsRead = !em.HasLabel("UNREAD")
	return em, nil
}

// ParseFile parses the message stored at path, falling back to the file name
// without extension as its ID.
func ParseFile(path string, now time.Time) (model.Email, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return model.Email{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	base := filepath.Base(path)
	em, err := Parse(f, strings.TrimSuffix(base, filepath.Ext(base)), now)
	if err != nil {
		return model.Email{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return em, nil
}

func addressText(h mail.Header, key string) string {
	if list, err := h.AddressList(key); err == nil && len(list) > 0 {
		parts := make([]string, len(list))
		for i, a := range list {
			if a.Name != "" {
				parts[i] = fmt.Sprintf("%s <%s>", a.Name, a.Address)
			} else {
				parts[i] = a.Address
			}
		}
		return strings.Join(parts, ", ")
	}
	if v, err := h.Text(key); err == nil {
		return v
	}
	return h.Get(key)
}

func threadID(h mail.Header, id string) string {
	if refs, err := h.MsgIDList("References"); err == nil && len(refs) > 0 {
		return refs[0]
	}
	if irt, err := h.MsgIDList("In-Reply-To"); err == nil && len(irt) > 0 {
		return irt[0]
	}
	return id
}

func labels(h mail.Header) []string {
	raw := h.Get(labelsHeader)
	if raw == "" {
		return append([]string{}, defaultLabels...)
	}
	var out []string
	for _, l := range strings.Split(raw, ",") {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		// Takeout spells system labels in title case.
		if up := strings.ToUpper(l); up == "INBOX" || up == "UNREAD" || up == "STARRED" ||
			up == "IMPORTANT" || up == "SENT" || up == "DRAFT" || up == "SPAM" || up == "TRASH" {
			l = up
		}
		out = append(out, l)
	}
	return out
}

// extractBody returns the first text/plain part, or the first text/html part
// rendered as text.
func extractBody(entity *message.Entity) (string, error) {
	var plain, html string
	err := entity.Walk(func(_ []int, part *message.Entity, err error) error {
		if err != nil {
			if message.IsUnknownCharset(err) {
				return nil
			}
			return err
		}
		mediaType, _, _ := part.Header.ContentType()
		if mediaType == "" {
			mediaType = "text/plain"
		}
		if strings.HasPrefix(mediaType, "multipart/") {
			return nil
		}
		if mediaType != "text/plain" && mediaType != "text/html" {
			return nil
		}
		if (mediaType == "text/plain" && plain != "") || (mediaType == "text/html" && html != "") {
			return nil
		}
		b, err := io.ReadAll(io.LimitReader(part.Body, maxBodySize))
		if err != nil {
			return fmt.Errorf("read %s part: %w", mediaType, err)
		}
		if mediaType == "text/plain" {
			plain = string(b)
		} else {
			html = string(b)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walk message: %w", err)
	}

	if strings.TrimSpace(plain) != "" {
		return strings.TrimSpace(plain), nil
	}
	if html != "" {
		return strings.TrimSpace(html2text.HTML2Text(html)), nil
	}
	return "", nil
}
