package gmail

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	gmailv1 "google.golang.org/api/gmail/v1"

	"mailrules/internal/model"
)

var parseNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func b64(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func headers(kv ...string) []*gmailv1.MessagePartHeader {
	var out []*gmailv1.MessagePartHeader
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, &gmailv1.MessagePartHeader{Name: kv[i], Value: kv[i+1]})
	}
	return out
}

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name string
		msg  *gmailv1.Message
		want model.Email
	}{
		{
			name: "plain text unread",
			msg: &gmailv1.Message{
				Id: "m1", ThreadId: "t1", LabelIds: []string{"INBOX", "UNREAD"},
				Payload: &gmailv1.MessagePart{
					MimeType: "text/plain",
					Headers: headers(
						"From", "Alice <alice@example.com>",
						"To", "me@example.com",
						"Subject", "Hello",
						"Date", "Fri, 13 Jun 2025 09:30:00 +0200",
					),
					Body: &gmailv1.MessagePartBody{Data: b64("Hi there")},
				},
			},
			want: model.Email{
				ID: "m1", ThreadID: "t1", From: "Alice <alice@example.com>", To: "me@example.com",
				Subject: "Hello", Message: "Hi there", Received: "2025-06-13T07:30:00Z",
				IsRead: false, Labels: []string{"INBOX", "UNREAD"},
			},
		},
		{
			name: "multipart prefers plain text",
			msg: &gmailv1.Message{
				Id: "m2", LabelIds: []string{"INBOX"},
				Payload: &gmailv1.MessagePart{
					MimeType: "multipart/alternative",
					Headers:  headers("subject", "Mixed", "date", "Thu, 12 Jun 2025 08:00:00 +0000 (UTC)"),
					Parts: []*gmailv1.MessagePart{
						{MimeType: "text/html", Body: &gmailv1.MessagePartBody{Data: b64("<p>html</p>")}},
						{MimeType: "text/plain", Body: &gmailv1.MessagePartBody{Data: b64("plain")}},
					},
				},
			},
			want: model.Email{
				ID: "m2", Subject: "Mixed", Message: "plain", Received: "2025-06-12T08:00:00Z",
				IsRead: true, Labels: []string{"INBOX"},
			},
		},
		{
			name: "html only is converted to text",
			msg: &gmailv1.Message{
				Id: "m3",
				Payload: &gmailv1.MessagePart{
					MimeType: "multipart/mixed",
					Headers:  headers("Subject", "Newsletter"),
					Parts: []*gmailv1.MessagePart{
						{MimeType: "multipart/alternative", Parts: []*gmailv1.MessagePart{
							{MimeType: "text/html", Body: &gmailv1.MessagePartBody{Data: b64("<html><body><b>Big</b> sale</body></html>")}},
						}},
					},
				},
			},
			want: model.Email{
				ID: "m3", Subject: "Newsletter", Message: "Big sale", Received: parseNow.Format(time.RFC3339),
				IsRead: true, Labels: []string{},
			},
		},
		{
			name: "bad date falls back to now",
			msg: &gmailv1.Message{
				Id: "m4", LabelIds: []string{"UNREAD"},
				Payload: &gmailv1.MessagePart{Headers: headers("Date", "not a date")},
			},
			want: model.Email{
				ID: "m4", Received: parseNow.Format(time.RFC3339), IsRead: false, Labels: []string{"UNREAD"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseMessage(tt.msg, parseNow)
			if diff := cmp.Diff(tt.want, got, cmpopts.IgnoreFields(model.Email{}, "ReceivedAt")); diff != "" {
				t.Errorf("ParseMessage() mismatch (-want +got):\n%s", diff)
			}
			if got.ReceivedAt.IsZero() {
				t.Error("expected ReceivedAt to be set")
			}
		})
	}
}

func TestDecodeBase64URL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "padded", in: base64.URLEncoding.EncodeToString([]byte("ok?")), want: "ok?"},
		{name: "unpadded", in: base64.RawURLEncoding.EncodeToString([]byte("hello world")), want: "hello world"},
		{name: "garbage", in: "!!!", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, decodeBase64URL(tt.in)); diff != "" {
				t.Errorf("decodeBase64URL() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIsSystemLabel(t *testing.T) {
	for _, name := range []string{"INBOX", "TRASH", "UNREAD"} {
		if !IsSystemLabel(name) {
			t.Errorf("IsSystemLabel(%q) = false", name)
		}
	}
	for _, name := range []string{"Work", "inbox", ""} {
		if IsSystemLabel(name) {
			t.Errorf("IsSystemLabel(%q) = true", name)
		}
	}
}

func TestCodeFromInput(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "  4/abc  ", want: "4/abc"},
		{in: "http://127.0.0.1:8080/?state=state-token&code=xyz", want: "xyz"},
		{in: "https://localhost/?state=s", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.in), func(t *testing.T) {
			got, err := codeFromInput(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("codeFromInput() = %q, want %q", got, tt.want)
			}
		})
	}
}
