// Package model defines the domain types used across the application.
package model

import (
	"fmt"
	"time"
)

// Email is a locally stored mail message that rules are evaluated against.
type Email struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
	From     string `json:"from"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Message  string `json:"message"`
	// Received is the timestamp as stored, ISO-8601 or RFC 2822.
	Received string `json:"received_date"`
	// ReceivedAt is used directly by date conditions when non-zero.
	ReceivedAt time.Time `json:"-"`
	IsRead     bool      `json:"is_read"`
	Labels     []string  `json:"labels"`
	CreatedAt  time.Time `json:"created_at"`
}

// HasLabel reports whether the email carries the given label.
func (e Email) HasLabel(label string) bool {
	for _, l := range e.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// ActionLogEntry records the outcome of one action executed on one email.
type ActionLogEntry struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	EmailID   string    `json:"email_id"`
	RuleLabel string    `json:"rule"`
	Action    string    `json:"action"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RuleLabel returns the reporting label of the rule at 0-based index i.
func RuleLabel(i int) string {
	return fmt.Sprintf("rule_%d", i+1)
}
