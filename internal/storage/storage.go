// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"mailrules/internal/model"
)

// ErrNotFound is returned when a requested email does not exist.
var ErrNotFound = errors.New("not found")

// SearchCriteria narrows SearchEmails. Empty text fields are ignored; text
// fields match as case-insensitive substrings.
type SearchCriteria struct {
	From    string
	To      string
	Subject string
	Message string
	Label   string
	IsRead  *bool
}

// Storage is the interface for all persistence operations.
type Storage interface {
	UpsertEmails(ctx context.Context, emails []model.Email) (int, error)
	GetEmail(ctx context.Context, id string) (*model.Email, error)
	ListEmails(ctx context.Context, limit int) ([]model.Email, error)
	ListEmailsPage(ctx context.Context, offset, limit int) ([]model.Email, error)
	CountEmails(ctx context.Context) (int, error)
	SearchEmails(ctx context.Context, c SearchCriteria, limit int) ([]model.Email, error)
	MarkRead(ctx context.Context, id string, read bool) error
	UpdateLabels(ctx context.Context, id string, labels []string) error
	DeleteEmail(ctx context.Context, id string) error
	ClearEmails(ctx context.Context) error

	RecordAction(ctx context.Context, entry *model.ActionLogEntry) error
	ListActions(ctx context.Context, runID string) ([]model.ActionLogEntry, error)

	Close() error
}
