package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"mailrules/internal/model"
	"mailrules/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

const emailColumns = `id, thread_id, from_address, to_address, subject, message, received_date, is_read, labels, created_at`

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if strings.Contains(dsn, ":memory:") {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// DB exposes the underlying handle for migration commands.
func (s *SQLite) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// UpsertEmails inserts emails or refreshes existing rows with the same ID.
// CreatedAt of an existing row is kept. It returns the number of rows written.
func (s *SQLite) UpsertEmails(ctx context.Context, emails []model.Email) (int, error) {
	if len(emails) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO emails (`+emailColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   thread_id = excluded.thread_id,
		   from_address = excluded.from_address,
		   to_address = excluded.to_address,
		   subject = excluded.subject,
		   message = excluded.message,
		   received_date = excluded.received_date,
		   is_read = excluded.is_read,
		   labels = excluded.labels`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC().Format(timeLayout)
	for _, e := range emails {
		if e.ID == "" {
			return 0, fmt.Errorf("upsert email: empty id")
		}
		labels, err := encodeLabels(e.Labels)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx,
			e.ID, e.ThreadID, e.From, e.To, e.Subject, e.Message, e.Received,
			boolToInt(e.IsRead), labels, now,
		); err != nil {
			return 0, fmt.Errorf("upsert email %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(emails), nil
}

// GetEmail returns a single email by its ID.
func (s *SQLite) GetEmail(ctx context.Context, id string) (*model.Email, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+emailColumns+` FROM emails WHERE id = ?`, id)
	e, err := scanEmail(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("email %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListEmails returns up to limit emails, newest first. A limit of zero or
// less returns every email.
func (s *SQLite) ListEmails(ctx context.Context, limit int) ([]model.Email, error) {
	return s.ListEmailsPage(ctx, 0, limit)
}

// ListEmailsPage returns a window of emails, newest first.
func (s *SQLite) ListEmailsPage(ctx context.Context, offset, limit int) ([]model.Email, error) {
	if limit <= 0 {
		limit = -1
	}
	offset = max(offset, 0)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+emailColumns+` FROM emails
		 ORDER BY received_date DESC, id
		 LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query emails: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanEmails(rows)
}

// CountEmails returns the number of stored emails.
func (s *SQLite) CountEmails(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM emails`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count emails: %w", err)
	}
	return n, nil
}

// SearchEmails returns emails matching every non-empty criterion, newest first.
func (s *SQLite) SearchEmails(ctx context.Context, c SearchCriteria, limit int) ([]model.Email, error) {
	var where []string
	var args []any

	like := func(column, value string) {
		if value == "" {
			return
		}
		where = append(where, column+` LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(value)+"%")
	}
	like("from_address", c.From)
	like("to_address", c.To)
	like("subject", c.Subject)
	like("message", c.Message)

	if c.Label != "" {
		where = append(where, `EXISTS (SELECT 1 FROM json_each(emails.labels) WHERE json_each.value = ?)`)
		args = append(args, c.Label)
	}
	if c.IsRead != nil {
		where = append(where, `is_read = ?`)
		args = append(args, boolToInt(*c.IsRead))
	}

	query := `SELECT ` + emailColumns + ` FROM emails`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY received_date DESC, id LIMIT ?`
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search emails: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanEmails(rows)
}

// MarkRead sets the read flag of an email.
func (s *SQLite) MarkRead(ctx context.Context, id string, read bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE emails SET is_read = ? WHERE id = ?`, boolToInt(read), id)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return expectRow(res, id)
}

// UpdateLabels replaces the labels of an email.
func (s *SQLite) UpdateLabels(ctx context.Context, id string, labels []string) error {
	encoded, err := encodeLabels(labels)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE emails SET labels = ? WHERE id = ?`, encoded, id)
	if err != nil {
		return fmt.Errorf("update labels: %w", err)
	}
	return expectRow(res, id)
}

// DeleteEmail removes an email by its ID.
func (s *SQLite) DeleteEmail(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM emails WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete email: %w", err)
	}
	return expectRow(res, id)
}

// ClearEmails removes every stored email.
func (s *SQLite) ClearEmails(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM emails`); err != nil {
		return fmt.Errorf("clear emails: %w", err)
	}
	return nil
}

// RecordAction appends an entry to the action log and populates its ID and CreatedAt.
func (s *SQLite) RecordAction(ctx context.Context, entry *model.ActionLogEntry) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO action_log (run_id, email_id, rule_label, action, success, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID, entry.EmailID, entry.RuleLabel, entry.Action, boolToInt(entry.Success), entry.Error, now,
	)
	if err != nil {
		return fmt.Errorf("insert action: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	entry.ID = id
	entry.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// ListActions returns the action log of a run in execution order.
func (s *SQLite) ListActions(ctx context.Context, runID string) ([]model.ActionLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, email_id, rule_label, action, success, error, created_at
		 FROM action_log WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.ActionLogEntry
	for rows.Next() {
		var a model.ActionLogEntry
		var success int
		var created string
		if err := rows.Scan(&a.ID, &a.RunID, &a.EmailID, &a.RuleLabel, &a.Action, &success, &a.Error, &created); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		a.Success = success == 1
		a.CreatedAt, _ = time.Parse(timeLayout, created)
		entries = append(entries, a)
	}
	return entries, rows.Err()
}

func expectRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("email %s: %w", id, ErrNotFound)
	}
	return nil
}

func encodeLabels(labels []string) (string, error) {
	if labels == nil {
		labels = []string{}
	}
	b, err := json.Marshal(labels)
	if err != nil {
		return "", fmt.Errorf("encode labels: %w", err)
	}
	return string(b), nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanEmail(row scannable) (model.Email, error) {
	var e model.Email
	var isRead int
	var labels, created string
	err := row.Scan(&e.ID, &e.ThreadID, &e.From, &e.To, &e.Subject, &e.Message, &e.Received, &isRead, &labels, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return e, err
	}
	if err != nil {
		return e, fmt.Errorf("scan email: %w", err)
	}
	e.IsRead = isRead == 1
	if err := json.Unmarshal([]byte(labels), &e.Labels); err != nil {
		return e, fmt.Errorf("decode labels of %s: %w", e.ID, err)
	}
	e.CreatedAt, _ = time.Parse(timeLayout, created)
	return e, nil
}

func scanEmails(rows *sql.Rows) ([]model.Email, error) {
	var emails []model.Email
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}
