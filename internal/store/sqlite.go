package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"taskpulse/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Instants are stored as unix milliseconds so range predicates compare
// numerically regardless of the zone they were written in.
const schema = `
CREATE TABLE IF NOT EXISTS tasks (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  title TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  category TEXT NOT NULL DEFAULT 'General',
  priority TEXT NOT NULL CHECK(priority IN ('low','medium','high')) DEFAULT 'medium',
  status TEXT NOT NULL CHECK(status IN ('pending','completed')) DEFAULT 'pending',
  due_date INTEGER,
  reminder_time INTEGER,
  sort_order INTEGER NOT NULL DEFAULT 0,
  is_archived INTEGER NOT NULL DEFAULT 0,
  is_deleted INTEGER NOT NULL DEFAULT 0,
  is_notified INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id, is_deleted, status);
CREATE INDEX IF NOT EXISTS idx_tasks_reminder ON tasks(reminder_time, is_notified, status, is_deleted);
CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(due_date, status, is_deleted);
CREATE TABLE IF NOT EXISTS notifications (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  task_id TEXT,
  message TEXT NOT NULL,
  type TEXT NOT NULL CHECK(type IN ('reminder','system','task_created','task_completed','task_overdue')) DEFAULT 'reminder',
  is_read INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, is_read, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_notifications_dedup ON notifications(user_id, task_id, type, created_at);
`

// Open opens the sqlite database at path and ensures the schema exists.
// Use ":memory:" for an ephemeral database.
func Open(path string) (*sqlx.DB, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite single writer; also keeps :memory: on one connection
	if err := EnsureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sqlx.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}
	return nil
}

type TaskStore interface {
	CreateTask(ctx context.Context, t domain.Task) (domain.Task, error)
	GetTask(ctx context.Context, userID, id string) (domain.Task, error)
	ListTasks(ctx context.Context, f TaskFilter) ([]domain.Task, int, error)
	UpdateTask(ctx context.Context, t domain.Task) error
	SoftDeleteTask(ctx context.Context, userID, id string) error
	ReorderTasks(ctx context.Context, userID string, orderedIDs []string) (int64, error)

	// Scheduler scans
	DueReminders(ctx context.Context, now time.Time) ([]domain.Task, error)
	OverdueTasks(ctx context.Context, now time.Time) ([]domain.Task, error)
	MarkNotified(ctx context.Context, ids []string, now time.Time) (int64, error)
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n domain.Notification) (domain.Notification, error)
	ExistsSince(ctx context.Context, userID, taskID string, typ domain.NotificationType, since time.Time) (bool, error)
	ListNotifications(ctx context.Context, userID string, page, limit int) (NotificationPage, error)
	MarkRead(ctx context.Context, userID, id string) (domain.Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	DeleteNotification(ctx context.Context, userID, id string) error
	DeleteAllNotifications(ctx context.Context, userID string) (int64, error)
}

type Repository interface {
	TaskStore
	NotificationStore
}

type sqliteRepo struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewSQLiteRepo(db *sqlx.DB) Repository { return &sqliteRepo{db: db, now: time.Now} }

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms) }

func nullMillis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func timePtr(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := fromMillis(*ms)
	return &t
}
