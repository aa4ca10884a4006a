package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskpulse/internal/domain"
)

type notificationRow struct {
	ID           string  `db:"id"`
	UserID       string  `db:"user_id"`
	TaskID       *string `db:"task_id"`
	Message      string  `db:"message"`
	Type         string  `db:"type"`
	IsRead       bool    `db:"is_read"`
	CreatedAt    int64   `db:"created_at"`
	TaskTitle    *string `db:"task_title"`
	TaskPriority *string `db:"task_priority"`
}

func (r notificationRow) notification() domain.Notification {
	n := domain.Notification{
		ID:        r.ID,
		UserID:    r.UserID,
		TaskID:    r.TaskID,
		Message:   r.Message,
		Type:      domain.NotificationType(r.Type),
		IsRead:    r.IsRead,
		CreatedAt: fromMillis(r.CreatedAt),
	}
	if r.TaskID != nil && r.TaskTitle != nil {
		ref := &domain.TaskRef{ID: *r.TaskID, Title: *r.TaskTitle}
		if r.TaskPriority != nil {
			ref.Priority = domain.Priority(*r.TaskPriority)
		}
		n.Task = ref
	}
	return n
}

const notificationSelect = `
SELECT n.id, n.user_id, n.task_id, n.message, n.type, n.is_read, n.created_at,
       t.title AS task_title, t.priority AS task_priority
FROM notifications n LEFT JOIN tasks t ON t.id = n.task_id`

// CreateNotification persists n. CreatedAt is kept when the caller set it
// so that scheduler passes stamp notifications with their own clock.
func (r *sqliteRepo) CreateNotification(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	if n.UserID == "" {
		return domain.Notification{}, fmt.Errorf("notification user must not be empty")
	}
	if n.Message == "" {
		return domain.Notification{}, fmt.Errorf("notification message must not be empty")
	}
	if n.Type == "" {
		n.Type = domain.TypeReminder
	}
	if !n.Type.Valid() {
		return domain.Notification{}, fmt.Errorf("unknown notification type %q", n.Type)
	}
	if n.ID == "" {
		n.ID = "ntf_" + uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.now()
	}
	n.IsRead = false

	_, err := r.db.ExecContext(ctx, `
INSERT INTO notifications (id,user_id,task_id,message,type,is_read,created_at)
VALUES (?,?,?,?,?,0,?)`, n.ID, n.UserID, n.TaskID, n.Message, n.Type, toMillis(n.CreatedAt))
	if err != nil {
		return domain.Notification{}, fmt.Errorf("creating notification: %w", err)
	}
	return n, nil
}

// ExistsSince reports whether a notification of typ for (userID, taskID)
// was created at or after since.
func (r *sqliteRepo) ExistsSince(ctx context.Context, userID, taskID string, typ domain.NotificationType, since time.Time) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
SELECT EXISTS(SELECT 1 FROM notifications WHERE user_id=? AND task_id=? AND type=? AND created_at >= ?)`,
		userID, taskID, typ, toMillis(since))
	if err != nil {
		return false, fmt.Errorf("checking %s notification for task %s: %w", typ, taskID, err)
	}
	return exists, nil
}

type NotificationPage struct {
	Notifications []domain.Notification
	Total         int
	Unread        int
	Page          int
	Limit         int
}

func (p NotificationPage) TotalPages() int {
	if p.Limit == 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

func (r *sqliteRepo) ListNotifications(ctx context.Context, userID string, page, limit int) (NotificationPage, error) {
	page, limit = clampPage(page, limit, 20)
	out := NotificationPage{Page: page, Limit: limit}

	var rows []notificationRow
	if err := r.db.SelectContext(ctx, &rows, notificationSelect+`
WHERE n.user_id=? ORDER BY n.created_at DESC, n.id LIMIT ? OFFSET ?`, userID, limit, (page-1)*limit); err != nil {
		return out, fmt.Errorf("listing notifications: %w", err)
	}
	if err := r.db.GetContext(ctx, &out.Total,
		`SELECT COUNT(*) FROM notifications WHERE user_id=?`, userID); err != nil {
		return out, fmt.Errorf("counting notifications: %w", err)
	}
	if err := r.db.GetContext(ctx, &out.Unread,
		`SELECT COUNT(*) FROM notifications WHERE user_id=? AND is_read=0`, userID); err != nil {
		return out, fmt.Errorf("counting unread notifications: %w", err)
	}

	out.Notifications = make([]domain.Notification, 0, len(rows))
	for _, row := range rows {
		out.Notifications = append(out.Notifications, row.notification())
	}
	return out, nil
}

func (r *sqliteRepo) MarkRead(ctx context.Context, userID, id string) (domain.Notification, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read=1 WHERE id=? AND user_id=?`, id, userID)
	if err != nil {
		return domain.Notification{}, fmt.Errorf("marking notification %s read: %w", id, err)
	}
	if err := expectRow(res); err != nil {
		return domain.Notification{}, err
	}

	var row notificationRow
	err = r.db.GetContext(ctx, &row, notificationSelect+` WHERE n.id=? AND n.user_id=?`, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Notification{}, ErrNotFound
	}
	if err != nil {
		return domain.Notification{}, fmt.Errorf("getting notification %s: %w", id, err)
	}
	return row.notification(), nil
}

func (r *sqliteRepo) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read=1 WHERE user_id=? AND is_read=0`, userID)
	if err != nil {
		return 0, fmt.Errorf("marking notifications read: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *sqliteRepo) DeleteNotification(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id=? AND user_id=?`, id, userID)
	if err != nil {
		return fmt.Errorf("deleting notification %s: %w", id, err)
	}
	return expectRow(res)
}

func (r *sqliteRepo) DeleteAllNotifications(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE user_id=?`, userID)
	if err != nil {
		return 0, fmt.Errorf("clearing notifications: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
