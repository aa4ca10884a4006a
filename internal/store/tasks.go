package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"taskpulse/internal/domain"
)

const taskColumns = `id,user_id,title,description,category,priority,status,due_date,reminder_time,sort_order,is_archived,is_deleted,is_notified,created_at,updated_at`

type taskRow struct {
	ID           string `db:"id"`
	UserID       string `db:"user_id"`
	Title        string `db:"title"`
	Description  string `db:"description"`
	Category     string `db:"category"`
	Priority     string `db:"priority"`
	Status       string `db:"status"`
	DueDate      *int64 `db:"due_date"`
	ReminderTime *int64 `db:"reminder_time"`
	Order        int    `db:"sort_order"`
	IsArchived   bool   `db:"is_archived"`
	IsDeleted    bool   `db:"is_deleted"`
	IsNotified   bool   `db:"is_notified"`
	CreatedAt    int64  `db:"created_at"`
	UpdatedAt    int64  `db:"updated_at"`
}

func (r taskRow) task() domain.Task {
	return domain.Task{
		ID:           r.ID,
		UserID:       r.UserID,
		Title:        r.Title,
		Description:  r.Description,
		Category:     r.Category,
		Priority:     domain.Priority(r.Priority),
		Status:       domain.TaskStatus(r.Status),
		DueDate:      timePtr(r.DueDate),
		ReminderTime: timePtr(r.ReminderTime),
		Order:        r.Order,
		IsArchived:   r.IsArchived,
		IsDeleted:    r.IsDeleted,
		IsNotified:   r.IsNotified,
		CreatedAt:    fromMillis(r.CreatedAt),
		UpdatedAt:    fromMillis(r.UpdatedAt),
	}
}

func tasksFromRows(rows []taskRow) []domain.Task {
	tasks := make([]domain.Task, 0, len(rows))
	for _, r := range rows {
		tasks = append(tasks, r.task())
	}
	return tasks
}

// CreateTask inserts t, filling defaults, and appends it after the user's
// last task in manual order.
func (r *sqliteRepo) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	if strings.TrimSpace(t.Title) == "" {
		return domain.Task{}, fmt.Errorf("task title must not be empty")
	}
	if t.ID == "" {
		t.ID = "tsk_" + uuid.NewString()
	}
	if t.Category == "" {
		t.Category = "General"
	}
	if t.Priority == "" {
		t.Priority = domain.PriorityMedium
	}
	if t.Status == "" {
		t.Status = domain.StatusPending
	}
	now := r.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = t.CreatedAt

	var maxOrder sql.NullInt64
	if err := r.db.GetContext(ctx, &maxOrder,
		`SELECT MAX(sort_order) FROM tasks WHERE user_id=? AND is_deleted=0`, t.UserID); err != nil {
		return domain.Task{}, fmt.Errorf("getting max sort_order: %w", err)
	}
	if maxOrder.Valid {
		t.Order = int(maxOrder.Int64) + 1
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO tasks (`+taskColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.UserID, t.Title, t.Description, t.Category, t.Priority, t.Status,
		nullMillis(t.DueDate), nullMillis(t.ReminderTime), t.Order,
		t.IsArchived, t.IsDeleted, t.IsNotified,
		toMillis(t.CreatedAt), toMillis(t.UpdatedAt))
	if err != nil {
		return domain.Task{}, fmt.Errorf("creating task: %w", err)
	}
	return t, nil
}

func (r *sqliteRepo) GetTask(ctx context.Context, userID, id string) (domain.Task, error) {
	var row taskRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+taskColumns+` FROM tasks WHERE id=? AND user_id=? AND is_deleted=0`, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, ErrNotFound
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("getting task %s: %w", id, err)
	}
	return row.task(), nil
}

type TaskFilter struct {
	UserID    string
	Status    domain.TaskStatus
	Priority  domain.Priority
	Category  string
	Search    string
	Archived  *bool
	DueFrom   *time.Time
	DueTo     *time.Time
	SortBy    string
	Ascending bool
	Page      int
	Limit     int
}

var taskSortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"dueDate":   "due_date",
	"priority":  "priority",
	"status":    "status",
	"order":     "sort_order",
	"title":     "title",
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ListTasks returns one page of the user's live tasks and the total count
// matching f.
func (r *sqliteRepo) ListTasks(ctx context.Context, f TaskFilter) ([]domain.Task, int, error) {
	where := []string{"user_id=?", "is_deleted=0"}
	args := []any{f.UserID}
	if f.Status != "" {
		where = append(where, "status=?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		where = append(where, "priority=?")
		args = append(args, f.Priority)
	}
	if f.Category != "" {
		where = append(where, `category LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(f.Category)+"%")
	}
	if f.Search != "" {
		where = append(where, `(title LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\')`)
		s := "%" + escapeLike(f.Search) + "%"
		args = append(args, s, s)
	}
	if f.Archived != nil {
		where = append(where, "is_archived=?")
		args = append(args, *f.Archived)
	}
	if f.DueFrom != nil {
		where = append(where, "due_date >= ?")
		args = append(args, toMillis(*f.DueFrom))
	}
	if f.DueTo != nil {
		where = append(where, "due_date <= ?")
		args = append(args, toMillis(*f.DueTo))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM tasks WHERE `+cond, args...); err != nil {
		return nil, 0, fmt.Errorf("counting tasks: %w", err)
	}

	col, ok := taskSortColumns[f.SortBy]
	if !ok {
		col = "created_at"
	}
	dir := "DESC"
	if f.Ascending {
		dir = "ASC"
	}
	page, limit := clampPage(f.Page, f.Limit, 10)

	var rows []taskRow
	q := fmt.Sprintf(`SELECT %s FROM tasks WHERE %s ORDER BY %s %s, id LIMIT ? OFFSET ?`, taskColumns, cond, col, dir)
	if err := r.db.SelectContext(ctx, &rows, q, append(args, limit, (page-1)*limit)...); err != nil {
		return nil, 0, fmt.Errorf("listing tasks: %w", err)
	}
	return tasksFromRows(rows), total, nil
}

func (r *sqliteRepo) UpdateTask(ctx context.Context, t domain.Task) error {
	t.UpdatedAt = r.now()
	res, err := r.db.ExecContext(ctx, `
UPDATE tasks SET title=?,description=?,category=?,priority=?,status=?,due_date=?,reminder_time=?,
  sort_order=?,is_archived=?,is_notified=?,updated_at=?
WHERE id=? AND user_id=? AND is_deleted=0`,
		t.Title, t.Description, t.Category, t.Priority, t.Status,
		nullMillis(t.DueDate), nullMillis(t.ReminderTime),
		t.Order, t.IsArchived, t.IsNotified, toMillis(t.UpdatedAt),
		t.ID, t.UserID)
	if err != nil {
		return fmt.Errorf("updating task %s: %w", t.ID, err)
	}
	return expectRow(res)
}

func (r *sqliteRepo) SoftDeleteTask(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET is_deleted=1, updated_at=? WHERE id=? AND user_id=? AND is_deleted=0`,
		toMillis(r.now()), id, userID)
	if err != nil {
		return fmt.Errorf("deleting task %s: %w", id, err)
	}
	return expectRow(res)
}

// ReorderTasks sets each task's manual order to its index in orderedIDs.
// Ids the user does not own are ignored. It returns the number of tasks
// reordered.
func (r *sqliteRepo) ReorderTasks(ctx context.Context, userID string, orderedIDs []string) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning reorder: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx,
		`UPDATE tasks SET sort_order=?, updated_at=? WHERE id=? AND user_id=? AND is_deleted=0`)
	if err != nil {
		return 0, fmt.Errorf("preparing reorder: %w", err)
	}
	defer stmt.Close()

	now := toMillis(r.now())
	var total int64
	for i, id := range orderedIDs {
		res, err := stmt.ExecContext(ctx, i, now, id, userID)
		if err != nil {
			return 0, fmt.Errorf("reordering task %s: %w", id, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing reorder: %w", err)
	}
	return total, nil
}

// DueReminders returns live pending tasks whose reminder has come due and
// has not fired yet.
func (r *sqliteRepo) DueReminders(ctx context.Context, now time.Time) ([]domain.Task, error) {
	var rows []taskRow
	err := r.db.SelectContext(ctx, &rows, `
SELECT `+taskColumns+` FROM tasks
WHERE reminder_time IS NOT NULL AND reminder_time <= ? AND is_notified=0 AND status='pending' AND is_deleted=0
ORDER BY reminder_time`, toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("scanning due reminders: %w", err)
	}
	return tasksFromRows(rows), nil
}

// OverdueTasks returns live pending tasks whose due date is before now.
func (r *sqliteRepo) OverdueTasks(ctx context.Context, now time.Time) ([]domain.Task, error) {
	var rows []taskRow
	err := r.db.SelectContext(ctx, &rows, `
SELECT `+taskColumns+` FROM tasks
WHERE due_date IS NOT NULL AND due_date < ? AND status='pending' AND is_deleted=0
ORDER BY due_date`, toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("scanning overdue tasks: %w", err)
	}
	return tasksFromRows(rows), nil
}

// MarkNotified flags the tasks in ids as notified in one statement. Only
// reminders still due at now are flagged, so a reminder moved into the future
// after it was scanned stays armed.
func (r *sqliteRepo) MarkNotified(ctx context.Context, ids []string, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q, args, err := sqlx.In(
		`UPDATE tasks SET is_notified=1 WHERE id IN (?) AND reminder_time IS NOT NULL AND reminder_time <= ?`,
		ids, toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("building mark notified query: %w", err)
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(q), args...)
	if err != nil {
		return 0, fmt.Errorf("marking %d tasks notified: %w", len(ids), err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func clampPage(page, limit, def int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = def
	}
	if limit > 50 {
		limit = 50
	}
	return page, limit
}
