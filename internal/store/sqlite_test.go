package store

import (
	"errors"
	"strings"
	"testing"
	"time"

	"taskpulse/internal/domain"
)

// setupTestRepo builds a repository over an in-memory database.
func setupTestRepo(t *testing.T) *sqliteRepo {
	t.Helper()

	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening in-memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLiteRepo(db).(*sqliteRepo)
}

func mustCreateTask(t *testing.T, r *sqliteRepo, task domain.Task) domain.Task {
	t.Helper()
	created, err := r.CreateTask(t.Context(), task)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	return created
}

func ptr[T any](v T) *T { return &v }

func TestCreateTaskDefaultsAndOrder(t *testing.T) {
	r := setupTestRepo(t)

	first := mustCreateTask(t, r, domain.Task{UserID: "u1", Title: "first"})
	second := mustCreateTask(t, r, domain.Task{UserID: "u1", Title: "second"})
	other := mustCreateTask(t, r, domain.Task{UserID: "u2", Title: "other"})

	if first.Status != domain.StatusPending || first.Priority != domain.PriorityMedium || first.Category != "General" {
		t.Errorf("defaults not applied: %+v", first)
	}
	if first.Order != 0 || second.Order != 1 {
		t.Errorf("order = %d, %d; want 0, 1", first.Order, second.Order)
	}
	if other.Order != 0 {
		t.Errorf("order for another user = %d, want 0", other.Order)
	}

	if _, err := r.CreateTask(t.Context(), domain.Task{UserID: "u1", Title: "  "}); err == nil {
		t.Error("expected error for blank title")
	}
}

func TestGetTaskScopesByOwnerAndDeletion(t *testing.T) {
	r := setupTestRepo(t)
	task := mustCreateTask(t, r, domain.Task{UserID: "u1", Title: "mine"})

	if _, err := r.GetTask(t.Context(), "u2", task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("other user GetTask err = %v, want ErrNotFound", err)
	}
	if err := r.SoftDeleteTask(t.Context(), "u1", task.ID); err != nil {
		t.Fatalf("SoftDeleteTask: %v", err)
	}
	if _, err := r.GetTask(t.Context(), "u1", task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted GetTask err = %v, want ErrNotFound", err)
	}
	if err := r.SoftDeleteTask(t.Context(), "u1", task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestDueRemindersFilters(t *testing.T) {
	r := setupTestRepo(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	due := mustCreateTask(t, r, domain.Task{UserID: "u1", Title: "due", ReminderTime: &past})
	exact := mustCreateTask(t, r, domain.Task{UserID: "u1", Title: "exact", ReminderTime: ptr(now)})
	mustCreateTask(t, r, domain.Task{UserID: "u1", Title: "later", ReminderTime: &future})
	mustCreateTask(t, r, domain.Task{UserID: "u1", Title: "none"})
	mustCreateTask(t, r, domain.Task{UserID: "u1", Title: "fired", ReminderTime: &past, IsNotified: true})
	mustCreateTask(t, r, domain.Task{UserID: "u1", Title: "done", ReminderTime: &past, Status: domain.StatusCompleted})
	deleted := mustCreateTask(t, r, domain.Task{UserID: "u1", Title: "gone", ReminderTime: &past})
	if err := r.SoftDeleteTask(t.Context(), "u1", deleted.ID); err != nil {
		t.Fatalf("SoftDeleteTask: %v", err)
	}

	tasks, err := r.DueReminders(t.Context(), now)
	if err != nil {
		t.Fatalf("DueReminders: %v", err)
	}
	got := map[string]bool{}
	for _, task := range tasks {
		got[task.ID] = true
	}
	if len(tasks) != 2 || !got[due.ID] || !got[exact.ID] {
		t.Errorf("DueReminders = %v, want [%s %s]", got, due.ID, exact.ID)
	}
}

func TestOverdueTasksFilters(t *testing.T) {
	r := setupTestRepo(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	yesterday := now.Add(-24 * time.Hour)

	late := mustCreateTask(t, r, domain.Task{UserID: "u1", Title: "late", DueDate: &yesterday})
	mustCreateTask(t, r, domain.Task{UserID: "u1", Title: "exactly now", DueDate: ptr(now)})
	mustCreateTask(t, r, domain.Task{UserID: "u1", Title: "done", DueDate: &yesterday, Status: domain.StatusCompleted})

	tasks, err := r.OverdueTasks(t.Context(), now)
	if err != nil {
		t.Fatalf("OverdueTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != late.ID {
		t.Fatalf("OverdueTasks = %+v, want only %s", tasks, late.ID)
	}
	if !tasks[0].DueDate.Equal(yesterday) {
		t.Errorf("due date round trip = %v, want %v", tasks[0].DueDate, yesterday)
	}
}

func TestMarkNotifiedBatch(t *testing.T) {
	r := setupTestRepo(t)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	due := ptr(now.Add(-time.Minute))
	a := mustCreateTask(t, r, domain.Task{UserID: "u1", Title: "a", ReminderTime: due})
	b := mustCreateTask(t, r, domain.Task{UserID: "u1", Title: "b", ReminderTime: due})
	c := mustCreateTask(t, r, domain.Task{UserID: "u1", Title: "c", ReminderTime: due})

	n, err := r.MarkNotified(t.Context(), []string{a.ID, c.ID}, now)
	if err != nil {
		t.Fatalf("MarkNotified: %v", err)
	}
	if n != 2 {
		t.Errorf("rows affected = %d, want 2", n)
	}
	for id, want := range map[string]bool{a.ID: true, b.ID: false, c.ID: true} {
		got, err := r.GetTask(t.Context(), "u1", id)
		if err != nil {
			t.Fatalf("GetTask: %v", err)
		}
		if got.IsNotified != want {
			t.Errorf("task %s IsNotified = %v, want %v", id, got.IsNotified, want)
		}
	}

	if n, err := r.MarkNotified(t.Context(), nil, now); err != nil || n != 0 {
		t.Errorf("MarkNotified(nil) = %d, %v", n, err)
	}
}

func TestMarkNotifiedSkipsRescheduledReminders(t *testing.T) {
	r := setupTestRepo(t)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	moved := mustCreateTask(t, r, domain.Task{UserID: "u1", Title: "moved", ReminderTime: ptr(now.Add(time.Hour))})
	cleared := mustCreateTask(t, r, domain.Task{UserID: "u1", Title: "cleared"})

	n, err := r.MarkNotified(t.Context(), []string{moved.ID, cleared.ID}, now)
	if err != nil {
		t.Fatalf("MarkNotified: %v", err)
	}
	if n != 0 {
		t.Errorf("rows affected = %d, want 0", n)
	}
	for _, id := range []string{moved.ID, cleared.ID} {
		got, err := r.GetTask(t.Context(), "u1", id)
		if err != nil {
			t.Fatalf("GetTask: %v", err)
		}
		if got.IsNotified {
			t.Errorf("task %s marked notified", id)
		}
	}
}

func TestListTasksFiltersAndPaging(t *testing.T) {
	r := setupTestRepo(t)
	for i := 0; i < 12; i++ {
		mustCreateTask(t, r, domain.Task{UserID: "u1", Title: "task", Category: "Work"})
	}
	mustCreateTask(t, r, domain.Task{UserID: "u1", Title: "groceries 100%", Category: "Home", Priority: domain.PriorityHigh})

	tasks, total, err := r.ListTasks(t.Context(), TaskFilter{UserID: "u1", Page: 2, Limit: 5})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if total != 13 || len(tasks) != 5 {
		t.Errorf("page 2 = %d tasks of %d, want 5 of 13", len(tasks), total)
	}

	tasks, total, err = r.ListTasks(t.Context(), TaskFilter{UserID: "u1", Search: "100%"})
	if err != nil {
		t.Fatalf("ListTasks search: %v", err)
	}
	if total != 1 || tasks[0].Priority != domain.PriorityHigh {
		t.Errorf("search = %+v (total %d), want the groceries task", tasks, total)
	}

	_, total, err = r.ListTasks(t.Context(), TaskFilter{UserID: "u1", Category: "work", Archived: ptr(false)})
	if err != nil {
		t.Fatalf("ListTasks category: %v", err)
	}
	if total != 12 {
		t.Errorf("category total = %d, want 12", total)
	}
}

func TestListTasksDueRange(t *testing.T) {
	r := setupTestRepo(t)
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	mustCreateTask(t, r, domain.Task{UserID: "u1", Title: "early", DueDate: ptr(base.Add(-48 * time.Hour))})
	mid := mustCreateTask(t, r, domain.Task{UserID: "u1", Title: "mid", DueDate: ptr(base)})
	mustCreateTask(t, r, domain.Task{UserID: "u1", Title: "late", DueDate: ptr(base.Add(48 * time.Hour))})
	mustCreateTask(t, r, domain.Task{UserID: "u1", Title: "undated"})

	tests := []struct {
		name      string
		from, to  *time.Time
		wantTotal int
	}{
		{"from only", ptr(base), nil, 2},
		{"to only", nil, ptr(base), 2},
		{"inclusive window", ptr(base), ptr(base), 1},
		{"no bounds", nil, nil, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tasks, total, err := r.ListTasks(t.Context(), TaskFilter{UserID: "u1", DueFrom: tt.from, DueTo: tt.to})
			if err != nil {
				t.Fatalf("ListTasks: %v", err)
			}
			if total != tt.wantTotal {
				t.Errorf("total = %d, want %d", total, tt.wantTotal)
			}
			if tt.wantTotal == 1 && tasks[0].ID != mid.ID {
				t.Errorf("got %s, want the mid task", tasks[0].Title)
			}
		})
	}
}

func TestReorderTasks(t *testing.T) {
	r := setupTestRepo(t)
	a := mustCreateTask(t, r, domain.Task{UserID: "u1", Title: "a"})
	b := mustCreateTask(t, r, domain.Task{UserID: "u1", Title: "b"})
	c := mustCreateTask(t, r, domain.Task{UserID: "u1", Title: "c"})
	foreign := mustCreateTask(t, r, domain.Task{UserID: "u2", Title: "not mine"})

	n, err := r.ReorderTasks(t.Context(), "u1", []string{c.ID, foreign.ID, a.ID, b.ID})
	if err != nil {
		t.Fatalf("ReorderTasks: %v", err)
	}
	if n != 3 {
		t.Errorf("reordered = %d, want 3", n)
	}

	tasks, _, err := r.ListTasks(t.Context(), TaskFilter{UserID: "u1", SortBy: "order", Ascending: true})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	var got []string
	for _, task := range tasks {
		got = append(got, task.Title)
	}
	if strings.Join(got, ",") != "c,a,b" {
		t.Errorf("order = %v, want [c a b]", got)
	}

	other, err := r.GetTask(t.Context(), "u2", foreign.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if other.Order != foreign.Order {
		t.Errorf("foreign task order changed to %d", other.Order)
	}
}

func TestNotificationLifecycle(t *testing.T) {
	r := setupTestRepo(t)
	task := mustCreateTask(t, r, domain.Task{UserID: "u1", Title: "write report", Priority: domain.PriorityHigh})
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := r.CreateNotification(t.Context(), domain.Notification{
			UserID: "u1", TaskID: &task.ID, Message: "hello", Type: domain.TypeReminder,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("CreateNotification: %v", err)
		}
	}
	sys, err := r.CreateNotification(t.Context(), domain.Notification{UserID: "u1", Message: "welcome", Type: domain.TypeSystem})
	if err != nil {
		t.Fatalf("CreateNotification system: %v", err)
	}
	if _, err := r.CreateNotification(t.Context(), domain.Notification{UserID: "u1", Message: "x", Type: "bogus"}); err == nil {
		t.Error("expected error for unknown type")
	}

	page, err := r.ListNotifications(t.Context(), "u1", 1, 2)
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if page.Total != 4 || page.Unread != 4 || len(page.Notifications) != 2 || page.TotalPages() != 2 {
		t.Errorf("page = %+v", page)
	}
	if page.Notifications[0].ID != sys.ID {
		t.Errorf("newest first: got %s, want %s", page.Notifications[0].ID, sys.ID)
	}
	if page.Notifications[0].Task != nil {
		t.Errorf("system notification has task ref %+v", page.Notifications[0].Task)
	}
	if ref := page.Notifications[1].Task; ref == nil || ref.Title != "write report" || ref.Priority != domain.PriorityHigh {
		t.Errorf("task ref = %+v", ref)
	}

	read, err := r.MarkRead(t.Context(), "u1", sys.ID)
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if !read.IsRead {
		t.Error("MarkRead returned unread notification")
	}
	if _, err := r.MarkRead(t.Context(), "u2", sys.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkRead other user err = %v, want ErrNotFound", err)
	}
	if n, err := r.MarkAllRead(t.Context(), "u1"); err != nil || n != 3 {
		t.Errorf("MarkAllRead = %d, %v; want 3", n, err)
	}
	if err := r.DeleteNotification(t.Context(), "u1", sys.ID); err != nil {
		t.Fatalf("DeleteNotification: %v", err)
	}
	if err := r.DeleteNotification(t.Context(), "u1", sys.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
	if n, err := r.DeleteAllNotifications(t.Context(), "u1"); err != nil || n != 3 {
		t.Errorf("DeleteAllNotifications = %d, %v; want 3", n, err)
	}
}

func TestExistsSince(t *testing.T) {
	r := setupTestRepo(t)
	task := mustCreateTask(t, r, domain.Task{UserID: "u1", Title: "t"})
	created := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	if _, err := r.CreateNotification(t.Context(), domain.Notification{
		UserID: "u1", TaskID: &task.ID, Message: "late", Type: domain.TypeTaskOverdue, CreatedAt: created,
	}); err != nil {
		t.Fatalf("CreateNotification: %v", err)
	}

	tests := []struct {
		name   string
		user   string
		typ    domain.NotificationType
		since  time.Time
		exists bool
	}{
		{"same instant", "u1", domain.TypeTaskOverdue, created, true},
		{"earlier bound", "u1", domain.TypeTaskOverdue, created.Add(-time.Hour), true},
		{"later bound", "u1", domain.TypeTaskOverdue, created.Add(time.Millisecond), false},
		{"other type", "u1", domain.TypeReminder, created.Add(-time.Hour), false},
		{"other user", "u2", domain.TypeTaskOverdue, created.Add(-time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.ExistsSince(t.Context(), tt.user, task.ID, tt.typ, tt.since)
			if err != nil {
				t.Fatalf("ExistsSince: %v", err)
			}
			if got != tt.exists {
				t.Errorf("ExistsSince = %v, want %v", got, tt.exists)
			}
		})
	}
}
