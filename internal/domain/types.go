package domain

import "time"

type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusCompleted TaskStatus = "completed"
)

func (s TaskStatus) Valid() bool {
	return s == StatusPending || s == StatusCompleted
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

type Task struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Category     string     `json:"category"`
	Priority     Priority   `json:"priority"`
	Status       TaskStatus `json:"status"`
	DueDate      *time.Time `json:"dueDate"`
	ReminderTime *time.Time `json:"reminderTime"`
	Order        int        `json:"order"`
	IsArchived   bool       `json:"isArchived"`
	IsDeleted    bool       `json:"-"`
	IsNotified   bool       `json:"isNotified"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// IsOverdue reports whether a pending task's due date has passed at now.
func (t Task) IsOverdue(now time.Time) bool {
	return t.Status == StatusPending && t.DueDate != nil && now.After(*t.DueDate)
}

type NotificationType string

const (
	TypeReminder      NotificationType = "reminder"
	TypeSystem        NotificationType = "system"
	TypeTaskCreated   NotificationType = "task_created"
	TypeTaskCompleted NotificationType = "task_completed"
	TypeTaskOverdue   NotificationType = "task_overdue"
)

func (t NotificationType) Valid() bool {
	switch t {
	case TypeReminder, TypeSystem, TypeTaskCreated, TypeTaskCompleted, TypeTaskOverdue:
		return true
	}
	return false
}

type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user"`
	TaskID    *string          `json:"taskId"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	IsRead    bool             `json:"isRead"`
	CreatedAt time.Time        `json:"createdAt"`

	// Task is only filled by list queries that join the owning task.
	Task *TaskRef `json:"task"`
}

// TaskRef is the slice of a task carried alongside a notification.
type TaskRef struct {
	ID       string   `json:"id"`
	Title    string   `json:"title,omitempty"`
	Priority Priority `json:"priority,omitempty"`
}
