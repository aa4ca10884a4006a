package domain

import "time"

// TaskPatch carries a partial task update. Nil fields are left untouched.
// For the two optional instants, Set distinguishes "clear" from "absent".
type TaskPatch struct {
	Title        *string
	Description  *string
	Category     *string
	Priority     *Priority
	Status       *TaskStatus
	DueDate      OptionalTime
	ReminderTime OptionalTime
}

type OptionalTime struct {
	Set   bool
	Value *time.Time
}

// Apply mutates t and reports whether the update moved the task from
// pending to completed.
//
// Reassigning the reminder (including clearing it) re-arms it by resetting
// IsNotified. Completing a pending task disarms any outstanding reminder.
func (p TaskPatch) Apply(t *Task) (completed bool) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Status != nil {
		if *p.Status == StatusCompleted && t.Status == StatusPending {
			t.IsNotified = true
			completed = true
		}
		t.Status = *p.Status
	}
	if p.DueDate.Set {
		t.DueDate = p.DueDate.Value
	}
	if p.ReminderTime.Set {
		t.ReminderTime = p.ReminderTime.Value
		t.IsNotified = false
	}
	return completed
}
