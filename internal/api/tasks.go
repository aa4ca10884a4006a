package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"taskpulse/internal/auth"
	"taskpulse/internal/domain"
	"taskpulse/internal/store"
)

// optTime distinguishes an absent date field from an explicit clear
// (null or "").
type optTime struct {
	set   bool
	value *time.Time
}

func (o *optTime) UnmarshalJSON(b []byte) error {
	o.set = true
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("invalid date %q: want RFC 3339", s)
	}
	o.value = &t
	return nil
}

func (o optTime) domain() domain.OptionalTime {
	return domain.OptionalTime{Set: o.set, Value: o.value}
}

type taskReq struct {
	Title        *string            `json:"title"`
	Description  *string            `json:"description"`
	Category     *string            `json:"category"`
	Priority     *domain.Priority   `json:"priority"`
	Status       *domain.TaskStatus `json:"status"`
	DueDate      optTime            `json:"dueDate"`
	ReminderTime optTime            `json:"reminderTime"`
}

func (req taskReq) validate(create bool) string {
	if create && (req.Title == nil || strings.TrimSpace(*req.Title) == "") {
		return "Task title is required"
	}
	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			return "Task title cannot be empty"
		}
		if utf8.RuneCountInString(*req.Title) > 200 {
			return "Title cannot exceed 200 characters"
		}
	}
	if req.Description != nil && utf8.RuneCountInString(*req.Description) > 2000 {
		return "Description cannot exceed 2000 characters"
	}
	if req.Category != nil && utf8.RuneCountInString(*req.Category) > 50 {
		return "Category cannot exceed 50 characters"
	}
	if req.Priority != nil && !req.Priority.Valid() {
		return "Priority must be low, medium, or high"
	}
	if req.Status != nil && !req.Status.Valid() {
		return "Status must be pending or completed"
	}
	return ""
}

func (req taskReq) patch() domain.TaskPatch {
	p := domain.TaskPatch{
		Description:  req.Description,
		Category:     req.Category,
		Priority:     req.Priority,
		Status:       req.Status,
		DueDate:      req.DueDate.domain(),
		ReminderTime: req.ReminderTime.domain(),
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		p.Title = &title
	}
	return p
}

func decodeTaskReq(w http.ResponseWriter, r *http.Request, create bool) (taskReq, bool) {
	var req taskReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return req, false
	}
	if msg := req.validate(create); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return req, false
	}
	return req, true
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTaskReq(w, r, true)
	if !ok {
		return
	}
	task := domain.Task{UserID: auth.UserID(r.Context()), Status: domain.StatusPending}
	req.patch().Apply(&task)

	task, err := s.repo.CreateTask(r.Context(), task)
	if err != nil {
		writeStoreError(w, r, err, "")
		return
	}
	s.notify(r, task, domain.TypeTaskCreated, fmt.Sprintf("Task %q was created.", task.Title))

	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "message": "Task created.", "task": task})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.repo.GetTask(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err, "Task not found or access denied.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "task": task})
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.repo.GetTask(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err, "Task not found or access denied.")
		return
	}
	req, ok := decodeTaskReq(w, r, false)
	if !ok {
		return
	}

	completed := req.patch().Apply(&task)
	if err := s.repo.UpdateTask(r.Context(), task); err != nil {
		writeStoreError(w, r, err, "Task not found or access denied.")
		return
	}
	if completed {
		s.notify(r, task, domain.TypeTaskCompleted, fmt.Sprintf("Task %q completed! Great work!", task.Title))
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Task updated.", "task": task})
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.SoftDeleteTask(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, r, err, "Task not found or access denied.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Task deleted."})
}

func (s *Server) toggleArchive(w http.ResponseWriter, r *http.Request) {
	task, err := s.repo.GetTask(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err, "Task not found or access denied.")
		return
	}
	task.IsArchived = !task.IsArchived
	if err := s.repo.UpdateTask(r.Context(), task); err != nil {
		writeStoreError(w, r, err, "Task not found or access denied.")
		return
	}
	msg := "Task unarchived."
	if task.IsArchived {
		msg = "Task archived."
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": msg, "task": task})
}

func (s *Server) reorderTasks(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderedIDs []string `json:"orderedIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderedIDs == nil {
		writeError(w, http.StatusBadRequest, "orderedIds must be an array.")
		return
	}
	if _, err := s.repo.ReorderTasks(r.Context(), auth.UserID(r.Context()), req.OrderedIDs); err != nil {
		writeStoreError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Tasks reordered."})
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.TaskFilter{
		UserID:    auth.UserID(r.Context()),
		Status:    domain.TaskStatus(q.Get("status")),
		Priority:  domain.Priority(q.Get("priority")),
		Category:  q.Get("category"),
		Search:    q.Get("search"),
		SortBy:    q.Get("sortBy"),
		Ascending: q.Get("sortOrder") == "asc",
	}
	for param, dst := range map[string]**time.Time{"startDate": &f.DueFrom, "endDate": &f.DueTo} {
		v := q.Get(param)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be an RFC 3339 date.", param))
			return
		}
		*dst = &t
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	if v := q.Get("isArchived"); v != "" {
		archived := v == "true"
		f.Archived = &archived
	}

	tasks, total, err := s.repo.ListTasks(r.Context(), f)
	if err != nil {
		writeStoreError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"tasks":      tasks,
		"pagination": pagination(total, f.Page, f.Limit, 10),
	})
}

func pagination(total, page, limit, def int) map[string]any {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = def
	}
	if limit > 50 {
		limit = 50
	}
	pages := (total + limit - 1) / limit
	return map[string]any{
		"total":      total,
		"page":       page,
		"limit":      limit,
		"totalPages": pages,
		"hasNext":    page < pages,
		"hasPrev":    page > 1,
	}
}
