package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"taskpulse/internal/auth"
)

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	res, err := s.repo.ListNotifications(r.Context(), auth.UserID(r.Context()), page, limit)
	if err != nil {
		writeStoreError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"notifications": res.Notifications,
		"unreadCount":   res.Unread,
		"pagination": map[string]any{
			"total":      res.Total,
			"page":       res.Page,
			"limit":      res.Limit,
			"totalPages": res.TotalPages(),
		},
	})
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	n, err := s.repo.MarkRead(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err, "Notification not found.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "notification": n})
}

func (s *Server) markAllRead(w http.ResponseWriter, r *http.Request) {
	if _, err := s.repo.MarkAllRead(r.Context(), auth.UserID(r.Context())); err != nil {
		writeStoreError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "All notifications marked as read."})
}

func (s *Server) deleteNotification(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.DeleteNotification(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, r, err, "Notification not found.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Notification deleted."})
}

func (s *Server) deleteAllNotifications(w http.ResponseWriter, r *http.Request) {
	if _, err := s.repo.DeleteAllNotifications(r.Context(), auth.UserID(r.Context())); err != nil {
		writeStoreError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "All notifications cleared."})
}
