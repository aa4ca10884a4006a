// Package notify persists notifications and pushes them to live clients.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"taskpulse/internal/domain"
)

// EventNewNotification is the realtime event carrying a fresh notification.
const EventNewNotification = "new_notification"

type Store interface {
	CreateNotification(ctx context.Context, n domain.Notification) (domain.Notification, error)
}

type Emitter interface {
	Emit(userID, event string, payload any) bool
}

// Notifier is the single persist-then-push path shared by the scheduler and
// task handlers.
type Notifier struct {
	store   Store
	emitter Emitter
}

func New(store Store, emitter Emitter) *Notifier {
	return &Notifier{store: store, emitter: emitter}
}

// Payload is the wire form of a notification pushed to clients.
type Payload struct {
	Notification Wire `json:"notification"`
}

type Wire struct {
	ID        string                  `json:"id"`
	Message   string                  `json:"message"`
	Type      domain.NotificationType `json:"type"`
	Task      *domain.TaskRef         `json:"task"`
	IsRead    bool                    `json:"isRead"`
	CreatedAt time.Time               `json:"createdAt"`
}

func NewPayload(n domain.Notification, task *domain.Task) Payload {
	w := Wire{
		ID:        n.ID,
		Message:   n.Message,
		Type:      n.Type,
		IsRead:    false,
		CreatedAt: n.CreatedAt,
	}
	switch {
	case task != nil:
		w.Task = &domain.TaskRef{ID: task.ID, Title: task.Title, Priority: task.Priority}
	case n.TaskID != nil:
		w.Task = &domain.TaskRef{ID: *n.TaskID}
	}
	return Payload{Notification: w}
}

// Notify stores n and then attempts delivery to the owner's live channels.
// Only a persistence failure is returned; an offline user or a failed push
// is logged and otherwise ignored since the stored record stays fetchable.
func (s *Notifier) Notify(ctx context.Context, n domain.Notification, task *domain.Task) (domain.Notification, error) {
	if task != nil && n.TaskID == nil {
		n.TaskID = &task.ID
	}
	created, err := s.store.CreateNotification(ctx, n)
	if err != nil {
		log.Warn().Err(err).
			Str("user_id", n.UserID).
			Str("type", string(n.Type)).
			Msg("failed to create notification")
		return domain.Notification{}, err
	}
	s.push(created, task)
	return created, nil
}

func (s *Notifier) push(n domain.Notification, task *domain.Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("notification_id", n.ID).Msg("realtime push panicked")
		}
	}()
	delivered := s.emitter.Emit(n.UserID, EventNewNotification, NewPayload(n, task))
	log.Debug().
		Str("notification_id", n.ID).
		Str("user_id", n.UserID).
		Bool("delivered", delivered).
		Msg("notification pushed")
}
