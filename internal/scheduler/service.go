package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"taskpulse/internal/domain"
	"taskpulse/internal/store"
	"taskpulse/internal/worker"
)

const (
	ReminderSpec = "* * * * *"
	OverdueSpec  = "*/15 * * * *"
)

type Notifier interface {
	Notify(ctx context.Context, n domain.Notification, task *domain.Task) (domain.Notification, error)
}

type Service struct {
	tasks         store.TaskStore
	notifications store.NotificationStore
	notifier      Notifier
	pool          *worker.Pool
	now           func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	started bool
}

func NewService(tasks store.TaskStore, notifications store.NotificationStore, notifier Notifier, pool *worker.Pool) *Service {
	return &Service{
		tasks:         tasks,
		notifications: notifications,
		notifier:      notifier,
		pool:          pool,
		now:           time.Now,
	}
}

// Start registers the reminder and overdue jobs and starts the cron runner.
// It returns false without doing anything when the service already runs.
func (s *Service) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return false
	}

	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(time.Local),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(ReminderSpec, func() { s.runJob(ctx, "reminder", s.RunReminderPass) }); err != nil {
		log.Error().Err(err).Msg("register reminder job")
		return false
	}
	if _, err := c.AddFunc(OverdueSpec, func() { s.runJob(ctx, "overdue", s.RunOverduePass) }); err != nil {
		log.Error().Err(err).Msg("register overdue job")
		return false
	}
	c.Start()
	s.cron = c
	s.started = true

	log.Info().Str("reminder", ReminderSpec).Str("overdue", OverdueSpec).Msg("reminder and overdue jobs started")
	return true
}

// Stop halts the cron runner and waits for running passes or ctx. The
// service may be started again afterwards.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.started = false
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// Entries reports how many jobs are registered.
func (s *Service) Entries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return 0
	}
	return len(s.cron.Entries())
}

type PassResult struct {
	Scanned  int
	Notified int
	Skipped  int
	Failed   int
}

func (s *Service) runJob(ctx context.Context, pass string, run func(context.Context, time.Time) (PassResult, error)) {
	if ctx.Err() != nil {
		return
	}
	start := s.now()
	res, err := run(ctx, start)
	if err != nil {
		log.Warn().Err(err).Str("pass", pass).Msg("scheduler pass failed")
		return
	}
	if res.Scanned == 0 {
		return
	}
	log.Info().
		Str("pass", pass).
		Int("scanned", res.Scanned).
		Int("notified", res.Notified).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Dur("took", time.Since(start)).
		Msg("scheduler pass finished")
}

// RunReminderPass notifies every task whose reminder is due at now and then
// marks the successfully notified ones in a single batch. A crash before the
// batch update makes those reminders fire again on the next pass.
func (s *Service) RunReminderPass(ctx context.Context, now time.Time) (PassResult, error) {
	tasks, err := s.tasks.DueReminders(ctx, now)
	if err != nil {
		return PassResult{}, err
	}
	res := PassResult{Scanned: len(tasks)}
	if len(tasks) == 0 {
		return res, nil
	}

	errs := s.pool.Each(ctx, len(tasks), func(ctx context.Context, i int) error {
		task := tasks[i]
		_, err := s.notifier.Notify(ctx, domain.Notification{
			UserID:    task.UserID,
			TaskID:    &task.ID,
			Message:   fmt.Sprintf("Reminder: %q is due now!", task.Title),
			Type:      domain.TypeReminder,
			CreatedAt: now,
		}, &task)
		return err
	})

	ids := make([]string, 0, len(tasks))
	for i, err := range errs {
		if err != nil {
			res.Failed++
			log.Warn().Err(err).Str("task_id", tasks[i].ID).Msg("reminder notification failed")
			continue
		}
		ids = append(ids, tasks[i].ID)
	}
	res.Notified = len(ids)

	if _, err := s.tasks.MarkNotified(ctx, ids, now); err != nil {
		return res, fmt.Errorf("marking reminders notified: %w", err)
	}
	return res, nil
}

// RunOverduePass notifies overdue pending tasks, at most once per task per
// server-local calendar day.
func (s *Service) RunOverduePass(ctx context.Context, now time.Time) (PassResult, error) {
	tasks, err := s.tasks.OverdueTasks(ctx, now)
	if err != nil {
		return PassResult{}, err
	}
	res := PassResult{Scanned: len(tasks)}
	if len(tasks) == 0 {
		return res, nil
	}
	dayStart := StartOfDay(now)

	skipped := make([]bool, len(tasks))
	errs := s.pool.Each(ctx, len(tasks), func(ctx context.Context, i int) error {
		task := tasks[i]
		exists, err := s.notifications.ExistsSince(ctx, task.UserID, task.ID, domain.TypeTaskOverdue, dayStart)
		if err != nil {
			return err
		}
		if exists {
			skipped[i] = true
			return nil
		}
		_, err = s.notifier.Notify(ctx, domain.Notification{
			UserID:    task.UserID,
			TaskID:    &task.ID,
			Message:   fmt.Sprintf("Task %q is overdue!", task.Title),
			Type:      domain.TypeTaskOverdue,
			CreatedAt: now,
		}, &task)
		return err
	})

	for i, err := range errs {
		switch {
		case err != nil:
			res.Failed++
			log.Warn().Err(err).Str("task_id", tasks[i].ID).Msg("overdue notification failed")
		case skipped[i]:
			res.Skipped++
		default:
			res.Notified++
		}
	}
	return res, nil
}

// StartOfDay returns midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
