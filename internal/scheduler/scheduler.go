// Package scheduler runs periodic maintenance: dropping idle conversations
// and pruning old chat messages.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/chris/taskbot/internal/db"
	"github.com/chris/taskbot/internal/memory"
)

const (
	pruneSpec    = "@daily"
	pruneTimeout = time.Minute
)

type Config struct {
	SweepCron     string        // when to sweep idle conversations
	IdleAfter     time.Duration // conversations idle longer than this are dropped
	RetentionDays int           // chat messages older than this are deleted; 0 keeps them
}

type Scheduler struct {
	cron   *cron.Cron
	cfg    Config
	convs  *memory.Store
	db     *db.DB
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	entryIDs []cron.EntryID
}

func New(cfg Config, convs *memory.Store, database *db.DB, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		cfg:    cfg,
		convs:  convs,
		db:     database,
		logger: logger,
		now:    time.Now,
	}
}

// Start registers the jobs and starts the cron runner.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.SweepCron != "" && s.cfg.IdleAfter > 0 {
		id, err := s.cron.AddFunc(s.cfg.SweepCron, func() { s.SweepConversations() })
		if err != nil {
			return fmt.Errorf("scheduler: invalid sweep cron %q: %w", s.cfg.SweepCron, err)
		}
		s.entryIDs = append(s.entryIDs, id)
	}
	if s.cfg.RetentionDays > 0 && s.db != nil {
		id, err := s.cron.AddFunc(pruneSpec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
			defer cancel()
			if _, err := s.PruneChatLog(ctx); err != nil {
				s.logger.Error("scheduler: pruning chat log", "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("scheduler: adding prune job: %w", err)
		}
		s.entryIDs = append(s.entryIDs, id)
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.entryIDs))
	return nil
}

// Stop halts the runner and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Jobs reports how many jobs are registered.
func (s *Scheduler) Jobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entryIDs)
}

func (s *Scheduler) SweepConversations() int {
	n := s.convs.Sweep(s.cfg.IdleAfter)
	if n > 0 {
		s.logger.Info("scheduler: dropped idle conversations", "count", n, "remaining", s.convs.Len())
	}
	return n
}

// PruneChatLog deletes persisted chat messages older than the retention window.
func (s *Scheduler) PruneChatLog(ctx context.Context) (int64, error) {
	cutoff := s.now().AddDate(0, 0, -s.cfg.RetentionDays)
	var n int64
	err := s.db.WithSession(ctx, func(sess *db.Session) error {
		var err error
		n, err = sess.PruneChatMessages(ctx, cutoff)
		return err
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("scheduler: pruned chat messages", "count", n, "before", cutoff.Format(time.DateOnly))
	}
	return n, nil
}
