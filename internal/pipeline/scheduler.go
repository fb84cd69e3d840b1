package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrUnknownSession is returned when a trigger names an unconfigured session.
	ErrUnknownSession = errors.New("unknown session")
	// ErrRunInProgress is returned when the session is already running.
	ErrRunInProgress = errors.New("session run already in progress")
)

// Scheduler runs every configured session on a fixed interval and accepts
// ad-hoc triggers. A session never runs twice concurrently.
type Scheduler struct {
	runner   *Runner
	sessions []Session
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	running map[string]bool
	wg      sync.WaitGroup
}

// NewScheduler builds a Scheduler. A non-positive interval runs the
// sessions once when Start is called.
func NewScheduler(runner *Runner, sessions []Session, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		runner:   runner,
		sessions: sessions,
		interval: interval,
		logger:   logger.Named("scheduler"),
		running:  make(map[string]bool),
	}
}

// Sessions returns the configured session ids in run order.
func (s *Scheduler) Sessions() []string {
	ids := make([]string, 0, len(s.sessions))
	for _, sess := range s.sessions {
		ids = append(ids, sess.ID)
	}
	return ids
}

// Start runs all sessions immediately and then on every tick until ctx is
// done.
func (s *Scheduler) Start(ctx context.Context) {
	s.runAll(ctx)
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

// Trigger starts an asynchronous run of one session.
func (s *Scheduler) Trigger(ctx context.Context, id string) error {
	sess, ok := s.lookup(id)
	if !ok {
		return ErrUnknownSession
	}
	if !s.acquire(id) {
		return ErrRunInProgress
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(id)
		if _, err := s.runner.Run(ctx, sess); err != nil {
			s.logger.Error("triggered run failed", zap.String("session", id), zap.Error(err))
		}
	}()
	return nil
}

// Wait blocks until triggered runs finish.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) runAll(ctx context.Context) {
	for _, sess := range s.sessions {
		if ctx.Err() != nil {
			return
		}
		if !s.acquire(sess.ID) {
			s.logger.Info("skipping session already running", zap.String("session", sess.ID))
			continue
		}
		if _, err := s.runner.Run(ctx, sess); err != nil {
			s.logger.Error("scheduled run failed", zap.String("session", sess.ID), zap.Error(err))
		}
		s.release(sess.ID)
	}
}

func (s *Scheduler) lookup(id string) (Session, bool) {
	for _, sess := range s.sessions {
		if sess.ID == id {
			return sess, true
		}
	}
	return Session{}, false
}

func (s *Scheduler) acquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[id] {
		return false
	}
	s.running[id] = true
	return true
}

func (s *Scheduler) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, id)
}
