package taskset

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultPoll = 3 * time.Second

// Task is a named long-running function run under a Set.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Set supervises named long-running goroutines, typically client run
// loops and credential refresh loops. Tasks are independent: one task
// failing or panicking never cancels its siblings.
type Set struct {
	mu     sync.Mutex
	tasks  map[string]*entry
	wg     sync.WaitGroup
	logger zerolog.Logger
	poll   time.Duration
}

type entry struct {
	cancel context.CancelFunc
}

// New creates an empty task set.
func New() *Set {
	return &Set{
		tasks:  make(map[string]*entry),
		logger: zerolog.Nop(),
		poll:   defaultPoll,
	}
}

// SetLogger replaces the logger used for task lifecycle events.
func (s *Set) SetLogger(logger zerolog.Logger) {
	s.mu.Lock()
	s.logger = logger
	s.mu.Unlock()
}

// Add starts fn in its own goroutine under the given name. A running task
// with the same name is cancelled and replaced.
func (s *Set) Add(ctx context.Context, name string, fn func(context.Context) error) {
	tctx, cancel := context.WithCancel(ctx)
	e := &entry{cancel: cancel}

	s.mu.Lock()
	if old, ok := s.tasks[name]; ok {
		old.cancel()
	}
	s.tasks[name] = e
	logger := s.logger
	s.mu.Unlock()

	logger.Info().Str("task", name).Msg("task started")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Error().Str("task", name).Any("panic", r).Msg("task panicked")
			}
			s.drop(name, e)
		}()

		err := fn(tctx)
		switch {
		case err == nil:
			logger.Info().Str("task", name).Msg("task finished")
		case errors.Is(err, context.Canceled):
			logger.Info().Str("task", name).Msg("task cancelled")
		default:
			logger.Error().Err(err).Str("task", name).Msg("task failed")
		}
	}()
}

// AddTask starts t under the set.
func (s *Set) AddTask(ctx context.Context, t Task) {
	s.Add(ctx, t.Name, t.Run)
}

// Remove cancels the named task. The entry leaves the set when the task's
// function returns.
func (s *Set) Remove(name string) {
	s.mu.Lock()
	e, ok := s.tasks[name]
	logger := s.logger
	s.mu.Unlock()

	if ok {
		logger.Info().Str("task", name).Msg("task removal requested")
		e.cancel()
	}
}

// Len returns the number of tasks currently in the set.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Names returns the names of the tasks currently in the set.
func (s *Set) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	return names
}

// Run blocks until the set is found empty on a poll or the context is
// cancelled. Tasks may keep being added while running; Run only returns
// once nothing remains.
func (s *Set) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if s.Len() == 0 {
				return nil
			}
		}
	}
}

// Shutdown cancels every task and waits for all goroutines to exit.
func (s *Set) Shutdown() {
	s.mu.Lock()
	n := len(s.tasks)
	for _, e := range s.tasks {
		e.cancel()
	}
	logger := s.logger
	s.mu.Unlock()

	if n > 0 {
		logger.Info().Int("tasks", n).Msg("task set shutting down")
	}
	s.wg.Wait()
}

func (s *Set) drop(name string, e *entry) {
	s.mu.Lock()
	if cur, ok := s.tasks[name]; ok && cur == e {
		delete(s.tasks, name)
	}
	s.mu.Unlock()
}
