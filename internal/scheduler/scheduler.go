// Package scheduler runs the outer selection loop: it picks pending queue
// entries by priority, enforces the per-user daily cap, and dispatches each
// selected entry through its own wake-up/handoff sequence. Priority is an
// advisory hint, not an enforced order, and concurrent dispatches share no
// in-memory state beyond the bookkeeping here.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gildigital/aijobapply/internal/dispatch"
	"github.com/gildigital/aijobapply/internal/logging"
	"github.com/gildigital/aijobapply/internal/models"
	"github.com/gildigital/aijobapply/internal/storage"
	"github.com/gildigital/aijobapply/internal/types"
)

// QueueStore is the queue surface the scheduler reads and parks entries in.
type QueueStore interface {
	ListByStatus(ctx context.Context, status types.QueueStatus, limit int) ([]*models.QueueEntry, error)
	MarkStandby(ctx context.Context, queueID int64) error
	ReleaseStandby(ctx context.Context, parkedBefore time.Time) ([]*models.QueueEntry, error)
}

// Dispatcher hands one entry to the worker pool.
type Dispatcher interface {
	Dispatch(ctx context.Context, entry *models.QueueEntry) error
}

// CapTracker gates dispatches on the per-user daily submission limit.
type CapTracker interface {
	Reserve(ctx context.Context, userID int64, cap int) (bool, error)
	Release(ctx context.Context, userID int64) error
}

// EventSink records submission audit events.
type EventSink interface {
	Append(ctx context.Context, queueID, userID int64, event, detail string) error
}

// Config holds scheduler tuning.
type Config struct {
	// DailyCap is the per-user daily application limit.
	DailyCap int
	// MaxConcurrent bounds simultaneous dispatch sequences.
	MaxConcurrent int
	// PollInterval is how often pending entries are selected.
	PollInterval time.Duration
	// SelectionBatch is how many pending entries are loaded per cycle.
	SelectionBatch int
}

// Scheduler periodically selects and dispatches pending entries.
type Scheduler struct {
	queue      QueueStore
	dispatcher Dispatcher
	caps       CapTracker
	events     EventSink
	cfg        Config
	logger     *logging.Logger

	mu       sync.Mutex
	stopped  bool
	stopCh   chan struct{}
	sem      chan struct{}
	inflight map[int64]struct{}
}

// New creates a scheduler.
func New(queue QueueStore, dispatcher Dispatcher, caps CapTracker, events EventSink, cfg Config, logger *logging.Logger) *Scheduler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.SelectionBatch <= 0 {
		cfg.SelectionBatch = 20
	}

	return &Scheduler{
		queue:      queue,
		dispatcher: dispatcher,
		caps:       caps,
		events:     events,
		cfg:        cfg,
		logger:     logger,
		stopped:    true,
		stopCh:     make(chan struct{}),
		sem:        make(chan struct{}, cfg.MaxConcurrent),
		inflight:   make(map[int64]struct{}),
	}
}

// Start begins the selection loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if !s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	s.stopped = false
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	go s.run(ctx)
	return nil
}

// Stop halts the selection loop. In-flight dispatches finish on their own.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler already stopped")
	}
	close(s.stopCh)
	s.stopped = true
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Cycle(ctx)
		}
	}
}

// Cycle performs one selection pass: release expired standby entries, load
// pending entries, and dispatch them in priority order while capacity and
// caps allow.
func (s *Scheduler) Cycle(ctx context.Context) {
	if released, err := s.queue.ReleaseStandby(ctx, startOfUTCDay(time.Now())); err != nil {
		s.logger.WithError(err).Warn("Failed to release standby entries")
	} else if len(released) > 0 {
		for _, entry := range released {
			s.appendEvent(ctx, entry, storage.EventReleased, "daily window reset")
		}
		s.logger.Infof("Released %d standby entries into pending", len(released))
	}

	entries, err := s.queue.ListByStatus(ctx, types.QueuePending, s.cfg.SelectionBatch)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load pending entries")
		return
	}

	pq := make(priorityQueue, 0, len(entries))
	heap.Init(&pq)
	for _, entry := range entries {
		heap.Push(&pq, &queueItem{entry: entry, priority: entry.Priority})
	}

	for pq.Len() > 0 {
		select {
		case s.sem <- struct{}{}:
		default:
			return // no dispatch capacity this cycle
		}

		entry := heap.Pop(&pq).(*queueItem).entry

		s.mu.Lock()
		if _, busy := s.inflight[entry.ID]; busy {
			s.mu.Unlock()
			<-s.sem
			continue
		}
		s.inflight[entry.ID] = struct{}{}
		s.mu.Unlock()

		ok, err := s.caps.Reserve(ctx, entry.UserID, s.cfg.DailyCap)
		if err != nil {
			s.logger.WithError(err).Errorf("Cap check failed for queue entry %d", entry.ID)
			s.finish(entry.ID)
			continue
		}
		if !ok {
			s.park(ctx, entry)
			s.finish(entry.ID)
			continue
		}

		go func(entry *models.QueueEntry) {
			defer s.finish(entry.ID)

			if err := s.dispatcher.Dispatch(ctx, entry); err != nil {
				// The attempt ended without a submission; return its slot.
				// That covers entries a callback finalized before the
				// handoff could claim them too.
				if relErr := s.caps.Release(ctx, entry.UserID); relErr != nil {
					s.logger.WithError(relErr).Warn("Failed to release daily-cap slot")
				}
				if errors.Is(err, dispatch.ErrAlreadyFinalized) {
					s.logger.Infof("Queue entry %d finalized before handoff, slot returned", entry.ID)
				} else {
					s.logger.WithError(err).Errorf("Dispatch failed for queue entry %d", entry.ID)
				}
			}
		}(entry)
	}
}

// park moves an over-cap entry to standby so it survives until the next
// eligibility window instead of failing.
func (s *Scheduler) park(ctx context.Context, entry *models.QueueEntry) {
	if err := s.queue.MarkStandby(ctx, entry.ID); err != nil {
		s.logger.WithError(err).Errorf("Failed to park queue entry %d", entry.ID)
		return
	}
	s.appendEvent(ctx, entry, storage.EventStandby, "daily application limit reached")
	s.logger.WithFields(map[string]interface{}{
		"queueId": entry.ID,
		"userId":  entry.UserID,
	}).Info("Entry parked in standby: daily cap reached")
}

func (s *Scheduler) appendEvent(ctx context.Context, entry *models.QueueEntry, event, detail string) {
	if s.events == nil {
		return
	}
	if err := s.events.Append(ctx, entry.ID, entry.UserID, event, detail); err != nil {
		s.logger.WithError(err).Warn("Failed to append submission event")
	}
}

func (s *Scheduler) finish(queueID int64) {
	s.mu.Lock()
	delete(s.inflight, queueID)
	s.mu.Unlock()
	<-s.sem
}

// Active returns the number of in-flight dispatches.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

func startOfUTCDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// queueItem is one entry in the selection heap.
type queueItem struct {
	entry    *models.QueueEntry
	priority int
	index    int
}

// priorityQueue implements heap.Interface; higher priority pops first.
type priorityQueue []*queueItem

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	return pq[i].priority > pq[j].priority
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x interface{}) {
	n := len(*pq)
	item := x.(*queueItem)
	item.index = n
	*pq = append(*pq, item)
}

func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[0 : n-1]
	return item
}
