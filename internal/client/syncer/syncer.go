// Package syncer drains the client's durable mutation queue to the server:
// it batches pending entries, submits them with bounded concurrency, and
// drives the retry/backoff state machine when transfers fail.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/paperkeep/paperkeep/internal/client/store"
	"github.com/paperkeep/paperkeep/internal/models"
)

// State is the syncer's observable lifecycle state.
type State string

const (
	// StateIdle means no sync has run yet.
	StateIdle State = "idle"
	// StateSyncing means a drain is in flight.
	StateSyncing State = "syncing"
	// StateSynced means the last drain emptied the queue.
	StateSynced State = "synced"
	// StatePendingRetry means a failed drain is scheduled to retry.
	StatePendingRetry State = "pending-retry"
	// StateOffline means connectivity is gone; nothing is scheduled.
	StateOffline State = "offline"
	// StateError means the retry budget is exhausted; only a manual
	// trigger restarts syncing.
	StateError State = "error"
)

// ErrOffline is returned when a drain is requested without connectivity.
var ErrOffline = errors.New("client is offline")

// Status is the snapshot exposed to UI sync-status indicators.
type Status struct {
	State        State
	PendingCount int
	LastSyncedAt time.Time
	Attempts     int
	LastError    string
}

// Options configures a Syncer. Zero values pick the defaults.
type Options struct {
	// BatchSize bounds how many queue entries travel in one request.
	// Keeping it small bounds the blast radius of a failing item and, with
	// the response's error cap, guarantees every failed item is reported
	// back by id.
	BatchSize int
	// MaxInflight caps concurrently submitted batches.
	MaxInflight int
	// MaxAttempts caps consecutive failed drains before the terminal
	// error state.
	MaxAttempts int
	// Backoff is the delay sequence between retries; the last value
	// repeats.
	Backoff []time.Duration
	// Debounce delays a drain after a new mutation while online.
	Debounce time.Duration
	// Clock supplies time and timers; tests inject a fake.
	Clock Clock
}

// Syncer owns the drain loop and the retry/backoff state machine. All
// triggers collapse into a single in-flight drain.
type Syncer struct {
	store     *store.Store
	transport Transport
	log       *zap.Logger

	batchSize   int
	maxInflight int
	maxAttempts int
	backoff     []time.Duration
	debounce    time.Duration
	clock       Clock

	mu            sync.Mutex
	draining      bool
	dirty         bool
	online        bool
	state         State
	attempts      int
	lastError     string
	retryTimer    Timer
	debounceTimer Timer
	onStatus      func(Status)
}

// New constructs a Syncer over the given store and transport.
func New(st *store.Store, transport Transport, log *zap.Logger, opts Options) *Syncer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if opts.MaxInflight <= 0 {
		opts.MaxInflight = 2
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if len(opts.Backoff) == 0 {
		opts.Backoff = []time.Duration{5 * time.Second, 15 * time.Second, 30 * time.Second, 60 * time.Second}
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 2 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	return &Syncer{
		store:       st,
		transport:   transport,
		log:         log,
		batchSize:   opts.BatchSize,
		maxInflight: opts.MaxInflight,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		debounce:    opts.Debounce,
		clock:       opts.Clock,
		state:       StateIdle,
	}
}

// OnStatus registers a callback invoked after every state change.
func (s *Syncer) OnStatus(fn func(Status)) {
	s.mu.Lock()
	s.onStatus = fn
	s.mu.Unlock()
}

// Status returns the current observable snapshot.
func (s *Syncer) Status() Status {
	count, _ := s.store.PendingCount(context.Background())
	last, _ := s.store.LastSyncedAt(context.Background())
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		State:        s.state,
		PendingCount: count,
		LastSyncedAt: last,
		Attempts:     s.attempts,
		LastError:    s.lastError,
	}
}

// SetOnline feeds the connectivity signal. Going offline cancels scheduled
// work; an in-flight drain is left to finish or fail naturally. Coming back
// online resets the retry budget and drains immediately.
func (s *Syncer) SetOnline(online bool) {
	s.mu.Lock()
	if s.online == online {
		s.mu.Unlock()
		return
	}
	s.online = online
	if !online {
		s.stopTimersLocked()
		s.state = StateOffline
		s.mu.Unlock()
		s.notify()
		return
	}
	s.attempts = 0
	s.lastError = ""
	s.state = StateIdle
	s.mu.Unlock()
	s.notify()
	go func() { _ = s.Drain(context.Background()) }()
}

// TriggerSync is the manual entry point. It resets the attempt counter, so
// a user tap recovers from the terminal error state.
func (s *Syncer) TriggerSync(ctx context.Context) error {
	s.mu.Lock()
	s.attempts = 0
	s.lastError = ""
	if s.state == StateError {
		s.state = StateIdle
	}
	s.mu.Unlock()
	return s.Drain(ctx)
}

// NotifyMutation schedules a debounced drain after a local mutation while
// online. Offline mutations just accumulate in the queue.
func (s *Syncer) NotifyMutation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.online {
		return
	}
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}
	s.debounceTimer = s.clock.AfterFunc(s.debounce, func() {
		_ = s.Drain(context.Background())
	})
}

// Drain transfers all currently pending queue entries. A trigger arriving
// while a drain is in flight collapses into it and marks the queue dirty, so
// entries enqueued after the in-flight snapshot are picked up by one more
// drain right after it succeeds.
func (s *Syncer) Drain(ctx context.Context) error {
	s.mu.Lock()
	if s.draining {
		s.dirty = true
		s.mu.Unlock()
		return nil
	}
	if !s.online {
		s.mu.Unlock()
		return ErrOffline
	}
	s.draining = true
	s.state = StateSyncing
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	s.mu.Unlock()
	s.notify()

	pending, err := s.store.ListPending(ctx)
	if err != nil {
		s.endDrain()
		s.failDrain(err.Error())
		return err
	}
	if len(pending) == 0 {
		s.endDrain()
		s.finishDrain(ctx)
		if s.takeDirty() {
			return s.Drain(ctx)
		}
		return nil
	}

	s.log.Info("draining queue", zap.Int("pending", len(pending)))

	var (
		wg      sync.WaitGroup
		failMu  sync.Mutex
		failMsg string
	)
	sem := make(chan struct{}, s.maxInflight)
	for start := 0; start < len(pending); start += s.batchSize {
		end := min(start+s.batchSize, len(pending))
		batch := pending[start:end]
		wg.Add(1)
		sem <- struct{}{}
		go func(batch []models.QueueEntry) {
			defer wg.Done()
			defer func() { <-sem }()
			if failed, msg := s.submitBatch(ctx, batch); failed {
				failMu.Lock()
				if failMsg == "" {
					failMsg = msg
				}
				failMu.Unlock()
			}
		}(batch)
	}
	wg.Wait()

	s.endDrain()
	if failMsg != "" {
		s.failDrain(failMsg)
		return nil
	}
	s.finishDrain(ctx)
	if s.takeDirty() {
		return s.Drain(ctx)
	}
	return nil
}

// takeDirty reports and clears the re-drain mark left by triggers that
// arrived while a drain was in flight. A failed drain leaves the mark to its
// scheduled retry, which snapshots the queue afresh anyway.
func (s *Syncer) takeDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	dirty := s.dirty
	s.dirty = false
	return dirty && s.online
}

// submitBatch sends one batch and settles its entries: acked entries leave
// the queue, failed ones stay with an incremented retry count.
func (s *Syncer) submitBatch(ctx context.Context, batch []models.QueueEntry) (failed bool, msg string) {
	items := make([]models.BatchItem, len(batch))
	for i, e := range batch {
		items[i] = models.BatchItem{
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			Operation:  e.Operation,
			Data:       e.Payload,
		}
	}

	resp, err := s.transport.SendBatch(ctx, items)
	if err != nil {
		// Whole-batch failure: every item stays queued, each counting
		// one attempt.
		for _, e := range batch {
			if rerr := s.store.RecordFailure(ctx, e.EntityType, e.EntityID, err.Error()); rerr != nil {
				s.log.Error("record failure", zap.Error(rerr))
			}
		}
		return true, err.Error()
	}

	failedItems := parseItemErrors(resp.Errors)
	if resp.Failed > len(failedItems) {
		// More failures than reported ids; without knowing which items
		// failed, nothing can be safely acked.
		for _, e := range batch {
			_ = s.store.RecordFailure(ctx, e.EntityType, e.EntityID, "unreported batch failure")
		}
		return true, fmt.Sprintf("%d of %d items failed", resp.Failed, resp.Total)
	}

	for _, e := range batch {
		key := string(e.EntityType) + "/" + e.EntityID
		if cause, ok := failedItems[key]; ok {
			if rerr := s.store.RecordFailure(ctx, e.EntityType, e.EntityID, cause); rerr != nil {
				s.log.Error("record failure", zap.Error(rerr))
			}
			continue
		}
		if aerr := s.store.Ack(ctx, e.EntityType, e.EntityID); aerr != nil {
			s.log.Error("ack", zap.Error(aerr))
		}
	}

	if resp.Failed > 0 {
		return true, fmt.Sprintf("%d of %d items failed", resp.Failed, resp.Total)
	}
	return false, ""
}

// parseItemErrors maps "entityType/entityId" to the failure message from
// the response's error strings.
func parseItemErrors(errs []string) map[string]string {
	failed := make(map[string]string, len(errs))
	for _, e := range errs {
		parts := strings.SplitN(e, ": ", 2)
		if len(parts) != 2 {
			continue
		}
		failed[parts[0]] = parts[1]
	}
	return failed
}

func (s *Syncer) endDrain() {
	s.mu.Lock()
	s.draining = false
	s.mu.Unlock()
}

// finishDrain records a fully successful drain.
func (s *Syncer) finishDrain(ctx context.Context) {
	now := s.clock.Now()
	if err := s.store.SetLastSyncedAt(ctx, now); err != nil {
		s.log.Error("persist last synced at", zap.Error(err))
	}
	s.mu.Lock()
	s.attempts = 0
	s.lastError = ""
	if s.online {
		s.state = StateSynced
	} else {
		s.state = StateOffline
	}
	s.mu.Unlock()
	s.notify()
}

// failDrain counts a failed drain and either schedules the next retry or,
// past the attempt cap, parks in the terminal error state.
func (s *Syncer) failDrain(cause string) {
	s.mu.Lock()
	s.lastError = cause
	s.attempts++
	if !s.online {
		s.state = StateOffline
		s.mu.Unlock()
		s.notify()
		return
	}
	if s.attempts >= s.maxAttempts {
		s.state = StateError
		s.mu.Unlock()
		s.log.Warn("sync retries exhausted", zap.String("cause", cause))
		s.notify()
		return
	}
	delay := s.backoff[min(s.attempts-1, len(s.backoff)-1)]
	s.state = StatePendingRetry
	s.retryTimer = s.clock.AfterFunc(delay, func() {
		_ = s.Drain(context.Background())
	})
	s.mu.Unlock()
	s.log.Info("sync failed, retry scheduled",
		zap.String("cause", cause), zap.Duration("delay", delay))
	s.notify()
}

func (s *Syncer) stopTimersLocked() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
		s.debounceTimer = nil
	}
}

func (s *Syncer) notify() {
	s.mu.Lock()
	fn := s.onStatus
	s.mu.Unlock()
	if fn != nil {
		fn(s.Status())
	}
}
