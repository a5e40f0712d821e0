package workspace

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/user/urbanflow/internal/types"
)

// Queue serializes intents per session while a global semaphore caps
// concurrency across sessions. Each session gets its own FIFO lane so that
// one user intent's follow-up chain finishes before the next begins; no two
// intents for the same session ever interleave their log appends.
type Queue struct {
	lanes     map[types.SessionID]chan func(context.Context)
	semaphore *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewQueue creates a Queue allowing up to maxConcurrent intents to execute
// simultaneously across all session lanes.
func NewQueue(maxConcurrent int64) *Queue {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Queue{
		lanes:     make(map[types.SessionID]chan func(context.Context)),
		semaphore: semaphore.NewWeighted(maxConcurrent),
	}
}

// Start initialises the queue's context. Submit and Do fail until it has
// been called.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.mu.Unlock()
}

// Stop cancels the queue context, closes all lanes, and waits for in-flight
// intents to finish.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Lock()
	for _, lane := range q.lanes {
		close(lane)
	}
	q.lanes = make(map[types.SessionID]chan func(context.Context))
	q.mu.Unlock()
	q.wg.Wait()
}

// Submit enqueues fn on the session's lane, creating the lane (and its
// goroutine) on first use. Returns an error if the queue has not been
// started or the lane's buffer is full.
func (q *Queue) Submit(sessionID types.SessionID, fn func(context.Context)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ctx == nil {
		return fmt.Errorf("intent queue not started")
	}

	lane, exists := q.lanes[sessionID]
	if !exists {
		lane = make(chan func(context.Context), 64)
		q.lanes[sessionID] = lane
		q.wg.Add(1)
		go q.drain(q.ctx, lane)
	}

	select {
	case lane <- fn:
		return nil
	default:
		return fmt.Errorf("intent queue full for session %s", sessionID)
	}
}

// Do enqueues fn and blocks until it has run, returning early if the queue
// shuts down first.
func (q *Queue) Do(sessionID types.SessionID, fn func(context.Context)) error {
	done := make(chan struct{})
	err := q.Submit(sessionID, func(ctx context.Context) {
		defer close(done)
		fn(ctx)
	})
	if err != nil {
		return err
	}
	q.mu.Lock()
	ctx := q.ctx
	q.mu.Unlock()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) drain(ctx context.Context, lane chan func(context.Context)) {
	defer q.wg.Done()
	for {
		select {
		case fn, ok := <-lane:
			if !ok {
				return
			}
			if err := q.semaphore.Acquire(ctx, 1); err != nil {
				return
			}
			fn(ctx)
			q.semaphore.Release(1)
		case <-ctx.Done():
			return
		}
	}
}
