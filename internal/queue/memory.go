package queue

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/argus-advisory/advisor-cli/internal/model"
)

// MemoryQueue is an in-process Queue for local runs and tests. Received
// messages stay in flight until deleted; an undeleted message is
// redelivered on a later Receive, mirroring at-least-once semantics.
type MemoryQueue struct {
	mu       sync.Mutex
	pending  []model.JobMessage
	inflight map[string]model.JobMessage
	seq      int
	notify   chan struct{}
}

// NewMemory creates an empty in-memory queue.
func NewMemory() *MemoryQueue {
	return &MemoryQueue{
		inflight: make(map[string]model.JobMessage),
		notify:   make(chan struct{}, 1),
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, msg model.JobMessage) error {
	q.mu.Lock()
	q.pending = append(q.pending, msg)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

func (q *MemoryQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]Delivery, error) {
	if max <= 0 {
		max = 1
	}

	deadline := time.Now().Add(wait)
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			n := max
			if n > len(q.pending) {
				n = len(q.pending)
			}
			deliveries := make([]Delivery, 0, n)
			for _, msg := range q.pending[:n] {
				q.seq++
				receipt := "mem-" + strconv.Itoa(q.seq)
				q.inflight[receipt] = msg
				deliveries = append(deliveries, Delivery{Receipt: receipt, Message: msg})
			}
			q.pending = q.pending[n:]
			q.mu.Unlock()
			return deliveries, nil
		}
		q.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}

		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-q.notify:
			timer.Stop()
		case <-timer.C:
			return nil, nil
		}
	}
}

func (q *MemoryQueue) Delete(_ context.Context, receipt string) error {
	q.mu.Lock()
	delete(q.inflight, receipt)
	q.mu.Unlock()
	return nil
}

// Redeliver returns every in-flight message to the pending list. Tests use
// it to simulate visibility timeout expiry.
func (q *MemoryQueue) Redeliver() {
	q.mu.Lock()
	for receipt, msg := range q.inflight {
		q.pending = append(q.pending, msg)
		delete(q.inflight, receipt)
	}
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Depth reports pending plus in-flight message counts.
func (q *MemoryQueue) Depth() (pending, inflight int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending), len(q.inflight)
}
