// Package deliveryqueue implements the priority dispatch queue for urgent
// messages. Entries are ordered by tier first (high before medium before low)
// and by insertion sequence within a tier, so the queue is FIFO per tier.
package deliveryqueue

import (
	"container/heap"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/palomarmail/palomar/consts"
	"github.com/palomarmail/palomar/mail"
	"github.com/palomarmail/palomar/pkg/metrics"
)

// Entry represents a message scheduled for dispatch.
type Entry struct {
	ID         string    `json:"id"`          // Unique entry ID
	MessageID  string    `json:"message_id"`  // Message being dispatched
	Recipient  string    `json:"recipient"`   // Recipient address
	Tier       mail.Tier `json:"tier"`        // Priority tier at enqueue time
	EnqueuedAt time.Time `json:"enqueued_at"` // When the entry was enqueued

	seq uint64 // insertion sequence, orders entries within a tier
}

// Stats is a point-in-time snapshot of queue depth.
type Stats struct {
	Total  int    `json:"total"`
	High   int    `json:"high"`
	Medium int    `json:"medium"`
	Low    int    `json:"low"`
	Next   *Entry `json:"next,omitempty"`
}

// Queue is an in-memory priority queue over dispatch entries.
//
// Dequeue order: lowest tier ordinal first (TierHigh=0 before TierMedium=1
// before TierLow=2), then insertion order within the same tier. A single
// mutex guards the heap; enqueue and dequeue are called concurrently by the
// delivery controller and the dispatch worker.
type Queue struct {
	mu      sync.Mutex
	entries entryHeap
	seq     uint64
	byTier  [3]int
}

// New creates an empty dispatch queue.
func New() *Queue {
	return &Queue{}
}

// Enqueue adds a message to the queue and returns the created entry.
// An invalid tier is coerced to medium, matching message construction.
func (q *Queue) Enqueue(messageID, recipient string, tier mail.Tier) *Entry {
	start := time.Now()
	if !tier.Valid() {
		tier = mail.TierMedium
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	entry := &Entry{
		ID:         uuid.New().String(),
		MessageID:  messageID,
		Recipient:  recipient,
		Tier:       tier,
		EnqueuedAt: time.Now().UTC(),
		seq:        q.seq,
	}
	heap.Push(&q.entries, entry)
	q.byTier[tier]++
	q.updateDepthGauges()

	metrics.QueueOperations.WithLabelValues("enqueue", "success").Inc()
	metrics.QueueOperationDuration.WithLabelValues("enqueue").Observe(time.Since(start).Seconds())
	return entry
}

// Dequeue removes and returns the highest priority entry.
// Returns consts.ErrQueueEmpty when the queue holds no entries.
func (q *Queue) Dequeue() (*Entry, error) {
	start := time.Now()
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.entries.Len() == 0 {
		metrics.QueueOperations.WithLabelValues("dequeue", "empty").Inc()
		metrics.QueueOperationDuration.WithLabelValues("dequeue").Observe(time.Since(start).Seconds())
		return nil, consts.ErrQueueEmpty
	}

	entry := heap.Pop(&q.entries).(*Entry)
	q.byTier[entry.Tier]--
	q.updateDepthGauges()

	metrics.QueueOperations.WithLabelValues("dequeue", "success").Inc()
	metrics.QueueOperationDuration.WithLabelValues("dequeue").Observe(time.Since(start).Seconds())
	metrics.QueueEntryAge.Observe(time.Since(entry.EnqueuedAt).Seconds())
	return entry, nil
}

// Peek returns the entry Dequeue would return next without removing it.
// Returns consts.ErrQueueEmpty when the queue holds no entries.
func (q *Queue) Peek() (*Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.entries.Len() == 0 {
		metrics.QueueOperations.WithLabelValues("peek", "empty").Inc()
		return nil, consts.ErrQueueEmpty
	}

	metrics.QueueOperations.WithLabelValues("peek", "success").Inc()
	return q.entries[0], nil
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.entries.Len()
}

// GetStats returns the current queue depth per tier and the next entry.
func (q *Queue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := Stats{
		Total:  q.entries.Len(),
		High:   q.byTier[mail.TierHigh],
		Medium: q.byTier[mail.TierMedium],
		Low:    q.byTier[mail.TierLow],
	}
	if q.entries.Len() > 0 {
		stats.Next = q.entries[0]
	}
	return stats
}

// updateDepthGauges refreshes the per-tier depth gauges. Caller holds q.mu.
func (q *Queue) updateDepthGauges() {
	metrics.QueueDepth.WithLabelValues(mail.TierHigh.String()).Set(float64(q.byTier[mail.TierHigh]))
	metrics.QueueDepth.WithLabelValues(mail.TierMedium.String()).Set(float64(q.byTier[mail.TierMedium]))
	metrics.QueueDepth.WithLabelValues(mail.TierLow.String()).Set(float64(q.byTier[mail.TierLow]))
}

// entryHeap implements container/heap ordered by (tier, sequence).
type entryHeap []*Entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].Tier != h[j].Tier {
		return h[i].Tier < h[j].Tier
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) {
	*h = append(*h, x.(*Entry))
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return entry
}
