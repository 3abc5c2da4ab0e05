// Package queue provides the bounded correlation queue that holds
// in-flight service requests, indexed both by position and by message ID.
package queue

import (
	"sync"

	"github.com/aneury1/scsh-scripts/internal/domain"
)

// Capacity bounds each queue instance. The oldest entry is evicted when
// a new one arrives at capacity.
const Capacity = 10

// Queue is an order-preserving collection of service requests with a
// side index over message IDs. Eviction, insertion and index updates are
// one atomic operation under the queue's mutex.
type Queue struct {
	mu      sync.Mutex
	entries []*domain.ServiceRequest
	index   map[string]*domain.ServiceRequest
}

func New() *Queue {
	return &Queue{
		index: make(map[string]*domain.ServiceRequest),
	}
}

// Enqueue appends sr, evicting the oldest entry first when at capacity.
// It returns the evicted entry, if any.
func (q *Queue) Enqueue(sr *domain.ServiceRequest) *domain.ServiceRequest {
	q.mu.Lock()
	defer q.mu.Unlock()

	var evicted *domain.ServiceRequest
	if len(q.entries) >= Capacity {
		evicted = q.entries[0]
		q.entries = q.entries[1:]
		if evicted.MessageID != "" {
			delete(q.index, evicted.MessageID)
		}
	}
	q.entries = append(q.entries, sr)
	if sr.MessageID != "" {
		q.index[sr.MessageID] = sr
	}
	return evicted
}

// Get returns the entry at position i.
func (q *Queue) Get(i int) (*domain.ServiceRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i < 0 || i >= len(q.entries) {
		return nil, false
	}
	return q.entries[i], true
}

// RemoveAt deletes the entry at position i along with its index entry.
func (q *Queue) RemoveAt(i int) (*domain.ServiceRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i < 0 || i >= len(q.entries) {
		return nil, false
	}
	sr := q.entries[i]
	q.entries = append(q.entries[:i:i], q.entries[i+1:]...)
	if sr.MessageID != "" {
		delete(q.index, sr.MessageID)
	}
	return sr, true
}

// Remove deletes the entry with the given message ID.
func (q *Queue) Remove(messageID string) (*domain.ServiceRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	sr, ok := q.index[messageID]
	if !ok {
		return nil, false
	}
	for i, e := range q.entries {
		if e == sr {
			q.entries = append(q.entries[:i:i], q.entries[i+1:]...)
			break
		}
	}
	delete(q.index, messageID)
	return sr, true
}

// FindByMessageID looks up an entry by its correlation identifier.
func (q *Queue) FindByMessageID(id string) (*domain.ServiceRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	sr, ok := q.index[id]
	return sr, ok
}

// Update runs fn on the entry with the given message ID while holding
// the queue lock, so lookup and mutation form one critical section.
// It reports whether the entry was found.
func (q *Queue) Update(id string, fn func(*domain.ServiceRequest)) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	sr, ok := q.index[id]
	if !ok {
		return false
	}
	fn(sr)
	return true
}

// List returns a snapshot of the entries in order. The entries are
// copied so callers read them without holding the queue lock.
func (q *Queue) List() []domain.ServiceRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.ServiceRequest, len(q.entries))
	for i, sr := range q.entries {
		out[i] = *sr
	}
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
