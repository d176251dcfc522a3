package requests

import (
	"container/heap"
	"errors"
	"sort"

	"github.com/example/ride-sharing/internal/models"
)

// DefaultMaxRequests is the queue bound used when none is configured.
const DefaultMaxRequests = 1000

var (
	ErrUnknownPassenger = errors.New("unknown passenger")
	ErrQueueFull        = errors.New("request queue full")
	ErrDuplicateRequest = errors.New("request id already queued")
	ErrNotQueued        = errors.New("request not queued")
)

type PassengerChecker interface {
	PassengerExists(id int) bool
}

type entry struct {
	req *models.RideRequest
	seq uint64
}

// Queue is a bounded min-heap of ride requests keyed by Earliest. Equal
// keys leave in arrival order. Every queued request's HeapIndex matches its
// slot, and requests are also indexed by id for O(log n) removal.
type Queue struct {
	passengers PassengerChecker
	max        int
	items      []*entry
	byID       map[int]*entry
	nextSeq    uint64
}

func NewQueue(passengers PassengerChecker, maxRequests int) *Queue {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	return &Queue{passengers: passengers, max: maxRequests, byID: make(map[int]*entry)}
}

// Enqueue admits a new request after checking the passenger.
func (q *Queue) Enqueue(r *models.RideRequest) error {
	if !q.passengers.PassengerExists(r.PassengerID) {
		return ErrUnknownPassenger
	}
	return q.push(r)
}

// Requeue puts back a request that was just extracted. The passenger was
// validated on admission and is not checked again. The request goes behind
// every queued peer with the same Earliest.
func (q *Queue) Requeue(r *models.RideRequest) error {
	return q.push(r)
}

// CanAdmit reports whether Enqueue would accept one more request for the
// passenger, without side effects.
func (q *Queue) CanAdmit(passengerID, requestID int) error {
	if !q.passengers.PassengerExists(passengerID) {
		return ErrUnknownPassenger
	}
	if _, dup := q.byID[requestID]; dup {
		return ErrDuplicateRequest
	}
	if len(q.items) >= q.max {
		return ErrQueueFull
	}
	return nil
}

func (q *Queue) push(r *models.RideRequest) error {
	if _, dup := q.byID[r.ID]; dup {
		return ErrDuplicateRequest
	}
	if len(q.items) >= q.max {
		return ErrQueueFull
	}
	e := &entry{req: r, seq: q.nextSeq}
	q.nextSeq++
	q.byID[r.ID] = e
	heap.Push((*entries)(q), e)
	return nil
}

// ExtractMin removes and returns the request with the smallest Earliest.
func (q *Queue) ExtractMin() (*models.RideRequest, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	e := heap.Pop((*entries)(q)).(*entry)
	delete(q.byID, e.req.ID)
	return e.req, true
}

func (q *Queue) Peek() (*models.RideRequest, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	return q.items[0].req, true
}

// Remove drops a queued request by id.
func (q *Queue) Remove(requestID int) (*models.RideRequest, error) {
	e, ok := q.byID[requestID]
	if !ok {
		return nil, ErrNotQueued
	}
	heap.Remove((*entries)(q), e.req.HeapIndex)
	delete(q.byID, requestID)
	return e.req, nil
}

func (q *Queue) Len() int { return len(q.items) }

func (q *Queue) Cap() int { return q.max }

// Pending lists queued requests in extraction order without modifying the
// queue.
func (q *Queue) Pending() []*models.RideRequest {
	sorted := make([]*entry, len(q.items))
	copy(sorted, q.items)
	sort.Slice(sorted, func(i, j int) bool { return before(sorted[i], sorted[j]) })
	out := make([]*models.RideRequest, len(sorted))
	for i, e := range sorted {
		out[i] = e.req
	}
	return out
}

func before(a, b *entry) bool {
	if a.req.Earliest != b.req.Earliest {
		return a.req.Earliest < b.req.Earliest
	}
	return a.seq < b.seq
}

// entries adapts Queue to container/heap.
type entries Queue

func (h *entries) Len() int { return len(h.items) }

func (h *entries) Less(i, j int) bool { return before(h.items[i], h.items[j]) }

func (h *entries) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].req.HeapIndex = i
	h.items[j].req.HeapIndex = j
}

func (h *entries) Push(x any) {
	e := x.(*entry)
	e.req.HeapIndex = len(h.items)
	h.items = append(h.items, e)
}

func (h *entries) Pop() any {
	old := h.items
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	e.req.HeapIndex = -1
	return e
}
