package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/example/ride-sharing/internal/models"
)

var ErrNoSnapshot = errors.New("no saved world")

// Snapshot is the persisted world. Places are referenced by name. Offers are
// in insertion order and requests in extraction order, so restoring them in
// slice order reproduces scan and queue order.
type Snapshot struct {
	Users    []models.User           `json:"users"`
	Places   []string                `json:"places"`
	Roads    []models.Road           `json:"roads"`
	Offers   []models.OfferSummary   `json:"offers"`
	Requests []models.RequestSummary `json:"requests"`
	History  []models.HistoryEntry   `json:"history"`
}

// Store saves and loads whole-world snapshots.
type Store interface {
	Save(ctx context.Context, s *Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
}

type MemoryStore struct {
	mu   sync.RWMutex
	snap *Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Save(_ context.Context, s *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = s.clone()
	return nil
}

func (m *MemoryStore) Load(_ context.Context) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snap == nil {
		return nil, ErrNoSnapshot
	}
	return m.snap.clone(), nil
}

func (s *Snapshot) clone() *Snapshot {
	return &Snapshot{
		Users:    append([]models.User(nil), s.Users...),
		Places:   append([]string(nil), s.Places...),
		Roads:    append([]models.Road(nil), s.Roads...),
		Offers:   append([]models.OfferSummary(nil), s.Offers...),
		Requests: append([]models.RequestSummary(nil), s.Requests...),
		History:  append([]models.HistoryEntry(nil), s.History...),
	}
}
