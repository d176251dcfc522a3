package history

import (
	"sort"

	"github.com/example/ride-sharing/internal/models"
)

// Store is an append-only ride log per user.
type Store struct {
	byUser map[int][]models.HistoryEntry
	total  int
}

func NewStore() *Store {
	return &Store{byUser: make(map[int][]models.HistoryEntry)}
}

func (s *Store) Append(e models.HistoryEntry) {
	s.byUser[e.UserID] = append(s.byUser[e.UserID], e)
	s.total++
}

// ForUser returns a copy of the user's entries in append order.
func (s *Store) ForUser(userID int) []models.HistoryEntry {
	entries := s.byUser[userID]
	out := make([]models.HistoryEntry, len(entries))
	copy(out, entries)
	return out
}

func (s *Store) Len() int { return s.total }

// All returns every entry grouped by ascending user id, each group in
// append order.
func (s *Store) All() []models.HistoryEntry {
	ids := make([]int, 0, len(s.byUser))
	for id := range s.byUser {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]models.HistoryEntry, 0, s.total)
	for _, id := range ids {
		out = append(out, s.byUser[id]...)
	}
	return out
}
