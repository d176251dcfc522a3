package world

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/example/ride-sharing/internal/storage"
)

const (
	testDriver   = 101
	offerWorkers = 4
	offersEach   = 5
	offerSeats   = 2
	reqWorkers   = 4
	reqsEach     = 15
)

func concurrentWorld(t *testing.T) *World {
	t.Helper()
	w := New()
	_, _, err := w.LoadRoads(strings.NewReader("A B 5\nB C 3\nC D 4\n"))
	mustOK(t, err)
	_, err = w.RegisterUser(testDriver, "Ali", "driver")
	mustOK(t, err)
	for p := 0; p < reqWorkers; p++ {
		_, err = w.RegisterUser(200+p, "rider", "passenger")
		mustOK(t, err)
	}
	return w
}

// seatsConsistent reports an offer outside 0..capacity, or a mismatch between
// seats consumed and the driver's recorded rides.
func seatsConsistent(t *testing.T, s *storage.Snapshot) (consumed int) {
	t.Helper()
	for _, o := range s.Offers {
		if o.SeatsLeft < 0 || o.SeatsLeft > o.Capacity {
			t.Errorf("offer %d: seatsLeft %d outside 0..%d", o.OfferID, o.SeatsLeft, o.Capacity)
		}
		consumed += o.Capacity - o.SeatsLeft
	}
	rides := 0
	for _, h := range s.History {
		if h.UserID == testDriver {
			rides++
		}
	}
	if rides != consumed {
		t.Errorf("driver history %d, seats consumed %d", rides, consumed)
	}
	for _, u := range s.Users {
		if u.ID == testDriver && u.CompletedRides != consumed {
			t.Errorf("driver completedRides %d, seats consumed %d", u.CompletedRides, consumed)
		}
	}
	return consumed
}

// runWorkload creates offers and requests while matching from several
// goroutines. extra runs alongside until the workload finishes.
func runWorkload(t *testing.T, w *World, extra func(stop <-chan struct{})) int64 {
	t.Helper()
	var (
		wg      sync.WaitGroup
		matched atomic.Int64
		stop    = make(chan struct{})
	)
	for g := 0; g < offerWorkers; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < offersEach; i++ {
				_, _ = w.CreateOffer(g*100+i+1, testDriver, "A", "D", 10, offerSeats)
			}
		}(g)
	}
	for g := 0; g < reqWorkers; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < reqsEach; i++ {
				_, _ = w.CreateRequest(g*100+i+1, 200+g, "B", "C", 0, 20)
			}
		}(g)
	}
	for g := 0; g < 3; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 40; i++ {
				if w.MatchNext(context.Background()).Matched {
					matched.Add(1)
				}
			}
		}()
	}

	var extraWG sync.WaitGroup
	if extra != nil {
		extraWG.Add(1)
		go func() {
			defer extraWG.Done()
			extra(stop)
		}()
	}
	wg.Wait()
	close(stop)
	extraWG.Wait()
	return matched.Load()
}

func TestConcurrentMatchingConservesSeats(t *testing.T) {
	w := concurrentWorld(t)
	matched := runWorkload(t, w, func(stop <-chan struct{}) {
		for {
			select {
			case <-stop:
				return
			default:
				seatsConsistent(t, w.Snapshot())
			}
		}
	})

	consumed := seatsConsistent(t, w.Snapshot())
	if int64(consumed) != matched {
		t.Fatalf("matches %d, seats consumed %d", matched, consumed)
	}
	if total := offerWorkers * offersEach * offerSeats; consumed > total {
		t.Fatalf("consumed %d seats of %d", consumed, total)
	}
}

func TestConcurrentRestoreKeepsWorldConsistent(t *testing.T) {
	w := concurrentWorld(t)
	runWorkload(t, w, func(stop <-chan struct{}) {
		for {
			select {
			case <-stop:
				return
			default:
				s := w.Snapshot()
				seatsConsistent(t, s)
				if err := w.Restore(s); err != nil {
					t.Errorf("restore: %v", err)
					return
				}
				_ = w.Restore(&storage.Snapshot{})
				_, _ = w.RegisterUser(testDriver, "Ali", "driver")
			}
		}
	})
	seatsConsistent(t, w.Snapshot())
}
