package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ride-sharing/internal/events"
	"github.com/example/ride-sharing/internal/models"
)

// fakeUpdater implements RedisUpdater for tests
type fakeUpdater struct {
	failPush int // number of times to fail RPush before succeeding
	failZ    int // number of times to fail ZIncrBy before succeeding
	pushes   map[string][]string
	scores   map[string]float64
	pushCall int
	zCall    int
}

func newFake() *fakeUpdater {
	return &fakeUpdater{pushes: map[string][]string{}, scores: map[string]float64{}}
}

func (f *fakeUpdater) RPush(_ context.Context, key string, value string) error {
	f.pushCall++
	if f.pushCall <= f.failPush {
		return errors.New("push fail")
	}
	f.pushes[key] = append(f.pushes[key], value)
	return nil
}

func (f *fakeUpdater) ZIncrBy(_ context.Context, key string, inc float64, member string) error {
	f.zCall++
	if f.zCall <= f.failZ {
		return errors.New("zincrby fail")
	}
	f.scores[key+"/"+member] += inc
	return nil
}

func matchEvent() *events.MatchEvent {
	return &events.MatchEvent{
		ID:    "e1",
		Type:  events.TypeRideMatched,
		Match: models.MatchResult{Matched: true, DriverID: 101, PassengerID: 201, OfferID: 1},
	}
}

func TestUpdateRedisWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := newFake()
	f.failPush, f.failZ = 1, 1
	start := time.Now()
	if err := updateRedisWithRetry(context.Background(), f, matchEvent(), 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if len(f.pushes["history:101"]) != 1 || len(f.pushes["history:201"]) != 1 {
		t.Fatalf("history pushes: %v", f.pushes)
	}
	if f.scores["drivers:completed/101"] != 1 {
		t.Fatalf("leaderboard: %v", f.scores)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatalf("expected a backoff per failed step")
	}
}

func TestUpdateRedisWithRetry_FailsWhenExhausted(t *testing.T) {
	f := newFake()
	f.failZ = 5
	if err := updateRedisWithRetry(context.Background(), f, matchEvent(), 3, time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
	if f.zCall != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.zCall)
	}
	if len(f.pushes["history:101"]) != 1 {
		t.Fatal("completed steps must not be repeated")
	}
}

func TestUpdateRedisWithRetry_StopsOnCancel(t *testing.T) {
	f := newFake()
	f.failPush = 10
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := updateRedisWithRetry(ctx, f, matchEvent(), 3, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}
}
