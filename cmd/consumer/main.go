package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/example/ride-sharing/internal/config"
	"github.com/example/ride-sharing/internal/events"
	"github.com/example/ride-sharing/internal/logging"
)

const leaderboardKey = "drivers:completed"

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_consumed_total",
		Help: "Total match events consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	redisUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_redis_updates_total",
		Help: "Total successful redis updates",
	})
	redisErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_redis_errors_total",
		Help: "Total redis errors",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, redisUpdates, redisErrors)
}

func main() {
	cfg, err := config.LoadConsumerConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	radapter := &redisAdapter{c: rc}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := rc.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis not ready", 503)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", zap.String("addr", cfg.MetricsAddr))
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic, GroupID: cfg.KafkaGroup, MinBytes: 1, MaxBytes: 10e6})
	defer func() {
		_ = r.Close()
		_ = rc.Close()
	}()

	logger.Info("consumer listening",
		zap.String("topic", cfg.KafkaTopic),
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("group", cfg.KafkaGroup),
	)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down consumer")
				return
			}
			logger.Warn("kafka read error", zap.Error(err), zap.Duration("backoff", backoff))
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		msgsConsumed.Inc()

		var ev events.MatchEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil || ev.Type != events.TypeRideMatched || !ev.Match.Matched {
			msgsInvalid.Inc()
			logger.Warn("invalid message", zap.Int64("offset", m.Offset), zap.Error(err))
			continue
		}

		if err := updateRedisWithRetry(ctx, radapter, &ev, 3, 200*time.Millisecond); err != nil {
			redisErrors.Inc()
			logger.Error("redis update failed", zap.String("event_id", ev.ID), zap.Error(err))
			continue
		}
		redisUpdates.Inc()
	}
}

// RedisUpdater is the subset of redis operations the consumer needs.
type RedisUpdater interface {
	RPush(ctx context.Context, key string, value string) error
	ZIncrBy(ctx context.Context, key string, increment float64, member string) error
}

type redisAdapter struct{ c *redis.Client }

func (r *redisAdapter) RPush(ctx context.Context, key string, value string) error {
	return r.c.RPush(ctx, key, value).Err()
}

func (r *redisAdapter) ZIncrBy(ctx context.Context, key string, increment float64, member string) error {
	return r.c.ZIncrBy(ctx, key, increment, member).Err()
}

func historyKey(userID int) string { return "history:" + strconv.Itoa(userID) }

// updateRedisWithRetry mirrors one match into both riders' history lists and
// the driver leaderboard. Each step is retried with doubling delay; steps
// that already succeeded are not repeated.
func updateRedisWithRetry(ctx context.Context, rc RedisUpdater, ev *events.MatchEvent, attempts int, delay time.Duration) error {
	entry, err := json.Marshal(ev.Match)
	if err != nil {
		return err
	}
	steps := []func() error{
		func() error { return rc.RPush(ctx, historyKey(ev.Match.DriverID), string(entry)) },
		func() error { return rc.RPush(ctx, historyKey(ev.Match.PassengerID), string(entry)) },
		func() error { return rc.ZIncrBy(ctx, leaderboardKey, 1, strconv.Itoa(ev.Match.DriverID)) },
	}
	for _, step := range steps {
		d := delay
		for i := 0; ; i++ {
			err := step()
			if err == nil {
				break
			}
			if i == attempts-1 {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
			}
			d *= 2
		}
	}
	return nil
}
