// Command traffic_simulator replays dashboard read traffic against a flagdesk
// API: list views, flag detail routing and message context lookups.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/patrickwarner/flagdesk/internal/client"
	"github.com/patrickwarner/flagdesk/internal/config"
	"github.com/patrickwarner/flagdesk/internal/db"
	"github.com/patrickwarner/flagdesk/internal/detail"
	"github.com/patrickwarner/flagdesk/internal/observability"
)

var (
	server     string
	totalReq   int
	conc       int
	duration   time.Duration
	rate       float64
	jitter     float64
	showRatio  float64
	stats      bool
	resetInbox bool
	redisAddr  string
	debug      bool
	label      string
)

var logger *zap.Logger

const statsInterval = 5 * time.Second

var (
	countSent     uint64
	countSuccess  uint64
	countNotFound uint64
	countErrors   uint64
)

func main() {
	flag.StringVar(&server, "server", "", "flagdesk API base URL (defaults to FLAGDESK_API_URL)")
	flag.IntVar(&totalReq, "requests", 500, "total dashboard actions to run")
	flag.IntVar(&conc, "concurrency", 10, "concurrent actions")
	flag.DurationVar(&duration, "duration", 0, "how long to run traffic (0 to disable)")
	flag.Float64Var(&rate, "rate", 0, "actions per second (0 for unlimited)")
	flag.Float64Var(&jitter, "jitter", 0.0, "random jitter factor for action spacing")
	flag.Float64Var(&showRatio, "show-ratio", 0.6, "probability an action opens a flag detail instead of the list")
	flag.BoolVar(&stats, "stats", false, "print aggregated stats periodically")
	flag.BoolVar(&resetInbox, "reset-inbox", false, "delete cached notification inboxes in redis before running")
	flag.StringVar(&redisAddr, "redis", "", "redis address (defaults to REDIS_ADDR)")
	flag.BoolVar(&debug, "debug", false, "enable verbose debug logs")
	flag.StringVar(&label, "label", "", "label to identify this run")
	flag.Parse()

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	var err error
	logger, err = observability.InitLoggerWithLevel(level, "traffic-simulator")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := config.LoadDotEnv(); err != nil {
		logger.Fatal("load .env", zap.Error(err))
	}
	ccfg := config.LoadClient()
	if server == "" {
		server = ccfg.APIURL
	}
	if label == "" {
		label = time.Now().Format(time.RFC3339)
	}

	if resetInbox {
		flushInboxes()
	}

	api := client.New(server, client.NewSession(ccfg.Token, ccfg.TokenFile),
		client.WithTimeout(15*time.Second), client.WithLogger(logger))
	router := detail.NewRouter(api, ccfg.ContextWindow, logger)

	ctx := context.Background()
	flags, err := api.ListFlags(ctx, "")
	if err != nil {
		logger.Fatal("initial list", zap.Error(err))
	}
	ids := make([]int, 0, len(flags))
	for _, f := range flags {
		ids = append(ids, f.ID)
	}
	logger.Info("starting traffic", zap.String("server", server), zap.Int("flags", len(ids)), zap.String("run", label))

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	var wg sync.WaitGroup
	sem := make(chan struct{}, conc)
	done := make(chan struct{})

	var baseInterval time.Duration
	if rate > 0 {
		baseInterval = time.Duration(float64(time.Second) / rate)
	} else if duration > 0 && totalReq > 0 {
		baseInterval = duration / time.Duration(totalReq)
	}

	start := time.Now()
	next := start

	if stats {
		go func() {
			ticker := time.NewTicker(statsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					printStats()
				case <-done:
					printStats()
					return
				}
			}
		}()
	}
	for i := 0; ; i++ {
		if totalReq > 0 && i >= totalReq {
			break
		}
		if duration > 0 && time.Since(start) >= duration {
			break
		}
		if baseInterval > 0 {
			effective := baseInterval
			if jitter > 0 {
				jf := 1 + (r.Float64()*2-1)*jitter
				if jf < 0.1 {
					jf = 0.1
				}
				effective = time.Duration(float64(effective) * jf)
			}
			now := time.Now()
			if now.Before(next) {
				time.Sleep(next.Sub(now))
			}
			next = next.Add(effective)
		}

		// choices are drawn here since r is not safe for concurrent use
		flagID := 0
		if len(ids) > 0 && r.Float64() < showRatio {
			flagID = ids[r.Intn(len(ids))]
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(flagID int) {
			defer wg.Done()
			defer func() { <-sem }()
			atomic.AddUint64(&countSent, 1)

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			var err error
			if flagID == 0 {
				_, err = api.ListFlags(ctx, "")
			} else {
				var v detail.View
				v, err = router.Route(ctx, flagID)
				if err == nil {
					logger.Debug("routed", zap.Int("flag_id", flagID), zap.String("kind", string(v.Kind())))
				}
			}
			switch {
			case err == nil:
				atomic.AddUint64(&countSuccess, 1)
			case client.IsNotFound(err):
				atomic.AddUint64(&countNotFound, 1)
			default:
				atomic.AddUint64(&countErrors, 1)
				var ne *client.NetworkError
				if errors.As(err, &ne) {
					logger.Debug("network error", zap.Error(err))
					return
				}
				logger.Error("action failed", zap.Int("flag_id", flagID), zap.Error(err))
			}
		}(flagID)
	}
	wg.Wait()
	close(done)
	if !stats {
		printStats()
	}
}

// flushInboxes drops cached notification lists; the store remains the source
// of truth so the API falls back to it.
func flushInboxes() {
	cfg := config.Load()
	addr := redisAddr
	if addr == "" {
		addr = cfg.RedisAddr
	}
	store, err := db.InitRedis(addr)
	if err != nil {
		logger.Fatal("redis connect", zap.Error(err))
	}
	defer store.Close()

	keys, err := store.Client.Keys(store.Ctx, "notifications:user:*").Result()
	if err != nil {
		logger.Error("failed to list inbox keys", zap.Error(err))
		return
	}
	if len(keys) > 0 {
		if err := store.Client.Del(store.Ctx, keys...).Err(); err != nil {
			logger.Error("failed to delete inbox keys", zap.Error(err))
			return
		}
	}
	logger.Info("notification inboxes flushed", zap.String("addr", addr), zap.Int("keys_deleted", len(keys)))
}

func printStats() {
	sent := atomic.LoadUint64(&countSent)
	succ := atomic.LoadUint64(&countSuccess)
	nf := atomic.LoadUint64(&countNotFound)
	errs := atomic.LoadUint64(&countErrors)
	var errRate float64
	if sent > 0 {
		errRate = float64(errs) / float64(sent)
	}
	logger.Info("stats", zap.String("run", label), zap.Uint64("sent", sent), zap.Uint64("success", succ),
		zap.Uint64("not_found", nf), zap.Uint64("errors", errs), zap.Float64("error_rate", errRate))
}
