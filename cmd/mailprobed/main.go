// Command mailprobed serves email deliverability verification over HTTP.
//
// Configuration comes from the environment (a .env file is honored):
//
//	SMTP_HELO_DOMAIN        hostname presented in HELO (required)
//	PROBE_EMAIL             envelope sender for MAIL FROM (required)
//	LISTEN_ADDR             HTTP listen address (default :8080)
//	MAX_CONCURRENCY_PER_MX  per-domain admission gate width (default 5)
//	SMTP_TIMEOUT_MS         per-MX dialog timeout in milliseconds
//	GRAY_RETRY_AFTER_SEC    Retry-After seconds on 429 (default 3600)
//	REDIS_ADDR              shared blocklist store; empty uses the embedded snapshot
//	DATABASE_URL            postgres URL for result persistence; empty disables it
//	DISPOSABLE_LIST_URL     source list for -load-blocklist
//
// With -load-blocklist the process loads DISPOSABLE_LIST_URL into Redis
// and exits instead of serving.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/optimode/mailprobe"
	"github.com/optimode/mailprobe/internal/api"
	"github.com/optimode/mailprobe/internal/blocklist"
	"github.com/optimode/mailprobe/internal/store"
)

func main() {
	loadList := flag.Bool("load-blocklist", false, "load DISPOSABLE_LIST_URL into the blocklist store and exit")
	flag.Parse()

	_ = godotenv.Load()

	log := hclog.New(&hclog.LoggerOptions{
		Name:       "mailprobed",
		Level:      hclog.LevelFromString(envOr("LOG_LEVEL", "info")),
		JSONFormat: true,
	})

	var rdb *redis.Client
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
	}

	if *loadList {
		if err := runLoadBlocklist(rdb, log); err != nil {
			log.Error("loading blocklist failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(rdb, log); err != nil {
		log.Error("exiting", "error", err)
		os.Exit(1)
	}
}

func run(rdb *redis.Client, log hclog.Logger) error {
	cfg := mailprobe.Config{
		SMTPHeloDomain:      os.Getenv("SMTP_HELO_DOMAIN"),
		ProbeEmail:          os.Getenv("PROBE_EMAIL"),
		MaxConcurrencyPerMX: envInt("MAX_CONCURRENCY_PER_MX", 0),
		SMTPTimeout:         envMillis("SMTP_TIMEOUT_MS"),
		GrayRetryAfter:      time.Duration(envInt("GRAY_RETRY_AFTER_SEC", 0)) * time.Second,
		Logger:              log,
	}
	if rdb != nil {
		cfg.Blocklist = blocklist.RedisKV{Client: rdb}
	}

	verifier, err := mailprobe.New(cfg)
	if err != nil {
		return err
	}
	defer verifier.Close()

	var results api.Store
	if url := os.Getenv("DATABASE_URL"); url != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pg, err := store.Open(ctx, url)
		cancel()
		if err != nil {
			return err
		}
		defer func() { _ = pg.Close() }()
		results = pg
		log.Info("result persistence enabled")
	}

	handler := api.New(api.Config{
		Verifier:       verifier,
		Store:          results,
		GrayRetryAfter: cfg.GrayRetryAfter,
		Logger:         log,
	})

	srv := &http.Server{
		Addr:              envOr("LISTEN_ADDR", ":8080"),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func runLoadBlocklist(rdb *redis.Client, log hclog.Logger) error {
	if rdb == nil {
		return errors.New("REDIS_ADDR is required for -load-blocklist")
	}
	url := os.Getenv("DISPOSABLE_LIST_URL")
	if url == "" {
		return errors.New("DISPOSABLE_LIST_URL is required for -load-blocklist")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	n, err := blocklist.Load(ctx, nil, url, blocklist.RedisKV{Client: rdb})
	if err != nil {
		return err
	}
	log.Info("blocklist loaded", "domains", n, "source", url)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envMillis(key string) time.Duration {
	return time.Duration(envInt(key, 0)) * time.Millisecond
}
