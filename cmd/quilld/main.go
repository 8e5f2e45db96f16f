// Command quilld is the collaborative document server: it serves the
// WebSocket collaboration endpoint plus the thin document CRUD/stats
// handlers over HTTP, backed by SQLite for durable storage and either an
// in-memory or Redis pub-sub for cross-process broadcast.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/quillsync/quill/pkg/broadcast"
	"github.com/quillsync/quill/pkg/quilllog"
	"github.com/quillsync/quill/pkg/server"
	"github.com/quillsync/quill/pkg/storage/sqlite"
)

// Config holds every environment-derived setting for this process.
type Config struct {
	Addr           string
	SQLiteURI      string
	RedisAddr      string
	IdleInterval   time.Duration
	IdleTTL        time.Duration
	ShutdownWindow time.Duration
}

func loadConfig() Config {
	return Config{
		Addr:           getEnv("QUILL_ADDR", ":8080"),
		SQLiteURI:      getEnv("QUILL_SQLITE_URI", "file:quill.db?cache=shared&_fk=1"),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		IdleInterval:   getEnvDuration("QUILL_IDLE_SWEEP_INTERVAL", time.Minute),
		IdleTTL:        getEnvDuration("QUILL_IDLE_TTL", 10*time.Minute),
		ShutdownWindow: getEnvDuration("QUILL_SHUTDOWN_WINDOW", 10*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	seconds, err := strconv.Atoi(v)
	if err != nil {
		quilllog.Error("quilld: invalid duration for %s=%q, using default: %v", key, v, err)
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func main() {
	quilllog.Init()
	config := loadConfig()

	store, err := sqlite.Open(config.SQLiteURI)
	if err != nil {
		quilllog.Error("quilld: open storage: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	pub, err := newPubSub(config)
	if err != nil {
		quilllog.Error("quilld: init pub-sub: %v", err)
		os.Exit(1)
	}

	hub := server.NewHub(store, pub)
	srv := server.NewServer(hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.RunIdleCleaner(ctx, config.IdleInterval, config.IdleTTL)

	httpServer := &http.Server{Addr: config.Addr, Handler: srv}

	go func() {
		quilllog.Info("quilld: listening on %s", config.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			quilllog.Error("quilld: serve: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	quilllog.Info("quilld: shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ShutdownWindow)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		quilllog.Error("quilld: graceful shutdown: %v", err)
	}
}

// newPubSub builds a Redis-backed broadcast bus when REDIS_ADDR is set,
// falling back to the single-process in-memory implementation otherwise.
func newPubSub(config Config) (broadcast.PubSub, error) {
	if config.RedisAddr == "" {
		return broadcast.NewMemory(), nil
	}

	client := goredis.NewClient(&goredis.Options{Addr: config.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis at %s: %w", config.RedisAddr, err)
	}
	return broadcast.NewRedis(client), nil
}
