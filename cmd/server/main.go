package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/revealtogether/server/internal/api"
	"github.com/revealtogether/server/internal/archive"
	"github.com/revealtogether/server/internal/cache"
	"github.com/revealtogether/server/internal/config"
	"github.com/revealtogether/server/internal/metrics"
	"github.com/revealtogether/server/internal/realtime"
	"github.com/revealtogether/server/internal/reveal"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var store cache.Store
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		redisDB := 0
		if v := os.Getenv("REDIS_DB"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				redisDB = n
			}
		}
		redisStore, err := cache.NewRedisStore(redisAddr, os.Getenv("REDIS_PASSWORD"), redisDB)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisStore.Close()
		store = redisStore
	} else {
		// Single-process fallback for local development. State is lost on
		// restart and not shared across replicas.
		log.Println("REDIS_ADDR not set, using in-memory store")
		store = cache.NewMemoryStore()
	}

	var archiver reveal.Archiver
	if sink, err := archive.NewSupabaseSink(); err != nil {
		log.Fatalf("Failed to initialize archive: %v", err)
	} else if sink != nil {
		archiver = sink
	} else {
		log.Println("Archive credentials not set, running without durable archive")
		archiver = archive.NoopSink{}
	}

	m := metrics.New()

	repo := reveal.NewRepository(
		store,
		time.Duration(cfg.TTL.SessionHours)*time.Hour,
		time.Duration(cfg.TTL.PostRevealHours)*time.Hour,
		cfg.Chat.MaxMessages,
	)
	limiter := reveal.NewRateLimiter(store)
	registry := reveal.NewRegistry(repo)

	hub := realtime.NewHub(cfg.CORS.AllowedOrigins)

	votes := reveal.NewVoteEngine(repo, limiter, hub, m, cfg.Name.MaxLength)
	chat := reveal.NewChatEngine(repo, limiter, hub, m, cfg.Chat.MaxLength, cfg.Name.MaxLength)
	hub.SetHandler(realtime.NewRouter(votes, chat, hub))

	sessions := reveal.NewSessionService(repo, registry, archiver)
	lifecycle := reveal.NewLifecycle(repo, sessions, registry, chat, archiver, hub, m)
	broadcaster := reveal.NewBroadcaster(repo, registry, hub, m,
		time.Duration(cfg.Broadcast.IntervalMs)*time.Millisecond)

	// Pick up sessions that survived a restart before the schedulers start.
	startupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	registry.Reconcile(startupCtx)
	cancel()

	go registry.Run()
	go lifecycle.Run()
	go broadcaster.Run()

	server := api.NewServer(sessions, archiver, hub, store, cfg.Server.BaseURL, cfg.CORS.AllowedOrigins)
	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("Reveal server listening on :%s (broadcast interval %dms)",
			cfg.Server.Port, cfg.Broadcast.IntervalMs)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	broadcaster.Stop()
	lifecycle.Stop()
	registry.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
