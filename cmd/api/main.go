package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"redleaf/api/internal/app"
	"redleaf/api/internal/cache"
	"redleaf/api/internal/config"
	"redleaf/api/internal/frame"
	"redleaf/api/internal/gitrepo"
	"redleaf/api/internal/search"
	"redleaf/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		log.Fatalf("failed to create repos dir: %v", err)
	}
	if err := os.MkdirAll(cfg.DocumentsDir, 0o755); err != nil {
		log.Fatalf("failed to create documents dir: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	gitService := gitrepo.New(cfg.ReposDir)

	pgSearch := search.NewPgLike(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgSearch)
	if meiliClient != nil {
		defer meiliClient.Close()
	}

	var typeCache *cache.Redis
	if strings.TrimSpace(cfg.RedisURL) != "" {
		typeCache, err = cache.New(cfg.RedisURL)
		if err != nil {
			log.Printf("WARNING: redis unavailable, lookups go straight to postgres: %v", err)
		} else {
			defer typeCache.Close()
		}
	}

	hub := frame.NewHub(cfg.CORSOrigin)

	service := app.NewService(app.ServiceOptions{
		Store:        dataStore,
		Cache:        typeCache,
		Search:       searchService,
		Repos:        gitService,
		Hub:          hub,
		DocumentsFS:  os.DirFS(cfg.DocumentsDir),
		ProbeTimeout: cfg.URLProbeTimeout,
	})
	if err := service.ReindexDocuments(ctx); err != nil {
		log.Printf("WARNING: search reindex failed (will retry on next restart): %v", err)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, cfg.CSRFToken)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Redleaf API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
