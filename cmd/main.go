package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"brand-studio/server/internal/config"
	"brand-studio/server/internal/gateway"
	"brand-studio/server/internal/generators"
	"brand-studio/server/internal/interfaces"
	"brand-studio/server/internal/logger"
	"brand-studio/server/internal/prompts"
	"brand-studio/server/internal/storage"
	"brand-studio/server/internal/transcode"
	"brand-studio/server/internal/web"
)

func main() {
	configPath := os.Getenv("BRAND_STUDIO_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg, err := logger.New(cfg.Logging.Mode)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer lg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		lg.Fatal("failed to open storage", "backend", cfg.Storage.Backend, "error", err)
	}
	defer store.Close()
	lg.Info("storage ready", "backend", cfg.Storage.Backend)

	model, err := gateway.NewModelFromConfig(cfg.AI, lg)
	if err != nil {
		lg.Fatal("failed to configure model gateway", "error", err)
	}

	tmpl := prompts.NewTemplateEngine()
	if cfg.Prompts.Dir != "" {
		loaded, err := tmpl.LoadDir(cfg.Prompts.Dir)
		if err != nil {
			lg.Warn("failed to load prompt overrides", "dir", cfg.Prompts.Dir, "error", err)
		} else {
			lg.Info("prompt overrides loaded", "dir", cfg.Prompts.Dir, "templates", loaded)
		}
	}

	queue := generators.NewImageQueue(cfg.Images.Workers, cfg.Images.QueueSize, cfg.Images.Timeout, lg)
	queue.Start(ctx)

	var transcriber interfaces.Transcriber
	if tr := gateway.NewTranscriber(cfg.AI.Transcription, cfg.AI.Timeout); tr != nil {
		transcriber = tr
	} else {
		lg.Warn("no transcription model configured, failed clips cannot be retried")
	}

	hub := web.NewEventHub(lg)
	go hub.Run()

	registry := web.NewRegistry(web.RegistryDeps{
		Config:      cfg,
		Store:       store,
		Model:       model,
		Prompts:     tmpl,
		Transcoder:  transcode.New(nil),
		Scheduler:   queue,
		Transcriber: transcriber,
		Hub:         hub,
		Log:         lg,
	})

	handlers := web.NewHandlers(registry, hub, tmpl, lg)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      web.NewRouter(handlers),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		lg.Info("server starting", "addr", server.Addr, "webhook_env", cfg.Webhook.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server failed to start", "error", err)
		}
	}()

	<-ctx.Done()
	lg.Info("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Error("server shutdown error", "error", err)
	}
	if err := registry.Close(shutdownCtx); err != nil {
		lg.Error("workspace shutdown error", "error", err)
	}
	queue.Stop()
	hub.Stop()

	lg.Info("server stopped")
}
