package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"

	"github.com/dalf/botdetection/internal/adapters/storage/memory"
	redisstorage "github.com/dalf/botdetection/internal/adapters/storage/redis"
	"github.com/dalf/botdetection/internal/config"
	"github.com/dalf/botdetection/internal/core/ports"
	"github.com/dalf/botdetection/internal/core/services"
	"github.com/dalf/botdetection/internal/logging"
)

func main() {
	cmd := &cli.Command{
		Name:  "botdetection-server",
		Usage: "Demo web application protected by the bot detection middleware",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "detection config file (.toml, .yaml or .yml)",
				Sources: cli.EnvVars("BOTDETECTION_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "load environment variables from this file instead of .env",
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal("server failed", "error", err)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("env-file"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}

	detectionPath := cmd.String("config")
	if detectionPath == "" {
		detectionPath = cfg.DetectionFile
	}
	detection, err := config.LoadDetection(detectionPath)
	if err != nil {
		logger.Error("failed to load detection config, running without lists, limits or routes", "path", detectionPath, "error", err)
	}
	if cfg.FailOpen != nil {
		detection.FailOpen = *cfg.FailOpen
	}

	secret, err := storeSecret(cfg.Storage)
	if err != nil {
		return err
	}
	if cfg.Storage.Secret == "" {
		logger.Warn("SECRET is not set, using a random per-process secret")
	}

	storage, closeFn, err := initStorage(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("failed to init storage: %w", err)
	}
	defer closeFn()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	handler, err := newApp(appDeps{
		Detection:  detection,
		Storage:    storage,
		Keys:       services.NewKeyBuilder(cfg.Storage.KeyPrefix, secret),
		Logger:     logger,
		Registry:   reg,
		DemoRoutes: detectionPath == "",
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "storage", cfg.Storage.Type)
		err := srv.ListenAndServe()
		if err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	return nil
}

func initStorage(cfg config.StorageConfig, logger *log.Logger) (ports.Storage, func(), error) {
	switch cfg.Type {
	case "redis":
		storage, err := redisstorage.New(redisstorage.Config{
			URL:      cfg.Redis.URL,
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Timeout:  cfg.Timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return storage, func() {
			if err := storage.Close(); err != nil {
				logger.Error("failed to close redis storage", "error", err)
			}
		}, nil
	case "memory":
		logger.Warn("using in-memory storage; counters are not shared between instances")
		return memory.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// storeSecret devolve a chave do HMAC dos nomes de chave. Com redis todas as
// instâncias precisam da mesma chave, então SECRET é obrigatório.
func storeSecret(cfg config.StorageConfig) (string, error) {
	if cfg.Secret != "" {
		return cfg.Secret, nil
	}
	if cfg.Type == "redis" {
		return "", fmt.Errorf("SECRET is required with redis storage")
	}
	return randomSecret()
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
