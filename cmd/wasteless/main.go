package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/4xmen/wasteless/internal/auth"
	"github.com/4xmen/wasteless/internal/chat"
	"github.com/4xmen/wasteless/internal/db"
	"github.com/4xmen/wasteless/internal/db/mongodb"
	"github.com/4xmen/wasteless/internal/handlers"
	"github.com/4xmen/wasteless/internal/listings"
	"github.com/4xmen/wasteless/internal/media"
	"github.com/4xmen/wasteless/internal/store"
	"github.com/4xmen/wasteless/pkg/config"
	"github.com/4xmen/wasteless/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("%v", err)
	}

	if len(os.Args) > 1 {
		if err := runCommand(cfg, os.Args[1:]); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer logger.Sync()

	if err := runServer(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func runCommand(cfg *config.Config, args []string) error {
	command := args[0]

	switch command {
	case "status":
		return runStatus(cfg, os.Stdout, args[1:])
	case "-h", "--help", "help":
		printUsage(os.Stdout)
		return nil
	default:
		printUsage(os.Stderr)
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  wasteless           Start the web server")
	fmt.Fprintln(out, "  wasteless status    Show application statistics")
	fmt.Fprintln(out, "  wasteless status --json")
}

// openStore connects to the configured datastore.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Datastore {
	case "mongodb":
		st, err := mongodb.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		if dir := filepath.Dir(cfg.DatabasePath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		st, err := db.New(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
}

func newMediaBackend(ctx context.Context, cfg *config.Config) (media.Backend, error) {
	switch cfg.MediaBackend {
	case "s3":
		backend, err := media.NewS3Backend(ctx, media.S3Options{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			PublicBaseURL:   cfg.S3PublicBaseURL,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		return backend, nil
	default:
		backend, err := media.NewLocalBackend(cfg.FileStoragePath, cfg.MediaBaseURL)
		if err != nil {
			return nil, err
		}
		return backend, nil
	}
}

func runServer(cfg *config.Config, logger *zap.Logger) error {
	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := openStore(startCtx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize datastore: %w", err)
	}
	defer st.Close()

	backend, err := newMediaBackend(startCtx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize media backend: %w", err)
	}

	images := media.NewService(backend, cfg.MaxUploadSize, cfg.TempDir, logger.Named("media"))
	authSvc := auth.NewWithTokenTTL(st, cfg.JWTSecret, cfg.TokenTTL)
	listingSvc := listings.NewService(st, images, logger.Named("listings"))
	chatSvc := chat.NewService(st, logger.Named("chat"))

	opts := handlers.Options{
		Environment:   cfg.Environment,
		CORSOrigins:   cfg.CORSOrigins,
		MaxUploadSize: cfg.MaxUploadSize,
	}
	if cfg.MediaBackend == "local" {
		opts.UploadDir = cfg.FileStoragePath
	}

	router := handlers.NewRouter(handlers.Services{
		Auth:     authSvc,
		Listings: listingSvc,
		Chat:     chatSvc,
		Store:    st,
	}, opts, logger.Named("http"))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("addr", srv.Addr),
			zap.String("datastore", cfg.Datastore),
			zap.String("media", cfg.MediaBackend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info("shutting down")
	ctx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
