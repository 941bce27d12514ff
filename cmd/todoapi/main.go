package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"todoapi/internal/attachment"
	"todoapi/internal/auth"
	"todoapi/internal/config"
	"todoapi/internal/httpapi"
	"todoapi/internal/store"
	"todoapi/internal/todo"
)

func main() {
	configPath := flag.String("config", os.Getenv("TODOAPI_CONFIG"), "config file path")
	flag.Parse()

	logger := log.New(os.Stdout, "todoapi ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("could not load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatalf("%v", err)
	}
}

// run builds the clients, serves until ctx is done and shuts the server down.
// The item store is closed on every return path.
func run(ctx context.Context, cfg config.Config, logger *log.Logger) error {
	certPEM, err := cfg.CertificatePEM()
	if err != nil {
		return fmt.Errorf("could not load certificate: %w", err)
	}
	verifier, err := auth.NewVerifier(certPEM)
	if err != nil {
		return fmt.Errorf("could not build token verifier: %w", err)
	}

	items, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("could not open %s store: %w", cfg.Store.Driver, err)
	}
	defer func() {
		if err := items.Close(); err != nil {
			logger.Printf("could not close %s store: %v", cfg.Store.Driver, err)
		}
	}()

	attachments, err := attachment.New(ctx, cfg.Attachments)
	if err != nil {
		return fmt.Errorf("could not create attachment store: %w", err)
	}

	svc := todo.NewService(verifier, items, attachments, logger)
	handler := httpapi.NewRouter(httpapi.NewHandler(svc, logger), verifier)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Printf("server is listening on %s (store: %s, bucket: %s)", server.Addr, cfg.Store.Driver, cfg.Attachments.Bucket)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- fmt.Errorf("could not listen: %w", err)
		}
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	logger.Println("server is shutting down")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Println("server stopped")
	return nil
}
