package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"settlement-service/internal/config"
	"settlement-service/internal/server"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env (optional)
	if err := godotenv.Load(); err != nil {
		log.Println("Settlement: No .env file found, relying on system env vars")
	}

	// Load config
	cfg := config.Load()

	// Start settlement HTTP server in a goroutine
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Settlement server starting on %s", cfg.HTTPAddr)
		// This blocks until server exits
		server.NewSettlementServer(cfg)
		errCh <- nil
	}()

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Println("Settlement service shutting down gracefully...")
		_, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Settlement service failed: %v", err)
		}
	}
}
