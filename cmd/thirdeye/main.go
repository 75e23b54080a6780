package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xiaot623/thirdeye/internal/adapter/llm"
	"github.com/xiaot623/thirdeye/internal/config"
	"github.com/xiaot623/thirdeye/internal/hub"
	"github.com/xiaot623/thirdeye/internal/policy"
	"github.com/xiaot623/thirdeye/internal/repository"
	"github.com/xiaot623/thirdeye/internal/service"
	httpserver "github.com/xiaot623/thirdeye/internal/transport/http"
	"github.com/xiaot623/thirdeye/internal/transport/rpc"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Starting thirdeye...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("RPC Port: %d", cfg.RPCPort)
	log.Printf("Database: %s", repository.DetectDialect(cfg.DatabaseURL))
	log.Printf("Strict order: %t (default route %q)", cfg.StrictOrder, cfg.DefaultRoute)

	// Initialize store
	db, err := repository.NewSQLStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Seed personas, routing and routes
	seed, err := config.LoadSeed(cfg.SeedFile)
	if err != nil {
		log.Fatalf("Failed to load seed: %v", err)
	}
	stats, err := repository.ApplySeed(ctx, db, seed)
	if err != nil {
		log.Fatalf("Failed to apply seed: %v", err)
	}
	log.Printf("INFO: seeded %d personas, %d routing entries, %d routes", stats.Personas, stats.Routing, stats.Routes)

	// Initialize provider
	endpoints := make(map[string]llm.Endpoint, len(cfg.Providers))
	apiKeys := make(map[string]string, len(cfg.Providers))
	for id, p := range cfg.Providers {
		endpoints[id] = llm.Endpoint{BaseURL: p.BaseURL}
		if p.APIKey != "" {
			apiKeys[id] = p.APIKey
		}
	}
	provider := llm.NewProvider(cfg.MockMode(), endpoints, llm.EnvCredentials{Configured: apiKeys}, cfg.ProviderTimeout)

	// Initialize policy engine
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize hub
	h := hub.New(hub.Config{
		PingInterval: cfg.PingInterval,
		PongWait:     cfg.PongWait,
		WriteTimeout: cfg.WriteTimeout,
		SendBuffer:   cfg.SendBuffer,
	})
	go h.Run(ctx)

	// Initialize service
	svc := service.New(db, provider, h, cfg, policyEngine)
	if n, err := svc.RecoverOrphans(ctx); err != nil {
		log.Printf("WARN: failed to recover orphaned duels: %v", err)
	} else if n > 0 {
		log.Printf("INFO: marked %d orphaned duels failed", n)
	}

	// Create HTTP server
	server := httpserver.NewServer(svc, cfg.MaxMessageSize)
	server.Debug = cfg.LogLevel == "debug"

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()
	log.Printf("HTTP API started on port %d", cfg.HTTPPort)

	// Create RPC server
	var rpcServer *rpc.Server
	if cfg.RPCPort > 0 {
		rpcServer, err = rpc.NewServer(svc, cfg.ProviderTimeout*10)
		if err != nil {
			log.Fatalf("Failed to create RPC server: %v", err)
		}
		if err := rpcServer.Listen(fmt.Sprintf(":%d", cfg.RPCPort)); err != nil {
			log.Fatalf("Failed to listen for RPC: %v", err)
		}
		go func() {
			if err := rpcServer.Serve(); err != nil {
				log.Printf("ERROR: RPC server stopped: %v", err)
			}
		}()
		log.Printf("JSON-RPC started on port %d", cfg.RPCPort)
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down thirdeye...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown HTTP server gracefully: %v", err)
	}
	if rpcServer != nil {
		if err := rpcServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Failed to shutdown RPC server gracefully: %v", err)
		}
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		log.Printf("Background duels interrupted: %v", err)
	}
	stop()
	h.Close()

	log.Println("thirdeye stopped")
}
