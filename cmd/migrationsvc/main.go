// migrationsvc runs the AKS migration process engine - it dequeues
// migration requests, drives each through the four-phase agent pipeline,
// and exposes a health/readiness and process-snapshot HTTP surface.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"flag"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/joho/godotenv"

	"github.com/aks-migrator/engine/pkg/api"
	"github.com/aks-migrator/engine/pkg/azureauth"
	"github.com/aks-migrator/engine/pkg/config"
	"github.com/aks-migrator/engine/pkg/dispatcher"
	"github.com/aks-migrator/engine/pkg/observer"
	"github.com/aks-migrator/engine/pkg/phases"
	"github.com/aks-migrator/engine/pkg/process"
	"github.com/aks-migrator/engine/pkg/storage/queueadapter"
	"github.com/aks-migrator/engine/pkg/telemetry"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: Could not load %s file: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	podID := getEnv("POD_ID", "migrationsvc-0")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cred, err := azureauth.GetCredential()
	if err != nil {
		log.Fatalf("failed to resolve Azure credential: %v", err)
	}

	cfg, err := config.Initialize(ctx, *configDir, cred)
	if err != nil {
		log.Fatalf("failed to initialize configuration: %v", err)
	}
	stats := cfg.Stats()
	slog.Info("configuration initialized", "rosters", stats.Rosters)

	store, err := buildTelemetryStore(cfg, cred)
	if err != nil {
		log.Fatalf("failed to initialize telemetry store: %v", err)
	}

	queue, deadLetter, err := buildQueues(cfg, cred)
	if err != nil {
		log.Fatalf("failed to initialize queue clients: %v", err)
	}

	tracker := observer.New(store)

	// Agent roles are backed by a model service endpoint and tool plugins
	// that are both external to this engine (the LLMClient wire protocol
	// and every agent.Tool implementation belong to the deployment, not
	// this binary - see pkg/agent.LLMClient and pkg/agent.Tool). A real
	// deployment's buildAgentRegistry wires its own LLMClient and
	// ToolRegistry into pkg/agent.NewToolLoopController per role; until
	// then the registry stays empty and jobs dead-letter with a clear
	// "no agent registered" error rather than panicking.
	registry := buildAgentRegistry()

	machine := process.NewMachine(cfg, registry, store, tracker, cfg.Queue.MessageTimeout)
	pool := dispatcher.NewWorkerPool(podID, queue, deadLetter, cfg.Queue, machine)

	if err := pool.Start(ctx); err != nil {
		log.Fatalf("failed to start dispatcher worker pool: %v", err)
	}

	router := api.NewRouter(store, pool)
	server := &http.Server{Addr: ":" + httpPort, Handler: router}

	go func() {
		slog.Info("HTTP server listening", "port", httpPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received, draining in-flight work")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.GracefulShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown did not complete cleanly", "error", err)
	}

	pool.Stop()
	slog.Info("migrationsvc stopped")
}

func buildTelemetryStore(cfg *config.Config, cred azcore.TokenCredential) (telemetry.Store, error) {
	if cfg.Azure.CosmosEndpoint == "" {
		slog.Warn("COSMOS_ENDPOINT not set, falling back to an in-memory telemetry store (not durable across restarts)")
		return telemetry.NewMemStore(), nil
	}
	return telemetry.NewCosmosStoreFromEndpoint(cfg.Azure.CosmosEndpoint, cfg.Azure.CosmosDatabase, cfg.Azure.CosmosContainer, cred)
}

func buildQueues(cfg *config.Config, cred azcore.TokenCredential) (dispatcher.Queue, dispatcher.Queue, error) {
	if cfg.Azure.StorageAccountName == "" {
		return nil, nil, fmt.Errorf("STORAGE_ACCOUNT_NAME is required to build the dispatcher's queue clients")
	}
	base := fmt.Sprintf("https://%s.queue.core.windows.net", cfg.Azure.StorageAccountName)

	queue, err := queueadapter.New(base+"/"+cfg.Azure.QueueName, cred)
	if err != nil {
		return nil, nil, fmt.Errorf("building primary queue client: %w", err)
	}
	deadLetter, err := queueadapter.New(base+"/"+cfg.Azure.DeadLetterQueueName, cred)
	if err != nil {
		return nil, nil, fmt.Errorf("building dead-letter queue client: %w", err)
	}
	return queue, deadLetter, nil
}

// buildAgentRegistry is the seam a deployment fills in with its own
// agent.LLMClient and agent.ToolRegistry implementations, one
// agent.NewBaseAgent per roster role, wrapped in an
// agent.NewToolLoopController. Left empty here since both are explicitly
// out of this engine's scope.
func buildAgentRegistry() *phases.Registry {
	return phases.NewRegistry(nil)
}
