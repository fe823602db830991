package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wenwu/saas-platform/whatsapp-service/internal/client"
	"github.com/wenwu/saas-platform/whatsapp-service/internal/config"
	"github.com/wenwu/saas-platform/whatsapp-service/internal/db"
	"github.com/wenwu/saas-platform/whatsapp-service/internal/http"
	"github.com/wenwu/saas-platform/whatsapp-service/internal/metrics"
	"github.com/wenwu/saas-platform/whatsapp-service/internal/models"
	"github.com/wenwu/saas-platform/whatsapp-service/internal/repository"
	"github.com/wenwu/saas-platform/whatsapp-service/internal/service"
	"github.com/wenwu/saas-platform/whatsapp-service/migrations"
)

func main() {
	log.Println("Starting WhatsApp Service...")

	// Load and validate configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize database
	pool, err := db.NewPool(cfg.Database.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer migrateCancel()
	if err := db.ApplyMigrations(migrateCtx, pool, migrations.FS); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	// Initialize metrics
	mets := metrics.Registry(cfg.Metrics.Namespace)

	// Initialize repositories
	instanceRepo := repository.NewInstanceRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	limitsRepo := repository.NewLimitsRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)

	// Initialize gateway client
	evolutionClient := client.NewEvolutionClient(
		cfg.Evolution.URL,
		cfg.Evolution.APIKey,
		cfg.Evolution.Timeout,
		mets,
	)

	// System-default quota ceilings for users without a limits record
	defaults := models.UserLimits{
		MaxInstances:      cfg.Quota.MaxInstances,
		MaxMessagesPerDay: cfg.Quota.MaxMessagesPerDay,
		MaxContacts:       cfg.Quota.MaxContacts,
		MaxGroups:         cfg.Quota.MaxGroups,
	}

	// Initialize services
	ledger := service.NewLedger(
		instanceRepo,
		messageRepo,
		limitsRepo,
		userRepo,
		defaults,
		cfg.Location(),
		mets,
	)

	instanceService := service.NewInstanceService(
		instanceRepo,
		evolutionClient,
		ledger,
		cfg.Evolution.DefaultAdapter,
		cfg.Evolution.Timeout,
	)

	messageService := service.NewMessageService(
		instanceRepo,
		messageRepo,
		evolutionClient,
		ledger,
		cfg.Evolution.Timeout,
		mets,
	)

	userService := service.NewUserService(userRepo, limitsRepo, instanceRepo, defaults)

	// Initialize HTTP server
	server := http.NewServer(cfg, instanceService, messageService, userService)

	// Start server in goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		log.Printf("Server starting on %s", addr)
		if err := server.Run(addr); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	log.Println("Server exited")
}
