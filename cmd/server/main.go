package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "nfcpay/docs" // swagger docs

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"nfcpay/internal/audit"
	"nfcpay/internal/cache"
	"nfcpay/internal/challenge"
	"nfcpay/internal/config"
	"nfcpay/internal/db"
	"nfcpay/internal/handler"
	"nfcpay/internal/model"
	"nfcpay/internal/repository"
	"nfcpay/internal/router"
	"nfcpay/internal/service"
)

// @title NFC Prepaid Card API
// @version 1.0
// @description NFC prepaid card subsystem: issuance, activation, tap-to-pay, vendor inventory and back-office administration.
// @host localhost:8080
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	cfg := config.Load()

	e := echo.New()
	e.Use(middleware.RequestID())

	gormDB, err := db.NewMySQL(cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("database init: %v", err)
	}

	// Drop tables if RESET_DB environment variable is set
	if os.Getenv("RESET_DB") == "true" {
		log.Println("RESET_DB=true detected, dropping all tables...")
		tables := []interface{}{
			&model.AuditEvent{},
			&model.LedgerEntry{},
			&model.CardTransaction{},
			&model.ReplacementRequest{},
			&model.VendorSale{},
			&model.VendorInventoryAssignment{},
			&model.PrepaidCard{},
			&model.CardBatch{},
			&model.CardProgram{},
			&model.Vendor{},
			&model.Terminal{},
		}
		for _, table := range tables {
			if err := gormDB.Migrator().DropTable(table); err != nil {
				log.Printf("Warning: Failed to drop table (may not exist): %v", err)
			}
		}
		log.Println("Tables dropped")
	}

	// Run migrations for all models
	if err := gormDB.AutoMigrate(
		&model.CardProgram{},
		&model.CardBatch{},
		&model.Vendor{},
		&model.PrepaidCard{},
		&model.VendorInventoryAssignment{},
		&model.VendorSale{},
		&model.Terminal{},
		&model.CardTransaction{},
		&model.LedgerEntry{},
		&model.ReplacementRequest{},
		&model.AuditEvent{},
	); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	cacheClient := cache.NewWithClient(redisClient)

	repos := repository.New(gormDB)

	auditLogger := audit.NewAsyncLogger(repos.Audit)
	defer auditLogger.Close()

	// Challenge validation fails closed, so it gets the raw Redis client
	// rather than the fail-safe cache wrapper.
	challengeService := challenge.NewService(challenge.NewRedisStore(redisClient), cfg.CardMasterKey, cfg.ChallengeTTL)

	ledgerService := service.NewLedgerService(repos, auditLogger, cfg.LedgerSigningKey)
	registryService := service.NewRegistryService(repos, challengeService, auditLogger, cfg.LedgerSigningKey)
	tapService := service.NewTapService(repos, ledgerService, challengeService, auditLogger, cfg.LedgerSigningKey, service.TapConfig{
		PINMaxAttempts:  cfg.PINMaxAttempts,
		PINLockCooldown: cfg.PINLockCooldown,
		TapTimeout:      cfg.TapTimeout,
		OfflineCeiling:  cfg.OfflineCeiling,
	})
	vendorService := service.NewVendorService(repos, auditLogger)
	programService := service.NewProgramService(repos, auditLogger)
	adminService := service.NewAdminService(repos)

	cardHandler := handler.NewCardHandler(registryService, ledgerService)
	tapHandler := handler.NewTapHandler(challengeService, tapService)
	programHandler := handler.NewProgramHandler(programService)
	vendorHandler := handler.NewVendorHandler(vendorService)
	adminHandler := handler.NewAdminHandler(adminService, tapService)

	router.Register(e, cfg, repos, cacheClient, cardHandler, tapHandler, programHandler, vendorHandler, adminHandler)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	tapService.StartReconciler(ctx, cfg.ReconcileInterval)

	go func() {
		if err := e.Start(":" + cfg.ServerPort); err != nil {
			log.Printf("server stopped: %v", err)
		}
	}()

	<-ctx.Done()
	if err := e.Shutdown(context.Background()); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
