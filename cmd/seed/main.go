package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"nfcpay/internal/audit"
	"nfcpay/internal/auth"
	"nfcpay/internal/config"
	"nfcpay/internal/db"
	"nfcpay/internal/model"
	"nfcpay/internal/repository"
	"nfcpay/internal/service"
)

// Seeds a development environment with one program, one activatable batch
// of cards, an approved vendor holding part of the batch and a terminal,
// then prints the credentials a local client needs: the terminal API key,
// a few activation codes and JWTs for each role.
func main() {
	log.Println("Starting seed script...")

	cfg := config.Load()

	gormDB, err := db.NewMySQL(cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("Connected to database")

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
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations completed")

	ctx := context.Background()
	repos := repository.New(gormDB)
	auditLogger := audit.NewAsyncLogger(repos.Audit)
	defer auditLogger.Close()

	programService := service.NewProgramService(repos, auditLogger)
	vendorService := service.NewVendorService(repos, auditLogger)

	adminID := uuid.New()
	vendorUserID := uuid.New()
	cardholderID := uuid.New()

	now := time.Now()
	program, err := programService.CreateProgram(ctx, service.CreateProgramInput{
		Code:                "TRANSIT-25",
		Name:                "Transit Prepaid 25",
		Category:            "transit",
		IsReloadable:        true,
		IssuancePrice:       decimal.NewFromInt(5),
		InitialBalance:      decimal.NewFromInt(25),
		PerTransactionLimit: decimal.NewFromInt(100),
		DailyLimit:          decimal.NewFromInt(300),
		ValidFrom:           now,
		ValidUntil:          now.AddDate(3, 0, 0),
	}, adminID)
	if err != nil {
		log.Fatalf("Failed to create program: %v", err)
	}
	log.Printf("Created program %s (%s)", program.Code, program.ID)

	batch, err := programService.CreateBatch(ctx, service.CreateBatchInput{
		ProgramID:     program.ID,
		BatchNo:       "B-2026-001",
		Manufacturer:  "CardWorks Ltd",
		SerialPrefix:  "6037",
		SequenceStart: 1,
		SequenceEnd:   100,
	}, adminID)
	if err != nil {
		log.Fatalf("Failed to create batch: %v", err)
	}
	for _, status := range []model.BatchStatus{
		model.BatchStatusPrinting, model.BatchStatusShipped, model.BatchStatusActivatable,
	} {
		if batch, err = programService.UpdateBatchStatus(ctx, batch.ID, status, adminID); err != nil {
			log.Fatalf("Failed to advance batch to %s: %v", status, err)
		}
	}
	log.Printf("Created batch %s with %d cards (ACTIVATABLE)", batch.BatchNo, batch.CardCount())

	vendor, err := vendorService.RegisterVendor(ctx, service.RegisterVendorInput{
		BusinessName:      "Corner Kiosk",
		ContactEmail:      "kiosk@example.com",
		CommissionType:    model.CommissionTypePercent,
		CommissionRate:    decimal.NewFromInt(10),
		MaxInventoryValue: decimal.NewFromInt(1000),
		UserID:            &vendorUserID,
	})
	if err != nil {
		log.Fatalf("Failed to register vendor: %v", err)
	}
	if vendor, err = vendorService.ApproveVendor(ctx, vendor.ID, adminID); err != nil {
		log.Fatalf("Failed to approve vendor: %v", err)
	}
	if _, err := vendorService.AssignInventory(ctx, service.AssignInventoryInput{
		VendorID:      vendor.ID,
		BatchID:       batch.ID,
		SequenceStart: 1,
		SequenceEnd:   51,
	}, adminID); err != nil {
		log.Fatalf("Failed to assign inventory: %v", err)
	}
	log.Printf("Approved vendor %s with cards 1-50", vendor.BusinessName)

	apiKey, err := randomKey()
	if err != nil {
		log.Fatalf("Failed to generate terminal key: %v", err)
	}
	terminal := &model.Terminal{
		TerminalCode: "T-0001",
		MerchantCode: "M-0001",
		MerchantName: "Metro Station Kiosk",
		APIKeyHash:   auth.HashAPIKey(apiKey),
		Active:       true,
	}
	if err := repos.Terminals.Create(ctx, terminal); err != nil {
		log.Fatalf("Failed to create terminal: %v", err)
	}

	cards, err := repos.Cards.List(ctx, 3, 0)
	if err != nil {
		log.Fatalf("Failed to list cards: %v", err)
	}

	jwtService := auth.NewJWTService(cfg.JWTSecret)
	tokens := map[string]struct {
		userID uuid.UUID
		role   auth.Role
	}{
		"cardholder": {cardholderID, auth.RoleUser},
		"vendor":     {vendorUserID, auth.RoleVendor},
		"admin":      {adminID, auth.RoleAdmin},
		"superadmin": {adminID, auth.RoleSuperAdmin},
	}

	log.Println("Seed completed successfully!")
	log.Printf("  Terminal %s API key: %s", terminal.TerminalCode, apiKey)
	for i := range cards {
		log.Printf("  Card %s activation code: %s", cards[i].SerialNumber, cards[i].ActivationCode)
	}
	for name, t := range tokens {
		token, err := jwtService.GenerateToken(t.userID, t.role, 24*time.Hour)
		if err != nil {
			log.Fatalf("Failed to generate %s token: %v", name, err)
		}
		log.Printf("  %s JWT: %s", name, token)
	}
}

func randomKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
