package router

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"
	"golang.org/x/time/rate"

	"nfcpay/internal/auth"
	"nfcpay/internal/cache"
	"nfcpay/internal/config"
	"nfcpay/internal/handler"
	"nfcpay/internal/repository"
)

// Register wires routes and middleware.
func Register(
	e *echo.Echo,
	cfg *config.Config,
	repos *repository.Repos,
	cacheClient *cache.Client,
	cardHandler *handler.CardHandler,
	tapHandler *handler.TapHandler,
	programHandler *handler.ProgramHandler,
	vendorHandler *handler.VendorHandler,
	adminHandler *handler.AdminHandler,
) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	e.Validator = &CustomValidator{validator: validator.New()}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	api := e.Group("/api/nfc-cards")

	// Challenge issuance is unauthenticated: a challenge proves nothing by
	// itself and is only redeemed at tap time. Rate limited per client IP,
	// ChallengeRateLimit is requests per second.
	api.POST("/challenge", tapHandler.IssueChallenge,
		middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.ChallengeRateLimit))))

	// Terminal routes: static API key auth, no JWT.
	terminal := api.Group("", auth.TerminalAuth(repos.Terminals, cacheClient))
	terminal.POST("/tap-to-pay", tapHandler.TapToPay)

	// Cardholder routes.
	jwtRequired := auth.JWTMiddleware(cfg.JWTSecret)
	user := api.Group("", jwtRequired, auth.RequireRoles(auth.RoleUser, auth.RoleAdmin, auth.RoleSuperAdmin))
	user.POST("/activate", cardHandler.Activate)
	user.GET("/my-cards", cardHandler.MyCards)
	user.POST("/:id/pin", cardHandler.SetPIN)
	user.GET("/:id/balance", cardHandler.GetBalance)
	user.POST("/:id/reload", cardHandler.Reload)
	user.POST("/:id/freeze", cardHandler.Freeze)
	user.POST("/:id/unfreeze", cardHandler.Unfreeze)
	user.POST("/:id/block", cardHandler.Block)
	user.POST("/:id/replacement", cardHandler.RequestReplacement)
	user.GET("/:id/transactions", cardHandler.Transactions)
	user.GET("/:id/ledger", cardHandler.LedgerEntries)

	// Vendor-facing routes.
	vendor := api.Group("/vendor", jwtRequired, auth.RequireRoles(auth.RoleVendor))
	vendor.POST("/sales", vendorHandler.RecordSale)
	vendor.GET("/dashboard", vendorHandler.Dashboard)

	// Vendor administration.
	vendorAdmin := api.Group("/vendors", jwtRequired, auth.RequireRoles(auth.RoleAdmin, auth.RoleSuperAdmin))
	vendorAdmin.POST("", vendorHandler.RegisterVendor)
	vendorAdmin.GET("", vendorHandler.ListVendors)
	vendorAdmin.POST("/:id/approve", vendorHandler.ApproveVendor)
	vendorAdmin.POST("/:id/suspend", vendorHandler.SuspendVendor)
	vendorAdmin.POST("/inventory", vendorHandler.AssignInventory)

	// Program and batch administration. Program creation and status changes
	// are SUPERADMIN-only; batch logistics is regular ADMIN work.
	programs := api.Group("/programs", jwtRequired)
	programs.POST("", programHandler.CreateProgram, auth.RequireRoles(auth.RoleSuperAdmin))
	programs.PATCH("/:id/status", programHandler.UpdateProgramStatus, auth.RequireRoles(auth.RoleSuperAdmin))
	programs.GET("", programHandler.ListPrograms, auth.RequireRoles(auth.RoleAdmin, auth.RoleSuperAdmin))
	programs.GET("/:id", programHandler.GetProgram, auth.RequireRoles(auth.RoleAdmin, auth.RoleSuperAdmin))

	batches := api.Group("/batches", jwtRequired, auth.RequireRoles(auth.RoleAdmin, auth.RoleSuperAdmin))
	batches.POST("", programHandler.CreateBatch)
	batches.GET("", programHandler.ListBatches)
	batches.PATCH("/:id/status", programHandler.UpdateBatchStatus)

	// Back office.
	admin := api.Group("/admin", jwtRequired, auth.RequireRoles(auth.RoleAdmin, auth.RoleSuperAdmin))
	admin.GET("/dashboard", adminHandler.Dashboard)
	admin.GET("/cards", adminHandler.ListCards)
	admin.GET("/transactions", adminHandler.ListTransactions)
	admin.GET("/audit", adminHandler.AuditTrail)
	admin.POST("/reconcile", adminHandler.Reconcile)
}

// CustomValidator wraps validator for Echo.
type CustomValidator struct {
	validator *validator.Validate
}

// Validate implements echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}
