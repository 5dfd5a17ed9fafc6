// @title           Assignment Portal API
// @version         1.0
// @description     Backend-for-frontend of the assignment marketplace portals: students post assignments through a wizard and manage their wallet, admins staff assignments, freelancers read their work.
// @BasePath        /api
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
// @description     Format: Bearer <token>
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aldoetobex/assignment-portal/internal/assignments"
	"github.com/aldoetobex/assignment-portal/internal/auth"
	"github.com/aldoetobex/assignment-portal/internal/marketplace"
	"github.com/aldoetobex/assignment-portal/internal/payments"
	"github.com/aldoetobex/assignment-portal/internal/query"
	"github.com/aldoetobex/assignment-portal/internal/stage"
	"github.com/aldoetobex/assignment-portal/internal/storage"
	"github.com/aldoetobex/assignment-portal/internal/wallet"
	"github.com/aldoetobex/assignment-portal/internal/wizard"
	"github.com/aldoetobex/assignment-portal/pkg/cache"
	"github.com/aldoetobex/assignment-portal/pkg/config"
	"github.com/aldoetobex/assignment-portal/pkg/database"
	"github.com/aldoetobex/assignment-portal/pkg/logger"
	"github.com/aldoetobex/assignment-portal/pkg/models"
)

func main() {
	cfgPath := flag.String("config", "", "path to config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}
	zl, err := logger.New(&cfg.Log)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Postgres holds the audit tables only; the portal runs without it.
	var db *gorm.DB
	if cfg.Database.DSN != "" {
		db, err = database.Open(cfg.Database.DSN, zl)
		if err != nil {
			zl.Fatal("database", zap.Error(err))
		}
		if err := database.Migrate(db); err != nil {
			zl.Fatal("database", zap.Error(err))
		}
	} else {
		zl.Warn("no database configured, submissions and top-ups are not audited")
	}

	var queries query.Store = query.NewMemoryStore()
	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewClient(&cfg.Redis, zl)
		if err != nil {
			zl.Warn("redis unavailable, list filters are kept in memory", zap.Error(err))
		} else {
			defer func() { _ = rdb.Close() }()
			queries = query.NewRedisStore(rdb, zl)
		}
	}

	mp := marketplace.New(cfg.Marketplace.BaseURL,
		marketplace.WithTimeout(cfg.Marketplace.Timeout),
		marketplace.WithRetry(cfg.Marketplace.Retries, cfg.Marketplace.RetryBase),
		marketplace.WithLogger(zl),
	)

	var payer payments.Collaborator
	switch cfg.Payment.Provider {
	case "stripe":
		payer = payments.NewStripe(cfg.Payment.StripeSecretKey, cfg.Payment.Currency, nil, zl)
	default:
		payer = payments.NewMock()
	}
	var audit wizard.SubmissionLog = wizard.NopLog{}
	if db != nil {
		payer = payments.NewRecorder(payer, db, zl)
		audit = wizard.NewGormLog(db)
	}

	sessions := wizard.NewStore(cfg.Wizard.SessionTTL, wizard.WithStoreLogger(zl))
	go sessions.Run(ctx, cfg.Wizard.SweepInterval)

	app := fiber.New(fiber.Config{
		ErrorHandler: auth.ErrorHandler,
		BodyLimit:    6 * int(wizard.MaxFileSize),
	})
	app.Use(recover.New())
	app.Use(logger.Middleware(zl))
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Server.AllowOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	app.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })

	api := app.Group("/api")
	secret := cfg.Auth.JWTSecret
	requireAuth := auth.RequireAuth(secret)

	// Auth
	authH := auth.NewHandler(secret, cfg.Auth.DevPasswordHash)
	api.Get("/me", requireAuth, authH.Me)
	if cfg.IsDev() && authH.DevLoginEnabled() {
		api.Post("/dev/login", authH.DevLogin)
		zl.Warn("dev login is mounted")
	}

	// Reference data
	api.Get("/stages", stage.List)
	api.Get("/catalog", wizard.Catalog)

	// Wizard (student)
	wizH := wizard.NewHandler(sessions, mp, audit, zl)
	wz := api.Group("/wizard", requireAuth, auth.RequireRole(models.RoleStudent))
	wz.Post("/", wizH.Start)
	wz.Get("/:id", wizH.Get)
	wz.Put("/:id/category", wizH.SelectCategory)
	wz.Put("/:id/details", wizH.UpdateDetails)
	wz.Post("/:id/files", wizH.AttachFiles)
	wz.Delete("/:id/files/:index", wizH.RemoveFile)
	wz.Post("/:id/next", wizH.Next)
	wz.Post("/:id/back", wizH.Back)
	wz.Post("/:id/submit", wizH.Submit)
	wz.Delete("/:id", wizH.Discard)

	// Assignments (all roles; staffing is admin only)
	asgH := assignments.NewHandler(mp, queries, zl)
	api.Get("/assignments", requireAuth, asgH.List)
	api.Get("/assignments/:id", requireAuth, asgH.Get)
	api.Patch("/assignments/:id/staff", requireAuth, auth.RequireRole(models.RoleAdmin), asgH.UpdateStaff)

	// Wallet (student)
	walH := wallet.NewHandler(wallet.NewService(mp, payer, cfg.Payment.Currency, zl))
	api.Get("/wallet", requireAuth, auth.RequireRole(models.RoleStudent), walH.Get)
	api.Post("/wallet/topup", requireAuth, auth.RequireRole(models.RoleStudent), walH.TopUp)

	// Files
	fileH := storage.NewHandler(storage.NewSupabase(&cfg.Storage), mp, zl)
	api.Get("/files/signed-url", requireAuth, fileH.SignedURL)

	go func() {
		<-ctx.Done()
		zl.Info("shutting down")
		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			zl.Error("shutdown", zap.Error(err))
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	zl.Info("server running", zap.String("addr", addr), zap.String("env", cfg.AppEnv), zap.String("payments", payer.Name()))
	if err := app.Listen(addr); err != nil {
		zl.Fatal("listen", zap.Error(err))
	}
}
