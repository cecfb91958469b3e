package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"propvest/internal/auth"
	"propvest/internal/events"
	"propvest/internal/handler"
	"propvest/internal/investment"
	"propvest/internal/ledger"
	"propvest/internal/middleware"
	"propvest/internal/profit"
	"propvest/internal/property"
	"propvest/internal/repository/postgres"
	"propvest/internal/scheduler"
	"propvest/internal/security"
	"propvest/internal/settings"
	"propvest/internal/transaction"
	"propvest/internal/user"
	"propvest/internal/wallet"
	"propvest/pkg/cache"
	"propvest/pkg/config"
	"propvest/pkg/logger"
	"propvest/pkg/validator"
)

func main() {
	cfg := config.Load()
	log := logger.NewWithLevel("propvest-wallet", cfg.Log.Level)

	if err := cfg.ValidateCore(); err != nil {
		log.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}

	log.Info("Starting wallet service", map[string]interface{}{
		"port":      cfg.Server.Port,
		"kafka":     cfg.Kafka.Enabled,
		"scheduler": cfg.Scheduler.Enabled,
	})

	db, err := postgres.Open(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	defer db.Close()
	log.Info("Database connected", nil)

	ctx := context.Background()
	redisClient, err := cache.Connect(ctx, cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal("Failed to connect to Redis", map[string]interface{}{"error": err.Error()})
	}
	defer redisClient.Close()
	store := cache.NewRedisCache(redisClient)
	log.Info("Redis connected", nil)

	crypto, err := security.NewCryptoService(cfg.JWT.EncryptionKey)
	if err != nil {
		log.Fatal("Invalid encryption key", map[string]interface{}{"error": err.Error()})
	}

	// Repositories
	walletRepo := postgres.NewWalletRepository(db)
	txRepo := postgres.NewTransactionRepository(db)
	userRepo := postgres.NewUserRepository(db, crypto)
	teamRepo := postgres.NewTeamRepository(db)
	settingsRepo := postgres.NewSettingsRepository(db)
	methodRepo := postgres.NewPaymentMethodRepository(db)
	propertyRepo := postgres.NewPropertyRepository(db)
	plotRepo := postgres.NewPlotRepository(db)
	saleRepo := postgres.NewSaleRepository(db)
	investmentRepo := postgres.NewInvestmentRepository(db)
	profitRepo := postgres.NewProfitRepository(db)
	securityRepo := postgres.NewSecurityLogRepository(db)

	// Events fan out to the admin live feed and, when enabled, Kafka.
	hub := events.NewHub(log, originAllowed(cfg.Server.CORSOrigins))
	publishers := events.Multi{hub}
	var kafkaPublisher *events.KafkaPublisher
	if cfg.Kafka.Enabled {
		kafkaPublisher = events.NewKafkaPublisher(events.NewKafkaWriter(cfg.Kafka), cfg.Kafka.PublishTimeout, log)
		publishers = append(publishers, kafkaPublisher)
	}

	// Services
	securityService := security.NewService(securityRepo, log)
	settingsService := settings.NewService(settingsRepo, store, cfg.Redis.CacheTTL, cfg.Policy, log)
	ledgerService := ledger.NewService(walletRepo, store, cfg.Redis.CacheTTL, publishers, log)
	txService := transaction.NewService(txRepo, ledgerService, walletRepo, methodRepo, settingsService, publishers, log)
	profitService := profit.NewService(profitRepo, saleRepo, investmentRepo, txService, settingsService, publishers, cfg.Workers.DistributeConcurrency, log)
	investmentService := investment.NewService(investmentRepo, propertyRepo, plotRepo, walletRepo, txService, publishers, log)
	propertyService := property.NewService(propertyRepo, plotRepo, saleRepo, investmentRepo, profitService, log)
	walletService := wallet.NewService(walletRepo, ledgerService, txRepo, methodRepo, log)
	userService := user.NewService(userRepo, teamRepo, log)
	authService := auth.NewService(userRepo, securityService, cfg.JWT.Secret, cfg.JWT.Expiration, cfg.JWT.TOTPIssuer, log)

	var cron *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		cron, err = scheduler.NewScheduler(cfg.Scheduler, txService, investmentService, ledgerService, log)
		if err != nil {
			log.Fatal("Invalid cron schedule", map[string]interface{}{"error": err.Error()})
		}
		cron.Start()
	}

	// Handlers
	val := validator.New()
	blacklist := middleware.NewCacheTokenBlacklist(store)

	router := handler.NewRouter(handler.Handlers{
		Auth:         handler.NewAuthHandler(authService, blacklist, cfg.JWT.Expiration, val, log),
		Wallet:       handler.NewWalletHandler(walletService, txService, val, log),
		Transactions: handler.NewTransactionHandler(txService, val, log),
		Investments:  handler.NewInvestmentHandler(investmentService, val, log),
		Profits:      handler.NewProfitHandler(profitService, val, log),
		Properties:   handler.NewPropertyHandler(propertyService, val, log),
		Users:        handler.NewUsersHandler(userService, val, log),
		Settings:     handler.NewSettingsHandler(settingsService, val, log),
		Security:     handler.NewSecurityHandler(securityService, log),
		Feed:         handler.NewFeedHandler(hub, log),
		System: handler.NewSystemHandler(map[string]handler.Check{
			"postgres": db.PingContext,
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		}, log),
	}, handler.Chain{
		Auth:         middleware.NewAuthMiddleware(cfg.JWT.Secret, blacklist),
		Audit:        middleware.NewAuditMiddleware(securityService),
		Idempotency:  middleware.NewIdempotencyMiddleware(store, cfg.Server.IdempotencyTTL),
		GlobalLimit:  middleware.NewRateLimiter(store, cfg.Server.RateLimit, time.Minute, "global"),
		UserLimit:    middleware.NewRateLimiter(store, cfg.Server.RateLimit*2/3, time.Minute, "user"),
		CORSOrigins:  cfg.Server.CORSOrigins,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Logger:       log,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("Wallet service started", map[string]interface{}{"address": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", map[string]interface{}{"error": err.Error()})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down wallet service...", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cron != nil {
		cron.Stop()
	}
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Wallet service forced to shutdown", map[string]interface{}{"error": err.Error()})
	}
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			log.Warn("Kafka writer close failed", map[string]interface{}{"error": err.Error()})
		}
	}

	log.Info("Wallet service stopped gracefully", nil)
}

// originAllowed mirrors the CORS allow-list for websocket upgrades.
func originAllowed(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return nil
		}
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}
