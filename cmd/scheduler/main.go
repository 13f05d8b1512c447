package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mekazstan/ticket-checkout-api/internal/auth"
	"github.com/Mekazstan/ticket-checkout-api/internal/cache"
	"github.com/Mekazstan/ticket-checkout-api/internal/catalog"
	"github.com/Mekazstan/ticket-checkout-api/internal/checkout"
	"github.com/Mekazstan/ticket-checkout-api/internal/config"
	"github.com/Mekazstan/ticket-checkout-api/internal/database"
	"github.com/Mekazstan/ticket-checkout-api/internal/email"
	"github.com/Mekazstan/ticket-checkout-api/internal/events"
	"github.com/Mekazstan/ticket-checkout-api/internal/jobs"
	"github.com/Mekazstan/ticket-checkout-api/internal/payment"
	"github.com/Mekazstan/ticket-checkout-api/internal/session"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Unable to ping database: %v", err)
	}

	log.Println("Connected to database successfully")

	if err := database.Migrate(ctx, pool); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Unable to parse Redis URL: %v", err)
	}
	redisClient := redis.NewClient(opt)
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Unable to connect to Redis: %v", err)
	}

	ticketCatalog, err := catalog.Load(cfg.TicketCatalogPath)
	if err != nil {
		log.Fatalf("Failed to load ticket catalog: %v", err)
	}

	emailService, err := email.NewEmailService(email.Settings{
		SMTPHost:     cfg.SMTPHost,
		SMTPPort:     cfg.SMTPPort,
		SMTPUsername: cfg.SMTPUsername,
		SMTPPassword: cfg.SMTPPassword,
		FromEmail:    cfg.FromEmail,
		FromName:     cfg.FromName,
		EventName:    ticketCatalog.EventName,
		AppURL:       cfg.FrontendURL,
	})
	if err != nil {
		log.Fatalf("Failed to initialize email service: %v", err)
	}

	db := database.New(pool)

	providerOpts := []payment.Option{
		payment.WithTimeout(cfg.ProviderTimeout),
		payment.WithMaxRetries(cfg.ProviderMaxRetries),
	}
	paystack := payment.NewPaystackProvider(cfg.PaystackSecretKey, cfg.PaystackPublicKey,
		append(providerOpts, payment.WithBaseURL(cfg.PaystackBaseURL))...)
	// Reconciliation only verifies, so Etegram needs no handoff signer here.
	etegram := payment.NewEtegramProvider(cfg.EtegramSecretKey, cfg.EtegramPublicKey, nil,
		append(providerOpts, payment.WithBaseURL(cfg.EtegramBaseURL))...)

	checkoutOpts := []checkout.Option{
		checkout.WithSessions(session.NewRedisStore(redisClient, cfg.SessionTTL)),
		checkout.WithCatalog(ticketCatalog),
		checkout.WithClaims(cache.NewRedisCache(redisClient)),
		checkout.WithNotifier(emailService),
	}
	if cfg.HandoffTokenSecret != "" {
		checkoutOpts = append(checkoutOpts, checkout.WithHandoffValidator(auth.NewHandoffIssuer(cfg.HandoffTokenSecret, cfg.HandoffTokenTTL)))
	}
	if len(cfg.KafkaBrokers) > 0 {
		producer := events.NewProducer(cfg.KafkaBrokers, cfg.KafkaPurchaseTopic)
		defer producer.Close()
		checkoutOpts = append(checkoutOpts, checkout.WithPublisher(producer))
	}

	service := checkout.NewService(payment.NewPaymentService(paystack, etegram), db, checkoutOpts...)

	c := cron.New(cron.WithSeconds())

	// ============================================
	// Job 1: Stale Purchase Reconciliation
	// Runs every 5 minutes
	// ============================================
	_, err = c.AddFunc("0 */5 * * * *", func() {
		log.Println("Starting stale purchase reconciliation...")

		jobCtx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
		defer cancel()

		stats, err := jobs.ReconcileStalePurchases(jobCtx, db, service, time.Now(), cfg.ReconcileAfter, cfg.AbandonAfter)
		if err != nil {
			log.Printf("ERROR: Failed to reconcile purchases: %v", err)
			return
		}

		log.Printf("Reconciliation completed: checked=%d verified=%d failed=%d pending=%d errors=%d",
			stats.Checked, stats.Verified, stats.Failed, stats.Pending, stats.Errors)
	})
	if err != nil {
		log.Fatalf("Failed to schedule reconciliation job: %v", err)
	}

	// ============================================
	// Job 2: Abandoned Purchase Expiry
	// Runs at the top of every hour
	// ============================================
	_, err = c.AddFunc("0 0 * * * *", func() {
		log.Println("Starting abandoned purchase expiry...")

		jobCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		expired, err := jobs.ExpireAbandonedPurchases(jobCtx, db, time.Now(), cfg.AbandonAfter)
		if err != nil {
			log.Printf("ERROR: Failed to expire abandoned purchases: %v", err)
			return
		}

		log.Printf("Expired %d abandoned purchases", expired)
	})
	if err != nil {
		log.Fatalf("Failed to schedule expiry job: %v", err)
	}

	c.Start()
	log.Println("========================================")
	log.Println("Cron scheduler started successfully")
	log.Println("========================================")
	log.Println("Scheduled jobs:")
	log.Printf("1. Reconciliation: every 5 minutes (purchases older than %v)", cfg.ReconcileAfter)
	log.Printf("2. Expiry: every hour (purchases older than %v)", cfg.AbandonAfter)
	log.Println("========================================")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down cron scheduler...")

	ctx = c.Stop()
	<-ctx.Done()

	log.Println("Cron scheduler stopped successfully")
}
