package main

import (
	"context"
	"errors"
	"log"
	"net/http"
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
	"github.com/Mekazstan/ticket-checkout-api/internal/payment"
	"github.com/Mekazstan/ticket-checkout-api/internal/session"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type apiConfig struct {
	checkout      *checkout.Service
	sessions      session.Store
	catalog       *catalog.Catalog
	purchases     purchaseLister
	webhooks      webhookVerifier
	frontendURL   string
	multiAttendee bool
	now           func() time.Time
	healthChecks  map[string]func(context.Context) error
}

func main() {
	appCfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if appCfg.IsProduction() && appCfg.HandoffTokenSecret == "" {
		log.Println("Warning: HANDOFF_TOKEN_SECRET is not set, Etegram handoff tokens are disabled")
	}

	// Connect to database
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, appCfg.DatabaseURL)
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

	// Connect to Redis
	opt, err := redis.ParseURL(appCfg.RedisURL)
	if err != nil {
		log.Fatalf("Unable to parse Redis URL: %v", err)
	}
	redisClient := redis.NewClient(opt)
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Unable to connect to Redis: %v", err)
	}
	log.Println("Connected to Redis successfully")

	ticketCatalog, err := catalog.Load(appCfg.TicketCatalogPath)
	if err != nil {
		log.Fatalf("Failed to load ticket catalog: %v", err)
	}

	emailService, err := email.NewEmailService(email.Settings{
		SMTPHost:     appCfg.SMTPHost,
		SMTPPort:     appCfg.SMTPPort,
		SMTPUsername: appCfg.SMTPUsername,
		SMTPPassword: appCfg.SMTPPassword,
		FromEmail:    appCfg.FromEmail,
		FromName:     appCfg.FromName,
		EventName:    ticketCatalog.EventName,
		AppURL:       appCfg.FrontendURL,
	})
	if err != nil {
		log.Fatalf("Failed to initialize email service: %v", err)
	}
	if !emailService.Enabled() {
		log.Println("Warning: SMTP is not configured, confirmation emails are disabled")
	}

	dbQueries := database.New(pool)
	redisCache := cache.NewRedisCache(redisClient)
	sessionStore := session.NewRedisStore(redisClient, appCfg.SessionTTL)
	handoff := auth.NewHandoffIssuer(appCfg.HandoffTokenSecret, appCfg.HandoffTokenTTL)

	providerOpts := []payment.Option{
		payment.WithTimeout(appCfg.ProviderTimeout),
		payment.WithMaxRetries(appCfg.ProviderMaxRetries),
	}
	paystack := payment.NewPaystackProvider(appCfg.PaystackSecretKey, appCfg.PaystackPublicKey,
		append(providerOpts, payment.WithBaseURL(appCfg.PaystackBaseURL))...)

	var signer payment.HandoffSigner
	if appCfg.HandoffTokenSecret != "" {
		signer = handoff
	}
	etegram := payment.NewEtegramProvider(appCfg.EtegramSecretKey, appCfg.EtegramPublicKey, signer,
		append(providerOpts, payment.WithBaseURL(appCfg.EtegramBaseURL))...)

	checkoutOpts := []checkout.Option{
		checkout.WithSessions(sessionStore),
		checkout.WithCatalog(ticketCatalog),
		checkout.WithClaims(redisCache),
		checkout.WithNotifier(emailService),
		checkout.WithCallbackURL(appCfg.CallbackURL()),
		checkout.WithStrictPricing(appCfg.StrictPricing),
	}
	if appCfg.HandoffTokenSecret != "" {
		checkoutOpts = append(checkoutOpts, checkout.WithHandoffValidator(handoff))
	}

	healthChecks := map[string]func(context.Context) error{
		"database": pool.Ping,
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	}

	if len(appCfg.KafkaBrokers) > 0 {
		producer := events.NewProducer(appCfg.KafkaBrokers, appCfg.KafkaPurchaseTopic)
		defer producer.Close()

		if err := producer.CheckConnection(ctx); err != nil {
			log.Printf("Warning: Kafka is unreachable, purchase events may be lost: %v", err)
		}
		checkoutOpts = append(checkoutOpts, checkout.WithPublisher(producer))
		healthChecks["kafka"] = producer.CheckConnection
	} else {
		log.Println("KAFKA_BROKERS not set, purchase events are disabled")
	}

	cfg := apiConfig{
		checkout:      checkout.NewService(payment.NewPaymentService(paystack, etegram), dbQueries, checkoutOpts...),
		sessions:      sessionStore,
		catalog:       ticketCatalog,
		purchases:     dbQueries,
		webhooks:      paystack,
		frontendURL:   appCfg.FrontendURL,
		multiAttendee: appCfg.MultiAttendeeMode,
		now:           time.Now,
		healthChecks:  healthChecks,
	}

	handler := cfg.routes(redisCache, appCfg.RateLimit, appCfg.AdminAPIKeyHash)

	server := &http.Server{
		Addr:              ":" + appCfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s (%s)", appCfg.Port, appCfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

func (cfg *apiConfig) routes(limiter hitCounter, rateLimit int, adminKeyHash string) http.Handler {
	mux := http.NewServeMux()

	// Payment routes
	rateLimitMiddleware := RateLimitMiddleware(limiter, rateLimit)
	mux.Handle("POST /payment/initialize", rateLimitMiddleware(http.HandlerFunc(cfg.initializePaymentHandler)))
	mux.HandleFunc("POST /payment/verify", cfg.verifyPaymentHandler)
	mux.HandleFunc("GET /payment/verify", cfg.verifyRedirectHandler)

	// Webhook routes (no auth - verified by signature)
	mux.HandleFunc("POST /payment/webhook/paystack", cfg.paystackWebhookHandler)

	// Checkout session routes
	mux.HandleFunc("GET /tickets", cfg.listTicketsHandler)
	mux.HandleFunc("POST /sessions", cfg.createSessionHandler)
	mux.HandleFunc("GET /sessions/{id}", cfg.getSessionHandler)
	mux.HandleFunc("POST /sessions/{id}/cart", cfg.addToCartHandler)
	mux.HandleFunc("PATCH /sessions/{id}/cart/{ticketType}", cfg.updateCartHandler)
	mux.HandleFunc("DELETE /sessions/{id}/cart/{ticketType}", cfg.removeFromCartHandler)
	mux.HandleFunc("PUT /sessions/{id}/attendees/{index}", cfg.captureAttendeeHandler)
	mux.HandleFunc("DELETE /sessions/{id}", cfg.resetSessionHandler)

	// Operator routes
	adminMiddleware := AdminKeyMiddleware(adminKeyHash)
	mux.Handle("GET /admin/purchases", adminMiddleware(http.HandlerFunc(cfg.listPurchasesHandler)))

	mux.HandleFunc("GET /health", cfg.healthHandler)

	return RecoveryMiddleware(
		RequestIDMiddleware(
			LoggingMiddleware(
				SecurityHeadersMiddleware(
					middlewareCors(mux),
				),
			),
		),
	)
}
