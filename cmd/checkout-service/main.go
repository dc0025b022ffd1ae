package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dukalink/checkout-service/internal/config"
	"github.com/dukalink/checkout-service/internal/db"
	"github.com/dukalink/checkout-service/internal/events"
	"github.com/dukalink/checkout-service/internal/mpesa"
	"github.com/dukalink/checkout-service/internal/notify"
	"github.com/dukalink/checkout-service/internal/order"
	"github.com/dukalink/checkout-service/internal/payment"
	"github.com/dukalink/checkout-service/internal/transport"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	log.Logger = log.With().Str("service", "checkout-service").Logger()

	log.Info().Msg("Checkout service starting...")

	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	if err := db.Migrate(cfg.Postgres); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	pg, err := db.New(context.Background(), cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pg.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	publisher := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer publisher.Close()

	var notifier payment.Notifier
	if cfg.SMS.Endpoint != "" {
		notifier = notify.NewSMSSender(notify.Config{
			Endpoint: cfg.SMS.Endpoint,
			APIKey:   cfg.SMS.APIKey,
			SenderID: cfg.SMS.SenderID,
		})
	}

	gateway := mpesa.NewClient(mpesa.Config{
		BaseURL:        cfg.Mpesa.BaseURL,
		ConsumerKey:    cfg.Mpesa.ConsumerKey,
		ConsumerSecret: cfg.Mpesa.ConsumerSecret,
		Shortcode:      cfg.Mpesa.Shortcode,
		Passkey:        cfg.Mpesa.Passkey,
		CallbackURL:    cfg.Mpesa.CallbackURL,
	})

	orderRepo := order.NewRepository(pg.Pool)
	orderSvc := order.NewService(orderRepo, publisher)

	paymentRepo := payment.NewRepository(pg.Pool)
	statusCache := payment.NewStatusCache(rdb, 24*time.Hour)
	paymentSvc := payment.NewService(paymentRepo, statusCache, gateway, orderSvc, publisher, notifier, cfg.Payment.StaleAfter)

	router := transport.NewRouter(orderSvc, paymentSvc)

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Shutdown failed")
	}
	log.Info().Msg("Server stopped")
}
