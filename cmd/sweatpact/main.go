package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sweatpact/sweatpact/internal/backup"
	"github.com/sweatpact/sweatpact/internal/database"
	"github.com/sweatpact/sweatpact/internal/logging"
	"github.com/sweatpact/sweatpact/internal/model"
	"github.com/sweatpact/sweatpact/internal/notify"
	"github.com/sweatpact/sweatpact/internal/server"
	"github.com/sweatpact/sweatpact/internal/tier"
)

func main() {
	logger := logging.Setup(os.Getenv("SWEATPACT_LOG_LEVEL"), os.Getenv("SWEATPACT_LOG_FORMAT"))

	port := os.Getenv("SWEATPACT_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("SWEATPACT_DB_PATH")
	if dbPath == "" {
		dbPath = "sweatpact.db"
	}

	jwtSecret := os.Getenv("SWEATPACT_JWT_SECRET")
	if jwtSecret == "" {
		slog.Error("SWEATPACT_JWT_SECRET is required")
		os.Exit(1)
	}

	db, err := database.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	cfg := server.Config{
		JWTSecret: []byte(jwtSecret),
		Stripe: tier.StripeConfig{
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			PriceTiers:    priceTiersFromEnv(),
		},
		Notify: notify.Config{
			VAPIDPublicKey:  os.Getenv("SWEATPACT_VAPID_PUBLIC_KEY"),
			VAPIDPrivateKey: os.Getenv("SWEATPACT_VAPID_PRIVATE_KEY"),
			Subscriber:      os.Getenv("SWEATPACT_VAPID_SUBSCRIBER"),
		},
		Backup: backup.Config{
			S3: backup.S3Config{
				Endpoint:  os.Getenv("SWEATPACT_S3_ENDPOINT"),
				Bucket:    os.Getenv("SWEATPACT_S3_BUCKET"),
				Region:    os.Getenv("SWEATPACT_S3_REGION"),
				AccessKey: os.Getenv("SWEATPACT_S3_ACCESS_KEY"),
				SecretKey: os.Getenv("SWEATPACT_S3_SECRET_KEY"),
			},
			DBPath:        dbPath,
			Passphrase:    os.Getenv("SWEATPACT_BACKUP_PASSPHRASE"),
			Hour:          envInt("SWEATPACT_BACKUP_HOUR", 3),
			RetentionDays: envInt("SWEATPACT_BACKUP_RETENTION_DAYS", 30),
		},
	}

	srv := server.New(db, cfg, logger)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	srv.Start(workerCtx)

	// Rate limiter windows expire but their map entries do not.
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			case <-workerCtx.Done():
				return
			}
		}
	}()

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("sweatpact starting", "addr", ":"+port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	workerCancel()
	srv.Stop()
}

// priceTiersFromEnv maps Stripe price IDs to tiers. Each variable holds
// the price ID sold for that tier.
func priceTiersFromEnv() map[string]model.Tier {
	tiers := map[string]model.Tier{}
	for env, t := range map[string]model.Tier{
		"STRIPE_PRICE_PRO":       model.TierPro,
		"STRIPE_PRICE_ELITE":     model.TierElite,
		"STRIPE_PRICE_CONCIERGE": model.TierConcierge,
		"STRIPE_PRICE_B2B":       model.TierB2B,
	} {
		if id := os.Getenv(env); id != "" {
			tiers[id] = t
		}
	}
	return tiers
}

func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer env var, using default", "name", name, "value", v, "default", fallback)
		return fallback
	}
	return n
}
