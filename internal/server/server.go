package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/sweatpact/sweatpact/internal/backup"
	"github.com/sweatpact/sweatpact/internal/call"
	"github.com/sweatpact/sweatpact/internal/clock"
	"github.com/sweatpact/sweatpact/internal/donation"
	"github.com/sweatpact/sweatpact/internal/engine"
	"github.com/sweatpact/sweatpact/internal/handler"
	"github.com/sweatpact/sweatpact/internal/jobs"
	"github.com/sweatpact/sweatpact/internal/middleware"
	"github.com/sweatpact/sweatpact/internal/notify"
	"github.com/sweatpact/sweatpact/internal/store"
	"github.com/sweatpact/sweatpact/internal/streak"
	"github.com/sweatpact/sweatpact/internal/tier"
	"github.com/sweatpact/sweatpact/internal/wallet"
	ws "github.com/sweatpact/sweatpact/internal/websocket"
)

// Config holds everything the server needs beyond the database handle.
type Config struct {
	JWTSecret []byte
	Stripe    tier.StripeConfig
	Notify    notify.Config
	Backup    backup.Config
	// Dialer places outbound calls. Nil leaves calls scheduled but
	// undialed, which is the local-development mode.
	Dialer call.Dialer
	// DailyInterval is how often the daily call sweep re-runs. Zero uses
	// the default.
	DailyInterval time.Duration
}

type Server struct {
	db       *sql.DB
	hub      *ws.Hub
	workoutH *handler.WorkoutHandler
	callH    *handler.CallHandler
	charityH *handler.CharityHandler
	pushH    *handler.PushHandler
	billingH *handler.BillingHandler

	engine        *engine.Engine
	runner        *jobs.TimerRunner
	callScheduler *call.Scheduler
	dailySched    *engine.DailyScheduler
	backupManager *backup.Manager
	rateLimiter   *middleware.RateLimiter

	jwtSecret []byte
	logger    *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	clk := clock.System{}
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	workoutStore := store.NewWorkoutStore(db)
	charityStore := store.NewCharityStore(db)
	donationStore := store.NewDonationStore(db)
	streakStore := store.NewStreakStore(db)
	callStore := store.NewCallStore(db)
	pushStore := store.NewPushStore(db)

	notifier := notify.NewService(cfg.Notify, pushStore, logger.With("component", "notify"))

	var tierSource tier.Source = tier.StoreSource{}
	var billingH *handler.BillingHandler
	if cfg.Stripe.SecretKey != "" {
		src := tier.NewStripeSource(cfg.Stripe, logger.With("component", "stripe"))
		tierSource = src
		billingH = handler.NewBillingHandler(src, userStore, cfg.Stripe.PriceTiers,
			logger.With("component", "billing"))
	}

	walletSvc := wallet.NewService(db, clk, logger.With("component", "wallet"))
	tracker := streak.NewTracker(streakStore, logger.With("component", "streak"))
	awarder := donation.NewAwarder(userStore, streakStore, walletSvc, tierSource, logger.With("component", "donation"))

	eng := engine.New(userStore, workoutStore, charityStore, tracker, awarder, walletSvc,
		hub, notifier, clk, logger.With("component", "engine"))

	runner := jobs.NewTimerRunner(clk, logger.With("component", "jobs"))
	callSched := call.NewScheduler(callStore, userStore, runner, cfg.Dialer, eng.Snapshot,
		call.DefaultRetryPolicy, clk, logger.With("component", "calls"))
	callSched.Register(runner)
	eng.SetRescueScheduler(callSched)

	dailySched := engine.NewDailyScheduler(userStore, callSched, clk, cfg.DailyInterval,
		logger.With("component", "daily"))

	backupMgr := backup.NewManager(cfg.Backup, db, clk, logger.With("component", "backup"))

	return &Server{
		db:            db,
		hub:           hub,
		workoutH:      handler.NewWorkoutHandler(eng, workoutStore, donationStore, logger.With("component", "workout")),
		callH:         handler.NewCallHandler(callSched, callStore, hub, logger.With("component", "call")),
		charityH:      handler.NewCharityHandler(charityStore, userStore, awarder, logger.With("component", "charity")),
		pushH:         handler.NewPushHandler(pushStore, notifier, logger.With("component", "push")),
		billingH:      billingH,
		engine:        eng,
		runner:        runner,
		callScheduler: callSched,
		dailySched:    dailySched,
		backupManager: backupMgr,
		rateLimiter:   middleware.NewRateLimiter(),
		jwtSecret:     cfg.JWTSecret,
		logger:        logger,
	}
}

// Start launches the background workers: the job runner that dispatches
// scheduled calls, the daily call sweep, and the backup schedule.
func (s *Server) Start(ctx context.Context) {
	s.runner.Start(ctx)
	// Dispatch timers are in-process; rebuild the ones that were pending
	// when the previous process exited.
	if _, err := s.callScheduler.RecoverPending(); err != nil {
		s.logger.Error("pending call recovery failed", "error", err)
	}
	s.dailySched.Start(ctx)
	s.backupManager.Start(ctx)
}

// Stop shuts the background workers down, waiting for in-flight work.
func (s *Server) Stop() {
	s.dailySched.Stop()
	s.runner.Stop()
	s.backupManager.Stop()
}

// Engine exposes the accountability engine for out-of-band callers.
func (s *Server) Engine() *engine.Engine {
	return s.engine
}

// CallScheduler exposes the call scheduler for out-of-band callers.
func (s *Server) CallScheduler() *call.Scheduler {
	return s.callScheduler
}

// BackupManager returns the backup manager.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.HandleFunc("POST /webhooks/calls", s.rateLimitedHandler(s.callH.Webhook, 120))
	if s.billingH != nil {
		// Stripe authenticates via its signature header, not a member JWT.
		outerMux.HandleFunc("POST /webhooks/stripe", s.rateLimitedHandler(s.billingH.StripeWebhook, 120))
	}

	// Protected routes wrapped with RequireAuth
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.jwtSecret)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc, limit int) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, limit, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(h).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Workout API routes
	mux.HandleFunc("POST /api/workouts", s.workoutH.Create)
	mux.HandleFunc("POST /api/workouts/{id}/complete", s.workoutH.Complete)
	mux.HandleFunc("GET /api/streak", s.workoutH.GetStreak)
	mux.HandleFunc("GET /api/wallet", s.workoutH.GetWallet)
	mux.HandleFunc("GET /api/donations", s.workoutH.ListDonations)

	// Call API routes
	mux.HandleFunc("GET /api/calls", s.callH.List)
	mux.HandleFunc("POST /api/calls/{id}/cancel", s.callH.Cancel)

	// Charity API routes
	mux.HandleFunc("GET /api/charities", s.charityH.List)
	mux.HandleFunc("PUT /api/charity-preference", s.charityH.SetPreference)

	// Push notification API routes
	mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
	mux.HandleFunc("DELETE /api/push/subscriptions", s.pushH.Unsubscribe)
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)

	// Service-to-service routes
	mux.Handle("POST /internal/calls/schedule-daily",
		middleware.RequireService(http.HandlerFunc(s.callH.ScheduleDaily)))

	// Admin routes
	mux.Handle("POST /admin/donations",
		middleware.RequireAdmin(http.HandlerFunc(s.charityH.ManualDonation)))
	mux.Handle("PUT /admin/wallets/{user_id}/limits",
		middleware.RequireAdmin(http.HandlerFunc(s.workoutH.SetWalletLimits)))

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))
}
