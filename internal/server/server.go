// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/spinhouse/coinledger/internal/account"
	"github.com/spinhouse/coinledger/internal/admin"
	"github.com/spinhouse/coinledger/internal/audit"
	"github.com/spinhouse/coinledger/internal/auth"
	"github.com/spinhouse/coinledger/internal/config"
	"github.com/spinhouse/coinledger/internal/fraud"
	"github.com/spinhouse/coinledger/internal/health"
	"github.com/spinhouse/coinledger/internal/logging"
	"github.com/spinhouse/coinledger/internal/metrics"
	"github.com/spinhouse/coinledger/internal/notify"
	"github.com/spinhouse/coinledger/internal/ratelimit"
	"github.com/spinhouse/coinledger/internal/realtime"
	"github.com/spinhouse/coinledger/internal/security"
	"github.com/spinhouse/coinledger/internal/traces"
	"github.com/spinhouse/coinledger/internal/transfer"
	"github.com/spinhouse/coinledger/internal/validation"
	"github.com/spinhouse/coinledger/internal/velocity"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg *config.Config

	accounts    account.Store
	accountSvc  *account.Service
	resetter    *account.Resetter
	resetTimer  *account.ResetTimer
	audits      audit.Store
	flags       fraud.FlagStore
	alerts      velocity.AlertStore
	pendings    transfer.Store
	validator   *transfer.Validator
	executor    *transfer.Executor
	stats       *transfer.StatsService
	monitor     *velocity.Monitor
	notifySvc   *notify.Service
	reviewSvc   *fraud.ReviewService
	authMgr     *auth.Manager
	realtimeHub *realtime.Hub
	httpLimiter *ratelimit.HTTPLimiter
	healthReg   *health.Registry

	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run
	tracesStop   func(context.Context) error

	ready atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	for _, opt := range opts {
		opt(s)
	}

	var authStore auth.Store
	var notifyStore notify.Store

	// Storage: Postgres if DATABASE_URL is set, otherwise in-memory
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.accounts = account.NewPostgresStore(db)
		s.audits = audit.NewPostgresStore(db)
		s.flags = fraud.NewPostgresFlagStore(db)
		s.alerts = velocity.NewPostgresAlertStore(db)
		s.pendings = transfer.NewPostgresStore(db)
		authStore = auth.NewPostgresStore(db)
		notifyStore = notify.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		accountMem := account.NewMemoryStore()
		s.accounts = accountMem
		s.audits = audit.NewMemoryStore()
		s.flags = fraud.NewMemoryFlagStore()
		s.alerts = velocity.NewMemoryAlertStore()
		s.pendings = transfer.NewMemoryStore(accountMem, s.audits)
		authStore = auth.NewMemoryStore()
		notifyStore = notify.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	s.authMgr = auth.NewManager(authStore)
	s.accountSvc = account.NewService(s.accounts, cfg.Rules.WelcomeCredit, s.logger)
	s.resetter = account.NewResetter(s.accounts, s.logger)
	s.resetTimer = account.NewResetTimer(s.resetter, s.logger)

	// Webhook fan-out is optional; endpoints are screened against SSRF.
	var dispatcher *notify.Dispatcher
	if cfg.WebhookURL != "" {
		if err := security.ValidateEndpointURL(cfg.WebhookURL); err != nil {
			s.logger.Warn("webhook endpoint rejected", "url", cfg.WebhookURL, "error", err)
		} else {
			dispatcher = notify.NewDispatcher([]notify.Endpoint{
				{URL: cfg.WebhookURL, Secret: cfg.WebhookSecret},
			}, s.logger)
			s.logger.Info("webhook delivery enabled")
		}
	}
	s.notifySvc = notify.NewService(notifyStore, dispatcher, s.logger)
	s.reviewSvc = fraud.NewReviewService(s.flags, s.notifySvc, s.logger)

	// Transfer pipeline
	limiter := ratelimit.NewAccountLimiter(s.accounts, cfg.Rules)
	detector := fraud.NewDetector(s.accounts, s.audits, cfg.Rules)
	s.validator = transfer.NewValidator(s.accounts, s.pendings, limiter, detector, s.flags, cfg.Rules, s.logger)
	s.executor = transfer.NewExecutor(s.pendings, s.logger)
	s.stats = transfer.NewStatsService(s.audits, cfg.Rules)

	// Realtime streaming
	s.realtimeHub = realtime.NewHub(s.logger)
	s.notifySvc.SetPublisher(s.realtimeHub)

	// Velocity monitoring runs after every committed transfer.
	s.monitor = velocity.NewMonitor(s.audits, s.accounts, s.alerts, cfg.Rules, s.logger)
	s.monitor.SetPublisher(s.realtimeHub)
	s.executor.OnCommit(func(ctx context.Context, e *audit.Entry) {
		if err := s.monitor.OnAuditEntryCreated(ctx, e); err != nil {
			s.logger.Error("velocity check failed", "transaction", e.TransactionID, "error", err)
		}
	})
	s.executor.OnCommit(func(_ context.Context, e *audit.Entry) {
		s.realtimeHub.BroadcastTransfer(e)
	})

	// Health probes
	s.healthReg = health.NewRegistry()
	if s.db != nil {
		s.healthReg.Register("postgres", health.DatabaseChecker("postgres", s.db))
	}
	s.healthReg.Register("reset_timer", func(_ context.Context) health.Status {
		return health.Status{Name: "reset_timer", Healthy: s.resetTimer.Running()}
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// Bound request bodies
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Per-client HTTP rate limiting
	httpCfg := ratelimit.DefaultHTTPConfig()
	httpCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	s.httpLimiter = ratelimit.NewHTTPLimiter(httpCfg)
	s.router.Use(s.httpLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

func (s *Server) setupRoutes() {
	// Unauthenticated plumbing
	s.router.GET("/healthz", health.LivenessHandler())
	s.router.GET("/readyz", s.readinessHandler())
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for real-time streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	v1 := s.router.Group("/api/v1")
	v1.Use(auth.Middleware(s.authMgr))

	// User-facing routes require a valid bearer token.
	protected := v1.Group("")
	protected.Use(auth.RequireAuth())
	transfer.NewHandler(s.validator, s.executor, s.stats).RegisterRoutes(protected)
	account.NewHandler(s.accountSvc).RegisterRoutes(protected)

	// Back-office routes require the admin claim.
	adminGroup := v1.Group("")
	adminGroup.Use(auth.RequireAuth(), auth.RequireAdmin())
	admin.NewHandler(s.accountSvc, s.resetter, s.flags, s.reviewSvc, s.alerts).
		RegisterRoutes(adminGroup)
}

func (s *Server) readinessHandler() gin.HandlerFunc {
	ready := health.ReadinessHandler(s.healthReg)
	return func(c *gin.Context) {
		if !s.ready.Load() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
			return
		}
		ready(c)
	}
}

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	stopTraces, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("tracing init failed", "error", err)
	} else {
		s.tracesStop = stopTraces
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.realtimeHub.Run(runCtx)
	go s.resetTimer.Start(runCtx)

	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// In development demo mode, mint a throwaway admin token so the API
	// is usable without external provisioning.
	if s.cfg.IsDevelopment() && s.db == nil {
		if raw, _, err := s.authMgr.IssueToken(runCtx, "usr_admin", auth.RoleAdmin); err == nil {
			s.logger.Info("demo admin token issued", "token", raw)
		}
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, reset timer)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	s.resetTimer.Stop()

	if s.httpLimiter != nil {
		s.httpLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	if s.tracesStop != nil {
		if err := s.tracesStop(ctx); err != nil {
			s.logger.Error("trace exporter shutdown error", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// AuthManager exposes the token manager for provisioning tools and tests.
func (s *Server) AuthManager() *auth.Manager {
	return s.authMgr
}

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
