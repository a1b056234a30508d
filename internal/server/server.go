// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
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

	"github.com/electio/votegate/internal/account"
	"github.com/electio/votegate/internal/anomaly"
	"github.com/electio/votegate/internal/auth"
	"github.com/electio/votegate/internal/behavior"
	"github.com/electio/votegate/internal/config"
	"github.com/electio/votegate/internal/fraud"
	"github.com/electio/votegate/internal/health"
	"github.com/electio/votegate/internal/identity"
	"github.com/electio/votegate/internal/logging"
	"github.com/electio/votegate/internal/metrics"
	"github.com/electio/votegate/internal/notify"
	"github.com/electio/votegate/internal/otp"
	"github.com/electio/votegate/internal/ratelimit"
	"github.com/electio/votegate/internal/realtime"
	"github.com/electio/votegate/internal/security"
	"github.com/electio/votegate/internal/session"
	"github.com/electio/votegate/internal/traces"
	"github.com/electio/votegate/internal/validation"
	"github.com/electio/votegate/internal/vote"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg *config.Config

	accounts     *account.Service
	lockout      *account.LockoutPolicy
	codes        *otp.Authenticator
	sessions     *session.Manager
	sender       notify.Sender
	authService  *auth.Service
	recorder     *behavior.Recorder
	identitySvc  *identity.Service
	model        *fraud.ModelScorer
	engine       *fraud.Engine
	fraudStore   fraud.Store
	voteService  *vote.Service
	voteStore    vote.Store
	scanner      *anomaly.Scanner
	scanTimer    *anomaly.ScanTimer
	anomalyStore anomaly.Store
	logStore     behavior.Store
	realtimeHub  *realtime.Hub

	rateLimiter   *ratelimit.Limiter
	strictLimiter *ratelimit.Limiter
	checks        *health.Registry
	db            *sql.DB // nil if using in-memory
	router        *gin.Engine
	httpSrv       *http.Server
	logger        *slog.Logger
	cancelRunCtx  context.CancelFunc // cancels background goroutines started in Run
	shutdownTrace func(context.Context) error

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithSender sets a custom passcode sender (for testing)
func WithSender(sender notify.Sender) Option {
	return func(s *Server) {
		s.sender = sender
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
	}

	// Apply options first (may set sender/logger)
	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	var (
		accountStore account.Store
		otpStore     otp.Store
	)

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		accounts := account.NewPostgresStore(db)
		if err := accounts.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate account store", "error", err)
		}
		accountStore = accounts

		codes := otp.NewPostgresStore(db)
		if err := codes.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate otp store", "error", err)
		}
		otpStore = codes

		logs := behavior.NewPostgresStore(db)
		if err := logs.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate behavior store", "error", err)
		}
		s.logStore = logs

		assessments := fraud.NewPostgresStore(db)
		if err := assessments.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate fraud store", "error", err)
		}
		s.fraudStore = assessments

		votes := vote.NewPostgresStore(db)
		if err := votes.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate vote store", "error", err)
		}
		s.voteStore = votes

		scans := anomaly.NewPostgresStore(db)
		if err := scans.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate anomaly store", "error", err)
		}
		s.anomalyStore = scans
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")
		accountStore = account.NewMemoryStore()
		otpStore = otp.NewMemoryStore()
		s.logStore = behavior.NewMemoryStore()
		s.fraudStore = fraud.NewMemoryStore()
		s.voteStore = vote.NewMemoryStore()
		s.anomalyStore = anomaly.NewMemoryStore()
	}

	// Core services
	s.accounts = account.NewService(accountStore)
	s.lockout = account.NewLockoutPolicy(accountStore, cfg.LockoutThreshold, cfg.LockoutDuration)
	s.codes = otp.NewAuthenticator(otpStore, cfg.OTPLength, cfg.OTPTTL, cfg.OTPSupersedeGrace)
	if cfg.OTPMaxAttempts > 0 {
		s.codes.WithMaxAttempts(cfg.OTPMaxAttempts)
	}
	s.sessions = session.NewManager(cfg.JWTSecret, cfg.SessionTTL)
	s.recorder = behavior.NewRecorder(s.logStore, s.logger)

	// Passcode delivery (SMTP when configured, console otherwise)
	if s.sender == nil {
		if cfg.SMTPConfigured() {
			s.sender = notify.NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom)
			s.logger.Info("email passcode delivery enabled", "host", cfg.SMTPHost)
		} else {
			s.sender = notify.NewConsoleSender(s.logger)
			s.logger.Info("SMTP not configured, passcodes delivered to server log")
		}
	}

	// Realtime hub for WebSocket streaming of decisions and flags
	s.realtimeHub = realtime.NewHub(s.logger)
	s.logger.Info("realtime streaming enabled")

	// Authentication pipeline
	s.authService = auth.NewService(s.accounts, s.lockout, s.codes, s.sender, s.sessions, s.recorder, s.realtimeHub, s.logger)
	s.identitySvc = identity.NewService(s.accounts, s.recorder)

	// Fraud engine (classifier artifact optional, rules always available)
	s.model = fraud.NewModelScorer(cfg.ModelPath, s.logger)
	if cfg.ModelPath != "" {
		if err := s.model.TryLoad(); err != nil {
			s.logger.Warn("classifier artifact not loaded, rule scoring active", "error", err)
		} else {
			s.logger.Info("classifier artifact loaded", "path", cfg.ModelPath)
		}
	}
	extractor := fraud.NewExtractor(s.logStore, s.voteStore)
	s.engine = fraud.NewEngine(extractor, s.model, s.fraudStore, s.logger).
		WithReviewThreshold(cfg.RiskLowThreshold).
		WithBlockThreshold(cfg.RiskHighThreshold).
		WithFirstVoteCap(cfg.FirstVoteCap)

	// Ballot sealing + vote casting
	sealer, err := vote.NewGCMSealer(cfg.SealKey())
	if err != nil {
		return nil, fmt.Errorf("failed to create ballot sealer: %w", err)
	}
	s.voteService = vote.NewService(s.voteStore, s.engine, s.accounts, sealer, s.recorder, s.realtimeHub, s.logger).
		WithRequireIdentity(cfg.RequireIdentity)

	// Anomaly scanner + periodic timer
	s.scanner = anomaly.NewScanner(s.logStore, s.anomalyStore, s.realtimeHub, s.logger).
		WithMinEntries(cfg.ScanMinEntries).
		WithContamination(cfg.ScanContamination)
	s.scanTimer = anomaly.NewScanTimer(s.scanner, s.model, cfg.ScanInterval, cfg.ModelReloadInterval, s.logger)

	// Tracing (no-op when endpoint unset)
	shutdownTrace, err := traces.Init(ctx, cfg.OTELEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.shutdownTrace = shutdownTrace
	}

	// Subsystem health checks
	s.checks = health.NewRegistry()
	if s.db != nil {
		db := s.db
		s.checks.Register("database", func(ctx context.Context) health.Status {
			if err := db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	}
	s.checks.Register("classifier", func(ctx context.Context) health.Status {
		// Rule scoring covers for a missing artifact, so this never degrades
		// overall health.
		if s.model.Ready() {
			return health.Status{Name: "classifier", Healthy: true, Detail: "model"}
		}
		return health.Status{Name: "classifier", Healthy: true, Detail: "rules"}
	})

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

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

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	limitCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPS > 0 {
		limitCfg.RequestsPerMinute = s.cfg.RateLimitRPS
	}
	s.rateLimiter = ratelimit.New(limitCfg)
	s.router.Use(s.rateLimiter.Middleware())

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

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
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

		// Log level based on status code
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

// adminAuth restricts a route group to admin sessions. When ADMIN_SECRET is
// configured, a matching X-Admin-Secret header is accepted as well so
// operational tooling can reach admin endpoints without a voter session.
func (s *Server) adminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AdminSecret != "" {
			header := c.GetHeader("X-Admin-Secret")
			if header != "" && subtle.ConstantTimeCompare([]byte(header), []byte(s.cfg.AdminSecret)) == 1 {
				c.Next()
				return
			}
		}

		claims, ok := session.GetClaims(c)
		if !ok || claims.Role != "admin" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Admin access required",
			})
			return
		}

		c.Next()
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for real-time streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")
	v1.Use(validation.VoterParamMiddleware())

	// PUBLIC ROUTES - credential endpoints sit behind a tighter limit
	s.strictLimiter = ratelimit.New(ratelimit.StrictConfig())
	public := v1.Group("")
	public.Use(s.strictLimiter.Middleware())
	authHandler := auth.NewHandler(s.authService)
	authHandler.RegisterRoutes(public)

	// PROTECTED ROUTES (require a verified session)
	protected := v1.Group("")
	protected.Use(session.Middleware(s.sessions), session.RequireAuth())
	{
		voteHandler := vote.NewHandler(s.voteService)
		voteHandler.RegisterProtectedRoutes(protected)

		identityHandler := identity.NewHandler(s.identitySvc)
		identityHandler.RegisterProtectedRoutes(protected)
	}

	// ADMIN ROUTES
	admin := v1.Group("/admin")
	admin.Use(session.Middleware(s.sessions), s.adminAuth())
	{
		fraudHandler := fraud.NewHandler(s.fraudStore, s.model)
		fraudHandler.RegisterAdminRoutes(admin)

		anomalyHandler := anomaly.NewHandler(s.scanner, s.anomalyStore, s.logStore)
		anomalyHandler.RegisterAdminRoutes(admin)

		voteHandler := vote.NewHandler(s.voteService)
		voteHandler.RegisterAdminRoutes(admin)

		admin.GET("/realtime/stats", func(c *gin.Context) {
			c.JSON(http.StatusOK, s.realtimeHub.Stats())
		})
	}
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	ok, statuses := s.checks.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !ok {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    statuses,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Votegate",
		"description": "Layered trust pipeline for online voting",
		"version":     "0.1.0",
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Start periodic anomaly scan (and classifier reload) timer
	go s.scanTimer.Start(runCtx)

	// Periodically export connection pool stats
	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
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

	// Cancel the context for all background goroutines (hub, scan timer)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop scan timer
	if s.scanTimer != nil {
		s.scanTimer.Stop()
		s.logger.Info("scan timer stopped")
	}

	// Stop rate limiter cleanup goroutines
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.strictLimiter != nil {
		s.strictLimiter.Stop()
	}

	// Flush traces
	if s.shutdownTrace != nil {
		if err := s.shutdownTrace(ctx); err != nil {
			s.logger.Error("trace shutdown error", "error", err)
		}
	}

	// Close database connection pool
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

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
