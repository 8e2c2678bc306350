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

	"github.com/nwtnsqrd/peerflag/internal/config"
	"github.com/nwtnsqrd/peerflag/internal/flags"
	"github.com/nwtnsqrd/peerflag/internal/health"
	"github.com/nwtnsqrd/peerflag/internal/logging"
	"github.com/nwtnsqrd/peerflag/internal/metrics"
	"github.com/nwtnsqrd/peerflag/internal/neighborhood"
	"github.com/nwtnsqrd/peerflag/internal/purchases"
	"github.com/nwtnsqrd/peerflag/internal/ratelimit"
	"github.com/nwtnsqrd/peerflag/internal/realtime"
	"github.com/nwtnsqrd/peerflag/internal/security"
	"github.com/nwtnsqrd/peerflag/internal/socialgraph"
	"github.com/nwtnsqrd/peerflag/internal/stream"
	"github.com/nwtnsqrd/peerflag/internal/stripefeed"
	"github.com/nwtnsqrd/peerflag/internal/traces"
	"github.com/nwtnsqrd/peerflag/internal/validation"
	"github.com/nwtnsqrd/peerflag/internal/webhooks"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	graph        *socialgraph.Graph
	ledger       *purchases.Ledger
	proc         *stream.Processor
	flagStore    flags.Store
	webhookStore webhooks.Store
	dispatcher   *webhooks.Dispatcher
	realtimeHub  *realtime.Hub
	checks       *health.Registry
	rateLimiter  *ratelimit.Limiter
	tracesStop   func(context.Context) error
	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

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

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
		checks: health.NewRegistry(),
	}

	// Apply options first (may set logger)
	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	// The in-memory graph and ledger are the engine's working state in
	// both storage modes; Postgres only adds durability behind them.
	s.graph = socialgraph.New()
	s.ledger = purchases.NewLedger()

	var (
		edgeStore     socialgraph.Store
		purchaseStore purchases.Store
		resumeSeq     uint64
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

		// Friendship edges with Postgres
		pgEdges := socialgraph.NewPostgresStore(db)
		if err := pgEdges.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate friendship store", "error", err)
		}
		edgeStore = pgEdges

		// Purchase history with Postgres
		pgPurchases := purchases.NewPostgresStore(db)
		if err := pgPurchases.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate purchase store", "error", err)
		}
		purchaseStore = pgPurchases

		// Flag decisions with Postgres
		pgFlags := flags.NewPostgresStore(db)
		if err := pgFlags.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate flag store", "error", err)
		}
		s.flagStore = pgFlags

		// Webhooks with Postgres
		pgWebhooks := webhooks.NewPostgresStore(db)
		if err := pgWebhooks.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate webhook store", "error", err)
		}
		s.webhookStore = pgWebhooks

		// Rebuild the working state from persisted history. Seq resumes
		// past the highest persisted index so sequence numbers stay
		// injective across restarts.
		edges, err := socialgraph.Rehydrate(ctx, s.graph, edgeStore)
		if err != nil {
			return nil, fmt.Errorf("failed to rehydrate social graph: %w", err)
		}
		maxSeq, records, err := purchases.Rehydrate(ctx, s.ledger, purchaseStore)
		if err != nil {
			return nil, fmt.Errorf("failed to rehydrate purchase ledger: %w", err)
		}
		resumeSeq = maxSeq
		s.logger.Info("state rehydrated", "friendships", edges, "purchases", records, "max_seq", maxSeq)

		s.checks.Register("database", health.DBChecker("database", db))
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")
		edgeStore = socialgraph.NewMemoryStore()
		purchaseStore = purchases.NewMemoryStore()
		s.flagStore = flags.NewMemoryStore()
		s.webhookStore = webhooks.NewMemoryStore()
	}

	// Webhook dispatcher for subscription notifications
	s.dispatcher = webhooks.NewDispatcher(s.webhookStore)

	// Realtime hub for WebSocket streaming
	s.realtimeHub = realtime.NewHub(s.logger)

	// The event processor: one total ingestion order over graph and ledger
	proc, err := stream.New(
		stream.Config{
			Degree:       cfg.FriendDegree,
			Tracked:      cfg.TrackedPurchases,
			Sigma:        cfg.Sigma,
			SeedEligible: cfg.SeedHistoryEligible,
		},
		s.graph,
		s.ledger,
		stream.WithLogger(s.logger),
		stream.WithEdgeStore(edgeStore),
		stream.WithPurchaseStore(purchaseStore),
		stream.WithFlagStore(s.flagStore),
		stream.WithNotifier(webhooks.NewEmitter(s.dispatcher, s.logger)),
		stream.WithNotifier(&realtimeNotifier{s.realtimeHub}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream processor: %w", err)
	}
	s.proc = proc

	// Served traffic is the live stream; rehydrated history plays the
	// role of the batch phase. cmd/replay exercises Initializing directly.
	s.proc.ResumeSeq(resumeSeq)
	s.proc.StartStreaming()
	s.logger.Info("stream processor started",
		"degree", cfg.FriendDegree,
		"tracked", cfg.TrackedPurchases,
		"sigma", cfg.Sigma,
		"seed_eligible", cfg.SeedHistoryEligible,
	)

	// Tracing (no-op without an endpoint)
	stop, err := traces.Init(ctx, cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.tracesStop = stop
	}

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
	rlCfg := ratelimit.DefaultConfig()
	rlCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	s.rateLimiter = ratelimit.New(rlCfg)
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

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/healthz", s.healthHandler)
	s.router.GET("/readyz", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for real-time streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// V1 API group
	v1 := s.router.Group("/v1")
	// Validate :id URL params on all v1 routes (no-op when param absent)
	v1.Use(validation.UserParamMiddleware())

	// Event ingest: raw events, typed purchases, dry-run checks
	streamHandler := stream.NewHandler(s.proc, s.logger)
	streamHandler.RegisterRoutes(v1)

	// Friendship edges and neighborhood queries. The processor is the
	// edge writer so mutations take the same serialized path as events.
	graphHandler := socialgraph.NewHandler(s.graph, s.proc, s.cfg.FriendDegree, s.logger)
	graphHandler.RegisterRoutes(v1)

	// Per-user purchase history
	purchasesHandler := purchases.NewHandler(s.ledger, s.logger)
	purchasesHandler.RegisterRoutes(v1)

	// Network purchase feed over the processor's aggregator
	feedHandler := neighborhood.NewHandler(s.proc.Aggregator(), s.cfg.FriendDegree, s.cfg.TrackedPurchases, s.logger)
	feedHandler.RegisterRoutes(v1)

	// Flag decision history
	flagsHandler := flags.NewHandler(s.flagStore, s.logger)
	flagsHandler.RegisterRoutes(v1)

	// Webhook subscription management
	webhookHandler := webhooks.NewHandler(s.webhookStore)
	webhookHandler.RegisterRoutes(v1)

	// Stripe ingest (only when a signing secret is configured)
	if s.cfg.StripeWebhookSecret != "" {
		stripeHandler := stripefeed.NewHandler(s.proc, s.cfg.StripeWebhookSecret, s.logger)
		stripeHandler.RegisterRoutes(v1)
		s.logger.Info("stripe ingest enabled")
	}

	// Service statistics
	v1.GET("/stats", s.statsHandler)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (s *Server) healthHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}

	ok, checks := s.checks.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !ok {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	resp := gin.H{
		"status":    status,
		"version":   "0.1.0",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if len(checks) > 0 {
		resp["checks"] = checks
	}
	c.JSON(httpStatus, resp)
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// statsHandler returns graph, ledger, and flag counters plus the
// detector parameters in effect
func (s *Server) statsHandler(c *gin.Context) {
	ctx := c.Request.Context()

	evaluations, err := s.flagStore.Count(ctx, false)
	if err != nil {
		logging.L(ctx).Error("failed to count evaluations", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to get stats",
		})
		return
	}
	flagged, err := s.flagStore.Count(ctx, true)
	if err != nil {
		logging.L(ctx).Error("failed to count flagged", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to get stats",
		})
		return
	}

	procCfg := s.proc.Config()
	c.JSON(http.StatusOK, gin.H{
		"users":       s.graph.UserCount(),
		"friendships": s.graph.EdgeCount(),
		"purchases":   s.ledger.Total(),
		"purchasers":  s.ledger.Users(),
		"evaluations": evaluations,
		"flagged":     flagged,
		"phase":       s.proc.Phase().String(),
		"nextSeq":     s.proc.NextSeq(),
		"detector": gin.H{
			"degree":       procCfg.Degree,
			"tracked":      procCfg.Tracked,
			"sigma":        procCfg.Sigma,
			"seedEligible": procCfg.SeedEligible,
		},
		"websocket": s.realtimeHub.Stats(),
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
		s.logger.Info("starting server", "port", s.cfg.Port)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Export connection pool stats when running on Postgres
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

	// Cancel the context for all background goroutines (hub, collectors)
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

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Flush tracing
	if s.tracesStop != nil {
		if err := s.tracesStop(ctx); err != nil {
			s.logger.Error("traces shutdown error", "error", err)
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

// -----------------------------------------------------------------------------
// Adapters
// -----------------------------------------------------------------------------

// realtimeNotifier adapts the realtime hub to stream.Notifier
type realtimeNotifier struct {
	hub *realtime.Hub
}

func (n *realtimeNotifier) PurchaseRecorded(d *flags.Decision) {
	n.hub.BroadcastPurchase(decisionData(d))
}

func (n *realtimeNotifier) PurchaseFlagged(d *flags.Decision) {
	n.hub.BroadcastFlag(decisionData(d))
}

func (n *realtimeNotifier) FriendshipCreated(a, b string) {
	n.hub.BroadcastFriendship("created", a, b)
}

func (n *realtimeNotifier) FriendshipRemoved(a, b string) {
	n.hub.BroadcastFriendship("removed", a, b)
}

func decisionData(d *flags.Decision) map[string]interface{} {
	return map[string]interface{}{
		"id":        d.ID,
		"seq":       d.Seq,
		"user":      d.User,
		"amount":    d.Amount,
		"timestamp": d.Timestamp.Format(time.RFC3339Nano),
		"mean":      d.Mean,
		"stddev":    d.Stddev,
		"refCount":  d.RefCount,
		"flagged":   d.Flagged,
	}
}
