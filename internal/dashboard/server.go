package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/MikeHotel0815/ngTradingBot-sub001/config"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/auth"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/events"
)

// rateLimiter is a simple in-memory per-key sliding window limiter, ported
// from the teacher's internal/api.RateLimiter, applied here to the login
// endpoint to slow down credential-stuffing against the one operator
// account.
type rateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{requests: make(map[string][]time.Time), limit: limit, window: window}
}

func (r *rateLimiter) allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}
	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}
	r.requests[key] = append(recent, now)
	return true
}

func (r *rateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "RATE_LIMITED", "message": "too many login attempts, slow down"})
			return
		}
		c.Next()
	}
}

// Server is the dashboard's single gin engine plus WebSocket hub, grounded
// on the teacher's internal/api.Server/NewServer.
type Server struct {
	cfg          config.ServerConfig
	authCfg      config.AuthConfig
	store        Store
	queue        CommandQueue
	bus          *events.EventBus
	jwtManager   *auth.JWTManager
	passwordMgr  *auth.PasswordManager
	loginLimiter *rateLimiter
	hub          *wsHub

	httpServer *http.Server
	hubDone    chan struct{}
}

func New(cfg config.ServerConfig, authCfg config.AuthConfig, store Store, queue CommandQueue, bus *events.EventBus) *Server {
	return &Server{
		cfg:          cfg,
		authCfg:      authCfg,
		store:        store,
		queue:        queue,
		bus:          bus,
		jwtManager:   auth.NewJWTManager(authCfg.JWTSecret, authCfg.AccessTokenDuration, authCfg.RefreshTokenDuration),
		passwordMgr:  auth.NewPasswordManager(auth.DefaultBcryptCost, authCfg.MinPasswordLength),
		loginLimiter: newRateLimiter(10, time.Minute),
		hub:          newWSHub(),
		hubDone:      make(chan struct{}),
	}
}

func (s *Server) newEngine() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("dashboard: request")
	})

	corsConfig := cors.DefaultConfig()
	if s.cfg.AllowedOrigins == "" || s.cfg.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = []string{s.cfg.AllowedOrigins}
	}
	corsConfig.AllowMethods = []string{"GET", "POST"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))
	return router
}

func (s *Server) setupRoutes(router *gin.Engine) {
	router.GET("/healthz", s.handleHealthz)
	router.GET("/metrics", s.handleMetrics)
	router.GET("/ws", s.handleWebSocket)

	authGroup := router.Group("/api/auth")
	authGroup.Use(s.loginLimiter.middleware())
	authGroup.POST("/login", s.handleLogin)

	api := router.Group("/api")
	api.Use(auth.Middleware(s.jwtManager))
	{
		api.GET("/accounts", s.handleListAccounts)
		api.GET("/accounts/:account/status", s.handleAccountStatus)
		api.GET("/accounts/:account/trades", s.handleOpenTrades)
		api.GET("/accounts/:account/decisions", s.handleRecentDecisions)
		api.GET("/accounts/:account/symbols", s.handleSymbolConfigs)

		admin := api.Group("")
		admin.Use(auth.RequireAdmin())
		admin.POST("/accounts/:account/auto-trading", s.handleSetAutoTrading)
		admin.POST("/accounts/:account/close-all", s.handleCloseAll)
		admin.POST("/accounts/:account/circuit-breaker/reset", s.handleResetCircuitBreaker)
		admin.POST("/accounts/:account/symbols/:instrument/:direction/pause", s.handlePauseSymbol)
		admin.POST("/accounts/:account/symbols/:instrument/:direction/resume", s.handleResumeSymbol)
	}
}

// Start launches the dashboard's gin engine, the WebSocket hub's run loop,
// and subscribes the hub to every published event. It does not block.
func (s *Server) Start() {
	router := s.newEngine()
	s.setupRoutes(router)

	readTO := time.Duration(s.cfg.ReadTimeout) * time.Second
	writeTO := time.Duration(s.cfg.WriteTimeout) * time.Second
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.DashboardPort),
		Handler:      router,
		ReadTimeout:  readTO,
		WriteTimeout: writeTO,
	}

	go s.hub.run(s.hubDone)
	if s.bus != nil {
		s.bus.SubscribeAll(s.hub.broadcastEvent)
	}

	go func() {
		log.Info().Str("addr", s.httpServer.Addr).Msg("dashboard: listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("dashboard: listener failed")
		}
	}()
}

// Shutdown gracefully stops the HTTP listener and the WebSocket hub loop.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.hubDone)
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "websocket_clients": s.hub.clientCount()})
}

// handleMetrics reports a handful of lightweight counters in Prometheus
// text exposition format. The example pack carries no Prometheus client
// library (grep across _examples/*/go.mod turned up none), so this writes
// the wire format by hand rather than importing one for a handful of
// gauges — see DESIGN.md.
func (s *Server) handleMetrics(c *gin.Context) {
	c.Header("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(c.Writer, "# HELP dashboard_websocket_clients Connected dashboard WebSocket clients\n")
	fmt.Fprintf(c.Writer, "# TYPE dashboard_websocket_clients gauge\n")
	fmt.Fprintf(c.Writer, "dashboard_websocket_clients %d\n", s.hub.clientCount())
}
