package ingestion

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/MikeHotel0815/ngTradingBot-sub001/config"
)

// Server runs the four EA-facing HTTP listeners of spec.md §6 on their own
// gin engines, grounded on the teacher's internal/api.NewServer/setupRoutes
// (gin.New + gin.Logger/gin.Recovery + cors.New) applied once per port
// instead of once per process, since each port here carries a single-purpose
// route set rather than the teacher's one do-everything API surface.
type Server struct {
	cfg      config.ServerConfig
	handlers *Handlers
	ticks    *TickBuffer

	control *http.Server
	tick    *http.Server
	trade   *http.Server
	logs    *http.Server
}

func NewServer(cfg config.ServerConfig, h *Handlers, ticks *TickBuffer) *Server {
	return &Server{cfg: cfg, handlers: h, ticks: ticks}
}

func newEngine(allowedOrigins string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger())

	corsConfig := cors.DefaultConfig()
	if allowedOrigins == "" || allowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = []string{allowedOrigins}
	}
	corsConfig.AllowMethods = []string{"GET", "POST"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))
	return router
}

// ginLogger is a terser stand-in for gin.Logger() that routes through
// zerolog, matching the structured-logging convention the rest of the
// trading core uses instead of gin's default plain-text access log.
func ginLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("ingestion: request")
	}
}

func listenServer(addr string, router *gin.Engine, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr: addr, Handler: router,
		ReadTimeout: readTimeout, WriteTimeout: writeTimeout,
	}
}

// Start launches all four listeners in their own goroutines. It does not
// block; call Shutdown to stop them.
func (s *Server) Start() {
	readTO := time.Duration(s.cfg.ReadTimeout) * time.Second
	writeTO := time.Duration(s.cfg.WriteTimeout) * time.Second

	control := newEngine(s.cfg.AllowedOrigins)
	control.GET("/health", s.handleHealth)
	control.POST("/connect", s.handlers.Connect)
	control.POST("/heartbeat", s.handlers.Heartbeat)
	control.POST("/command_response", s.handlers.CommandResponse)
	s.control = listenServer(fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.ControlPort), control, readTO, writeTO)
	go s.serve(s.control, "control")

	tick := newEngine(s.cfg.AllowedOrigins)
	tick.GET("/health", s.handleHealth)
	tick.POST("/tick_batch", s.handlers.TickBatch)
	tick.POST("/ohlc_batch", s.handlers.OHLCBatch)
	s.tick = listenServer(fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.TickPort), tick, readTO, writeTO)
	go s.serve(s.tick, "tick")

	trade := newEngine(s.cfg.AllowedOrigins)
	trade.GET("/health", s.handleHealth)
	trade.POST("/trade_update", s.handlers.TradeUpdate)
	s.trade = listenServer(fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.TradePort), trade, readTO, writeTO)
	go s.serve(s.trade, "trade")

	logs := newEngine(s.cfg.AllowedOrigins)
	logs.GET("/health", s.handleHealth)
	logs.POST("/log", s.handlers.Log)
	s.logs = listenServer(fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.LogPort), logs, readTO, writeTO)
	go s.serve(s.logs, "log")

	if s.ticks != nil {
		s.ticks.Start(context.Background())
	}
}

func (s *Server) serve(srv *http.Server, name string) {
	log.Info().Str("listener", name).Str("addr", srv.Addr).Msg("ingestion: listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Str("listener", name).Msg("ingestion: listener failed")
	}
}

// Shutdown gracefully stops all four listeners and the tick buffer's flush
// loop (which flushes any remaining buffered ticks before returning).
func (s *Server) Shutdown(ctx context.Context) error {
	if s.ticks != nil {
		s.ticks.Stop()
	}
	var firstErr error
	for _, srv := range []*http.Server{s.control, s.tick, s.trade, s.logs} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
