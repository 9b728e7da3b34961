package dashboard

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/auth"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/commands"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

func accountNumberParam(c *gin.Context) (int64, bool) {
	n, err := strconv.ParseInt(c.Param("account"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_ACCOUNT", "message": "account number must be an integer"})
		return 0, false
	}
	return n, true
}

func directionParam(c *gin.Context) (domain.Direction, bool) {
	switch c.Param("direction") {
	case string(domain.Buy):
		return domain.Buy, true
	case string(domain.Sell):
		return domain.Sell, true
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_DIRECTION", "message": "direction must be BUY or SELL"})
		return "", false
	}
}

// handleLogin validates the single operator account and issues a JWT pair.
// Grounded on internal/auth's already-built Manager pair; there is exactly
// one operator per deployment (config.AuthConfig.OperatorUsername /
// OperatorPasswordHash), not a users table, per DESIGN.md's Open Question
// decision.
func (s *Server) handleLogin(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST", "message": err.Error()})
		return
	}

	if req.Username != s.authCfg.OperatorUsername || !s.passwordMgr.VerifyPassword(req.Password, s.authCfg.OperatorPasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": auth.ErrInvalidCredentials.Code, "message": auth.ErrInvalidCredentials.Message})
		return
	}

	claims := auth.OperatorClaims{OperatorID: req.Username, Username: req.Username, IsAdmin: true}
	tokens, err := s.jwtManager.GenerateTokenPair(claims)
	if err != nil {
		log.Error().Err(err).Msg("dashboard: failed to issue token pair")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "TOKEN_ISSUE_FAILED", "message": "failed to issue session"})
		return
	}

	c.JSON(http.StatusOK, auth.LoginResponse{
		Operator:     claims,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresIn:    tokens.ExpiresIn,
	})
}

func (s *Server) handleListAccounts(c *gin.Context) {
	accounts, err := s.store.ListActiveAccounts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "STORE_ERROR", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

// handleAccountStatus reports the account record plus its open-trade count,
// spec.md §6's overview tile.
func (s *Server) handleAccountStatus(c *gin.Context) {
	accountNumber, ok := accountNumberParam(c)
	if !ok {
		return
	}
	acc, err := s.store.GetAccount(c.Request.Context(), accountNumber)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "ACCOUNT_NOT_FOUND", "message": err.Error()})
		return
	}
	openCount, err := s.store.CountOpenTrades(c.Request.Context(), accountNumber)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "STORE_ERROR", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": acc, "open_trades": openCount})
}

func (s *Server) handleOpenTrades(c *gin.Context) {
	accountNumber, ok := accountNumberParam(c)
	if !ok {
		return
	}
	trades, err := s.store.ListOpenTradesForAccount(c.Request.Context(), accountNumber)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "STORE_ERROR", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handleRecentDecisions(c *gin.Context) {
	accountNumber, ok := accountNumberParam(c)
	if !ok {
		return
	}
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	decisions, err := s.store.RecentDecisions(c.Request.Context(), accountNumber, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "STORE_ERROR", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": decisions})
}

func (s *Server) handleSymbolConfigs(c *gin.Context) {
	accountNumber, ok := accountNumberParam(c)
	if !ok {
		return
	}
	configs, err := s.store.ListSymbolConfigs(c.Request.Context(), accountNumber)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "STORE_ERROR", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbols": configs})
}

// handleSetAutoTrading is the operator's global kill switch for an account,
// separate from the per-symbol pause below it.
func (s *Server) handleSetAutoTrading(c *gin.Context) {
	accountNumber, ok := accountNumberParam(c)
	if !ok {
		return
	}
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST", "message": err.Error()})
		return
	}
	if err := s.store.SetAutoTrading(c.Request.Context(), accountNumber, req.Enabled); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "STORE_ERROR", "message": err.Error()})
		return
	}
	log.Info().Int64("account_number", accountNumber).Bool("enabled", req.Enabled).Str("operator", auth.GetOperatorID(c)).Msg("dashboard: auto-trading toggled")
	c.JSON(http.StatusOK, gin.H{"account_number": accountNumber, "enabled": req.Enabled})
}

// handleCloseAll emits a close command for every open trade on the account,
// grounded on internal/drawdown.Guard.forceCloseAll's command-construction
// idiom. Unlike the drawdown guard's automatic emergency close, this is an
// operator-initiated action, so the payload carries domain.CloseManual.
func (s *Server) handleCloseAll(c *gin.Context) {
	accountNumber, ok := accountNumberParam(c)
	if !ok {
		return
	}
	trades, err := s.store.ListOpenTradesForAccount(c.Request.Context(), accountNumber)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "STORE_ERROR", "message": err.Error()})
		return
	}

	now := time.Now().UTC()
	var emitted []int64
	for _, t := range trades {
		cmd := &domain.Command{
			AccountNumber: accountNumber,
			Type:          domain.CmdCloseTrade,
			Status:        domain.CommandPending,
			TimeoutAt:     now.Add(5 * time.Minute),
			Payload:       map[string]interface{}{"ticket": t.Ticket, "close_reason": string(domain.CloseManual)},
		}
		cmd.ID = commands.CommandID(fmt.Sprintf("dashboard-%d-%d", accountNumber, t.Ticket), now)
		if err := s.queue.Emit(c.Request.Context(), cmd); err != nil {
			log.Error().Err(err).Int64("ticket", t.Ticket).Msg("dashboard: close-all emission failed")
			continue
		}
		emitted = append(emitted, t.Ticket)
	}
	log.Warn().Int64("account_number", accountNumber).Int("count", len(emitted)).Str("operator", auth.GetOperatorID(c)).Msg("dashboard: close-all issued")
	c.JSON(http.StatusOK, gin.H{"account_number": accountNumber, "closed_tickets": emitted})
}

func (s *Server) handleResetCircuitBreaker(c *gin.Context) {
	accountNumber, ok := accountNumberParam(c)
	if !ok {
		return
	}
	if err := s.store.ResetCircuitBreaker(c.Request.Context(), accountNumber); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "STORE_ERROR", "message": err.Error()})
		return
	}
	log.Info().Int64("account_number", accountNumber).Str("operator", auth.GetOperatorID(c)).Msg("dashboard: circuit breaker reset")
	c.JSON(http.StatusOK, gin.H{"account_number": accountNumber, "circuit_tripped": false})
}

// handlePauseSymbol pauses one (instrument, direction) pair, reusing
// whatever config row already exists (ratios, streak counters) and only
// overwriting the status/reason/audit fields, mirroring
// internal/store.UpsertSymbolConfig's upsert-on-conflict semantics.
func (s *Server) handlePauseSymbol(c *gin.Context) {
	accountNumber, ok := accountNumberParam(c)
	if !ok {
		return
	}
	instrument := c.Param("instrument")
	direction, ok := directionParam(c)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "paused by operator"
	}

	cfg, err := s.store.GetSymbolConfig(c.Request.Context(), accountNumber, instrument, direction)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "STORE_ERROR", "message": err.Error()})
		return
	}
	now := time.Now().UTC()
	cfg.Status = domain.ConfigPaused
	cfg.PauseReason = req.Reason
	cfg.PausedAt = &now
	cfg.UpdatedBy = auth.GetOperatorID(c)
	cfg.UpdatedAt = now
	if err := s.store.UpsertSymbolConfig(c.Request.Context(), cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "STORE_ERROR", "message": err.Error()})
		return
	}
	log.Info().Int64("account_number", accountNumber).Str("instrument", instrument).Str("direction", string(direction)).Str("operator", cfg.UpdatedBy).Msg("dashboard: symbol paused")
	c.JSON(http.StatusOK, gin.H{"symbol": cfg})
}

func (s *Server) handleResumeSymbol(c *gin.Context) {
	accountNumber, ok := accountNumberParam(c)
	if !ok {
		return
	}
	instrument := c.Param("instrument")
	direction, ok := directionParam(c)
	if !ok {
		return
	}

	cfg, err := s.store.GetSymbolConfig(c.Request.Context(), accountNumber, instrument, direction)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "STORE_ERROR", "message": err.Error()})
		return
	}
	cfg.Status = domain.ConfigActive
	cfg.PauseReason = ""
	cfg.PausedAt = nil
	cfg.UpdatedBy = auth.GetOperatorID(c)
	cfg.UpdatedAt = time.Now().UTC()
	if err := s.store.UpsertSymbolConfig(c.Request.Context(), cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "STORE_ERROR", "message": err.Error()})
		return
	}
	log.Info().Int64("account_number", accountNumber).Str("instrument", instrument).Str("direction", string(direction)).Str("operator", cfg.UpdatedBy).Msg("dashboard: symbol resumed")
	c.JSON(http.StatusOK, gin.H{"symbol": cfg})
}
