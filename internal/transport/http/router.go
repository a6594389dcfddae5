package tradehttp

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ramonzeraa/teste-crypto/internal/breaker"
	"github.com/ramonzeraa/teste-crypto/internal/executor"
	"github.com/ramonzeraa/teste-crypto/internal/store/model"
	"github.com/ramonzeraa/teste-crypto/internal/trader"
	"github.com/ramonzeraa/teste-crypto/internal/types"
)

// Service is what the API needs from the application. The app wires the
// trader, store and emergency stop behind it.
type Service interface {
	IngestSignal(ctx context.Context, sig types.Signal) error
	Snapshot() *trader.StateSnapshot
	RecentOrders(ctx context.Context, limit int) ([]executor.Order, error)
	Ledger(ctx context.Context, symbol string, limit int) ([]model.LedgerEntryModel, error)
	Events(ctx context.Context, kind string, limit int) ([]model.EventModel, error)
	Halt(detail string)
	Resume(ctx context.Context) error
	BreakerStatus() (breaker.State, breaker.Cause, string, bool)
}

type Router struct {
	service Service
}

func (r *Router) Register(group *gin.RouterGroup) {
	group.POST("/signal", r.handleSignal)
	group.GET("/account", r.handleAccount)
	group.GET("/positions", r.handlePositions)
	group.GET("/orders", r.handleOrders)
	group.GET("/ledger", r.handleLedger)
	group.GET("/events", r.handleEvents)
	group.GET("/breaker", r.handleBreakerStatus)
	group.POST("/control/halt", r.handleHalt)
	group.POST("/control/resume", r.handleResume)
}

func (r *Router) handleSignal(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	sig, err := parseSignal(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := r.service.IngestSignal(c.Request.Context(), sig); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "symbol": sig.Symbol})
}

func (r *Router) handleAccount(c *gin.Context) {
	snap := r.service.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"account":        snap.Account,
		"breaker_state":  snap.Breaker,
		"pending_orders": snap.Pending,
		"updated_at":     snap.UpdatedAt,
	})
}

func (r *Router) handlePositions(c *gin.Context) {
	snap := r.service.Snapshot()
	c.JSON(http.StatusOK, gin.H{"positions": snap.Positions})
}

func (r *Router) handleOrders(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	orders, err := r.service.RecentOrders(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (r *Router) handleLedger(c *gin.Context) {
	symbol := strings.TrimSpace(c.Query("symbol"))
	limit := queryInt(c, "limit", 100)
	entries, err := r.service.Ledger(c.Request.Context(), symbol, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ledger": entries})
}

func (r *Router) handleEvents(c *gin.Context) {
	kind := strings.TrimSpace(c.Query("kind"))
	limit := queryInt(c, "limit", 100)
	events, err := r.service.Events(c.Request.Context(), kind, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (r *Router) handleBreakerStatus(c *gin.Context) {
	state, cause, detail, degraded := r.service.BreakerStatus()
	c.JSON(http.StatusOK, gin.H{
		"state":    state,
		"cause":    cause,
		"detail":   detail,
		"degraded": degraded,
	})
}

func (r *Router) handleHalt(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "manual halt via API"
	}
	r.service.Halt(req.Reason)
	c.JSON(http.StatusAccepted, gin.H{"status": "halting"})
}

func (r *Router) handleResume(c *gin.Context) {
	if err := r.service.Resume(c.Request.Context()); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resumed"})
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.DefaultQuery(key, ""))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
