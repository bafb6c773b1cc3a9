package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"qbot/internal/models"
	accounts "qbot/internal/modules/accounts/service"
	"qbot/internal/runner/relay"
	"qbot/pkg/broker"
)

const sessionCookie = "session_id"

// Accounts: счета и инструменты (Postgres).
type Accounts interface {
	GetOrCreate(ctx context.Context, sessionID string) (*models.Account, bool, error)
	SetCurrency(ctx context.Context, accountID, currency string) (*models.Account, error)
	Debit(ctx context.Context, accountID string, amount float64) (float64, error)
	ListStocks(ctx context.Context) ([]models.Stock, error)
	StockBySymbol(ctx context.Context, symbol string) (*models.Stock, error)
	relay.TradeLister
}

// Sessions: менеджер сессий.
type Sessions interface {
	Start(ctx context.Context, sessionID string) error
	Cancel(ctx context.Context, sessionID string) error
}

// Clients: счётчик живых сокетов для /healthz.
type Clients interface {
	ClientConnected()
	ClientDisconnected()
}

type Config struct {
	OrderTTL       time.Duration
	AllowedOrigins []string
	SecureCookie   bool
}

type Handler struct {
	accounts Accounts
	sessions Sessions
	relay    *relay.Relay
	broker   broker.Broker
	clients  Clients
	cfg      Config
	log      *zap.Logger
}

func NewHandler(
	a Accounts,
	s Sessions,
	r *relay.Relay,
	b broker.Broker,
	c Clients,
	cfg Config,
	log *zap.Logger,
) *Handler {
	return &Handler{accounts: a, sessions: s, relay: r, broker: b, clients: c, cfg: cfg, log: log}
}

// Router собирает gin-движок со всеми ручками.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.corsMiddleware())

	api := r.Group("/api")
	api.GET("/account", h.getAccount)
	api.POST("/account/currency", h.setCurrency)
	api.GET("/trade/stocks", h.listStocks)
	api.POST("/trade", h.startTrade)
	api.GET("/trade/chart", h.chartSocket)
	api.GET("/trade/history", h.historySocket)
	return r
}

func (h *Handler) abort(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, gin.H{"error": msg})
}

func (h *Handler) internal(c *gin.Context, op string, err error) {
	h.log.Error("[API] "+op, zap.Error(err))
	h.abort(c, http.StatusInternalServerError, "internal error")
}

func (h *Handler) getAccount(c *gin.Context) {
	sid, _ := c.Cookie(sessionCookie)
	acc, created, err := h.accounts.GetOrCreate(c.Request.Context(), sid)
	if err != nil {
		h.internal(c, "get account", err)
		return
	}
	if created {
		c.SetSameSite(http.SameSiteNoneMode)
		c.SetCookie(sessionCookie, acc.ID, 0, "/", "", h.cfg.SecureCookie, true)
	}
	c.JSON(http.StatusOK, acc)
}

type currencyRequest struct {
	Currency string `json:"currency" binding:"required"`
}

func (h *Handler) setCurrency(c *gin.Context) {
	sid, err := c.Cookie(sessionCookie)
	if err != nil {
		h.abort(c, http.StatusUnauthorized, "no session")
		return
	}
	var req currencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.abort(c, http.StatusBadRequest, err.Error())
		return
	}
	acc, err := h.accounts.SetCurrency(c.Request.Context(), sid, req.Currency)
	if errors.Is(err, accounts.ErrNotFound) {
		h.abort(c, http.StatusNotFound, "account not found")
		return
	}
	if err != nil {
		h.internal(c, "set currency", err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (h *Handler) listStocks(c *gin.Context) {
	stocks, err := h.accounts.ListStocks(c.Request.Context())
	if err != nil {
		h.internal(c, "list stocks", err)
		return
	}
	c.JSON(http.StatusOK, stocks)
}

type tradeRequest struct {
	Symbol     string  `json:"symbol" binding:"required"`
	Currency   string  `json:"currency"`
	Amount     float64 `json:"amount" binding:"required,gt=0"`
	StopLoss   float64 `json:"stop_loss" binding:"gte=0"`
	TakeProfit float64 `json:"take_profit" binding:"required"`
	Duration   string  `json:"duration"`
}

type tradeResponse struct {
	SessionID string `json:"qbot_session_id"`
	OrderID   string `json:"order_id"`
}

// startTrade списывает сумму и кладёт PENDING-ордер; сессию запускает сокет графика.
func (h *Handler) startTrade(c *gin.Context) {
	ctx := c.Request.Context()
	sid, err := c.Cookie(sessionCookie)
	if err != nil {
		h.abort(c, http.StatusUnauthorized, "no session")
		return
	}
	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.abort(c, http.StatusBadRequest, err.Error())
		return
	}
	if !(req.StopLoss < req.Amount && req.Amount < req.TakeProfit) {
		h.abort(c, http.StatusBadRequest, "expected stop_loss < amount < take_profit")
		return
	}

	q := models.SessionQueues(sid)
	live, err := h.broker.Exists(ctx, q.Order)
	if err != nil {
		h.internal(c, "order exists", err)
		return
	}
	if live {
		h.abort(c, http.StatusConflict, "session already running")
		return
	}

	stock, err := h.accounts.StockBySymbol(ctx, req.Symbol)
	if errors.Is(err, accounts.ErrNotFound) {
		h.abort(c, http.StatusNotFound, "unknown symbol")
		return
	}
	if err != nil {
		h.internal(c, "stock by symbol", err)
		return
	}

	if _, err := h.accounts.Debit(ctx, sid, req.Amount); err != nil {
		switch {
		case errors.Is(err, accounts.ErrInsufficientFunds):
			h.abort(c, http.StatusPaymentRequired, "insufficient funds")
		case errors.Is(err, accounts.ErrNotFound):
			h.abort(c, http.StatusNotFound, "account not found")
		default:
			h.internal(c, "debit", err)
		}
		return
	}

	order := models.Order{
		OrderID:          uuid.NewString(),
		AccountID:        sid,
		InstrumentID:     stock.ID,
		InstrumentSymbol: stock.Symbol,
		StopLoss:         req.StopLoss,
		TakeProfit:       req.TakeProfit,
		Amount:           req.Amount,
		Duration:         req.Duration,
		Status:           models.OrderPending,
	}
	raw, err := models.Encode(order)
	if err != nil {
		h.internal(c, "encode order", err)
		return
	}
	// хвосты прошлой сессии не должны попасть в новую
	if err := h.broker.Del(ctx, q.Input, q.Output); err != nil {
		h.internal(c, "reset queues", err)
		return
	}
	if err := h.broker.Set(ctx, q.Order, raw, order.TTL(h.cfg.OrderTTL)); err != nil {
		h.internal(c, "set order", err)
		return
	}

	h.log.Info("[API] order placed",
		zap.String("session", sid),
		zap.String("order", order.OrderID),
		zap.String("symbol", order.InstrumentSymbol),
		zap.Float64("amount", order.Amount),
	)
	c.JSON(http.StatusOK, tradeResponse{SessionID: sid, OrderID: order.OrderID})
}
