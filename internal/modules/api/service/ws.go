package service

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"qbot/internal/models"
	"qbot/internal/runner/relay"
)

const writeWait = 5 * time.Second

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func (h *Handler) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || h.originAllowed(origin)
		},
	}
}

// wsSink: все записи идут из одной горутины хендлера.
func wsSink(conn *websocket.Conn) relay.Sink {
	return func(_ context.Context, payload string) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.TextMessage, []byte(payload))
	}
}

func closeNormal(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

func (h *Handler) sendError(conn *websocket.Conn, err error) {
	raw, encErr := models.Encode(errorMessage{Type: "error", Error: err.Error()})
	if encErr == nil {
		_ = wsSink(conn)(context.Background(), raw)
	}
	closeNormal(conn, "")
}

// chartSocket запускает сессию и стримит её выходную очередь до stop.
// Отключение клиента = отмена сессии.
func (h *Handler) chartSocket(c *gin.Context) {
	sid, err := c.Cookie(sessionCookie)
	if err != nil {
		h.abort(c, http.StatusUnauthorized, "no session")
		return
	}
	conn, err := h.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("[API] chart upgrade failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()
	h.clients.ClientConnected()
	defer h.clients.ClientDisconnected()

	log := h.log.With(zap.String("session", sid))
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// читаем только ради close/ошибки от клиента
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.sessions.Start(ctx, sid); err != nil {
		log.Warn("[API] session not started", zap.Error(err))
		h.sendError(conn, err)
		return
	}

	err = h.relay.Stream(ctx, models.OutputQueue(sid), wsSink(conn))
	if err != nil {
		// клиент ушёл или брокер сломался: сессия без зрителя не нужна
		log.Info("[API] chart stream ended early, cancelling session", zap.Error(err))
		if cErr := h.sessions.Cancel(context.WithoutCancel(ctx), sid); cErr != nil {
			log.Warn("[API] cancel failed", zap.Error(cErr))
		}
		return
	}
	closeNormal(conn, "stop")
}

// historySocket отдаёт закрытые сделки ордера и закрывается.
func (h *Handler) historySocket(c *gin.Context) {
	sid, err := c.Cookie(sessionCookie)
	if err != nil {
		h.abort(c, http.StatusUnauthorized, "no session")
		return
	}
	orderID := c.Query("order_id")
	if orderID == "" {
		h.abort(c, http.StatusBadRequest, "order_id is required")
		return
	}
	conn, err := h.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("[API] history upgrade failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()
	h.clients.ClientConnected()
	defer h.clients.ClientDisconnected()

	n, err := relay.Replay(c.Request.Context(), h.accounts, sid, orderID, wsSink(conn))
	if err != nil {
		h.log.Warn("[API] history replay failed", zap.String("session", sid), zap.Error(err))
		h.sendError(conn, err)
		return
	}
	h.log.Debug("[API] history sent", zap.String("session", sid), zap.Int("trades", n))
	closeNormal(conn, "")
}
