package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Send/receive timing configuration and message size limits.
const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMsgSize       = 1 << 12 // 4 KB
	defaultInterval  = 1 * time.Second
	maxInterval      = 10 * time.Second
	maxIntervalMilli = 10_000 // 10s in ms
)

// Stream views selectable with ?view=.
const (
	viewStatus = "status" // full dashboard summary
	viewPoller = "poller" // poll scheduler status only
)

// Envelope used for WebSocket messages.
type wsEnvelope struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// snapshotFunc produces one message of a stream.
type snapshotFunc func(ctx context.Context) (wsEnvelope, error)

// @Summary      Status stream
// @Description  WebSocket pushing the dashboard summary (view=status) or the poller status (view=poller) every interval.
// @Tags         system
// @Param        view         query  string  false  "status or poller"  Enums(status,poller)
// @Param        interval     query  string  false  "Go duration, at most 10s"  example(2s)
// @Param        interval_ms  query  int     false  "Interval in milliseconds, at most 10000"
// @Router       /ws [get]
func (h *Handler) wsConnect(c *gin.Context) {
	interval := h.parseInterval(c)
	snapshot := h.snapshotFor(c.Query("view"))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go h.startReader(conn, done)

	h.stream(c.Request.Context(), conn, done, interval, snapshot)
}

// stream writes a snapshot immediately and then on every tick, pinging the peer
// in between. It returns when the peer goes away or a write fails.
func (h *Handler) stream(ctx context.Context, conn *websocket.Conn, done <-chan struct{}, interval time.Duration, snapshot snapshotFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	if err := h.writeSnapshot(ctx, conn, snapshot); err != nil {
		h.wsClosed("ws_write_failed_initial", err)
		return
	}
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.wsClosed("ws_ping_failed", err)
				return
			}
		case <-ticker.C:
			if err := h.writeSnapshot(ctx, conn, snapshot); err != nil {
				h.wsClosed("ws_write_failed", err)
				return
			}
		}
	}
}

func (h *Handler) wsClosed(event string, err error) {
	if h.log != nil {
		h.log.Infow(event, "err", err)
	}
}

// snapshotFor maps a view name to its producer; unknown views fall back to the summary.
func (h *Handler) snapshotFor(view string) snapshotFunc {
	if view == viewPoller {
		return func(context.Context) (wsEnvelope, error) {
			return wsEnvelope{Type: viewPoller, Data: h.services.Poller.Status()}, nil
		}
	}
	return func(ctx context.Context) (wsEnvelope, error) {
		sum, err := h.services.Stats.Summary(ctx)
		if err != nil {
			return wsEnvelope{}, err
		}
		return wsEnvelope{Type: viewStatus, Data: sum}, nil
	}
}

// parseInterval reads ?interval=2s or ?interval_ms=2000 with bounds.
func (h *Handler) parseInterval(c *gin.Context) time.Duration {
	if s := c.Query("interval"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 && d <= maxInterval {
			return d
		}
	}
	if ms := c.Query("interval_ms"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil && v > 0 && v <= maxIntervalMilli {
			return time.Duration(v) * time.Millisecond
		}
	}
	return defaultInterval
}

// startReader drains incoming messages to handle control frames and detect closure.
func (h *Handler) startReader(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.wsClosed("ws_read_closed", err)
			return
		}
	}
}

// writeSnapshot produces one message and writes it with a write deadline.
func (h *Handler) writeSnapshot(ctx context.Context, conn *websocket.Conn, snapshot snapshotFunc) error {
	env, err := snapshot(ctx)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_snapshot_failed", "err", err)
		}
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(env)
}
