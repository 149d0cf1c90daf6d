package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/shinyyama/musclecat-chat/internal/feed"
	"github.com/shinyyama/musclecat-chat/internal/model"
	"github.com/shinyyama/musclecat-chat/internal/observability"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// FeedHandler streams the newest window of messages over a websocket. Each
// frame is a complete snapshot, so a client that reconnects needs no replay.
type FeedHandler struct {
	src        feed.Source
	windowSize int
	tailOpts   feed.TailOptions
	metrics    *observability.Metrics
	log        *zap.Logger
	upgrader   websocket.Upgrader

	life context.Context
	stop context.CancelFunc
}

func NewFeedHandler(src feed.Source, windowSize int, metrics *observability.Metrics, logger *zap.Logger, checkOrigin func(*http.Request) bool) *FeedHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if windowSize <= 0 {
		windowSize = feed.DefaultWindowSize
	}
	life, stop := context.WithCancel(context.Background())
	return &FeedHandler{
		life:       life,
		stop:       stop,
		src:        src,
		windowSize: windowSize,
		metrics:    metrics,
		log:        logger,
		tailOpts:   feed.TailOptions{Logger: logger},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
	}
}

type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) writeJSON(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteJSON(v)
}

func (w *wsConn) close(code int, text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Close ends every open tail stream with a going-away close frame. Streams
// opened afterwards end immediately.
func (h *FeedHandler) Close() {
	h.stop()
}

// Tail serves GET /api/messages/tail?limit=N.
func (h *FeedHandler) Tail(c echo.Context) error {
	size := queryLimit(c)
	if size <= 0 || size > h.windowSize {
		size = h.windowSize
	}
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return nil
	}
	defer conn.Close()
	h.metrics.StreamOpened()
	defer h.metrics.StreamClosed()

	ws := &wsConn{conn: conn}
	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request().Context()))
	defer cancel()
	stopOnClose := context.AfterFunc(h.life, cancel)
	defer stopOnClose()

	opts := h.tailOpts
	opts.OnStatus = func(st feed.Status, err error) {
		if st == feed.StatusReconnecting {
			h.metrics.TailReconnect()
		}
		frame := model.TailFrame{Type: model.FrameStatus, Status: st.String()}
		if err != nil {
			frame.Error = err.Error()
		}
		if werr := ws.writeJSON(frame); werr != nil {
			cancel()
		}
	}
	tail := feed.NewTail(h.src, opts)
	unsub := tail.Subscribe(ctx, size, func(window []model.Message, _ *feed.Cursor) {
		if window == nil {
			window = []model.Message{}
		}
		if err := ws.writeJSON(model.TailFrame{Type: model.FrameSnapshot, Messages: window}); err != nil {
			cancel()
			return
		}
		h.metrics.SnapshotSent()
	})
	defer unsub()

	go h.readLoop(conn, cancel)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if h.life.Err() != nil {
				ws.close(websocket.CloseGoingAway, "server shutting down")
			}
			return nil
		case <-ticker.C:
			if err := ws.ping(); err != nil {
				h.log.Debug("tail ping failed", zap.Error(err))
				return nil
			}
		}
	}
}

// readLoop discards client frames and cancels the stream when the peer goes away.
func (h *FeedHandler) readLoop(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
