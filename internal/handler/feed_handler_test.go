package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinyyama/musclecat-chat/internal/model"
)

func dialTail(t *testing.T, src *fakeSource, windowSize int, query string) (*websocket.Conn, *FeedHandler) {
	t.Helper()
	e := echo.New()
	h := NewFeedHandler(src, windowSize, nil, nil, func(*http.Request) bool { return true })
	e.GET("/api/messages/tail", h.Tail)
	ts := httptest.NewServer(e)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/messages/tail" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn, h
}

func readSnapshot(t *testing.T, conn *websocket.Conn) model.TailFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var frame model.TailFrame
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.Type == model.FrameSnapshot {
			return frame
		}
	}
}

func ids(msgs []model.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestTailSendsSnapshot(t *testing.T) {
	src := &fakeSource{window: []model.Message{msgAt("c", 3), msgAt("b", 2), msgAt("a", 1)}}
	conn, _ := dialTail(t, src, 30, "")

	frame := readSnapshot(t, conn)
	assert.Equal(t, []string{"a", "b", "c"}, ids(frame.Messages))
}

func TestTailHonoursLimit(t *testing.T) {
	src := &fakeSource{window: []model.Message{msgAt("c", 3), msgAt("b", 2), msgAt("a", 1)}}
	conn, _ := dialTail(t, src, 30, "?limit=2")

	frame := readSnapshot(t, conn)
	assert.Equal(t, []string{"b", "c"}, ids(frame.Messages))
}

func TestTailRejectsPlainHTTP(t *testing.T) {
	e := echo.New()
	h := NewFeedHandler(&fakeSource{}, 30, nil, nil, nil)
	e.GET("/api/messages/tail", h.Tail)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/messages/tail", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCloseEndsOpenStreams(t *testing.T) {
	src := &fakeSource{window: []model.Message{msgAt("a", 1)}}
	conn, h := dialTail(t, src, 30, "")
	readSnapshot(t, conn)

	h.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var frame model.TailFrame
		if err := conn.ReadJSON(&frame); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
			return
		}
	}
}
