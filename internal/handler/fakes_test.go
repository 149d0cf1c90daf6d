package handler

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/shinyyama/musclecat-chat/internal/events"
	"github.com/shinyyama/musclecat-chat/internal/feed"
	"github.com/shinyyama/musclecat-chat/internal/middleware"
	"github.com/shinyyama/musclecat-chat/internal/model"
	"github.com/shinyyama/musclecat-chat/internal/service"
)

type fakeChat struct {
	mu       sync.Mutex
	sent     []service.SendInput
	viewers  []service.Viewer
	page     feed.Page
	before   *feed.Cursor
	limit    int
	err      error
	unread   int64
	deleted  []string
	readMark int64
}

func (f *fakeChat) Send(_ context.Context, v service.Viewer, in service.SendInput) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, in)
	f.viewers = append(f.viewers, v)
	ts := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return &model.Message{ID: "m-new", Timestamp: &ts, AuthorID: v.UID, AuthorRole: v.Role, Kind: in.Kind, Text: in.Text}, nil
}

func (f *fakeChat) EditText(_ context.Context, v service.Viewer, id, text string) (*model.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.Message{ID: id, AuthorID: v.UID, Kind: model.KindText, Text: text}, nil
}

func (f *fakeChat) ToggleReaction(_ context.Context, v service.Viewer, id, emoji string) (*model.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.Message{ID: id, Reactions: []model.Reaction{{Emoji: emoji, UserID: v.UID}}}, nil
}

func (f *fakeChat) Delete(_ context.Context, _ service.Viewer, id string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeChat) MarkRead(context.Context, service.Viewer) (int64, error) {
	return f.readMark, f.err
}

func (f *fakeChat) UnreadCount(context.Context, service.Viewer) (int64, error) {
	return f.unread, f.err
}

func (f *fakeChat) Latest(context.Context) (*model.Message, error) {
	return nil, service.ErrNotFound
}

func (f *fakeChat) Page(_ context.Context, before *feed.Cursor, limit int) (feed.Page, error) {
	f.before, f.limit = before, limit
	return f.page, f.err
}

func (f *fakeChat) Source() feed.Source { return nil }

type fakeMedia struct {
	contentType string
	body        string
	err         error
}

func (f *fakeMedia) UploadPhoto(_ context.Context, _ service.Viewer, contentType string, r io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	b, _ := io.ReadAll(r)
	f.contentType, f.body = contentType, string(b)
	return "https://storage.example/photo.jpg", nil
}

type fakeBot struct {
	settings model.BotSettings
	setBy    service.Viewer
	err      error
}

func (f *fakeBot) HandleEvent(context.Context, events.Event) error { return nil }

func (f *fakeBot) CheckIdle(context.Context) (bool, error) { return false, nil }

func (f *fakeBot) Run(context.Context) {}

func (f *fakeBot) Wait() {}

func (f *fakeBot) Status(context.Context) (model.BotSettings, error) { return f.settings, f.err }

func (f *fakeBot) SetStatus(_ context.Context, v service.Viewer, active bool) (model.BotSettings, error) {
	if f.err != nil {
		return model.BotSettings{}, f.err
	}
	f.setBy = v
	f.settings.Active = active
	return f.settings, nil
}

// fakeSource serves a fixed window and blocks until the watcher is cancelled.
type fakeSource struct {
	window []model.Message
}

func (s *fakeSource) ReadRange(context.Context, *feed.Cursor, int) ([]model.Message, error) {
	return s.window, nil
}

func (s *fakeSource) Watch(ctx context.Context, _ int, fn func([]model.Message)) error {
	fn(s.window)
	<-ctx.Done()
	return ctx.Err()
}

func msgAt(id string, sec int) model.Message {
	ts := time.Date(2024, 5, 1, 9, 0, sec, 0, time.UTC)
	return model.Message{ID: id, Timestamp: &ts, AuthorID: "u1", AuthorRole: model.RoleCustomer, Kind: model.KindText, Text: id}
}

// asViewer stands in for RequireAuth.
func asViewer(uid string, role model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if uid != "" {
				c.Set(middleware.KeyUID, uid)
				c.Set(middleware.KeyName, "tester")
				c.Set(middleware.KeyRole, role)
			}
			return next(c)
		}
	}
}

func doJSON(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}
