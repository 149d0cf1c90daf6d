package server

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/shinyyama/musclecat-chat/internal/ai"
	"github.com/shinyyama/musclecat-chat/internal/blob"
	"github.com/shinyyama/musclecat-chat/internal/config"
	"github.com/shinyyama/musclecat-chat/internal/events"
	"github.com/shinyyama/musclecat-chat/internal/handler"
	appmw "github.com/shinyyama/musclecat-chat/internal/middleware"
	"github.com/shinyyama/musclecat-chat/internal/observability"
	"github.com/shinyyama/musclecat-chat/internal/reqctx"
	"github.com/shinyyama/musclecat-chat/internal/service"
)

type Deps struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	Stores    Stores
	Verifier  appmw.TokenVerifier
	Blobs     blob.Store
	Sender    service.MessageSender
	Responder ai.Responder
	Events    events.Dispatcher
	SHA       string
	BuildTime string
}

type Server struct {
	e      *echo.Echo
	log    *zap.Logger
	stores Stores
	bot    service.BotService
	push   *service.PushService
	tail   *handler.FeedHandler
}

func New(d Deps) *Server {
	cfg := d.Config
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Events == nil {
		d.Events = events.NewInMemoryDispatcher(d.Logger)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestContext)
	e.Use(middleware.Logger())
	e.Use(requestMetrics(d.Metrics))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		AllowOriginFunc:  allowOrigin,
	}))

	st := d.Stores
	chatSvc := service.NewChatService(service.ChatDeps{
		Messages:    st.Messages,
		Emoticons:   st.Emoticons,
		Blobs:       d.Blobs,
		Events:      d.Events,
		Metrics:     d.Metrics,
		Logger:      d.Logger,
		MaxPageSize: cfg.FeedMaxPageSize,
	})
	botSvc := service.NewBotService(service.BotDeps{
		Chat:          chatSvc,
		Settings:      st.Settings,
		Responder:     d.Responder,
		Events:        d.Events,
		Metrics:       d.Metrics,
		Logger:        d.Logger.Named("bot"),
		BotUID:        cfg.BotUID,
		BotName:       cfg.BotName,
		WatchdogCron:  cfg.BotWatchdogCron,
		IdleTimeout:   cfg.OwnerIdleTimeout,
		ReplyDelay:    cfg.BotReplyDelay,
		RepliesPerMin: cfg.BotRepliesPerMin,
	})
	notifSvc := service.NewNotificationService(st.Notifications, d.Logger)
	pushSvc := service.NewPushService(service.PushDeps{
		Sender:        d.Sender,
		Users:         st.Users,
		Notifications: notifSvc,
		Metrics:       d.Metrics,
		Logger:        d.Logger.Named("push"),
		OwnerEmail:    cfg.OwnerEmail,
		IconURL:       cfg.PushIconURL,
		Link:          cfg.PushLink,
	})
	d.Events.Subscribe(events.EventMessageCreated, botSvc.HandleEvent)
	d.Events.Subscribe(events.EventMessageCreated, pushSvc.HandleEvent)

	msgHandler := handler.NewMessageHandler(chatSvc, service.NewMediaService(d.Blobs))
	feedHandler := handler.NewFeedHandler(chatSvc.Source(), cfg.FeedWindowSize, d.Metrics, d.Logger.Named("tail"), checkWSOrigin)
	typingHandler := handler.NewTypingHandler(service.NewTypingService(st.Typing, cfg.TypingTTL, nil))
	emoticonHandler := handler.NewEmoticonHandler(service.NewEmoticonService(st.Emoticons, d.Blobs, d.Logger))
	botHandler := handler.NewBotHandler(botSvc)
	userHandler := handler.NewUserHandler(service.NewUserService(st.Users))
	notifHandler := handler.NewNotificationHandler(notifSvc)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"ok":         "true",
			"git_sha":    d.SHA,
			"build_time": d.BuildTime,
		})
	})
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	}

	authMw := appmw.NewAuthMiddleware(d.Verifier, cfg.OwnerEmail)
	api := e.Group("/api", authMw.RequireAuth)
	api.GET("/messages", msgHandler.Page)
	api.GET("/messages/tail", feedHandler.Tail)
	api.GET("/messages/unread", msgHandler.Unread)
	api.POST("/messages", msgHandler.Send)
	api.POST("/messages/read", msgHandler.MarkRead)
	api.PATCH("/messages/:id", msgHandler.Edit)
	api.POST("/messages/:id/reactions", msgHandler.React)
	api.DELETE("/messages/:id", msgHandler.Delete)
	api.POST("/photos", msgHandler.UploadPhoto)
	api.GET("/typing", typingHandler.List)
	api.POST("/typing", typingHandler.Set)
	api.GET("/emoticons", emoticonHandler.List)
	api.POST("/emoticons", emoticonHandler.Add)
	api.PUT("/emoticons/order", emoticonHandler.Reorder)
	api.DELETE("/emoticons/:id", emoticonHandler.Delete)
	api.GET("/bot", botHandler.Status)
	api.PUT("/bot", botHandler.SetStatus)
	api.GET("/me", userHandler.Me)
	api.PUT("/me", userHandler.UpdateMe)
	api.PUT("/me/fcm-token", userHandler.SaveFCMToken)
	api.GET("/users", userHandler.List)
	api.GET("/notifications", notifHandler.List)
	api.POST("/notifications/read", notifHandler.MarkAllRead)

	return &Server{e: e, log: d.Logger, stores: st, bot: botSvc, push: pushSvc, tail: feedHandler}
}

func (s *Server) Start(addr string) error {
	err := s.e.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// RunBackground drives the bot watchdog until ctx is done.
func (s *Server) RunBackground(ctx context.Context) {
	s.bot.Run(ctx)
}

// Shutdown stops accepting requests and waits for in-flight bot replies and pushes.
// Shutdown closes the tail websockets, which the HTTP server does not track
// once hijacked, then drains requests and background work.
func (s *Server) Shutdown(ctx context.Context) error {
	s.tail.Close()
	err := s.e.Shutdown(ctx)
	s.bot.Wait()
	s.push.Wait()
	return err
}

func (s *Server) Handler() http.Handler {
	return s.e
}

func (s *Server) SetDB(db *gorm.DB) {
	for _, setter := range s.stores.setters() {
		setter.SetDB(db)
	}
}

func requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		rid := c.Response().Header().Get(echo.HeaderXRequestID)
		if rid != "" {
			c.SetRequest(c.Request().WithContext(reqctx.WithRID(c.Request().Context(), rid)))
		}
		return next(c)
	}
}

func requestMetrics(m *observability.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			m.RecordRequest(c.Path(), c.Request().Method, c.Response().Status, time.Since(start))
			return nil
		}
	}
}

func allowOrigin(origin string) (bool, error) {
	low := strings.ToLower(origin)
	if strings.HasPrefix(low, "http://localhost:") || strings.HasPrefix(low, "http://127.0.0.1:") ||
		strings.HasPrefix(low, "https://localhost:") || strings.HasPrefix(low, "https://127.0.0.1:") {
		return true, nil
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false, nil
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false, nil
	}
	host := u.Hostname()
	if strings.HasSuffix(host, "vercel.app") || strings.HasSuffix(host, "musclecat.co.kr") {
		return true, nil
	}
	return false, nil
}

// checkWSOrigin admits non-browser clients, which send no Origin header.
func checkWSOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	ok, _ := allowOrigin(origin)
	return ok
}
