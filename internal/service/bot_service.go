package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/shinyyama/musclecat-chat/internal/ai"
	"github.com/shinyyama/musclecat-chat/internal/events"
	"github.com/shinyyama/musclecat-chat/internal/model"
	"github.com/shinyyama/musclecat-chat/internal/observability"
	"github.com/shinyyama/musclecat-chat/internal/reqctx"
	"github.com/shinyyama/musclecat-chat/internal/repository"
)

// Bot reply outcomes, used as metric labels.
const (
	botSent        = "sent"
	botDisabled    = "disabled"
	botSkipped     = "skipped"
	botRateLimited = "rate_limited"
	botDeclined    = "declined"
	botFailed      = "failed"
)

type BotService interface {
	// HandleEvent reacts to message.created events.
	HandleEvent(ctx context.Context, ev events.Event) error
	Status(ctx context.Context) (model.BotSettings, error)
	SetStatus(ctx context.Context, v Viewer, active bool) (model.BotSettings, error)
	// CheckIdle re-enables the bot when the owner has been quiet long enough.
	CheckIdle(ctx context.Context) (bool, error)
	// Run drives the watchdog schedule until ctx is done.
	Run(ctx context.Context)
	// Wait blocks until in-flight replies finish.
	Wait()
}

type BotDeps struct {
	Chat          ChatService
	Settings      repository.SettingsRepository
	Responder     ai.Responder
	Events        events.Dispatcher
	Metrics       *observability.Metrics
	Logger        *zap.Logger
	BotUID        string
	BotName       string
	WatchdogCron  string
	IdleTimeout   time.Duration
	ReplyDelay    time.Duration
	RepliesPerMin int
	Now           func() time.Time
}

type botService struct {
	chat      ChatService
	settings  repository.SettingsRepository
	responder ai.Responder
	events    events.Dispatcher
	metrics   *observability.Metrics
	log       *zap.Logger
	bot       Viewer
	cron      string
	idle      time.Duration
	delay     time.Duration
	limiter   *rate.Limiter
	now       func() time.Time

	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

func NewBotService(d BotDeps) BotService {
	s := &botService{
		chat:      d.Chat,
		settings:  d.Settings,
		responder: d.Responder,
		events:    d.Events,
		metrics:   d.Metrics,
		log:       d.Logger,
		bot: Viewer{
			UID:         d.BotUID,
			DisplayName: d.BotName,
			Role:        model.RoleBot,
		},
		cron:  d.WatchdogCron,
		idle:  d.IdleTimeout,
		delay: d.ReplyDelay,
		now:   d.Now,
		stop:  make(chan struct{}),
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.bot.DisplayName == "" {
		s.bot.DisplayName = ai.DefaultBotName
	}
	perMin := d.RepliesPerMin
	if perMin <= 0 {
		perMin = 6
	}
	s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), perMin)
	return s
}

func (s *botService) HandleEvent(ctx context.Context, ev events.Event) error {
	if ev.Type != events.EventMessageCreated {
		return nil
	}
	p, ok := ev.Payload.(events.MessageCreatedPayload)
	if !ok {
		return errors.New("unexpected message.created payload")
	}
	m := p.Message
	switch m.AuthorRole {
	case model.RoleOwner:
		at := s.now().UTC()
		if m.Timestamp != nil {
			at = *m.Timestamp
		}
		if err := s.settings.TouchOwner(ctx, at); err != nil {
			return err
		}
		s.log.Info("owner active, bot paused", zap.String("message_id", m.ID))
		s.publishStatus(ctx, false, "owner_active")
	case model.RoleCustomer:
		if m.Kind != model.KindText || m.Text == "" || s.responder == nil {
			return nil
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			rctx := reqctx.WithMessageID(context.WithoutCancel(ctx), m.ID)
			s.reply(rctx, m)
		}()
	}
	return nil
}

func (s *botService) reply(ctx context.Context, m model.Message) {
	if s.delay > 0 {
		t := time.NewTimer(s.delay)
		select {
		case <-t.C:
		case <-s.stop:
			t.Stop()
			return
		}
	}
	outcome := s.tryReply(ctx, m)
	s.metrics.BotReply(outcome)
	s.log.Debug("bot reply",
		zap.String("message_id", reqctx.MessageID(ctx)),
		zap.String("outcome", outcome),
	)
}

func (s *botService) tryReply(ctx context.Context, m model.Message) string {
	st, err := s.settings.Get(ctx)
	if err != nil {
		s.log.Warn("bot settings unavailable", zap.Error(err))
		return botFailed
	}
	if !st.Active {
		return botDisabled
	}
	last, err := s.chat.Latest(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.log.Warn("bot latest lookup failed", zap.Error(err))
		return botFailed
	}
	if last != nil && last.AuthorRole == model.RoleBot {
		return botSkipped
	}
	if !s.limiter.Allow() {
		return botRateLimited
	}
	text, err := s.responder.Reply(ctx, m.Text)
	if errors.Is(err, ai.ErrNoReply) {
		return botDeclined
	}
	if err != nil {
		s.log.Warn("bot responder failed", zap.String("message_id", m.ID), zap.Error(err))
		return botFailed
	}
	if _, err := s.chat.Send(ctx, s.bot, SendInput{Kind: model.KindText, Text: text}); err != nil {
		s.log.Warn("bot send failed", zap.String("message_id", m.ID), zap.Error(err))
		return botFailed
	}
	return botSent
}

func (s *botService) Status(ctx context.Context) (model.BotSettings, error) {
	return s.settings.Get(ctx)
}

func (s *botService) SetStatus(ctx context.Context, v Viewer, active bool) (model.BotSettings, error) {
	if !v.IsOwner() {
		return model.BotSettings{}, ErrForbidden
	}
	if err := s.settings.SetActive(ctx, active); err != nil {
		return model.BotSettings{}, err
	}
	s.publishStatus(ctx, active, "manual")
	return s.settings.Get(ctx)
}

func (s *botService) CheckIdle(ctx context.Context) (bool, error) {
	st, err := s.settings.Get(ctx)
	if err != nil {
		return false, err
	}
	if st.Active || st.OwnerLastActiveAt == nil {
		return false, nil
	}
	if s.now().Sub(*st.OwnerLastActiveAt) < s.idle {
		return false, nil
	}
	if err := s.settings.SetActive(ctx, true); err != nil {
		return false, err
	}
	s.log.Info("owner idle, bot resumed", zap.Time("owner_last_active", *st.OwnerLastActiveAt))
	s.publishStatus(ctx, true, "owner_idle")
	return true, nil
}

func (s *botService) Run(ctx context.Context) {
	defer s.stopOnce.Do(func() { close(s.stop) })
	for {
		next, err := gronx.NextTickAfter(s.cron, s.now(), false)
		if err != nil {
			s.log.Error("bot watchdog schedule failed", zap.String("cron", s.cron), zap.Error(err))
			return
		}
		wait := next.Sub(s.now())
		if wait <= 0 {
			wait = time.Second
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		if _, err := s.CheckIdle(ctx); err != nil {
			s.log.Warn("bot watchdog check failed", zap.Error(err))
		}
	}
}

func (s *botService) Wait() {
	s.wg.Wait()
}

func (s *botService) publishStatus(ctx context.Context, active bool, reason string) {
	if s.events == nil {
		return
	}
	_ = s.events.Publish(ctx, events.Event{
		Type:      events.EventBotStatus,
		Actor:     events.Actor{UID: s.bot.UID, Role: model.RoleBot},
		Timestamp: s.now().UTC(),
		Payload:   events.BotStatusPayload{Active: active, Reason: reason},
	})
}
