package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"

	"github.com/shinyyama/musclecat-chat/internal/events"
	"github.com/shinyyama/musclecat-chat/internal/model"
	"github.com/shinyyama/musclecat-chat/internal/observability"
	"github.com/shinyyama/musclecat-chat/internal/repository"
)

var errNoToken = errors.New("owner has no fcm token")

// MessageSender is the part of the FCM client used here.
type MessageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type PushDeps struct {
	Sender        MessageSender
	Users         repository.UserRepository
	Notifications NotificationService
	Metrics       *observability.Metrics
	Logger        *zap.Logger
	OwnerEmail    string
	IconURL       string
	Link          string
}

// PushService notifies the owner's device about customer messages.
type PushService struct {
	sender  MessageSender
	users   repository.UserRepository
	inbox   NotificationService
	metrics *observability.Metrics
	log     *zap.Logger
	owner   string
	icon    string
	link    string

	wg sync.WaitGroup
}

func NewPushService(d PushDeps) *PushService {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &PushService{
		sender:  d.Sender,
		users:   d.Users,
		inbox:   d.Notifications,
		metrics: d.Metrics,
		log:     d.Logger,
		owner:   d.OwnerEmail,
		icon:    d.IconURL,
		link:    d.Link,
	}
}

// HandleEvent is subscribed to message.created. The push runs in the
// background; failures are logged and recorded, never returned to the sender.
func (s *PushService) HandleEvent(ctx context.Context, ev events.Event) error {
	if ev.Type != events.EventMessageCreated || s.sender == nil || s.owner == "" {
		return nil
	}
	p, ok := ev.Payload.(events.MessageCreatedPayload)
	if !ok || p.Message.AuthorRole != model.RoleCustomer {
		return nil
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.push(context.WithoutCancel(ctx), p.Message)
	}()
	return nil
}

// Wait blocks until in-flight pushes finish.
func (s *PushService) Wait() {
	s.wg.Wait()
}

func (s *PushService) push(ctx context.Context, m model.Message) {
	outcome := "sent"
	if err := s.notifyOwner(ctx, m); err != nil {
		outcome = "failed"
		if errors.Is(err, errNoToken) || errors.Is(err, repository.ErrNotFound) {
			outcome = "no_target"
		}
		s.log.Warn("push to owner failed", zap.String("message_id", m.ID), zap.Error(err))
	}
	s.metrics.Push(outcome)
}

func (s *PushService) notifyOwner(ctx context.Context, m model.Message) error {
	owner, err := s.users.FindByEmail(ctx, s.owner)
	if err != nil {
		return fmt.Errorf("find owner: %w", err)
	}
	msg := BuildOwnerPush(m, owner.FCMToken, s.icon, s.link)
	entry := &model.Notification{
		UserUID:   owner.UID,
		Title:     msg.Data["title"],
		Body:      msg.Data["body"],
		MessageID: m.ID,
	}
	defer func() {
		if s.inbox != nil {
			s.inbox.Record(ctx, entry)
		}
	}()
	if owner.FCMToken == "" {
		entry.DeliveryErr = errNoToken.Error()
		return errNoToken
	}
	id, err := s.sender.Send(ctx, msg)
	if err != nil {
		entry.DeliveryErr = truncateErr(err)
		return err
	}
	entry.Delivered = true
	s.log.Debug("push sent", zap.String("fcm_id", id), zap.String("message_id", m.ID))
	return nil
}

// BuildOwnerPush builds a data-only message so the web worker controls display.
func BuildOwnerPush(m model.Message, token, icon, link string) *messaging.Message {
	sender := m.SenderName
	if sender == "" {
		sender = "손님"
	}
	return &messaging.Message{
		Token: token,
		Data: map[string]string{
			"title":     sender + "님의 새 메시지",
			"body":      m.Summary(),
			"icon":      icon,
			"link":      link,
			"messageId": m.ID,
		},
		Android: &messaging.AndroidConfig{Priority: "high"},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{"apns-priority": "10"},
		},
	}
}

func truncateErr(err error) string {
	s := err.Error()
	if len(s) > 500 {
		return s[:500]
	}
	return s
}
