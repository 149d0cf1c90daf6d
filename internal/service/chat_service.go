package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shinyyama/musclecat-chat/internal/blob"
	"github.com/shinyyama/musclecat-chat/internal/events"
	"github.com/shinyyama/musclecat-chat/internal/feed"
	"github.com/shinyyama/musclecat-chat/internal/model"
	"github.com/shinyyama/musclecat-chat/internal/observability"
	"github.com/shinyyama/musclecat-chat/internal/repository"
)

const (
	maxTextRunes  = 2000
	maxEmojiRunes = 8
)

type SendInput struct {
	Kind      model.Kind `json:"kind"`
	Text      string     `json:"text"`
	ImageURL  string     `json:"imageUrl"`
	ReplyToID string     `json:"replyToId"`
	ClientID  string     `json:"clientId"`
}

type ChatService interface {
	Send(ctx context.Context, v Viewer, in SendInput) (*model.Message, error)
	EditText(ctx context.Context, v Viewer, id, text string) (*model.Message, error)
	ToggleReaction(ctx context.Context, v Viewer, id, emoji string) (*model.Message, error)
	Delete(ctx context.Context, v Viewer, id string) error
	MarkRead(ctx context.Context, v Viewer) (int64, error)
	UnreadCount(ctx context.Context, v Viewer) (int64, error)
	Latest(ctx context.Context) (*model.Message, error)
	Page(ctx context.Context, before *feed.Cursor, limit int) (feed.Page, error)
	Source() feed.Source
}

type ChatDeps struct {
	Messages    repository.MessageRepository
	Emoticons   repository.EmoticonRepository
	Blobs       blob.Store
	Events      events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	MaxPageSize int
	Now         func() time.Time
}

type chatService struct {
	repo        repository.MessageRepository
	emoticons   repository.EmoticonRepository
	blobs       blob.Store
	events      events.Dispatcher
	metrics     *observability.Metrics
	log         *zap.Logger
	pager       *feed.Pager
	maxPageSize int
	now         func() time.Time
}

func NewChatService(d ChatDeps) ChatService {
	s := &chatService{
		repo:        d.Messages,
		emoticons:   d.Emoticons,
		blobs:       d.Blobs,
		events:      d.Events,
		metrics:     d.Metrics,
		log:         d.Logger,
		pager:       feed.NewPager(d.Messages),
		maxPageSize: d.MaxPageSize,
		now:         d.Now,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.events == nil {
		s.events = events.NewInMemoryDispatcher(s.log)
	}
	if s.maxPageSize <= 0 {
		s.maxPageSize = 100
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *chatService) Send(ctx context.Context, v Viewer, in SendInput) (*model.Message, error) {
	if !v.valid() {
		return nil, ErrForbidden
	}
	text := strings.TrimSpace(in.Text)
	if utf8.RuneCountInString(text) > maxTextRunes {
		return nil, invalid("text is too long")
	}
	if in.ReplyToID != "" {
		if _, err := s.repo.FindByID(ctx, in.ReplyToID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, invalid("reply target not found")
			}
			return nil, err
		}
	}
	name := strings.TrimSpace(v.DisplayName)
	if name == "" {
		name = "손님"
	}
	ts := s.now().UTC().Truncate(time.Millisecond)
	m := &model.Message{
		ID:         uuid.NewString(),
		Timestamp:  &ts,
		AuthorID:   v.UID,
		AuthorRole: v.Role,
		SenderName: name,
		Kind:       in.Kind,
		Text:       text,
		ImageURL:   strings.TrimSpace(in.ImageURL),
		ReplyToID:  in.ReplyToID,
		ClientID:   in.ClientID,
		Reactions:  []model.Reaction{},
		ReadBy:     []string{},
	}
	if m.AuthorRole == "" {
		m.AuthorRole = model.RoleCustomer
	}
	if err := m.Validate(); err != nil {
		return nil, fromRepo(err)
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, fromRepo(err)
	}
	s.metrics.MessageCreated(string(m.Kind), string(m.AuthorRole))
	s.publish(ctx, v, events.EventMessageCreated, events.MessageCreatedPayload{Message: *m})
	return m, nil
}

func (s *chatService) EditText(ctx context.Context, v Viewer, id, text string) (*model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid("text is required")
	}
	if utf8.RuneCountInString(text) > maxTextRunes {
		return nil, invalid("text is too long")
	}
	m, err := s.repo.Mutate(ctx, id, func(m *model.Message) error {
		if m.AuthorID != v.UID {
			return ErrForbidden
		}
		if m.Kind != model.KindText {
			return invalid("only text messages can be edited")
		}
		now := s.now().UTC()
		m.Text = text
		m.EditedAt = &now
		return nil
	})
	return m, fromRepo(err)
}

func (s *chatService) ToggleReaction(ctx context.Context, v Viewer, id, emoji string) (*model.Message, error) {
	if !v.valid() {
		return nil, ErrForbidden
	}
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || utf8.RuneCountInString(emoji) > maxEmojiRunes {
		return nil, invalid("emoji is required")
	}
	var active bool
	m, err := s.repo.Mutate(ctx, id, func(m *model.Message) error {
		active = m.ToggleReaction(v.UID, emoji)
		return nil
	})
	if err != nil {
		return nil, fromRepo(err)
	}
	s.publish(ctx, v, events.EventReactionToggled, events.ReactionToggledPayload{
		MessageID: id,
		Emoji:     emoji,
		Active:    active,
	})
	return m, nil
}

// Delete removes a message the viewer wrote; the owner may delete any message.
func (s *chatService) Delete(ctx context.Context, v Viewer, id string) error {
	m, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return fromRepo(err)
	}
	if m.AuthorID != v.UID && !v.IsOwner() {
		return ErrForbidden
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fromRepo(err)
	}
	s.removeImage(ctx, *m)
	s.publish(ctx, v, events.EventMessageDeleted, events.MessageDeletedPayload{MessageID: id})
	return nil
}

// removeImage deletes the stored photo of a deleted message. Emoticon images
// are only removed when no longer part of the emoticon library.
func (s *chatService) removeImage(ctx context.Context, m model.Message) {
	if s.blobs == nil || m.ImageURL == "" {
		return
	}
	switch m.Kind {
	case model.KindPhoto:
	case model.KindEmoticon:
		if s.inEmoticonLibrary(ctx, m.ImageURL) {
			return
		}
	default:
		return
	}
	if err := s.blobs.DeleteByURL(ctx, m.ImageURL); err != nil && !errors.Is(err, blob.ErrNotStorageURL) {
		s.log.Warn("delete message image failed", zap.String("message_id", m.ID), zap.Error(err))
	}
}

func (s *chatService) inEmoticonLibrary(ctx context.Context, url string) bool {
	if s.emoticons == nil {
		return true
	}
	list, err := s.emoticons.List(ctx)
	if err != nil {
		return true
	}
	for _, e := range list {
		if e.URL == url {
			return true
		}
	}
	return false
}

func (s *chatService) MarkRead(ctx context.Context, v Viewer) (int64, error) {
	if !v.valid() {
		return 0, ErrForbidden
	}
	return s.repo.MarkReadBy(ctx, v.UID)
}

func (s *chatService) UnreadCount(ctx context.Context, v Viewer) (int64, error) {
	if !v.valid() {
		return 0, ErrForbidden
	}
	return s.repo.CountUnread(ctx, v.UID)
}

func (s *chatService) Latest(ctx context.Context) (*model.Message, error) {
	m, err := s.repo.Latest(ctx)
	return m, fromRepo(err)
}

func (s *chatService) Page(ctx context.Context, before *feed.Cursor, limit int) (feed.Page, error) {
	if limit <= 0 {
		limit = feed.DefaultPageSize
	}
	if limit > s.maxPageSize {
		limit = s.maxPageSize
	}
	return s.pager.FetchOlderPage(ctx, before, limit)
}

func (s *chatService) Source() feed.Source {
	return s.repo
}

func (s *chatService) publish(ctx context.Context, v Viewer, typ events.EventType, payload interface{}) {
	ev := events.Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Actor:     events.Actor{UID: v.UID, Role: v.Role},
		Timestamp: s.now().UTC(),
		Payload:   payload,
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("publish event failed", zap.String("event_type", string(typ)), zap.Error(err))
	}
}
