package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinyyama/musclecat-chat/internal/events"
	"github.com/shinyyama/musclecat-chat/internal/model"
	"github.com/shinyyama/musclecat-chat/internal/observability"
)

func createdEvent(m model.Message) events.Event {
	return events.Event{Type: events.EventMessageCreated, Payload: events.MessageCreatedPayload{Message: m}}
}

func newPushFixture(token string) (*PushService, *fakeSender, *fakeNotifications) {
	sender := &fakeSender{}
	inbox := &fakeNotifications{}
	users := newFakeUsers(model.UserProfile{UID: owner.UID, Email: owner.Email, FCMToken: token})
	svc := NewPushService(PushDeps{
		Sender:        sender,
		Users:         users,
		Notifications: NewNotificationService(inbox, nil),
		Metrics:       observability.NewMetrics(),
		OwnerEmail:    owner.Email,
		IconURL:       "/images/icon-144.png",
		Link:          "/",
	})
	return svc, sender, inbox
}

func TestPushOnCustomerMessage(t *testing.T) {
	svc, sender, inbox := newPushFixture("tok-1")
	m := model.Message{ID: "m1", Kind: model.KindPhoto, ImageURL: "https://x/p.jpg", SenderName: "민지", AuthorRole: model.RoleCustomer}

	require.NoError(t, svc.HandleEvent(context.Background(), createdEvent(m)))
	svc.Wait()

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "tok-1", msg.Token)
	assert.Equal(t, "민지님의 새 메시지", msg.Data["title"])
	assert.Equal(t, "사진을 보냈습니다.", msg.Data["body"])
	assert.Equal(t, "high", msg.Android.Priority)
	assert.Equal(t, "10", msg.APNS.Headers["apns-priority"])

	require.Len(t, inbox.list, 1)
	assert.True(t, inbox.list[0].Delivered)
	assert.Equal(t, "m1", inbox.list[0].MessageID)
}

func TestPushSkipsOwnerAndBot(t *testing.T) {
	svc, sender, _ := newPushFixture("tok-1")
	for _, role := range []model.Role{model.RoleOwner, model.RoleBot} {
		m := model.Message{ID: "x", Kind: model.KindText, Text: "hi", AuthorRole: role}
		require.NoError(t, svc.HandleEvent(context.Background(), createdEvent(m)))
	}
	svc.Wait()
	assert.Empty(t, sender.sent)
}

func TestPushWithoutTokenIsRecorded(t *testing.T) {
	svc, sender, inbox := newPushFixture("")
	m := model.Message{ID: "m2", Kind: model.KindText, Text: "계세요?", AuthorRole: model.RoleCustomer}

	require.NoError(t, svc.HandleEvent(context.Background(), createdEvent(m)))
	svc.Wait()

	assert.Empty(t, sender.sent)
	require.Len(t, inbox.list, 1)
	assert.False(t, inbox.list[0].Delivered)
	assert.Equal(t, errNoToken.Error(), inbox.list[0].DeliveryErr)
	assert.Equal(t, "계세요?", inbox.list[0].Body)
}

func TestPushSendFailureIsRecorded(t *testing.T) {
	svc, sender, inbox := newPushFixture("tok-1")
	sender.err = errBoom
	m := model.Message{ID: "m3", Kind: model.KindEmoticon, ImageURL: "https://x/e.gif", AuthorRole: model.RoleCustomer}

	require.NoError(t, svc.HandleEvent(context.Background(), createdEvent(m)))
	svc.Wait()

	require.Len(t, inbox.list, 1)
	assert.Equal(t, "boom", inbox.list[0].DeliveryErr)
	assert.Equal(t, "이모티콘을 보냈습니다.", inbox.list[0].Body)
	assert.Equal(t, "손님님의 새 메시지", inbox.list[0].Title)
}

func TestNotificationListAndMarkRead(t *testing.T) {
	repo := &fakeNotifications{}
	svc := NewNotificationService(repo, nil)
	ctx := context.Background()
	svc.Record(ctx, &model.Notification{UserUID: owner.UID, Title: "a"})
	svc.Record(ctx, &model.Notification{UserUID: owner.UID, Title: "b"})
	svc.Record(ctx, &model.Notification{UserUID: "", Title: "dropped"})

	list, unread, err := svc.List(ctx, owner.UID, true, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.EqualValues(t, 2, unread)
	assert.Equal(t, "b", list[0].Title)

	require.NoError(t, svc.MarkAllRead(ctx, owner.UID))
	list, unread, err = svc.List(ctx, owner.UID, true, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, unread)
}
