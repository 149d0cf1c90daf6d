package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinyyama/musclecat-chat/internal/repository"
)

func TestTypingListsOthersWithinTTL(t *testing.T) {
	clock := newClock()
	svc := NewTypingService(repository.NewMemoryTypingRepository(clock.Now), 5*time.Second, clock.Now)
	ctx := context.Background()

	require.NoError(t, svc.SetTyping(ctx, customer, true))
	require.NoError(t, svc.SetTyping(ctx, other, true))

	list, err := svc.List(ctx, customer)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "준호", list[0].DisplayName)

	require.NoError(t, svc.SetTyping(ctx, other, false))
	list, err = svc.List(ctx, customer)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, svc.SetTyping(ctx, other, true))
	clock.Advance(6 * time.Second)
	list, err = svc.List(ctx, customer)
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.ErrorIs(t, svc.SetTyping(ctx, Viewer{}, true), ErrForbidden)
}

func TestEmoticonLifecycle(t *testing.T) {
	repo := newFakeEmoticons()
	blobs := newFakeBlobs()
	svc := NewEmoticonService(repo, blobs, nil)
	ctx := context.Background()

	_, err := svc.Add(ctx, customer, "image/gif", strings.NewReader("gif"))
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Add(ctx, owner, "text/plain", strings.NewReader("nope"))
	assert.ErrorIs(t, err, ErrInvalid)

	a, err := svc.Add(ctx, owner, "image/gif", strings.NewReader("a"))
	require.NoError(t, err)
	b, err := svc.Add(ctx, owner, "image/png", strings.NewReader("b"))
	require.NoError(t, err)
	assert.Equal(t, 0, a.Order)
	assert.Equal(t, 1, b.Order)
	assert.Contains(t, a.URL, "emoticons%2F")
	assert.True(t, strings.HasSuffix(b.URL, ".png"))

	require.NoError(t, svc.Reorder(ctx, owner, []string{b.ID, a.ID}))
	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)

	assert.ErrorIs(t, svc.Reorder(ctx, owner, []string{a.ID, a.ID}), ErrInvalid)
	assert.ErrorIs(t, svc.Reorder(ctx, owner, []string{"ghost"}), ErrNotFound)

	require.NoError(t, svc.Delete(ctx, owner, a.ID))
	assert.Equal(t, []string{a.URL}, blobs.deletedURLs())
	assert.ErrorIs(t, svc.Delete(ctx, owner, a.ID), ErrNotFound)
}

func TestPhotoUploadWithoutStorage(t *testing.T) {
	svc := NewMediaService(nil)
	_, err := svc.UploadPhoto(context.Background(), customer, "image/jpeg", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrStorageDisabled)

	blobs := newFakeBlobs()
	url, err := NewMediaService(blobs).UploadPhoto(context.Background(), customer, "image/jpeg; charset=binary", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Contains(t, url, "photos%2F")
	assert.True(t, strings.HasSuffix(url, ".jpg"))
}

func TestUserProfileFlow(t *testing.T) {
	users := newFakeUsers()
	svc := NewUserService(users)
	ctx := context.Background()
	v := Viewer{UID: "u1", Email: "u1@example.com", DisplayName: "첫이름", PhotoURL: "https://x/p.png"}

	p, err := svc.GetOrCreate(ctx, v)
	require.NoError(t, err)
	assert.Equal(t, "첫이름", p.DisplayName)

	name := "  새이름 "
	p, err = svc.Update(ctx, v, ProfileUpdate{DisplayName: &name})
	require.NoError(t, err)
	assert.Equal(t, "새이름", p.DisplayName)
	assert.Equal(t, "https://x/p.png", p.PhotoURL)

	empty := ""
	_, err = svc.Update(ctx, v, ProfileUpdate{DisplayName: &empty})
	assert.ErrorIs(t, err, ErrInvalid)

	require.NoError(t, svc.SaveFCMToken(ctx, v, "tok"))
	stored, _ := users.FindByUID(ctx, "u1")
	assert.Equal(t, "tok", stored.FCMToken)
	assert.ErrorIs(t, svc.SaveFCMToken(ctx, v, " "), ErrInvalid)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
