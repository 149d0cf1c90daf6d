package service

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"firebase.google.com/go/v4/messaging"

	"github.com/shinyyama/musclecat-chat/internal/feed"
	"github.com/shinyyama/musclecat-chat/internal/model"
	"github.com/shinyyama/musclecat-chat/internal/repository"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeMessages struct {
	mu   sync.Mutex
	msgs map[string]model.Message
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{msgs: make(map[string]model.Message)}
}

func (f *fakeMessages) all() []model.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Message, 0, len(f.msgs))
	for _, m := range f.msgs {
		out = append(out, m)
	}
	feed.Sort(out)
	return out
}

func (f *fakeMessages) Create(_ context.Context, m *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs[m.ID] = *m
	return nil
}

func (f *fakeMessages) FindByID(_ context.Context, id string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.msgs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

func (f *fakeMessages) Mutate(_ context.Context, id string, fn func(*model.Message) error) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.msgs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if err := fn(&m); err != nil {
		return nil, err
	}
	f.msgs[id] = m
	return &m, nil
}

func (f *fakeMessages) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.msgs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.msgs, id)
	return nil
}

func (f *fakeMessages) Latest(ctx context.Context) (*model.Message, error) {
	all := f.all()
	if len(all) == 0 {
		return nil, repository.ErrNotFound
	}
	return &all[len(all)-1], nil
}

func (f *fakeMessages) MarkReadBy(_ context.Context, uid string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, m := range f.msgs {
		if m.MarkReadBy(uid) {
			f.msgs[id] = m
			n++
		}
	}
	return n, nil
}

func (f *fakeMessages) CountUnread(_ context.Context, uid string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, m := range f.msgs {
		if m.AuthorID != uid && !m.ReadByViewer(uid) {
			n++
		}
	}
	return n, nil
}

func (f *fakeMessages) ReadRange(_ context.Context, olderThan *feed.Cursor, limit int) ([]model.Message, error) {
	all := f.all()
	var out []model.Message
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		if olderThan != nil && !olderThan.Before(all[i]) {
			continue
		}
		out = append(out, all[i])
	}
	return out, nil
}

func (f *fakeMessages) Watch(ctx context.Context, limit int, fn func([]model.Message)) error {
	msgs, _ := f.ReadRange(ctx, nil, limit)
	fn(msgs)
	<-ctx.Done()
	return ctx.Err()
}

type fakeSettings struct {
	mu sync.Mutex
	s  model.BotSettings
}

func newFakeSettings(active bool) *fakeSettings {
	return &fakeSettings{s: model.BotSettings{ID: model.BotSettingsID, Active: active}}
}

func (f *fakeSettings) Get(context.Context) (model.BotSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.s, nil
}

func (f *fakeSettings) SetActive(_ context.Context, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.s.Active = active
	return nil
}

func (f *fakeSettings) TouchOwner(_ context.Context, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.s.Active = false
	f.s.OwnerLastActiveAt = &at
	return nil
}

type fakeResponder struct {
	mu     sync.Mutex
	answer string
	err    error
	asked  []string
}

func (f *fakeResponder) Reply(_ context.Context, q string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append(f.asked, q)
	return f.answer, f.err
}

func (f *fakeResponder) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.asked)
}

type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string]string
	deleted []string
	failPut error
}

func newFakeBlobs() *fakeBlobs { return &fakeBlobs{objects: make(map[string]string)} }

func (f *fakeBlobs) Upload(_ context.Context, objectPath, contentType string, r io.Reader) (string, error) {
	if f.failPut != nil {
		return "", f.failPut
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	url := "https://firebasestorage.googleapis.com/v0/b/test/o/" + strings.ReplaceAll(objectPath, "/", "%2F")
	f.objects[url] = contentType + ":" + string(data)
	return url, nil
}

func (f *fakeBlobs) DeleteByURL(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, url)
	delete(f.objects, url)
	return nil
}

func (f *fakeBlobs) deletedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

type fakeEmoticons struct {
	mu   sync.Mutex
	list map[string]model.Emoticon
	next int
}

func newFakeEmoticons(es ...model.Emoticon) *fakeEmoticons {
	f := &fakeEmoticons{list: make(map[string]model.Emoticon)}
	for _, e := range es {
		f.list[e.ID] = e
	}
	return f
}

func (f *fakeEmoticons) List(context.Context) ([]model.Emoticon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Emoticon, 0, len(f.list))
	for _, e := range f.list {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (f *fakeEmoticons) Create(_ context.Context, e *model.Emoticon) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	e.ID = "emo-" + string(rune('a'+f.next-1))
	f.list[e.ID] = *e
	return nil
}

func (f *fakeEmoticons) FindByID(_ context.Context, id string) (*model.Emoticon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.list[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

func (f *fakeEmoticons) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.list[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.list, id)
	return nil
}

func (f *fakeEmoticons) Reorder(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		if _, ok := f.list[id]; !ok {
			return repository.ErrNotFound
		}
	}
	for i, id := range ids {
		e := f.list[id]
		e.Order = i
		f.list[id] = e
	}
	return nil
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]model.UserProfile
}

func newFakeUsers(ps ...model.UserProfile) *fakeUsers {
	f := &fakeUsers{users: make(map[string]model.UserProfile)}
	for _, p := range ps {
		f.users[p.UID] = p
	}
	return f
}

func (f *fakeUsers) FindByUID(_ context.Context, uid string) (*model.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.users[uid]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*model.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.users {
		if p.Email == email {
			p := p
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) Upsert(_ context.Context, p *model.UserProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if old, ok := f.users[p.UID]; ok {
		p.FCMToken = old.FCMToken
	}
	f.users[p.UID] = *p
	return nil
}

func (f *fakeUsers) SetFCMToken(_ context.Context, uid, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.users[uid]
	if !ok {
		return repository.ErrNotFound
	}
	p.FCMToken = token
	f.users[uid] = p
	return nil
}

func (f *fakeUsers) List(context.Context) ([]model.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.UserProfile, 0, len(f.users))
	for _, p := range f.users {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []*messaging.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, m *messaging.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, m)
	return "projects/p/messages/1", nil
}

type fakeNotifications struct {
	mu   sync.Mutex
	list []model.Notification
}

func (f *fakeNotifications) Create(_ context.Context, n *model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n.ID = uint64(len(f.list) + 1)
	f.list = append(f.list, *n)
	return nil
}

func (f *fakeNotifications) ListByUser(_ context.Context, uid string, unreadOnly bool, limit int) ([]model.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Notification
	for i := len(f.list) - 1; i >= 0 && len(out) < limit; i-- {
		n := f.list[i]
		if n.UserUID != uid || (unreadOnly && n.ReadAt != nil) {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeNotifications) MarkAllRead(_ context.Context, uid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := t0
	for i := range f.list {
		if f.list[i].UserUID == uid && f.list[i].ReadAt == nil {
			f.list[i].ReadAt = &now
		}
	}
	return nil
}

func (f *fakeNotifications) CountUnread(_ context.Context, uid string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, x := range f.list {
		if x.UserUID == uid && x.ReadAt == nil {
			n++
		}
	}
	return n, nil
}

var errBoom = errors.New("boom")

var (
	customer = Viewer{UID: "cust-1", DisplayName: "민지", Role: model.RoleCustomer}
	other    = Viewer{UID: "cust-2", DisplayName: "준호", Role: model.RoleCustomer}
	owner    = Viewer{UID: "owner-1", Email: "owner@example.com", DisplayName: "냐사장", Role: model.RoleOwner}
)
