package feed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shinyyama/musclecat-chat/internal/model"
)

var baseTime = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func msgAt(id string, sec int) model.Message {
	ts := baseTime.Add(time.Duration(sec) * time.Second)
	return model.Message{
		ID:         id,
		Timestamp:  &ts,
		Kind:       model.KindText,
		AuthorRole: model.RoleCustomer,
		Text:       "m " + id,
		Reactions:  []model.Reaction{},
		ReadBy:     []string{},
	}
}

// seq builds messages m001..m<n> one second apart.
func seq(n int) []model.Message {
	out := make([]model.Message, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, msgAt(fmt.Sprintf("m%03d", i), i))
	}
	return out
}

func ids(msgs []model.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

type fakeSource struct {
	mu        sync.Mutex
	msgs      map[string]model.Message
	reads     int
	readErr   error
	readGate  chan struct{}
	failWatch int
	watchers  map[int]chan struct{}
	nextWatch int
	drop      chan struct{}
}

func newFakeSource(msgs ...model.Message) *fakeSource {
	s := &fakeSource{
		msgs:     make(map[string]model.Message),
		watchers: make(map[int]chan struct{}),
		drop:     make(chan struct{}),
	}
	for _, m := range msgs {
		s.msgs[m.ID] = m
	}
	return s
}

func (s *fakeSource) sortedDesc() []model.Message {
	all := make([]model.Message, 0, len(s.msgs))
	for _, m := range s.msgs {
		all = append(all, m)
	}
	sort.Slice(all, func(i, j int) bool { return Less(all[j], all[i]) })
	return all
}

func (s *fakeSource) ReadRange(ctx context.Context, olderThan *Cursor, limit int) ([]model.Message, error) {
	s.mu.Lock()
	s.reads++
	gate := s.readGate
	err := s.readErr
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Message
	for _, m := range s.sortedDesc() {
		if olderThan != nil && !olderThan.Before(m) {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeSource) newest(limit int) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.sortedDesc()
	if len(all) > limit {
		all = all[:limit]
	}
	return all
}

func (s *fakeSource) Watch(ctx context.Context, limit int, fn func([]model.Message)) error {
	s.mu.Lock()
	if s.failWatch > 0 {
		s.failWatch--
		s.mu.Unlock()
		return errors.New("dial refused")
	}
	id := s.nextWatch
	s.nextWatch++
	ch := make(chan struct{}, 1)
	s.watchers[id] = ch
	drop := s.drop
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}()

	fn(s.newest(limit))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-drop:
			return errors.New("connection reset")
		case <-ch:
			fn(s.newest(limit))
		}
	}
}

func (s *fakeSource) signalLocked() {
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *fakeSource) put(msgs ...model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		s.msgs[m.ID] = m
	}
	s.signalLocked()
}

func (s *fakeSource) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.msgs, id)
	s.signalLocked()
}

// swap deletes id and stores msgs as one change.
func (s *fakeSource) swap(id string, msgs ...model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.msgs, id)
	for _, m := range msgs {
		s.msgs[m.ID] = m
	}
	s.signalLocked()
}

// breakConnections drops live watchers and makes the next n dials fail.
func (s *fakeSource) breakConnections(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWatch = n
	close(s.drop)
	s.drop = make(chan struct{})
}

func (s *fakeSource) watcherCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

func (s *fakeSource) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func (s *fakeSource) setReadErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}

func (s *fakeSource) setGate(ch chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readGate = ch
}
