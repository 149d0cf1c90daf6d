package service

import (
	"context"
	"strings"
	"time"

	"github.com/shinyyama/musclecat-chat/internal/model"
	"github.com/shinyyama/musclecat-chat/internal/repository"
)

type TypingService interface {
	SetTyping(ctx context.Context, v Viewer, typing bool) error
	// List returns everyone else currently typing.
	List(ctx context.Context, v Viewer) ([]model.TypingStatus, error)
}

type typingService struct {
	repo repository.TypingRepository
	ttl  time.Duration
	now  func() time.Time
}

func NewTypingService(repo repository.TypingRepository, ttl time.Duration, now func() time.Time) TypingService {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &typingService{repo: repo, ttl: ttl, now: now}
}

func (s *typingService) SetTyping(ctx context.Context, v Viewer, typing bool) error {
	if !v.valid() {
		return ErrForbidden
	}
	if !typing {
		return s.repo.Clear(ctx, v.UID)
	}
	name := strings.TrimSpace(v.DisplayName)
	if name == "" {
		name = "손님"
	}
	return s.repo.Set(ctx, model.TypingStatus{
		UID:         v.UID,
		DisplayName: name,
		UpdatedAt:   s.now().UTC(),
	}, s.ttl)
}

func (s *typingService) List(ctx context.Context, v Viewer) ([]model.TypingStatus, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := s.now().Add(-s.ttl)
	out := make([]model.TypingStatus, 0, len(all))
	for _, st := range all {
		if st.UID == v.UID || st.UpdatedAt.Before(cutoff) {
			continue
		}
		out = append(out, st)
	}
	return out, nil
}
