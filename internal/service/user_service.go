package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/shinyyama/musclecat-chat/internal/model"
	"github.com/shinyyama/musclecat-chat/internal/repository"
)

const maxDisplayNameRunes = 40

type ProfileUpdate struct {
	DisplayName *string `json:"displayName"`
	PhotoURL    *string `json:"photoURL"`
}

type UserService interface {
	// GetOrCreate returns the viewer's profile, creating it from the auth
	// identity on first use.
	GetOrCreate(ctx context.Context, v Viewer) (*model.UserProfile, error)
	Update(ctx context.Context, v Viewer, in ProfileUpdate) (*model.UserProfile, error)
	SaveFCMToken(ctx context.Context, v Viewer, token string) error
	List(ctx context.Context) ([]model.UserProfile, error)
}

type userService struct {
	repo repository.UserRepository
}

func NewUserService(repo repository.UserRepository) UserService {
	return &userService{repo: repo}
}

func (s *userService) GetOrCreate(ctx context.Context, v Viewer) (*model.UserProfile, error) {
	if !v.valid() {
		return nil, ErrForbidden
	}
	p, err := s.repo.FindByUID(ctx, v.UID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	p = &model.UserProfile{
		UID:         v.UID,
		Email:       v.Email,
		DisplayName: v.DisplayName,
		PhotoURL:    v.PhotoURL,
	}
	if err := s.repo.Upsert(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *userService) Update(ctx context.Context, v Viewer, in ProfileUpdate) (*model.UserProfile, error) {
	p, err := s.GetOrCreate(ctx, v)
	if err != nil {
		return nil, err
	}
	if in.DisplayName != nil {
		name := strings.TrimSpace(*in.DisplayName)
		if name == "" || utf8.RuneCountInString(name) > maxDisplayNameRunes {
			return nil, invalid("displayName must be 1-40 characters")
		}
		p.DisplayName = name
	}
	if in.PhotoURL != nil {
		p.PhotoURL = strings.TrimSpace(*in.PhotoURL)
	}
	if err := s.repo.Upsert(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *userService) SaveFCMToken(ctx context.Context, v Viewer, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return invalid("token is required")
	}
	if _, err := s.GetOrCreate(ctx, v); err != nil {
		return err
	}
	return fromRepo(s.repo.SetFCMToken(ctx, v.UID, token))
}

func (s *userService) List(ctx context.Context) ([]model.UserProfile, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.UserProfile{}
	}
	return list, nil
}
