package service

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/shinyyama/musclecat-chat/internal/blob"
	"github.com/shinyyama/musclecat-chat/internal/model"
	"github.com/shinyyama/musclecat-chat/internal/repository"
)

type EmoticonService interface {
	List(ctx context.Context) ([]model.Emoticon, error)
	Add(ctx context.Context, v Viewer, contentType string, r io.Reader) (*model.Emoticon, error)
	Delete(ctx context.Context, v Viewer, id string) error
	Reorder(ctx context.Context, v Viewer, ids []string) error
}

type emoticonService struct {
	repo  repository.EmoticonRepository
	blobs blob.Store
	log   *zap.Logger
}

func NewEmoticonService(repo repository.EmoticonRepository, blobs blob.Store, logger *zap.Logger) EmoticonService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &emoticonService{repo: repo, blobs: blobs, log: logger}
}

func (s *emoticonService) List(ctx context.Context) ([]model.Emoticon, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.Emoticon{}
	}
	return list, nil
}

// Add uploads the image and appends it at the end of the picker.
func (s *emoticonService) Add(ctx context.Context, v Viewer, contentType string, r io.Reader) (*model.Emoticon, error) {
	if !v.IsOwner() {
		return nil, ErrForbidden
	}
	existing, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	url, err := uploadImage(ctx, s.blobs, blob.PrefixEmoticons, contentType, r)
	if err != nil {
		return nil, err
	}
	e := &model.Emoticon{URL: url, Order: len(existing)}
	if err := s.repo.Create(ctx, e); err != nil {
		if derr := s.blobs.DeleteByURL(ctx, url); derr != nil {
			s.log.Warn("orphaned emoticon image", zap.String("url", url), zap.Error(derr))
		}
		return nil, err
	}
	return e, nil
}

func (s *emoticonService) Delete(ctx context.Context, v Viewer, id string) error {
	if !v.IsOwner() {
		return ErrForbidden
	}
	e, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return fromRepo(err)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fromRepo(err)
	}
	if s.blobs != nil {
		if err := s.blobs.DeleteByURL(ctx, e.URL); err != nil {
			s.log.Warn("delete emoticon image failed", zap.String("id", id), zap.Error(err))
		}
	}
	return nil
}

func (s *emoticonService) Reorder(ctx context.Context, v Viewer, ids []string) error {
	if !v.IsOwner() {
		return ErrForbidden
	}
	if len(ids) == 0 {
		return invalid("ids are required")
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			return invalid("empty id")
		}
		if _, dup := seen[id]; dup {
			return invalid("duplicate id " + id)
		}
		seen[id] = struct{}{}
	}
	return fromRepo(s.repo.Reorder(ctx, ids))
}
