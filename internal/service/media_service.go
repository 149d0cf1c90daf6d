package service

import (
	"context"
	"errors"
	"io"
	"mime"
	"strings"

	"github.com/shinyyama/musclecat-chat/internal/blob"
)

var ErrStorageDisabled = errors.New("storage is not configured")

// MediaService stores images sent in chat.
type MediaService interface {
	UploadPhoto(ctx context.Context, v Viewer, contentType string, r io.Reader) (string, error)
}

type mediaService struct {
	blobs blob.Store
}

func NewMediaService(blobs blob.Store) MediaService {
	return &mediaService{blobs: blobs}
}

func (s *mediaService) UploadPhoto(ctx context.Context, v Viewer, contentType string, r io.Reader) (string, error) {
	if !v.valid() {
		return "", ErrForbidden
	}
	return uploadImage(ctx, s.blobs, blob.PrefixPhotos, contentType, r)
}

func uploadImage(ctx context.Context, blobs blob.Store, prefix, contentType string, r io.Reader) (string, error) {
	if blobs == nil {
		return "", ErrStorageDisabled
	}
	ext, err := imageExt(contentType)
	if err != nil {
		return "", err
	}
	return blobs.Upload(ctx, blob.NewObjectPath(prefix, ext), contentType, r)
}

func imageExt(contentType string) (string, error) {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mt, "image/") {
		return "", invalid("an image is required")
	}
	switch mt {
	case "image/jpeg":
		return ".jpg", nil
	case "image/png":
		return ".png", nil
	case "image/gif":
		return ".gif", nil
	case "image/webp":
		return ".webp", nil
	}
	return "." + strings.TrimPrefix(mt, "image/"), nil
}
