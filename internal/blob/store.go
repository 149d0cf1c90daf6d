package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

const (
	PrefixPhotos    = "photos"
	PrefixEmoticons = "emoticons"

	downloadHost = "firebasestorage.googleapis.com"
	publicHost   = "storage.googleapis.com"
)

var (
	ErrNotStorageURL = errors.New("not a storage download url")
	ErrOtherBucket   = errors.New("object belongs to another bucket")
)

// Store keeps uploaded chat images.
type Store interface {
	// Upload writes data under objectPath and returns a download URL.
	Upload(ctx context.Context, objectPath, contentType string, data io.Reader) (string, error)
	// DeleteByURL removes the object a download URL points at. Missing objects are not an error.
	DeleteByURL(ctx context.Context, downloadURL string) error
}

type gcsStore struct {
	client *storage.Client
	bucket string
}

func NewGCSStore(client *storage.Client, bucket string) Store {
	return &gcsStore{client: client, bucket: bucket}
}

// NewObjectPath returns prefix/<uuid><ext>.
func NewObjectPath(prefix, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return path.Join(prefix, uuid.NewString()+strings.ToLower(ext))
}

func (s *gcsStore) Upload(ctx context.Context, objectPath, contentType string, data io.Reader) (string, error) {
	token := uuid.NewString()
	obj := s.client.Bucket(s.bucket).Object(objectPath)
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{
		"firebaseStorageDownloadTokens": token,
	}
	if _, err := io.Copy(w, data); err != nil {
		_ = w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return DownloadURL(s.bucket, objectPath, token), nil
}

func (s *gcsStore) DeleteByURL(ctx context.Context, downloadURL string) error {
	bucket, objectPath, err := ParseDownloadURL(downloadURL)
	if err != nil {
		return err
	}
	if bucket != s.bucket {
		return fmt.Errorf("%w: %s", ErrOtherBucket, bucket)
	}
	err = s.client.Bucket(bucket).Object(objectPath).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return err
}

// DownloadURL builds the tokenised URL web clients load images from.
func DownloadURL(bucket, objectPath, token string) string {
	return fmt.Sprintf("https://%s/v0/b/%s/o/%s?alt=media&token=%s",
		downloadHost, bucket, url.PathEscape(objectPath), token)
}

// ParseDownloadURL extracts bucket and object path from either a Firebase
// download URL (/v0/b/<bucket>/o/<escaped path>) or a public
// storage.googleapis.com/<bucket>/<path> URL.
func ParseDownloadURL(raw string) (string, string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", "", ErrNotStorageURL
	}
	escaped := u.EscapedPath()
	switch u.Host {
	case downloadHost:
		rest, ok := strings.CutPrefix(escaped, "/v0/b/")
		if !ok {
			return "", "", ErrNotStorageURL
		}
		bucket, obj, ok := strings.Cut(rest, "/o/")
		if !ok || bucket == "" || obj == "" {
			return "", "", ErrNotStorageURL
		}
		objectPath, err := url.PathUnescape(obj)
		if err != nil {
			return "", "", ErrNotStorageURL
		}
		return bucket, objectPath, nil
	case publicHost:
		bucket, obj, ok := strings.Cut(strings.TrimPrefix(escaped, "/"), "/")
		if !ok || bucket == "" || obj == "" {
			return "", "", ErrNotStorageURL
		}
		objectPath, err := url.PathUnescape(obj)
		if err != nil {
			return "", "", ErrNotStorageURL
		}
		return bucket, objectPath, nil
	}
	return "", "", ErrNotStorageURL
}
