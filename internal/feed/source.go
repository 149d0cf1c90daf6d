package feed

import (
	"context"

	"github.com/shinyyama/musclecat-chat/internal/model"
)

// Source is the ordered message store the feed reads from.
//
// ReadRange returns up to limit committed messages strictly older than
// olderThan (all messages when nil), newest first. It returns fewer than limit
// only when the store holds no more; a record that cannot be decoded must
// still take its place in the result, since the pager treats a short read as
// the end of history.
//
// Watch calls fn with the newest limit messages once it is connected and again
// after every change to that window, one call at a time. It blocks until ctx is
// done, in which case it returns ctx.Err(), or until the upstream connection is
// lost, in which case it returns a non-nil error.
type Source interface {
	ReadRange(ctx context.Context, olderThan *Cursor, limit int) ([]model.Message, error)
	Watch(ctx context.Context, limit int, fn func([]model.Message)) error
}
