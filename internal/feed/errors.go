package feed

import "errors"

var (
	ErrFetchFailed      = errors.New("feed: fetch older page failed")
	ErrTailDisconnected = errors.New("feed: live tail disconnected")
	ErrBadCursor        = errors.New("feed: malformed cursor")
	ErrInvalidPageSize  = errors.New("feed: page size must be positive")
	ErrClosed           = errors.New("feed: closed")
	ErrStarted          = errors.New("feed: already started")
)
