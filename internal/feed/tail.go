package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shinyyama/musclecat-chat/internal/model"
)

type Status int

const (
	StatusConnecting Status = iota
	StatusLive
	StatusReconnecting
	// StatusStale is reported once MaxFailures consecutive attempts failed.
	// Retrying continues; the next snapshot moves back to StatusLive.
	StatusStale
)

func (s Status) String() string {
	switch s {
	case StatusLive:
		return "live"
	case StatusReconnecting:
		return "reconnecting"
	case StatusStale:
		return "stale"
	default:
		return "connecting"
	}
}

// ParseStatus is the inverse of Status.String. Unknown names map to
// StatusConnecting.
func ParseStatus(s string) Status {
	switch s {
	case "live":
		return StatusLive
	case "reconnecting":
		return StatusReconnecting
	case "stale":
		return StatusStale
	default:
		return StatusConnecting
	}
}

type TailOptions struct {
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	MaxFailures int
	Logger      *zap.Logger
	// OnStatus observes connection state changes. err is ErrTailDisconnected
	// wrapped around the last failure when status is StatusStale.
	OnStatus func(status Status, err error)
}

// UpdateFunc receives the newest window ascending and the cursor of its oldest
// message (nil when the window is empty).
type UpdateFunc func(window []model.Message, oldest *Cursor)

// Unsubscribe stops a subscription. After it returns no further callbacks
// run. It must not be called from inside the subscription's own callbacks.
type Unsubscribe func()

type Tail struct {
	src  Source
	opts TailOptions
}

func NewTail(src Source, opts TailOptions) *Tail {
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = defaultBaseBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = 5
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Tail{src: src, opts: opts}
}

// Subscribe keeps the newest windowSize messages flowing to onUpdate until
// ctx is done or the returned Unsubscribe is called.
func (t *Tail) Subscribe(ctx context.Context, windowSize int, onUpdate UpdateFunc) Unsubscribe {
	ctx, cancel := context.WithCancel(ctx)
	s := &subscription{
		tail:     t,
		size:     windowSize,
		onUpdate: onUpdate,
	}
	go s.run(ctx)
	var once sync.Once
	return func() {
		once.Do(func() {
			s.stop()
			cancel()
		})
	}
}

type subscription struct {
	tail     *Tail
	size     int
	onUpdate UpdateFunc

	mu       sync.Mutex
	stopped  bool
	status   Status
	failures int
}

func (s *subscription) run(ctx context.Context) {
	log := s.tail.opts.Logger
	for {
		err := s.tail.src.Watch(ctx, s.size, s.deliver)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = ErrTailDisconnected
		}
		attempt := s.fail(err)
		wait := JitteredDelay(s.tail.opts.BaseBackoff, s.tail.opts.MaxBackoff, attempt)
		log.Warn("tail watch dropped",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *subscription) deliver(msgs []model.Message) {
	window := committedUnique(msgs)
	if s.size > 0 && len(window) > s.size {
		window = window[len(window)-s.size:]
	}
	var oldest *Cursor
	if len(window) > 0 {
		oldest = CursorOf(window[0])
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.failures = 0
	s.setStatusLocked(StatusLive, nil)
	s.onUpdate(window, oldest)
}

func (s *subscription) fail(err error) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	if s.stopped {
		return s.failures
	}
	if s.failures >= s.tail.opts.MaxFailures {
		s.setStatusLocked(StatusStale, joinDisconnected(err))
	} else {
		s.setStatusLocked(StatusReconnecting, err)
	}
	return s.failures
}

func (s *subscription) setStatusLocked(st Status, err error) {
	if st == s.status {
		return
	}
	s.status = st
	if s.tail.opts.OnStatus != nil {
		s.tail.opts.OnStatus(st, err)
	}
}

func (s *subscription) stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

func joinDisconnected(err error) error {
	if errors.Is(err, ErrTailDisconnected) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTailDisconnected, err)
}
