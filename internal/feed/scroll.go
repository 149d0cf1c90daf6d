package feed

import (
	"sync"

	"github.com/shinyyama/musclecat-chat/internal/model"
)

const DefaultFollowThreshold = 100.0

// ScrollCoordinator keeps the viewport stable across prepends and decides
// when to follow new messages or request older ones. Heights are in the
// host's scroll units.
type ScrollCoordinator struct {
	FollowThreshold float64
	LoadThreshold   float64

	mu        sync.Mutex
	preparing bool
	before    float64
}

func NewScrollCoordinator() *ScrollCoordinator {
	return &ScrollCoordinator{FollowThreshold: DefaultFollowThreshold}
}

// BeginPrepend records the scroll height before older messages are inserted.
func (s *ScrollCoordinator) BeginPrepend(scrollHeight float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preparing = true
	s.before = scrollHeight
}

// EndPrepend returns how far scrollTop must move down so the previously
// visible content stays in place. It is zero without a matching BeginPrepend.
func (s *ScrollCoordinator) EndPrepend(newScrollHeight float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.preparing {
		return 0
	}
	s.preparing = false
	return newScrollHeight - s.before
}

// Preparing reports whether a prepend is in progress. Auto-follow is
// suppressed meanwhile.
func (s *ScrollCoordinator) Preparing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preparing
}

// ShouldFollow must be evaluated against the geometry before the update is
// applied.
func (s *ScrollCoordinator) ShouldFollow(scrollTop, clientHeight, scrollHeight float64) bool {
	if s.Preparing() {
		return false
	}
	threshold := s.FollowThreshold
	if threshold <= 0 {
		threshold = DefaultFollowThreshold
	}
	return scrollHeight-(scrollTop+clientHeight) <= threshold
}

func (s *ScrollCoordinator) ShouldLoadOlder(scrollTop float64) bool {
	return scrollTop <= s.LoadThreshold
}

// AppendedNewer reports whether next gained messages at its newest end
// compared to prev. Prepends of history and in-place edits return false.
func AppendedNewer(prev, next []model.Message) bool {
	if len(next) == 0 {
		return false
	}
	if len(prev) == 0 {
		return true
	}
	a, b := prev[len(prev)-1], next[len(next)-1]
	if a.ID == b.ID {
		return false
	}
	return !Less(b, a)
}
