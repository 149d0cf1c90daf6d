package feed

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/shinyyama/musclecat-chat/internal/model"
)

const (
	DefaultPageSize    = 30
	DefaultWindowSize  = 30
	DefaultLoadTimeout = 30 * time.Second
)

type Options struct {
	PageSize   int
	WindowSize int
	// LoadTimeout bounds one shared LoadOlder fetch.
	LoadTimeout time.Duration
	Tail        TailOptions
	Logger      *zap.Logger
}

// View is a consistent snapshot handed to OnChange listeners.
type View struct {
	Messages []model.Message
	HasMore  bool
	Loading  bool
	// Status is the combined state of the local tail and, when reported,
	// the upstream one. Stale mirrors Status == StatusStale.
	Status  Status
	Stale   bool
	LoadErr error
}

type pendingEntry struct {
	clientID string
	msg      model.Message
}

// Feed merges a live tail window with pages of older history and local
// pending sends into one ordered, id-unique list.
type Feed struct {
	pager *Pager
	tail  *Tail
	opts  Options
	log   *zap.Logger
	group singleflight.Group

	mu        sync.Mutex
	tailMsgs  []model.Message
	history   map[string]model.Message
	oldest    *Cursor
	exhausted bool
	pending   []pendingEntry
	loading   bool
	loadErr   error
	local     Status
	upstream  Status
	// evicted holds ids kept after leaving a full tail window that no
	// history page has confirmed yet.
	evicted map[string]Cursor
	started   bool
	closed    bool
	unsub     Unsubscribe
	listeners []func(View)

	life       context.Context
	cancelLife context.CancelFunc
	notify     chan struct{}
	quit       chan struct{}
}

func NewFeed(src Source, opts Options) *Feed {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.WindowSize <= 0 {
		opts.WindowSize = DefaultWindowSize
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = DefaultLoadTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Tail.Logger == nil {
		opts.Tail.Logger = opts.Logger
	}
	life, cancel := context.WithCancel(context.Background())
	f := &Feed{
		pager:      NewPager(src),
		opts:       opts,
		log:        opts.Logger,
		history:    make(map[string]model.Message),
		evicted:    make(map[string]Cursor),
		local:      StatusConnecting,
		upstream:   StatusLive,
		life:       life,
		cancelLife: cancel,
		notify:     make(chan struct{}, 1),
		quit:       make(chan struct{}),
	}
	tailOpts := opts.Tail
	userStatus := tailOpts.OnStatus
	tailOpts.OnStatus = func(st Status, err error) {
		f.onStatus(st, err)
		if userStatus != nil {
			userStatus(st, err)
		}
	}
	f.tail = NewTail(src, tailOpts)
	go f.notifyLoop()
	return f
}

// Start subscribes to the live tail. It may be called once.
func (f *Feed) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	if f.started {
		f.mu.Unlock()
		return ErrStarted
	}
	f.started = true
	f.mu.Unlock()

	unsub := f.tail.Subscribe(ctx, f.opts.WindowSize, f.applyTail)

	f.mu.Lock()
	closed := f.closed
	if !closed {
		f.unsub = unsub
	}
	f.mu.Unlock()
	if closed {
		unsub()
		return ErrClosed
	}
	return nil
}

// Close stops the tail and drops every result that arrives afterwards.
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	unsub := f.unsub
	f.unsub = nil
	f.listeners = nil
	f.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	f.cancelLife()
	close(f.quit)
}

// OnChange registers fn to receive a View after every state change.
// Calls are serialized and coalesced; fn may call back into the Feed.
func (f *Feed) OnChange(fn func(View)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.listeners = append(f.listeners, fn)
}

func (f *Feed) Visible() []model.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visibleLocked()
}

func (f *Feed) HasMore() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.exhausted
}

func (f *Feed) Stale() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusLocked() == StatusStale
}

func (f *Feed) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusLocked()
}

// SetUpstreamStatus records the state of a tail further upstream, such as
// the server-side tail behind a websocket. It only shows while the local
// tail is live.
func (f *Feed) SetUpstreamStatus(st Status) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	before := f.statusLocked()
	f.upstream = st
	after := f.statusLocked()
	f.mu.Unlock()
	if before != after {
		f.changed()
	}
}

func (f *Feed) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.viewLocked()
}

// LoadOlder fetches the page below the oldest loaded message. Concurrent
// calls share one fetch, which runs on the Feed's own lifetime bounded by
// Options.LoadTimeout; a caller whose ctx ends gets ctx.Err() while the
// fetch carries on for the others. It is a no-op once history is exhausted.
// On failure the loaded messages are left as they were and the error is
// returned.
func (f *Feed) LoadOlder(ctx context.Context) error {
	f.mu.Lock()
	closed, exhausted := f.closed, f.exhausted && len(f.evicted) == 0
	f.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if exhausted {
		return nil
	}
	ch := f.group.DoChan("older", func() (any, error) {
		fctx, cancel := context.WithTimeout(f.life, f.opts.LoadTimeout)
		defer cancel()
		return nil, f.loadOlder(fctx)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Feed) loadOlder(ctx context.Context) error {
	f.mu.Lock()
	if f.closed || (f.exhausted && len(f.evicted) == 0) {
		f.mu.Unlock()
		return nil
	}
	before, verifying := f.verifyStartLocked()
	if !verifying && f.oldest != nil {
		c := *f.oldest
		before = &c
	}
	size := f.opts.PageSize
	if verifying {
		// room for the unconfirmed ids plus a page of new history
		size += min(len(f.evicted), 3*f.opts.PageSize)
	}
	f.loading = true
	f.loadErr = nil
	f.mu.Unlock()
	f.changed()

	page, err := f.pager.FetchOlderPage(ctx, before, size)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.loading = false
	if err != nil {
		f.loadErr = err
		f.mu.Unlock()
		f.log.Warn("load older failed", zap.Error(err))
		f.changed()
		return err
	}

	inTail := make(map[string]struct{}, len(f.tailMsgs))
	for _, m := range f.tailMsgs {
		inTail[m.ID] = struct{}{}
	}
	if verifying {
		f.dropUnconfirmedLocked(before, page)
	}
	for _, m := range page.Messages {
		if _, ok := inTail[m.ID]; ok {
			continue
		}
		f.history[m.ID] = m
		delete(f.evicted, m.ID)
		f.settlePendingLocked(m)
	}
	if page.Next != nil && (f.oldest == nil || page.Next.Older(*f.oldest)) {
		c := *page.Next
		f.oldest = &c
	}
	if page.Exhausted {
		f.exhausted = true
	}
	f.mu.Unlock()
	f.changed()
	return nil
}

// verifyStartLocked returns the cursor to page from when evicted ids are
// waiting for confirmation: the oldest loaded message newer than the newest
// of them, or nil (the newest end) when none is loaded.
func (f *Feed) verifyStartLocked() (*Cursor, bool) {
	if len(f.evicted) == 0 {
		return nil, false
	}
	var newest *Cursor
	for _, c := range f.evicted {
		if newest == nil || newest.Older(c) {
			newest = &c
		}
	}
	var start *Cursor
	consider := func(m model.Message) {
		c := CursorOf(m)
		if c == nil || !newest.Older(*c) {
			return
		}
		if start == nil || c.Older(*start) {
			start = c
		}
	}
	for _, m := range f.tailMsgs {
		consider(m)
	}
	for _, m := range f.history {
		consider(m)
	}
	return start, true
}

// dropUnconfirmedLocked removes loaded history that falls inside the range
// page covered but is missing from it, so deletions that happened while a
// message was leaving the tail window do not linger.
func (f *Feed) dropUnconfirmedLocked(start *Cursor, page Page) {
	inPage := make(map[string]struct{}, len(page.Messages))
	for _, m := range page.Messages {
		inPage[m.ID] = struct{}{}
	}
	covered := func(c Cursor) bool {
		if start != nil && !c.Older(*start) {
			return false
		}
		if page.Exhausted {
			return true
		}
		return page.Next != nil && !c.Older(*page.Next)
	}
	for id, m := range f.history {
		c := CursorOf(m)
		if c == nil || !covered(*c) {
			continue
		}
		if _, ok := inPage[id]; !ok {
			delete(f.history, id)
			delete(f.evicted, id)
		}
	}
	for id, c := range f.evicted {
		if covered(c) {
			delete(f.evicted, id)
		}
	}
}

// AddPending shows msg at the end of the feed until a committed record with
// the same clientID arrives.
func (f *Feed) AddPending(clientID string, msg model.Message) {
	if clientID == "" {
		return
	}
	msg.ClientID = clientID
	msg.Timestamp = nil
	msg.ID = "pending:" + clientID

	f.mu.Lock()
	if f.closed || f.committedClientIDLocked(clientID) {
		f.mu.Unlock()
		return
	}
	for _, p := range f.pending {
		if p.clientID == clientID {
			f.mu.Unlock()
			return
		}
	}
	f.pending = append(f.pending, pendingEntry{clientID: clientID, msg: msg})
	f.mu.Unlock()
	f.changed()
}

// DropPending removes a pending entry, typically after its send failed.
func (f *Feed) DropPending(clientID string) {
	f.mu.Lock()
	n := len(f.pending)
	f.removePendingLocked(clientID)
	changed := n != len(f.pending)
	f.mu.Unlock()
	if changed {
		f.changed()
	}
}

// ReplyPreview looks up the target of a reply among loaded messages. The
// second result is false when the target is not loaded or was deleted.
func (f *Feed) ReplyPreview(id string) (model.Message, bool) {
	if id == "" {
		return model.Message{}, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.tailMsgs {
		if m.ID == id {
			return m, true
		}
	}
	if m, ok := f.history[id]; ok {
		return m, true
	}
	for _, p := range f.pending {
		if p.msg.ID == id {
			return p.msg, true
		}
	}
	return model.Message{}, false
}

func (f *Feed) applyTail(window []model.Message, oldest *Cursor) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}

	present := make(map[string]struct{}, len(window))
	for _, m := range window {
		present[m.ID] = struct{}{}
	}

	full := len(window) >= f.opts.WindowSize
	for _, prev := range f.tailMsgs {
		if _, ok := present[prev.ID]; ok {
			continue
		}
		if full && oldest != nil && oldest.Before(prev) {
			// pushed out of the window by newer messages, unless it was
			// deleted at the same time; the next LoadOlder checks
			f.history[prev.ID] = prev
			if c := CursorOf(prev); c != nil {
				f.evicted[prev.ID] = *c
			}
			continue
		}
		delete(f.history, prev.ID)
		delete(f.evicted, prev.ID)
	}
	for _, m := range window {
		delete(f.history, m.ID)
		delete(f.evicted, m.ID)
		f.settlePendingLocked(m)
	}

	first := f.tailMsgs == nil
	f.tailMsgs = window
	if f.tailMsgs == nil {
		f.tailMsgs = []model.Message{}
	}
	if f.oldest == nil && len(f.history) == 0 && oldest != nil {
		c := *oldest
		f.oldest = &c
	}
	if first && !full && len(f.history) == 0 {
		f.exhausted = true
	}
	f.local = StatusLive
	f.mu.Unlock()
	f.changed()
}

func (f *Feed) onStatus(st Status, err error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	before := f.statusLocked()
	f.local = st
	after := f.statusLocked()
	f.mu.Unlock()
	if st == StatusStale {
		f.log.Warn("live tail stale", zap.Error(err))
	}
	if before != after {
		f.changed()
	}
}

func (f *Feed) statusLocked() Status {
	if f.local != StatusLive {
		return f.local
	}
	switch f.upstream {
	case StatusReconnecting, StatusStale:
		return f.upstream
	}
	return StatusLive
}

func (f *Feed) settlePendingLocked(m model.Message) {
	if m.ClientID == "" {
		return
	}
	f.removePendingLocked(m.ClientID)
}

func (f *Feed) removePendingLocked(clientID string) {
	kept := f.pending[:0]
	for _, p := range f.pending {
		if p.clientID != clientID {
			kept = append(kept, p)
		}
	}
	f.pending = kept
}

func (f *Feed) committedClientIDLocked(clientID string) bool {
	for _, m := range f.tailMsgs {
		if m.ClientID == clientID {
			return true
		}
	}
	for _, m := range f.history {
		if m.ClientID == clientID {
			return true
		}
	}
	return false
}

func (f *Feed) visibleLocked() []model.Message {
	out := make([]model.Message, 0, len(f.history)+len(f.tailMsgs)+len(f.pending))
	inTail := make(map[string]struct{}, len(f.tailMsgs))
	for _, m := range f.tailMsgs {
		inTail[m.ID] = struct{}{}
	}
	for id, m := range f.history {
		if _, ok := inTail[id]; ok {
			continue
		}
		out = append(out, m)
	}
	out = append(out, f.tailMsgs...)
	Sort(out)
	for _, p := range f.pending {
		out = append(out, p.msg)
	}
	return out
}

func (f *Feed) viewLocked() View {
	st := f.statusLocked()
	return View{
		Messages: f.visibleLocked(),
		HasMore:  !f.exhausted,
		Loading:  f.loading,
		Status:   st,
		Stale:    st == StatusStale,
		LoadErr:  f.loadErr,
	}
}

func (f *Feed) changed() {
	select {
	case f.notify <- struct{}{}:
	default:
	}
}

func (f *Feed) notifyLoop() {
	for {
		select {
		case <-f.quit:
			return
		case <-f.notify:
		}
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			return
		}
		listeners := append([]func(View){}, f.listeners...)
		v := f.viewLocked()
		f.mu.Unlock()
		for _, fn := range listeners {
			fn(v)
		}
	}
}
