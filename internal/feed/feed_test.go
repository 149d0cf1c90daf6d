package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinyyama/musclecat-chat/internal/model"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func testOptions(window, page int) Options {
	return Options{
		PageSize:   page,
		WindowSize: window,
		Tail: TailOptions{
			BaseBackoff: time.Millisecond,
			MaxBackoff:  4 * time.Millisecond,
			MaxFailures: 2,
		},
	}
}

func startFeed(t *testing.T, src Source, opts Options) *Feed {
	t.Helper()
	f := NewFeed(src, opts)
	t.Cleanup(f.Close)
	require.NoError(t, f.Start(context.Background()))
	return f
}

func visibleIDs(f *Feed) []string {
	return ids(f.Visible())
}

func waitVisible(t *testing.T, f *Feed, want []string) {
	t.Helper()
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(want, visibleIDs(f))
	}, waitFor, tick, "visible never became %v, last %v", want, visibleIDs(f))
}

func assertUniqueOrdered(t *testing.T, msgs []model.Message) {
	t.Helper()
	seen := map[string]bool{}
	for i, m := range msgs {
		require.False(t, seen[m.ID], "duplicate id %s", m.ID)
		seen[m.ID] = true
		if i > 0 && !msgs[i-1].Pending() && !m.Pending() {
			require.True(t, Less(msgs[i-1], m), "%s before %s", msgs[i-1].ID, m.ID)
		}
		if i > 0 && msgs[i-1].Pending() {
			require.True(t, m.Pending(), "committed %s after pending", m.ID)
		}
	}
}

func TestInitialLoadShowsNewestWindow(t *testing.T) {
	all := seq(100)
	f := startFeed(t, newFakeSource(all...), testOptions(30, 30))

	waitVisible(t, f, ids(all[70:]))
	assert.True(t, f.HasMore())
}

func TestScrollingBackUntilExhausted(t *testing.T) {
	all := seq(100)
	src := newFakeSource(all...)
	f := startFeed(t, src, testOptions(30, 30))
	waitVisible(t, f, ids(all[70:]))
	ctx := context.Background()

	require.NoError(t, f.LoadOlder(ctx))
	assert.Equal(t, ids(all[40:]), visibleIDs(f))
	assert.True(t, f.HasMore())

	require.NoError(t, f.LoadOlder(ctx))
	require.NoError(t, f.LoadOlder(ctx))
	assert.Equal(t, ids(all), visibleIDs(f))
	assert.False(t, f.HasMore())

	reads := src.readCount()
	require.NoError(t, f.LoadOlder(ctx))
	assert.Equal(t, reads, src.readCount(), "exhausted feed must not fetch")
	assert.False(t, f.HasMore())
	assertUniqueOrdered(t, f.Visible())
}

func TestSmallHistoryIsExhaustedImmediately(t *testing.T) {
	f := startFeed(t, newFakeSource(seq(5)...), testOptions(30, 30))
	waitVisible(t, f, ids(seq(5)))
	assert.False(t, f.HasMore())
}

func TestNewMessageArrivesThroughTail(t *testing.T) {
	all := seq(40)
	src := newFakeSource(all...)
	f := startFeed(t, src, testOptions(30, 30))
	waitVisible(t, f, ids(all[10:]))
	require.NoError(t, f.LoadOlder(context.Background()))

	src.put(msgAt("m041", 41))
	want := append(ids(all), "m041")
	waitVisible(t, f, want)
	assertUniqueOrdered(t, f.Visible())
}

func TestEvictedTailMessagesStayVisible(t *testing.T) {
	all := seq(10)
	src := newFakeSource(all...)
	f := startFeed(t, src, testOptions(5, 5))
	waitVisible(t, f, ids(all[5:]))

	src.put(msgAt("m011", 11), msgAt("m012", 12))
	waitVisible(t, f, []string{"m006", "m007", "m008", "m009", "m010", "m011", "m012"})

	require.NoError(t, f.LoadOlder(context.Background()))
	assert.Equal(t, append(ids(all), "m011", "m012"), visibleIDs(f))
}

func TestTailDeleteRemovesMessage(t *testing.T) {
	all := seq(10)
	src := newFakeSource(all...)
	f := startFeed(t, src, testOptions(5, 5))
	waitVisible(t, f, ids(all[5:]))

	src.remove("m008")
	waitVisible(t, f, []string{"m005", "m006", "m007", "m009", "m010"})
	_, ok := f.ReplyPreview("m008")
	assert.False(t, ok)
}

func TestTailCopyWinsOverHistory(t *testing.T) {
	all := seq(6)
	src := newFakeSource(all...)
	f := startFeed(t, src, testOptions(3, 5))
	waitVisible(t, f, ids(all[3:]))
	require.NoError(t, f.LoadOlder(context.Background()))

	edited := msgAt("m005", 5)
	edited.Text = "edited"
	edited.Reactions = []model.Reaction{{Emoji: "👍", UserID: "u1"}}
	src.put(edited)

	assert.Eventually(t, func() bool {
		m, ok := f.ReplyPreview("m005")
		return ok && m.Text == "edited"
	}, waitFor, tick)
	assertUniqueOrdered(t, f.Visible())
	assert.Len(t, f.Visible(), 6)
}

func TestLoadOlderIsSingleFlight(t *testing.T) {
	all := seq(50)
	src := newFakeSource(all...)
	f := startFeed(t, src, testOptions(30, 30))
	waitVisible(t, f, ids(all[20:]))

	gate := make(chan struct{})
	src.setGate(gate)
	before := src.readCount()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.LoadOlder(context.Background()))
		}()
	}
	assert.Eventually(t, func() bool { return src.readCount() == before+1 }, waitFor, tick)
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, before+1, src.readCount())
	assert.Equal(t, ids(all), visibleIDs(f))
}

func TestLoadOlderFailureKeepsState(t *testing.T) {
	all := seq(50)
	src := newFakeSource(all...)
	f := startFeed(t, src, testOptions(20, 20))
	waitVisible(t, f, ids(all[30:]))

	src.setReadErr(errors.New("timeout"))
	err := f.LoadOlder(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.Equal(t, ids(all[30:]), visibleIDs(f))
	assert.True(t, f.HasMore())
	assert.Error(t, f.View().LoadErr)

	src.setReadErr(nil)
	require.NoError(t, f.LoadOlder(context.Background()))
	assert.Equal(t, ids(all[10:]), visibleIDs(f))
	assert.NoError(t, f.View().LoadErr)
}

func TestPendingReconciledByClientID(t *testing.T) {
	src := newFakeSource(seq(3)...)
	f := startFeed(t, src, testOptions(10, 10))
	waitVisible(t, f, ids(seq(3)))

	f.AddPending("c-1", model.Message{Kind: model.KindText, Text: "hello"})
	vis := f.Visible()
	require.Len(t, vis, 4)
	assert.True(t, vis[3].Pending())
	assert.Equal(t, "c-1", vis[3].ClientID)

	committed := msgAt("m004", 4)
	committed.ClientID = "c-1"
	src.put(committed)
	waitVisible(t, f, []string{"m001", "m002", "m003", "m004"})

	// a late duplicate add for an already committed send is ignored
	f.AddPending("c-1", model.Message{Kind: model.KindText, Text: "hello"})
	assert.Len(t, f.Visible(), 4)
}

func TestPendingSortsAfterCommittedInSubmissionOrder(t *testing.T) {
	src := newFakeSource(seq(2)...)
	f := startFeed(t, src, testOptions(10, 10))
	waitVisible(t, f, ids(seq(2)))

	f.AddPending("b", model.Message{Kind: model.KindText, Text: "second"})
	f.AddPending("a", model.Message{Kind: model.KindText, Text: "first"})
	src.put(msgAt("m003", 3))
	waitVisible(t, f, []string{"m001", "m002", "m003", "pending:b", "pending:a"})

	f.DropPending("b")
	assert.Equal(t, []string{"m001", "m002", "m003", "pending:a"}, visibleIDs(f))
}

func TestResultsAfterCloseAreDiscarded(t *testing.T) {
	all := seq(40)
	src := newFakeSource(all...)
	f := NewFeed(src, testOptions(10, 10))
	require.NoError(t, f.Start(context.Background()))
	waitVisible(t, f, ids(all[30:]))

	gate := make(chan struct{})
	src.setGate(gate)
	done := make(chan error, 1)
	go func() { done <- f.LoadOlder(context.Background()) }()
	assert.Eventually(t, func() bool { return src.readCount() > 0 }, waitFor, tick)

	f.Close()
	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, ids(all[30:]), visibleIDs(f))

	src.put(msgAt("m041", 41))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, ids(all[30:]), visibleIDs(f))
	assert.ErrorIs(t, f.LoadOlder(context.Background()), ErrClosed)
	assert.Eventually(t, func() bool { return src.watcherCount() == 0 }, waitFor, tick)
}

func TestStaleAfterRepeatedFailuresThenRecovers(t *testing.T) {
	src := newFakeSource(seq(3)...)
	var mu sync.Mutex
	var statuses []Status
	opts := testOptions(10, 10)
	opts.Tail.OnStatus = func(st Status, err error) {
		mu.Lock()
		defer mu.Unlock()
		statuses = append(statuses, st)
		if st == StatusStale {
			assert.ErrorIs(t, err, ErrTailDisconnected)
		}
	}
	f := startFeed(t, src, opts)
	waitVisible(t, f, ids(seq(3)))

	src.breakConnections(3)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, st := range statuses {
			if st == StatusStale {
				return true
			}
		}
		return false
	}, waitFor, tick)

	// loaded messages survive the outage
	assert.Equal(t, ids(seq(3)), visibleIDs(f))

	assert.Eventually(t, func() bool { return !f.Stale() }, waitFor, tick)
	src.put(msgAt("m004", 4))
	waitVisible(t, f, ids(seq(4)))
}

func TestReplyPreview(t *testing.T) {
	src := newFakeSource(seq(3)...)
	f := startFeed(t, src, testOptions(10, 10))
	waitVisible(t, f, ids(seq(3)))

	m, ok := f.ReplyPreview("m002")
	assert.True(t, ok)
	assert.Equal(t, "m m002", m.Text)

	_, ok = f.ReplyPreview("gone")
	assert.False(t, ok)
	_, ok = f.ReplyPreview("")
	assert.False(t, ok)
}

func TestOnChangeReceivesLatestView(t *testing.T) {
	src := newFakeSource(seq(3)...)
	f := NewFeed(src, testOptions(10, 10))
	t.Cleanup(f.Close)

	var mu sync.Mutex
	var last View
	f.OnChange(func(v View) {
		mu.Lock()
		defer mu.Unlock()
		last = v
	})
	require.NoError(t, f.Start(context.Background()))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(last.Messages) == 3 && !last.HasMore
	}, waitFor, tick)
}

func TestStartTwice(t *testing.T) {
	f := startFeed(t, newFakeSource(), testOptions(10, 10))
	assert.ErrorIs(t, f.Start(context.Background()), ErrStarted)
}

func TestMergeIndependentOfArrivalOrder(t *testing.T) {
	all := seq(20)

	// page first, then tail
	srcA := newFakeSource(all...)
	a := NewFeed(srcA, testOptions(10, 15))
	t.Cleanup(a.Close)
	require.NoError(t, a.LoadOlder(context.Background()))
	require.NoError(t, a.Start(context.Background()))

	// tail first, then page
	srcB := newFakeSource(all...)
	b := startFeed(t, srcB, testOptions(10, 15))
	waitVisible(t, b, ids(all[10:]))
	require.NoError(t, b.LoadOlder(context.Background()))

	waitVisible(t, a, ids(all[5:]))
	require.NoError(t, a.LoadOlder(context.Background()))

	assert.Equal(t, ids(all), visibleIDs(a))
	assert.Equal(t, visibleIDs(a), visibleIDs(b))
	assertUniqueOrdered(t, a.Visible())
}

func TestEmptyReactionsReplaceEarlierOnes(t *testing.T) {
	all := seq(7)
	src := newFakeSource(all...)
	f := startFeed(t, src, testOptions(5, 5))
	waitVisible(t, f, ids(all[2:]))

	liked := msgAt("m007", 7)
	liked.Reactions = []model.Reaction{{Emoji: "👍", UserID: "u1"}}
	src.put(liked)
	assert.Eventually(t, func() bool {
		m, ok := f.ReplyPreview("m007")
		return ok && len(m.Reactions) == 1
	}, waitFor, tick)

	src.put(msgAt("m007", 7))
	assert.Eventually(t, func() bool {
		m, ok := f.ReplyPreview("m007")
		return ok && len(m.Reactions) == 0
	}, waitFor, tick)
	vis := f.Visible()
	require.Len(t, vis, 5)
	assert.Empty(t, vis[4].Reactions)
}

func TestDeleteDuringEvictionIsDroppedOnNextLoad(t *testing.T) {
	all := seq(10)
	src := newFakeSource(all...)
	f := startFeed(t, src, testOptions(5, 5))
	waitVisible(t, f, ids(all[5:]))

	// m006 is deleted in the same change that pushes it out of the window
	src.swap("m006", msgAt("m011", 11))
	waitVisible(t, f, []string{"m006", "m007", "m008", "m009", "m010", "m011"})

	require.NoError(t, f.LoadOlder(context.Background()))
	assert.Equal(t, []string{"m001", "m002", "m003", "m004", "m005", "m007", "m008", "m009", "m010", "m011"}, visibleIDs(f))
	assert.False(t, f.HasMore())
	assertUniqueOrdered(t, f.Visible())
}

func TestPendingAlwaysGetsItsOwnID(t *testing.T) {
	src := newFakeSource(seq(3)...)
	f := startFeed(t, src, testOptions(10, 10))
	waitVisible(t, f, ids(seq(3)))

	f.AddPending("c-9", model.Message{ID: "m003", Kind: model.KindText, Text: "again"})
	assert.Equal(t, []string{"m001", "m002", "m003", "pending:c-9"}, visibleIDs(f))
	assertUniqueOrdered(t, f.Visible())
}

func TestCancelledCallerDoesNotFailSharedLoad(t *testing.T) {
	all := seq(40)
	src := newFakeSource(all...)
	f := startFeed(t, src, testOptions(20, 20))
	waitVisible(t, f, ids(all[20:]))

	gate := make(chan struct{})
	src.setGate(gate)
	before := src.readCount()

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() { first <- f.LoadOlder(ctx) }()
	assert.Eventually(t, func() bool { return src.readCount() == before+1 }, waitFor, tick)

	second := make(chan error, 1)
	go func() { second <- f.LoadOlder(context.Background()) }()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)
	close(gate)
	require.NoError(t, <-second)
	assert.Equal(t, ids(all), visibleIDs(f))
	assert.NoError(t, f.View().LoadErr)
}

func TestViewCarriesReconnecting(t *testing.T) {
	src := newFakeSource(seq(3)...)
	opts := testOptions(10, 10)
	opts.Tail.BaseBackoff = 200 * time.Millisecond
	opts.Tail.MaxBackoff = 200 * time.Millisecond
	opts.Tail.MaxFailures = 5
	f := startFeed(t, src, opts)
	waitVisible(t, f, ids(seq(3)))
	assert.Equal(t, StatusLive, f.View().Status)

	src.breakConnections(1)
	assert.Eventually(t, func() bool { return f.View().Status == StatusReconnecting }, waitFor, tick)
	assert.False(t, f.View().Stale)
	assert.Equal(t, ids(seq(3)), visibleIDs(f))

	assert.Eventually(t, func() bool { return f.View().Status == StatusLive }, waitFor, tick)
}

func TestUpstreamStatusShowsWhileLocalIsLive(t *testing.T) {
	src := newFakeSource(seq(2)...)
	f := startFeed(t, src, testOptions(10, 10))
	waitVisible(t, f, ids(seq(2)))

	f.SetUpstreamStatus(StatusStale)
	v := f.View()
	assert.Equal(t, StatusStale, v.Status)
	assert.True(t, v.Stale)

	f.SetUpstreamStatus(StatusReconnecting)
	assert.Equal(t, StatusReconnecting, f.Status())

	f.SetUpstreamStatus(StatusLive)
	assert.Equal(t, StatusLive, f.Status())
	assert.False(t, f.Stale())
}

func TestParseStatus(t *testing.T) {
	for _, st := range []Status{StatusConnecting, StatusLive, StatusReconnecting, StatusStale} {
		assert.Equal(t, st, ParseStatus(st.String()))
	}
	assert.Equal(t, StatusConnecting, ParseStatus("bogus"))
}
