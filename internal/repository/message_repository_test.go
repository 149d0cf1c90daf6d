package repository

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shinyyama/musclecat-chat/internal/feed"
	"github.com/shinyyama/musclecat-chat/internal/model"
)

// rowSource serves stored rows the way the SQL store does: order, limit,
// then normalize.
type rowSource struct {
	rows []model.Message
}

func (s *rowSource) ReadRange(_ context.Context, olderThan *feed.Cursor, limit int) ([]model.Message, error) {
	sorted := append([]model.Message(nil), s.rows...)
	sort.Slice(sorted, func(i, j int) bool { return feed.Less(sorted[j], sorted[i]) })
	var out []model.Message
	for _, m := range sorted {
		if olderThan != nil && !olderThan.Before(m) {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return normalizeAll(out, zap.NewNop()), nil
}

func (s *rowSource) Watch(ctx context.Context, limit int, fn func([]model.Message)) error {
	msgs, err := s.ReadRange(ctx, nil, limit)
	if err != nil {
		return err
	}
	fn(msgs)
	<-ctx.Done()
	return ctx.Err()
}

func storedRows(n int) []model.Message {
	base := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	out := make([]model.Message, 0, n)
	for i := 1; i <= n; i++ {
		ts := base.Add(time.Duration(i) * time.Second)
		out = append(out, model.Message{
			ID:         fmt.Sprintf("m%02d", i),
			Timestamp:  &ts,
			AuthorRole: model.RoleCustomer,
			Kind:       model.KindText,
			Text:       fmt.Sprintf("hello %d", i),
		})
	}
	return out
}

func TestNormalizeAllKeepsEveryRow(t *testing.T) {
	rows := storedRows(3)
	rows[1].Kind = model.Kind("video")

	out := normalizeAll(rows, zap.NewNop())
	require.Len(t, out, 3)
	assert.Equal(t, "m02", out[1].ID)
	assert.Equal(t, model.UnreadableText, out[1].Text)
	assert.Equal(t, "hello 3", out[2].Text)
}

func TestMalformedRowDoesNotEndHistory(t *testing.T) {
	rows := storedRows(20)
	rows[7].Kind = model.Kind("video")
	src := &rowSource{rows: rows}

	page, err := feed.NewPager(src).FetchOlderPage(context.Background(), &feed.Cursor{Timestamp: *rows[10].Timestamp, ID: rows[10].ID}, 5)
	require.NoError(t, err)
	assert.False(t, page.Exhausted)
	assert.Len(t, page.Messages, 5)

	f := feed.NewFeed(src, feed.Options{PageSize: 5, WindowSize: 10})
	t.Cleanup(f.Close)
	require.NoError(t, f.Start(context.Background()))
	assert.Eventually(t, func() bool { return len(f.Visible()) == 10 }, 2*time.Second, 5*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, f.LoadOlder(ctx))
	require.NoError(t, f.LoadOlder(ctx))
	require.NoError(t, f.LoadOlder(ctx))

	vis := f.Visible()
	require.Len(t, vis, 20)
	assert.Equal(t, "m01", vis[0].ID)
	assert.Equal(t, model.UnreadableText, vis[7].Text)
	assert.False(t, f.HasMore())
}
