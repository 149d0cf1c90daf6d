package feed

import (
	"context"
	"fmt"

	"github.com/shinyyama/musclecat-chat/internal/model"
)

// Page is one backward step through history, oldest first.
type Page struct {
	Messages  []model.Message
	Next      *Cursor
	Exhausted bool
}

type Pager struct {
	src Source
}

func NewPager(src Source) *Pager {
	return &Pager{src: src}
}

// FetchOlderPage reads the pageSize messages immediately older than before.
// A nil before starts at the newest end. It never mutates feed state.
func (p *Pager) FetchOlderPage(ctx context.Context, before *Cursor, pageSize int) (Page, error) {
	if pageSize <= 0 {
		return Page{}, ErrInvalidPageSize
	}
	raw, err := p.src.ReadRange(ctx, before, pageSize)
	if err != nil {
		return Page{}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	filtered := raw[:0:0]
	for _, m := range raw {
		if before != nil && !before.Before(m) {
			continue
		}
		filtered = append(filtered, m)
	}
	msgs := committedUnique(filtered)
	if len(msgs) > pageSize {
		msgs = msgs[len(msgs)-pageSize:]
	}

	page := Page{
		Messages:  msgs,
		Next:      before,
		Exhausted: len(raw) < pageSize,
	}
	if len(msgs) > 0 {
		page.Next = CursorOf(msgs[0])
	}
	return page, nil
}
