package repository

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shinyyama/musclecat-chat/internal/feed"
	"github.com/shinyyama/musclecat-chat/internal/model"
	"github.com/shinyyama/musclecat-chat/internal/realtime"
)

// MessageRepository is the chat log. Besides CRUD it serves as the feed
// source: ReadRange pages backwards and Watch streams the newest window.
type MessageRepository interface {
	feed.Source
	Create(ctx context.Context, m *model.Message) error
	FindByID(ctx context.Context, id string) (*model.Message, error)
	// Mutate applies fn to the stored message atomically and saves the result.
	Mutate(ctx context.Context, id string, fn func(*model.Message) error) (*model.Message, error)
	Delete(ctx context.Context, id string) error
	Latest(ctx context.Context) (*model.Message, error)
	MarkReadBy(ctx context.Context, uid string) (int64, error)
	CountUnread(ctx context.Context, uid string) (int64, error)
}

type messageRepository struct {
	dbHolder
	notifier realtime.Notifier
	log      *zap.Logger
}

func NewMessageRepository(db *gorm.DB, notifier realtime.Notifier, logger *zap.Logger) MessageRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &messageRepository{notifier: notifier, log: logger}
	if db != nil {
		r.SetDB(db)
	}
	return r
}

func (r *messageRepository) Create(ctx context.Context, m *model.Message) error {
	db, err := r.get()
	if err != nil {
		return err
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	r.changed(ctx)
	return nil
}

func (r *messageRepository) FindByID(ctx context.Context, id string) (*model.Message, error) {
	db, err := r.get()
	if err != nil {
		return nil, err
	}
	var m model.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	out, err := model.NormalizeOrPlaceholder(m)
	if err != nil {
		r.log.Warn("malformed message", zap.String("id", m.ID), zap.Error(err))
	}
	return &out, nil
}

func (r *messageRepository) Mutate(ctx context.Context, id string, fn func(*model.Message) error) (*model.Message, error) {
	db, err := r.get()
	if err != nil {
		return nil, err
	}
	var out model.Message
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m model.Message
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&m).Error; err != nil {
			return notFound(err)
		}
		norm, err := model.Normalize(m)
		if err != nil {
			return err
		}
		if err := fn(&norm); err != nil {
			return err
		}
		if err := tx.Model(&norm).
			Select("text", "image_url", "reactions", "read_by", "edited_at").
			Updates(&norm).Error; err != nil {
			return err
		}
		out = norm
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.changed(ctx)
	return &out, nil
}

func (r *messageRepository) Delete(ctx context.Context, id string) error {
	db, err := r.get()
	if err != nil {
		return err
	}
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&model.Message{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	r.changed(ctx)
	return nil
}

func (r *messageRepository) Latest(ctx context.Context) (*model.Message, error) {
	msgs, err := r.ReadRange(ctx, nil, 1)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, ErrNotFound
	}
	return &msgs[0], nil
}

func (r *messageRepository) ReadRange(ctx context.Context, olderThan *feed.Cursor, limit int) ([]model.Message, error) {
	db, err := r.get()
	if err != nil {
		return nil, err
	}
	q := db.WithContext(ctx).Model(&model.Message{}).Where("timestamp IS NOT NULL")
	if olderThan != nil {
		q = q.Where("timestamp < ? OR (timestamp = ? AND id < ?)", olderThan.Timestamp, olderThan.Timestamp, olderThan.ID)
	}
	var rows []model.Message
	if err := q.Order("timestamp DESC").Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return normalizeAll(rows, r.log), nil
}

func (r *messageRepository) Watch(ctx context.Context, limit int, fn func([]model.Message)) error {
	signals, cancel, err := r.notifier.Subscribe(ctx, realtime.TopicMessages)
	if err != nil {
		return err
	}
	defer cancel()

	push := func() error {
		msgs, err := r.ReadRange(ctx, nil, limit)
		if err != nil {
			return fmt.Errorf("read tail window: %w", err)
		}
		fn(msgs)
		return nil
	}
	if err := push(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-signals:
			if !ok {
				return realtime.ErrClosed
			}
			if err := push(); err != nil {
				return err
			}
		}
	}
}

func (r *messageRepository) MarkReadBy(ctx context.Context, uid string) (int64, error) {
	db, err := r.get()
	if err != nil {
		return 0, err
	}
	res := db.WithContext(ctx).Exec(
		"UPDATE messages SET read_by = JSON_ARRAY_APPEND(COALESCE(read_by, JSON_ARRAY()), '$', ?) "+
			"WHERE author_id <> ? AND NOT JSON_CONTAINS(COALESCE(read_by, JSON_ARRAY()), JSON_QUOTE(?))",
		uid, uid, uid,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		r.changed(ctx)
	}
	return res.RowsAffected, nil
}

func (r *messageRepository) CountUnread(ctx context.Context, uid string) (int64, error) {
	db, err := r.get()
	if err != nil {
		return 0, err
	}
	var cnt int64
	if err := db.WithContext(ctx).Model(&model.Message{}).
		Where("author_id <> ? AND NOT JSON_CONTAINS(COALESCE(read_by, JSON_ARRAY()), JSON_QUOTE(?))", uid, uid).
		Count(&cnt).Error; err != nil {
		return 0, err
	}
	return cnt, nil
}

func (r *messageRepository) changed(ctx context.Context) {
	if r.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := r.notifier.Publish(ctx, realtime.TopicMessages); err != nil {
		r.log.Warn("publish change failed", zap.Error(err))
	}
}

// normalizeAll keeps one output row per stored row; paging relies on the count.
func normalizeAll(rows []model.Message, log *zap.Logger) []model.Message {
	out := make([]model.Message, 0, len(rows))
	for _, m := range rows {
		norm, err := model.NormalizeOrPlaceholder(m)
		if err != nil {
			log.Warn("malformed message shown as placeholder", zap.String("id", m.ID), zap.Error(err))
		}
		out = append(out, norm)
	}
	return out
}
