package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/shinyyama/musclecat-chat/internal/model"
)

type EmoticonRepository interface {
	List(ctx context.Context) ([]model.Emoticon, error)
	Create(ctx context.Context, e *model.Emoticon) error
	FindByID(ctx context.Context, id string) (*model.Emoticon, error)
	Delete(ctx context.Context, id string) error
	// Reorder sets each emoticon's order to its index in ids.
	Reorder(ctx context.Context, ids []string) error
}

type emoticonRepository struct {
	dbHolder
}

func NewEmoticonRepository(db *gorm.DB) EmoticonRepository {
	r := &emoticonRepository{}
	if db != nil {
		r.SetDB(db)
	}
	return r
}

func (r *emoticonRepository) List(ctx context.Context) ([]model.Emoticon, error) {
	db, err := r.get()
	if err != nil {
		return nil, err
	}
	var list []model.Emoticon
	if err := db.WithContext(ctx).Order("sort_order ASC").Order("created_at ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *emoticonRepository) Create(ctx context.Context, e *model.Emoticon) error {
	db, err := r.get()
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Create(e).Error
}

func (r *emoticonRepository) FindByID(ctx context.Context, id string) (*model.Emoticon, error) {
	db, err := r.get()
	if err != nil {
		return nil, err
	}
	var e model.Emoticon
	if err := db.WithContext(ctx).Where("id = ?", id).First(&e).Error; err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

func (r *emoticonRepository) Delete(ctx context.Context, id string) error {
	db, err := r.get()
	if err != nil {
		return err
	}
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&model.Emoticon{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *emoticonRepository) Reorder(ctx context.Context, ids []string) error {
	db, err := r.get()
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, id := range ids {
			if err := tx.Model(&model.Emoticon{}).Where("id = ?", id).Update("sort_order", i).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
