package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shinyyama/musclecat-chat/internal/model"
)

type UserRepository interface {
	FindByUID(ctx context.Context, uid string) (*model.UserProfile, error)
	FindByEmail(ctx context.Context, email string) (*model.UserProfile, error)
	// Upsert creates the profile or overwrites its display name and photo.
	Upsert(ctx context.Context, p *model.UserProfile) error
	SetFCMToken(ctx context.Context, uid, token string) error
	List(ctx context.Context) ([]model.UserProfile, error)
}

type userRepository struct {
	dbHolder
}

func NewUserRepository(db *gorm.DB) UserRepository {
	r := &userRepository{}
	if db != nil {
		r.SetDB(db)
	}
	return r
}

func (r *userRepository) FindByUID(ctx context.Context, uid string) (*model.UserProfile, error) {
	db, err := r.get()
	if err != nil {
		return nil, err
	}
	var p model.UserProfile
	if err := db.WithContext(ctx).Where("uid = ?", uid).First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*model.UserProfile, error) {
	db, err := r.get()
	if err != nil {
		return nil, err
	}
	var p model.UserProfile
	if err := db.WithContext(ctx).Where("email = ?", email).First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *userRepository) Upsert(ctx context.Context, p *model.UserProfile) error {
	db, err := r.get()
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "uid"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "display_name", "photo_url", "updated_at"}),
	}).Create(p).Error
}

func (r *userRepository) SetFCMToken(ctx context.Context, uid, token string) error {
	db, err := r.get()
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Model(&model.UserProfile{}).Where("uid = ?", uid).Update("fcm_token", token).Error
}

func (r *userRepository) List(ctx context.Context) ([]model.UserProfile, error) {
	db, err := r.get()
	if err != nil {
		return nil, err
	}
	var list []model.UserProfile
	if err := db.WithContext(ctx).Order("created_at ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
