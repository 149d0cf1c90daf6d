package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shinyyama/musclecat-chat/internal/model"
)

// SettingsRepository stores the auto-responder switch. Get returns the
// default (active, no owner activity) when nothing was saved yet.
type SettingsRepository interface {
	Get(ctx context.Context) (model.BotSettings, error)
	SetActive(ctx context.Context, active bool) error
	TouchOwner(ctx context.Context, at time.Time) error
}

type settingsRepository struct {
	dbHolder
}

func NewSettingsRepository(db *gorm.DB) SettingsRepository {
	r := &settingsRepository{}
	if db != nil {
		r.SetDB(db)
	}
	return r
}

func (r *settingsRepository) Get(ctx context.Context) (model.BotSettings, error) {
	db, err := r.get()
	if err != nil {
		return model.BotSettings{}, err
	}
	var s model.BotSettings
	err = db.WithContext(ctx).Where("id = ?", model.BotSettingsID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.BotSettings{ID: model.BotSettingsID, Active: true}, nil
	}
	if err != nil {
		return model.BotSettings{}, err
	}
	return s, nil
}

func (r *settingsRepository) SetActive(ctx context.Context, active bool) error {
	return r.upsert(ctx, model.BotSettings{ID: model.BotSettingsID, Active: active}, "active")
}

// TouchOwner records owner activity and switches the responder off.
func (r *settingsRepository) TouchOwner(ctx context.Context, at time.Time) error {
	return r.upsert(ctx, model.BotSettings{ID: model.BotSettingsID, Active: false, OwnerLastActiveAt: &at},
		"active", "owner_last_active_at")
}

func (r *settingsRepository) upsert(ctx context.Context, s model.BotSettings, columns ...string) error {
	db, err := r.get()
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(append(columns, "updated_at")),
	}).Create(&s).Error
}
