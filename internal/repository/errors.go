package repository

import (
	"errors"
	"sync/atomic"

	"gorm.io/gorm"
)

var (
	ErrDBNotReady = errors.New("database not initialized")
	ErrNotFound   = errors.New("record not found")
)

// DBSetter is implemented by the SQL repositories so the connection can be
// injected after the HTTP server is already listening.
type DBSetter interface {
	SetDB(db *gorm.DB)
}

// dbHolder lets a repository be built before the connection exists; the
// server injects it later through SetDB.
type dbHolder struct {
	p atomic.Pointer[gorm.DB]
}

func (h *dbHolder) SetDB(db *gorm.DB) {
	h.p.Store(db)
}

func (h *dbHolder) get() (*gorm.DB, error) {
	db := h.p.Load()
	if db == nil {
		return nil, ErrDBNotReady
	}
	return db, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
