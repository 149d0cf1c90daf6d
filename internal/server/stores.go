package server

import (
	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/shinyyama/musclecat-chat/internal/realtime"
	"github.com/shinyyama/musclecat-chat/internal/repository"
)

// Stores is the persistence the server runs on. Notifications may be nil
// when the backend keeps no inbox.
type Stores struct {
	Messages      repository.MessageRepository
	Notifications repository.NotificationRepository
	Emoticons     repository.EmoticonRepository
	Settings      repository.SettingsRepository
	Users         repository.UserRepository
	Typing        repository.TypingRepository
}

// NewMySQLStores builds gorm-backed stores. db may be nil; the connection is
// injected later through Server.SetDB.
func NewMySQLStores(db *gorm.DB, notifier realtime.Notifier, typing repository.TypingRepository, logger *zap.Logger) Stores {
	return Stores{
		Messages:      repository.NewMessageRepository(db, notifier, logger),
		Notifications: repository.NewNotificationRepository(db),
		Emoticons:     repository.NewEmoticonRepository(db),
		Settings:      repository.NewSettingsRepository(db),
		Users:         repository.NewUserRepository(db),
		Typing:        typing,
	}
}

// NewFirestoreStores keeps data in the collections the web client reads.
func NewFirestoreStores(client *firestore.Client, typing repository.TypingRepository, logger *zap.Logger) Stores {
	return Stores{
		Messages:  repository.NewFirestoreMessageRepository(client, logger),
		Emoticons: repository.NewFirestoreEmoticonRepository(client),
		Settings:  repository.NewFirestoreSettingsRepository(client),
		Users:     repository.NewFirestoreUserRepository(client),
		Typing:    typing,
	}
}

func (s Stores) setters() []repository.DBSetter {
	var out []repository.DBSetter
	for _, r := range []interface{}{s.Messages, s.Notifications, s.Emoticons, s.Settings, s.Users} {
		if setter, ok := r.(repository.DBSetter); ok {
			out = append(out, setter)
		}
	}
	return out
}
