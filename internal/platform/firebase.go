package platform

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/shinyyama/musclecat-chat/internal/config"
)

// Clients bundles the Google clients the server talks to. Firestore is only
// opened for the firestore backend; Storage only when a bucket is configured.
type Clients struct {
	App       *firebase.App
	Auth      *auth.Client
	Messaging *messaging.Client
	Firestore *firestore.Client
	Storage   *storage.Client
}

func clientOptions(cfg *config.Config) []option.ClientOption {
	if cfg.CredentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(cfg.CredentialsFile)}
}

func NewClients(ctx context.Context, cfg *config.Config) (*Clients, error) {
	if cfg.FirebaseProjectID == "" {
		return nil, errors.New("FIREBASE_PROJECT_ID is not set")
	}
	opts := clientOptions(cfg)
	app, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID:     cfg.FirebaseProjectID,
		StorageBucket: cfg.StorageBucket,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	c := &Clients{App: app}
	if c.Auth, err = app.Auth(ctx); err != nil {
		return nil, fmt.Errorf("firebase auth: %w", err)
	}
	if c.Messaging, err = app.Messaging(ctx); err != nil {
		return nil, fmt.Errorf("firebase messaging: %w", err)
	}
	if cfg.Backend == config.BackendFirestore {
		if c.Firestore, err = app.Firestore(ctx); err != nil {
			return nil, fmt.Errorf("firestore: %w", err)
		}
	}
	if cfg.StorageBucket != "" {
		if c.Storage, err = storage.NewClient(ctx, opts...); err != nil {
			c.Close()
			return nil, fmt.Errorf("storage: %w", err)
		}
	}
	return c, nil
}

func (c *Clients) Close() error {
	var errs []error
	if c.Firestore != nil {
		errs = append(errs, c.Firestore.Close())
	}
	if c.Storage != nil {
		errs = append(errs, c.Storage.Close())
	}
	return errors.Join(errs...)
}
