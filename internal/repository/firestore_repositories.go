package repository

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/shinyyama/musclecat-chat/internal/model"
)

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// settings/bot {isActive} and settings/ownerActivity {lastMessageTimestamp}
type firestoreSettingsRepository struct {
	client *firestore.Client
}

func NewFirestoreSettingsRepository(client *firestore.Client) SettingsRepository {
	return &firestoreSettingsRepository{client: client}
}

func (r *firestoreSettingsRepository) botRef() *firestore.DocumentRef {
	return r.client.Collection("settings").Doc("bot")
}

func (r *firestoreSettingsRepository) ownerRef() *firestore.DocumentRef {
	return r.client.Collection("settings").Doc("ownerActivity")
}

func (r *firestoreSettingsRepository) Get(ctx context.Context) (model.BotSettings, error) {
	s := model.BotSettings{ID: model.BotSettingsID, Active: true}
	snap, err := r.botRef().Get(ctx)
	switch {
	case err == nil:
		if v, err := snap.DataAt("isActive"); err == nil {
			if b, ok := v.(bool); ok {
				s.Active = b
			}
		}
	case !isNotFound(err):
		return model.BotSettings{}, err
	}

	snap, err = r.ownerRef().Get(ctx)
	switch {
	case err == nil:
		if v, err := snap.DataAt("lastMessageTimestamp"); err == nil {
			if ts, ok := v.(time.Time); ok {
				s.OwnerLastActiveAt = &ts
			}
		}
	case !isNotFound(err):
		return model.BotSettings{}, err
	}
	return s, nil
}

func (r *firestoreSettingsRepository) SetActive(ctx context.Context, active bool) error {
	_, err := r.botRef().Set(ctx, map[string]interface{}{"isActive": active}, firestore.MergeAll)
	return err
}

func (r *firestoreSettingsRepository) TouchOwner(ctx context.Context, at time.Time) error {
	bw := r.client.BulkWriter(ctx)
	botJob, err := bw.Set(r.botRef(), map[string]interface{}{"isActive": false}, firestore.MergeAll)
	if err != nil {
		bw.End()
		return err
	}
	ownerJob, err := bw.Set(r.ownerRef(), map[string]interface{}{"lastMessageTimestamp": at}, firestore.MergeAll)
	if err != nil {
		bw.End()
		return err
	}
	bw.End()
	_, errBot := botJob.Results()
	_, errOwner := ownerJob.Results()
	return errors.Join(errBot, errOwner)
}

type firestoreUserRepository struct {
	client *firestore.Client
}

func NewFirestoreUserRepository(client *firestore.Client) UserRepository {
	return &firestoreUserRepository{client: client}
}

func (r *firestoreUserRepository) coll() *firestore.CollectionRef {
	return r.client.Collection("users")
}

func userFromSnapshot(snap *firestore.DocumentSnapshot) (*model.UserProfile, error) {
	var p model.UserProfile
	if err := snap.DataTo(&p); err != nil {
		return nil, err
	}
	p.UID = snap.Ref.ID
	return &p, nil
}

func (r *firestoreUserRepository) FindByUID(ctx context.Context, uid string) (*model.UserProfile, error) {
	snap, err := r.coll().Doc(uid).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return userFromSnapshot(snap)
}

func (r *firestoreUserRepository) FindByEmail(ctx context.Context, email string) (*model.UserProfile, error) {
	iter := r.coll().Where("email", "==", email).Limit(1).Documents(ctx)
	defer iter.Stop()
	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return userFromSnapshot(snap)
}

func (r *firestoreUserRepository) Upsert(ctx context.Context, p *model.UserProfile) error {
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	_, err := r.coll().Doc(p.UID).Set(ctx, map[string]interface{}{
		"uid":         p.UID,
		"email":       p.Email,
		"displayName": p.DisplayName,
		"photoURL":    p.PhotoURL,
		"updatedAt":   p.UpdatedAt,
	}, firestore.MergeAll)
	return err
}

func (r *firestoreUserRepository) SetFCMToken(ctx context.Context, uid, token string) error {
	_, err := r.coll().Doc(uid).Update(ctx, []firestore.Update{{Path: "fcmToken", Value: token}})
	if isNotFound(err) {
		return ErrNotFound
	}
	return err
}

func (r *firestoreUserRepository) List(ctx context.Context) ([]model.UserProfile, error) {
	iter := r.coll().Documents(ctx)
	defer iter.Stop()
	var out []model.UserProfile
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		p, err := userFromSnapshot(snap)
		if err != nil {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

type firestoreEmoticonRepository struct {
	client *firestore.Client
}

func NewFirestoreEmoticonRepository(client *firestore.Client) EmoticonRepository {
	return &firestoreEmoticonRepository{client: client}
}

func (r *firestoreEmoticonRepository) coll() *firestore.CollectionRef {
	return r.client.Collection("emoticons")
}

func (r *firestoreEmoticonRepository) List(ctx context.Context) ([]model.Emoticon, error) {
	iter := r.coll().OrderBy("order", firestore.Asc).Documents(ctx)
	defer iter.Stop()
	var out []model.Emoticon
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		var e model.Emoticon
		if err := snap.DataTo(&e); err != nil {
			continue
		}
		e.ID = snap.Ref.ID
		out = append(out, e)
	}
	return out, nil
}

func (r *firestoreEmoticonRepository) Create(ctx context.Context, e *model.Emoticon) error {
	ref := r.coll().NewDoc()
	if e.ID != "" {
		ref = r.coll().Doc(e.ID)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if _, err := ref.Create(ctx, e); err != nil {
		return err
	}
	e.ID = ref.ID
	return nil
}

func (r *firestoreEmoticonRepository) FindByID(ctx context.Context, id string) (*model.Emoticon, error) {
	snap, err := r.coll().Doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var e model.Emoticon
	if err := snap.DataTo(&e); err != nil {
		return nil, err
	}
	e.ID = snap.Ref.ID
	return &e, nil
}

func (r *firestoreEmoticonRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.coll().Doc(id).Delete(ctx, firestore.Exists); err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (r *firestoreEmoticonRepository) Reorder(ctx context.Context, ids []string) error {
	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for i, id := range ids {
			if err := tx.Update(r.coll().Doc(id), []firestore.Update{{Path: "order", Value: i}}); err != nil {
				return err
			}
		}
		return nil
	})
}
