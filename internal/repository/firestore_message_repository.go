package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/shinyyama/musclecat-chat/internal/feed"
	"github.com/shinyyama/musclecat-chat/internal/model"
)

const messagesCollection = "messages"

// Document roles as stored in the "uid" field of a message document.
const (
	docRoleOwner    = "owner"
	docRoleCustomer = "customer"
	docRoleBot      = "bot-01"
)

type fsReaction struct {
	Emoji string `firestore:"emoji"`
	User  string `firestore:"user"`
}

type fsMessage struct {
	Text      string       `firestore:"text,omitempty"`
	ImageURL  string       `firestore:"imageUrl,omitempty"`
	Type      string       `firestore:"type,omitempty"`
	Sender    string       `firestore:"sender"`
	UID       string       `firestore:"uid"`
	AuthUID   string       `firestore:"authUid"`
	ReplyTo   string       `firestore:"replyTo,omitempty"`
	Reactions []fsReaction `firestore:"reactions"`
	ReadBy    []string     `firestore:"readBy"`
	ClientID  string       `firestore:"clientId,omitempty"`
	EditedAt  *time.Time   `firestore:"editedAt,omitempty"`
	Timestamp time.Time    `firestore:"timestamp,serverTimestamp"`
}

func toDocRole(r model.Role) string {
	switch r {
	case model.RoleOwner:
		return docRoleOwner
	case model.RoleBot:
		return docRoleBot
	default:
		return docRoleCustomer
	}
}

func fromDocRole(s string) model.Role {
	switch s {
	case docRoleOwner:
		return model.RoleOwner
	case docRoleBot:
		return model.RoleBot
	default:
		return model.RoleCustomer
	}
}

func toFSMessage(m model.Message) fsMessage {
	doc := fsMessage{
		Text:      m.Text,
		ImageURL:  m.ImageURL,
		Type:      string(m.Kind),
		Sender:    m.SenderName,
		UID:       toDocRole(m.AuthorRole),
		AuthUID:   m.AuthorID,
		ReplyTo:   m.ReplyToID,
		ReadBy:    m.ReadBy,
		ClientID:  m.ClientID,
		EditedAt:  m.EditedAt,
		Reactions: make([]fsReaction, 0, len(m.Reactions)),
	}
	for _, r := range m.Reactions {
		doc.Reactions = append(doc.Reactions, fsReaction{Emoji: r.Emoji, User: r.UserID})
	}
	if doc.ReadBy == nil {
		doc.ReadBy = []string{}
	}
	if m.Timestamp != nil {
		doc.Timestamp = *m.Timestamp
	}
	return doc
}

// fromSnapshot decodes a message document. A document that cannot be
// decoded or repaired still yields a placeholder at its position, returned
// together with the reason.
func fromSnapshot(snap *firestore.DocumentSnapshot) (model.Message, error) {
	var doc fsMessage
	if err := snap.DataTo(&doc); err != nil {
		ts := snap.CreateTime
		if v, derr := snap.DataAt("timestamp"); derr == nil {
			if t, ok := v.(time.Time); ok {
				ts = t
			}
		}
		return model.Placeholder(model.Message{ID: snap.Ref.ID, Timestamp: &ts}), err
	}
	return fromFSMessage(snap.Ref.ID, doc)
}

func fromFSMessage(id string, doc fsMessage) (model.Message, error) {
	m := model.Message{
		ID:         id,
		AuthorID:   doc.AuthUID,
		AuthorRole: fromDocRole(doc.UID),
		SenderName: doc.Sender,
		Kind:       model.Kind(doc.Type),
		Text:       doc.Text,
		ImageURL:   doc.ImageURL,
		ReplyToID:  doc.ReplyTo,
		ReadBy:     doc.ReadBy,
		ClientID:   doc.ClientID,
		EditedAt:   doc.EditedAt,
		Reactions:  make([]model.Reaction, 0, len(doc.Reactions)),
	}
	for _, r := range doc.Reactions {
		m.Reactions = append(m.Reactions, model.Reaction{Emoji: r.Emoji, UserID: r.User})
	}
	if !doc.Timestamp.IsZero() {
		ts := doc.Timestamp
		m.Timestamp = &ts
	}
	return model.NormalizeOrPlaceholder(m)
}

type firestoreMessageRepository struct {
	client *firestore.Client
	log    *zap.Logger
}

// NewFirestoreMessageRepository reads and writes the "messages" collection
// in the layout the web client uses.
func NewFirestoreMessageRepository(client *firestore.Client, logger *zap.Logger) MessageRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &firestoreMessageRepository{client: client, log: logger}
}

func (r *firestoreMessageRepository) coll() *firestore.CollectionRef {
	return r.client.Collection(messagesCollection)
}

func (r *firestoreMessageRepository) Create(ctx context.Context, m *model.Message) error {
	ref := r.coll().NewDoc()
	if m.ID != "" {
		ref = r.coll().Doc(m.ID)
	}
	doc := toFSMessage(*m)
	if _, err := ref.Create(ctx, doc); err != nil {
		return err
	}
	m.ID = ref.ID
	snap, err := ref.Get(ctx)
	if err != nil {
		return err
	}
	stored, err := fromSnapshot(snap)
	if err != nil {
		return err
	}
	*m = stored
	return nil
}

func (r *firestoreMessageRepository) FindByID(ctx context.Context, id string) (*model.Message, error) {
	snap, err := r.coll().Doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	m, err := fromSnapshot(snap)
	if err != nil {
		r.log.Warn("malformed message", zap.String("id", id), zap.Error(err))
	}
	return &m, nil
}

func (r *firestoreMessageRepository) Mutate(ctx context.Context, id string, fn func(*model.Message) error) (*model.Message, error) {
	ref := r.coll().Doc(id)
	var out model.Message
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if isNotFound(err) {
				return ErrNotFound
			}
			return err
		}
		m, err := fromSnapshot(snap)
		if err != nil {
			return err
		}
		if err := fn(&m); err != nil {
			return err
		}
		doc := toFSMessage(m)
		out = m
		return tx.Update(ref, []firestore.Update{
			{Path: "text", Value: doc.Text},
			{Path: "imageUrl", Value: doc.ImageURL},
			{Path: "reactions", Value: doc.Reactions},
			{Path: "readBy", Value: doc.ReadBy},
			{Path: "editedAt", Value: doc.EditedAt},
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *firestoreMessageRepository) Delete(ctx context.Context, id string) error {
	ref := r.coll().Doc(id)
	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (r *firestoreMessageRepository) Latest(ctx context.Context) (*model.Message, error) {
	msgs, err := r.ReadRange(ctx, nil, 1)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, ErrNotFound
	}
	return &msgs[0], nil
}

func (r *firestoreMessageRepository) newestFirst() firestore.Query {
	return r.coll().
		OrderBy("timestamp", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc)
}

func (r *firestoreMessageRepository) ReadRange(ctx context.Context, olderThan *feed.Cursor, limit int) ([]model.Message, error) {
	q := r.newestFirst().Limit(limit)
	if olderThan != nil {
		q = q.StartAfter(olderThan.Timestamp, olderThan.ID)
	}
	iter := q.Documents(ctx)
	defer iter.Stop()
	var out []model.Message
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		m, err := fromSnapshot(snap)
		if err != nil {
			r.log.Warn("malformed message shown as placeholder", zap.String("id", snap.Ref.ID), zap.Error(err))
		}
		out = append(out, m)
	}
	return out, nil
}

// Watch relies on Firestore's own listener; every snapshot carries the full
// window so no diffing is done here.
func (r *firestoreMessageRepository) Watch(ctx context.Context, limit int, fn func([]model.Message)) error {
	it := r.newestFirst().Limit(limit).Snapshots(ctx)
	defer it.Stop()
	for {
		qs, err := it.Next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("firestore listen: %w", err)
		}
		msgs := make([]model.Message, 0, qs.Size)
		for {
			snap, err := qs.Documents.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				return fmt.Errorf("firestore snapshot: %w", err)
			}
			m, err := fromSnapshot(snap)
			if err != nil {
				r.log.Warn("malformed message shown as placeholder", zap.String("id", snap.Ref.ID), zap.Error(err))
			}
			msgs = append(msgs, m)
		}
		fn(msgs)
	}
}

func (r *firestoreMessageRepository) unreadRefs(ctx context.Context, uid string) ([]*firestore.DocumentRef, error) {
	iter := r.coll().Where("authUid", "!=", uid).Documents(ctx)
	defer iter.Stop()
	var refs []*firestore.DocumentRef
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		var doc fsMessage
		if err := snap.DataTo(&doc); err != nil {
			continue
		}
		if containsString(doc.ReadBy, uid) {
			continue
		}
		refs = append(refs, snap.Ref)
	}
	return refs, nil
}

func (r *firestoreMessageRepository) MarkReadBy(ctx context.Context, uid string) (int64, error) {
	refs, err := r.unreadRefs(ctx, uid)
	if err != nil {
		return 0, err
	}
	if len(refs) == 0 {
		return 0, nil
	}
	bw := r.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(refs))
	for _, ref := range refs {
		job, err := bw.Update(ref, []firestore.Update{{Path: "readBy", Value: firestore.ArrayUnion(uid)}})
		if err != nil {
			bw.End()
			return 0, err
		}
		jobs = append(jobs, job)
	}
	bw.End()
	var n int64
	var errs []error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

func (r *firestoreMessageRepository) CountUnread(ctx context.Context, uid string) (int64, error) {
	refs, err := r.unreadRefs(ctx, uid)
	if err != nil {
		return 0, err
	}
	return int64(len(refs)), nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
