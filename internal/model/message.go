package model

import (
	"errors"
	"strings"
	"time"
)

type Kind string

const (
	KindText     Kind = "text"
	KindPhoto    Kind = "photo"
	KindEmoticon Kind = "emoticon"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleOwner    Role = "owner"
	RoleBot      Role = "bot"
)

var ErrInvalidMessage = errors.New("invalid message")

// Reaction is one user's emoji on a message. A user holds at most one per message.
type Reaction struct {
	Emoji  string `json:"emoji"`
	UserID string `json:"user"`
}

// Message is a chat record. Timestamp is nil while a local send is pending.
type Message struct {
	ID         string     `gorm:"primaryKey;size:64;index:idx_messages_ts_id,priority:2" json:"id"`
	Timestamp  *time.Time `gorm:"column:timestamp;index:idx_messages_ts_id,priority:1" json:"timestamp,omitempty"`
	AuthorID   string     `gorm:"column:author_id;size:128;index" json:"authorId"`
	AuthorRole Role       `gorm:"column:author_role;size:16" json:"authorRole"`
	SenderName string     `gorm:"column:sender_name;size:128" json:"senderDisplayName"`
	Kind       Kind       `gorm:"column:kind;size:16;not null" json:"kind"`
	Text       string     `gorm:"type:text" json:"text,omitempty"`
	ImageURL   string     `gorm:"column:image_url;size:1024" json:"imageUrl,omitempty"`
	ReplyToID  string     `gorm:"column:reply_to_id;size:64" json:"replyToId,omitempty"`
	Reactions  []Reaction `gorm:"column:reactions;type:json;serializer:json" json:"reactions"`
	ReadBy     []string   `gorm:"column:read_by;type:json;serializer:json" json:"readBy"`
	ClientID   string     `gorm:"column:client_id;size:64;index" json:"clientId,omitempty"`
	EditedAt   *time.Time `gorm:"column:edited_at" json:"editedAt,omitempty"`
}

func (Message) TableName() string {
	return "messages"
}

func (m Message) Pending() bool {
	return m.Timestamp == nil
}

// Validate checks the kind-specific required fields.
func (m Message) Validate() error {
	switch m.Kind {
	case KindText:
		if strings.TrimSpace(m.Text) == "" {
			return errors.Join(ErrInvalidMessage, errors.New("text is required"))
		}
	case KindPhoto:
		if strings.TrimSpace(m.ImageURL) == "" {
			return errors.Join(ErrInvalidMessage, errors.New("imageUrl is required for photo"))
		}
	case KindEmoticon:
		if strings.TrimSpace(m.ImageURL) == "" {
			return errors.Join(ErrInvalidMessage, errors.New("imageUrl is required for emoticon"))
		}
		if m.Text != "" {
			return errors.Join(ErrInvalidMessage, errors.New("emoticon cannot carry text"))
		}
	default:
		return errors.Join(ErrInvalidMessage, errors.New("unknown kind"))
	}
	switch m.AuthorRole {
	case RoleCustomer, RoleOwner, RoleBot:
	default:
		return errors.Join(ErrInvalidMessage, errors.New("unknown author role"))
	}
	return nil
}

// Normalize repairs records read from a store so the rest of the code can
// switch on Kind alone. Records written before the kind field existed carried
// the image URL in Text; that shape is converted to a photo here and nowhere else.
func Normalize(m Message) (Message, error) {
	m.Text = strings.TrimSpace(m.Text)
	m.ImageURL = strings.TrimSpace(m.ImageURL)
	if m.Kind == "" {
		switch {
		case m.ImageURL != "":
			m.Kind = KindPhoto
		case looksLikeURL(m.Text):
			m.Kind = KindPhoto
			m.ImageURL = m.Text
			m.Text = ""
		default:
			m.Kind = KindText
		}
	}
	if m.AuthorRole == "" {
		m.AuthorRole = RoleCustomer
	}
	if m.Kind == KindEmoticon {
		m.Text = ""
	}
	if m.Reactions == nil {
		m.Reactions = []Reaction{}
	}
	if m.ReadBy == nil {
		m.ReadBy = []string{}
	}
	if err := m.Validate(); err != nil {
		return m, err
	}
	return m, nil
}

// UnreadableText replaces the body of a stored record that cannot be repaired.
const UnreadableText = "표시할 수 없는 메시지입니다."

// NormalizeOrPlaceholder is Normalize for read paths. A record that cannot be
// repaired comes back as a plain text placeholder that keeps its id, position,
// author and client id, together with the reason, so a listing never loses a
// row to bad data.
func NormalizeOrPlaceholder(m Message) (Message, error) {
	norm, err := Normalize(m)
	if err == nil {
		return norm, nil
	}
	return Placeholder(norm), err
}

// Placeholder turns m into a text message with UnreadableText as its body.
func Placeholder(m Message) Message {
	role := m.AuthorRole
	switch role {
	case RoleCustomer, RoleOwner, RoleBot:
	default:
		role = RoleCustomer
	}
	reactions, readBy := m.Reactions, m.ReadBy
	if reactions == nil {
		reactions = []Reaction{}
	}
	if readBy == nil {
		readBy = []string{}
	}
	return Message{
		ID:         m.ID,
		Timestamp:  m.Timestamp,
		AuthorID:   m.AuthorID,
		AuthorRole: role,
		SenderName: m.SenderName,
		Kind:       KindText,
		Text:       UnreadableText,
		ReplyToID:  m.ReplyToID,
		Reactions:  reactions,
		ReadBy:     readBy,
		ClientID:   m.ClientID,
		EditedAt:   m.EditedAt,
	}
}

func looksLikeURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}

// ToggleReaction applies the reaction rule for userID: the same emoji again
// removes it, a different emoji replaces the user's previous one.
// It reports whether the user holds a reaction afterwards.
func (m *Message) ToggleReaction(userID, emoji string) bool {
	kept := m.Reactions[:0:0]
	removedSame := false
	for _, r := range m.Reactions {
		if r.UserID != userID {
			kept = append(kept, r)
			continue
		}
		if r.Emoji == emoji {
			removedSame = true
		}
	}
	if !removedSame {
		kept = append(kept, Reaction{Emoji: emoji, UserID: userID})
	}
	m.Reactions = kept
	return !removedSame
}

func (m Message) ReadByViewer(uid string) bool {
	for _, r := range m.ReadBy {
		if r == uid {
			return true
		}
	}
	return false
}

// MarkReadBy adds uid to ReadBy and reports whether anything changed.
func (m *Message) MarkReadBy(uid string) bool {
	if uid == "" || m.AuthorID == uid || m.ReadByViewer(uid) {
		return false
	}
	m.ReadBy = append(m.ReadBy, uid)
	return true
}

// Summary is the one-line body used in notifications.
func (m Message) Summary() string {
	switch m.Kind {
	case KindPhoto:
		if m.Text != "" {
			return m.Text
		}
		return "사진을 보냈습니다."
	case KindEmoticon:
		return "이모티콘을 보냈습니다."
	default:
		return m.Text
	}
}
