package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/shinyyama/musclecat-chat/internal/config"
	"github.com/shinyyama/musclecat-chat/internal/db"
	"github.com/shinyyama/musclecat-chat/internal/model"
)

type seedLine struct {
	Role  model.Role
	Name  string
	Kind  model.Kind
	Text  string
	Image string
	// ReplyTo is the 1-based position of an earlier line; zero means none.
	ReplyTo int
	React   string
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
}

func run() error {
	ctx := context.Background()
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Backend != config.BackendMySQL {
		return fmt.Errorf("seed only supports the mysql backend, got %q", cfg.Backend)
	}
	gdb, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	if err := db.Migrate(gdb); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	canSeed, err := shouldSeed(ctx, gdb)
	if err != nil {
		return err
	}
	if !canSeed {
		log.Printf("messages already exist; skipping seed (set FORCE_SEED=true to override)")
		return nil
	}

	msgs := buildMessages(seedScript(cfg.BotName), time.Now().UTC().Add(-2*time.Hour))
	emoticons := buildEmoticons()

	err = gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`DELETE FROM messages`).Error; err != nil {
			return fmt.Errorf("clear messages: %w", err)
		}
		if err := tx.Exec(`DELETE FROM emoticons`).Error; err != nil {
			return fmt.Errorf("clear emoticons: %w", err)
		}
		if err := tx.Create(&msgs).Error; err != nil {
			return fmt.Errorf("insert messages: %w", err)
		}
		if err := tx.Create(&emoticons).Error; err != nil {
			return fmt.Errorf("insert emoticons: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Printf("seeded %d messages and %d emoticons", len(msgs), len(emoticons))
	return nil
}

func seedScript(botName string) []seedLine {
	return []seedLine{
		{Role: model.RoleCustomer, Name: "손님", Kind: model.KindText, Text: "안녕하세요! 오늘 영업하시나요?"},
		{Role: model.RoleBot, Name: botName, Kind: model.KindText, Text: "안녕하세요! 네, 오늘 정상 영업합니다 💪"},
		{Role: model.RoleCustomer, Name: "손님", Kind: model.KindText, Text: "PT 상담 받고 싶은데 예약해야 하나요?", React: "👍"},
		{Role: model.RoleOwner, Name: "사장님", Kind: model.KindText, Text: "예약 없이 오셔도 괜찮아요. 저녁 7시 이후가 한산합니다.", ReplyTo: 3},
		{Role: model.RoleCustomer, Name: "손님", Kind: model.KindPhoto, Image: "https://picsum.photos/seed/musclecat-gym/600/600"},
		{Role: model.RoleOwner, Name: "사장님", Kind: model.KindEmoticon, Image: "https://picsum.photos/seed/musclecat-emoticon-1/200/200", React: "❤️"},
		{Role: model.RoleCustomer, Name: "손님", Kind: model.KindText, Text: "감사합니다! 이따 뵐게요"},
	}
}

// buildMessages stamps the script one minute apart starting at start.
func buildMessages(script []seedLine, start time.Time) []model.Message {
	msgs := make([]model.Message, 0, len(script))
	for i, l := range script {
		ts := start.Add(time.Duration(i) * time.Minute).Truncate(time.Millisecond)
		m := model.Message{
			ID:         uuid.NewString(),
			Timestamp:  &ts,
			AuthorID:   authorID(l.Role),
			AuthorRole: l.Role,
			SenderName: l.Name,
			Kind:       l.Kind,
			Text:       strings.TrimSpace(l.Text),
			ImageURL:   l.Image,
			Reactions:  []model.Reaction{},
			ReadBy:     []string{},
		}
		if l.ReplyTo > 0 && l.ReplyTo <= i {
			m.ReplyToID = msgs[l.ReplyTo-1].ID
		}
		if l.React != "" {
			m.Reactions = append(m.Reactions, model.Reaction{Emoji: l.React, UserID: authorID(model.RoleOwner)})
		}
		msgs = append(msgs, m)
	}
	return msgs
}

func authorID(r model.Role) string {
	switch r {
	case model.RoleOwner:
		return "seed-owner"
	case model.RoleBot:
		return "bot-01"
	}
	return "seed-customer"
}

func buildEmoticons() []model.Emoticon {
	out := make([]model.Emoticon, 0, 6)
	for i := 0; i < 6; i++ {
		out = append(out, model.Emoticon{
			ID:    uuid.NewString(),
			URL:   picsumURL("emoticon", i+1),
			Order: i,
		})
	}
	return out
}

func shouldSeed(ctx context.Context, gdb *gorm.DB) (bool, error) {
	var cnt int64
	if err := gdb.WithContext(ctx).Model(&model.Message{}).Count(&cnt).Error; err != nil {
		return false, fmt.Errorf("count messages: %w", err)
	}
	if cnt == 0 {
		return true, nil
	}
	force := os.Getenv("FORCE_SEED")
	return strings.EqualFold(force, "true"), nil
}

func picsumURL(slug string, k int) string {
	return fmt.Sprintf("https://picsum.photos/seed/musclecat-%s-%d/200/200", slug, k)
}
