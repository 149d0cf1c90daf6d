package tui

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/shinyyama/musclecat-chat/internal/feed"
	"github.com/shinyyama/musclecat-chat/internal/model"
)

var (
	statusColor   = lipgloss.Color("241")
	metaColor     = lipgloss.Color("242")
	ownerColor    = lipgloss.Color("205")
	botColor      = lipgloss.Color("81")
	customerColor = lipgloss.Color("249")
	reactionColor = lipgloss.Color("220")

	statusStyle   = lipgloss.NewStyle().Foreground(statusColor)
	metaStyle     = lipgloss.NewStyle().Foreground(metaColor)
	pendingStyle  = lipgloss.NewStyle().Foreground(metaColor).Italic(true)
	reactionStyle = lipgloss.NewStyle().Foreground(reactionColor)
	dividerStyle  = lipgloss.NewStyle().Foreground(metaColor).Align(lipgloss.Center)
)

const previewRunes = 40

// ReplyLookup resolves reply targets among loaded messages.
type ReplyLookup interface {
	ReplyPreview(id string) (model.Message, bool)
}

func nameStyle(r model.Role) lipgloss.Style {
	switch r {
	case model.RoleOwner:
		return lipgloss.NewStyle().Foreground(ownerColor).Bold(true)
	case model.RoleBot:
		return lipgloss.NewStyle().Foreground(botColor).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(customerColor).Bold(true)
	}
}

func renderMessages(v feed.View, replies ReplyLookup, self string, width int) string {
	var b strings.Builder
	top := "↑ 이전 메시지"
	if !v.HasMore {
		top = "대화의 시작"
	}
	b.WriteString(dividerStyle.Width(width).Render(top))
	b.WriteString("\n")
	body := lipgloss.NewStyle().Width(width)
	for _, m := range v.Messages {
		b.WriteString(header(m, self))
		b.WriteString("\n")
		if m.ReplyToID != "" {
			b.WriteString(metaStyle.Render("  ↳ " + replyLine(replies, m.ReplyToID)))
			b.WriteString("\n")
		}
		b.WriteString(body.Render(content(m)))
		b.WriteString("\n")
		if r := reactionLine(m.Reactions); r != "" {
			b.WriteString(reactionStyle.Render(r))
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func header(m model.Message, self string) string {
	name := m.SenderName
	if name == "" {
		name = string(m.AuthorRole)
	}
	if m.AuthorID != "" && m.AuthorID == self {
		name += " (나)"
	}
	out := nameStyle(m.AuthorRole).Render(name)
	switch {
	case m.Timestamp == nil:
		out += " " + pendingStyle.Render("보내는 중…")
	default:
		out += " " + metaStyle.Render(m.Timestamp.Local().Format("01/02 15:04"))
	}
	if m.EditedAt != nil {
		out += " " + metaStyle.Render("(수정됨)")
	}
	return out
}

func content(m model.Message) string {
	switch m.Kind {
	case model.KindPhoto:
		return "[사진] " + m.ImageURL
	case model.KindEmoticon:
		return "[이모티콘] " + m.ImageURL
	}
	return m.Text
}

func replyLine(replies ReplyLookup, id string) string {
	if replies == nil {
		return "삭제된 메시지"
	}
	target, ok := replies.ReplyPreview(id)
	if !ok {
		return "삭제된 메시지"
	}
	text := content(target)
	if utf8.RuneCountInString(text) > previewRunes {
		text = string([]rune(text)[:previewRunes]) + "…"
	}
	return target.SenderName + ": " + text
}

// reactionLine groups reactions by emoji in first-seen order.
func reactionLine(rs []model.Reaction) string {
	if len(rs) == 0 {
		return ""
	}
	counts := make(map[string]int, len(rs))
	var order []string
	for _, r := range rs {
		if counts[r.Emoji] == 0 {
			order = append(order, r.Emoji)
		}
		counts[r.Emoji]++
	}
	parts := make([]string, 0, len(order))
	for _, e := range order {
		parts = append(parts, e+" "+strconv.Itoa(counts[e]))
	}
	return "  " + strings.Join(parts, "  ")
}
