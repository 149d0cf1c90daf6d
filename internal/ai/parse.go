package ai

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxReplyRunes = 500

var (
	ErrNoReply = errors.New("no_reply")

	fencePattern = regexp.MustCompile("(?s)^```[a-zA-Z]*\\n?(.*?)\\n?```$")
	spacePattern = regexp.MustCompile(`[ \t]+`)
	labelPattern = regexp.MustCompile(`^(?:답변|대답|answer)\s*[:：]\s*`)
)

// CleanReply turns raw model output into a chat message. It strips code
// fences, wrapping quotes and answer labels, and returns ErrNoReply when the
// model declined ("fail") or produced nothing.
func CleanReply(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(text); len(m) == 2 {
		text = strings.TrimSpace(m[1])
	}
	text = labelPattern.ReplaceAllString(text, "")
	text = trimQuotes(text)
	text = spacePattern.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	if text == "" || strings.EqualFold(strings.Trim(text, ".! "), "fail") {
		return "", ErrNoReply
	}
	if utf8.RuneCountInString(text) > maxReplyRunes {
		r := []rune(text)
		text = string(r[:maxReplyRunes]) + "..."
	}
	return text, nil
}

func trimQuotes(s string) string {
	pairs := [][2]string{{`"`, `"`}, {"'", "'"}, {"“", "”"}, {"「", "」"}}
	for _, p := range pairs {
		if len(s) >= len(p[0])+len(p[1]) && strings.HasPrefix(s, p[0]) && strings.HasSuffix(s, p[1]) {
			inner := s[len(p[0]) : len(s)-len(p[1])]
			if !strings.Contains(inner, p[0]) {
				return strings.TrimSpace(inner)
			}
		}
	}
	return s
}
