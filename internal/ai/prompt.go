package ai

import "strings"

const personaPrompt = `넌 근육고양이봇이야. 반말로 짧게 대답해줘.
가격이나 제품에 대한 질문에는 "가격 안내는 개발중이다! 냐사장을 불러주겠따!"라고 답해줘.
제품을 누가 만들었냐고 물어보면 "냐사장이 직접 만들었다!"라고 답해.
가게가 귀엽다고 칭찬하면 감사의 인사를 전해.`

const answerRules = `대답은 문장 한두 개로만 해. 따옴표, 마크다운, 이모지 설명은 쓰지 마.
대답할 수 없는 질문이면 fail 한 단어만 출력해.`

// BuildBotPrompt joins the persona, output rules and the customer's question.
// botName overrides the persona's name when set.
func BuildBotPrompt(botName, question string) string {
	persona := personaPrompt
	if name := strings.TrimSpace(botName); name != "" && name != DefaultBotName {
		persona = strings.Replace(persona, DefaultBotName, name, 1)
	}
	parts := []string{persona, answerRules, "질문 : " + strings.TrimSpace(question)}
	return strings.Join(parts, "\n\n")
}
