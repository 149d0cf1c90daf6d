package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	DefaultBotName = "근육고양이봇"
	defaultModel   = "gemini-2.5-flash"
)

// Responder produces the bot's answer to a customer question.
type Responder interface {
	Reply(ctx context.Context, question string) (string, error)
}

type GeminiResponder struct {
	client  *genai.Client
	model   string
	botName string
	log     *zap.Logger
}

func NewGeminiResponder(ctx context.Context, apiKey, model, botName string, logger *zap.Logger) (*GeminiResponder, error) {
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is not set")
	}
	if model == "" {
		model = defaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiResponder{client: client, model: model, botName: botName, log: logger}, nil
}

func (r *GeminiResponder) Reply(ctx context.Context, question string) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(BuildBotPrompt(r.botName, question))}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	temp := float32(0.7)
	maxTokens := int32(256)
	config := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: maxTokens,
	}

	start := time.Now()
	res, err := r.client.Models.GenerateContent(ctx, r.model, contents, config)
	if err != nil {
		r.log.Warn("gemini generate failed", zap.String("model", r.model), zap.Error(err))
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	raw := res.Text()
	r.log.Debug("gemini reply",
		zap.String("model", r.model),
		zap.Int64("gen_ms", time.Since(start).Milliseconds()),
		zap.Int("len", len(raw)),
	)
	return CleanReply(raw)
}
