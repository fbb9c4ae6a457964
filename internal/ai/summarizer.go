package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/chatwarden/warden/internal/ai/client"
	"github.com/chatwarden/warden/internal/common/utils"
	"github.com/chatwarden/warden/internal/setup/config"
	"github.com/openai/openai-go"
	"go.uber.org/zap"
)

// SummarizerSystemPrompt instructs the model to condense one message.
const SummarizerSystemPrompt = `You summarize one chat message for a moderation archive.
Reply with a single sentence, at most 25 words, describing what the message says or asks.
Do not judge the message. Do not add commentary.`

// Summarizer condenses event text into one-line summaries for the durable
// archive. Summaries make audit review possible without rereading raw chat.
type Summarizer struct {
	client *client.AIClient
	model  string
	logger *zap.Logger
}

// NewSummarizer creates a summarizer using the classifier chat model.
func NewSummarizer(aiClient *client.AIClient, cfg *config.Classifier, logger *zap.Logger) *Summarizer {
	return &Summarizer{
		client: aiClient,
		model:  cfg.Model,
		logger: logger.Named("ai_summarizer"),
	}
}

// Summarize returns a one-line summary of the text.
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SummarizerSystemPrompt),
			openai.UserMessage(text),
		},
		Model:               s.model,
		Temperature:         openai.Float(0.0),
		MaxCompletionTokens: openai.Int(128),
	}

	resp, err := utils.WithRetry(ctx, func() (*openai.ChatCompletion, error) {
		return s.client.ChatCompletion(ctx, params)
	}, utils.GetAIRetryOptions())
	if err != nil {
		return "", fmt.Errorf("summarize request failed: %w", err)
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
