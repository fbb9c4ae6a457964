package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/chatwarden/warden/internal/aggregator"
	"github.com/chatwarden/warden/internal/ai/client"
	"github.com/chatwarden/warden/internal/common/utils"
	"github.com/chatwarden/warden/internal/database/types"
	"github.com/chatwarden/warden/internal/database/types/enum"
	"github.com/chatwarden/warden/internal/reputation"
	"github.com/chatwarden/warden/internal/setup/config"
	"github.com/openai/openai-go"
	"go.uber.org/zap"
)

// verdictResponse is the structured output contract for the classifier model.
type verdictResponse struct {
	Status     string  `json:"status"     jsonschema:"required,enum=clean,enum=spam,description=Whether the message violates the scope rules"`
	Confidence float64 `json:"confidence" jsonschema:"required,minimum=0,maximum=1,description=Confidence in the status"`
	Category   string  `json:"category"   jsonschema:"description=Violation category when status is spam"`
	Reason     string  `json:"reason"     jsonschema:"required,minLength=1,description=One sentence explaining the judgment"`
}

// VerdictSchema is the JSON schema for the classifier response.
var VerdictSchema = utils.GenerateSchema[verdictResponse]()

// Classifier judges events with an OpenAI-compatible chat model. It
// implements the orchestrator's Classifier interface; failures bubble up and
// the orchestrator substitutes the Unknown verdict.
type Classifier struct {
	client *client.AIClient
	model  string
	logger *zap.Logger
}

// NewClassifier creates a model-backed classifier.
func NewClassifier(aiClient *client.AIClient, cfg *config.Classifier, logger *zap.Logger) *Classifier {
	return &Classifier{
		client: aiClient,
		model:  cfg.Model,
		logger: logger.Named("ai_classifier"),
	}
}

// Classify judges the bundle's event against its scope rules.
func (c *Classifier) Classify(ctx context.Context, bundle *aggregator.ContextBundle) (reputation.Verdict, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(c.systemPrompt(bundle)),
			openai.UserMessage(buildUserPrompt(bundle)),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "verdict",
					Description: openai.String("Moderation verdict for one chat message"),
					Schema:      VerdictSchema,
					Strict:      openai.Bool(true),
				},
			},
		},
		Model:               c.model,
		Temperature:         openai.Float(0.0),
		TopP:                openai.Float(0.95),
		MaxCompletionTokens: openai.Int(1024),
	}

	resp, err := utils.WithRetry(ctx, func() (*openai.ChatCompletion, error) {
		return c.client.ChatCompletion(ctx, params)
	}, utils.GetAIRetryOptions())
	if err != nil {
		return reputation.Verdict{}, fmt.Errorf("classifier request failed: %w", err)
	}

	var parsed verdictResponse
	if err := sonic.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return reputation.Verdict{}, fmt.Errorf("failed to parse verdict: %w", err)
	}

	verdict := parsed.toVerdict()

	c.logger.Debug("Classified event",
		zap.String("eventID", bundle.Event.ID),
		zap.String("status", verdict.Status.String()),
		zap.Float64("confidence", verdict.Confidence))

	return verdict, nil
}

// systemPrompt extends the base instructions with the scope's configured
// moderator personality when one is set.
func (c *Classifier) systemPrompt(bundle *aggregator.ContextBundle) string {
	if bundle.ScopeConfig.Personality == "" {
		return ClassifierSystemPrompt
	}

	return ClassifierSystemPrompt + "\n\nModerator personality:\n" + bundle.ScopeConfig.Personality
}

func buildUserPrompt(bundle *aggregator.ContextBundle) string {
	rules := bundle.ScopeConfig.RulesText
	if rules == "" {
		rules = "(no scope rules configured; apply common chat norms)"
	}

	actorRecent := append([]*types.Event{}, bundle.ActorWindow...)
	actorRecent = append(actorRecent, bundle.GlobalWindow...)

	return fmt.Sprintf(ClassifierUserPrompt,
		rules,
		bundle.Reputation.Reputation,
		bundle.Reputation.State.String(),
		bundle.Reputation.ViolationCount,
		bundle.ActorFrequency,
		bundle.ScopeFrequency,
		formatWindow(bundle.ScopeWindow, bundle.Event.ID),
		formatWindow(actorRecent, bundle.Event.ID),
		bundle.Event.Text,
	)
}

// formatWindow renders events one per line, excluding the event under
// judgment so it appears only in the final slot of the prompt.
func formatWindow(events []*types.Event, judgedID string) string {
	if len(events) == 0 {
		return "(none)"
	}

	var sb strings.Builder

	seen := make(map[string]struct{}, len(events))

	for _, e := range events {
		if e.ID == judgedID {
			continue
		}

		if _, ok := seen[e.ID]; ok {
			continue
		}

		seen[e.ID] = struct{}{}

		fmt.Fprintf(&sb, "[%s actor=%d] %s\n", e.CreatedAt.Format("15:04:05"), e.ActorID, e.Text)
	}

	if sb.Len() == 0 {
		return "(none)"
	}

	return strings.TrimRight(sb.String(), "\n")
}

func (r verdictResponse) toVerdict() reputation.Verdict {
	verdict := reputation.Verdict{
		Confidence: clampConfidence(r.Confidence),
		Reason:     r.Reason,
	}

	switch strings.ToLower(r.Status) {
	case "clean":
		verdict.Status = enum.VerdictStatusClean
	case "spam":
		verdict.Status = enum.VerdictStatusSpam
		verdict.Category = enum.ParseVerdictCategory(r.Category)
	default:
		verdict.Status = enum.VerdictStatusUnknown
	}

	return verdict
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}

	if v > 1 {
		return 1
	}

	return v
}
