package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chatwarden/warden/internal/setup/config"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrModelResponse indicates the model returned a response the caller could
// not use: empty choices, a missing finish reason, or filtered content.
var ErrModelResponse = errors.New("unusable model response")

// AIClient wraps the OpenAI-compatible API behind a circuit breaker and a
// concurrency limit shared by every analyzer in the process. A tripped
// breaker fails calls fast; callers treat that like any other classifier
// failure and fall back to the Unknown verdict.
type AIClient struct {
	client    *openai.Client
	breaker   *gobreaker.CircuitBreaker
	semaphore *semaphore.Weighted
	logger    *zap.Logger
}

// NewClient creates a new AIClient from classifier config.
func NewClient(cfg *config.Classifier, logger *zap.Logger) *AIClient {
	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithRequestTimeout(time.Duration(cfg.RequestTimeout)*time.Millisecond),
		option.WithMaxRetries(0),
	)

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	settings := gobreaker.Settings{
		Name:        "classifier",
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		Interval:    0,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
		OnStateChange: func(_ string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &AIClient{
		client:    &client,
		breaker:   gobreaker.NewCircuitBreaker(settings),
		semaphore: semaphore.NewWeighted(maxConcurrent),
		logger:    logger.Named("ai_client"),
	}
}

// ChatCompletion makes one chat completion request under the breaker and the
// concurrency limit.
func (c *AIClient) ChatCompletion(
	ctx context.Context, params openai.ChatCompletionNewParams,
) (*openai.ChatCompletion, error) {
	if err := c.semaphore.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire semaphore: %w", err)
	}
	defer c.semaphore.Release(1)

	result, err := c.breaker.Execute(func() (any, error) {
		resp, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return nil, err
		}

		if blocked := checkBlockReasons(resp); blocked != nil {
			return nil, blocked
		}

		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return nil, fmt.Errorf("classifier unavailable, breaker open: %w", err)
		}

		c.logger.Warn("Failed to make chat completion request", zap.Error(err))

		return nil, err
	}

	return result.(*openai.ChatCompletion), nil
}

// Embedding computes the embedding vector for one input under the breaker
// and the concurrency limit.
func (c *AIClient) Embedding(ctx context.Context, model, input string) ([]float64, error) {
	if err := c.semaphore.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire semaphore: %w", err)
	}
	defer c.semaphore.Release(1)

	result, err := c.breaker.Execute(func() (any, error) {
		resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Model: model,
			Input: openai.EmbeddingNewParamsInputUnion{
				OfString: openai.String(input),
			},
		})
		if err != nil {
			return nil, err
		}

		if len(resp.Data) == 0 {
			return nil, fmt.Errorf("%w: empty embedding response", ErrModelResponse)
		}

		return resp.Data[0].Embedding, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return nil, fmt.Errorf("embedding unavailable, breaker open: %w", err)
		}

		c.logger.Warn("Failed to make embedding request", zap.Error(err))

		return nil, err
	}

	return result.([]float64), nil
}

// checkBlockReasons rejects responses that carry no usable content.
func checkBlockReasons(resp *openai.ChatCompletion) error {
	if resp == nil || len(resp.Choices) == 0 {
		return fmt.Errorf("%w: empty choices", ErrModelResponse)
	}

	switch resp.Choices[0].FinishReason {
	case "stop", "length":
		return nil
	default:
		return fmt.Errorf("%w: finish reason %q", ErrModelResponse, resp.Choices[0].FinishReason)
	}
}
