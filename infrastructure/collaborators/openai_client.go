// Package collaborators holds the adapters for external model services.
// Every outbound call goes through a circuit breaker: a flapping
// collaborator fails fast instead of tying up the write path, and an
// outage only ever fails the operation that needed it.
package collaborators

import (
	"context"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"agora-backend/domain/core/aggregates"
	pkgerrors "agora-backend/pkg/errors"
)

// OpenAIClient adapts the OpenAI API to the Embedder and Synthesizer
// ports
type OpenAIClient struct {
	client         *openai.Client
	breaker        *gobreaker.CircuitBreaker
	embeddingModel openai.EmbeddingModel
	chatModel      string
	logger         *zap.Logger
}

// NewOpenAIClient creates the adapter with its circuit breaker
func NewOpenAIClient(apiKey string, logger *zap.Logger) *OpenAIClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openai",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &OpenAIClient{
		client:         openai.NewClient(apiKey),
		breaker:        breaker,
		embeddingModel: openai.SmallEmbedding3,
		chatModel:      openai.GPT4oMini,
		logger:         logger,
	}
}

// EmbedRound embeds the concatenated contributions of one debate round
func (c *OpenAIClient) EmbedRound(ctx context.Context, texts []string) ([]float64, error) {
	input := strings.Join(texts, "\n")

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{input},
			Model: c.embeddingModel,
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Data) == 0 {
			return nil, pkgerrors.NewInternalError("embedding response was empty")
		}
		return resp.Data[0].Embedding, nil
	})
	if err != nil {
		return nil, pkgerrors.NewExternalError("openai", err)
	}

	raw := result.([]float32)
	embedding := make([]float64, len(raw))
	for i, v := range raw {
		embedding[i] = float64(v)
	}
	return embedding, nil
}

// Synthesize asks the chat model for a synthesis of the graph's claims
func (c *OpenAIClient) Synthesize(ctx context.Context, snap *aggregates.Snapshot, triggerReason string) (string, error) {
	var sb strings.Builder
	for _, node := range snap.Nodes {
		sb.WriteString(string(node.Kind))
		sb.WriteString(": ")
		sb.WriteString(node.Text)
		sb.WriteString("\n")
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.chatModel,
			Messages: []openai.ChatCompletionMessage{
				{
					Role: openai.ChatMessageRoleSystem,
					Content: "Synthesize the following deliberation into a concise conclusion. " +
						"The debate was stopped because of: " + triggerReason + ".",
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: sb.String(),
				},
			},
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, pkgerrors.NewInternalError("completion response was empty")
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		return "", pkgerrors.NewExternalError("openai", err)
	}
	return result.(string), nil
}
