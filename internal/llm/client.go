package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
)

// Embed returns one embedding vector per input text, in input order.
// The whole batch goes to the provider in a single call; callers size
// batches to the provider's request limits.
//
// Every returned vector is checked against the configured dimension;
// a mismatch would otherwise surface much later as an opaque database
// error on the vector column.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := withRetry(ctx, c.logger, c.retry, "embed",
		func(ctx context.Context) (*openai.CreateEmbeddingResponse, error) {
			return c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
				Model: openai.EmbeddingModel(c.embeddingModel),
				Input: openai.EmbeddingNewParamsInputUnion{
					OfArrayOfStrings: texts,
				},
			})
		})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embed: provider returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, item := range resp.Data {
		if c.dimension > 0 && len(item.Embedding) != c.dimension {
			return nil, fmt.Errorf("embed: vector %d has dimension %d, want %d", i, len(item.Embedding), c.dimension)
		}
		vec := make([]float32, len(item.Embedding))
		for j, v := range item.Embedding {
			vec[j] = float32(v)
		}
		vectors[i] = vec
	}

	c.logger.Debug("generated embeddings", "count", len(vectors), "model", c.embeddingModel)
	return vectors, nil
}

// Complete sends the message sequence to the chat completion API and
// returns the generated content with provider metadata. Messages are
// forwarded as supplied; the gateway does not validate turn order.
func (c *Client) Complete(ctx context.Context, messages []Message, opts CompletionOptions) (*Completion, error) {
	if len(messages) == 0 {
		return nil, ErrNoMessages
	}

	params := c.buildCompletionParams(messages, opts)

	resp, err := withRetry(ctx, c.logger, c.retry, "complete",
		func(ctx context.Context) (*openai.ChatCompletion, error) {
			return c.api.Chat.Completions.New(ctx, params)
		})
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: completion returned no choices", ErrProvider)
	}
	choice := resp.Choices[0]

	completion := &Completion{
		Content:      choice.Message.Content,
		Model:        string(resp.Model),
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}

	c.logger.Debug("generated completion",
		"model", completion.Model,
		"finish_reason", completion.FinishReason,
		"total_tokens", completion.Usage.TotalTokens,
	)
	return completion, nil
}

// TestConnection issues a minimal completion to verify the provider is
// reachable with the configured credential. Used by the health check.
func (c *Client) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	_, err := c.Complete(ctx, []Message{{Role: RoleUser, Content: "test"}}, CompletionOptions{MaxTokens: 5})
	if err != nil {
		return fmt.Errorf("provider connection test: %w", err)
	}
	return nil
}
