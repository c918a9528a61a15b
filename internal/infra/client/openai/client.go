package openai

import (
	"context"
	"fmt"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/turbobackend/worker/internal/application/ports"
	"github.com/turbobackend/worker/internal/infra/config"
)

// Client is the sole LLM provider adapter, used by the intent detectors,
// the schema designer, and the agentic loop alike.
type Client struct {
	cfg    config.OpenAIConfig
	client oai.Client
}

var _ ports.LLM = (*Client)(nil)

func NewClient(cfg config.OpenAIConfig) *Client {
	return &Client{
		cfg:    cfg,
		client: oai.NewClient(option.WithAPIKey(cfg.APIKey)),
	}
}

func (c *Client) Model() string {
	return c.cfg.Model
}

func (c *Client) reasoningEffort() shared.ReasoningEffort {
	switch c.cfg.ReasoningEffort {
	case "low":
		return shared.ReasoningEffortLow
	case "high":
		return shared.ReasoningEffortHigh
	default:
		return shared.ReasoningEffortMedium
	}
}

func (c *Client) messages(prompt, systemInstructions string) []oai.ChatCompletionMessageParamUnion {
	messages := make([]oai.ChatCompletionMessageParamUnion, 0, 2)
	if systemInstructions != "" {
		messages = append(messages, oai.ChatCompletionMessageParamUnion{
			OfSystem: &oai.ChatCompletionSystemMessageParam{
				Content: oai.ChatCompletionSystemMessageParamContentUnion{
					OfString: param.Opt[string]{Value: systemInstructions},
				},
			},
		})
	}
	messages = append(messages, oai.ChatCompletionMessageParamUnion{
		OfUser: &oai.ChatCompletionUserMessageParam{
			Content: oai.ChatCompletionUserMessageParamContentUnion{
				OfString: param.Opt[string]{Value: prompt},
			},
		},
	})
	return messages
}

func (c *Client) Generate(ctx context.Context, prompt, systemInstructions string) (ports.Generation, error) {
	completion, err := c.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model:               c.cfg.Model,
		Messages:            c.messages(prompt, systemInstructions),
		MaxCompletionTokens: param.Opt[int64]{Value: c.cfg.MaxTokens},
		N:                   param.Opt[int64]{Value: 1},
		Temperature:         param.Opt[float64]{Value: 0.2},
		ReasoningEffort:     c.reasoningEffort(),
	})
	if err != nil {
		return ports.Generation{}, fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return ports.Generation{}, fmt.Errorf("openai returned no choices")
	}

	return ports.Generation{
		Text:         completion.Choices[0].Message.Content,
		InputTokens:  int(completion.Usage.PromptTokens),
		OutputTokens: int(completion.Usage.CompletionTokens),
	}, nil
}

// GenerateStream uses the streaming completions API and forwards each
// received delta to onChunk as it arrives, returning the accumulated result
// once the stream closes.
func (c *Client) GenerateStream(ctx context.Context, prompt, systemInstructions string, onChunk func(chunk string)) (ports.Generation, error) {
	stream := c.client.Chat.Completions.NewStreaming(ctx, oai.ChatCompletionNewParams{
		Model:               c.cfg.Model,
		Messages:            c.messages(prompt, systemInstructions),
		MaxCompletionTokens: param.Opt[int64]{Value: c.cfg.MaxTokens},
		N:                   param.Opt[int64]{Value: 1},
		Temperature:         param.Opt[float64]{Value: 0.2},
		ReasoningEffort:     c.reasoningEffort(),
	})
	defer stream.Close()

	acc := oai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) > 0 {
			delta := chunk.Choices[0].Delta.Content
			if delta != "" {
				onChunk(delta)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return ports.Generation{}, fmt.Errorf("openai streaming chat completion failed: %w", err)
	}
	if len(acc.Choices) == 0 {
		return ports.Generation{}, fmt.Errorf("openai stream produced no choices")
	}

	return ports.Generation{
		Text:         acc.Choices[0].Message.Content,
		InputTokens:  int(acc.Usage.PromptTokens),
		OutputTokens: int(acc.Usage.CompletionTokens),
	}, nil
}
