// Package llm generates exam questions through an OpenAI-compatible API.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/abdullah-az/ai-exam/internal/llm/prompts"
	"github.com/abdullah-az/ai-exam/internal/model"
)

const defaultQuestionMark = 5

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Ping verifies the API endpoint is reachable with the configured key.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM ping: %w", err)
	}
	return nil
}

// GenerateFromExamples asks the model for count new questions styled after
// the given existing ones.
func (c *Client) GenerateFromExamples(ctx context.Context, specialization string, examples []model.Question, count int) ([]model.GeneratedQuestionPayload, error) {
	if count < 1 {
		return nil, fmt.Errorf("question count must be positive, got %d", count)
	}
	formatted, err := prompts.FormatExamples(examples)
	if err != nil {
		return nil, err
	}
	prompt, err := prompts.BuildGenerationPrompt(prompts.KindFromExamples, prompts.GenerationData{
		Specialization: specialization,
		Count:          count,
		Examples:       formatted,
	})
	if err != nil {
		return nil, err
	}
	return c.generate(ctx, prompt)
}

// GenerateFromText asks the model for count new questions grounded in the
// given source material, typically text extracted from a lecture PDF.
func (c *Client) GenerateFromText(ctx context.Context, specialization, sourceText string, count int) ([]model.GeneratedQuestionPayload, error) {
	if count < 1 {
		return nil, fmt.Errorf("question count must be positive, got %d", count)
	}
	if strings.TrimSpace(sourceText) == "" {
		return nil, fmt.Errorf("source material is empty")
	}
	prompt, err := prompts.BuildGenerationPrompt(prompts.KindFromText, prompts.GenerationData{
		Specialization: specialization,
		Count:          count,
		SourceText:     sourceText,
	})
	if err != nil {
		return nil, err
	}
	return c.generate(ctx, prompt)
}

func (c *Client) generate(ctx context.Context, prompt string) ([]model.GeneratedQuestionPayload, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)

	return parseGenerated([]byte(raw))
}

// parseGenerated validates and decodes a generation response, dropping
// questions that cannot be repaired into a gradable shape.
func parseGenerated(raw []byte) ([]model.GeneratedQuestionPayload, error) {
	if err := validateGenerated(raw); err != nil {
		return nil, err
	}
	var envelope struct {
		Questions []model.GeneratedQuestionPayload `json:"questions"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}

	var out []model.GeneratedQuestionPayload
	for _, p := range envelope.Questions {
		if normalized, ok := normalizePayload(p); ok {
			out = append(out, normalized)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("LLM returned no usable questions")
	}
	return out, nil
}

// normalizePayload enforces the single-correct-choice invariant on one
// generated question: the first flagged choice wins, and when none is flagged
// the first choice is promoted. Unusable questions are dropped.
func normalizePayload(p model.GeneratedQuestionPayload) (model.GeneratedQuestionPayload, bool) {
	p.Text = strings.TrimSpace(p.Text)
	if p.Text == "" || len(p.Choices) < 2 {
		return p, false
	}
	seen := false
	for i := range p.Choices {
		p.Choices[i].Text = strings.TrimSpace(p.Choices[i].Text)
		if p.Choices[i].IsCorrect {
			if seen {
				p.Choices[i].IsCorrect = false
			}
			seen = true
		}
	}
	if !seen {
		p.Choices[0].IsCorrect = true
	}
	if p.Mark <= 0 {
		p.Mark = defaultQuestionMark
	}
	return p, true
}
