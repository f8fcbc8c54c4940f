package narrative

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiClient adapts the Gemini SDK to the Client interface. Gemini has no
// system role on individual turns, so the system message is installed as the
// model's system instruction and the rest of the conversation is flattened.
type GeminiClient struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("missing Gemini API key")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &GeminiClient{client: client, model: "gemini-2.5-flash"}, nil
}

func (c *GeminiClient) Close() { c.client.Close() }

func (c *GeminiClient) Complete(ctx context.Context, messages []Message) (string, error) {
	model := c.client.GenerativeModel(c.model)
	var rest []string
	for _, m := range messages {
		if m.Role == RoleSystem {
			model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(m.Content)}}
			continue
		}
		rest = append(rest, m.Content)
	}
	resp, err := model.GenerateContent(ctx, genai.Text(strings.Join(rest, "\n\n")))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini: no content returned")
	}
	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return "", fmt.Errorf("gemini: unexpected response part type")
	}
	return string(text), nil
}
