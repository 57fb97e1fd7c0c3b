package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-1.5-flash"

type geminiBackend struct {
	client *genai.Client
	model  string
}

func newGemini(ctx context.Context, apiKey, modelName string) (*geminiBackend, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini: api key is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = defaultGeminiModel
	}
	return &geminiBackend{client: cl, model: modelName}, nil
}

func (g *geminiBackend) name() string { return "gemini" }

func (g *geminiBackend) complete(ctx context.Context, c completion) (string, error) {
	m := g.client.GenerativeModel(g.model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature: ptrFloat32(c.Temperature),
	}
	if c.JSON {
		m.GenerationConfig.ResponseMIMEType = "application/json"
	}
	if c.System != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(c.System)},
		}
	}

	resp, err := m.GenerateContent(ctx, genai.Text(c.User))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return strings.TrimSpace(firstText(resp)), nil
}

func (g *geminiBackend) ping(ctx context.Context) error {
	m := g.client.GenerativeModel(g.model)
	if _, err := m.CountTokens(ctx, genai.Text("ping")); err != nil {
		return fmt.Errorf("count tokens: %w", err)
	}
	return nil
}

func (g *geminiBackend) close() error { return g.client.Close() }

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, p := range cand.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		if sb.Len() > 0 {
			return sb.String()
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
