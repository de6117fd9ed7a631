package capability

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/qs3c/engage_go_server/internal/pkg/logger"
)

// GeminiGenerator 通过 google.golang.org/genai 调用 Gemini
type GeminiGenerator struct {
	client *genai.Client
	log    *logger.Logger
}

// NewGeminiGenerator 创建 Gemini 文本模型客户端
func NewGeminiGenerator(ctx context.Context, apiKey string, log *logger.Logger) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiGenerator{client: client, log: log.With("service", "gemini")}, nil
}

func (g *GeminiGenerator) GenerateText(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.ResponseFormat == FormatJSON {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, Wrap("gemini.generate", &HTTPError{StatusCode: apiErr.Code, Body: apiErr.Message})
		}
		return nil, Wrap("gemini.generate", err)
	}

	out := &GenerateResponse{Text: resp.Text(), Model: req.Model}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	g.log.Debug("gemini generate", "model", req.Model, "total_tokens", out.Usage.TotalTokens)
	return out, nil
}
