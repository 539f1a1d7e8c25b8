package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"
)

const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/"
	DefaultGeminiModel   = "gemini-2.0-flash"
)

type GeminiOption func(*GeminiClient)

func WithGeminiHTTPClient(c *http.Client) GeminiOption {
	return func(g *GeminiClient) { g.httpClient = c }
}

func WithGeminiBaseURL(u string) GeminiOption {
	return func(g *GeminiClient) {
		if u != "" {
			g.baseURL = u
		}
	}
}

// GeminiClient calls generateContent through the genai SDK with an API key.
type GeminiClient struct {
	model      string
	baseURL    string
	httpClient *http.Client
	client     *genai.Client
	initErr    error
}

// NewGeminiClient never fails; a client that cannot be configured (for
// example a missing API key) reports the problem on every Generate call.
func NewGeminiClient(apiKey, model string, timeout time.Duration, opts ...GeminiOption) *GeminiClient {
	if model == "" {
		model = DefaultGeminiModel
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	g := &GeminiClient{
		model:      model,
		baseURL:    DefaultGeminiBaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(g)
	}

	g.client, g.initErr = genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  g.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: g.baseURL},
	})
	return g
}

func (g *GeminiClient) Provider() string { return "gemini" }

type geminiCall struct {
	Contents []*genai.Content
	Config   *genai.GenerateContentConfig
}

// buildGeminiRequest flattens the conversation into role-labelled text parts
// of a single content entry.
func buildGeminiRequest(req Request) geminiCall {
	parts := make([]*genai.Part, 0, len(req.History)+2)
	parts = append(parts, genai.NewPartFromText("System: "+req.System))
	for _, t := range req.History {
		label := "User"
		if t.Role == RoleAssistant {
			label = "Assistant"
		}
		parts = append(parts, genai.NewPartFromText(label+": "+t.Content))
	}
	parts = append(parts, genai.NewPartFromText("User: "+req.Message))

	safety := make([]*genai.SafetySetting, 0, len(req.Safety))
	for _, s := range req.Safety {
		safety = append(safety, &genai.SafetySetting{
			Category:  genai.HarmCategory(s.Category),
			Threshold: genai.HarmBlockThreshold(s.Threshold),
		})
	}

	temperature := req.Generation.Temperature
	topP := req.Generation.TopP
	topK := float32(req.Generation.TopK)

	return geminiCall{
		Contents: []*genai.Content{{Role: genai.RoleUser, Parts: parts}},
		Config: &genai.GenerateContentConfig{
			Temperature:     &temperature,
			TopK:            &topK,
			TopP:            &topP,
			MaxOutputTokens: int32(req.Generation.MaxOutputTokens),
			SafetySettings:  safety,
		},
	}
}

func (g *GeminiClient) Generate(ctx context.Context, req Request) (string, error) {
	if g.initErr != nil {
		return "", fmt.Errorf("configure gemini: %w", g.initErr)
	}

	call := buildGeminiRequest(req)
	resp, err := g.client.Models.GenerateContent(ctx, g.model, call.Contents, call.Config)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", &StatusError{Provider: g.Provider(), StatusCode: apiErr.Code, Message: apiErr.Message}
		}
		return "", fmt.Errorf("call gemini: %w", err)
	}
	return firstCandidateText(resp), nil
}

func firstCandidateText(r *genai.GenerateContentResponse) string {
	if r == nil || len(r.Candidates) == 0 || r.Candidates[0].Content == nil {
		return ""
	}
	parts := r.Candidates[0].Content.Parts
	if len(parts) == 0 || parts[0] == nil {
		return ""
	}
	return parts[0].Text
}
