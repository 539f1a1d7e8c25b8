// Package llm wraps the generative language services the chatbot can use.
// Every client implements Generator; the chatbot never sees provider types.
package llm

import (
	"context"
	"fmt"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one prior message included as conversation context.
type Turn struct {
	Role    Role
	Content string
}

type GenerationConfig struct {
	Temperature     float32
	TopK            int
	TopP            float32
	MaxOutputTokens int
}

// SafetySetting uses the Gemini category and threshold names. Providers
// without an equivalent ignore it.
type SafetySetting struct {
	Category  string
	Threshold string
}

type Request struct {
	System     string
	History    []Turn
	Message    string
	Generation GenerationConfig
	Safety     []SafetySetting
}

// Generator produces one completion. An empty string with a nil error means
// the service answered but returned no usable text.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Provider() string
}

func DefaultGeneration() GenerationConfig {
	return GenerationConfig{
		Temperature:     0.7,
		TopK:            40,
		TopP:            0.95,
		MaxOutputTokens: 400,
	}
}

const BlockMediumAndAbove = "BLOCK_MEDIUM_AND_ABOVE"

func DefaultSafety() []SafetySetting {
	return []SafetySetting{
		{Category: "HARM_CATEGORY_HARASSMENT", Threshold: BlockMediumAndAbove},
		{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: BlockMediumAndAbove},
		{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: BlockMediumAndAbove},
		{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: BlockMediumAndAbove},
	}
}

// StatusError reports a non-2xx answer from a language service.
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s returned %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s returned %d", e.Provider, e.StatusCode)
}

type instrumented struct {
	Generator
	observe func(provider string, ok bool, d time.Duration)
}

// Instrument reports the outcome and latency of every Generate call.
func Instrument(g Generator, observe func(provider string, ok bool, d time.Duration)) Generator {
	if observe == nil {
		return g
	}
	return &instrumented{Generator: g, observe: observe}
}

func (g *instrumented) Generate(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	text, err := g.Generator.Generate(ctx, req)
	g.observe(g.Provider(), err == nil, time.Since(start))
	return text, err
}
