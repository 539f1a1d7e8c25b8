package chatbot

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/cardiorisk/cardiorisk/internal/platform/llm"
)

const personaPrompt = "You are a helpful health assistant specializing in heart disease. " +
	"Provide accurate, supportive health information. Keep responses concise and helpful."

// DefaultContextWindow is how many stored messages go with each prompt.
const DefaultContextWindow = 4

// ContextExtractor returns the last n messages of a conversation, oldest
// first.
type ContextExtractor interface {
	Recent(ctx context.Context, patientID string, n int) ([]Message, error)
}

// Outcome is the result of one language service call. A degraded outcome
// always renders as UnavailableReply; the reason is for logs only.
type Outcome struct {
	text   string
	reason error
}

func Ok(text string) Outcome { return Outcome{text: text} }

func Degraded(reason error) Outcome {
	if reason == nil {
		reason = errors.New("degraded")
	}
	return Outcome{reason: reason}
}

func (o Outcome) IsDegraded() bool { return o.reason != nil }

func (o Outcome) Reason() error { return o.reason }

// Text is the reply shown to the user.
func (o Outcome) Text() string {
	if o.reason != nil {
		return UnavailableReply
	}
	return o.text
}

// LanguageResponder answers open-ended messages through a Generator with a
// short window of prior conversation as context.
type LanguageResponder struct {
	gen     llm.Generator
	history ContextExtractor
	window  int
	logger  zerolog.Logger
}

func NewLanguageResponder(gen llm.Generator, history ContextExtractor, window int, logger zerolog.Logger) *LanguageResponder {
	if window < 0 {
		window = DefaultContextWindow
	}
	return &LanguageResponder{
		gen:     gen,
		history: history,
		window:  window,
		logger:  logger.With().Str("component", "language_responder").Logger(),
	}
}

func systemPrompt(risk *RiskContext) string {
	if risk == nil || risk.Prediction == nil {
		return personaPrompt
	}
	status := "not at risk"
	if *risk.Prediction == 1 {
		status = "at risk"
	}
	return personaPrompt + " The patient is currently " + status + " for coronary heart disease."
}

func (r *LanguageResponder) buildRequest(ctx context.Context, patientID, message string, risk *RiskContext) llm.Request {
	var turns []llm.Turn
	if r.window > 0 {
		recent, err := r.history.Recent(ctx, patientID, r.window)
		if err != nil {
			r.logger.Warn().Err(err).Str("patient_id", patientID).Msg("failed to load conversation context")
		}
		for _, m := range recent {
			role := llm.RoleUser
			if m.Role == RoleAssistant {
				role = llm.RoleAssistant
			}
			turns = append(turns, llm.Turn{Role: role, Content: m.Content})
		}
	}
	return llm.Request{
		System:     systemPrompt(risk),
		History:    turns,
		Message:    message,
		Generation: llm.DefaultGeneration(),
		Safety:     llm.DefaultSafety(),
	}
}

// Respond makes exactly one call to the language service. The call is not
// tied to the caller's cancellation; the client timeout bounds it.
func (r *LanguageResponder) Respond(ctx context.Context, patientID, message string, risk *RiskContext) Outcome {
	req := r.buildRequest(ctx, patientID, message, risk)

	text, err := r.gen.Generate(context.WithoutCancel(ctx), req)
	if err != nil {
		r.logger.Warn().Err(err).
			Str("provider", r.gen.Provider()).
			Str("patient_id", patientID).
			Msg("language service call failed")
		return Degraded(err)
	}
	if text == "" {
		return Ok(EmptyReply)
	}
	return Ok(text)
}
