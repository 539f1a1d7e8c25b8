package chatbot

import "strings"

type Intent int

const (
	IntentOpenEnded Intent = iota
	IntentRisk
)

func (i Intent) String() string {
	if i == IntentRisk {
		return "risk"
	}
	return "open_ended"
}

// ClassifyIntent routes messages mentioning risk or prediction to the
// templated diagnosis reply; everything else goes to the language service.
func ClassifyIntent(text string) Intent {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "risk") || strings.Contains(lower, "predict") {
		return IntentRisk
	}
	return IntentOpenEnded
}
