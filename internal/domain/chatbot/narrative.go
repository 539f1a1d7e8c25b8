package chatbot

import "fmt"

// Fixed user-facing replies.
const (
	NoDiagnosisReply  = "📄 No diagnosis found yet. Please complete a prediction first."
	EmptyReply        = "⚠️ AI service did not return a response. Please try again."
	UnavailableReply  = "⚠️ AI service is currently unavailable. Please try asking about your heart disease risk or check back later."
	ErrorReply        = "⚠️ Error generating response. Please try again."
	EmptyMessageReply = "Please ask something!"
)

const (
	defaultProbability = 0.85
	unknownModel       = "Unknown Model"
)

const atRiskTemplate = "⚠️ You may be at risk of coronary heart disease.\n" +
	"📊 Model: %s\nConfidence: %.1f%%\n\n" +
	"🩺 Recommendations:\n" +
	"• Visit a cardiologist\n" +
	"• Follow a heart-healthy diet\n" +
	"• Exercise regularly\n" +
	"• Avoid smoking/alcohol\n" +
	"• Track blood pressure & cholesterol"

const notAtRiskTemplate = "✅ You are not at risk of CHD according to our latest prediction.\n" +
	"📊 Model: %s\nConfidence: %.1f%%\n\n" +
	"💡 Still, maintain a healthy lifestyle!"

// RiskNarrative renders the templated risk reply for a diagnosis. A nil
// snapshot yields NoDiagnosisReply.
func RiskNarrative(snap *Snapshot) string {
	if snap == nil {
		return NoDiagnosisReply
	}
	model := snap.Model
	if model == "" {
		model = unknownModel
	}
	p := defaultProbability
	if snap.Probability != nil {
		p = *snap.Probability
	}
	if snap.Prediction == 1 {
		return fmt.Sprintf(atRiskTemplate, model, p*100)
	}
	return fmt.Sprintf(notAtRiskTemplate, model, p*100)
}
