package diagnosis

import (
	"time"

	"github.com/google/uuid"
)

// Models accepted by the prediction service.
var KnownModels = []string{
	"logistic_regression",
	"random_forest",
	"xgboost",
	"lightgbm",
	"catboost",
	"voting_ensemble",
	"stacking_model",
}

func IsKnownModel(name string) bool {
	for _, m := range KnownModels {
		if m == name {
			return true
		}
	}
	return false
}

// PatientData is the raw form input. Categorical fields follow the
// cardiovascular dataset coding: gender 1|2, cholesterol and gluc 1..3,
// smoke/alco/active 0|1.
type PatientData struct {
	Age         int     `json:"age"`
	Gender      int     `json:"gender"`
	Height      float64 `json:"height"`
	Weight      float64 `json:"weight"`
	APHi        float64 `json:"ap_hi"`
	APLo        float64 `json:"ap_lo"`
	Cholesterol int     `json:"cholesterol"`
	Gluc        int     `json:"gluc"`
	Smoke       int     `json:"smoke"`
	Alco        int     `json:"alco"`
	Active      int     `json:"active"`
}

// Features is the model input sent to the ML service as inputData.
type Features struct {
	AgeYears      int     `json:"age_years"`
	Gender        int     `json:"gender"`
	Height        float64 `json:"height"`
	Weight        float64 `json:"weight"`
	BMI           float64 `json:"bmi"`
	APHi          float64 `json:"ap_hi"`
	APLo          float64 `json:"ap_lo"`
	PulsePressure float64 `json:"pulse_pressure"`
	BPCategory    int     `json:"bp_category"`
	Cholesterol   int     `json:"cholesterol"`
	Gluc          int     `json:"gluc"`
	Smoke         int     `json:"smoke"`
	Alco          int     `json:"alco"`
	Active        int     `json:"active"`
	AgeGroup      int     `json:"age_group"`
	LifestyleRisk int     `json:"lifestyle_risk"`
	MetabolicRisk int     `json:"metabolic_risk"`
	BMICategory   int     `json:"bmi_category"`
	MAP           float64 `json:"map"`
	RiskScore     int     `json:"risk_score"`
}

type Probabilities struct {
	LowRisk  *float64 `json:"low_risk,omitempty"`
	HighRisk *float64 `json:"high_risk,omitempty"`
}

// Diagnosis is one stored prediction.
type Diagnosis struct {
	ID               uuid.UUID              `json:"id"`
	PatientID        string                 `json:"patientId"`
	PatientName      string                 `json:"patientName,omitempty"`
	InputData        PatientData            `json:"inputData"`
	Features         *Features              `json:"features,omitempty"`
	Prediction       int                    `json:"prediction"`
	Probability      *float64               `json:"probability,omitempty"`
	Probabilities    Probabilities          `json:"probabilities"`
	Confidence       *float64               `json:"confidence,omitempty"`
	Model            string                 `json:"model"`
	ModelDisplayName string                 `json:"modelDisplayName,omitempty"`
	Metrics          map[string]interface{} `json:"metrics,omitempty"`
	RiskLevel        string                 `json:"riskLevel,omitempty"`
	Timestamp        time.Time              `json:"timestamp"`
	CreatedAt        time.Time              `json:"createdAt"`
	UpdatedAt        time.Time              `json:"updatedAt"`
}

// Filter narrows List. PatientName matches either the stored name or the
// normalised patient id derived from it.
type Filter struct {
	PatientID   string
	PatientName string
}
