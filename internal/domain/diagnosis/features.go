package diagnosis

import (
	"math"
	"regexp"
	"strings"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizePatientID turns a display name into the patient key used across
// diagnoses and conversations: lowercase, whitespace runs become "_".
func NormalizePatientID(name string) string {
	return whitespaceRun.ReplaceAllString(strings.ToLower(name), "_")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func bmi(heightCM, weightKG float64) float64 {
	m := heightCM / 100
	return weightKG / (m * m)
}

func bmiCategory(bmi float64) int {
	switch {
	case bmi < 18.5:
		return 1
	case bmi < 25:
		return 2
	case bmi < 30:
		return 3
	default:
		return 4
	}
}

func meanArterialPressure(hi, lo float64) float64 {
	return lo + (hi-lo)/3
}

// bpCategory follows the ACC/AHA bands: normal, elevated, stage 1,
// stage 2, crisis.
func bpCategory(hi, lo float64) int {
	switch {
	case hi < 120 && lo < 80:
		return 1
	case hi < 130 && lo < 80:
		return 2
	case (hi >= 130 && hi < 140) || (lo >= 80 && lo < 90):
		return 3
	case (hi >= 140 && hi < 180) || (lo >= 90 && lo < 120):
		return 4
	default:
		return 5
	}
}

func ageGroup(age int) int {
	switch {
	case age < 40:
		return 1
	case age < 50:
		return 2
	case age < 60:
		return 3
	default:
		return 4
	}
}

func lifestyleRisk(smoke, alco, active int) int {
	risk := 0
	if smoke == 1 {
		risk += 2
	}
	if alco == 1 {
		risk++
	}
	if active == 0 {
		risk++
	}
	return risk
}

func metabolicRisk(cholesterol, gluc int, bmi float64) int {
	risk := 0
	if cholesterol >= 2 {
		risk++
	}
	if gluc >= 2 {
		risk++
	}
	if bmi > 30 {
		risk++
	}
	return risk
}

const maxRiskScore = 10

func riskScore(p PatientData, bmi float64) int {
	score := 0
	if p.Age > 50 {
		score += 2
	}
	if bmi > 30 {
		score += 2
	}
	if p.APHi > 140 {
		score += 2
	}
	if p.APLo > 90 {
		score++
	}
	if p.Cholesterol >= 2 {
		score++
	}
	if p.Gluc >= 2 {
		score++
	}
	if p.Smoke == 1 {
		score += 2
	}
	if p.Alco == 1 {
		score++
	}
	if p.Active == 0 {
		score++
	}
	if score > maxRiskScore {
		score = maxRiskScore
	}
	return score
}

// DeriveFeatures computes the model input from raw vitals. Thresholds use
// the unrounded BMI; only the reported BMI and MAP are rounded to two
// decimals.
func DeriveFeatures(p PatientData) Features {
	b := bmi(p.Height, p.Weight)
	return Features{
		AgeYears:      p.Age,
		Gender:        p.Gender,
		Height:        p.Height,
		Weight:        p.Weight,
		BMI:           round2(b),
		APHi:          p.APHi,
		APLo:          p.APLo,
		PulsePressure: p.APHi - p.APLo,
		BPCategory:    bpCategory(p.APHi, p.APLo),
		Cholesterol:   p.Cholesterol,
		Gluc:          p.Gluc,
		Smoke:         p.Smoke,
		Alco:          p.Alco,
		Active:        p.Active,
		AgeGroup:      ageGroup(p.Age),
		LifestyleRisk: lifestyleRisk(p.Smoke, p.Alco, p.Active),
		MetabolicRisk: metabolicRisk(p.Cholesterol, p.Gluc, b),
		BMICategory:   bmiCategory(b),
		MAP:           round2(meanArterialPressure(p.APHi, p.APLo)),
		RiskScore:     riskScore(p, b),
	}
}
