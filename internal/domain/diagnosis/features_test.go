package diagnosis

import "testing"

func TestNormalizePatientID(t *testing.T) {
	tests := map[string]string{
		"John Doe":        "john_doe",
		"  Jane   Smith ": "_jane_smith_",
		"ALICE":           "alice",
		"a\tb\nc":         "a_b_c",
	}
	for in, want := range tests {
		if got := NormalizePatientID(in); got != want {
			t.Errorf("NormalizePatientID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBMICategory(t *testing.T) {
	tests := []struct {
		bmi  float64
		want int
	}{
		{17.0, 1}, {18.5, 2}, {24.9, 2}, {25, 3}, {29.99, 3}, {30, 4}, {41, 4},
	}
	for _, tt := range tests {
		if got := bmiCategory(tt.bmi); got != tt.want {
			t.Errorf("bmiCategory(%v) = %d, want %d", tt.bmi, got, tt.want)
		}
	}
}

func TestBPCategory(t *testing.T) {
	tests := []struct {
		hi, lo float64
		want   int
	}{
		{110, 70, 1},
		{125, 75, 2},
		{135, 75, 3},
		{118, 85, 3},
		{150, 85, 4},
		{120, 95, 4},
		{185, 85, 5},
		{175, 125, 4},
		{190, 125, 5},
	}
	for _, tt := range tests {
		if got := bpCategory(tt.hi, tt.lo); got != tt.want {
			t.Errorf("bpCategory(%v, %v) = %d, want %d", tt.hi, tt.lo, got, tt.want)
		}
	}
}

func TestAgeGroup(t *testing.T) {
	tests := map[int]int{25: 1, 39: 1, 40: 2, 49: 2, 50: 3, 59: 3, 60: 4, 80: 4}
	for age, want := range tests {
		if got := ageGroup(age); got != want {
			t.Errorf("ageGroup(%d) = %d, want %d", age, got, want)
		}
	}
}

func TestDeriveFeatures_HighRiskPatient(t *testing.T) {
	p := PatientData{
		Age: 62, Gender: 2, Height: 170, Weight: 95,
		APHi: 160, APLo: 100,
		Cholesterol: 3, Gluc: 2, Smoke: 1, Alco: 1, Active: 0,
	}
	f := DeriveFeatures(p)

	if f.BMI != 32.87 {
		t.Errorf("expected BMI 32.87, got %v", f.BMI)
	}
	if f.BMICategory != 4 {
		t.Errorf("expected BMI category 4, got %d", f.BMICategory)
	}
	if f.PulsePressure != 60 {
		t.Errorf("expected pulse pressure 60, got %v", f.PulsePressure)
	}
	if f.MAP != 120 {
		t.Errorf("expected MAP 120, got %v", f.MAP)
	}
	if f.BPCategory != 4 {
		t.Errorf("expected BP category 4, got %d", f.BPCategory)
	}
	if f.AgeGroup != 4 {
		t.Errorf("expected age group 4, got %d", f.AgeGroup)
	}
	if f.LifestyleRisk != 4 {
		t.Errorf("expected lifestyle risk 4, got %d", f.LifestyleRisk)
	}
	if f.MetabolicRisk != 3 {
		t.Errorf("expected metabolic risk 3, got %d", f.MetabolicRisk)
	}
	// 2+2+2+1+1+1+2+1+1 = 13, capped
	if f.RiskScore != maxRiskScore {
		t.Errorf("expected risk score capped at %d, got %d", maxRiskScore, f.RiskScore)
	}
	if f.AgeYears != 62 {
		t.Errorf("expected age_years 62, got %d", f.AgeYears)
	}
}

func TestDeriveFeatures_LowRiskPatient(t *testing.T) {
	p := PatientData{
		Age: 35, Gender: 1, Height: 165, Weight: 60,
		APHi: 115, APLo: 75,
		Cholesterol: 1, Gluc: 1, Smoke: 0, Alco: 0, Active: 1,
	}
	f := DeriveFeatures(p)

	if f.BMI != 22.04 {
		t.Errorf("expected BMI 22.04, got %v", f.BMI)
	}
	if f.MAP != 88.33 {
		t.Errorf("expected MAP 88.33, got %v", f.MAP)
	}
	if f.BPCategory != 1 || f.AgeGroup != 1 || f.BMICategory != 2 {
		t.Errorf("unexpected categories: %+v", f)
	}
	if f.LifestyleRisk != 0 || f.MetabolicRisk != 0 || f.RiskScore != 0 {
		t.Errorf("expected zero risk, got %+v", f)
	}
}

func TestDeriveFeatures_ThresholdsUseUnroundedBMI(t *testing.T) {
	// 30.004 rounds to 30.00 but is still above the obesity threshold.
	p := PatientData{Age: 30, Height: 100, Weight: 30.004, APHi: 110, APLo: 70, Cholesterol: 1, Gluc: 1, Active: 1}
	f := DeriveFeatures(p)

	if f.BMI != 30 {
		t.Fatalf("expected rounded BMI 30, got %v", f.BMI)
	}
	if f.MetabolicRisk != 1 {
		t.Errorf("expected metabolic risk 1 from unrounded BMI, got %d", f.MetabolicRisk)
	}
	if f.RiskScore != 2 {
		t.Errorf("expected risk score 2 from unrounded BMI, got %d", f.RiskScore)
	}
}
