package riskfactor

import "github.com/opensource-finance/cardiorisk/internal/domain"

// Record variables exposed to rule expressions.
const (
	VarAge            = "age"
	VarSex            = "sex"
	VarChestPainType  = "chest_pain_type"
	VarRestingBP      = "resting_bp"
	VarCholesterol    = "cholesterol"
	VarFastingBS      = "fasting_bs"
	VarRestingECG     = "resting_ecg"
	VarMaxHR          = "max_hr"
	VarExerciseAngina = "exercise_angina"
	VarOldpeak        = "oldpeak"
	VarSTSlope        = "st_slope"
)

// DefaultRules returns the clinical risk factor checks in reporting order.
func DefaultRules() []*domain.RiskRule {
	return []*domain.RiskRule{
		{
			ID:          "high-cholesterol",
			Description: "Serum cholesterol above 200 mg/dl",
			Expression:  "cholesterol > 200.0",
			Reason:      "High Cholesterol ({value} mg/dl)",
			ValueVar:    VarCholesterol,
			Enabled:     true,
		},
		{
			ID:          "high-bp",
			Description: "Resting blood pressure above 140 mm Hg",
			Expression:  "resting_bp > 140.0",
			Reason:      "High BP ({value} mm Hg)",
			ValueVar:    VarRestingBP,
			Enabled:     true,
		},
		{
			ID:          "high-fasting-bs",
			Description: "Fasting blood sugar above 120 mg/dl",
			Expression:  "fasting_bs == 1",
			Reason:      "High Fasting Blood Sugar",
			Enabled:     true,
		},
		{
			ID:          "exercise-angina",
			Description: "Angina induced by exercise",
			Expression:  `exercise_angina == "Y"`,
			Reason:      "Exercise Induced Angina",
			Enabled:     true,
		},
		{
			ID:          "st-depression",
			Description: "Oldpeak ST depression above 1.0",
			Expression:  "oldpeak > 1.0",
			Reason:      "ST Depression ({value})",
			ValueVar:    VarOldpeak,
			Enabled:     true,
		},
		{
			ID:          "abnormal-st-slope",
			Description: "Flat or downsloping peak exercise ST segment",
			Expression:  `st_slope in ["Flat", "Down"]`,
			Reason:      "Abnormal ST Slope ({value})",
			ValueVar:    VarSTSlope,
			Enabled:     true,
		},
	}
}
