// Package scoring implements C3, the Safety Scorer: a pure deterministic
// function over query text, optional vitals, and an optional AI response,
// producing an integer safety score in [0,100] and a categorical urgency
// label. Grounded on the teacher's pkg/services/prediction_service.go
// (which folds vitals + free text into a single risk computation) and the
// teacher's checkMedications substring scan, generalized here into the
// medication-ambiguity deduction.
package scoring

import (
	"strings"

	"github.com/trustcareconnect/cds-core/internal/models"
)

// Deduction is one applied rule, kept for audit/explainability — the AI
// Bridge's prompt construction and the audit trail both benefit from
// knowing *why* a score landed where it did, not just the final number.
type Deduction struct {
	Reason string
	Amount int
}

// Result is the Safety Scorer's full output.
type Result struct {
	Score               int
	Urgency             models.Urgency
	HumanReviewRequired bool
	Deductions          []Deduction
}

// criticalKeywords carries a specific deduction within the spec's 60-70
// range per keyword rather than one flat number, so two different critical
// presentations are not treated as identically severe; the exact value
// chosen per keyword is a judgment call (no scenario pins a critical-
// keyword deduction directly) documented in DESIGN.md.
var criticalKeywords = []Deduction{
	{"chest pain", 70},
	{"difficulty breathing", 70},
	{"unconscious", 70},
	{"seizure", 70},
	{"severe bleeding", 65},
	{"stroke", 70},
	{"heart attack", 70},
	{"collapse", 65},
	{"severe abdominal pain", 60},
	{"severe headache", 60},
	{"vision loss", 60},
	{"inability to speak", 65},
	{"numbness on one side", 60},
}

// medicationKeywords flags ambiguous or risky medication self-management
// language. "double" (bare) and "double my" are kept alongside the
// spec's literal "double dose" phrase so common patient phrasing like
// "should I double my metformin" is caught, not just the exact phrase.
var medicationKeywords = []string{
	"stop medication", "quit drug", "discontinue", "skip insulin",
	"double dose", "double my", "doubling my", "double", "take extra pills",
}

// urgencyWording signals the patient already perceives this as urgent.
var urgencyWording = []string{"emergency", "urgent", "immediately", "right away", "hospital now"}

// symptomMarkers covers both infection signs from spec.md §4.3 and
// hypoglycemia-corroborating symptoms (dizziness, shakiness) the teacher's
// risk computation treats as reinforcing a vitals-based finding rather
// than standing alone; generalized from the spec's "infection markers"
// bullet into one "accompanying symptom markers" bucket.
var symptomMarkers = []string{"fever", "infection", "pus", "wound", "sore", "dizzy", "dizziness", "shaky", "shakiness", "lightheaded"}

var moderateRiskMarkers = []string{"fever", "pain", "monitor", "concern"}

var pregnancyWords = []string{"pregnant", "pregnancy"}

// Score computes the deterministic result. vitals is Unknown when no
// vitals were supplied with the query (spec.md §4.3's bands simply do not
// fire in that case — an absent vitals reading is not treated as a normal
// one).
func Score(queryText, aiResponseText string, vitals models.Optional[models.Vitals]) Result {
	combined := strings.ToLower(queryText + " " + aiResponseText)
	total := 0
	var deductions []Deduction

	if d, ok := firstKeywordMatch(combined, criticalKeywords); ok {
		total += d.Amount
		deductions = append(deductions, d)
	}

	v, haveVitals := vitals.Get()
	if haveVitals {
		if d, ok := glucoseDeduction(v.GlucoseMgDL); ok {
			total += d.Amount
			deductions = append(deductions, d)
		}
		if d, ok := temperatureDeduction(v.TemperatureC); ok {
			total += d.Amount
			deductions = append(deductions, d)
		}
		if d, ok := heartRateDeduction(v.HeartRate); ok {
			total += d.Amount
			deductions = append(deductions, d)
		}
		if d, ok := systolicDeduction(v.SystolicBP); ok {
			total += d.Amount
			deductions = append(deductions, d)
		}
	}

	if amount, label, ok := firstStringMatch(combined, medicationKeywords, 35); ok {
		d := Deduction{label, amount}
		total += d.Amount
		deductions = append(deductions, d)
	}
	if containsAny(combined, urgencyWording) {
		d := Deduction{"urgency wording present", 20}
		total += d.Amount
		deductions = append(deductions, d)
	}
	if containsAny(combined, pregnancyWords) {
		d := Deduction{"pregnancy mentioned", 25}
		total += d.Amount
		deductions = append(deductions, d)
	}
	if amount, label, ok := firstStringMatch(combined, symptomMarkers, 15); ok {
		d := Deduction{label, amount}
		total += d.Amount
		deductions = append(deductions, d)
	}

	score := 100 - total
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	urgency := determineUrgency(score, combined, v, haveVitals)
	return Result{
		Score:               score,
		Urgency:             urgency,
		HumanReviewRequired: score < 70 || urgency == models.UrgencyHigh,
		Deductions:          deductions,
	}
}

func determineUrgency(score int, combined string, v models.Vitals, haveVitals bool) models.Urgency {
	if _, ok := firstKeywordMatch(combined, criticalKeywords); ok {
		return models.UrgencyHigh
	}
	if haveVitals {
		if g, ok := v.GlucoseMgDL.Get(); ok && (g < 70 || g > 300) {
			return models.UrgencyHigh
		}
		if s, ok := v.SystolicBP.Get(); ok && (s > 180 || s < 90) {
			return models.UrgencyHigh
		}
	}
	if score < 40 {
		return models.UrgencyHigh
	}
	if score < 70 || containsAny(combined, moderateRiskMarkers) {
		return models.UrgencyMedium
	}
	return models.UrgencyLow
}

func firstKeywordMatch(text string, table []Deduction) (Deduction, bool) {
	for _, d := range table {
		if strings.Contains(text, d.Reason) {
			return d, true
		}
	}
	return Deduction{}, false
}

func firstStringMatch(text string, words []string, amount int) (int, string, bool) {
	for _, w := range words {
		if strings.Contains(text, w) {
			return amount, w + " present", true
		}
	}
	return 0, "", false
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func glucoseDeduction(g models.Optional[float64]) (Deduction, bool) {
	v, ok := g.Get()
	if !ok {
		return Deduction{}, false
	}
	switch {
	case v < 54:
		return Deduction{"glucose < 54", 60}, true
	case v < 70:
		return Deduction{"glucose 54-69", 40}, true
	case v > 400:
		return Deduction{"glucose > 400", 55}, true
	case v > 300:
		return Deduction{"glucose 301-400", 35}, true
	case v > 250:
		return Deduction{"glucose 251-300", 25}, true
	default:
		return Deduction{}, false
	}
}

func temperatureDeduction(t models.Optional[float64]) (Deduction, bool) {
	v, ok := t.Get()
	if !ok {
		return Deduction{}, false
	}
	switch {
	case v > 40 || v < 35:
		return Deduction{"temperature extreme", 30}, true
	case (v > 38.5 && v <= 40) || (v >= 35 && v < 36):
		return Deduction{"temperature elevated/low", 15}, true
	default:
		return Deduction{}, false
	}
}

func heartRateDeduction(hr models.Optional[int]) (Deduction, bool) {
	v, ok := hr.Get()
	if !ok {
		return Deduction{}, false
	}
	if v > 120 || v < 50 {
		return Deduction{"heart rate out of band", 20}, true
	}
	return Deduction{}, false
}

func systolicDeduction(s models.Optional[int]) (Deduction, bool) {
	v, ok := s.Get()
	if !ok {
		return Deduction{}, false
	}
	if v > 180 || v < 90 {
		return Deduction{"systolic BP out of band", 25}, true
	}
	return Deduction{}, false
}
