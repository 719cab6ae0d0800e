package service

import (
	"fmt"
	"strings"

	assembler "github.com/trustcareconnect/cds-core/internal/context"
	"github.com/trustcareconnect/cds-core/internal/models"
)

// buildPrompts turns a MedicalContext plus the patient's free-text query
// into the outbound LLM contract's two message bodies (spec.md §6
// "messages:[system,user]"). Grounded on the teacher's
// prediction_service.go practice of folding every gathered patient field
// into one request payload before calling the model, adapted from a
// fixed-schema ML feature vector to free text since the outbound
// contract here is a natural-language chat completion, not a classifier
// call.
func buildPrompts(medCtx assembler.MedicalContext, title, description string) (systemPrompt, userPrompt string) {
	var sb strings.Builder
	sb.WriteString("You are a clinical decision support assistant for diabetes care. ")
	sb.WriteString("You draft a response for a licensed clinician to review before it reaches the patient; ")
	sb.WriteString("you never present yourself as a doctor and you never finalize treatment decisions.\n\n")
	sb.WriteString("Patient context:\n")
	fmt.Fprintf(&sb, "- age bucket: %s\n", models.Token(medCtx.AgeBucket, identity))
	fmt.Fprintf(&sb, "- gender: %s\n", models.Token(medCtx.Gender, identity))
	fmt.Fprintf(&sb, "- conditions: %s\n", models.Token(medCtx.Conditions, joinStrings))
	fmt.Fprintf(&sb, "- medications: %s\n", models.Token(medCtx.Medications, joinStrings))
	fmt.Fprintf(&sb, "- allergies: %s\n", models.Token(medCtx.Allergies, joinStrings))
	if v, ok := medCtx.Vitals.Get(); ok {
		fmt.Fprintf(&sb, "- most recent vitals: %s\n", describeVitals(v))
	} else {
		sb.WriteString("- most recent vitals: unknown\n")
	}
	if len(medCtx.SimilarCases) > 0 {
		sb.WriteString("- similar past cases on file, for context only, not for copying verbatim\n")
	}

	var ub strings.Builder
	fmt.Fprintf(&ub, "Query title: %s\n", title)
	fmt.Fprintf(&ub, "Query: %s\n", description)
	return sb.String(), ub.String()
}

func identity(s string) string { return s }

func joinStrings(ss []string) string {
	if len(ss) == 0 {
		return "none recorded"
	}
	return strings.Join(ss, ", ")
}

func describeVitals(v models.Vitals) string {
	parts := make([]string, 0, 4)
	if g, ok := v.GlucoseMgDL.Get(); ok {
		parts = append(parts, fmt.Sprintf("glucose %.0f mg/dL", g))
	}
	if s, ok := v.SystolicBP.Get(); ok {
		if d, ok2 := v.DiastolicBP.Get(); ok2 {
			parts = append(parts, fmt.Sprintf("BP %d/%d", s, d))
		}
	}
	if hr, ok := v.HeartRate.Get(); ok {
		parts = append(parts, fmt.Sprintf("HR %d", hr))
	}
	if t, ok := v.TemperatureC.Get(); ok {
		parts = append(parts, fmt.Sprintf("temp %.1fC", t))
	}
	if len(parts) == 0 {
		return "none recorded"
	}
	return strings.Join(parts, ", ")
}

// diabetesTypeFromHistory derives the coarse diabetes-type token the
// bridge's cache key partitions on (spec.md §4.4), by scanning the
// patient's recorded conditions; defaults to "unspecified" when the
// history does not name a type.
func diabetesTypeFromHistory(conditions []string) string {
	for _, c := range conditions {
		lower := strings.ToLower(c)
		if strings.Contains(lower, "type 1") {
			return "type1"
		}
		if strings.Contains(lower, "type 2") {
			return "type2"
		}
		if strings.Contains(lower, "gestational") {
			return "gestational"
		}
	}
	return "unspecified"
}
