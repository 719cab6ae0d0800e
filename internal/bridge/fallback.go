package bridge

import "time"

// fallbackDisclaimer is the fixed safety-handling notice spec.md §4.4
// requires on every canned fallback, so a patient never mistakes a
// fallback for clinical advice.
const fallbackDisclaimer = "This is an automated placeholder response. A clinician will review your question; please contact your care team directly if you need help sooner."

// cannedFallback builds the structured fallback AIResponse (spec.md §4.4:
// "tagged source=fallback ... still subject to §4.3 scoring before
// release"). Grounded on the teacher's ruleBasedPredictRisks fallback,
// generalized from a numeric-risk fallback to a draft-text fallback,
// per spec.md §9's "fallback-as-mock" guidance: never pre-approved, always
// re-scored by the caller.
func cannedFallback() AIResponse {
	return AIResponse{
		DraftText: fallbackDisclaimer,
		ModelID:   "fallback",
		Timestamp: time.Now().UTC(),
		Source:    "fallback",
	}
}
