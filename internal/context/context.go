// Package context implements C2, the Context Assembler: it turns a bare
// patient identifier into a normalized MedicalContext document consumed by
// the Safety Scorer and the AI Bridge's prompt construction. Grounded on
// the teacher's pkg/services/prediction_service.go (which gathers patient
// fields into a single request struct before scoring) and
// internal/services/rag_service.go (nearest-neighbour retrieval of
// similar past cases, reused here as the similarCases field).
package context

import (
	"strings"
	"time"

	cerr "github.com/trustcareconnect/cds-core/internal/clinicalerrors"
	"github.com/trustcareconnect/cds-core/internal/models"
	"github.com/trustcareconnect/cds-core/internal/store"
)

// MedicalContext is the Context Assembler's sole output shape (spec.md
// §4.2). Every field the source record might not carry is Optional, never
// silently omitted: a caller can always distinguish "patient has no known
// allergies" (Known([])) from "allergy status unknown" (Unknown).
type MedicalContext struct {
	PatientID           string
	AgeBucket           models.Optional[string]
	Gender              models.Optional[string]
	Conditions          models.Optional[[]string]
	Medications         models.Optional[[]string]
	Allergies           models.Optional[[]string]
	FamilyHistory       models.Optional[[]string]
	Vitals              models.Optional[models.Vitals]
	PrimaryClinicianID  models.Optional[string]
	SimilarCases        []SimilarCase
	RequiresHumanReview bool
}

// SimilarCase is one nearest-neighbour hit surfaced for prompt grounding;
// it is enrichment, not identity data, so it carries no Optional wrapping
// of its own — an empty SimilarCases slice just means none were found.
type SimilarCase struct {
	QueryID  string
	Category models.QueryCategory
	Urgency  models.Urgency
	Summary  string
}

const similarCaseLimit = 5

// Assemble builds the MedicalContext for patientID. A patient not found in
// the Record Store is not treated as an error: spec.md §4.2 requires the
// assembler to produce a minimal all-unknown context in that case, which
// forces RequiresHumanReview so the rest of the pipeline never silently
// treats an absent record as a clean bill of health. Any other store
// failure (Unavailable) is propagated, since it is not safe to proceed
// blind when the failure mode is unknown.
func Assemble(st *store.Store, patientID string) (MedicalContext, error) {
	patient, err := st.GetPatient(patientID)
	if err != nil {
		if cerr.Is(err, cerr.NotFound) {
			return unknownContext(patientID), nil
		}
		return MedicalContext{}, err
	}

	ctx := MedicalContext{
		PatientID:           patientID,
		AgeBucket:           models.Known(ageBucket(patient.AgeYears(time.Now().UTC()))),
		Gender:              known(patient.Gender),
		Conditions:          models.Known(orEmpty(patient.History.Conditions)),
		Medications:         models.Known(orEmpty(patient.History.Medications)),
		Allergies:           models.Known(orEmpty(patient.History.Allergies)),
		FamilyHistory:       models.Known(orEmpty(patient.History.FamilyHistory)),
		PrimaryClinicianID:  patient.PrimaryClinicianID,
		RequiresHumanReview: false,
	}
	if v, ok := patient.LatestVitals.Get(); ok {
		ctx.Vitals = models.Known(v)
	} else {
		ctx.Vitals = models.Unknown[models.Vitals]()
	}

	ctx.SimilarCases = similarCases(st, patient)
	return ctx, nil
}

func unknownContext(patientID string) MedicalContext {
	return MedicalContext{
		PatientID:           patientID,
		AgeBucket:           models.Unknown[string](),
		Gender:              models.Unknown[string](),
		Conditions:          models.Unknown[[]string](),
		Medications:         models.Unknown[[]string](),
		Allergies:           models.Unknown[[]string](),
		FamilyHistory:       models.Unknown[[]string](),
		Vitals:              models.Unknown[models.Vitals](),
		PrimaryClinicianID:  models.Unknown[string](),
		SimilarCases:        nil,
		RequiresHumanReview: true,
	}
}

func known(s string) models.Optional[string] {
	if strings.TrimSpace(s) == "" {
		return models.Unknown[string]()
	}
	return models.Known(s)
}

func orEmpty(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

// ageBucket mirrors the coarse age bands clinicians already triage by,
// rather than leaking an exact age into the prompt/scoring path.
func ageBucket(years int) string {
	switch {
	case years < 18:
		return "0-17"
	case years < 30:
		return "18-29"
	case years < 45:
		return "30-44"
	case years < 60:
		return "45-59"
	case years < 75:
		return "60-74"
	default:
		return "75+"
	}
}

// similarCases is the RAG-lite nearest-neighbour pass: scan recently
// resolved queries across all patients and keep the ones that share a
// flagged symptom or condition with the current patient's history. It is
// deliberately not a vector search (grounded on the teacher's
// internal/services/rag_service.go, adapted from embedding similarity to a
// cheap keyword-overlap scan per SPEC_FULL.md's dropped vector-store
// dependency).
func similarCases(st *store.Store, patient models.Patient) []SimilarCase {
	candidates, err := st.ListRecentResolvedQueries(50)
	if err != nil {
		return nil
	}
	terms := make(map[string]struct{}, len(patient.History.Conditions))
	for _, c := range patient.History.Conditions {
		terms[strings.ToLower(c)] = struct{}{}
	}
	if len(terms) == 0 {
		return nil
	}

	out := make([]SimilarCase, 0, similarCaseLimit)
	for _, q := range candidates {
		if q.PatientID == patient.ID {
			continue
		}
		analysis, ok := q.AIAnalysis.Get()
		if !ok {
			continue
		}
		if !overlaps(terms, analysis.FlaggedSymptoms) {
			continue
		}
		urgency, _ := q.Urgency.Get()
		out = append(out, SimilarCase{
			QueryID:  q.ID,
			Category: q.Category,
			Urgency:  urgency,
			Summary:  q.Title,
		})
		if len(out) == similarCaseLimit {
			break
		}
	}
	return out
}

func overlaps(terms map[string]struct{}, symptoms []string) bool {
	for _, s := range symptoms {
		if _, ok := terms[strings.ToLower(s)]; ok {
			return true
		}
	}
	return false
}
