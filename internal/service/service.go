package service

import (
	"context"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trustcareconnect/cds-core/internal/assignment"
	"github.com/trustcareconnect/cds-core/internal/audit"
	"github.com/trustcareconnect/cds-core/internal/bridge"
	cerr "github.com/trustcareconnect/cds-core/internal/clinicalerrors"
	"github.com/trustcareconnect/cds-core/internal/config"
	assembler "github.com/trustcareconnect/cds-core/internal/context"
	"github.com/trustcareconnect/cds-core/internal/models"
	"github.com/trustcareconnect/cds-core/internal/scoring"
	"github.com/trustcareconnect/cds-core/internal/statemachine"
	"github.com/trustcareconnect/cds-core/internal/store"
)

// Service implements spec.md §6's inbound patient/clinician API. It is
// the one component that wires the Context Assembler (C2), AI Bridge
// (C4), Safety Scorer (C3), Query State Machine (C5), Assignment &
// Review (C6) and Audit Log (C8) together; every other component is
// independently testable without it. Grounded on the teacher's
// pkg/services/prediction_service.go, which plays the same "one service
// orchestrates every downstream collaborator" role for its own request
// pipeline.
type Service struct {
	cfg      *config.Config
	store    *store.Store
	bridge   *bridge.Bridge
	auditLog *audit.Log
	validate *validator.Validate
}

func New(cfg *config.Config, st *store.Store, br *bridge.Bridge, auditLog *audit.Log) *Service {
	return &Service{cfg: cfg, store: st, bridge: br, auditLog: auditLog, validate: validator.New()}
}

// SubmitQuery implements spec.md §6's submitQuery(patientId, title,
// description, vitals?) -> QueryId | Error. Open Question (c): this is
// also the sole pipeline processMedicalQuery wraps — both entry points
// always go Context Assembler -> AI Bridge -> Safety Scorer -> State
// Machine, synchronously, per spec.md §2's data-flow diagram; there is
// no separate "local scoring only" path.
func (s *Service) SubmitQuery(ctx context.Context, input SubmitQueryInput) (string, error) {
	if err := s.validate.Struct(input); err != nil {
		return "", cerr.Wrap(cerr.Invalid, err, "submitQuery: validation failed")
	}
	if input.Vitals != nil {
		if err := s.validate.Struct(input.Vitals); err != nil {
			return "", cerr.Wrap(cerr.Invalid, err, "submitQuery: vitals validation failed")
		}
	}

	patient, err := s.store.GetPatient(input.PatientID)
	if err != nil {
		return "", err
	}
	if !patient.Consents.AllGranted() {
		return "", cerr.New(cerr.PolicyViolation, "patient %s: consent flags must all be granted before a query may be submitted", patient.ID)
	}

	q := models.Query{
		PatientID:   patient.ID,
		Title:       input.Title,
		Description: input.Description,
		Category:    categoryOrDefault(input.Category),
		Priority:    models.PriorityNormal,
		Status:      models.StatusSubmitted,
	}
	if input.Vitals != nil {
		patient.LatestVitals = models.Known(input.Vitals.toModel())
		updatedPatient, err := s.store.UpdatePatient(patient)
		if err != nil {
			return "", err
		}
		patient = updatedPatient
	}

	created, err := s.store.CreateQuery(q, "patient:"+patient.ID)
	if err != nil {
		return "", err
	}

	if err := s.runPipeline(ctx, &created, patient); err != nil {
		return created.ID, err
	}
	return created.ID, nil
}

// runPipeline assembles context, calls the AI Bridge, scores the result,
// and drives the state machine to `pending` (invariant 4: sets
// humanReviewRequired from the scorer before persisting). It deliberately
// stops at `pending` rather than also auto-assigning a clinician: spec.md
// §4.5's table has ai_completed land on `pending` unconditionally, and
// §8 scenarios 1 and 2 both pin "status after AI = pending" regardless of
// humanReviewRequired, so assignment is left to the separate assign
// event (AssignPendingQuery, or the clinician-initiated TakeQuery).
// runPipeline mutates q in place and persists every step through
// store.UpdateQuery so a failure partway through still leaves q's prior
// steps durable.
func (s *Service) runPipeline(ctx context.Context, q *models.Query, patient models.Patient) error {
	medCtx, err := assembler.Assemble(s.store, patient.ID)
	if err != nil {
		return err
	}

	systemPrompt, userPrompt := buildPrompts(medCtx, q.Title, q.Description)
	conditions, _ := medCtx.Conditions.Get()
	diabetesType := diabetesTypeFromHistory(conditions)
	var glucose models.Optional[float64]
	if v, ok := medCtx.Vitals.Get(); ok {
		glucose = v.GlucoseMgDL
	} else {
		glucose = models.Unknown[float64]()
	}

	resp, err := s.bridge.Request(ctx, q.ID, patient.ID, systemPrompt, userPrompt, diabetesType, glucose)
	if err != nil {
		q.AppendAudit("ai request failed: " + err.Error())
		if _, uerr := s.store.UpdateQuery(*q, "QUERY_AI_REQUEST_FAILED", "system:service"); uerr != nil {
			return uerr
		}
		return err
	}

	var vitalsForScoring models.Optional[models.Vitals]
	if v, ok := medCtx.Vitals.Get(); ok {
		vitalsForScoring = models.Known(v)
	} else {
		vitalsForScoring = models.Unknown[models.Vitals]()
	}
	result := scoring.Score(q.Title+" "+q.Description, resp.DraftText, vitalsForScoring)

	q.AIAnalysis = models.Known(models.AIAnalysis{
		Confidence:         1.0,
		FlaggedSymptoms:    resp.FlaggedSymptoms,
		SuggestedSpecialty: suggestedSpecialty(resp.SuggestedSpecialty),
		RiskLabel:          string(result.Urgency),
		ModelVersion:       resp.ModelID,
		Timestamp:          resp.Timestamp,
	})
	q.AIDraftResponse = models.Known(resp.DraftText)
	q.SafetyScore = models.Known(result.Score)
	q.Urgency = models.Known(result.Urgency)
	// medCtx.RequiresHumanReview is forced true when the Context
	// Assembler could not find the patient record at all (an unknown
	// patient must never be scored as safe); OR it into the scorer's own
	// verdict rather than letting either side silently override the
	// other.
	q.HumanReviewRequired = result.HumanReviewRequired || medCtx.RequiresHumanReview

	next, err := statemachine.Apply(*q, statemachine.Event{Type: statemachine.EventAICompleted})
	if err != nil {
		return err
	}
	next.AppendAudit("ai_completed: score=" + strconv.Itoa(result.Score) + " urgency=" + string(result.Urgency))
	*q = next

	updated, err := s.store.UpdateQuery(*q, "QUERY_AI_PROCESSED", "system:service")
	if err != nil {
		return err
	}
	*q = updated
	return nil
}

// AssignPendingQuery runs C6's selection algorithm (spec.md §4.6) for a
// query currently in `pending` and, if an eligible clinician is found,
// transitions it to `assigned`. Returns ("", nil) without transitioning
// when no eligible clinician exists, leaving the query pending per
// §4.6's closing sentence. This is the separate assign event the table
// names; callers invoke it explicitly (or on a schedule) rather than
// runPipeline doing it implicitly, per the note on runPipeline.
func (s *Service) AssignPendingQuery(queryID string) (string, error) {
	q, err := s.store.GetQuery(queryID)
	if err != nil {
		return "", err
	}
	patient, err := s.store.GetPatient(q.PatientID)
	if err != nil {
		return "", err
	}
	suggested := models.Unknown[models.Specialty]()
	if analysis, ok := q.AIAnalysis.Get(); ok {
		suggested = analysis.SuggestedSpecialty
	}
	clinicianID, err := assignment.Select(s.store, suggested, patient.PrimaryClinicianID, s.cfg.MaxOpenQueriesPerClinician)
	if err != nil {
		return "", err
	}
	if clinicianID == "" {
		return "", nil
	}

	assigned, err := statemachine.Apply(q, statemachine.Event{
		Type:            statemachine.EventAssign,
		ClinicianID:     clinicianID,
		ClinicianActive: true,
	})
	if err != nil {
		return "", err
	}
	assigned.AssignedAt = models.Known(time.Now().UTC())
	assigned.AppendAudit("assigned: clinician=" + clinicianID)

	if _, err := s.store.UpdateQuery(assigned, "QUERY_ASSIGNED", "system:service"); err != nil {
		return "", err
	}
	return clinicianID, nil
}

func suggestedSpecialty(text string) models.Optional[models.Specialty] {
	if text == "" {
		return models.Unknown[models.Specialty]()
	}
	return models.Known(models.OtherSpecialty(text))
}

// ProcessMedicalQuery implements spec.md §6's processMedicalQuery
// (patientId, queryText, vitals?) -> { content, safetyScore, urgency,
// requiresReview, timestamp }: a synchronous convenience wrapper around
// SubmitQuery (Open Question (c)).
func (s *Service) ProcessMedicalQuery(ctx context.Context, patientID, queryText string, vitals *VitalsInput) (ProcessResult, error) {
	queryID, err := s.SubmitQuery(ctx, SubmitQueryInput{
		PatientID:   patientID,
		Title:       "Patient query",
		Description: queryText,
		Vitals:      vitals,
	})
	if err != nil {
		return ProcessResult{}, err
	}
	q, err := s.store.GetQuery(queryID)
	if err != nil {
		return ProcessResult{}, err
	}
	content, _ := q.AIDraftResponse.Get()
	score, _ := q.SafetyScore.Get()
	urgency, _ := q.Urgency.Get()
	return ProcessResult{
		QueryID:        q.ID,
		Content:        content,
		SafetyScore:    score,
		Urgency:        string(urgency),
		RequiresReview: q.HumanReviewRequired,
		Timestamp:      q.UpdatedAt,
	}, nil
}

// TakeQuery implements spec.md §6's takeQuery(queryId, clinicianId) ->
// Ok | Error, "(transitions pending -> in_review)": a clinician claiming
// an unassigned query combines the table's separate assign and
// open_review events into one caller-facing operation.
func (s *Service) TakeQuery(queryID, clinicianID string) error {
	clinician, err := s.store.GetClinician(clinicianID)
	if err != nil {
		return err
	}
	if !clinician.Active {
		return cerr.New(cerr.Invalid, "clinician %s is not active", clinicianID)
	}
	open, err := s.store.CountOpenQueriesByClinician(clinicianID)
	if err != nil {
		return err
	}
	atCapacity := int(open) >= s.cfg.MaxOpenQueriesPerClinician

	q, err := s.store.GetQuery(queryID)
	if err != nil {
		return err
	}

	assigned, err := statemachine.Apply(q, statemachine.Event{
		Type:                statemachine.EventAssign,
		ClinicianID:         clinicianID,
		ClinicianActive:     true,
		ClinicianAtCapacity: atCapacity,
	})
	if err != nil {
		return err
	}
	assigned.AssignedAt = models.Known(time.Now().UTC())
	assigned.AppendAudit("assigned: clinician=" + clinicianID)

	inReview, err := statemachine.Apply(assigned, statemachine.Event{
		Type:     statemachine.EventOpenReview,
		CallerID: clinicianID,
	})
	if err != nil {
		return err
	}
	inReview.AppendAudit("opened for review by clinician=" + clinicianID)

	_, err = s.store.UpdateQuery(inReview, "QUERY_TAKEN", clinicianID)
	return err
}

// RespondToQuery implements spec.md §6's respondToQuery(queryId,
// clinicianId, responseText) -> Ok | Error. A non-empty responseText
// from the assigned clinician while in_review always counts as the
// review-decision event invariant 4 requires in the audit trail before
// resolvedAt is set, whether or not humanReviewRequired is set (the
// state machine only enforces caller-identity when it is).
func (s *Service) RespondToQuery(queryID, clinicianID, responseText string) error {
	q, err := s.store.GetQuery(queryID)
	if err != nil {
		return err
	}
	resolved, err := statemachine.Apply(q, statemachine.Event{
		Type:         statemachine.EventRespond,
		CallerID:     clinicianID,
		ResponseText: responseText,
	})
	if err != nil {
		return err
	}
	resolved.AppendAudit("review_decision: responded by clinician=" + clinicianID)
	resolved.Messages = append(resolved.Messages, models.ResponseMessage{
		ID:          "msg_" + resolved.ID + "_" + strconv.Itoa(len(resolved.Messages)+1),
		ResponderID: clinicianID,
		Text:        responseText,
		IsOfficial:  true,
		Timestamp:   time.Now().UTC(),
	})
	resolved.ResolvedAt = models.Known(time.Now().UTC())
	resolved.RecomputeResponseTime()

	_, err = s.store.UpdateQuery(resolved, "QUERY_RESOLVED", clinicianID)
	return err
}

// ReviewQuery implements spec.md §4.6's {approve, edit, reject} review
// events directly, for callers that want the richer review-decision
// vocabulary rather than respondToQuery's plain text-in/Ok-out shape.
// approve/edit resolve the query (through the same respond event
// RespondToQuery uses); reject escalates it.
func (s *Service) ReviewQuery(queryID, clinicianID string, review assignment.Review) error {
	q, err := s.store.GetQuery(queryID)
	if err != nil {
		return err
	}

	if review.Decision == assignment.DecisionReject {
		escalated, err := statemachine.Apply(q, statemachine.Event{Type: statemachine.EventEscalate})
		if err != nil {
			return err
		}
		escalated.AppendAudit("review_decision: rejected by clinician=" + clinicianID + " note=" + review.Note)
		_, err = s.store.UpdateQuery(escalated, "QUERY_ESCALATED_REVIEW_REJECT", clinicianID)
		return err
	}

	draft, _ := q.AIDraftResponse.Get()
	text, err := assignment.ResolveResponseText(review, draft)
	if err != nil {
		return err
	}
	return s.RespondToQuery(queryID, clinicianID, text)
}

// GetQuery implements spec.md §6's getQuery(queryId) -> Query?.
func (s *Service) GetQuery(queryID string) (models.Query, error) {
	return s.store.GetQuery(queryID)
}

// GetPatientQueries implements spec.md §6's getPatientQueries(patientId,
// filter?) -> paginated list. Pagination is out of scope for the core
// pipeline (transport concern, spec.md §1); filter narrows by status.
func (s *Service) GetPatientQueries(patientID string, filter QueryFilter) ([]models.Query, error) {
	all, err := s.store.ListQueriesByPatient(patientID)
	if err != nil {
		return nil, err
	}
	if filter.Status == "" {
		return all, nil
	}
	out := make([]models.Query, 0, len(all))
	for _, q := range all {
		if string(q.Status) == filter.Status {
			out = append(out, q)
		}
	}
	return out, nil
}

// GetPendingQueries implements spec.md §6's getPendingQueries() -> list.
func (s *Service) GetPendingQueries() ([]models.Query, error) {
	return s.store.ListPendingQueries()
}

// GetPlatformStats implements spec.md §6's getPlatformStats() ->
// aggregate counts + latency metrics.
func (s *Service) GetPlatformStats() (store.PlatformStats, error) {
	return s.store.PlatformStats()
}
