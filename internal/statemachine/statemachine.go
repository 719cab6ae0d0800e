// Package statemachine implements C5, the Query State Machine: the pure
// (state, event) -> state transition table of spec.md §4.5. Grounded on
// spec.md §9's explicit design note that transitions belong in one pure
// table rather than scattered conditional updates across the service
// layer — the teacher repo has no equivalent table (it mutates status
// fields ad hoc in its handlers), so this package has no single teacher
// file to generalize and is written directly from the spec's transition
// table; it uses no third-party dependency because a transition table is
// plain control flow, nothing a library would meaningfully wrap.
package statemachine

import (
	"github.com/trustcareconnect/cds-core/internal/clinicalerrors"
	"github.com/trustcareconnect/cds-core/internal/models"
)

// EventType names one of the named transitions in spec.md §4.5's table.
type EventType string

const (
	EventAICompleted        EventType = "ai_completed"
	EventAssign             EventType = "assign"
	EventOpenReview         EventType = "open_review"
	EventRespond            EventType = "respond"
	EventRequestPatientInfo EventType = "request_patient_info"
	EventPatientReplied     EventType = "patient_replied"
	EventEscalate           EventType = "escalate"
	EventReassign           EventType = "reassign"
	EventClose              EventType = "close"
)

// Event carries an EventType plus whatever that transition's table row
// needs checked as a precondition. Fields unused by a given EventType are
// ignored. Availability/capacity facts about the clinician (is it active,
// is it at capacity) are looked up by the caller (C6's concern) and
// passed in here rather than queried by the state machine itself, so this
// package stays a pure function of its inputs.
type Event struct {
	Type EventType

	ClinicianID         string
	ClinicianActive     bool
	ClinicianAtCapacity bool

	CallerID     string
	ResponseText string
}

// Apply evaluates one transition against q's current status and returns
// the Query with Status (and any event-specific fields) updated. It does
// not persist anything and does not append to q's audit trail directly;
// the caller (internal/service) is expected to call q.AppendAudit and
// store.UpdateQuery with the result. Apply never mutates q in place.
func Apply(q models.Query, ev Event) (models.Query, error) {
	switch ev.Type {
	case EventAICompleted:
		return applyAICompleted(q)
	case EventAssign:
		return applyAssign(q, ev)
	case EventOpenReview:
		return applyOpenReview(q, ev)
	case EventRespond:
		return applyRespond(q, ev)
	case EventRequestPatientInfo:
		return applyRequestPatientInfo(q)
	case EventPatientReplied:
		return applyPatientReplied(q)
	case EventEscalate:
		return applyEscalate(q)
	case EventReassign:
		return applyReassign(q, ev)
	case EventClose:
		return applyClose(q)
	default:
		return q, clinicalerrors.New(clinicalerrors.Invalid, "unknown event type %q", ev.Type)
	}
}

// invalidTransition reports an event not permitted from q's current
// status. Spec.md §4.7 names this case "InvalidTransition" for the
// webhook contract specifically; elsewhere it is simply a Conflict
// between the caller's assumed state and the entity's actual state, so
// it shares that Kind rather than introducing a new one.
func invalidTransition(q models.Query, ev Event) error {
	return clinicalerrors.New(clinicalerrors.Conflict,
		"InvalidTransition: query %s: event %q not permitted from status %q", q.ID, ev.Type, q.Status)
}

func applyAICompleted(q models.Query) (models.Query, error) {
	if q.Status != models.StatusSubmitted {
		return q, invalidTransition(q, Event{Type: EventAICompleted})
	}
	if _, ok := q.AIDraftResponse.Get(); !ok {
		return q, clinicalerrors.New(clinicalerrors.Invalid, "query %s: ai_completed requires an AI draft", q.ID)
	}
	if _, ok := q.SafetyScore.Get(); !ok {
		return q, clinicalerrors.New(clinicalerrors.Invalid, "query %s: ai_completed requires a safety score", q.ID)
	}
	q.Status = models.StatusPending
	return q, nil
}

func applyAssign(q models.Query, ev Event) (models.Query, error) {
	if q.Status != models.StatusPending {
		return q, invalidTransition(q, ev)
	}
	if !ev.ClinicianActive {
		return q, clinicalerrors.New(clinicalerrors.Invalid, "clinician %s is not active", ev.ClinicianID)
	}
	if ev.ClinicianAtCapacity {
		return q, clinicalerrors.New(clinicalerrors.Invalid, "clinician %s is at capacity", ev.ClinicianID)
	}
	q.Status = models.StatusAssigned
	q.AssignedClinicianID = models.Known(ev.ClinicianID)
	return q, nil
}

func applyOpenReview(q models.Query, ev Event) (models.Query, error) {
	if q.Status != models.StatusAssigned {
		return q, invalidTransition(q, ev)
	}
	assigned, ok := q.AssignedClinicianID.Get()
	if !ok || assigned != ev.CallerID {
		return q, clinicalerrors.New(clinicalerrors.Unauthorized, "query %s: caller %s is not the assigned clinician", q.ID, ev.CallerID)
	}
	q.Status = models.StatusInReview
	return q, nil
}

// applyRespond implements spec.md §4.5's core safety invariant: a
// transition into resolved that bypasses the humanReviewRequired gate is
// rejected with PolicyViolation, never silently downgraded to a generic
// validation error.
func applyRespond(q models.Query, ev Event) (models.Query, error) {
	if q.Status != models.StatusInReview {
		return q, invalidTransition(q, ev)
	}
	if ev.ResponseText == "" {
		return q, clinicalerrors.New(clinicalerrors.Invalid, "query %s: respond requires non-empty text", q.ID)
	}
	if q.HumanReviewRequired {
		assigned, ok := q.AssignedClinicianID.Get()
		if !ok || assigned != ev.CallerID {
			return q, clinicalerrors.New(clinicalerrors.PolicyViolation,
				"query %s: requires human review by the assigned clinician, caller %s is not eligible", q.ID, ev.CallerID)
		}
	}
	q.Status = models.StatusResolved
	return q, nil
}

func applyRequestPatientInfo(q models.Query) (models.Query, error) {
	if q.Status != models.StatusInReview {
		return q, invalidTransition(q, Event{Type: EventRequestPatientInfo})
	}
	q.Status = models.StatusAwaitingPatientResponse
	return q, nil
}

func applyPatientReplied(q models.Query) (models.Query, error) {
	if q.Status != models.StatusAwaitingPatientResponse {
		return q, invalidTransition(q, Event{Type: EventPatientReplied})
	}
	q.Status = models.StatusInReview
	return q, nil
}

func applyEscalate(q models.Query) (models.Query, error) {
	switch q.Status {
	case models.StatusPending, models.StatusAssigned, models.StatusInReview:
		q.Status = models.StatusEscalated
		return q, nil
	default:
		return q, invalidTransition(q, Event{Type: EventEscalate})
	}
}

func applyReassign(q models.Query, ev Event) (models.Query, error) {
	if q.Status != models.StatusEscalated {
		return q, invalidTransition(q, ev)
	}
	if !ev.ClinicianActive {
		return q, clinicalerrors.New(clinicalerrors.Invalid, "clinician %s is not active", ev.ClinicianID)
	}
	q.Status = models.StatusAssigned
	q.AssignedClinicianID = models.Known(ev.ClinicianID)
	return q, nil
}

func applyClose(q models.Query) (models.Query, error) {
	if q.Status != models.StatusResolved {
		return q, invalidTransition(q, Event{Type: EventClose})
	}
	q.Status = models.StatusClosed
	return q, nil
}
