// Package assignment implements C6, Assignment & Review: the clinician
// selection algorithm of spec.md §4.6 and the review-decision events
// {approve, edit, reject}. Grounded on the teacher's specialty-aware
// clinician model (pkg/models Specialties field, reused verbatim as
// models.Specialty here) and its RAG-lite context plumbing's preference
// for matching on structured fields before falling back to a general
// pool; no third-party dependency, this is plain selection logic over
// data the Record Store already returns sorted.
package assignment

import (
	"sort"

	cerr "github.com/trustcareconnect/cds-core/internal/clinicalerrors"
	"github.com/trustcareconnect/cds-core/internal/models"
	"github.com/trustcareconnect/cds-core/internal/store"
)

// ClinicianLookup is the subset of *store.Store assignment needs, so
// tests can substitute an in-memory fake.
type ClinicianLookup interface {
	ListActiveClinicians() ([]models.Clinician, error)
	CountOpenQueriesByClinician(clinicianID string) (int64, error)
}

var _ ClinicianLookup = (*store.Store)(nil)

// Select runs spec.md §4.6's selection algorithm: specialty filter →
// patient's primary-clinician preference → least-open-queue tiebreak
// (ties broken lexicographically by ID). maxOpenQueries gates whether a
// candidate counts as "at capacity"; candidates at capacity are skipped
// rather than merely deprioritized, matching the state machine's
// "clinician active; not at capacity" precondition (spec.md §4.5). It
// returns ("", nil) — not an error — when no eligible clinician exists;
// the caller leaves the query pending per spec.md §4.6's closing
// sentence ("the query remains pending; the reconciler re-attempts
// assignment on clinician activation events").
func Select(st ClinicianLookup, suggested models.Optional[models.Specialty], primaryClinicianID models.Optional[string], maxOpenQueries int) (string, error) {
	active, err := st.ListActiveClinicians()
	if err != nil {
		return "", cerr.Wrap(cerr.Unavailable, err, "list active clinicians")
	}

	pool := filterBySpecialty(active, suggested)
	if len(pool) == 0 {
		pool = active
	}

	if primary, ok := primaryClinicianID.Get(); ok {
		for _, c := range pool {
			if c.ID == primary {
				atCapacity, err := isAtCapacity(st, c.ID, maxOpenQueries)
				if err != nil {
					return "", err
				}
				if !atCapacity {
					return c.ID, nil
				}
				break
			}
		}
	}

	return leastLoaded(st, pool, maxOpenQueries)
}

func filterBySpecialty(clinicians []models.Clinician, suggested models.Optional[models.Specialty]) []models.Clinician {
	spec, ok := suggested.Get()
	if !ok {
		return nil
	}
	var out []models.Clinician
	for _, c := range clinicians {
		if c.HasSpecialty(spec) {
			out = append(out, c)
		}
	}
	return out
}

func isAtCapacity(st ClinicianLookup, clinicianID string, maxOpenQueries int) (bool, error) {
	open, err := st.CountOpenQueriesByClinician(clinicianID)
	if err != nil {
		return false, cerr.Wrap(cerr.Unavailable, err, "count open queries for clinician %s", clinicianID)
	}
	return int(open) >= maxOpenQueries, nil
}

// leastLoaded picks the candidate with the fewest open queries, ties
// broken lexicographically by ID, skipping anyone at capacity.
func leastLoaded(st ClinicianLookup, pool []models.Clinician, maxOpenQueries int) (string, error) {
	type candidate struct {
		id   string
		open int64
	}
	var candidates []candidate
	for _, c := range pool {
		open, err := st.CountOpenQueriesByClinician(c.ID)
		if err != nil {
			return "", cerr.Wrap(cerr.Unavailable, err, "count open queries for clinician %s", c.ID)
		}
		if int(open) >= maxOpenQueries {
			continue
		}
		candidates = append(candidates, candidate{id: c.ID, open: open})
	}
	if len(candidates) == 0 {
		return "", nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].open != candidates[j].open {
			return candidates[i].open < candidates[j].open
		}
		return candidates[i].id < candidates[j].id
	})
	return candidates[0].id, nil
}

// Decision is one of the three review-decision events spec.md §4.6
// names: approve releases the AI draft verbatim, edit replaces the
// response text, reject escalates the query.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionEdit    Decision = "edit"
	DecisionReject  Decision = "reject"
)

// Review is one reviewer action: a Decision plus (for edit) replacement
// text and the free-text note spec.md §4.6 requires be recorded into the
// audit trail alongside reviewer identifier and timestamp.
type Review struct {
	Decision Decision
	Text     string
	Note     string
}

// ResolveResponseText returns the text that should be released as the
// Query's resolved response for a given review decision, given the AI's
// original draft. It does not itself persist or transition anything;
// internal/service wires this into statemachine.Apply's respond event.
func ResolveResponseText(r Review, aiDraft string) (string, error) {
	switch r.Decision {
	case DecisionApprove:
		return aiDraft, nil
	case DecisionEdit:
		if r.Text == "" {
			return "", cerr.New(cerr.Invalid, "edit decision requires replacement text")
		}
		return r.Text, nil
	case DecisionReject:
		return "", nil
	default:
		return "", cerr.New(cerr.Invalid, "unknown review decision %q", r.Decision)
	}
}
