package assignment_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trustcareconnect/cds-core/internal/assignment"
	"github.com/trustcareconnect/cds-core/internal/models"
)

type fakeLookup struct {
	clinicians []models.Clinician
	openCounts map[string]int64
}

func (f *fakeLookup) ListActiveClinicians() ([]models.Clinician, error) {
	return f.clinicians, nil
}

func (f *fakeLookup) CountOpenQueriesByClinician(clinicianID string) (int64, error) {
	return f.openCounts[clinicianID], nil
}

func clinician(id string, specialties ...models.SpecialtyTag) models.Clinician {
	var specs []models.Specialty
	for _, s := range specialties {
		specs = append(specs, models.NewSpecialty(s))
	}
	return models.Clinician{ID: id, Active: true, Specialties: specs}
}

func TestSelect_FiltersBySpecialty(t *testing.T) {
	lookup := &fakeLookup{
		clinicians: []models.Clinician{
			clinician("c1", models.SpecialtyCardiology),
			clinician("c2", models.SpecialtyEndocrinology),
		},
		openCounts: map[string]int64{},
	}
	suggested := models.Known(models.NewSpecialty(models.SpecialtyEndocrinology))

	id, err := assignment.Select(lookup, suggested, models.Unknown[string](), 15)
	require.NoError(t, err)
	require.Equal(t, "c2", id)
}

func TestSelect_PrefersPrimaryClinicianWhenEligible(t *testing.T) {
	lookup := &fakeLookup{
		clinicians: []models.Clinician{
			clinician("c1", models.SpecialtyEndocrinology),
			clinician("c2", models.SpecialtyEndocrinology),
		},
		openCounts: map[string]int64{"c1": 5, "c2": 0},
	}
	suggested := models.Known(models.NewSpecialty(models.SpecialtyEndocrinology))
	primary := models.Known("c1")

	id, err := assignment.Select(lookup, suggested, primary, 15)
	require.NoError(t, err)
	require.Equal(t, "c1", id, "primary clinician preferred even though not least loaded")
}

func TestSelect_FallsBackToLeastLoadedWhenPrimaryAtCapacity(t *testing.T) {
	lookup := &fakeLookup{
		clinicians: []models.Clinician{
			clinician("c1", models.SpecialtyEndocrinology),
			clinician("c2", models.SpecialtyEndocrinology),
		},
		openCounts: map[string]int64{"c1": 15, "c2": 2},
	}
	suggested := models.Known(models.NewSpecialty(models.SpecialtyEndocrinology))
	primary := models.Known("c1")

	id, err := assignment.Select(lookup, suggested, primary, 15)
	require.NoError(t, err)
	require.Equal(t, "c2", id)
}

func TestSelect_TiesBrokenLexicographically(t *testing.T) {
	lookup := &fakeLookup{
		clinicians: []models.Clinician{
			clinician("zeta", models.SpecialtyPrimaryCare),
			clinician("alpha", models.SpecialtyPrimaryCare),
		},
		openCounts: map[string]int64{"zeta": 1, "alpha": 1},
	}
	suggested := models.Known(models.NewSpecialty(models.SpecialtyPrimaryCare))

	id, err := assignment.Select(lookup, suggested, models.Unknown[string](), 15)
	require.NoError(t, err)
	require.Equal(t, "alpha", id)
}

func TestSelect_FallsBackToAllActiveWhenNoSpecialtyMatch(t *testing.T) {
	lookup := &fakeLookup{
		clinicians: []models.Clinician{
			clinician("c1", models.SpecialtyCardiology),
		},
		openCounts: map[string]int64{"c1": 0},
	}
	suggested := models.Known(models.NewSpecialty(models.SpecialtyEndocrinology))

	id, err := assignment.Select(lookup, suggested, models.Unknown[string](), 15)
	require.NoError(t, err)
	require.Equal(t, "c1", id)
}

func TestSelect_NoEligibleClinicianReturnsEmpty(t *testing.T) {
	lookup := &fakeLookup{clinicians: nil, openCounts: map[string]int64{}}

	id, err := assignment.Select(lookup, models.Unknown[models.Specialty](), models.Unknown[string](), 15)
	require.NoError(t, err)
	require.Equal(t, "", id)
}

func TestResolveResponseText(t *testing.T) {
	text, err := assignment.ResolveResponseText(assignment.Review{Decision: assignment.DecisionApprove}, "ai draft")
	require.NoError(t, err)
	require.Equal(t, "ai draft", text)

	text, err = assignment.ResolveResponseText(assignment.Review{Decision: assignment.DecisionEdit, Text: "edited"}, "ai draft")
	require.NoError(t, err)
	require.Equal(t, "edited", text)

	_, err = assignment.ResolveResponseText(assignment.Review{Decision: assignment.DecisionEdit}, "ai draft")
	require.Error(t, err)
}
