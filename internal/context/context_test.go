package context_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	assembler "github.com/trustcareconnect/cds-core/internal/context"
	"github.com/trustcareconnect/cds-core/internal/models"
	"github.com/trustcareconnect/cds-core/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	return st
}

func TestAssemble_UnknownPatientForcesReview(t *testing.T) {
	st := openTestStore(t)

	ctx, err := assembler.Assemble(st, "pat_does_not_exist")
	require.NoError(t, err)

	require.True(t, ctx.RequiresHumanReview)
	_, known := ctx.AgeBucket.Get()
	require.False(t, known)
	_, known = ctx.Conditions.Get()
	require.False(t, known)
	require.Empty(t, ctx.SimilarCases)
}

func TestAssemble_KnownPatient(t *testing.T) {
	st := openTestStore(t)
	patient := models.Patient{
		FirstName:   "Ada",
		LastName:    "Lovelace",
		DateOfBirth: time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC),
		Gender:      "female",
		Active:      true,
		History: models.MedicalHistory{
			Conditions:  []string{"type 2 diabetes"},
			Medications: []string{"metformin"},
		},
		Consents: models.ConsentFlags{Treatment: true, PrivacyAcknowledged: true, DataProcessing: true},
	}
	created, err := st.CreatePatient(patient)
	require.NoError(t, err)

	ctx, err := assembler.Assemble(st, created.ID)
	require.NoError(t, err)

	require.False(t, ctx.RequiresHumanReview)
	gender, ok := ctx.Gender.Get()
	require.True(t, ok)
	require.Equal(t, "female", gender)

	conditions, ok := ctx.Conditions.Get()
	require.True(t, ok)
	require.Equal(t, []string{"type 2 diabetes"}, conditions)

	vitals, ok := ctx.Vitals.Get()
	require.False(t, ok)
	require.Equal(t, models.Vitals{}, vitals)
}

func TestAssemble_VitalsKnownWhenPresent(t *testing.T) {
	st := openTestStore(t)
	patient := models.Patient{
		FirstName:   "Grace",
		LastName:    "Hopper",
		DateOfBirth: time.Date(1960, 5, 5, 0, 0, 0, 0, time.UTC),
		Active:      true,
		LatestVitals: models.Known(models.Vitals{
			GlucoseMgDL: models.Known(140.0),
		}),
	}
	created, err := st.CreatePatient(patient)
	require.NoError(t, err)

	ctx, err := assembler.Assemble(st, created.ID)
	require.NoError(t, err)

	vitals, ok := ctx.Vitals.Get()
	require.True(t, ok)
	glucose, ok := vitals.GlucoseMgDL.Get()
	require.True(t, ok)
	require.Equal(t, 140.0, glucose)
}
