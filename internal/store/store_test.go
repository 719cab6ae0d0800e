package store_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	cerr "github.com/trustcareconnect/cds-core/internal/clinicalerrors"
	"github.com/trustcareconnect/cds-core/internal/models"
	"github.com/trustcareconnect/cds-core/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	return st
}

func TestCreateAndGetPatient(t *testing.T) {
	st := openTestStore(t)
	p, err := st.CreatePatient(models.Patient{FirstName: "Ada", LastName: "Lovelace", Active: true})
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)
	require.Equal(t, 1, p.Version)

	got, err := st.GetPatient(p.ID)
	require.NoError(t, err)
	require.Equal(t, "Ada", got.FirstName)
}

func TestGetPatient_NotFound(t *testing.T) {
	st := openTestStore(t)
	_, err := st.GetPatient("missing")
	require.Error(t, err)
	require.True(t, cerr.Is(err, cerr.NotFound))
}

func TestUpdatePatient_OptimisticConcurrency(t *testing.T) {
	st := openTestStore(t)
	p, err := st.CreatePatient(models.Patient{FirstName: "Ada", Active: true})
	require.NoError(t, err)

	p.FirstName = "Augusta"
	updated, err := st.UpdatePatient(p)
	require.NoError(t, err)
	require.Equal(t, 2, updated.Version)
	require.Equal(t, "Augusta", updated.FirstName)

	_, err = st.UpdatePatient(p)
	require.Error(t, err, "stale version must be rejected")
	require.True(t, cerr.Is(err, cerr.Conflict))
}

func TestCreatePatient_AppendsAuditEntry(t *testing.T) {
	st := openTestStore(t)
	p, err := st.CreatePatient(models.Patient{FirstName: "Ada", Active: true})
	require.NoError(t, err)

	entries, err := st.ListAuditEntries(store.AuditFilter{PatientID: p.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "PATIENT_REGISTERED", entries[0].Action)
}

func TestCreateAndGetClinician(t *testing.T) {
	st := openTestStore(t)
	c, err := st.CreateClinician(models.Clinician{
		Name:        "Dr. Rivera",
		Active:      true,
		Specialties: []models.Specialty{models.NewSpecialty(models.SpecialtyEndocrinology)},
	})
	require.NoError(t, err)

	got, err := st.GetClinician(c.ID)
	require.NoError(t, err)
	require.True(t, got.HasSpecialty(models.NewSpecialty(models.SpecialtyEndocrinology)))
}

func TestListActiveClinicians_ExcludesInactive(t *testing.T) {
	st := openTestStore(t)
	_, err := st.CreateClinician(models.Clinician{Name: "Active Doc", Active: true})
	require.NoError(t, err)
	inactive, err := st.CreateClinician(models.Clinician{Name: "Retired Doc", Active: false})
	require.NoError(t, err)

	active, err := st.ListActiveClinicians()
	require.NoError(t, err)
	for _, c := range active {
		require.NotEqual(t, inactive.ID, c.ID)
	}
}

func TestCountOpenQueriesByClinician(t *testing.T) {
	st := openTestStore(t)
	c, err := st.CreateClinician(models.Clinician{Name: "Doc", Active: true})
	require.NoError(t, err)

	q, err := st.CreateQuery(models.Query{PatientID: "p1", Status: models.StatusAssigned, AssignedClinicianID: models.Known(c.ID)}, "tester")
	require.NoError(t, err)
	_, err = st.CreateQuery(models.Query{PatientID: "p1", Status: models.StatusResolved, AssignedClinicianID: models.Known(c.ID)}, "tester")
	require.NoError(t, err)

	count, err := st.CountOpenQueriesByClinician(c.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.NotEmpty(t, q.ID)
}

func TestCreateQuery_RoundTrip(t *testing.T) {
	st := openTestStore(t)
	q, err := st.CreateQuery(models.Query{
		PatientID:   "p1",
		Title:       "glucose question",
		Status:      models.StatusSubmitted,
		AIAnalysis:  models.Unknown[models.AIAnalysis](),
	}, "tester")
	require.NoError(t, err)

	got, err := st.GetQuery(q.ID)
	require.NoError(t, err)
	require.Equal(t, "glucose question", got.Title)
	require.Equal(t, models.StatusSubmitted, got.Status)
}
