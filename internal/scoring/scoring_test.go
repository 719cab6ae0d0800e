package scoring_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trustcareconnect/cds-core/internal/models"
	"github.com/trustcareconnect/cds-core/internal/scoring"
)

func vitalsWithGlucose(g float64) models.Optional[models.Vitals] {
	return models.Known(models.Vitals{GlucoseMgDL: models.Known(g)})
}

func TestScore_SevereHypoglycemia(t *testing.T) {
	result := scoring.Score("I feel shaky and dizzy", "", vitalsWithGlucose(52))

	require.Equal(t, 25, result.Score)
	require.Equal(t, models.UrgencyHigh, result.Urgency)
	require.True(t, result.HumanReviewRequired)
}

func TestScore_RoutineFollowUp(t *testing.T) {
	result := scoring.Score("Scheduling my next check-up", "", models.Unknown[models.Vitals]())

	require.Equal(t, 100, result.Score)
	require.Equal(t, models.UrgencyLow, result.Urgency)
	require.False(t, result.HumanReviewRequired)
}

func TestScore_HyperglycemiaWithMedicationAmbiguity(t *testing.T) {
	result := scoring.Score("Morning glucose is 310, should I double my metformin?", "", vitalsWithGlucose(310))

	require.Equal(t, 30, result.Score)
	require.Equal(t, models.UrgencyHigh, result.Urgency)
	require.True(t, result.HumanReviewRequired)
}

func TestScore_IsPure(t *testing.T) {
	a := scoring.Score("chest pain and collapse", "", vitalsWithGlucose(310))
	b := scoring.Score("chest pain and collapse", "", vitalsWithGlucose(310))
	require.Equal(t, a, b)
}

func TestScore_ClampsToZero(t *testing.T) {
	result := scoring.Score("chest pain, stroke, seizure, stop medication, emergency, pregnant, fever", "",
		models.Known(models.Vitals{
			GlucoseMgDL:  models.Known(500.0),
			TemperatureC: models.Known(41.0),
			HeartRate:    models.Known(160),
			SystolicBP:   models.Known(220),
		}))

	require.Equal(t, 0, result.Score)
	require.Equal(t, models.UrgencyHigh, result.Urgency)
}

func TestScore_NoVitalsSkipsBandDeductions(t *testing.T) {
	result := scoring.Score("just a general question", "", models.Unknown[models.Vitals]())
	require.Equal(t, 100, result.Score)
	require.Empty(t, result.Deductions)
}
