// Package service implements the inbound patient/clinician API of
// spec.md §6: it is the one place that wires C1-C8 together into the
// ten operations a transport layer (out of scope per spec.md §1) would
// expose over HTTP/JSON. DTO validation tags follow the teacher's
// pkg/models.PatientData idiom (go-playground/validator struct tags),
// generalized from the teacher's flat health-risk fields to this
// system's richer patient/vitals/consent shape.
package service

import "time"

// PatientDemographics is the minimal registration payload for
// registerPatient (spec.md §6).
type PatientDemographics struct {
	FirstName   string    `json:"firstName" validate:"required"`
	LastName    string    `json:"lastName" validate:"required"`
	DateOfBirth time.Time `json:"dateOfBirth" validate:"required"`
	Gender      string    `json:"gender" validate:"required,oneof=male female other"`
	BloodType   string    `json:"bloodType" validate:"omitempty,oneof=A+ A- B+ B- AB+ AB- O+ O-"`
}

// ConsentInput is the three consent flags invariant 7 gates on.
type ConsentInput struct {
	Treatment           bool `json:"treatment"`
	PrivacyAcknowledged bool `json:"privacyAcknowledged"`
	DataProcessing      bool `json:"dataProcessing"`
}

// MedicalHistoryInput is the longitudinal-record portion of
// createEnhancedPatient's fullRecord payload.
type MedicalHistoryInput struct {
	Conditions    []string `json:"conditions"`
	Medications   []string `json:"medications"`
	Allergies     []string `json:"allergies"`
	FamilyHistory []string `json:"familyHistory"`
	Surgeries     []string `json:"surgeries"`
}

// CommPrefsInput is the communication-preferences portion of fullRecord.
type CommPrefsInput struct {
	Email             bool   `json:"email"`
	SMS               bool   `json:"sms"`
	Portal            bool   `json:"portal"`
	PreferredLanguage string `json:"preferredLanguage"`
}

// VitalsInput is the optional vitals payload attached to registration or
// a query submission. Pointer fields distinguish "not measured" from a
// measured zero, mirroring models.Optional at the DTO boundary; bounds
// follow the teacher's pkg/models.HealthData range validation, widened
// to plausible clinical extremes rather than the teacher's narrower
// cardiovascular-screening ranges.
type VitalsInput struct {
	GlucoseMgDL  *float64 `json:"glucoseMgDl,omitempty" validate:"omitempty,min=20,max=600"`
	SystolicBP   *int     `json:"systolicBp,omitempty" validate:"omitempty,min=50,max=300"`
	DiastolicBP  *int     `json:"diastolicBp,omitempty" validate:"omitempty,min=30,max=200"`
	HeartRate    *int     `json:"heartRate,omitempty" validate:"omitempty,min=30,max=250"`
	TemperatureC *float64 `json:"temperatureC,omitempty" validate:"omitempty,min=25,max=45"`
	SpO2         *int     `json:"spo2,omitempty" validate:"omitempty,min=50,max=100"`
	WeightKg     *float64 `json:"weightKg,omitempty" validate:"omitempty,min=1,max=500"`
	BMI          *float64 `json:"bmi,omitempty" validate:"omitempty,min=10,max=80"`
}

// EnhancedPatientInput is createEnhancedPatient's fullRecord payload
// (spec.md §6, Open Question (b): the legacy/enhanced registration split
// is kept as two entry points that both build the one Patient shape).
type EnhancedPatientInput struct {
	Demographics       PatientDemographics  `json:"demographics" validate:"required"`
	Consents           ConsentInput         `json:"consents"`
	History            MedicalHistoryInput  `json:"history"`
	Vitals             *VitalsInput         `json:"vitals,omitempty"`
	PrimaryClinicianID string               `json:"primaryClinicianId,omitempty"`
	CommPrefs          CommPrefsInput       `json:"commPrefs"`
}

// SubmitQueryInput is submitQuery/processMedicalQuery's shared payload
// (Open Question (c): both entry points funnel through the same pipeline
// and therefore the same input shape).
type SubmitQueryInput struct {
	PatientID   string       `json:"patientId" validate:"required"`
	Title       string       `json:"title" validate:"required"`
	Description string       `json:"description" validate:"required"`
	Category    string       `json:"category" validate:"omitempty,oneof=general symptom medication follow_up test_results refill appointment emergency second_opinion other"`
	Vitals      *VitalsInput `json:"vitals,omitempty"`
}

// ProcessResult is processMedicalQuery's response shape (spec.md §6).
type ProcessResult struct {
	QueryID         string    `json:"queryId"`
	Content         string    `json:"content"`
	SafetyScore     int       `json:"safetyScore"`
	Urgency         string    `json:"urgency"`
	RequiresReview  bool      `json:"requiresReview"`
	Timestamp       time.Time `json:"timestamp"`
}

// QueryFilter narrows getPatientQueries (spec.md §6 "filter?").
type QueryFilter struct {
	Status string
}
