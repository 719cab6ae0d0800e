package service

import (
	"time"

	"github.com/trustcareconnect/cds-core/internal/models"
)

func demographicsToPatient(d PatientDemographics, consents ConsentInput) models.Patient {
	p := models.Patient{
		FirstName:   d.FirstName,
		LastName:    d.LastName,
		DateOfBirth: d.DateOfBirth,
		Gender:      d.Gender,
		Active:      true,
		Consents: models.ConsentFlags{
			Treatment:           consents.Treatment,
			PrivacyAcknowledged: consents.PrivacyAcknowledged,
			DataProcessing:      consents.DataProcessing,
		},
	}
	if d.BloodType != "" {
		p.BloodType = models.Known(models.BloodType(d.BloodType))
	} else {
		p.BloodType = models.Unknown[models.BloodType]()
	}
	return p
}

func (in VitalsInput) toModel() models.Vitals {
	v := models.Vitals{RecordedAt: models.Known(time.Now().UTC())}
	if in.GlucoseMgDL != nil {
		v.GlucoseMgDL = models.Known(*in.GlucoseMgDL)
	} else {
		v.GlucoseMgDL = models.Unknown[float64]()
	}
	if in.SystolicBP != nil {
		v.SystolicBP = models.Known(*in.SystolicBP)
	} else {
		v.SystolicBP = models.Unknown[int]()
	}
	if in.DiastolicBP != nil {
		v.DiastolicBP = models.Known(*in.DiastolicBP)
	} else {
		v.DiastolicBP = models.Unknown[int]()
	}
	if in.HeartRate != nil {
		v.HeartRate = models.Known(*in.HeartRate)
	} else {
		v.HeartRate = models.Unknown[int]()
	}
	if in.TemperatureC != nil {
		v.TemperatureC = models.Known(*in.TemperatureC)
	} else {
		v.TemperatureC = models.Unknown[float64]()
	}
	if in.SpO2 != nil {
		v.SpO2 = models.Known(*in.SpO2)
	} else {
		v.SpO2 = models.Unknown[int]()
	}
	if in.WeightKg != nil {
		v.WeightKg = models.Known(*in.WeightKg)
	} else {
		v.WeightKg = models.Unknown[float64]()
	}
	if in.BMI != nil {
		v.BMI = models.Known(*in.BMI)
	} else {
		v.BMI = models.Unknown[float64]()
	}
	return v
}

func enhancedToPatient(in EnhancedPatientInput) models.Patient {
	p := demographicsToPatient(in.Demographics, in.Consents)
	p.History = models.MedicalHistory{
		Conditions:    orEmpty(in.History.Conditions),
		Medications:   orEmpty(in.History.Medications),
		Allergies:     orEmpty(in.History.Allergies),
		FamilyHistory: orEmpty(in.History.FamilyHistory),
		Surgeries:     orEmpty(in.History.Surgeries),
	}
	if in.Vitals != nil {
		p.LatestVitals = models.Known(in.Vitals.toModel())
	} else {
		p.LatestVitals = models.Unknown[models.Vitals]()
	}
	if in.PrimaryClinicianID != "" {
		p.PrimaryClinicianID = models.Known(in.PrimaryClinicianID)
	} else {
		p.PrimaryClinicianID = models.Unknown[string]()
	}
	p.CommPrefs = models.CommunicationPreferences{
		Email:             in.CommPrefs.Email,
		SMS:               in.CommPrefs.SMS,
		Portal:            in.CommPrefs.Portal,
		PreferredLanguage: in.CommPrefs.PreferredLanguage,
	}
	return p
}

func orEmpty(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

func categoryOrDefault(s string) models.QueryCategory {
	if s == "" {
		return models.CategoryGeneral
	}
	return models.QueryCategory(s)
}
