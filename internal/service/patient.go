package service

import (
	cerr "github.com/trustcareconnect/cds-core/internal/clinicalerrors"
)

// RegisterPatient implements spec.md §6's registerPatient(demographics,
// consents) -> PatientId. Consents may all be false at registration time;
// invariant 7 is enforced later, at submitQuery, not here — a patient is
// allowed to exist without yet being eligible to submit a query.
func (s *Service) RegisterPatient(demographics PatientDemographics, consents ConsentInput) (string, error) {
	if err := s.validate.Struct(demographics); err != nil {
		return "", cerr.Wrap(cerr.Invalid, err, "registerPatient: validation failed")
	}
	p := demographicsToPatient(demographics, consents)
	created, err := s.store.CreatePatient(p)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// CreateEnhancedPatient implements spec.md §6's createEnhancedPatient
// (fullRecord) -> PatientId — Open Question (b): the spec's legacy vs.
// enhanced status-enum split is not carried forward (both paths produce
// the one Patient shape and the one §4.5 status set), but the two
// distinct registration entry points named in §6 are kept, since they
// are a real API-shape distinction (minimal vs. full intake), not a
// status-enum duplication.
func (s *Service) CreateEnhancedPatient(input EnhancedPatientInput) (string, error) {
	if err := s.validate.Struct(input.Demographics); err != nil {
		return "", cerr.Wrap(cerr.Invalid, err, "createEnhancedPatient: validation failed")
	}
	if input.Vitals != nil {
		if err := s.validate.Struct(input.Vitals); err != nil {
			return "", cerr.Wrap(cerr.Invalid, err, "createEnhancedPatient: vitals validation failed")
		}
	}
	p := enhancedToPatient(input)
	created, err := s.store.CreatePatient(p)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}
