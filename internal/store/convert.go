package store

import (
	"encoding/json"
	"time"

	"github.com/trustcareconnect/cds-core/internal/models"
)

func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func unmarshalJSON[T any](s string, out *T) {
	if s == "" {
		return
	}
	_ = json.Unmarshal([]byte(s), out)
}

func patientToRow(p models.Patient) patientRow {
	row := patientRow{
		ID:                 p.ID,
		Version:            p.Version,
		FirstName:          p.FirstName,
		LastName:           p.LastName,
		DateOfBirth:        p.DateOfBirth,
		Gender:             p.Gender,
		HistoryJSON:        marshalJSON(p.History),
		Active:             p.Active,
		ConsentTreatment:   p.Consents.Treatment,
		ConsentPrivacy:     p.Consents.PrivacyAcknowledged,
		ConsentDataProc:    p.Consents.DataProcessing,
		CommPrefsJSON:      marshalJSON(p.CommPrefs),
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
	if bt, ok := p.BloodType.Get(); ok {
		row.BloodTypeKnown = true
		row.BloodType = string(bt)
	}
	if v, ok := p.LatestVitals.Get(); ok {
		row.VitalsKnown = true
		row.VitalsJSON = marshalJSON(v)
	}
	if cid, ok := p.PrimaryClinicianID.Get(); ok {
		row.HasPrimaryClinician = true
		row.PrimaryClinicianID = cid
	}
	return row
}

func rowToPatient(row patientRow) models.Patient {
	p := models.Patient{
		ID:          row.ID,
		Version:     row.Version,
		FirstName:   row.FirstName,
		LastName:    row.LastName,
		DateOfBirth: row.DateOfBirth,
		Gender:      row.Gender,
		Active:      row.Active,
		Consents: models.ConsentFlags{
			Treatment:           row.ConsentTreatment,
			PrivacyAcknowledged: row.ConsentPrivacy,
			DataProcessing:      row.ConsentDataProc,
		},
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
		BloodType: models.Unknown[models.BloodType](),
		LatestVitals: models.Unknown[models.Vitals](),
		PrimaryClinicianID: models.Unknown[string](),
	}
	unmarshalJSON(row.HistoryJSON, &p.History)
	unmarshalJSON(row.CommPrefsJSON, &p.CommPrefs)
	if row.BloodTypeKnown {
		p.BloodType = models.Known(models.BloodType(row.BloodType))
	}
	if row.VitalsKnown {
		var v models.Vitals
		unmarshalJSON(row.VitalsJSON, &v)
		p.LatestVitals = models.Known(v)
	}
	if row.HasPrimaryClinician {
		p.PrimaryClinicianID = models.Known(row.PrimaryClinicianID)
	}
	return p
}

func clinicianToRow(c models.Clinician) clinicianRow {
	return clinicianRow{
		ID:              c.ID,
		Version:         c.Version,
		Name:            c.Name,
		SpecialtiesJSON: marshalJSON(specialtiesToDTO(c.Specialties)),
		LicenseInfo:     c.LicenseInfo,
		LastSeenAt:      c.LastSeenAt,
		Active:          c.Active,
	}
}

// specialtyDTO is the JSON-serializable shape of models.Specialty, which
// otherwise hides its fields behind accessors on purpose.
type specialtyDTO struct {
	Tag   models.SpecialtyTag `json:"tag"`
	Other string              `json:"other,omitempty"`
}

func specialtiesToDTO(specs []models.Specialty) []specialtyDTO {
	out := make([]specialtyDTO, 0, len(specs))
	for _, s := range specs {
		out = append(out, specialtyDTO{Tag: s.Tag(), Other: s.Text()})
	}
	return out
}

func rowToClinician(row clinicianRow) models.Clinician {
	var dtos []specialtyDTO
	unmarshalJSON(row.SpecialtiesJSON, &dtos)
	specs := make([]models.Specialty, 0, len(dtos))
	for _, d := range dtos {
		if d.Tag == models.SpecialtyOther {
			specs = append(specs, models.OtherSpecialty(d.Other))
		} else {
			specs = append(specs, models.NewSpecialty(d.Tag))
		}
	}
	return models.Clinician{
		ID:          row.ID,
		Version:     row.Version,
		Name:        row.Name,
		Specialties: specs,
		LicenseInfo: row.LicenseInfo,
		LastSeenAt:  row.LastSeenAt,
		Active:      row.Active,
	}
}

func queryToRow(q models.Query) queryRow {
	row := queryRow{
		ID:                  q.ID,
		Version:             q.Version,
		PatientID:           q.PatientID,
		Title:               q.Title,
		Description:         q.Description,
		Category:            string(q.Category),
		Priority:            string(q.Priority),
		Status:              string(q.Status),
		HumanReviewRequired: q.HumanReviewRequired,
		MessagesJSON:        marshalJSON(q.Messages),
		AttachmentsJSON:     marshalJSON(q.Attachments),
		AuditTrailJSON:      marshalJSON(q.AuditTrail),
		CreatedAt:           q.CreatedAt,
		UpdatedAt:           q.UpdatedAt,
	}
	if cid, ok := q.AssignedClinicianID.Get(); ok {
		row.HasAssignedClinician = true
		row.AssignedClinicianID = cid
	}
	if a, ok := q.AIAnalysis.Get(); ok {
		row.AIAnalysisKnown = true
		row.AIAnalysisJSON = marshalJSON(a)
	}
	if d, ok := q.AIDraftResponse.Get(); ok {
		row.AIDraftKnown = true
		row.AIDraftResponse = d
	}
	if s, ok := q.SafetyScore.Get(); ok {
		row.SafetyScoreKnown = true
		row.SafetyScore = s
	}
	if u, ok := q.Urgency.Get(); ok {
		row.UrgencyKnown = true
		row.Urgency = string(u)
	}
	if t, ok := q.AssignedAt.Get(); ok {
		row.AssignedAtKnown = true
		row.AssignedAt = t
	}
	if t, ok := q.ResolvedAt.Get(); ok {
		row.ResolvedAtKnown = true
		row.ResolvedAt = t
	}
	if m, ok := q.ResponseTimeMinutes.Get(); ok {
		row.ResponseTimeKnown = true
		row.ResponseTimeMinutes = m
	}
	if s, ok := q.PatientSatisfaction.Get(); ok {
		row.SatisfactionKnown = true
		row.PatientSatisfaction = s
	}
	return row
}

func rowToQuery(row queryRow) models.Query {
	q := models.Query{
		ID:                  row.ID,
		Version:             row.Version,
		PatientID:           row.PatientID,
		Title:               row.Title,
		Description:         row.Description,
		Category:            models.QueryCategory(row.Category),
		Priority:            models.Priority(row.Priority),
		Status:              models.QueryStatus(row.Status),
		HumanReviewRequired: row.HumanReviewRequired,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
		AssignedClinicianID: models.Unknown[string](),
		AIAnalysis:          models.Unknown[models.AIAnalysis](),
		AIDraftResponse:     models.Unknown[string](),
		SafetyScore:         models.Unknown[int](),
		Urgency:             models.Unknown[models.Urgency](),
		AssignedAt:          models.Unknown[time.Time](),
		ResolvedAt:          models.Unknown[time.Time](),
		ResponseTimeMinutes: models.Unknown[int](),
		PatientSatisfaction: models.Unknown[int](),
	}
	unmarshalJSON(row.MessagesJSON, &q.Messages)
	unmarshalJSON(row.AttachmentsJSON, &q.Attachments)
	unmarshalJSON(row.AuditTrailJSON, &q.AuditTrail)
	if row.HasAssignedClinician {
		q.AssignedClinicianID = models.Known(row.AssignedClinicianID)
	}
	if row.AIAnalysisKnown {
		var a models.AIAnalysis
		unmarshalJSON(row.AIAnalysisJSON, &a)
		q.AIAnalysis = models.Known(a)
	}
	if row.AIDraftKnown {
		q.AIDraftResponse = models.Known(row.AIDraftResponse)
	}
	if row.SafetyScoreKnown {
		q.SafetyScore = models.Known(row.SafetyScore)
	}
	if row.UrgencyKnown {
		q.Urgency = models.Known(models.Urgency(row.Urgency))
	}
	if row.AssignedAtKnown {
		q.AssignedAt = models.Known(row.AssignedAt)
	}
	if row.ResolvedAtKnown {
		q.ResolvedAt = models.Known(row.ResolvedAt)
	}
	if row.ResponseTimeKnown {
		q.ResponseTimeMinutes = models.Known(row.ResponseTimeMinutes)
	}
	if row.SatisfactionKnown {
		q.PatientSatisfaction = models.Known(row.PatientSatisfaction)
	}
	return q
}

func bridgeQueryToRow(b models.BridgeQuery) bridgeQueryRow {
	row := bridgeQueryRow{
		ID:        b.ID,
		Version:   b.Version,
		QueryID:   b.QueryID,
		Timestamp: b.Timestamp,
		Status:    string(b.Status),
	}
	if s, ok := b.SafetyScore.Get(); ok {
		row.SafetyScoreKnown = true
		row.SafetyScore = s
	}
	if u, ok := b.Urgency.Get(); ok {
		row.UrgencyKnown = true
		row.Urgency = string(u)
	}
	if r, ok := b.ResponseText.Get(); ok {
		row.ResponseKnown = true
		row.ResponseText = r
	}
	if e, ok := b.ErrorMessage.Get(); ok {
		row.ErrorKnown = true
		row.ErrorMessage = e
	}
	return row
}

func rowToBridgeQuery(row bridgeQueryRow) models.BridgeQuery {
	b := models.BridgeQuery{
		ID:           row.ID,
		Version:      row.Version,
		QueryID:      row.QueryID,
		Timestamp:    row.Timestamp,
		Status:       models.BridgeQueryStatus(row.Status),
		SafetyScore:  models.Unknown[int](),
		Urgency:      models.Unknown[models.Urgency](),
		ResponseText: models.Unknown[string](),
		ErrorMessage: models.Unknown[string](),
	}
	if row.SafetyScoreKnown {
		b.SafetyScore = models.Known(row.SafetyScore)
	}
	if row.UrgencyKnown {
		b.Urgency = models.Known(models.Urgency(row.Urgency))
	}
	if row.ResponseKnown {
		b.ResponseText = models.Known(row.ResponseText)
	}
	if row.ErrorKnown {
		b.ErrorMessage = models.Known(row.ErrorMessage)
	}
	return b
}

func auditEntryToRow(e models.AuditEntry) auditRow {
	row := auditRow{
		ID:        e.ID,
		Action:    e.Action,
		Payload:   e.Payload,
		Timestamp: e.Timestamp,
		PrevHash:  e.PrevHash,
		Hash:      e.Hash,
		Signature: e.Signature,
		SignerKey: e.SignerKey,
	}
	if u, ok := e.UserID.Get(); ok {
		row.UserIDKnown = true
		row.UserID = u
	}
	if p, ok := e.PatientID.Get(); ok {
		row.PatientIDKnown = true
		row.PatientID = p
	}
	if n, ok := e.NetworkMeta.Get(); ok {
		row.NetworkMetaKnown = true
		row.NetworkMeta = n
	}
	return row
}

func rowToAuditEntry(row auditRow) models.AuditEntry {
	e := models.AuditEntry{
		ID:          row.ID,
		Action:      row.Action,
		Payload:     row.Payload,
		Timestamp:   row.Timestamp,
		UserID:      models.Unknown[string](),
		PatientID:   models.Unknown[string](),
		NetworkMeta: models.Unknown[string](),
		PrevHash:    row.PrevHash,
		Hash:        row.Hash,
		Signature:   row.Signature,
		SignerKey:   row.SignerKey,
	}
	if row.UserIDKnown {
		e.UserID = models.Known(row.UserID)
	}
	if row.PatientIDKnown {
		e.PatientID = models.Known(row.PatientID)
	}
	if row.NetworkMetaKnown {
		e.NetworkMeta = models.Known(row.NetworkMeta)
	}
	return e
}
