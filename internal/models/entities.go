package models

import "time"

// Vitals is the most-recent vitals snapshot for a patient (spec.md §3).
// Every field is Optional so the scorer and context assembler can tell
// "not measured" from a measured zero.
type Vitals struct {
	GlucoseMgDL       Optional[float64]
	SystolicBP        Optional[int]
	DiastolicBP       Optional[int]
	HeartRate         Optional[int]
	TemperatureC      Optional[float64]
	SpO2              Optional[int]
	WeightKg          Optional[float64]
	BMI               Optional[float64]
	RecordedAt        Optional[time.Time]
}

// MedicalHistory groups the patient's longitudinal clinical record.
type MedicalHistory struct {
	Conditions     []string
	Medications    []string
	Allergies      []string
	FamilyHistory  []string
	Surgeries      []string
}

// ConsentFlags are the three consents spec.md invariant 7 requires to all
// be true before a query may leave `submitted`.
type ConsentFlags struct {
	Treatment             bool
	PrivacyAcknowledged   bool
	DataProcessing        bool
}

func (c ConsentFlags) AllGranted() bool {
	return c.Treatment && c.PrivacyAcknowledged && c.DataProcessing
}

// CommunicationPreferences captures how the patient wants to be reached.
type CommunicationPreferences struct {
	Email      bool
	SMS        bool
	Portal     bool
	PreferredLanguage string
}

// Patient is the durable patient entity (spec.md §3).
type Patient struct {
	ID                       string
	Version                  int
	FirstName                string
	LastName                 string
	DateOfBirth              time.Time
	Gender                   string
	BloodType                Optional[BloodType]
	History                  MedicalHistory
	LatestVitals             Optional[Vitals]
	PrimaryClinicianID       Optional[string]
	Active                   bool
	Consents                 ConsentFlags
	CommPrefs                CommunicationPreferences
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// AgeYears computes age in whole years as of now; used by the Context
// Assembler's age-bucket stub.
func (p Patient) AgeYears(now time.Time) int {
	years := now.Year() - p.DateOfBirth.Year()
	anniversary := time.Date(now.Year(), p.DateOfBirth.Month(), p.DateOfBirth.Day(), 0, 0, 0, 0, time.UTC)
	if now.Before(anniversary) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

// Clinician is the durable clinician entity (spec.md §3).
type Clinician struct {
	ID          string
	Version     int
	Name        string
	Specialties []Specialty
	LicenseInfo string
	LastSeenAt  time.Time
	Active      bool
}

// HasSpecialty reports whether the clinician lists the given specialty.
func (c Clinician) HasSpecialty(s Specialty) bool {
	for _, have := range c.Specialties {
		if have.Equal(s) {
			return true
		}
	}
	return false
}

// AIAnalysis is the structured field list the AI Bridge attaches to a
// Query once a draft response exists (spec.md §3).
type AIAnalysis struct {
	Confidence        float64
	FlaggedSymptoms   []string
	SuggestedSpecialty Optional[Specialty]
	RiskLabel         string
	ModelVersion      string
	Timestamp         time.Time
}

// ResponseMessage is one message in a Query's conversation thread.
type ResponseMessage struct {
	ID           string
	ResponderID  string
	Text         string
	IsOfficial   bool
	Attachments  []string
	ReadByPatient   bool
	ReadByClinician bool
	Timestamp    time.Time
}

// Query is the central entity driven through the state machine (spec.md §3/§4.5).
type Query struct {
	ID                    string
	Version               int
	PatientID             string
	Title                 string
	Description           string
	Category              QueryCategory
	Priority              Priority
	Status                QueryStatus
	AssignedClinicianID   Optional[string]
	AIAnalysis            Optional[AIAnalysis]
	AIDraftResponse       Optional[string]
	SafetyScore           Optional[int]
	Urgency               Optional[Urgency]
	HumanReviewRequired   bool
	Messages              []ResponseMessage
	Attachments           []string
	AuditTrail            []string // ordered human-readable text entries, §3
	CreatedAt             time.Time
	UpdatedAt             time.Time
	AssignedAt            Optional[time.Time]
	ResolvedAt            Optional[time.Time]
	ResponseTimeMinutes   Optional[int]
	PatientSatisfaction   Optional[int]
}

// AppendAudit appends a human-readable trail entry; it never removes or
// reorders existing entries (invariant 5/§8: strictly time-ordered,
// non-empty for every reachable Query).
func (q *Query) AppendAudit(entry string) {
	q.AuditTrail = append(q.AuditTrail, entry)
}

// RecomputeResponseTime derives ResponseTimeMinutes from ResolvedAt per
// invariant 3. Call after any mutation to ResolvedAt.
func (q *Query) RecomputeResponseTime() {
	resolvedAt, ok := q.ResolvedAt.Get()
	if !ok {
		q.ResponseTimeMinutes = Unknown[int]()
		return
	}
	minutes := int(resolvedAt.Sub(q.CreatedAt) / time.Minute)
	if minutes < 0 {
		minutes = 0
	}
	q.ResponseTimeMinutes = Known(minutes)
}

// BridgeQuery is the shadow record tracking one in-flight AI call
// (spec.md §3/§4.7/GLOSSARY).
type BridgeQuery struct {
	ID           string
	Version      int
	QueryID      string
	Timestamp    time.Time
	Status       BridgeQueryStatus
	SafetyScore  Optional[int]
	Urgency      Optional[Urgency]
	ResponseText Optional[string]
	ErrorMessage Optional[string]
}

// AuditEntry is one immutable record of a state mutation (spec.md §3/§4.8).
// PrevHash/Hash/Signature/SignerKey form the hash-chained, Ed25519-signed
// tamper-evidence wrapper the Audit Log (C8) adds on top of the plain
// append: Hash commits to PrevHash plus the entry's own fields, and
// Signature is the Audit Log's signing key's signature over Hash, so an
// entry cannot be altered or reordered after the fact without invalidating
// every entry chained after it.
type AuditEntry struct {
	ID          string
	Action      string
	UserID      Optional[string]
	PatientID   Optional[string]
	Payload     string // serialized JSON payload
	Timestamp   time.Time
	NetworkMeta Optional[string]
	PrevHash    string
	Hash        string
	Signature   string
	SignerKey   string
}
