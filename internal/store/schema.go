// Package store implements C1, the Record Store: the sole durable owner of
// Patient, Clinician, Query, BridgeQuery and AuditEntry data (spec.md §3,
// §4.1). It is grounded on the teacher's pkg/repositories +
// pkg/database (GORM + SQLite, AutoMigrate-on-boot, repository-per-entity
// reads) but consolidated into one Store type because spec.md requires a
// single component to exclusively own all four entity kinds plus the
// append-only audit table, with multi-entity writes (e.g. create query +
// append audit) grouped in one transaction.
package store

import "time"

// patientRow is the GORM-mapped row for Patient. Nested structures that
// have no natural relational shape (medical history, vitals, comm prefs)
// are stored as JSON text columns, the way the teacher stores
// Feedback.RiskProfile as a JSON string column; consent is stored as
// three bool columns.
type patientRow struct {
	ID                 string `gorm:"primaryKey"`
	Version            int
	FirstName          string
	LastName           string
	DateOfBirth        time.Time
	Gender             string
	BloodTypeKnown     bool
	BloodType          string
	HistoryJSON        string `gorm:"type:text"`
	VitalsKnown        bool
	VitalsJSON         string `gorm:"type:text"`
	PrimaryClinicianID string
	HasPrimaryClinician bool
	Active             bool
	ConsentTreatment   bool
	ConsentPrivacy     bool
	ConsentDataProc    bool
	CommPrefsJSON      string `gorm:"type:text"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (patientRow) TableName() string { return "patients" }

type clinicianRow struct {
	ID             string `gorm:"primaryKey"`
	Version        int
	Name           string
	SpecialtiesJSON string `gorm:"type:text"`
	LicenseInfo    string
	LastSeenAt     time.Time
	Active         bool
}

func (clinicianRow) TableName() string { return "clinicians" }

type queryRow struct {
	ID                    string `gorm:"primaryKey"`
	Version               int
	PatientID             string `gorm:"index"`
	Title                 string
	Description           string
	Category              string
	Priority              string
	Status                string `gorm:"index"`
	AssignedClinicianID   string
	HasAssignedClinician  bool
	AIAnalysisKnown       bool
	AIAnalysisJSON        string `gorm:"type:text"`
	AIDraftKnown          bool
	AIDraftResponse       string `gorm:"type:text"`
	SafetyScoreKnown      bool
	SafetyScore           int
	UrgencyKnown          bool
	Urgency               string
	HumanReviewRequired   bool
	MessagesJSON          string `gorm:"type:text"`
	AttachmentsJSON       string `gorm:"type:text"`
	AuditTrailJSON        string `gorm:"type:text"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
	AssignedAtKnown       bool
	AssignedAt            time.Time
	ResolvedAtKnown       bool
	ResolvedAt            time.Time
	ResponseTimeKnown     bool
	ResponseTimeMinutes   int
	SatisfactionKnown     bool
	PatientSatisfaction   int
}

func (queryRow) TableName() string { return "queries" }

type bridgeQueryRow struct {
	ID              string `gorm:"primaryKey"`
	Version         int
	QueryID         string `gorm:"index"`
	Timestamp       time.Time
	Status          string `gorm:"index"`
	SafetyScoreKnown bool
	SafetyScore     int
	UrgencyKnown    bool
	Urgency         string
	ResponseKnown   bool
	ResponseText    string `gorm:"type:text"`
	ErrorKnown      bool
	ErrorMessage    string
}

func (bridgeQueryRow) TableName() string { return "bridge_queries" }

// auditRow is the append-only audit table (spec.md §3/§4.8). Rows are
// never updated or deleted by normal code paths; the primary key is a
// monotone SeqNo (GORM autoIncrement) so the filter queries in §4.8 can
// order by insertion, and the entry's string ID is a separate unique
// column.
type auditRow struct {
	SeqNo       uint `gorm:"primaryKey;autoIncrement"`
	ID          string `gorm:"uniqueIndex"`
	Action      string `gorm:"index"`
	UserIDKnown bool
	UserID      string `gorm:"index"`
	PatientIDKnown bool
	PatientID   string `gorm:"index"`
	Payload     string `gorm:"type:text"`
	Timestamp   time.Time `gorm:"index"`
	NetworkMetaKnown bool
	NetworkMeta string
	PrevHash    string
	Hash        string `gorm:"index"`
	Signature   string
	SignerKey   string
}

func (auditRow) TableName() string { return "audit_entries" }
