package store

import (
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	cerr "github.com/trustcareconnect/cds-core/internal/clinicalerrors"
	"github.com/trustcareconnect/cds-core/internal/models"
)

// AuditSigner chains and signs each audit entry as it is written, so the
// hash-chain invariant (C8, spec.md §4.8 "tamper evidence") is established
// atomically with the entity mutation it describes, inside the same
// transaction that appends it. Implemented by internal/audit.Signer; the
// Record Store only depends on this interface to avoid an import cycle.
type AuditSigner interface {
	Chain(prevHash string, e models.AuditEntry) models.AuditEntry
}

// Store is the Record Store (C1): the sole durable owner of every entity
// kind. Reads return immutable snapshots (values, never shared pointers
// into live rows); writes are transactional at single-entity granularity,
// with multi-entity writes (create query + append audit) grouped
// atomically, per spec.md §4.1.
type Store struct {
	db     *gorm.DB
	signer AuditSigner
}

// Open connects to (and migrates) the SQLite-backed store at path,
// grounded on teacher pkg/database.InitDB. signer may be nil, in which
// case audit entries are appended unsigned (PrevHash/Hash/Signature left
// blank) — used by components that embed the store in tests without
// standing up the full Audit Log.
func Open(path string, signer AuditSigner) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, cerr.Wrap(cerr.Unavailable, err, "open record store")
	}
	if err := db.AutoMigrate(&patientRow{}, &clinicianRow{}, &queryRow{}, &bridgeQueryRow{}, &auditRow{}); err != nil {
		return nil, cerr.Wrap(cerr.Fatal, err, "migrate record store schema")
	}
	log.Println("✅ Record Store migrated (SQLite)")
	return &Store{db: db, signer: signer}, nil
}

// chainAndCreate appends entry inside tx, first chaining it onto the most
// recent row (by SeqNo) if a signer is configured. Reading "last row" and
// inserting the new one in the same transaction is what keeps the chain
// gap-free under concurrent writers.
func (s *Store) chainAndCreate(tx *gorm.DB, entry models.AuditEntry) error {
	if s.signer != nil {
		var prev auditRow
		prevHash := ""
		if err := tx.Order("seq_no desc").First(&prev).Error; err == nil {
			prevHash = prev.Hash
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		entry = s.signer.Chain(prevHash, entry)
	}
	return tx.Create(auditEntryPtr(entry)).Error
}

// auditUnavailable reports whether the store must refuse further writes
// because the audit log is unreachable (spec.md §5 resource policy: "The
// Record Store ... MUST refuse writes if the audit log is unavailable to
// preserve invariant 5"). The audit table lives in the same database as
// every other table, so its unavailability is indistinguishable from the
// database's own unavailability; this hook exists so a future split store
// (audit on a separate durable log) has a single place to wire the check.
func (s *Store) auditUnavailable() bool {
	return s.db == nil
}

func newID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

// --- Patient ---

func (s *Store) CreatePatient(p models.Patient) (models.Patient, error) {
	if s.auditUnavailable() {
		return models.Patient{}, cerr.New(cerr.Fatal, "audit log unavailable, refusing write")
	}
	if p.ID == "" {
		p.ID = newID("pat")
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	p.Version = 1
	row := patientToRow(p)
	entry := models.AuditEntry{
		ID:        newID("aud"),
		Action:    "PATIENT_REGISTERED",
		PatientID: models.Known(p.ID),
		Payload:   marshalJSON(p),
		Timestamp: now,
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return s.chainAndCreate(tx, entry)
	})
	if err != nil {
		return models.Patient{}, cerr.Wrap(cerr.Invalid, err, "create patient")
	}
	return rowToPatient(row), nil
}

func (s *Store) GetPatient(id string) (models.Patient, error) {
	var row patientRow
	if err := s.db.First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Patient{}, cerr.New(cerr.NotFound, "patient %s not found", id)
		}
		return models.Patient{}, cerr.Wrap(cerr.Unavailable, err, "get patient")
	}
	return rowToPatient(row), nil
}

// UpdatePatient performs an optimistic-concurrency write: the caller's
// Version must match the stored row's Version, else Conflict (spec.md §4.1).
func (s *Store) UpdatePatient(p models.Patient) (models.Patient, error) {
	if s.auditUnavailable() {
		return models.Patient{}, cerr.New(cerr.Fatal, "audit log unavailable, refusing write")
	}
	row := patientToRow(p)
	row.UpdatedAt = time.Now().UTC()
	expectedVersion := row.Version
	row.Version = expectedVersion + 1

	entry := models.AuditEntry{
		ID:        newID("aud"),
		Action:    "PATIENT_UPDATED",
		PatientID: models.Known(p.ID),
		Payload:   marshalJSON(p),
		Timestamp: row.UpdatedAt,
	}

	var rowsAffected int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&patientRow{}).Where("id = ? AND version = ?", p.ID, expectedVersion).
			Select("*").Updates(&row)
		if result.Error != nil {
			return result.Error
		}
		rowsAffected = result.RowsAffected
		if rowsAffected == 0 {
			return nil
		}
		return s.chainAndCreate(tx, entry)
	})
	if err != nil {
		return models.Patient{}, cerr.Wrap(cerr.Unavailable, err, "update patient")
	}
	if rowsAffected == 0 {
		return models.Patient{}, cerr.New(cerr.Conflict, "patient %s: stale version", p.ID)
	}
	return rowToPatient(row), nil
}

func (s *Store) ListActivePatients() ([]models.Patient, error) {
	var rows []patientRow
	if err := s.db.Where("active = ?", true).Order("created_at desc").Find(&rows).Error; err != nil {
		return nil, cerr.Wrap(cerr.Unavailable, err, "list patients")
	}
	out := make([]models.Patient, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToPatient(r))
	}
	return out, nil
}

// --- Clinician ---

func (s *Store) CreateClinician(c models.Clinician) (models.Clinician, error) {
	if s.auditUnavailable() {
		return models.Clinician{}, cerr.New(cerr.Fatal, "audit log unavailable, refusing write")
	}
	if c.ID == "" {
		c.ID = newID("doc")
	}
	c.Version = 1
	row := clinicianToRow(c)
	entry := models.AuditEntry{
		ID:        newID("aud"),
		Action:    "CLINICIAN_REGISTERED",
		UserID:    models.Known(c.ID),
		Payload:   marshalJSON(c),
		Timestamp: time.Now().UTC(),
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return s.chainAndCreate(tx, entry)
	})
	if err != nil {
		return models.Clinician{}, cerr.Wrap(cerr.Invalid, err, "create clinician")
	}
	return rowToClinician(row), nil
}

func (s *Store) GetClinician(id string) (models.Clinician, error) {
	var row clinicianRow
	if err := s.db.First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Clinician{}, cerr.New(cerr.NotFound, "clinician %s not found", id)
		}
		return models.Clinician{}, cerr.Wrap(cerr.Unavailable, err, "get clinician")
	}
	return rowToClinician(row), nil
}

func (s *Store) UpdateClinician(c models.Clinician) (models.Clinician, error) {
	if s.auditUnavailable() {
		return models.Clinician{}, cerr.New(cerr.Fatal, "audit log unavailable, refusing write")
	}
	row := clinicianToRow(c)
	expectedVersion := row.Version
	row.Version = expectedVersion + 1

	entry := models.AuditEntry{
		ID:        newID("aud"),
		Action:    "CLINICIAN_UPDATED",
		UserID:    models.Known(c.ID),
		Payload:   marshalJSON(c),
		Timestamp: time.Now().UTC(),
	}

	var rowsAffected int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&clinicianRow{}).Where("id = ? AND version = ?", c.ID, expectedVersion).
			Select("*").Updates(&row)
		if result.Error != nil {
			return result.Error
		}
		rowsAffected = result.RowsAffected
		if rowsAffected == 0 {
			return nil
		}
		return s.chainAndCreate(tx, entry)
	})
	if err != nil {
		return models.Clinician{}, cerr.Wrap(cerr.Unavailable, err, "update clinician")
	}
	if rowsAffected == 0 {
		return models.Clinician{}, cerr.New(cerr.Conflict, "clinician %s: stale version", c.ID)
	}
	return rowToClinician(row), nil
}

func (s *Store) ListActiveClinicians() ([]models.Clinician, error) {
	var rows []clinicianRow
	if err := s.db.Where("active = ?", true).Find(&rows).Error; err != nil {
		return nil, cerr.Wrap(cerr.Unavailable, err, "list clinicians")
	}
	out := make([]models.Clinician, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToClinician(r))
	}
	return out, nil
}

// CountOpenQueriesByClinician returns the number of queries currently
// assigned to clinicianID that are not terminal —
// used by the Assignment & Review least-loaded tiebreak (spec.md §4.6).
func (s *Store) CountOpenQueriesByClinician(clinicianID string) (int64, error) {
	var count int64
	terminal := []string{string(models.StatusResolved), string(models.StatusClosed)}
	err := s.db.Model(&queryRow{}).
		Where("assigned_clinician_id = ? AND status NOT IN ?", clinicianID, terminal).
		Count(&count).Error
	if err != nil {
		return 0, cerr.Wrap(cerr.Unavailable, err, "count open queries")
	}
	return count, nil
}
