package store

import (
	"time"

	"gorm.io/gorm"

	cerr "github.com/trustcareconnect/cds-core/internal/clinicalerrors"
	"github.com/trustcareconnect/cds-core/internal/models"
)

// AppendAuditEntry writes one append-only entry (spec.md §4.8) that is
// not tied to an entity mutation in the same transaction; audit.Log.Record
// is its caller.
func (s *Store) AppendAuditEntry(e models.AuditEntry) (models.AuditEntry, error) {
	if s.auditUnavailable() {
		return models.AuditEntry{}, cerr.New(cerr.Fatal, "audit log unavailable, refusing write")
	}
	if e.ID == "" {
		e.ID = newID("aud")
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	var stored models.AuditEntry
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var prev auditRow
		prevHash := ""
		if s.signer != nil {
			if err := tx.Order("seq_no desc").First(&prev).Error; err == nil {
				prevHash = prev.Hash
			}
			e = s.signer.Chain(prevHash, e)
		}
		row := auditEntryToRow(e)
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		stored = rowToAuditEntry(row)
		return nil
	})
	if err != nil {
		return models.AuditEntry{}, cerr.Wrap(cerr.Invalid, err, "append audit entry")
	}
	return stored, nil
}

// AuditFilter narrows ListAuditEntries (spec.md §4.8 "Readers may filter by
// patient, clinician, or time range").
type AuditFilter struct {
	PatientID string
	UserID    string
	Since     time.Time
	Until     time.Time
}

func (s *Store) ListAuditEntries(filter AuditFilter) ([]models.AuditEntry, error) {
	q := s.db.Model(&auditRow{}).Order("seq_no asc")
	if filter.PatientID != "" {
		q = q.Where("patient_id = ?", filter.PatientID)
	}
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if !filter.Since.IsZero() {
		q = q.Where("timestamp >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		q = q.Where("timestamp <= ?", filter.Until)
	}
	var rows []auditRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, cerr.Wrap(cerr.Unavailable, err, "list audit entries")
	}
	out := make([]models.AuditEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToAuditEntry(r))
	}
	return out, nil
}
