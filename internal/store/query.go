package store

import (
	"errors"
	"time"

	"gorm.io/gorm"

	cerr "github.com/trustcareconnect/cds-core/internal/clinicalerrors"
	"github.com/trustcareconnect/cds-core/internal/models"
)

// CreateQuery persists a brand new Query together with its first audit
// entry in a single transaction (invariant 5: every state transition —
// including creation — appends exactly one audit entry).
func (s *Store) CreateQuery(q models.Query, actorID string) (models.Query, error) {
	if s.auditUnavailable() {
		return models.Query{}, cerr.New(cerr.Fatal, "audit log unavailable, refusing write")
	}
	if q.ID == "" {
		q.ID = newID("qry")
	}
	now := time.Now().UTC()
	q.CreatedAt, q.UpdatedAt = now, now
	q.Version = 1
	q.AppendAudit("created: status=" + string(q.Status))

	row := queryToRow(q)
	entry := models.AuditEntry{
		ID:        newID("aud"),
		Action:    "QUERY_CREATED",
		UserID:    models.Known(actorID),
		PatientID: models.Known(q.PatientID),
		Payload:   marshalJSON(q),
		Timestamp: now,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return s.chainAndCreate(tx, entry)
	})
	if err != nil {
		return models.Query{}, cerr.Wrap(cerr.Invalid, err, "create query")
	}
	return rowToQuery(row), nil
}

func auditEntryPtr(e models.AuditEntry) *auditRow {
	r := auditEntryToRow(e)
	return &r
}

func (s *Store) GetQuery(id string) (models.Query, error) {
	var row queryRow
	if err := s.db.First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Query{}, cerr.New(cerr.NotFound, "query %s not found", id)
		}
		return models.Query{}, cerr.Wrap(cerr.Unavailable, err, "get query")
	}
	return rowToQuery(row), nil
}

// UpdateQuery performs an optimistic-concurrency write of q and appends
// exactly one audit entry describing the transition, atomically
// (invariant 5). The caller must have already applied the new state
// (including AppendAudit for its own human-readable trail) to q.
func (s *Store) UpdateQuery(q models.Query, action, actorID string) (models.Query, error) {
	if s.auditUnavailable() {
		return models.Query{}, cerr.New(cerr.Fatal, "audit log unavailable, refusing write")
	}
	row := queryToRow(q)
	row.UpdatedAt = time.Now().UTC()
	expectedVersion := row.Version
	row.Version = expectedVersion + 1

	entry := models.AuditEntry{
		ID:        newID("aud"),
		Action:    action,
		UserID:    models.Known(actorID),
		PatientID: models.Known(q.PatientID),
		Payload:   marshalJSON(q),
		Timestamp: row.UpdatedAt,
	}

	var rowsAffected int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&queryRow{}).Where("id = ? AND version = ?", q.ID, expectedVersion).
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
		return models.Query{}, cerr.Wrap(cerr.Unavailable, err, "update query")
	}
	if rowsAffected == 0 {
		return models.Query{}, cerr.New(cerr.Conflict, "query %s: stale version", q.ID)
	}
	return rowToQuery(row), nil
}

func (s *Store) ListQueriesByPatient(patientID string) ([]models.Query, error) {
	var rows []queryRow
	if err := s.db.Where("patient_id = ?", patientID).Order("created_at desc").Find(&rows).Error; err != nil {
		return nil, cerr.Wrap(cerr.Unavailable, err, "list patient queries")
	}
	out := make([]models.Query, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToQuery(r))
	}
	return out, nil
}

// ListRecentResolvedQueries returns the most recently resolved queries
// across all patients, newest first, capped at limit. Used by the Context
// Assembler's similar-past-cases retrieval (grounded on teacher
// internal/services/rag_service.go's nearest-neighbour scan over approved
// feedback).
func (s *Store) ListRecentResolvedQueries(limit int) ([]models.Query, error) {
	var rows []queryRow
	err := s.db.Where("status IN ?", []string{string(models.StatusResolved), string(models.StatusClosed)}).
		Order("resolved_at desc").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, cerr.Wrap(cerr.Unavailable, err, "list resolved queries")
	}
	out := make([]models.Query, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToQuery(r))
	}
	return out, nil
}

func (s *Store) ListPendingQueries() ([]models.Query, error) {
	var rows []queryRow
	if err := s.db.Where("status = ?", string(models.StatusPending)).Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, cerr.Wrap(cerr.Unavailable, err, "list pending queries")
	}
	out := make([]models.Query, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToQuery(r))
	}
	return out, nil
}

// PlatformStats is the aggregate §6 getPlatformStats projection.
type PlatformStats struct {
	TotalQueries        int64
	PendingQueries      int64
	ResolvedQueries     int64
	EscalatedQueries    int64
	AwaitingReview      int64
	AvgResponseTimeMins float64
}

func (s *Store) PlatformStats() (PlatformStats, error) {
	var stats PlatformStats
	db := s.db.Model(&queryRow{})
	if err := db.Count(&stats.TotalQueries).Error; err != nil {
		return stats, cerr.Wrap(cerr.Unavailable, err, "platform stats")
	}
	s.db.Model(&queryRow{}).Where("status = ?", string(models.StatusPending)).Count(&stats.PendingQueries)
	s.db.Model(&queryRow{}).Where("status = ?", string(models.StatusResolved)).Count(&stats.ResolvedQueries)
	s.db.Model(&queryRow{}).Where("status = ?", string(models.StatusEscalated)).Count(&stats.EscalatedQueries)
	s.db.Model(&queryRow{}).Where("human_review_required = ? AND status NOT IN ?", true,
		[]string{string(models.StatusResolved), string(models.StatusClosed)}).Count(&stats.AwaitingReview)

	var avg float64
	s.db.Model(&queryRow{}).Where("response_time_known = ?", true).
		Select("AVG(response_time_minutes)").Scan(&avg)
	stats.AvgResponseTimeMins = avg
	return stats, nil
}
