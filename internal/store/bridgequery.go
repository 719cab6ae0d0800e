package store

import (
	"errors"
	"time"

	"gorm.io/gorm"

	cerr "github.com/trustcareconnect/cds-core/internal/clinicalerrors"
	"github.com/trustcareconnect/cds-core/internal/models"
)

// CreateBridgeQuery registers a new in-flight AI call tracker, always
// starting in `pending` (spec.md §4.4 "Tracking").
func (s *Store) CreateBridgeQuery(queryID string) (models.BridgeQuery, error) {
	b := models.BridgeQuery{
		ID:        newID("brq"),
		QueryID:   queryID,
		Timestamp: time.Now().UTC(),
		Status:    models.BridgePending,
		SafetyScore:  models.Unknown[int](),
		Urgency:      models.Unknown[models.Urgency](),
		ResponseText: models.Unknown[string](),
		ErrorMessage: models.Unknown[string](),
	}
	b.Version = 1
	row := bridgeQueryToRow(b)
	if err := s.db.Create(&row).Error; err != nil {
		return models.BridgeQuery{}, cerr.Wrap(cerr.Invalid, err, "create bridge query")
	}
	return rowToBridgeQuery(row), nil
}

func (s *Store) GetBridgeQuery(id string) (models.BridgeQuery, error) {
	var row bridgeQueryRow
	if err := s.db.First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.BridgeQuery{}, cerr.New(cerr.NotFound, "bridge query %s not found", id)
		}
		return models.BridgeQuery{}, cerr.Wrap(cerr.Unavailable, err, "get bridge query")
	}
	return rowToBridgeQuery(row), nil
}

// TransitionBridgeQuery moves b to newStatus, rejecting any regression
// along the monotone pending -> processing -> {completed, failed} path
// (invariant 6, spec.md §4.7 "Monotonic-transition rule"). A no-op
// transition (same status) succeeds idempotently so that replayed webhook
// deliveries have no additional effect (spec.md §8 "Idempotence of
// webhook replay").
func (s *Store) TransitionBridgeQuery(id string, newStatus models.BridgeQueryStatus, mutate func(*models.BridgeQuery)) (models.BridgeQuery, error) {
	var result models.BridgeQuery
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var row bridgeQueryRow
		if err := tx.First(&row, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return cerr.New(cerr.NotFound, "bridge query %s not found", id)
			}
			return err
		}
		current := rowToBridgeQuery(row)

		if current.Status == newStatus {
			// Idempotent replay: apply any field updates but do not regress.
			if mutate != nil {
				mutate(&current)
				current.Status = newStatus
			}
			newRow := bridgeQueryToRow(current)
			newRow.Version = row.Version
			if err := tx.Model(&bridgeQueryRow{}).Where("id = ?", id).Select("*").Updates(&newRow).Error; err != nil {
				return err
			}
			result = current
			return nil
		}

		if !models.CanTransitionBridgeStatus(current.Status, newStatus) {
			return cerr.New(cerr.PolicyViolation, "InvalidTransition: bridge query %s cannot move %s -> %s", id, current.Status, newStatus)
		}

		current.Status = newStatus
		if mutate != nil {
			mutate(&current)
			current.Status = newStatus
		}
		newRow := bridgeQueryToRow(current)
		newRow.Version = row.Version + 1
		updateResult := tx.Model(&bridgeQueryRow{}).Where("id = ? AND version = ?", id, row.Version).Select("*").Updates(&newRow)
		if updateResult.Error != nil {
			return updateResult.Error
		}
		if updateResult.RowsAffected == 0 {
			return cerr.New(cerr.Conflict, "bridge query %s: stale version", id)
		}
		result = current
		return nil
	})
	if err != nil {
		return models.BridgeQuery{}, err
	}
	return result, nil
}

// ListStaleBridgeQueries returns non-terminal BridgeQueries older than
// threshold — the sweeper's input set (spec.md §4.7/§8 scenario 6).
func (s *Store) ListStaleBridgeQueries(threshold time.Duration) ([]models.BridgeQuery, error) {
	cutoff := time.Now().UTC().Add(-threshold)
	var rows []bridgeQueryRow
	nonTerminal := []string{string(models.BridgePending), string(models.BridgeProcessing)}
	err := s.db.Where("status IN ? AND timestamp < ?", nonTerminal, cutoff).Find(&rows).Error
	if err != nil {
		return nil, cerr.Wrap(cerr.Unavailable, err, "list stale bridge queries")
	}
	out := make([]models.BridgeQuery, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToBridgeQuery(r))
	}
	return out, nil
}
