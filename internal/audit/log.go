package audit

import (
	"github.com/trustcareconnect/cds-core/internal/models"
	"github.com/trustcareconnect/cds-core/internal/store"
)

// Log is the read/search façade and standalone-append path over the
// Record Store's audit table. Chaining and signing happen inside the
// Record Store's own transactions (via the Signer passed to store.Open),
// so an entity mutation and the audit entry describing it commit
// atomically; Log is where callers that are not themselves inside such a
// transaction (the MCP server's search tool, for one) reach the audit
// trail, grounded on the
// teacher's pkg/services/audit_service.go.
type Log struct {
	store  *store.Store
	signer *Signer
}

func NewLog(st *store.Store, signer *Signer) *Log {
	return &Log{store: st, signer: signer}
}

// Record appends a standalone entry not produced alongside an entity
// write.
func (l *Log) Record(e models.AuditEntry) (models.AuditEntry, error) {
	return l.store.AppendAuditEntry(e)
}

func (l *Log) Search(filter store.AuditFilter) ([]models.AuditEntry, error) {
	return l.store.ListAuditEntries(filter)
}

// VerifyIntegrity re-derives every entry in filter's result set and
// confirms the hash chain is unbroken (spec.md §4.8 tamper evidence).
// Pass an empty AuditFilter to verify the whole log. VerifyChain starts
// from an empty previous hash and links each entry to the one before it
// in the result set, so a narrowed filter passes only when its result is
// an unbroken prefix of the chain; any entry the filter skips shows up as
// a prev-hash mismatch at the first gap.
func (l *Log) VerifyIntegrity(filter store.AuditFilter) error {
	entries, err := l.store.ListAuditEntries(filter)
	if err != nil {
		return err
	}
	return VerifyChain(entries)
}
