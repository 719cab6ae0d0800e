// Command mcp-server exposes the clinician-tooling surface named in
// SPEC_FULL.md's domain stack over stdio: find_similar_queries (backed by
// the Context Assembler's nearest-neighbour pass) and search_audit_trail
// (backed by the Audit Log). Grounded on the teacher's
// internal/mcp/server.go, retargeted from patient-similarity/feedback
// search to query-similarity/audit search.
package main

import (
	"log"

	"github.com/trustcareconnect/cds-core/internal/audit"
	"github.com/trustcareconnect/cds-core/internal/config"
	"github.com/trustcareconnect/cds-core/internal/mcpserver"
	"github.com/trustcareconnect/cds-core/internal/store"
)

func main() {
	cfg := config.Load()

	signer := audit.NewSigner([]byte(cfg.BridgeSharedSecret))
	st, err := store.Open(cfg.DBPath, signer)
	if err != nil {
		log.Fatalf("record store: %v", err)
	}
	auditLog := audit.NewLog(st, signer)

	srv := mcpserver.New(st, auditLog)

	log.Println("🚀 cds-core MCP server starting on stdio...")
	if err := srv.Serve(); err != nil {
		log.Fatalf("mcp server: %v", err)
	}
}
