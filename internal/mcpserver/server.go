// Package mcpserver implements the MCP clinician-tooling surface named in
// SPEC_FULL.md's domain stack: find_similar_queries and
// search_audit_trail, grounded on the teacher's internal/mcp/server.go
// (get_similar_patients / search_feedback), retargeted at the Context
// Assembler's nearest-neighbour pass (C2) and the Audit Log (C8) instead
// of the teacher's raw patient-vitals and doctor-notes tables. Library:
// github.com/mark3labs/mcp-go.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	assembler "github.com/trustcareconnect/cds-core/internal/context"

	"github.com/trustcareconnect/cds-core/internal/audit"
	"github.com/trustcareconnect/cds-core/internal/store"
)

type Server struct {
	store    *store.Store
	auditLog *audit.Log
	serv     *server.MCPServer
}

func New(st *store.Store, auditLog *audit.Log) *Server {
	s := server.NewMCPServer("cds-core clinical context server", "1.0.0")

	m := &Server{store: st, auditLog: auditLog, serv: s}
	m.registerTools()
	return m
}

func (m *Server) registerTools() {
	findSimilar := mcp.NewTool("find_similar_queries",
		mcp.WithDescription("Find past resolved queries whose flagged symptoms overlap this patient's recorded conditions"),
		mcp.WithString("patient_id", mcp.Required()),
	)
	m.serv.AddTool(findSimilar, m.handleFindSimilarQueries)

	searchAudit := mcp.NewTool("search_audit_trail",
		mcp.WithDescription("Search the signed, hash-chained audit log by patient, user, and time range"),
		mcp.WithString("patient_id"),
		mcp.WithString("user_id"),
		mcp.WithString("since"),
		mcp.WithString("until"),
	)
	m.serv.AddTool(searchAudit, m.handleSearchAuditTrail)
}

func (m *Server) handleFindSimilarQueries(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	argData, err := json.Marshal(request.Params.Arguments)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal arguments: %v", err)), nil
	}
	var input struct {
		PatientID string `json:"patient_id"`
	}
	if err := json.Unmarshal(argData, &input); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	medCtx, err := assembler.Assemble(m.store, input.PatientID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("assemble context: %v", err)), nil
	}
	if len(medCtx.SimilarCases) == 0 {
		return mcp.NewToolResultText("No similar past cases found for patient " + input.PatientID), nil
	}

	var sb strings.Builder
	sb.WriteString("Similar past cases:\n")
	for _, c := range medCtx.SimilarCases {
		fmt.Fprintf(&sb, "- [query %s] category=%s urgency=%s: %s\n", c.QueryID, c.Category, c.Urgency, c.Summary)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (m *Server) handleSearchAuditTrail(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	argData, err := json.Marshal(request.Params.Arguments)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal arguments: %v", err)), nil
	}
	var input struct {
		PatientID string `json:"patient_id"`
		UserID    string `json:"user_id"`
		Since     string `json:"since"`
		Until     string `json:"until"`
	}
	if err := json.Unmarshal(argData, &input); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	filter := store.AuditFilter{PatientID: input.PatientID, UserID: input.UserID}
	if input.Since != "" {
		since, err := time.Parse(time.RFC3339, input.Since)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid since: %v", err)), nil
		}
		filter.Since = since
	}
	if input.Until != "" {
		until, err := time.Parse(time.RFC3339, input.Until)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid until: %v", err)), nil
		}
		filter.Until = until
	}

	entries, err := m.auditLog.Search(filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search audit trail: %v", err)), nil
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText("No audit entries matched the given filter"), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d audit entries:\n", len(entries))
	for _, e := range entries {
		userID, _ := e.UserID.Get()
		patientID, _ := e.PatientID.Get()
		fmt.Fprintf(&sb, "- [%s] action=%s user=%s patient=%s\n", e.Timestamp.Format(time.RFC3339), e.Action, userID, patientID)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (m *Server) Serve() error {
	return server.ServeStdio(m.serv)
}
