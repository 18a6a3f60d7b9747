package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxprune/internal/audit"
)

// RecentRecords is how many audit records the records resource returns.
const RecentRecords = 100

const (
	recordsURI = "audit://records"
	statusURI  = "audit://status"
)

// RegisterAuditResources exposes the audit log as read-only resources.
func RegisterAuditResources(s *mcpserver.MCPServer, store audit.Store) error {
	recordsResource := mcp.NewResource(
		recordsURI,
		"Recent Audit Records",
		mcp.WithResourceDescription(fmt.Sprintf("The last %d audited search, count, delete and unsubscribe scan operations", RecentRecords)),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(recordsResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleAuditRecords(ctx, request, store)
	})

	statusResource := mcp.NewResource(
		statusURI,
		"Audit Log Status",
		mcp.WithResourceDescription("Record count and hash chain verification of the audit log"),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(statusResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleAuditStatus(ctx, request, store)
	})

	return nil
}

func handleAuditRecords(ctx context.Context, request mcp.ReadResourceRequest, store audit.Store) ([]mcp.ResourceContents, error) {
	records, err := store.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	if len(records) > RecentRecords {
		records = records[len(records)-RecentRecords:]
	}
	return jsonContents(request.Params.URI, records)
}

// auditStatus is the body of the status resource.
type auditStatus struct {
	Records    int    `json:"records"`
	LastDigest string `json:"lastDigest,omitempty"`
	ChainValid bool   `json:"chainValid"`
	ChainError string `json:"chainError,omitempty"`
}

func handleAuditStatus(ctx context.Context, request mcp.ReadResourceRequest, store audit.Store) ([]mcp.ResourceContents, error) {
	records, err := store.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}

	status := auditStatus{Records: len(records), ChainValid: true}
	if len(records) > 0 {
		status.LastDigest = records[len(records)-1].Digest
	}
	if err := audit.Verify(records); err != nil {
		status.ChainValid = false
		status.ChainError = err.Error()
	}
	return jsonContents(request.Params.URI, status)
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}
