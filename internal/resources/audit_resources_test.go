package resources

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxprune/internal/audit"
)

func readRequest(uri string) mcp.ReadResourceRequest {
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	return req
}

func seed(t *testing.T, store audit.Store, n int) {
	t.Helper()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		rec := audit.NewRecord(t0.Add(time.Duration(i)*time.Second), audit.OpCount, "default", "from:a@example.com").
			WithCount(i).Success()
		_, err := store.Append(context.Background(), rec)
		require.NoError(t, err)
	}
}

func body(t *testing.T, contents []mcp.ResourceContents) string {
	t.Helper()
	require.Len(t, contents, 1)
	tc, ok := contents[0].(*mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, "application/json", tc.MIMEType)
	return tc.Text
}

func TestAuditRecordsResourceReturnsTail(t *testing.T) {
	store := audit.NewMemoryStore()
	seed(t, store, RecentRecords+5)

	contents, err := handleAuditRecords(context.Background(), readRequest(recordsURI), store)
	require.NoError(t, err)

	var records []audit.Record
	require.NoError(t, json.Unmarshal([]byte(body(t, contents)), &records))
	require.Len(t, records, RecentRecords)
	assert.EqualValues(t, 6, records[0].Sequence)
	assert.EqualValues(t, RecentRecords+5, records[len(records)-1].Sequence)
}

func TestAuditStatusResource(t *testing.T) {
	store := audit.NewMemoryStore()
	seed(t, store, 3)

	contents, err := handleAuditStatus(context.Background(), readRequest(statusURI), store)
	require.NoError(t, err)

	var status auditStatus
	require.NoError(t, json.Unmarshal([]byte(body(t, contents)), &status))
	assert.Equal(t, 3, status.Records)
	assert.True(t, status.ChainValid)
	assert.NotEmpty(t, status.LastDigest)
}

func TestAuditStatusResourceEmpty(t *testing.T) {
	contents, err := handleAuditStatus(context.Background(), readRequest(statusURI), audit.NewMemoryStore())
	require.NoError(t, err)
	assert.Contains(t, body(t, contents), `"records": 0`)
	assert.Contains(t, body(t, contents), `"chainValid": true`)
}
