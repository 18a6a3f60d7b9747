// Package resources provides MCP resources. Resources are read-only data
// sources that MCP clients can fetch; here they expose the audit log so an
// agent can review what it searched and deleted.
package resources
