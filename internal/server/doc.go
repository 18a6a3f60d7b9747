// Package server provides the MCP server context, the store and service
// wiring, and the HTTP servers for the inboxprune application.
//
// # Key Components
//
// ServerContext caches one mailbox.Service per account, built lazily by a
// ServiceFactory, and carries the metrics recorder and tool logger used by
// every tool handler.
//
// Stack assembles a mailbox.Service from the policy: the Gmail client is
// wrapped with instrumentation and a rate limiter, then shared by the query
// engine, the delete workflow and the unsubscribe scanner. OpenStores
// connects the ticket store (memory or Redis) and the audit store (JSONL
// file or Postgres) shared by all accounts.
//
// HTTPServer serves the streamable-http transport on /mcp together with
// /healthz and /readyz. MetricsServer serves /metrics on its own port.
package server
