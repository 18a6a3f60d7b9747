// Package cmd implements the command-line interface for inboxprune.
//
// This package provides the following commands:
//   - serve: Start the MCP server over stdio or streamable HTTP
//   - auth: Authorize a Google account and store its token
//   - audit verify: Validate the audit log and its hash chain
//   - count: Print the server's estimate of how many messages match a filter
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
//
// A .env file in the working directory is loaded before any command runs.
// Settings are resolved flag first, then environment, then the policy file.
package cmd
