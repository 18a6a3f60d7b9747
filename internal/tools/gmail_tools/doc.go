// Package gmail_tools exposes the guarded Gmail bulk-delete workflow as MCP
// tools.
//
// Read tools:
//   - gmail_search: list items matching a Gmail filter
//   - gmail_count: the server's estimate of how many items match
//   - gmail_preview_deletion: what a delete with the same filter would touch
//   - gmail_get_message: one item with headers and optionally its text body
//   - gmail_scan_unsubscribe: collect List-Unsubscribe links
//   - gmail_list_labels: system and user labels
//
// Delete tool:
//   - gmail_delete: permanent deletion behind a hard count limit, a dry run
//     that issues a single-use confirmation token, and redemption of that
//     token against the exact items the dry run matched
//
// Policy outcomes (limit exceeded, confirmation required, bad or expired
// token, read-only) are returned as error results whose text starts with the
// policy code, for example:
//
//	limit_exceeded: filter matches 240 items, maxDeletions is 100
//
// Gateway failures are returned as error results starting with "Failed to".
package gmail_tools
