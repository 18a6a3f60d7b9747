// Package gmail is the remote mailbox gateway.
//
// Gateway is the narrow surface the engine needs: list message ids with the
// server's result size estimate, fetch one message, permanently batch-delete
// ids, and list labels. Client implements it over google.golang.org/api's
// gmail/v1 service; RateLimited decorates any Gateway with a token bucket.
//
// Messages are projected onto ItemSummary, whose Payload is a typed MIME tree
// (Part). FirstHeader searches that tree by header name. The package also
// parses List-Unsubscribe values.
package gmail
