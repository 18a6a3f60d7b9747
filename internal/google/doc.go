// Package google supplies authenticated Gmail services.
//
// It is the credential collaborator of the mailbox engine: callers only see
// Authenticate, RefreshIfNeeded and HasRequiredScope. Credentials come from
// the token file written by "inboxprune auth", one per account, stored under
// the user cache directory.
package google
