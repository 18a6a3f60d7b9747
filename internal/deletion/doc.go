// Package deletion implements the guarded bulk delete.
//
// A Delete request always starts with a search. The match count is checked
// against the caller's limit, then the request either issues a confirmation
// ticket (dry run), asks for one (confirmation required) or deletes in
// paced batches. Every request appends exactly one audit record before it
// returns, whatever its outcome.
package deletion
