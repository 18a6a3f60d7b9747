// Package query executes mailbox filters.
//
// Search lists matching ids, then fetches item metadata in batches: members
// of a batch are fetched concurrently, batches are paced apart. Items whose
// fetch fails are dropped and counted in Result.Dropped while EstimatedTotal
// keeps the server's figure. Count is the estimate of a one-item search and
// is never exact.
package query
