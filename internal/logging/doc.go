// Package logging provides structured logging utilities for inboxprune.
//
// All components log through log/slog. This package keeps attribute names
// consistent, builds the process logger (stderr or a rotating file), and
// masks data that should not reach logs: filters and email addresses are
// hashed unless PII logging is enabled, tokens are reduced to their length.
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "delete")
//	logger.Info("batch finished",
//	    logging.Count(50),
//	    logging.Status(logging.StatusSuccess))
package logging
