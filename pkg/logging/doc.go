// Package logging provides structured logging configuration for wmjp.
//
// This package wraps log/slog so the client, orchestrator, stores and admin
// API log the same way. Components take a *slog.Logger option and default
// to Nop().
//
// # Usage
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.ParseLevel("debug"),
//	    Format: logging.FormatJSON,
//	})
//
//	logger.Info("sync finished", "succeeded", 3, "failed", 1)
//
// # Output Formats
//
//   - Text: Human-readable format for terminals
//   - JSON: Structured format for log aggregation systems
//
// Setting Config.Mirror additionally tees every record as JSON to a second
// writer through MultiHandler.
package logging
