// Package observability provides structured logging and distributed
// tracing setup. Logging is built on log/slog with a redacting handler
// that keeps credentials out of log output. Tracing exports spans over
// OTLP gRPC when enabled and falls back to a no-op provider otherwise.
package observability
