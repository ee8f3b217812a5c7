// Package observability provides logging and metrics support for the
// research answer service.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for questions, pipeline stages, searches, the
//     query cache and LLM calls
//   - Context helpers for propagating the request ID
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Str("request_id", reqID).Msg("question received")
//
// Add request and stage context to a logger:
//
//	logger = observability.WithRequestContext(logger, requestID)
//	logger = observability.WithStageContext(logger, "retrieving")
//
// # Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics("research_answer")
//
// Record metrics:
//
//	metrics.RecordQuestionStarted()
//	metrics.RecordSearchCompleted("arXiv", 12, 0.8)
//	metrics.RecordCacheLookup(true)
//
// # Standard Fields
//
// Common fields used across the service:
//
//   - request_id: HTTP request identifier
//   - component: emitting component (aggregator, pipeline, llm, ...)
//   - stage: pipeline stage
//   - source: paper source (Semantic Scholar, arXiv, PubMed, CORE)
//   - term: search term sent to a source
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
