// Package errors provides the classified error primitives used across analysisview.
//
// Every failure that crosses a component boundary (repository fetches, job starts,
// event decoding, configuration) is expressed as a ClassifiedError so callers can
// route it by category instead of matching strings:
//   - ErrorCategory: broad classification (network, api, job, event, cache, ...)
//   - ErrorSeverity: impact level (fatal, error, warning, info)
//   - RetryStrategy: whether and how the operation may be retried
//   - ErrorBuilder: fluent construction with structured context
//
// Example usage:
//
//	err := errors.NetworkError("fetch failed").
//		WithContext("project", project).
//		WithContext("kind", kind).
//		WithCause(cause).
//		Build()
package errors
