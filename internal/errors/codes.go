// Package errors provides structured error handling for openclaw-memory.
//
// Every failure that crosses a package boundary is wrapped into a MemoryError
// carrying one of the codes below, so MCP handlers and the CLI can map
// failures to user-facing replies without string matching.
package errors

// Code identifies the failure class of a MemoryError.
type Code string

const (
	// CodeConfig indicates invalid or unreadable configuration.
	CodeConfig Code = "CONFIG"
	// CodeStorage indicates an index or filesystem failure.
	CodeStorage Code = "STORAGE"
	// CodeEmbeddingUnavailable indicates the embedding provider cannot be reached.
	CodeEmbeddingUnavailable Code = "EMBEDDING_UNAVAILABLE"
	// CodeQualityRejected indicates a write was rejected by the quality gate.
	CodeQualityRejected Code = "QUALITY_REJECTED"
	// CodePrivacyRejected indicates a write matched a privacy pattern.
	CodePrivacyRejected Code = "PRIVACY_REJECTED"
	// CodeNotFound indicates a requested file or chunk does not exist.
	CodeNotFound Code = "NOT_FOUND"
	// CodeCancelled indicates the context was cancelled or timed out.
	CodeCancelled Code = "CANCELLED"
	// CodeInternal indicates an unexpected internal failure.
	CodeInternal Code = "INTERNAL"
)

// retryable codes can succeed on a later attempt without operator action.
var retryable = map[Code]bool{
	CodeEmbeddingUnavailable: true,
	CodeCancelled:            true,
}
