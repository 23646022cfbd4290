package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, propagated through the call chain via context.
const (
	FieldRequestID   = "request_id"
	FieldJobID       = "job_id"
	FieldNamespace   = "namespace"
	FieldContentHash = "content_hash"
	FieldComponent   = "component"
	FieldFormat      = "format"
)

// Per-entry metric fields.
const (
	FieldDurationMs = "duration_ms"
	FieldEngine     = "engine"
	FieldPage       = "page"
	FieldCount      = "count"
	FieldSize       = "size"
	FieldStatus     = "status"
	FieldProgress   = "progress"
)
