package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, propagated through the call chain via context.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the maintenance job ID
	FieldJobID = "job_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldMemeID is the meme record ID
	FieldMemeID = "meme_id"

	// FieldCommand is the chat command being handled
	FieldCommand = "command"

	// FieldUserID is the chat user ID of the caller
	FieldUserID = "user_id"

	// FieldChatID is the chat the command arrived in
	FieldChatID = "chat_id"
)

// Metric fields, used for aggregation and alerting.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
