package service

// Standard field names used across logging calls
const (
	LogFieldSession   = "session"
	LogFieldMessageID = "message_id"
	LogFieldChatID    = "chat_id"
	LogFieldRecipient = "recipient"

	LogFieldRequestID = "request_id"
	LogFieldTraceID   = "trace_id"
	LogFieldMethod    = "method"
	LogFieldURL       = "url"
	LogFieldRemoteIP  = "remote_ip"
	LogFieldUserAgent = "user_agent"

	LogFieldStatusCode = "status_code"
	LogFieldDuration   = "duration_ms"
	LogFieldSize       = "size_bytes"

	LogFieldBatchSize = "batch_size"
)
