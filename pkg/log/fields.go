package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor (matches pkg/middleware/auth.go keys)
	FieldOperatorID = "operator_id"
	FieldRole       = "role"

	// Service
	FieldService = "service"

	// Relay / signaling
	FieldClientKey = "client_key"
	FieldDeviceID  = "device_id"
	FieldCmd       = "cmd"
	FieldTarget    = "target"

	// Program state
	FieldItemKind = "item_kind"
	FieldItemKey  = "item_key"
	FieldVersion  = "version"

	// Log type (for as-run log)
	FieldLogType = "log_type"
	LogTypeAsRun = "as_run"
)
