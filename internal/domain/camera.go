package domain

// ConnectionState is the externally visible state of a camera session.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
)

// CameraRole separates monitoring consumers from the broadcast consumer.
type CameraRole string

const (
	RolePreview CameraRole = "preview"
	RoleProgram CameraRole = "program"
)

// CameraSource is a remote device known to the registry. The peer
// connection itself is never exposed.
type CameraSource struct {
	DeviceID        string          `json:"device_id"`
	Name            string          `json:"device_name"`
	ConnectionState ConnectionState `json:"connection_state"`
	PreviewEnabled  bool            `json:"preview_enabled"`
	Program         bool            `json:"program"`
}
