package domain

import (
	"encoding/json"
	"strings"
)

// Relay commands (client -> relay).
const (
	CmdAuth                    = "auth"
	CmdCameraOffer             = "camera_offer"
	CmdCameraAnswer            = "camera_answer"
	CmdCameraICE               = "camera_ice"
	CmdCameraConnectProgram    = "camera_connect_program"
	CmdCameraDisconnectProgram = "camera_disconnect_program"
	CmdBroadcast               = "broadcast"
	CmdCameraPreviewStop       = "camera_preview_stop"

	// Remote panel commands, answered by the operator window.
	CmdGetState = "get_state"
	CmdGetSongs = "get_songs"
	CmdGoLive   = "go_live"
	CmdShowLT   = "show_lt"
	CmdHideLT   = "hide_lt"
)

// Relay message types (relay -> client).
const (
	TypeAuthOK                   = "auth_ok"
	TypeAuthFail                 = "auth_fail"
	TypeCameraSourceConnected    = "camera_source_connected"
	TypeCameraSourceDisconnected = "camera_source_disconnected"
	TypeState                    = "state"
	TypeLTUpdate                 = "lt_update"
	TypeSongs                    = "songs"
	TypeError                    = "error"
)

// Device events routed to a mobile client.
const (
	EventConnectProgram    = "connect_program"
	EventDisconnectProgram = "disconnect_program"
)

// Client types announced during auth.
const (
	ClientWindowMain   = "window:main"
	ClientWindowOutput = "window:output"
	ClientMobile       = "mobile"
	ClientRemote       = "remote"
)

// Target shorthands.
const (
	TargetOperator = "operator"
	TargetOutput   = "output"
)

// FromField is injected by the relay into every targeted message.
const FromField = "_from"

// AuthMessage is the first frame a client sends.
type AuthMessage struct {
	Cmd        string `json:"cmd"`
	PIN        string `json:"pin"`
	ClientType string `json:"client_type,omitempty"`
	DeviceID   string `json:"device_id,omitempty"`
	DeviceName string `json:"device_name,omitempty"`
}

// Envelope is the subset of fields the relay inspects on every frame.
type Envelope struct {
	Cmd      string `json:"cmd,omitempty"`
	Type     string `json:"type,omitempty"`
	Event    string `json:"event,omitempty"`
	Target   string `json:"target,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
	From     string `json:"_from,omitempty"`
}

// SourceMessage announces a mobile camera joining or leaving.
type SourceMessage struct {
	Type       string `json:"type"`
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name,omitempty"`
}

// SDPMessage carries an offer or answer.
type SDPMessage struct {
	Cmd      string `json:"cmd"`
	DeviceID string `json:"device_id"`
	Target   string `json:"target"`
	SDP      string `json:"sdp"`
	From     string `json:"_from,omitempty"`
}

// ICECandidate mirrors the browser RTCIceCandidateInit.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// ICEMessage carries one trickled candidate.
type ICEMessage struct {
	Cmd       string       `json:"cmd"`
	DeviceID  string       `json:"device_id"`
	Target    string       `json:"target"`
	Candidate ICECandidate `json:"candidate"`
	From      string       `json:"_from,omitempty"`
}

// PreviewStopMessage tells a mobile its preview consumer went away.
type PreviewStopMessage struct {
	Cmd      string `json:"cmd"`
	DeviceID string `json:"device_id"`
	Target   string `json:"target"`
}

// ProgramCommand asks the relay to start or stop a device's program push.
type ProgramCommand struct {
	Cmd      string `json:"cmd"`
	DeviceID string `json:"device_id"`
}

// DeviceEvent is what a mobile receives for a ProgramCommand.
type DeviceEvent struct {
	Event string `json:"event"`
}

// BroadcastCommand asks the relay to fan Message out to every client. Only
// the operator window may send it.
type BroadcastCommand struct {
	Cmd     string          `json:"cmd"`
	Message json.RawMessage `json:"message"`
}

// RemoteCommand is a remote panel request forwarded to the operator.
type RemoteCommand struct {
	Cmd      string          `json:"cmd"`
	Item     json.RawMessage `json:"item,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Template json.RawMessage `json:"template,omitempty"`
	From     string          `json:"_from,omitempty"`
}

// StateMessage answers get_state and go_live.
type StateMessage struct {
	Type     string             `json:"type"`
	LiveItem *ItemEnvelope      `json:"live_item"`
	LT       *LowerThirdPayload `json:"lt"`
}

// LTUpdateMessage is broadcast after show_lt and hide_lt.
type LTUpdateMessage struct {
	Type    string             `json:"type"`
	Payload *LowerThirdPayload `json:"payload"`
}

// SongsMessage answers get_songs with the song library.
type SongsMessage struct {
	Type  string `json:"type"`
	Songs []Song `json:"songs"`
}

// ErrorMessage reports a rejected command. Target is set when the reply
// is routed back through the relay.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Target  string `json:"target,omitempty"`
}

// MobileKey is the relay key of a mobile device.
func MobileKey(deviceID string) string {
	return "mobile:" + deviceID
}

// DeviceFromKey returns the device id of a mobile key.
func DeviceFromKey(key string) (string, bool) {
	id, ok := strings.CutPrefix(key, "mobile:")
	return id, ok && id != ""
}

// NormalizeTarget maps shorthands to canonical client keys.
func NormalizeTarget(target string) string {
	switch target {
	case TargetOperator:
		return ClientWindowMain
	case TargetOutput:
		return ClientWindowOutput
	default:
		return target
	}
}
