package pubsub

import "fmt"

// Channel naming conventions for the production session bus.
const (
	// Operator -> every window: program state deltas.
	ChannelProgram = "stage:session:%s:program"

	// Any window -> any window: ad-hoc control events.
	ChannelControl = "stage:session:%s:control"
)

// Event types on the program channel.
const (
	EventProgramDelta = "program_delta"
)

// Event types on the control channel. Names match the cross-window events
// the UI surfaces already listen for.
const (
	EventTranscriptionUpdate = "transcription-update"
	EventItemStaged          = "item-staged"
	EventStageUpdate         = "stage-update"
	EventSettingsChanged     = "settings-changed"
	EventSessionStatus       = "session-status"
	EventAudioLevel          = "audio-level"
	EventLowerThirdUpdate    = "lower-third-update"
	EventMediaControl        = "media-control"
)

// ProgramChannel returns the channel name for program state deltas.
func ProgramChannel(session string) string {
	return fmt.Sprintf(ChannelProgram, session)
}

// ControlChannel returns the channel name for control events.
func ControlChannel(session string) string {
	return fmt.Sprintf(ChannelControl, session)
}
