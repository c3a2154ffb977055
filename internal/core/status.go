package core

import "time"

// ConnState is the user-visible connectivity of the session transport.
type ConnState int

const (
	ConnConnected ConnState = iota
	ConnDisconnected
	ConnTerminal
)

func (s ConnState) String() string {
	switch s {
	case ConnConnected:
		return "connected"
	case ConnDisconnected:
		return "disconnected"
	case ConnTerminal:
		return "terminal-failure"
	}
	return "unknown"
}

// Connectivity is emitted to collaborators on every transport-level change.
// Attempt/MaxAttempts and RetryIn are only meaningful while disconnected.
type Connectivity struct {
	State       ConnState
	Attempt     int
	MaxAttempts int
	RetryIn     time.Duration
}

// VoiceStatus is the user-visible state of the voice session, mapped from the
// underlying peer-connection state plus local screen-share state.
type VoiceStatus string

const (
	VoiceGathering    VoiceStatus = "gathering"
	VoiceConnecting   VoiceStatus = "connecting"
	VoiceConnected    VoiceStatus = "connected"
	VoiceLive         VoiceStatus = "live"
	VoiceFailed       VoiceStatus = "failed"
	VoiceMicRequest   VoiceStatus = "mic_request"
	VoiceMicFailed    VoiceStatus = "mic_failed"
	VoiceDisconnected VoiceStatus = "disconnected"
)
