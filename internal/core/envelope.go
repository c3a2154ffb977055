// Package core holds the wire protocol and the interfaces shared between the
// transport, session, dispatch and voice layers.
package core

import "encoding/json"

// Envelope is the immutable wire unit exchanged with the server.
// The dispatcher never mutates it.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound envelope types.
const (
	TypeAuthSuccess        = "auth_success"
	TypeAuthFailure        = "auth_failure"
	TypeChatBroadcast      = "chat_broadcast"
	TypeSystemMessage      = "system_message"
	TypeUserListUpdate     = "user_list_update"
	TypeChannelListUpdate  = "channel_list_update"
	TypeJoinChannelSuccess = "join_channel_success"
	TypeErrorMessage       = "error_message"
	TypeJoinVoiceSuccess   = "join_voice_success"
	TypeUserJoinedVoice    = "user_joined_voice"
	TypeUserLeftVoice      = "user_left_voice"
	TypeWebRTCSignal       = "webrtc_signal"
)

// Outbound envelope types.
const (
	TypeAuthRequest = "auth_request"
	TypeChatMessage = "chat_message"
	TypeCommand     = "command"
	TypeJoinVoice   = "join_voice"
	TypeLeaveVoice  = "leave_voice"
)

// NewEnvelope marshals payload into a typed envelope.
func NewEnvelope(t string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: t, Payload: raw}, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}
