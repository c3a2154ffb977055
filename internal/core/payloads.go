package core

import "github.com/simplechannel/client/internal/domain"

// AuthAction selects the handshake variant inside an auth_request.
const (
	AuthActionLogin    = "login"
	AuthActionRegister = "register"
	AuthActionVerify   = "verify"
	AuthActionResume   = "resume"
)

type AuthRequest struct {
	Action   string `json:"action"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Email    string `json:"email,omitempty"`
	Token    string `json:"token,omitempty"`
}

// AuthSuccess carries the resolved profile. Token is only present on a fresh
// login; resume replies omit it.
type AuthSuccess struct {
	User    *domain.User `json:"user,omitempty"`
	Token   string       `json:"token,omitempty"`
	Message string       `json:"message,omitempty"`
}

type AuthFailure struct {
	Message string `json:"message"`
}

type ChatMessage struct {
	Message     string `json:"message"`
	ClientMsgID string `json:"client_msg_id"`
}

type ChatBroadcast struct {
	SenderUsername    string `json:"sender_username"`
	SenderDisplayName string `json:"sender_display_name,omitempty"`
	AvatarURL         string `json:"avatar_url,omitempty"`
	Message           string `json:"message"`
	Timestamp         string `json:"timestamp,omitempty"`
	ClientMsgID       string `json:"client_msg_id,omitempty"`
}

type SystemMessage struct {
	Message string `json:"message"`
}

type UserListUpdate struct {
	Users []domain.User `json:"users"`
}

type ChannelListUpdate struct {
	Channels []domain.Channel `json:"channels"`
}

type JoinChannelSuccess struct {
	ChannelID    domain.ChannelID `json:"channel_id"`
	ChannelName  string           `json:"channel_name"`
	ChannelTopic string           `json:"channel_topic,omitempty"`
	Users        []domain.User    `json:"users,omitempty"`
	History      []ChatBroadcast  `json:"history,omitempty"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

type Command struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

type JoinVoice struct {
	ChannelID domain.ChannelID `json:"channel_id"`
}

type LeaveVoice struct {
	ChannelID domain.ChannelID `json:"channel_id"`
}

type VoiceRoster struct {
	ChannelID domain.ChannelID `json:"channel_id"`
	UserID    domain.UserID    `json:"user_id,omitempty"`
	Username  string           `json:"username,omitempty"`
}

// SignalData is the inner offer/answer exchanged with the SFU. The client
// always offers; the relay always answers.
type SignalData struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type WebRTCSignal struct {
	Data SignalData `json:"data"`
}
