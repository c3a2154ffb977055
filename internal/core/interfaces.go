package core

import (
	"errors"

	"github.com/pion/webrtc/v4"

	"github.com/simplechannel/client/internal/domain"
)

var (
	// ErrNotConnected is reported when a send is attempted while the
	// transport is not Open. Callers must treat send as best-effort.
	ErrNotConnected = errors.New("transport not connected")
	// ErrNoCredential is returned synchronously by connect when no bearer
	// token is available; the caller must re-authenticate instead.
	ErrNoCredential = errors.New("no session credential")
)

// SignalSender is the outbound half of the session transport.
type SignalSender interface {
	Send(Envelope) error
}

// TrackSender is a slot for one outbound track. Replacing the track reuses
// the negotiated slot, so no new offer/answer round-trip happens.
type TrackSender interface {
	ReplaceTrack(track webrtc.TrackLocal) error
}

// MediaConnection abstracts the single peer connection to the SFU.
// Owned exclusively by the voice controller; nothing else may touch it.
type MediaConnection interface {
	// Close stops all underlying media resources. Safe to call twice.
	Close()
	// CreateAndSetOffer produces the local description with ICE candidates
	// already gathered (non-trickle).
	CreateAndSetOffer() (*webrtc.SessionDescription, error)
	// ApplyAnswer applies the relay's answer as the remote description.
	ApplyAnswer(webrtc.SessionDescription) error
	// AddLocalTrack attaches a local track to the underlying PeerConnection.
	AddLocalTrack(track webrtc.TrackLocal) (TrackSender, error)
	// AddVideoTransceiver adds a sendrecv video slot so incoming video and
	// outgoing screen share work without renegotiation.
	AddVideoTransceiver() (TrackSender, error)
	// OnTrack sets a callback invoked when a new remote track arrives.
	OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	// OnStateChange sets a callback for peer connection state transitions.
	OnStateChange(func(webrtc.PeerConnectionState))
}

// EventHandler is the collaborator surface for everything except voice.
// Callbacks are invoked sequentially from the session event loop, never
// concurrently with each other.
type EventHandler interface {
	OnConnectivity(Connectivity)
	OnAuthenticated(domain.User)
	// OnAuthRequired fires when the stored token is rejected; the token has
	// already been cleared and no reconnect will be scheduled.
	OnAuthRequired(reason string)
	OnComposerEnabled(enabled bool)
	// OnChatMessage delivers both confirmed broadcasts and the local
	// optimistic echo (pending=true).
	OnChatMessage(msg ChatBroadcast, pending bool)
	// OnChatResolved drops the "sending" decoration for clientMsgID.
	OnChatResolved(clientMsgID string, msg ChatBroadcast)
	// OnActionFailed rolls back the optimistic placeholder for clientMsgID.
	OnActionFailed(clientMsgID string, placeholder any, reason string)
	OnSystemMessage(message string)
	OnUserList(users []domain.User)
	OnChannelList(channels []domain.Channel)
	OnChannelJoined(info JoinChannelSuccess)
	OnServerError(message string)
}

// VoiceSink is the collaborator surface for voice-related rendering.
type VoiceSink interface {
	OnVoiceStatus(status VoiceStatus, detail string)
	ShowVoicePanel(channelName string)
	HideVoicePanel()
	OnMuteChanged(muted bool)
	OnDeafenChanged(deafened bool)
	OnScreenShareChanged(sharing bool)
	// UpdateRemoteTrack is keyed by (kind, streamID): repeated signaling for
	// the same stream updates the existing sink instead of duplicating it.
	UpdateRemoteTrack(kind, streamID string, track *webrtc.TrackRemote)
	DropRemoteTracks()
	// SetRemoteMuted silences every rendered remote audio/video sink.
	SetRemoteMuted(muted bool)
	ShowLocalPreview(show bool)
	OnVoiceRoster(ev VoiceRoster, joined bool)
}
