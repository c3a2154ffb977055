package core

import (
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/simplechannel/client/internal/domain"
)

// LogHandler is a basic EventHandler/VoiceSink that only logs. Embed it to
// override the callbacks you care about.
type LogHandler struct{}

var (
	_ EventHandler = (*LogHandler)(nil)
	_ VoiceSink    = (*LogHandler)(nil)
)

func (LogHandler) OnConnectivity(c Connectivity) {
	log.Info().Str("module", "events").Stringer("state", c.State).Int("attempt", c.Attempt).Msg("connectivity")
}

func (LogHandler) OnAuthenticated(u domain.User) {
	log.Info().Str("module", "events").Str("username", u.Username).Msg("authenticated")
}

func (LogHandler) OnAuthRequired(reason string) {
	log.Warn().Str("module", "events").Str("reason", reason).Msg("re-authentication required")
}

func (LogHandler) OnComposerEnabled(enabled bool) {
	log.Debug().Str("module", "events").Bool("enabled", enabled).Msg("composer")
}

func (LogHandler) OnChatMessage(msg ChatBroadcast, pending bool) {
	log.Info().Str("module", "events").Str("from", msg.SenderUsername).Bool("pending", pending).Msg(msg.Message)
}

func (LogHandler) OnChatResolved(clientMsgID string, _ ChatBroadcast) {
	log.Debug().Str("module", "events").Str("client_msg_id", clientMsgID).Msg("chat resolved")
}

func (LogHandler) OnActionFailed(clientMsgID string, _ any, reason string) {
	log.Warn().Str("module", "events").Str("client_msg_id", clientMsgID).Str("reason", reason).Msg("action failed")
}

func (LogHandler) OnSystemMessage(message string) {
	log.Info().Str("module", "events").Msg(message)
}

func (LogHandler) OnUserList(users []domain.User) {
	log.Debug().Str("module", "events").Int("users", len(users)).Msg("user list update")
}

func (LogHandler) OnChannelList(channels []domain.Channel) {
	log.Debug().Str("module", "events").Int("channels", len(channels)).Msg("channel list update")
}

func (LogHandler) OnChannelJoined(info JoinChannelSuccess) {
	log.Info().Str("module", "events").Str("channel", info.ChannelName).Msg("joined channel")
}

func (LogHandler) OnServerError(message string) {
	log.Error().Str("module", "events").Msg(message)
}

func (LogHandler) OnVoiceStatus(status VoiceStatus, detail string) {
	log.Info().Str("module", "events").Str("status", string(status)).Str("detail", detail).Msg("voice status")
}

func (LogHandler) ShowVoicePanel(channelName string) {
	log.Info().Str("module", "events").Str("channel", channelName).Msg("voice panel shown")
}

func (LogHandler) HideVoicePanel() {
	log.Info().Str("module", "events").Msg("voice panel hidden")
}

func (LogHandler) OnMuteChanged(muted bool) {
	log.Info().Str("module", "events").Bool("muted", muted).Msg("mute")
}

func (LogHandler) OnDeafenChanged(deafened bool) {
	log.Info().Str("module", "events").Bool("deafened", deafened).Msg("deafen")
}

func (LogHandler) OnScreenShareChanged(sharing bool) {
	log.Info().Str("module", "events").Bool("sharing", sharing).Msg("screen share")
}

func (LogHandler) UpdateRemoteTrack(kind, streamID string, _ *webrtc.TrackRemote) {
	log.Info().Str("module", "events").Str("kind", kind).Str("stream_id", streamID).Msg("remote track")
}

func (LogHandler) DropRemoteTracks() {
	log.Debug().Str("module", "events").Msg("remote tracks dropped")
}

func (LogHandler) SetRemoteMuted(muted bool) {
	log.Debug().Str("module", "events").Bool("muted", muted).Msg("remote sinks muted")
}

func (LogHandler) ShowLocalPreview(show bool) {
	log.Debug().Str("module", "events").Bool("show", show).Msg("local preview")
}

func (LogHandler) OnVoiceRoster(ev VoiceRoster, joined bool) {
	log.Info().Str("module", "events").Str("username", ev.Username).Bool("joined", joined).Msg("voice roster")
}
