// Package voice drives the voice-channel state machine: join/leave, the
// single peer connection to the SFU, and mute/deafen/screen-share control.
package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/simplechannel/client/internal/core"
	"github.com/simplechannel/client/internal/domain"
	"github.com/simplechannel/client/internal/media"
)

var (
	ErrNotInVoice    = errors.New("not in a voice channel")
	ErrNoMicrophone  = errors.New("no microphone track")
	ErrShareInactive = errors.New("screen share requires an established connection")
)

// PeerFactory builds the media connection to the relay.
type PeerFactory func() (core.MediaConnection, error)

type remoteKey struct {
	kind     string
	streamID string
}

type Controller struct {
	sender  core.SignalSender
	sink    core.VoiceSink
	media   media.Provider
	newPeer PeerFactory

	mu sync.Mutex
	// joined is set optimistically when the join intent is sent; the media
	// connection only exists after the server confirms (pc non-nil iff
	// connected).
	joined      bool
	connected   bool
	channelID   domain.ChannelID
	channelName string
	muted       bool
	deafened    bool
	sharing     bool

	pc          core.MediaConnection
	videoSender core.TrackSender
	micTrack    media.Track
	screen      media.Capture
	peerState   webrtc.PeerConnectionState
	remotes     map[remoteKey]*webrtc.TrackRemote
}

func NewController(sender core.SignalSender, sink core.VoiceSink, provider media.Provider, newPeer PeerFactory) *Controller {
	return &Controller{
		sender:  sender,
		sink:    sink,
		media:   provider,
		newPeer: newPeer,
		remotes: make(map[remoteKey]*webrtc.TrackRemote),
	}
}

// Join enters a voice channel. If another channel is active it is fully torn
// down first; setup never overlaps a previous session. Microphone access is
// best-effort: denial or missing hardware degrades to listen-only.
func (c *Controller) Join(ctx context.Context, channelID domain.ChannelID, channelName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.joined {
		c.leaveLocked()
	}

	if c.micTrack == nil {
		c.sink.OnVoiceStatus(core.VoiceMicRequest, "")
		track, err := c.media.OpenMicrophone(ctx)
		switch {
		case err == nil:
			c.micTrack = track
		case errors.Is(err, media.ErrNoDevice):
			c.sink.OnVoiceStatus(core.VoiceMicFailed, "no microphone found")
		default:
			c.sink.OnVoiceStatus(core.VoiceMicFailed, "microphone permission denied")
		}
	}

	c.sink.ShowVoicePanel(channelName)

	env, err := core.NewEnvelope(core.TypeJoinVoice, core.JoinVoice{ChannelID: channelID})
	if err != nil {
		return err
	}
	if err := c.sender.Send(env); err != nil {
		return fmt.Errorf("join voice: %w", err)
	}

	c.joined = true
	c.channelID = channelID
	c.channelName = channelName
	log.Info().Str("module", "voice").Int64("channel_id", int64(channelID)).Str("channel", channelName).Msg("join intent sent")
	return nil
}

// Leave is idempotent and always safe to call, including from the transport
// reconnect teardown path.
func (c *Controller) Leave() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leaveLocked()
}

func (c *Controller) leaveLocked() {
	if !c.joined {
		return
	}
	if c.sharing {
		c.stopScreenShareLocked()
	}

	if env, err := core.NewEnvelope(core.TypeLeaveVoice, core.LeaveVoice{ChannelID: c.channelID}); err == nil {
		// Best-effort: on a dead transport the server learns via its own
		// disconnect handling.
		_ = c.sender.Send(env)
	}

	if c.micTrack != nil {
		_ = c.micTrack.Close()
		c.micTrack = nil
	}
	if c.screen != nil {
		_ = c.screen.Close()
		c.screen = nil
	}
	if c.pc != nil {
		c.pc.Close()
		c.pc = nil
	}
	c.videoSender = nil
	c.connected = false
	c.joined = false
	c.channelID = 0
	c.channelName = ""
	c.muted = false
	c.deafened = false
	c.sharing = false
	c.peerState = webrtc.PeerConnectionStateNew
	c.remotes = make(map[remoteKey]*webrtc.TrackRemote)

	c.sink.DropRemoteTracks()
	c.sink.HideVoicePanel()
	c.sink.OnMuteChanged(false)
	c.sink.OnDeafenChanged(false)
	c.sink.OnScreenShareChanged(false)
	log.Info().Str("module", "voice").Msg("left voice channel")
}

// InVoice reports whether a voice channel is active (optimistically joined).
func (c *Controller) InVoice() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined
}

// HandleSignal consumes the voice-signaling envelope types. Unexpected or
// out-of-order signals are ignored; they must never crash the session.
func (c *Controller) HandleSignal(env core.Envelope) {
	switch env.Type {
	case core.TypeJoinVoiceSuccess:
		c.startConnection()
		c.mu.Lock()
		muted, deafened := c.muted, c.deafened
		c.mu.Unlock()
		c.sink.OnMuteChanged(muted)
		c.sink.OnDeafenChanged(deafened)

	case core.TypeWebRTCSignal:
		var sig core.WebRTCSignal
		if err := env.Decode(&sig); err != nil {
			log.Warn().Err(err).Str("module", "voice").Msg("bad signal payload, dropped")
			return
		}
		c.applySignal(sig.Data)

	case core.TypeUserJoinedVoice, core.TypeUserLeftVoice:
		var ev core.VoiceRoster
		if err := env.Decode(&ev); err != nil {
			log.Warn().Err(err).Str("module", "voice").Msg("bad roster payload, dropped")
			return
		}
		c.sink.OnVoiceRoster(ev, env.Type == core.TypeUserJoinedVoice)

	default:
		log.Warn().Str("module", "voice").Str("type", env.Type).Msg("unexpected voice signal, dropped")
	}
}

// startConnection builds the peer connection after the server confirmed the
// join, attaches the local audio track, reserves the video slot and sends
// the offer. The client always offers; the relay always answers.
func (c *Controller) startConnection() {
	c.mu.Lock()
	if !c.joined {
		c.mu.Unlock()
		return
	}
	if c.pc != nil {
		c.pc.Close()
		c.pc = nil
		c.connected = false
	}

	pc, err := c.newPeer()
	if err != nil {
		c.mu.Unlock()
		log.Error().Err(err).Str("module", "voice").Msg("new peer connection")
		c.sink.OnVoiceStatus(core.VoiceFailed, "could not create media connection")
		return
	}
	pc.OnTrack(c.handleRemoteTrack)
	pc.OnStateChange(c.handlePeerState)

	if c.micTrack != nil {
		if _, err := pc.AddLocalTrack(c.micTrack.Local()); err != nil {
			log.Error().Err(err).Str("module", "voice").Msg("add audio track")
		}
	}
	sender, err := pc.AddVideoTransceiver()
	if err != nil {
		c.mu.Unlock()
		pc.Close()
		log.Error().Err(err).Str("module", "voice").Msg("add video transceiver")
		c.sink.OnVoiceStatus(core.VoiceFailed, "could not negotiate media")
		return
	}
	c.videoSender = sender
	c.pc = pc
	c.connected = true
	c.mu.Unlock()

	c.sink.OnVoiceStatus(core.VoiceGathering, "")

	// Gathering happens outside the lock; peer callbacks may fire meanwhile.
	offer, err := pc.CreateAndSetOffer()
	if err != nil {
		log.Error().Err(err).Str("module", "voice").Msg("create offer")
		c.sink.OnVoiceStatus(core.VoiceFailed, "could not create offer")
		return
	}

	c.mu.Lock()
	stale := c.pc != pc
	c.mu.Unlock()
	if stale {
		return
	}

	env, err := core.NewEnvelope(core.TypeWebRTCSignal, core.WebRTCSignal{
		Data: core.SignalData{Type: "offer", SDP: offer.SDP},
	})
	if err != nil {
		return
	}
	if err := c.sender.Send(env); err != nil {
		log.Error().Err(err).Str("module", "voice").Msg("send offer")
	}
}

func (c *Controller) applySignal(data core.SignalData) {
	c.mu.Lock()
	pc := c.pc
	c.mu.Unlock()
	if pc == nil {
		return
	}
	// Only the relay's answer is expected; anything else is dropped.
	if data.Type != "answer" {
		log.Debug().Str("module", "voice").Str("type", data.Type).Msg("ignoring signal")
		return
	}
	if err := pc.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: data.SDP}); err != nil {
		log.Error().Err(err).Str("module", "voice").Msg("apply answer")
	}
}

func (c *Controller) handleRemoteTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	key := remoteKey{kind: track.Kind().String(), streamID: track.StreamID()}
	c.mu.Lock()
	c.remotes[key] = track
	c.mu.Unlock()
	// Same key updates the existing sink instead of adding a duplicate.
	c.sink.UpdateRemoteTrack(key.kind, key.streamID, track)
}

func (c *Controller) handlePeerState(s webrtc.PeerConnectionState) {
	c.mu.Lock()
	c.peerState = s
	joined, connected := c.joined, c.connected
	status, detail := c.mapStatusLocked()
	c.mu.Unlock()
	if !joined || !connected {
		return
	}
	c.sink.OnVoiceStatus(status, detail)
}

func (c *Controller) mapStatusLocked() (core.VoiceStatus, string) {
	switch c.peerState {
	case webrtc.PeerConnectionStateConnected:
		if c.sharing {
			return core.VoiceLive, ""
		}
		return core.VoiceConnected, ""
	case webrtc.PeerConnectionStateFailed:
		return core.VoiceFailed, ""
	case webrtc.PeerConnectionStateConnecting:
		return core.VoiceConnecting, "DTLS connecting"
	case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateClosed:
		return core.VoiceDisconnected, ""
	default:
		return core.VoiceGathering, ""
	}
}

// ToggleMute gates the local audio track. Local-only; no renegotiation.
func (c *Controller) ToggleMute(force ...bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.toggleMuteLocked(force...)
}

func (c *Controller) toggleMuteLocked(force ...bool) error {
	next := !c.muted
	if len(force) > 0 {
		next = force[0]
	}
	if c.micTrack == nil {
		return ErrNoMicrophone
	}
	c.micTrack.SetMuted(next)
	c.muted = next
	c.sink.OnMuteChanged(next)
	return nil
}

// ToggleDeafen silences every remote sink. Deafening also forces mute on:
// you cannot hear others while still transmitting. Undeafening does not
// auto-unmute.
func (c *Controller) ToggleDeafen(force ...bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := !c.deafened
	if len(force) > 0 {
		next = force[0]
	}
	c.sink.SetRemoteMuted(next)
	c.deafened = next
	if next && !c.muted {
		if err := c.toggleMuteLocked(true); err != nil && !errors.Is(err, ErrNoMicrophone) {
			log.Warn().Err(err).Str("module", "voice").Msg("mute on deafen")
		}
	}
	c.sink.OnDeafenChanged(next)
}

// ToggleScreenShare swaps the outbound video slot via track replacement, so
// no new offer/answer round-trip is needed.
func (c *Controller) ToggleScreenShare(ctx context.Context, force ...bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pc == nil || !c.joined {
		return ErrShareInactive
	}
	next := !c.sharing
	if len(force) > 0 {
		next = force[0]
	}
	if next == c.sharing {
		return nil
	}
	if !next {
		c.stopScreenShareLocked()
		c.emitStatusLocked()
		return nil
	}

	capture, err := c.media.OpenScreenCapture(ctx)
	if err != nil {
		return fmt.Errorf("open screen capture: %w", err)
	}
	if c.screen != nil {
		_ = c.screen.Close()
	}
	c.screen = capture

	if err := c.videoSender.ReplaceTrack(capture.Video()); err != nil {
		_ = capture.Close()
		c.screen = nil
		return fmt.Errorf("replace video track: %w", err)
	}
	if audio := capture.Audio(); audio != nil {
		if _, err := c.pc.AddLocalTrack(audio); err != nil {
			log.Warn().Err(err).Str("module", "voice").Msg("add capture audio track")
		} else if c.micTrack != nil {
			// Capture audio replaces the mic while sharing.
			c.micTrack.SetMuted(true)
		}
	}
	capture.OnEnded(func() {
		// The user ended capture from the OS surface.
		_ = c.ToggleScreenShare(context.Background(), false)
	})

	c.sharing = true
	c.sink.OnScreenShareChanged(true)
	c.sink.ShowLocalPreview(true)
	c.emitStatusLocked()
	return nil
}

func (c *Controller) stopScreenShareLocked() {
	if c.screen != nil {
		_ = c.screen.Close()
		c.screen = nil
	}
	if c.videoSender != nil {
		if err := c.videoSender.ReplaceTrack(nil); err != nil {
			log.Warn().Err(err).Str("module", "voice").Msg("clear video track")
		}
	}
	if c.micTrack != nil {
		c.micTrack.SetMuted(c.muted)
	}
	c.sharing = false
	c.sink.OnScreenShareChanged(false)
	c.sink.ShowLocalPreview(false)
}

func (c *Controller) emitStatusLocked() {
	if !c.connected {
		return
	}
	status, detail := c.mapStatusLocked()
	c.sink.OnVoiceStatus(status, detail)
}
