// Package rtc implements core.MediaConnection over pion against the SFU.
package rtc

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/simplechannel/client/internal/core"
)

type Peer struct {
	pc *webrtc.PeerConnection

	mu      sync.Mutex
	closed  bool
	onState func(webrtc.PeerConnectionState)
	onTrack func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
}

func Config(iceServers []string) webrtc.Configuration {
	servers := make([]webrtc.ICEServer, 0, len(iceServers))
	for _, u := range iceServers {
		servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
	}
	return webrtc.Configuration{ICEServers: servers}
}

func NewPeer(cfg webrtc.Configuration) (*Peer, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	p := &Peer{pc: pc}

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "rtc").Str("ice_state", s.String()).Msg("ICE state")
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer_connection_state", s.String()).Msg("peer state")
		p.mu.Lock()
		fn := p.onState
		p.mu.Unlock()
		if fn != nil {
			fn(s)
		}
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("remote track")
		p.mu.Lock()
		fn := p.onTrack
		p.mu.Unlock()
		if fn != nil {
			fn(track, receiver)
		}
	})
	return p, nil
}

func (p *Peer) OnStateChange(fn func(webrtc.PeerConnectionState)) {
	p.mu.Lock()
	p.onState = fn
	p.mu.Unlock()
}

func (p *Peer) OnTrack(fn func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)) {
	p.mu.Lock()
	p.onTrack = fn
	p.mu.Unlock()
}

// CreateAndSetOffer waits for ICE gathering so the offer already carries all
// candidates; the relay answers without a trickle phase.
func (p *Peer) CreateAndSetOffer() (*webrtc.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	<-gatherComplete
	return p.pc.LocalDescription(), nil
}

func (p *Peer) ApplyAnswer(answer webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(answer)
}

func (p *Peer) AddLocalTrack(track webrtc.TrackLocal) (core.TrackSender, error) {
	sender, err := p.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}
	return sender, nil
}

// AddVideoTransceiver reserves one sendrecv video slot; screen share reuses
// it via ReplaceTrack instead of renegotiating.
func (p *Peer) AddVideoTransceiver() (core.TrackSender, error) {
	tr, err := p.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendrecv,
	})
	if err != nil {
		return nil, err
	}
	return tr.Sender(), nil
}

func (p *Peer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	if err := p.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("close error")
	} else {
		log.Info().Str("module", "rtc").Msg("closed")
	}
}

var _ core.MediaConnection = (*Peer)(nil)
