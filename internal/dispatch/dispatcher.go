// Package dispatch routes inbound envelopes by type. Voice-signaling types
// go exclusively to the voice controller; everything else goes to exactly one
// registered handler.
package dispatch

import (
	"github.com/rs/zerolog/log"

	"github.com/simplechannel/client/internal/core"
)

// HandlerFunc handles one envelope. Dispatch is synchronous per message, so
// handlers run in arrival order and never concurrently.
type HandlerFunc func(core.Envelope)

// VoiceHandler receives the fixed set of voice-signaling envelopes.
type VoiceHandler interface {
	HandleSignal(core.Envelope)
}

var voiceSignalTypes = map[string]struct{}{
	core.TypeJoinVoiceSuccess: {},
	core.TypeUserJoinedVoice:  {},
	core.TypeUserLeftVoice:    {},
	core.TypeWebRTCSignal:     {},
}

type Dispatcher struct {
	handlers map[string]HandlerFunc
	voice    VoiceHandler
}

func New(voice VoiceHandler) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		voice:    voice,
	}
}

// Register binds one handler per envelope type. Registering twice replaces
// the previous handler.
func (d *Dispatcher) Register(envType string, h HandlerFunc) {
	d.handlers[envType] = h
}

// Dispatch never panics and never forwards a voice signal to a general
// handler. Unrecognized types are logged and dropped.
func (d *Dispatcher) Dispatch(env core.Envelope) {
	if _, ok := voiceSignalTypes[env.Type]; ok {
		if d.voice != nil {
			d.voice.HandleSignal(env)
		}
		return
	}
	h, ok := d.handlers[env.Type]
	if !ok {
		log.Warn().Str("module", "dispatch").Str("type", env.Type).Msg("unknown envelope type, dropped")
		return
	}
	h(env)
}
