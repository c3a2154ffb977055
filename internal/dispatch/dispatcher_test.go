package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/simplechannel/client/internal/core"
)

type recordingVoice struct {
	signals []string
}

func (v *recordingVoice) HandleSignal(env core.Envelope) {
	v.signals = append(v.signals, env.Type)
}

func TestVoiceSignalsGoOnlyToVoiceController(t *testing.T) {
	voice := &recordingVoice{}
	d := New(voice)

	var general []string
	catchAll := func(env core.Envelope) { general = append(general, env.Type) }
	d.Register(core.TypeWebRTCSignal, catchAll) // must never fire
	d.Register(core.TypeChatBroadcast, catchAll)

	for _, typ := range []string{
		core.TypeJoinVoiceSuccess,
		core.TypeUserJoinedVoice,
		core.TypeUserLeftVoice,
		core.TypeWebRTCSignal,
	} {
		d.Dispatch(core.Envelope{Type: typ})
	}
	d.Dispatch(core.Envelope{Type: core.TypeChatBroadcast})

	assert.Equal(t, []string{
		core.TypeJoinVoiceSuccess,
		core.TypeUserJoinedVoice,
		core.TypeUserLeftVoice,
		core.TypeWebRTCSignal,
	}, voice.signals)
	assert.Equal(t, []string{core.TypeChatBroadcast}, general,
		"voice signals must not reach general handlers")
}

func TestUnknownTypeDropped(t *testing.T) {
	d := New(&recordingVoice{})
	assert.NotPanics(t, func() {
		d.Dispatch(core.Envelope{Type: "totally_unknown"})
	})
}

func TestDispatchPreservesOrder(t *testing.T) {
	d := New(&recordingVoice{})
	var got []string
	d.Register(core.TypeSystemMessage, func(env core.Envelope) {
		got = append(got, string(env.Payload))
	})
	for _, p := range []string{"1", "2", "3"} {
		d.Dispatch(core.Envelope{Type: core.TypeSystemMessage, Payload: []byte(p)})
	}
	assert.Equal(t, []string{"1", "2", "3"}, got)
}
