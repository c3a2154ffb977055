// Package media abstracts local capture. Platform capture pipelines plug in
// as SampleSources; the voice controller only sees Tracks and Captures.
package media

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

var (
	// ErrNoDevice means no capture hardware is present. Joining a voice
	// channel degrades to listen-only.
	ErrNoDevice = errors.New("no capture device")
	// ErrPermissionDenied means the user (or OS) refused capture access.
	ErrPermissionDenied = errors.New("capture permission denied")
)

// SampleSource delivers encoded media samples, e.g. Opus frames from a
// microphone pipeline or H264 from a screen encoder. NextSample blocks until
// a sample is ready and returns io.EOF when the source ends.
type SampleSource interface {
	NextSample() (pionmedia.Sample, error)
	Close() error
}

// Track is one owned local track. Muting gates transmission locally without
// renegotiating the peer connection.
type Track interface {
	Local() webrtc.TrackLocal
	SetMuted(muted bool)
	Muted() bool
	Close() error
}

// Capture is a display capture: a video track plus optional capture audio.
type Capture interface {
	Video() webrtc.TrackLocal
	// Audio returns nil when the capture carries no audio.
	Audio() webrtc.TrackLocal
	// OnEnded fires when the capture stops outside our control (the user
	// ends it from the OS surface).
	OnEnded(fn func())
	Close() error
}

// Provider opens local devices. Implementations report ErrNoDevice and
// ErrPermissionDenied so callers can degrade with a specific reason.
type Provider interface {
	OpenMicrophone(ctx context.Context) (Track, error)
	OpenScreenCapture(ctx context.Context) (Capture, error)
}

func OpusCapability() webrtc.RTPCodecCapability {
	return webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: 48000,
		Channels:  2,
	}
}

func H264Capability() webrtc.RTPCodecCapability {
	return webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeH264,
		ClockRate: 90000,
	}
}
