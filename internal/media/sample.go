package media

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// sampleTrack pumps a SampleSource into a TrackLocalStaticSample. While
// muted, samples are consumed but not written, so source timing is kept.
type sampleTrack struct {
	track *webrtc.TrackLocalStaticSample
	src   SampleSource

	mu      sync.Mutex
	muted   bool
	closed  bool
	onEnded func()
	done    chan struct{}
}

func newSampleTrack(id, streamID string, codec webrtc.RTPCodecCapability, src SampleSource) (*sampleTrack, error) {
	track, err := webrtc.NewTrackLocalStaticSample(codec, id, streamID)
	if err != nil {
		return nil, err
	}
	t := &sampleTrack{
		track: track,
		src:   src,
		done:  make(chan struct{}),
	}
	go t.pump()
	return t, nil
}

func (t *sampleTrack) pump() {
	defer close(t.done)
	for {
		sample, err := t.src.NextSample()
		if err != nil {
			t.mu.Lock()
			closed, ended := t.closed, t.onEnded
			t.mu.Unlock()
			if !closed {
				log.Debug().Err(err).Str("module", "media").Str("track", t.track.ID()).Msg("sample source ended")
				if ended != nil {
					// Async so Close can never wait on a callback that is
					// itself waiting on the caller's lock.
					go ended()
				}
			}
			return
		}
		t.mu.Lock()
		muted := t.muted
		t.mu.Unlock()
		if muted {
			continue
		}
		if err := t.track.WriteSample(sample); err != nil {
			log.Warn().Err(err).Str("module", "media").Str("track", t.track.ID()).Msg("write sample")
		}
	}
}

func (t *sampleTrack) Local() webrtc.TrackLocal { return t.track }

func (t *sampleTrack) SetMuted(muted bool) {
	t.mu.Lock()
	t.muted = muted
	t.mu.Unlock()
}

func (t *sampleTrack) Muted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.muted
}

func (t *sampleTrack) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()
	err := t.src.Close()
	<-t.done
	return err
}

func (t *sampleTrack) setOnEnded(fn func()) {
	t.mu.Lock()
	t.onEnded = fn
	t.mu.Unlock()
}

// ScreenSources bundles the sources a display-capture pipeline produced.
// Audio may be nil.
type ScreenSources struct {
	Video SampleSource
	Audio SampleSource
}

type screenCapture struct {
	video *sampleTrack
	audio *sampleTrack
}

func (c *screenCapture) Video() webrtc.TrackLocal { return c.video.Local() }

func (c *screenCapture) Audio() webrtc.TrackLocal {
	if c.audio == nil {
		return nil
	}
	return c.audio.Local()
}

func (c *screenCapture) OnEnded(fn func()) { c.video.setOnEnded(fn) }

func (c *screenCapture) Close() error {
	err := c.video.Close()
	if c.audio != nil {
		if aerr := c.audio.Close(); err == nil {
			err = aerr
		}
	}
	return err
}

// SourceProvider is the default Provider: capture pipelines are injected as
// factories. A nil factory reports ErrNoDevice.
type SourceProvider struct {
	Mic    func(ctx context.Context) (SampleSource, error)
	Screen func(ctx context.Context) (ScreenSources, error)
}

func (p SourceProvider) OpenMicrophone(ctx context.Context) (Track, error) {
	if p.Mic == nil {
		return nil, ErrNoDevice
	}
	src, err := p.Mic(ctx)
	if err != nil {
		return nil, err
	}
	return newSampleTrack("audio", "local", OpusCapability(), src)
}

func (p SourceProvider) OpenScreenCapture(ctx context.Context) (Capture, error) {
	if p.Screen == nil {
		return nil, ErrNoDevice
	}
	srcs, err := p.Screen(ctx)
	if err != nil {
		return nil, err
	}
	video, err := newSampleTrack("screen", "screen", H264Capability(), srcs.Video)
	if err != nil {
		return nil, err
	}
	cap := &screenCapture{video: video}
	if srcs.Audio != nil {
		audio, err := newSampleTrack("screen-audio", "screen", OpusCapability(), srcs.Audio)
		if err != nil {
			_ = video.Close()
			return nil, err
		}
		cap.audio = audio
	}
	return cap, nil
}
