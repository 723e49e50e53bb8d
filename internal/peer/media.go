package peer

import (
	"context"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// MediaTrack is one acquired local audio source. Stop must be safe to
// call more than once.
type MediaTrack interface {
	Local() webrtc.TrackLocal
	Stop()
}

// MediaSource acquires the local microphone (or a stand-in for it). A
// capture failure is terminal for the attempt: the machine maps any error
// here to media_access_denied and never opens the relay connection.
type MediaSource interface {
	Capture(ctx context.Context) (MediaTrack, error)
}

// opusSilence is a canonical silent Opus frame.
var opusSilence = []byte{0xF8, 0xFF, 0xFE}

// SilentAudioSource provides a valid Opus track that plays silence. The
// headless agent uses it so negotiation produces real audio m-lines
// without depending on OS capture devices.
type SilentAudioSource struct{}

func (SilentAudioSource) Capture(_ context.Context) (MediaTrack, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		"safescan",
	)
	if err != nil {
		return nil, err
	}

	t := &silentTrack{track: track, done: make(chan struct{})}
	go t.pump()
	return t, nil
}

type silentTrack struct {
	track *webrtc.TrackLocalStaticSample

	stopOnce sync.Once
	done     chan struct{}
}

func (t *silentTrack) Local() webrtc.TrackLocal { return t.track }

func (t *silentTrack) Stop() {
	t.stopOnce.Do(func() { close(t.done) })
}

func (t *silentTrack) pump() {
	const frame = 20 * time.Millisecond
	ticker := time.NewTicker(frame)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := t.track.WriteSample(media.Sample{Data: opusSilence, Duration: frame}); err != nil {
				return
			}
		case <-t.done:
			return
		}
	}
}
