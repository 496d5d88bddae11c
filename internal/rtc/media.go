package rtc

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

// CaptureConstraints mirror what the portal requests from the browser:
// 720p video plus processed audio. A device is free to deliver less.
type CaptureConstraints struct {
	Video  bool
	Width  int
	Height int

	Audio            bool
	EchoCancellation bool
	NoiseSuppression bool
}

// DefaultConstraints is what a consultation asks for up front.
func DefaultConstraints() CaptureConstraints {
	return CaptureConstraints{
		Video:            true,
		Width:            1280,
		Height:           720,
		Audio:            true,
		EchoCancellation: true,
		NoiseSuppression: true,
	}
}

// CaptureDevice produces local media. Implementations report acquisition
// failures with ErrPermissionDenied / ErrNoDevice wrapped in, so the
// controller can classify them for the UI.
type CaptureDevice interface {
	Capture(ctx context.Context, c CaptureConstraints) (*LocalMedia, error)
}

// MediaTrack is one local track plus its enabled gate. Toggling the gate
// never touches the peer connection; a disabled track keeps its sender and
// simply goes quiet.
type MediaTrack struct {
	local   webrtc.TrackLocal
	enabled atomic.Bool
	stop    func()
}

// NewMediaTrack wraps a pion track. stop releases whatever feeds the track
// and may be nil.
func NewMediaTrack(local webrtc.TrackLocal, stop func()) *MediaTrack {
	t := &MediaTrack{local: local, stop: stop}
	t.enabled.Store(true)
	return t
}

func (t *MediaTrack) Local() webrtc.TrackLocal { return t.local }

func (t *MediaTrack) Enabled() bool { return t.enabled.Load() }

// Toggle flips the enabled gate and returns the new value.
func (t *MediaTrack) Toggle() bool {
	for {
		old := t.enabled.Load()
		if t.enabled.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// Stop releases the track's source. Safe to call more than once.
func (t *MediaTrack) Stop() {
	if t.stop != nil {
		t.stop()
		t.stop = nil
	}
}

// LocalMedia is the capture result: an audio track and, unless the device
// fell back to audio-only, a video track.
type LocalMedia struct {
	Audio *MediaTrack
	Video *MediaTrack // nil in audio-only mode
}

// Tracks returns the pion tracks to attach to a peer connection.
func (m *LocalMedia) Tracks() []webrtc.TrackLocal {
	var tracks []webrtc.TrackLocal
	if m.Audio != nil {
		tracks = append(tracks, m.Audio.Local())
	}
	if m.Video != nil {
		tracks = append(tracks, m.Video.Local())
	}
	return tracks
}

// Stop releases every local track. Best-effort, called on teardown.
func (m *LocalMedia) Stop() {
	if m.Audio != nil {
		m.Audio.Stop()
	}
	if m.Video != nil {
		m.Video.Stop()
	}
}

// acquireMedia runs the acquisition ladder: camera+microphone first, then
// audio-only with a degraded flag, then a classified failure. The
// classification on double failure comes from the audio attempt, since that
// is the one that decides whether a call is possible at all.
func acquireMedia(ctx context.Context, device CaptureDevice, c CaptureConstraints) (*LocalMedia, bool, *CallError) {
	media, err := device.Capture(ctx, c)
	if err == nil {
		return media, false, nil
	}
	slog.Warn("full capture failed, trying audio-only", "error", err)

	audioOnly := c
	audioOnly.Video = false

	media, audioErr := device.Capture(ctx, audioOnly)
	if audioErr == nil {
		return media, true, nil
	}

	return nil, false, NewError("acquire media", audioErr)
}
