package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/chogalesoham/TeleMedAI-Project-sub002/internal/sigclient"
	"github.com/chogalesoham/TeleMedAI-Project-sub002/internal/signaling"
)

// fakeSignaler records everything the controller sends and lets tests feed
// relay events in.
type fakeSignaler struct {
	mu         sync.Mutex
	events     chan sigclient.Event
	joins      []string
	offers     []webrtc.SessionDescription
	answers    []webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	leaves     int
	closed     bool
}

func newFakeSignaler() *fakeSignaler {
	return &fakeSignaler{events: make(chan sigclient.Event, 32)}
}

func (f *fakeSignaler) JoinRoom(consultationID, userType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, consultationID+"/"+userType)
	return nil
}

func (f *fakeSignaler) SendOffer(_ string, sdp webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers = append(f.offers, sdp)
	return nil
}

func (f *fakeSignaler) SendAnswer(_ string, sdp webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, sdp)
	return nil
}

func (f *fakeSignaler) SendCandidate(_ string, cand webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, cand)
	return nil
}

func (f *fakeSignaler) LeaveRoom(string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves++
	return nil
}

func (f *fakeSignaler) Events() <-chan sigclient.Event { return f.events }

func (f *fakeSignaler) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSignaler) offerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.offers)
}

func (f *fakeSignaler) answerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.answers)
}

func (f *fakeSignaler) wasClosed() (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leaves, f.closed
}

// fakeDevice builds real pion tracks but lets tests fail either capture leg.
type fakeDevice struct {
	failVideo error
	failAudio error

	mu      sync.Mutex
	stopped int
}

func (d *fakeDevice) Capture(_ context.Context, c CaptureConstraints) (*LocalMedia, error) {
	if c.Video && d.failVideo != nil {
		return nil, d.failVideo
	}
	if c.Audio && d.failAudio != nil {
		return nil, d.failAudio
	}

	out := &LocalMedia{}
	if c.Audio {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: 8000}, "audio", "test")
		if err != nil {
			return nil, err
		}
		out.Audio = NewMediaTrack(track, d.markStopped)
	}
	if c.Video {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}, "video", "test")
		if err != nil {
			return nil, err
		}
		out.Video = NewMediaTrack(track, d.markStopped)
	}
	return out, nil
}

func (d *fakeDevice) markStopped() {
	d.mu.Lock()
	d.stopped++
	d.mu.Unlock()
}

func (d *fakeDevice) stopCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

func startController(t *testing.T, sig *fakeSignaler, device CaptureDevice) *Controller {
	t.Helper()
	ctrl := NewController(Config{
		ConsultationID: "R1",
		UserType:       signaling.UserTypePatient,
		Device:         device,
		Dial: func(context.Context) (Signaler, error) {
			return sig, nil
		},
		ReconnectDelay: 100 * time.Millisecond,
	})
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		ctrl.Close()
		select {
		case <-ctrl.Done():
		case <-time.After(2 * time.Second):
		}
	})
	return ctrl
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// newRemoteOffer produces a real SDP offer with audio and video sections,
// standing in for the far participant.
func newRemoteOffer(t *testing.T) webrtc.SessionDescription {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { pc.Close() })

	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: 8000}, "audio", "remote")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pc.AddTrack(audio); err != nil {
		t.Fatal(err)
	}
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}, "video", "remote")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pc.AddTrack(video); err != nil {
		t.Fatal(err)
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		t.Fatal(err)
	}
	return *pc.LocalDescription()
}

func TestStartJoinsRoom(t *testing.T) {
	sig := newFakeSignaler()
	ctrl := startController(t, sig, &fakeDevice{})

	snap := ctrl.Snapshot()
	if snap.State != StateAwaitingPeer {
		t.Fatalf("state = %s, want awaiting-peer", snap.State)
	}
	if snap.AudioOnly {
		t.Fatal("unexpected audio-only mode")
	}

	sig.mu.Lock()
	defer sig.mu.Unlock()
	if len(sig.joins) != 1 || sig.joins[0] != "R1/patient" {
		t.Fatalf("joins = %v", sig.joins)
	}
}

func TestMediaFallbackToAudioOnly(t *testing.T) {
	sig := newFakeSignaler()
	device := &fakeDevice{failVideo: fmt.Errorf("open camera: %w", ErrNoDevice)}
	ctrl := startController(t, sig, device)

	snap := ctrl.Snapshot()
	if !snap.AudioOnly {
		t.Fatal("expected degraded audio-only mode")
	}
	if snap.CameraEnabled {
		t.Fatal("camera reported enabled without a video track")
	}
	if !snap.MicEnabled {
		t.Fatal("mic should be enabled")
	}
}

func TestMediaFailureIsTerminalAndClassified(t *testing.T) {
	sig := newFakeSignaler()
	device := &fakeDevice{
		failVideo: fmt.Errorf("open camera: %w", ErrPermissionDenied),
		failAudio: fmt.Errorf("open microphone: %w", ErrPermissionDenied),
	}

	ctrl := NewController(Config{
		ConsultationID: "R1",
		UserType:       signaling.UserTypeDoctor,
		Device:         device,
		Dial:           func(context.Context) (Signaler, error) { return sig, nil },
	})

	err := ctrl.Start(context.Background())
	if err == nil {
		t.Fatal("expected start to fail")
	}

	var cerr *CallError
	if !errors.As(err, &cerr) {
		t.Fatalf("error type %T", err)
	}
	if cerr.Kind != KindPermissionDenied {
		t.Fatalf("kind = %s, want permission-denied", cerr.Kind)
	}
	if cerr.UserMessage() == "" {
		t.Fatal("no user-facing message")
	}

	snap := ctrl.Snapshot()
	if snap.State != StateFailed {
		t.Fatalf("state = %s, want failed (not closed)", snap.State)
	}
}

func TestBecomesOffererOnUserJoined(t *testing.T) {
	sig := newFakeSignaler()
	ctrl := startController(t, sig, &fakeDevice{})

	sig.events <- sigclient.Event{
		Type:     signaling.MessageTypeUserJoined,
		UserID:   "peer-1",
		UserType: signaling.UserTypeDoctor,
	}

	waitFor(t, func() bool { return sig.offerCount() == 1 }, "offer to be sent")
	waitFor(t, func() bool { return ctrl.Snapshot().State == StateNegotiating }, "negotiating state")

	sig.mu.Lock()
	offer := sig.offers[0]
	sig.mu.Unlock()
	if offer.Type != webrtc.SDPTypeOffer {
		t.Fatalf("sent SDP type = %s", offer.Type)
	}
}

func TestBecomesAnswererOnOffer(t *testing.T) {
	sig := newFakeSignaler()
	ctrl := startController(t, sig, &fakeDevice{})

	offer := newRemoteOffer(t)
	sig.events <- sigclient.Event{Type: signaling.MessageTypeOffer, SDP: &offer, SenderID: "peer-1"}

	waitFor(t, func() bool { return sig.answerCount() == 1 }, "answer to be sent")
	waitFor(t, func() bool { return ctrl.Snapshot().State == StateNegotiating }, "negotiating state")

	if sig.offerCount() != 0 {
		t.Fatal("answerer must not send an offer")
	}
}

func TestCandidateBeforeRemoteDescriptionIsBuffered(t *testing.T) {
	sig := newFakeSignaler()
	startController(t, sig, &fakeDevice{})

	// Trickled candidate outruns the offer it belongs to; it must be held,
	// not dropped, and applied once the remote description lands.
	sig.events <- sigclient.Event{
		Type: signaling.MessageTypeICECandidate,
		Candidate: &webrtc.ICECandidateInit{
			Candidate: "candidate:1 1 UDP 2130706431 192.0.2.1 54321 typ host",
		},
		SenderID: "peer-1",
	}

	offer := newRemoteOffer(t)
	sig.events <- sigclient.Event{Type: signaling.MessageTypeOffer, SDP: &offer, SenderID: "peer-1"}

	waitFor(t, func() bool { return sig.answerCount() == 1 }, "answer after buffered candidate")
}

func TestReconnectRestartsICEOnce(t *testing.T) {
	sig := newFakeSignaler()
	ctrl := startController(t, sig, &fakeDevice{})

	offer := newRemoteOffer(t)
	sig.events <- sigclient.Event{Type: signaling.MessageTypeOffer, SDP: &offer, SenderID: "peer-1"}
	waitFor(t, func() bool { return sig.answerCount() == 1 }, "initial answer")

	ctrl.connStates <- webrtc.PeerConnectionStateConnected
	waitFor(t, func() bool { return ctrl.Snapshot().State == StateConnected }, "connected state")

	ctrl.connStates <- webrtc.PeerConnectionStateDisconnected
	waitFor(t, func() bool { return ctrl.Snapshot().State == StateReconnecting }, "reconnecting state")

	// The single restart attempt is the ICE-restart offer.
	waitFor(t, func() bool { return sig.offerCount() == 1 }, "ICE restart offer")

	time.Sleep(300 * time.Millisecond)
	if n := sig.offerCount(); n != 1 {
		t.Fatalf("restart offers = %d, want exactly 1", n)
	}
}

func TestReconnectCanceledOnRecovery(t *testing.T) {
	sig := newFakeSignaler()
	ctrl := startController(t, sig, &fakeDevice{})

	offer := newRemoteOffer(t)
	sig.events <- sigclient.Event{Type: signaling.MessageTypeOffer, SDP: &offer, SenderID: "peer-1"}
	waitFor(t, func() bool { return sig.answerCount() == 1 }, "initial answer")

	ctrl.connStates <- webrtc.PeerConnectionStateConnected
	waitFor(t, func() bool { return ctrl.Snapshot().State == StateConnected }, "connected state")

	ctrl.connStates <- webrtc.PeerConnectionStateDisconnected
	waitFor(t, func() bool { return ctrl.Snapshot().State == StateReconnecting }, "reconnecting state")

	// Recovery inside the delay window cancels the pending restart.
	ctrl.connStates <- webrtc.PeerConnectionStateConnected
	waitFor(t, func() bool { return ctrl.Snapshot().State == StateConnected }, "recovered state")

	time.Sleep(300 * time.Millisecond)
	if n := sig.offerCount(); n != 0 {
		t.Fatalf("restart offers = %d, want 0", n)
	}
}

func TestQualityFollowsConnectionState(t *testing.T) {
	sig := newFakeSignaler()
	ctrl := startController(t, sig, &fakeDevice{})

	offer := newRemoteOffer(t)
	sig.events <- sigclient.Event{Type: signaling.MessageTypeOffer, SDP: &offer, SenderID: "peer-1"}
	waitFor(t, func() bool { return sig.answerCount() == 1 }, "initial answer")

	ctrl.connStates <- webrtc.PeerConnectionStateConnecting
	waitFor(t, func() bool { return ctrl.Snapshot().Quality == QualityGood }, "good quality")

	ctrl.connStates <- webrtc.PeerConnectionStateConnected
	waitFor(t, func() bool { return ctrl.Snapshot().Quality == QualityExcellent }, "excellent quality")

	ctrl.connStates <- webrtc.PeerConnectionStateDisconnected
	waitFor(t, func() bool { return ctrl.Snapshot().Quality == QualityPoor }, "poor quality")
}

func TestConnectionFailureTearsDown(t *testing.T) {
	sig := newFakeSignaler()
	ctrl := startController(t, sig, &fakeDevice{})

	offer := newRemoteOffer(t)
	sig.events <- sigclient.Event{Type: signaling.MessageTypeOffer, SDP: &offer, SenderID: "peer-1"}
	waitFor(t, func() bool { return sig.answerCount() == 1 }, "initial answer")

	ctrl.connStates <- webrtc.PeerConnectionStateFailed

	select {
	case <-ctrl.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not tear down on failed state")
	}

	snap := ctrl.Snapshot()
	if snap.State != StateClosed {
		t.Fatalf("state = %s, want closed", snap.State)
	}
	if snap.Err == nil || !errors.Is(snap.Err, ErrConnectionFailed) {
		t.Fatalf("err = %v", snap.Err)
	}

	leaves, closed := sig.wasClosed()
	if leaves != 1 || !closed {
		t.Fatalf("leave/close not sent: leaves=%d closed=%v", leaves, closed)
	}
}

func TestUserLeftResetsToAwaitingPeer(t *testing.T) {
	sig := newFakeSignaler()
	ctrl := startController(t, sig, &fakeDevice{})

	sig.events <- sigclient.Event{Type: signaling.MessageTypeUserJoined, UserID: "peer-1"}
	waitFor(t, func() bool { return sig.offerCount() == 1 }, "first offer")

	sig.events <- sigclient.Event{Type: signaling.MessageTypeUserLeft, UserID: "peer-1"}
	waitFor(t, func() bool { return ctrl.Snapshot().State == StateAwaitingPeer }, "awaiting-peer after user-left")

	snap := ctrl.Snapshot()
	if snap.RemotePresent {
		t.Fatal("remote still present after user-left")
	}
	if snap.Quality != QualityDisconnected {
		t.Fatalf("quality = %s", snap.Quality)
	}

	// A rejoining peer renegotiates from scratch.
	sig.events <- sigclient.Event{Type: signaling.MessageTypeUserJoined, UserID: "peer-2"}
	waitFor(t, func() bool { return sig.offerCount() == 2 }, "fresh offer for rejoined peer")
}

func TestToggleIdempotence(t *testing.T) {
	sig := newFakeSignaler()
	ctrl := startController(t, sig, &fakeDevice{})

	if !ctrl.Snapshot().MicEnabled {
		t.Fatal("mic should start enabled")
	}

	if got := ctrl.ToggleMicrophone(); got {
		t.Fatal("first toggle should disable")
	}
	if got := ctrl.ToggleMicrophone(); !got {
		t.Fatal("second toggle should re-enable")
	}
	if !ctrl.Snapshot().MicEnabled {
		t.Fatal("mic not back to original state")
	}

	// Camera is independent of the mic.
	ctrl.ToggleCamera()
	snap := ctrl.Snapshot()
	if snap.CameraEnabled || !snap.MicEnabled {
		t.Fatalf("toggles not independent: %+v", snap)
	}

	// Toggling never touches the relay.
	sig.mu.Lock()
	defer sig.mu.Unlock()
	if len(sig.offers)+len(sig.answers)+len(sig.candidates) != 0 {
		t.Fatal("toggle produced signaling traffic")
	}
}

func TestCloseRunsFullTeardown(t *testing.T) {
	sig := newFakeSignaler()
	device := &fakeDevice{}
	ctrl := startController(t, sig, device)

	ctrl.Close()
	select {
	case <-ctrl.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not stop")
	}

	if device.stopCount() != 2 {
		t.Fatalf("stopped tracks = %d, want 2", device.stopCount())
	}
	leaves, closed := sig.wasClosed()
	if leaves != 1 || !closed {
		t.Fatalf("teardown incomplete: leaves=%d closed=%v", leaves, closed)
	}
	if st := ctrl.Snapshot().State; st != StateClosed {
		t.Fatalf("state = %s", st)
	}

	// Second close is a no-op.
	ctrl.Close()
}

func TestSignalingDropTearsDown(t *testing.T) {
	sig := newFakeSignaler()
	ctrl := startController(t, sig, &fakeDevice{})

	close(sig.events)

	select {
	case <-ctrl.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not notice dropped signaling channel")
	}

	snap := ctrl.Snapshot()
	if snap.State != StateClosed {
		t.Fatalf("state = %s", snap.State)
	}
	if snap.Err == nil || !errors.Is(snap.Err, ErrSignalingClosed) {
		t.Fatalf("err = %v", snap.Err)
	}
}
