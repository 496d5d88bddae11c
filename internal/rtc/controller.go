package rtc

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/chogalesoham/TeleMedAI-Project-sub002/internal/sigclient"
	"github.com/chogalesoham/TeleMedAI-Project-sub002/internal/signaling"
)

// State is the controller's lifecycle position. Closed and Failed are
// terminal; Failed means local media never came up, Closed means the call
// ended (explicitly or through an unrecoverable connection failure).
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateAwaitingPeer
	StateNegotiating
	StateConnected
	StateReconnecting
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateAwaitingPeer:
		return "awaiting-peer"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DefaultReconnectDelay is how long a transient disconnect may last before
// the single ICE-restart attempt is issued.
const DefaultReconnectDelay = 2 * time.Second

// Signaler is the controller's view of the signaling channel. Implemented
// by *sigclient.Handler; faked in tests.
type Signaler interface {
	JoinRoom(consultationID, userType string) error
	SendOffer(consultationID string, sdp webrtc.SessionDescription) error
	SendAnswer(consultationID string, sdp webrtc.SessionDescription) error
	SendCandidate(consultationID string, cand webrtc.ICECandidateInit) error
	LeaveRoom(consultationID string) error
	Events() <-chan sigclient.Event
	Close() error
}

// Config wires one consultation participant.
type Config struct {
	ConsultationID string
	UserType       string

	// ICEServers for the peer connection; typically the two public STUN
	// servers from config. No TURN, so symmetric-NAT pairs may never
	// connect - an accepted limitation.
	ICEServers []webrtc.ICEServer

	// Device produces local media.
	Device CaptureDevice

	// Constraints for the first capture attempt. Zero value means
	// DefaultConstraints.
	Constraints CaptureConstraints

	// Dial opens the signaling channel once local media is ready.
	Dial func(ctx context.Context) (Signaler, error)

	// ReconnectDelay overrides DefaultReconnectDelay when non-zero.
	ReconnectDelay time.Duration
}

// Snapshot is the passive state the consuming UI renders.
type Snapshot struct {
	State         State
	Quality       Quality
	AudioOnly     bool
	MicEnabled    bool
	CameraEnabled bool
	RemotePresent bool
	Err           *CallError
}

// Controller owns one side of a consultation call: local media, the peer
// connection, and the offer/answer/ICE exchange through the relay. All
// negotiation work is serialized onto a single event loop so a trickled
// candidate can never race an in-flight answer.
type Controller struct {
	cfg Config

	mu            sync.Mutex
	state         State
	quality       Quality
	audioOnly     bool
	remotePresent bool
	callErr       *CallError
	media         *LocalMedia

	// Loop-owned, never touched outside run() once started.
	sig            Signaler
	pc             *webrtc.PeerConnection
	remoteSet      bool
	pending        []webrtc.ICECandidateInit
	reconnectTimer *time.Timer

	connStates chan webrtc.PeerConnectionState
	closeC     chan struct{}
	doneC      chan struct{}
	closeOnce  sync.Once
}

// NewController builds a controller in the Idle state.
func NewController(cfg Config) *Controller {
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.Constraints == (CaptureConstraints{}) {
		cfg.Constraints = DefaultConstraints()
	}
	return &Controller{
		cfg:        cfg,
		state:      StateIdle,
		quality:    QualityDisconnected,
		connStates: make(chan webrtc.PeerConnectionState, 16),
		closeC:     make(chan struct{}),
		doneC:      make(chan struct{}),
	}
}

// Start acquires local media, opens the signaling channel, joins the
// consultation room and spawns the event loop. On a media failure the
// controller lands in the terminal Failed state and the returned CallError
// carries the user-facing classification.
func (c *Controller) Start(ctx context.Context) error {
	c.setState(StateInitializing)

	media, degraded, cerr := acquireMedia(ctx, c.cfg.Device, c.cfg.Constraints)
	if cerr != nil {
		c.fail(cerr)
		return cerr
	}
	c.mu.Lock()
	c.media = media
	c.audioOnly = degraded
	c.mu.Unlock()

	sig, err := c.cfg.Dial(ctx)
	if err != nil {
		media.Stop()
		cerr := NewError("open signaling channel", err)
		c.fail(cerr)
		return cerr
	}
	c.sig = sig

	if err := sig.JoinRoom(c.cfg.ConsultationID, c.cfg.UserType); err != nil {
		media.Stop()
		sig.Close()
		cerr := NewError("join room", err)
		c.fail(cerr)
		return cerr
	}

	c.setState(StateAwaitingPeer)
	go c.run()
	return nil
}

// Done is closed when the event loop has exited and cleanup has run.
func (c *Controller) Done() <-chan struct{} {
	return c.doneC
}

// Close ends the call. Idempotent.
func (c *Controller) Close() {
	c.closeOnce.Do(func() { close(c.closeC) })
}

// ToggleMicrophone flips the local audio track's enabled gate and returns
// the new value. No renegotiation, no relay traffic; callable in any state
// once media exists.
func (c *Controller) ToggleMicrophone() bool {
	c.mu.Lock()
	media := c.media
	c.mu.Unlock()
	if media == nil || media.Audio == nil {
		return false
	}
	return media.Audio.Toggle()
}

// ToggleCamera flips the local video track's enabled gate and returns the
// new value. Always false in audio-only mode.
func (c *Controller) ToggleCamera() bool {
	c.mu.Lock()
	media := c.media
	c.mu.Unlock()
	if media == nil || media.Video == nil {
		return false
	}
	return media.Video.Toggle()
}

// Snapshot returns the current UI-facing state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		State:         c.state,
		Quality:       c.quality,
		AudioOnly:     c.audioOnly,
		RemotePresent: c.remotePresent,
		Err:           c.callErr,
	}
	if c.media != nil && c.media.Audio != nil {
		snap.MicEnabled = c.media.Audio.Enabled()
	}
	if c.media != nil && c.media.Video != nil {
		snap.CameraEnabled = c.media.Video.Enabled()
	}
	return snap
}

// run is the controller's single execution context: signaling events, peer
// connection state changes, the reconnect timer and Close all land here.
func (c *Controller) run() {
	defer close(c.doneC)

	for {
		var timerC <-chan time.Time
		if c.reconnectTimer != nil {
			timerC = c.reconnectTimer.C
		}

		select {
		case ev, ok := <-c.sig.Events():
			if !ok {
				// Transport dropped; all rooms and memberships on the relay
				// are gone. The UI is expected to offer a rejoin.
				c.teardown(NewError("signaling", ErrSignalingClosed))
				return
			}
			c.handleSignal(ev)

		case st := <-c.connStates:
			c.handleConnState(st)

		case <-timerC:
			c.reconnectTimer = nil
			c.restartICE()

		case <-c.closeC:
			c.teardown(nil)
			return
		}

		if c.getState() == StateClosed {
			return
		}
	}
}

func (c *Controller) handleSignal(ev sigclient.Event) {
	switch ev.Type {
	case signaling.MessageTypeRoomJoined:
		slog.Info("joined consultation room",
			"consultation", ev.ConsultationID,
			"participants", ev.ParticipantCount,
		)

	case signaling.MessageTypeUserJoined:
		// We were here first: we drive the offer. Arrival order of
		// user-joined vs offer is what elects offerer and answerer; if both
		// sides join in the same tick window, whichever event fires first
		// wins. There is deliberately no tie-breaker.
		if c.pc != nil {
			slog.Warn("user-joined with negotiation in progress, ignoring", "user", ev.UserID)
			return
		}
		slog.Info("peer joined", "user", ev.UserID, "userType", ev.UserType)
		c.becomeOfferer()

	case signaling.MessageTypeOffer:
		c.handleOffer(ev)

	case signaling.MessageTypeAnswer:
		c.handleAnswer(ev)

	case signaling.MessageTypeICECandidate:
		c.handleCandidate(ev)

	case signaling.MessageTypeUserLeft:
		slog.Info("peer left", "user", ev.UserID)
		c.resetPeer()

	case signaling.MessageTypeError:
		slog.Warn("relay error", "error", ev.Err)
	}
}

// becomeOfferer creates the peer connection and sends the SDP offer.
func (c *Controller) becomeOfferer() {
	if err := c.createPeer(); err != nil {
		slog.Error("create peer connection", "error", err)
		return
	}

	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		slog.Error("create offer", "error", err)
		return
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		slog.Error("set local description", "error", err)
		return
	}
	if err := c.sig.SendOffer(c.cfg.ConsultationID, offer); err != nil {
		slog.Error("send offer", "error", err)
		return
	}

	c.setState(StateNegotiating)
}

// handleOffer covers three cases: the normal answerer path, a renegotiation
// offer on an established connection (the far side restarting ICE), and
// offer glare while we were still setting up - resolved the same way the
// portal does it, by dropping our half-built connection and answering.
func (c *Controller) handleOffer(ev sigclient.Event) {
	if ev.SDP == nil {
		return
	}

	if c.pc != nil && !c.remoteSet {
		slog.Warn("offer glare, answering the remote offer", "sender", ev.SenderID)
		c.pc.Close()
		c.pc = nil
	}

	if c.pc == nil {
		if err := c.createPeer(); err != nil {
			slog.Error("create peer connection", "error", err)
			return
		}
	}

	if err := c.pc.SetRemoteDescription(*ev.SDP); err != nil {
		slog.Error("set remote offer", "error", err)
		return
	}
	c.remoteSet = true
	c.flushCandidates()

	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		slog.Error("create answer", "error", err)
		return
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		slog.Error("set local description", "error", err)
		return
	}
	if err := c.sig.SendAnswer(c.cfg.ConsultationID, answer); err != nil {
		slog.Error("send answer", "error", err)
		return
	}

	if c.getState() == StateAwaitingPeer {
		c.setState(StateNegotiating)
	}
}

func (c *Controller) handleAnswer(ev sigclient.Event) {
	if c.pc == nil || ev.SDP == nil {
		return
	}
	if err := c.pc.SetRemoteDescription(*ev.SDP); err != nil {
		slog.Error("set remote answer", "error", err)
		return
	}
	c.remoteSet = true
	c.flushCandidates()
}

// handleCandidate applies a trickled candidate, or buffers it when it
// outran the offer/answer it belongs to. Out-of-order delivery before the
// remote description is set must not lose candidates.
func (c *Controller) handleCandidate(ev sigclient.Event) {
	if ev.Candidate == nil {
		return
	}
	if c.pc == nil || !c.remoteSet {
		c.pending = append(c.pending, *ev.Candidate)
		return
	}
	if err := c.pc.AddICECandidate(*ev.Candidate); err != nil {
		slog.Error("add ICE candidate", "error", err)
	}
}

func (c *Controller) flushCandidates() {
	for _, cand := range c.pending {
		if err := c.pc.AddICECandidate(cand); err != nil {
			slog.Error("add buffered ICE candidate", "error", err)
		}
	}
	c.pending = nil
}

// createPeer builds the peer connection, attaches local tracks and wires
// the callbacks back onto the event loop.
func (c *Controller) createPeer() error {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: c.cfg.ICEServers})
	if err != nil {
		return err
	}

	c.mu.Lock()
	media := c.media
	c.mu.Unlock()
	for _, track := range media.Tracks() {
		if _, err := pc.AddTrack(track); err != nil {
			pc.Close()
			return err
		}
	}

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		slog.Info("remote track", "codec", remote.Codec().MimeType)
		c.setRemotePresent(true)
	})

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		if err := c.sig.SendCandidate(c.cfg.ConsultationID, cand.ToJSON()); err != nil {
			slog.Error("send ICE candidate", "error", err)
		}
	})

	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		select {
		case c.connStates <- st:
		default:
			slog.Warn("dropping connection state event", "state", st.String())
		}
	})

	c.pc = pc
	c.remoteSet = false
	return nil
}

func (c *Controller) handleConnState(st webrtc.PeerConnectionState) {
	slog.Info("connection state", "state", st.String())
	c.setQuality(QualityFor(st))

	switch st {
	case webrtc.PeerConnectionStateConnected:
		c.stopReconnectTimer()
		c.setState(StateConnected)

	case webrtc.PeerConnectionStateDisconnected:
		// One delayed ICE restart per disconnect; if the connection comes
		// back before the timer fires, the timer is canceled instead.
		if c.getState() == StateConnected && c.reconnectTimer == nil {
			c.setState(StateReconnecting)
			c.reconnectTimer = time.NewTimer(c.cfg.ReconnectDelay)
		}

	case webrtc.PeerConnectionStateFailed:
		c.teardown(NewError("peer connection", ErrConnectionFailed))
	}
}

// restartICE issues the single reconnection attempt: a fresh offer with the
// ICE restart flag on the existing peer connection, no teardown or rebuild.
func (c *Controller) restartICE() {
	if c.pc == nil || c.getState() != StateReconnecting {
		return
	}

	slog.Info("attempting ICE restart")
	offer, err := c.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: true})
	if err != nil {
		slog.Error("create restart offer", "error", err)
		return
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		slog.Error("set local description", "error", err)
		return
	}
	if err := c.sig.SendOffer(c.cfg.ConsultationID, offer); err != nil {
		slog.Error("send restart offer", "error", err)
	}
}

func (c *Controller) stopReconnectTimer() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

// resetPeer returns the controller to AwaitingPeer after the other side
// left: the remote stream reference is cleared and the peer connection
// dropped so a rejoining peer negotiates from scratch.
func (c *Controller) resetPeer() {
	c.stopReconnectTimer()
	if c.pc != nil {
		c.pc.Close()
		c.pc = nil
	}
	c.remoteSet = false
	c.pending = nil

	c.mu.Lock()
	c.remotePresent = false
	c.quality = QualityDisconnected
	c.state = StateAwaitingPeer
	c.mu.Unlock()
}

// teardown runs every cleanup step even if some fail: stop local tracks,
// close the peer connection, tell the relay, drop the signaling channel.
func (c *Controller) teardown(reason *CallError) {
	c.stopReconnectTimer()

	c.mu.Lock()
	media := c.media
	c.mu.Unlock()
	if media != nil {
		media.Stop()
	}

	if c.pc != nil {
		if err := c.pc.Close(); err != nil {
			slog.Warn("close peer connection", "error", err)
		}
		c.pc = nil
	}

	if c.sig != nil {
		if err := c.sig.LeaveRoom(c.cfg.ConsultationID); err != nil {
			slog.Warn("leave room", "error", err)
		}
		if err := c.sig.Close(); err != nil {
			slog.Warn("close signaling channel", "error", err)
		}
	}

	c.mu.Lock()
	c.remotePresent = false
	c.quality = QualityDisconnected
	c.callErr = reason
	c.state = StateClosed
	c.mu.Unlock()
}

func (c *Controller) fail(cerr *CallError) {
	c.mu.Lock()
	c.callErr = cerr
	c.state = StateFailed
	c.mu.Unlock()
}

func (c *Controller) getState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Controller) setQuality(q Quality) {
	c.mu.Lock()
	c.quality = q
	c.mu.Unlock()
}

func (c *Controller) setRemotePresent(present bool) {
	c.mu.Lock()
	c.remotePresent = present
	c.mu.Unlock()
}
