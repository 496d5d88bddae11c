package rtc

import "github.com/pion/webrtc/v4"

// Quality is the coarse connection-quality signal surfaced to the portal.
// It is derived from the peer-connection state, not measured, and drives no
// control decision besides the reconnection timer.
type Quality string

const (
	QualityExcellent    Quality = "excellent"
	QualityGood         Quality = "good"
	QualityPoor         Quality = "poor"
	QualityDisconnected Quality = "disconnected"
)

// QualityFor maps a peer-connection state to its display quality.
func QualityFor(state webrtc.PeerConnectionState) Quality {
	switch state {
	case webrtc.PeerConnectionStateConnected:
		return QualityExcellent
	case webrtc.PeerConnectionStateConnecting:
		return QualityGood
	case webrtc.PeerConnectionStateDisconnected:
		return QualityPoor
	default:
		// failed, closed, new
		return QualityDisconnected
	}
}
