package sigclient

import (
	"encoding/json"
	"log/slog"

	"github.com/pion/webrtc/v4"

	"github.com/chogalesoham/TeleMedAI-Project-sub002/internal/signaling"
)

// Event is one decoded relay notification. Type is one of the relay->client
// signaling message types; only the fields for that type are populated.
type Event struct {
	Type             string
	ConsultationID   string
	ParticipantCount int
	UserID           string
	UserType         string
	SenderID         string
	SDP              *webrtc.SessionDescription
	Candidate        *webrtc.ICECandidateInit
	Err              string
}

// Handler turns the raw message stream from the relay into typed events and
// provides the typed sends going the other way. The events channel closes
// when the transport connection drops.
type Handler struct {
	client *Client
	events chan Event
}

// NewHandler creates a handler on top of a connected client. Call Start in
// its own goroutine to begin decoding.
func NewHandler(client *Client) *Handler {
	return &Handler{
		client: client,
		events: make(chan Event, 32),
	}
}

// Start consumes incoming messages until the transport drops, then closes
// the event channel.
func (h *Handler) Start() {
	defer close(h.events)

	for msg := range h.client.Incoming() {
		ev, ok := h.decode(msg)
		if !ok {
			continue
		}
		h.events <- ev
	}
}

func (h *Handler) decode(msg *signaling.Message) (Event, bool) {
	ev := Event{Type: msg.Type}

	switch msg.Type {
	case signaling.MessageTypeRoomJoined:
		var p signaling.RoomJoinedPayload
		if !unmarshal(msg, &p) {
			return ev, false
		}
		ev.ConsultationID = p.ConsultationID
		ev.ParticipantCount = p.ParticipantCount

	case signaling.MessageTypeUserJoined:
		var p signaling.UserJoinedPayload
		if !unmarshal(msg, &p) {
			return ev, false
		}
		ev.UserID = p.UserID
		ev.UserType = p.UserType

	case signaling.MessageTypeUserLeft:
		var p signaling.UserLeftPayload
		if !unmarshal(msg, &p) {
			return ev, false
		}
		ev.UserID = p.UserID

	case signaling.MessageTypeOffer:
		var p signaling.OfferPayload
		if !unmarshal(msg, &p) {
			return ev, false
		}
		var sdp webrtc.SessionDescription
		if err := json.Unmarshal(p.Offer, &sdp); err != nil {
			slog.Warn("bad offer SDP from relay", "error", err)
			return ev, false
		}
		ev.SDP = &sdp
		ev.SenderID = p.SenderID

	case signaling.MessageTypeAnswer:
		var p signaling.AnswerPayload
		if !unmarshal(msg, &p) {
			return ev, false
		}
		var sdp webrtc.SessionDescription
		if err := json.Unmarshal(p.Answer, &sdp); err != nil {
			slog.Warn("bad answer SDP from relay", "error", err)
			return ev, false
		}
		ev.SDP = &sdp
		ev.SenderID = p.SenderID

	case signaling.MessageTypeICECandidate:
		var p signaling.ICECandidatePayload
		if !unmarshal(msg, &p) {
			return ev, false
		}
		var cand webrtc.ICECandidateInit
		if err := json.Unmarshal(p.Candidate, &cand); err != nil {
			slog.Warn("bad ICE candidate from relay", "error", err)
			return ev, false
		}
		ev.Candidate = &cand
		ev.SenderID = p.SenderID

	case signaling.MessageTypeError:
		var p signaling.ErrorPayload
		if !unmarshal(msg, &p) {
			return ev, false
		}
		ev.Err = p.Error

	default:
		slog.Debug("ignoring unknown relay message", "type", msg.Type)
		return ev, false
	}

	return ev, true
}

func unmarshal(msg *signaling.Message, payload any) bool {
	if err := json.Unmarshal(msg.Payload, payload); err != nil {
		slog.Warn("bad payload from relay", "type", msg.Type, "error", err)
		return false
	}
	return true
}

// Events returns the decoded relay notification stream.
func (h *Handler) Events() <-chan Event {
	return h.events
}

// JoinRoom declares this participant to the relay.
func (h *Handler) JoinRoom(consultationID, userType string) error {
	return h.send(signaling.MessageTypeJoinRoom, signaling.JoinRoomPayload{
		ConsultationID: consultationID,
		UserType:       userType,
	})
}

// SendOffer forwards an SDP offer to the other participant.
func (h *Handler) SendOffer(consultationID string, sdp webrtc.SessionDescription) error {
	raw, err := json.Marshal(sdp)
	if err != nil {
		return err
	}
	return h.send(signaling.MessageTypeOffer, signaling.OfferPayload{
		ConsultationID: consultationID,
		Offer:          raw,
	})
}

// SendAnswer forwards an SDP answer to the other participant.
func (h *Handler) SendAnswer(consultationID string, sdp webrtc.SessionDescription) error {
	raw, err := json.Marshal(sdp)
	if err != nil {
		return err
	}
	return h.send(signaling.MessageTypeAnswer, signaling.AnswerPayload{
		ConsultationID: consultationID,
		Answer:         raw,
	})
}

// SendCandidate forwards one trickle-ICE candidate.
func (h *Handler) SendCandidate(consultationID string, cand webrtc.ICECandidateInit) error {
	raw, err := json.Marshal(cand)
	if err != nil {
		return err
	}
	return h.send(signaling.MessageTypeICECandidate, signaling.ICECandidatePayload{
		ConsultationID: consultationID,
		Candidate:      raw,
	})
}

// LeaveRoom tells the relay this participant is done with the consultation.
func (h *Handler) LeaveRoom(consultationID string) error {
	return h.send(signaling.MessageTypeLeaveRoom, signaling.LeaveRoomPayload{
		ConsultationID: consultationID,
	})
}

func (h *Handler) send(msgType string, payload any) error {
	msg, err := signaling.NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	h.client.SendMessage(msg)
	return nil
}

// Close tears down the underlying transport connection.
func (h *Handler) Close() error {
	h.client.Close()
	return nil
}
