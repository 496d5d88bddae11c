package signaling

import "encoding/json"

// Message defines the envelope for all C2S (Client to Server)
// and S2C (Server to Client) websocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// client is the connection handle that sent the message.
	// It's used internally by the Hub and not sent over JSON.
	client *Client `json:"-"`
}

// Message type constants.
const (
	// client -> relay
	MessageTypeJoinRoom     = "join-room"
	MessageTypeOffer        = "offer"
	MessageTypeAnswer       = "answer"
	MessageTypeICECandidate = "ice-candidate"
	MessageTypeLeaveRoom    = "leave-room"

	// relay -> client
	MessageTypeRoomJoined = "room-joined"
	MessageTypeUserJoined = "user-joined"
	MessageTypeUserLeft   = "user-left"
	MessageTypeError      = "error"
)

// UserType values declared by participants at join time. The relay accepts
// any string here; both sides claiming the same role is undefined behavior
// at the negotiation layer, not a relay concern.
const (
	UserTypePatient = "patient"
	UserTypeDoctor  = "doctor"
)

// JoinRoomPayload is sent by a client to enter a consultation room.
type JoinRoomPayload struct {
	ConsultationID string `json:"consultationId" validate:"required"`
	UserType       string `json:"userType" validate:"required"`
}

// RoomJoinedPayload is the reply to a successful join.
type RoomJoinedPayload struct {
	ConsultationID   string `json:"consultationId"`
	ParticipantCount int    `json:"participantCount"`
}

// UserJoinedPayload notifies existing members that a participant arrived.
type UserJoinedPayload struct {
	UserID   string `json:"userId"`
	UserType string `json:"userType"`
}

// OfferPayload carries an SDP offer. The relay never inspects the SDP; it
// only validates presence, stamps SenderID and strips the room key on the
// way out.
type OfferPayload struct {
	ConsultationID string          `json:"consultationId,omitempty" validate:"required"`
	Offer          json.RawMessage `json:"offer" validate:"required"`
	SenderID       string          `json:"senderId,omitempty"`
}

// AnswerPayload carries an SDP answer.
type AnswerPayload struct {
	ConsultationID string          `json:"consultationId,omitempty" validate:"required"`
	Answer         json.RawMessage `json:"answer" validate:"required"`
	SenderID       string          `json:"senderId,omitempty"`
}

// ICECandidatePayload carries one trickle-ICE candidate.
type ICECandidatePayload struct {
	ConsultationID string          `json:"consultationId,omitempty" validate:"required"`
	Candidate      json.RawMessage `json:"candidate" validate:"required"`
	SenderID       string          `json:"senderId,omitempty"`
}

// LeaveRoomPayload is sent by a client leaving a consultation room.
type LeaveRoomPayload struct {
	ConsultationID string `json:"consultationId" validate:"required"`
}

// UserLeftPayload notifies remaining members that a participant left.
type UserLeftPayload struct {
	UserID string `json:"userId"`
}

// ErrorPayload carries a relay-side rejection back to the sender.
type ErrorPayload struct {
	Error string `json:"error"`
}

// NewMessage builds an envelope around the given payload. Marshal failures
// only happen for payload types that can't occur on this wire, so they are
// surfaced as an error rather than a panic.
func NewMessage(msgType string, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{Type: msgType, Payload: raw}, nil
}

// mustMessage is NewMessage for relay-built payloads, which are all
// marshalable by construction.
func mustMessage(msgType string, payload any) *Message {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

func errorMessage(text string) *Message {
	return mustMessage(MessageTypeError, ErrorPayload{Error: text})
}
