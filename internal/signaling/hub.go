package signaling

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Hub is the relay's session registry and message router. It owns the
// consultation-room map and is the only place membership is mutated, so
// every join/leave/forward observes a consistent member set.
type Hub struct {
	// rooms maps consultation IDs to Room instances. Only ever touched from
	// the Run goroutine.
	rooms map[string]*Room

	// Register is a channel for registering new clients.
	Register chan *Client

	// Unregister is a channel for unregistering clients (transport-level
	// disconnect).
	Unregister chan *Client

	// Inbound is the channel clients push decoded messages onto. The hub
	// processes them one at a time, which gives per-sender FIFO delivery
	// within a room for free.
	Inbound chan *Message

	// validate rejects malformed payloads at the boundary; nothing
	// unvalidated is ever forwarded.
	validate *validator.Validate

	done     chan struct{}
	stopOnce sync.Once
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]*Room),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Inbound:    make(chan *Message),
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		done:       make(chan struct{}),
	}
}

// Stop terminates the Run loop. Connected clients are not notified; their
// pumps die with their connections. Idempotent.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Done reports hub shutdown; pumps use it to avoid blocking on a stopped hub.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Run starts the hub's main processing loop. This is the single goroutine
// that manages all shared state (rooms, memberships); everything else talks
// to it through channels.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			// The client is not in a room yet; it has to send a join-room
			// message first.
			slog.Info("client connected", "client", client.ID, "remote", client.Conn.RemoteAddr())

		case client := <-h.Unregister:
			h.disconnect(client)

		case message := <-h.Inbound:
			h.dispatch(message)

		case <-h.done:
			return
		}
	}
}

func (h *Hub) dispatch(message *Message) {
	switch message.Type {
	case MessageTypeJoinRoom:
		h.handleJoin(message)

	case MessageTypeOffer, MessageTypeAnswer, MessageTypeICECandidate:
		h.handleForward(message)

	case MessageTypeLeaveRoom:
		h.handleLeave(message)

	default:
		slog.Warn("unknown message type", "type", message.Type, "client", message.client.ID)
	}
}

// handleJoin adds the sender to the room for the given consultation,
// creating the room if this is the first participant. Everyone already in
// the room hears user-joined; the joiner gets room-joined with the current
// participant count. There is no capacity check: a third joiner is accepted
// and it is up to the clients to sort out who they negotiate with.
func (h *Hub) handleJoin(message *Message) {
	var payload JoinRoomPayload
	if !h.decode(message, &payload) {
		return
	}

	client := message.client
	client.UserType = payload.UserType

	room, ok := h.rooms[payload.ConsultationID]
	if !ok {
		room = newRoom(payload.ConsultationID)
		h.rooms[payload.ConsultationID] = room
	}
	room.add(client)

	room.broadcast(client, mustMessage(MessageTypeUserJoined, UserJoinedPayload{
		UserID:   client.ID,
		UserType: client.UserType,
	}))

	client.trySend(mustMessage(MessageTypeRoomJoined, RoomJoinedPayload{
		ConsultationID:   room.ID,
		ParticipantCount: len(room.Members),
	}))

	slog.Info("participant joined",
		"consultation", room.ID,
		"client", client.ID,
		"userType", client.UserType,
		"participants", len(room.Members),
	)
}

// handleForward relays an offer, answer or ICE candidate to every other
// member of the room. The negotiation payload itself is opaque to the relay;
// it only swaps the room key for the sender's handle ID on the way out. If
// nobody else is in the room the message is dropped silently: stale
// negotiation traffic from a party that already left must not resurrect a
// dead session.
func (h *Hub) handleForward(message *Message) {
	client := message.client

	consultationID, outbound, ok := h.decodeForward(message)
	if !ok {
		return
	}

	room, ok := h.rooms[consultationID]
	if !ok {
		client.trySend(errorMessage("You must join the room first"))
		return
	}
	if _, member := room.Members[client]; !member {
		client.trySend(errorMessage("You must join the room first"))
		return
	}

	slog.Debug("forwarding", "type", message.Type, "consultation", consultationID, "sender", client.ID)
	room.broadcast(client, outbound)
}

// decodeForward validates the inbound payload for one of the three forward
// kinds and rebuilds it with the sender stamped and the room key stripped.
func (h *Hub) decodeForward(message *Message) (string, *Message, bool) {
	sender := message.client.ID

	switch message.Type {
	case MessageTypeOffer:
		var p OfferPayload
		if !h.decode(message, &p) {
			return "", nil, false
		}
		out := mustMessage(MessageTypeOffer, OfferPayload{Offer: p.Offer, SenderID: sender})
		return p.ConsultationID, out, true

	case MessageTypeAnswer:
		var p AnswerPayload
		if !h.decode(message, &p) {
			return "", nil, false
		}
		out := mustMessage(MessageTypeAnswer, AnswerPayload{Answer: p.Answer, SenderID: sender})
		return p.ConsultationID, out, true

	default: // MessageTypeICECandidate
		var p ICECandidatePayload
		if !h.decode(message, &p) {
			return "", nil, false
		}
		out := mustMessage(MessageTypeICECandidate, ICECandidatePayload{Candidate: p.Candidate, SenderID: sender})
		return p.ConsultationID, out, true
	}
}

func (h *Hub) handleLeave(message *Message) {
	var payload LeaveRoomPayload
	if !h.decode(message, &payload) {
		return
	}

	if room, ok := h.rooms[payload.ConsultationID]; ok {
		h.removeFromRoom(room, message.client)
	}
}

// disconnect performs the leave effect for every room the handle is a member
// of, then retires the handle. Safe to invoke more than once and for handles
// that never joined a room.
func (h *Hub) disconnect(client *Client) {
	if client.closed {
		return
	}
	client.closed = true

	slog.Info("client disconnected", "client", client.ID)

	for _, room := range h.rooms {
		h.removeFromRoom(room, client)
	}

	// Stop the client's WritePump.
	close(client.Send)
}

// removeFromRoom takes the client out of the member set, tells the remaining
// members, and garbage-collects the room if it is now empty. The
// check-and-delete happens inside the same hub transaction as the removal so
// a concurrent join can never observe a half-deleted room.
func (h *Hub) removeFromRoom(room *Room, client *Client) {
	if !room.remove(client) {
		return
	}

	room.broadcast(client, mustMessage(MessageTypeUserLeft, UserLeftPayload{UserID: client.ID}))

	if room.empty() {
		delete(h.rooms, room.ID)
		slog.Info("room deleted", "consultation", room.ID)
	} else {
		slog.Info("participant left", "consultation", room.ID, "participants", len(room.Members))
	}
}

// decode unmarshals and validates an inbound payload. On failure the sender
// gets an error reply and the message goes no further.
func (h *Hub) decode(message *Message, payload any) bool {
	if err := json.Unmarshal(message.Payload, payload); err != nil {
		slog.Warn("malformed payload", "type", message.Type, "client", message.client.ID, "error", err)
		message.client.trySend(errorMessage("Malformed " + message.Type + " payload"))
		return false
	}
	if err := h.validate.Struct(payload); err != nil {
		slog.Warn("invalid payload", "type", message.Type, "client", message.client.ID, "error", err)
		message.client.trySend(errorMessage("Invalid " + message.Type + " payload"))
		return false
	}
	return true
}
