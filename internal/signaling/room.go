package signaling

// Room tracks the connection handles currently joined to one consultation.
// Rooms are created implicitly on first join and deleted by the hub as soon
// as the member set becomes empty; no room ever exists with zero members.
//
// The set is unbounded on purpose: the upstream protocol is designed for
// exactly two participants (patient and doctor) but the relay does not
// enforce a cap. Forwarded messages carry the sender's handle ID so clients
// can discriminate if a third party ever shows up.
type Room struct {
	// ID is the externally issued consultation ID.
	ID string

	// Members is the set of connection handles joined to this room.
	Members map[*Client]struct{}
}

func newRoom(id string) *Room {
	return &Room{
		ID:      id,
		Members: make(map[*Client]struct{}),
	}
}

func (r *Room) add(c *Client) {
	r.Members[c] = struct{}{}
}

// remove deletes the client from the member set and reports whether it was
// actually a member.
func (r *Room) remove(c *Client) bool {
	if _, ok := r.Members[c]; !ok {
		return false
	}
	delete(r.Members, c)
	return true
}

func (r *Room) empty() bool {
	return len(r.Members) == 0
}

// broadcast queues a message to every member except the sender. Members
// whose send buffer is full are skipped: delivery is at-most-once and a
// participant that can't keep up must not stall the room.
func (r *Room) broadcast(sender *Client, msg *Message) {
	for member := range r.Members {
		if member == sender {
			continue
		}
		member.trySend(msg)
	}
}
