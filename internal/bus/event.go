package bus

import "time"

// Event kinds published by the WhatsApp transport and consumed by the relays.
const (
	KindMessage       = "wa.message"
	KindMessageCreate = "wa.message_create"
	KindGroupJoin     = "wa.group_join"
	KindGroupLeave    = "wa.group_leave"

	KindQR            = "session.qr"
	KindAuthenticated = "session.authenticated"
	KindLoggedOut     = "session.logged_out"
	KindStatusChanged = "session.status_changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// NewEvent stamps an event with the current time.
func NewEvent(kind string, payload any) Event {
	return Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
}
