package wa

import (
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
)

// Contact is a WhatsApp user as known to the device store.
type Contact struct {
	JID      types.JID
	Name     string
	PushName string
}

// Number is the phone number user part of the contact's JID.
func (c Contact) Number() string {
	return c.JID.User
}

// Media is downloaded or to-be-uploaded message content.
type Media struct {
	Data     []byte
	MimeType string
	Filename string
}

// InboundMessage is a WhatsApp message normalized for the relays.
type InboundMessage struct {
	ID        string
	Chat      types.JID
	Sender    types.JID
	PushName  string
	Timestamp time.Time
	IsGroup   bool
	IsFromMe  bool
	// FromOtherDevice is set for self-authored messages sent from a device
	// other than the bridge's own linked device.
	FromOtherDevice bool
	Body            string
	MediaType       string
	MimeType        string
	Filename        string

	raw *waE2E.Message
}

// HasMedia reports whether the message carries downloadable content.
func (m *InboundMessage) HasMedia() bool {
	return m.MediaType != ""
}

// GroupChange reports participants joining or leaving a group.
type GroupChange struct {
	Group        types.JID
	Participants []types.JID
}
