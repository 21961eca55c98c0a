package identity

import (
	"go.mau.fi/whatsmeow/types"
)

// Identity is a WhatsApp address (individual or group) as seen by the bridge.
type Identity struct {
	User        string
	Server      string
	IsGroup     bool
	DisplayName string
}

// FromJID builds an identity from a chat JID. Device and agent parts are dropped.
func FromJID(jid types.JID, displayName string) Identity {
	return Identity{
		User:        jid.User,
		Server:      jid.Server,
		IsGroup:     jid.Server == types.GroupServer,
		DisplayName: displayName,
	}
}

// ExternalIdentifier is the value stored in the Chatwoot contact identifier.
func (id Identity) ExternalIdentifier() string {
	return id.User + "@" + id.Server
}

// SourceID is the Chatwoot contact-inbox source id, "<tag>:<user>@<server>".
func (id Identity) SourceID(tag string) string {
	return tag + ":" + id.ExternalIdentifier()
}

// PhoneNumber returns the E.164 number of a phone-numbered user. Groups,
// unresolved LIDs and newsletters have no phone number and return "".
func (id Identity) PhoneNumber() string {
	if id.Server != types.DefaultUserServer || id.User == "" {
		return ""
	}
	return "+" + id.User
}

// Name is the contact name to create with, falling back to the phone number
// or, for groups, the identifier.
func (id Identity) Name() string {
	for _, n := range []string{id.DisplayName, id.PhoneNumber(), id.ExternalIdentifier()} {
		if n != "" {
			return n
		}
	}
	return ""
}

// JID converts the identity back to a WhatsApp JID.
func (id Identity) JID() types.JID {
	return types.NewJID(id.User, id.Server)
}
