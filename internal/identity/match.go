package identity

import "github.com/matheus3301/wpp-bridge/internal/chatwoot"

// Chatwoot's contact search matches substrings across several fields. These
// filters turn a candidate list into an exact lookup.

// MatchIdentifier returns the first candidate whose identifier equals identifier.
func MatchIdentifier(candidates []chatwoot.Contact, identifier string) *chatwoot.Contact {
	if identifier == "" {
		return nil
	}
	for i := range candidates {
		if candidates[i].Identifier == identifier {
			c := candidates[i]
			return &c
		}
	}
	return nil
}

// MatchPhone returns the first candidate whose phone number equals phone.
func MatchPhone(candidates []chatwoot.Contact, phone string) *chatwoot.Contact {
	if phone == "" {
		return nil
	}
	for i := range candidates {
		if candidates[i].PhoneNumber == phone {
			c := candidates[i]
			return &c
		}
	}
	return nil
}

// MatchInbox returns the first conversation that belongs to inboxID.
func MatchInbox(convs []chatwoot.Conversation, inboxID int64) *chatwoot.Conversation {
	for i := range convs {
		if convs[i].InboxID == inboxID {
			c := convs[i]
			return &c
		}
	}
	return nil
}
