package webhook

// Payload is the subset of a Chatwoot message webhook the relay consumes.
type Payload struct {
	ID           int64        `json:"id"`
	Event        string       `json:"event"`
	Content      string       `json:"content"`
	MessageType  string       `json:"message_type"`
	Private      bool         `json:"private"`
	Inbox        Inbox        `json:"inbox"`
	Conversation Conversation `json:"conversation"`
}

// Inbox identifies the Chatwoot inbox the event belongs to.
type Inbox struct {
	ID int64 `json:"id"`
}

// Conversation is the conversation the message was posted in.
type Conversation struct {
	ID           int64        `json:"id"`
	ContactInbox ContactInbox `json:"contact_inbox"`
}

// ContactInbox links the conversation to its contact.
type ContactInbox struct {
	ContactID int64 `json:"contact_id"`
}
