package chatwoot

// MessageType is the Chatwoot message_type sent when posting a message.
type MessageType string

const (
	MessageIncoming MessageType = "incoming"
	MessageOutgoing MessageType = "outgoing"
	MessageTemplate MessageType = "template"
)

// Contact is the subset of a Chatwoot contact the bridge consumes.
type Contact struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Identifier  string `json:"identifier"`
	PhoneNumber string `json:"phone_number"`
}

// ContactInbox links a contact to an inbox through a source id.
type ContactInbox struct {
	ContactID int64  `json:"contact_id"`
	InboxID   int64  `json:"inbox_id"`
	SourceID  string `json:"source_id"`
}

// Conversation is the subset of a Chatwoot conversation the bridge consumes.
type Conversation struct {
	ID               int64          `json:"id"`
	InboxID          int64          `json:"inbox_id"`
	Status           string         `json:"status"`
	ContactInbox     *ContactInbox  `json:"contact_inbox,omitempty"`
	CustomAttributes map[string]any `json:"custom_attributes,omitempty"`
}

// Attachment is a file attached to a Chatwoot message.
type Attachment struct {
	ID       int64  `json:"id"`
	FileType string `json:"file_type"`
	DataURL  string `json:"data_url"`
	ThumbURL string `json:"thumb_url"`
}

// Message is a Chatwoot conversation message. message_type is numeric on reads
// and is not decoded.
type Message struct {
	ID             int64        `json:"id"`
	Content        string       `json:"content"`
	Private        bool         `json:"private"`
	ConversationID int64        `json:"conversation_id"`
	Attachments    []Attachment `json:"attachments"`
}

// NewContact is the payload for creating a contact.
type NewContact struct {
	InboxID     int64  `json:"inbox_id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	Identifier  string `json:"identifier"`
}

// ContactUpdate carries the fields changed by UpdateContact.
type ContactUpdate struct {
	Identifier string `json:"identifier,omitempty"`
	Name       string `json:"name,omitempty"`
}

// NewConversation is the payload for creating a conversation.
type NewConversation struct {
	SourceID  string `json:"source_id"`
	InboxID   int64  `json:"inbox_id"`
	ContactID int64  `json:"contact_id"`
}

// File is binary content attached to a posted message.
type File struct {
	Data     []byte
	MimeType string
	// Filename is optional; when empty it is derived from MimeType.
	Filename string
}

// NewMessage is the multipart payload for posting a message.
type NewMessage struct {
	Content    string
	Type       MessageType
	Private    bool
	Attachment *File
}
