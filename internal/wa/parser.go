package wa

import (
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// ParseMessage normalizes a live whatsmeow message event. self is the bridge's
// own device JID and may be empty before pairing completes.
func ParseMessage(evt *events.Message, self types.JID) *InboundMessage {
	msg := evt.Message
	mediaType := detectMediaType(msg)
	mimeType, filename := mediaMeta(msg)

	return &InboundMessage{
		ID:              evt.Info.ID,
		Chat:            evt.Info.Chat.ToNonAD(),
		Sender:          evt.Info.Sender.ToNonAD(),
		PushName:        evt.Info.PushName,
		Timestamp:       evt.Info.Timestamp,
		IsGroup:         evt.Info.IsGroup,
		IsFromMe:        evt.Info.IsFromMe,
		FromOtherDevice: evt.Info.IsFromMe && evt.Info.Sender.Device != self.Device,
		Body:            extractBody(msg),
		MediaType:       mediaType,
		MimeType:        mimeType,
		Filename:        filename,
		raw:             msg,
	}
}

// IsBroadcast reports whether chat is a status update, broadcast list or
// newsletter channel rather than a conversation.
func IsBroadcast(chat types.JID) bool {
	return chat.Server == types.BroadcastServer || chat.Server == types.NewsletterServer
}

// extractBody returns the text of a message, or the caption of a media message.
func extractBody(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	switch {
	case msg.GetConversation() != "":
		return msg.GetConversation()
	case msg.GetExtendedTextMessage() != nil:
		return msg.GetExtendedTextMessage().GetText()
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetCaption()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage().GetCaption()
	case msg.GetDocumentMessage() != nil:
		return msg.GetDocumentMessage().GetCaption()
	case msg.GetDocumentWithCaptionMessage() != nil:
		return msg.GetDocumentWithCaptionMessage().GetMessage().GetDocumentMessage().GetCaption()
	}
	return ""
}

func detectMediaType(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	switch {
	case msg.GetImageMessage() != nil:
		return "image"
	case msg.GetVideoMessage() != nil:
		return "video"
	case msg.GetAudioMessage() != nil:
		return "audio"
	case msg.GetDocumentMessage() != nil, msg.GetDocumentWithCaptionMessage() != nil:
		return "document"
	case msg.GetStickerMessage() != nil:
		return "sticker"
	}
	return ""
}

func mediaMeta(msg *waE2E.Message) (mimeType, filename string) {
	if msg == nil {
		return "", ""
	}
	switch {
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetMimetype(), ""
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage().GetMimetype(), ""
	case msg.GetAudioMessage() != nil:
		return msg.GetAudioMessage().GetMimetype(), ""
	case msg.GetDocumentMessage() != nil:
		d := msg.GetDocumentMessage()
		return d.GetMimetype(), d.GetFileName()
	case msg.GetDocumentWithCaptionMessage() != nil:
		d := msg.GetDocumentWithCaptionMessage().GetMessage().GetDocumentMessage()
		return d.GetMimetype(), d.GetFileName()
	case msg.GetStickerMessage() != nil:
		return msg.GetStickerMessage().GetMimetype(), ""
	}
	return "", ""
}
