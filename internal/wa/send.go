package wa

import (
	"context"
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

// SendText sends a text message to the given JID, tagging mentions. Returns
// the server message ID.
func (a *Adapter) SendText(ctx context.Context, to types.JID, text string, mentions []types.JID) (string, error) {
	if !a.Connected() {
		return "", ErrNotConnected
	}
	resp, err := a.client.SendMessage(ctx, to, buildText(text, mentions))
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.ID, nil
}

// SendMedia uploads media and sends it with caption as a single message.
// Audio cannot carry a caption, so it is followed by a separate text message.
func (a *Adapter) SendMedia(ctx context.Context, to types.JID, media Media, caption string, mentions []types.JID) (string, error) {
	if !a.Connected() {
		return "", ErrNotConnected
	}
	kind := mediaKind(media.MimeType)
	up, err := a.client.Upload(ctx, media.Data, kind)
	if err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}

	return sendMediaMessage(ctx, a.client.SendMessage, a.logger, to, kind, buildMedia(kind, up, media, caption, mentions), caption, mentions)
}

type messageSender func(ctx context.Context, to types.JID, msg *waE2E.Message, extra ...whatsmeow.SendRequestExtra) (whatsmeow.SendResponse, error)

// sendMediaMessage sends msg and, for audio, the caption as a follow-up text.
// Once the media is out the follow-up cannot fail the send: a retry would
// deliver the media twice.
func sendMediaMessage(ctx context.Context, send messageSender, logger *zap.Logger, to types.JID, kind whatsmeow.MediaType, msg *waE2E.Message, caption string, mentions []types.JID) (string, error) {
	resp, err := send(ctx, to, msg)
	if err != nil {
		return "", fmt.Errorf("send media: %w", err)
	}
	if kind == whatsmeow.MediaAudio && caption != "" {
		if _, err := send(ctx, to, buildText(caption, mentions)); err != nil {
			logger.Warn("audio sent but its caption failed",
				zap.String("to", to.String()),
				zap.String("wa_msg_id", resp.ID),
				zap.Error(err),
			)
		}
	}
	return resp.ID, nil
}

func buildText(text string, mentions []types.JID) *waE2E.Message {
	if len(mentions) == 0 {
		return &waE2E.Message{Conversation: proto.String(text)}
	}
	return &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text:        proto.String(text),
			ContextInfo: mentionContext(mentions),
		},
	}
}

func mentionContext(mentions []types.JID) *waE2E.ContextInfo {
	if len(mentions) == 0 {
		return nil
	}
	jids := make([]string, len(mentions))
	for i, m := range mentions {
		jids[i] = m.String()
	}
	return &waE2E.ContextInfo{MentionedJID: jids}
}

func mediaKind(mimeType string) whatsmeow.MediaType {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return whatsmeow.MediaImage
	case strings.HasPrefix(mimeType, "video/"):
		return whatsmeow.MediaVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return whatsmeow.MediaAudio
	default:
		return whatsmeow.MediaDocument
	}
}

func buildMedia(kind whatsmeow.MediaType, up whatsmeow.UploadResponse, media Media, caption string, mentions []types.JID) *waE2E.Message {
	ctxInfo := mentionContext(mentions)
	switch kind {
	case whatsmeow.MediaImage:
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			Caption:       optional(caption),
			Mimetype:      proto.String(media.MimeType),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
			ContextInfo:   ctxInfo,
		}}
	case whatsmeow.MediaVideo:
		return &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
			Caption:       optional(caption),
			Mimetype:      proto.String(media.MimeType),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
			ContextInfo:   ctxInfo,
		}}
	case whatsmeow.MediaAudio:
		return &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
			Mimetype:      proto.String(media.MimeType),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}
	default:
		return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
			Caption:       optional(caption),
			FileName:      optional(media.Filename),
			Title:         optional(media.Filename),
			Mimetype:      proto.String(media.MimeType),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
			ContextInfo:   ctxInfo,
		}}
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return proto.String(s)
}
