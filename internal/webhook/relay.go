// Package webhook relays Chatwoot agent replies to WhatsApp.
package webhook

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/matheus3301/wpp-bridge/internal/chatwoot"
	"github.com/matheus3301/wpp-bridge/internal/mention"
	"github.com/matheus3301/wpp-bridge/internal/relay"
	"github.com/matheus3301/wpp-bridge/internal/store"
	"github.com/matheus3301/wpp-bridge/internal/wa"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
)

var (
	// ErrInboxMismatch rejects events for an inbox this bridge does not serve.
	ErrInboxMismatch = errors.New("webhook inbox does not match configured inbox")
	// ErrUnauthorized rejects events without the shared secret.
	ErrUnauthorized = errors.New("invalid webhook token")
)

// CRM reads the Chatwoot records an agent reply refers to.
type CRM interface {
	GetContact(ctx context.Context, id int64) (*chatwoot.Contact, error)
	ListConversationMessages(ctx context.Context, conversationID int64) ([]chatwoot.Message, error)
	FetchAttachment(ctx context.Context, dataURL string) (*chatwoot.File, error)
}

// Transport sends messages to WhatsApp.
type Transport interface {
	Connected() bool
	SendText(ctx context.Context, to types.JID, text string, mentions []types.JID) (string, error)
	SendMedia(ctx context.Context, to types.JID, media wa.Media, caption string, mentions []types.JID) (string, error)
}

// Translator rewrites mentions for a chat.
type Translator interface {
	Translate(ctx context.Context, chat types.JID, body string) (mention.Result, error)
}

// Relay validates webhook events and sends agent replies to WhatsApp.
type Relay struct {
	inboxID   int64
	token     string
	crm       CRM
	transport Transport
	mentions  Translator
	ledger    relay.Ledger
	logger    *zap.Logger
}

// Options configures a Relay.
type Options struct {
	InboxID   int64
	Token     string
	CRM       CRM
	Transport Transport
	Mentions  Translator
	// Ledger is optional. When set, repeated deliveries of one message are
	// sent once and sent WhatsApp ids are recorded for echo detection.
	Ledger relay.Ledger
	Logger *zap.Logger
}

// NewRelay creates an outbound relay.
func NewRelay(opts Options) *Relay {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		inboxID:   opts.InboxID,
		token:     opts.Token,
		crm:       opts.CRM,
		transport: opts.Transport,
		mentions:  opts.Mentions,
		ledger:    opts.Ledger,
		logger:    logger.Named("outbound"),
	}
}

// Authorize checks, in order, that p targets the configured inbox and that
// token is the shared secret.
func (r *Relay) Authorize(p *Payload, token string) error {
	if p.Inbox.ID != r.inboxID {
		return ErrInboxMismatch
	}
	if r.token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(r.token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// Deliver authorizes p and sends it to WhatsApp. Events that are private, not
// outgoing, or arrive while WhatsApp is disconnected are accepted without a
// send; sent reports whether anything went out.
func (r *Relay) Deliver(ctx context.Context, p *Payload, token string) (sent bool, err error) {
	if err := r.Authorize(p, token); err != nil {
		return false, err
	}

	correlationID := uuid.NewString()
	log := r.logger.With(
		zap.String("correlation_id", correlationID),
		zap.Int64("chatwoot_msg_id", p.ID),
		zap.Int64("conversation_id", p.Conversation.ID),
	)
	switch {
	case !r.transport.Connected():
		log.Warn("whatsapp not connected, reply not sent")
		return false, nil
	case p.MessageType != string(chatwoot.MessageOutgoing):
		log.Debug("non-outgoing message ignored", zap.String("message_type", p.MessageType))
		return false, nil
	case p.Private:
		log.Debug("private message ignored")
		return false, nil
	}

	externalID := strconv.FormatInt(p.ID, 10)
	if r.ledger != nil {
		claimed, err := r.ledger.Claim(ctx, store.Outbound, externalID, correlationID, "")
		if err != nil {
			return false, err
		}
		if !claimed {
			log.Debug("repeated webhook delivery ignored")
			return false, nil
		}
	}

	waID, err := r.send(ctx, p, log)
	if err != nil {
		if r.ledger != nil {
			if rerr := r.ledger.Release(context.WithoutCancel(ctx), store.Outbound, externalID); rerr != nil {
				log.Warn("failed to release ledger claim", zap.Error(rerr))
			}
		}
		return false, err
	}

	// An empty reply sends nothing but is still settled in the ledger.
	if r.ledger != nil {
		if err := r.ledger.Complete(ctx, store.Outbound, externalID, p.Conversation.ID, waID); err != nil {
			log.Warn("failed to complete ledger entry", zap.Error(err))
		}
	}
	if waID == "" {
		return false, nil
	}
	log.Info("reply sent to whatsapp", zap.String("wa_msg_id", waID))
	return true, nil
}

func (r *Relay) send(ctx context.Context, p *Payload, log *zap.Logger) (string, error) {
	contact, err := r.crm.GetContact(ctx, p.Conversation.ContactInbox.ContactID)
	if err != nil {
		return "", fmt.Errorf("get contact: %w", err)
	}
	to, err := types.ParseJID(contact.Identifier)
	if err != nil || to.User == "" {
		return "", fmt.Errorf("contact %d has no whatsapp identifier %q", contact.ID, contact.Identifier)
	}

	attachmentURL, err := r.attachmentURL(ctx, p)
	if err != nil {
		return "", err
	}

	translated, err := r.mentions.Translate(ctx, to, p.Content)
	if err != nil {
		return "", fmt.Errorf("translate mentions: %w", err)
	}

	if attachmentURL != "" {
		file, err := r.crm.FetchAttachment(ctx, attachmentURL)
		if err != nil {
			return "", fmt.Errorf("fetch attachment: %w", err)
		}
		media := wa.Media{Data: file.Data, MimeType: file.MimeType, Filename: file.Filename}
		return r.transport.SendMedia(ctx, to, media, translated.Body, translated.Mentions)
	}
	if translated.Body == "" {
		log.Debug("empty reply without attachment ignored")
		return "", nil
	}
	return r.transport.SendText(ctx, to, translated.Body, translated.Mentions)
}

// attachmentURL finds the message in its conversation and returns the URL of
// its first attachment, since webhook payloads omit attachments.
func (r *Relay) attachmentURL(ctx context.Context, p *Payload) (string, error) {
	msgs, err := r.crm.ListConversationMessages(ctx, p.Conversation.ID)
	if err != nil {
		return "", fmt.Errorf("list conversation messages: %w", err)
	}
	for _, m := range msgs {
		if m.ID != p.ID {
			continue
		}
		if len(m.Attachments) > 0 {
			return m.Attachments[0].DataURL, nil
		}
		return "", nil
	}
	return "", nil
}
