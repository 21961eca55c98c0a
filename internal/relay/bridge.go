// Package relay moves WhatsApp messages into Chatwoot conversations.
package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/matheus3301/wpp-bridge/internal/chatwoot"
	"github.com/matheus3301/wpp-bridge/internal/identity"
	"github.com/matheus3301/wpp-bridge/internal/store"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
)

// ErrAlreadyRelayed is returned when the ledger shows a message was relayed before.
var ErrAlreadyRelayed = errors.New("message already relayed")

// CRM posts messages to Chatwoot.
type CRM interface {
	PostMessage(ctx context.Context, conversationID int64, in chatwoot.NewMessage) (*chatwoot.Message, error)
}

// Resolver maps identities onto Chatwoot conversations.
type Resolver interface {
	EnsureConversation(ctx context.Context, id identity.Identity) (*identity.Resolution, error)
}

// GroupSyncer refreshes the roster attribute of a group conversation.
type GroupSyncer interface {
	Sync(ctx context.Context, group types.JID) error
}

// Ledger deduplicates relays across re-deliveries.
type Ledger interface {
	Claim(ctx context.Context, dir store.Direction, externalID, correlationID, chatJID string) (bool, error)
	Complete(ctx context.Context, dir store.Direction, externalID string, conversationID int64, resultID string) error
	Release(ctx context.Context, dir store.Direction, externalID string) error
}

// Envelope is a message on its way into a Chatwoot conversation.
type Envelope struct {
	// MessageID is the WhatsApp message id. Empty disables deduplication.
	MessageID  string
	Chat       identity.Identity
	Body       string
	Direction  chatwoot.MessageType
	Prefix     string
	Attachment *chatwoot.File
}

// Bridge posts envelopes to the conversation of their chat.
type Bridge struct {
	resolver Resolver
	crm      CRM
	groups   GroupSyncer
	ledger   Ledger
	logger   *zap.Logger
}

// NewBridge creates a bridge. groups and ledger may be nil.
func NewBridge(resolver Resolver, crm CRM, groups GroupSyncer, ledger Ledger, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		resolver: resolver,
		crm:      crm,
		groups:   groups,
		ledger:   ledger,
		logger:   logger.Named("relay"),
	}
}

// RelayToConversation finds or creates the conversation of env.Chat and posts
// the message there. Outgoing messages are posted private so the Chatwoot
// webhook never sends them back to WhatsApp.
func (b *Bridge) RelayToConversation(ctx context.Context, env Envelope) (*chatwoot.Message, error) {
	correlationID := uuid.NewString()
	log := b.logger.With(
		zap.String("correlation_id", correlationID),
		zap.String("chat", env.Chat.ExternalIdentifier()),
		zap.String("msg_id", env.MessageID),
		zap.String("direction", string(env.Direction)),
	)

	dedupe := b.ledger != nil && env.MessageID != ""
	if dedupe {
		claimed, err := b.ledger.Claim(ctx, store.Inbound, env.MessageID, correlationID, env.Chat.ExternalIdentifier())
		if err != nil {
			return nil, err
		}
		if !claimed {
			log.Debug("re-delivered message skipped")
			return nil, ErrAlreadyRelayed
		}
	}

	msg, convID, err := b.relay(ctx, env, log)
	if err != nil {
		if dedupe {
			if rerr := b.ledger.Release(context.WithoutCancel(ctx), store.Inbound, env.MessageID); rerr != nil {
				log.Warn("failed to release ledger claim", zap.Error(rerr))
			}
		}
		return nil, err
	}

	if dedupe {
		if err := b.ledger.Complete(ctx, store.Inbound, env.MessageID, convID, fmt.Sprint(msg.ID)); err != nil {
			log.Warn("failed to complete ledger entry", zap.Error(err))
		}
	}
	log.Info("message relayed to chatwoot",
		zap.Int64("conversation_id", convID),
		zap.Int64("chatwoot_msg_id", msg.ID),
		zap.Bool("attachment", env.Attachment != nil),
	)
	return msg, nil
}

func (b *Bridge) relay(ctx context.Context, env Envelope, log *zap.Logger) (*chatwoot.Message, int64, error) {
	res, err := b.resolver.EnsureConversation(ctx, env.Chat)
	if err != nil {
		return nil, 0, fmt.Errorf("resolve conversation: %w", err)
	}
	convID := res.Conversation.ID

	if res.Created && env.Chat.IsGroup && b.groups != nil {
		if err := b.groups.Sync(ctx, env.Chat.JID()); err != nil {
			log.Warn("group roster sync failed", zap.Error(err))
		}
	}

	msg, err := b.crm.PostMessage(ctx, convID, chatwoot.NewMessage{
		Content:    env.Prefix + env.Body,
		Type:       env.Direction,
		Private:    env.Direction == chatwoot.MessageOutgoing,
		Attachment: env.Attachment,
	})
	if err != nil {
		return nil, convID, fmt.Errorf("post message: %w", err)
	}
	return msg, convID, nil
}
