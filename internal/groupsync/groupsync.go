// Package groupsync mirrors the member list of a WhatsApp group into a custom
// attribute of its Chatwoot conversation.
package groupsync

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/matheus3301/wpp-bridge/internal/chatwoot"
	"github.com/matheus3301/wpp-bridge/internal/wa"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
)

// Transport lists group members.
type Transport interface {
	GroupParticipants(ctx context.Context, group types.JID) ([]wa.Contact, error)
}

// Locator finds existing Chatwoot records without creating any.
type Locator interface {
	FindContactByIdentifier(ctx context.Context, identifier string) (*chatwoot.Contact, error)
	FindConversation(ctx context.Context, contactID int64) (*chatwoot.Conversation, error)
}

// CRM writes conversation attributes.
type CRM interface {
	SetCustomAttributes(ctx context.Context, conversationID int64, attrs map[string]any) error
}

// Synchronizer pushes group rosters to Chatwoot.
type Synchronizer struct {
	transport Transport
	locator   Locator
	crm       CRM
	attribute string
	logger    *zap.Logger
}

// New creates a synchronizer writing the roster under the attribute key.
func New(transport Transport, locator Locator, crm CRM, attribute string, logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	// A nil *wa.Adapter wrapped in the interface is still no transport.
	if v := reflect.ValueOf(transport); v.Kind() == reflect.Pointer && v.IsNil() {
		transport = nil
	}
	return &Synchronizer{
		transport: transport,
		locator:   locator,
		crm:       crm,
		attribute: attribute,
		logger:    logger.Named("groupsync"),
	}
}

// Sync writes the current roster of group to its conversation. It does nothing
// without a transport, and skips groups that have no conversation yet.
func (s *Synchronizer) Sync(ctx context.Context, group types.JID) error {
	if s.transport == nil {
		return nil
	}
	log := s.logger.With(zap.String("group", group.String()))

	participants, err := s.transport.GroupParticipants(ctx, group)
	if err != nil {
		return fmt.Errorf("list participants: %w", err)
	}
	roster := FormatRoster(participants)

	contact, err := s.locator.FindContactByIdentifier(ctx, group.ToNonAD().String())
	if err != nil {
		return err
	}
	if contact == nil {
		log.Debug("group has no contact yet, roster sync skipped")
		return nil
	}
	conv, err := s.locator.FindConversation(ctx, contact.ID)
	if err != nil {
		return err
	}
	if conv == nil {
		log.Debug("group has no conversation yet, roster sync skipped")
		return nil
	}

	if err := s.crm.SetCustomAttributes(ctx, conv.ID, map[string]any{s.attribute: roster}); err != nil {
		return fmt.Errorf("set roster attribute: %w", err)
	}
	log.Info("group roster synced",
		zap.Int64("conversation_id", conv.ID),
		zap.Int("participants", len(participants)),
	)
	return nil
}

// ParticipantLabel is the participant's saved name, else push name, else number.
func ParticipantLabel(c wa.Contact) string {
	for _, l := range []string{c.Name, c.PushName, "+" + c.Number()} {
		if l != "" {
			return l
		}
	}
	return ""
}

// FormatRoster renders participants as "[label - +number]" joined by commas,
// keeping the given order.
func FormatRoster(participants []wa.Contact) string {
	parts := make([]string, len(participants))
	for i, p := range participants {
		parts[i] = fmt.Sprintf("[%s - +%s]", ParticipantLabel(p), p.Number())
	}
	return strings.Join(parts, ",")
}
