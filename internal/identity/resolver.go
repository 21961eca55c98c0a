package identity

import (
	"context"
	"fmt"

	"github.com/matheus3301/wpp-bridge/internal/chatwoot"
	"go.uber.org/zap"
)

// CRM is the subset of the Chatwoot client the resolver needs.
type CRM interface {
	SearchContacts(ctx context.Context, query string) ([]chatwoot.Contact, error)
	CreateContact(ctx context.Context, in chatwoot.NewContact) (*chatwoot.Contact, error)
	UpdateContact(ctx context.Context, id int64, in chatwoot.ContactUpdate) (*chatwoot.Contact, error)
	CreateConversation(ctx context.Context, in chatwoot.NewConversation) (*chatwoot.Conversation, error)
	ListContactConversations(ctx context.Context, contactID int64) ([]chatwoot.Conversation, error)
}

// Resolution is the outcome of mapping an identity onto Chatwoot records.
// Conversation is nil when Resolve found no conversation in the inbox.
type Resolution struct {
	Contact      *chatwoot.Contact
	Conversation *chatwoot.Conversation
	// ContactCreated and Created report whether the contact or the
	// conversation was created during this call.
	ContactCreated bool
	Created        bool
}

// Resolver finds or creates the Chatwoot contact and conversation of an identity.
// It holds no cache: every call re-queries Chatwoot. Concurrent resolutions of
// the same new identity may both create records.
type Resolver struct {
	crm       CRM
	inboxID   int64
	sourceTag string
	logger    *zap.Logger
}

// NewResolver creates a resolver bound to one inbox. sourceTag prefixes source ids.
func NewResolver(crm CRM, inboxID int64, sourceTag string, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		crm:       crm,
		inboxID:   inboxID,
		sourceTag: sourceTag,
		logger:    logger.Named("identity"),
	}
}

// SourceID returns the source id the resolver uses for id.
func (r *Resolver) SourceID(id Identity) string {
	return id.SourceID(r.sourceTag)
}

// FindContactByIdentifier searches Chatwoot and keeps only an exact identifier match.
func (r *Resolver) FindContactByIdentifier(ctx context.Context, identifier string) (*chatwoot.Contact, error) {
	candidates, err := r.crm.SearchContacts(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("search contacts by identifier: %w", err)
	}
	return MatchIdentifier(candidates, identifier), nil
}

// FindContactByPhone searches Chatwoot and keeps only an exact phone number match.
func (r *Resolver) FindContactByPhone(ctx context.Context, phone string) (*chatwoot.Contact, error) {
	candidates, err := r.crm.SearchContacts(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("search contacts by phone: %w", err)
	}
	return MatchPhone(candidates, phone), nil
}

// FindConversation returns the contact's conversation in the resolver's inbox, or nil.
func (r *Resolver) FindConversation(ctx context.Context, contactID int64) (*chatwoot.Conversation, error) {
	convs, err := r.crm.ListContactConversations(ctx, contactID)
	if err != nil {
		return nil, fmt.Errorf("list conversations of contact %d: %w", contactID, err)
	}
	return MatchInbox(convs, r.inboxID), nil
}

// Resolve finds the contact of id, by identifier first and then, for
// phone-numbered users, by phone number. A phone match missing an identifier gets it
// back-filled. When nothing matches a contact is created. The conversation is
// looked up in the inbox but never created here.
func (r *Resolver) Resolve(ctx context.Context, id Identity) (*Resolution, error) {
	identifier := id.ExternalIdentifier()
	log := r.logger.With(zap.String("identifier", identifier))

	contact, err := r.FindContactByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if phone := id.PhoneNumber(); contact == nil && phone != "" {
		contact, err = r.FindContactByPhone(ctx, phone)
		if err != nil {
			return nil, err
		}
		if contact != nil && contact.Identifier == "" {
			if _, err := r.crm.UpdateContact(ctx, contact.ID, chatwoot.ContactUpdate{Identifier: identifier}); err != nil {
				return nil, fmt.Errorf("back-fill identifier of contact %d: %w", contact.ID, err)
			}
			contact.Identifier = identifier
			log.Info("identifier back-filled", zap.Int64("contact_id", contact.ID))
		}
	}

	if contact == nil {
		created, err := r.crm.CreateContact(ctx, chatwoot.NewContact{
			InboxID:     r.inboxID,
			Name:        id.Name(),
			PhoneNumber: id.PhoneNumber(),
			Identifier:  identifier,
		})
		if err != nil {
			return nil, fmt.Errorf("create contact: %w", err)
		}
		log.Info("contact created", zap.Int64("contact_id", created.ID))
		return &Resolution{Contact: created, ContactCreated: true}, nil
	}

	conv, err := r.FindConversation(ctx, contact.ID)
	if err != nil {
		return nil, err
	}
	return &Resolution{Contact: contact, Conversation: conv}, nil
}

// EnsureConversation resolves id and creates its conversation in the inbox
// when none exists. Created is set on the result when a conversation was made.
func (r *Resolver) EnsureConversation(ctx context.Context, id Identity) (*Resolution, error) {
	res, err := r.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.Conversation != nil {
		return res, nil
	}

	conv, err := r.crm.CreateConversation(ctx, chatwoot.NewConversation{
		SourceID:  r.SourceID(id),
		InboxID:   r.inboxID,
		ContactID: res.Contact.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("create conversation for contact %d: %w", res.Contact.ID, err)
	}
	r.logger.Info("conversation created",
		zap.Int64("contact_id", res.Contact.ID),
		zap.Int64("conversation_id", conv.ID),
		zap.Bool("group", id.IsGroup),
	)
	res.Conversation = conv
	res.Created = true
	return res, nil
}
