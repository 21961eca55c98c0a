package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/matheus3301/wpp-bridge/internal/bus"
	"github.com/matheus3301/wpp-bridge/internal/chatwoot"
	"github.com/matheus3301/wpp-bridge/internal/identity"
	"github.com/matheus3301/wpp-bridge/internal/wa"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
)

// Transport is the WhatsApp surface the inbound relay reads from.
type Transport interface {
	ResolveLID(ctx context.Context, jid types.JID) types.JID
	ChatName(ctx context.Context, chat types.JID) (string, error)
	Contact(ctx context.Context, jid types.JID) (wa.Contact, error)
	Download(ctx context.Context, msg *wa.InboundMessage) (*wa.Media, error)
}

// EchoChecker recognizes messages the bridge itself sent to WhatsApp.
type EchoChecker interface {
	SentByBridge(ctx context.Context, waMsgID string) (bool, error)
}

// Inbound subscribes to WhatsApp events on the bus and relays them to Chatwoot.
// Every event is handled in its own goroutine.
type Inbound struct {
	bus       *bus.Bus
	transport Transport
	bridge    *Bridge
	groups    GroupSyncer
	echoes    EchoChecker
	logger    *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewInbound creates the inbound relay. groups and echoes may be nil.
func NewInbound(b *bus.Bus, transport Transport, bridge *Bridge, groups GroupSyncer, echoes EchoChecker, logger *zap.Logger) *Inbound {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inbound{
		bus:       b,
		transport: transport,
		bridge:    bridge,
		groups:    groups,
		echoes:    echoes,
		logger:    logger.Named("inbound"),
	}
}

// Start subscribes to WhatsApp events on the bus.
func (i *Inbound) Start(ctx context.Context) {
	ctx, i.cancel = context.WithCancel(ctx)
	i.done = make(chan struct{})
	ch, unsub := i.bus.Subscribe("wa.", 256)

	// Handlers outlive Stop's cancellation: a started relay runs to completion.
	work := context.WithoutCancel(ctx)
	go func() {
		defer close(i.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				i.wg.Add(1)
				go func() {
					defer i.wg.Done()
					i.handleEvent(work, evt)
				}()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop unsubscribes and waits for in-flight events to finish.
func (i *Inbound) Stop() {
	if i.cancel == nil {
		return
	}
	i.cancel()
	<-i.done
	i.wg.Wait()
}

func (i *Inbound) handleEvent(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case bus.KindMessage:
		msg, ok := evt.Payload.(*wa.InboundMessage)
		if !ok {
			return
		}
		i.logResult(msg, i.HandleMessage(ctx, msg))
	case bus.KindMessageCreate:
		msg, ok := evt.Payload.(*wa.InboundMessage)
		if !ok {
			return
		}
		i.logResult(msg, i.HandleOwnMessage(ctx, msg))
	case bus.KindGroupJoin, bus.KindGroupLeave:
		change, ok := evt.Payload.(*wa.GroupChange)
		if !ok || i.groups == nil {
			return
		}
		if err := i.groups.Sync(ctx, change.Group); err != nil {
			i.logger.Error("group roster sync failed", zap.Error(err), zap.String("group", change.Group.String()))
		}
	}
}

func (i *Inbound) logResult(msg *wa.InboundMessage, err error) {
	if err == nil || errors.Is(err, ErrAlreadyRelayed) {
		return
	}
	i.logger.Error("failed to relay message",
		zap.Error(err),
		zap.String("msg_id", msg.ID),
		zap.String("chat", msg.Chat.String()),
	)
}

// HandleMessage relays a message received from someone else. Group messages
// are prefixed with the author's name.
func (i *Inbound) HandleMessage(ctx context.Context, msg *wa.InboundMessage) error {
	if wa.IsBroadcast(msg.Chat) {
		return nil
	}
	var prefix string
	if msg.IsGroup {
		prefix = i.authorName(ctx, msg) + ": "
	}
	return i.relay(ctx, msg, chatwoot.MessageIncoming, prefix)
}

// HandleOwnMessage relays a message the account sent from another device.
// Messages sent through the bridge are dropped so they do not echo back.
func (i *Inbound) HandleOwnMessage(ctx context.Context, msg *wa.InboundMessage) error {
	if !msg.IsFromMe || !msg.FromOtherDevice || wa.IsBroadcast(msg.Chat) {
		return nil
	}
	if i.echoes != nil {
		sent, err := i.echoes.SentByBridge(ctx, msg.ID)
		if err != nil {
			return err
		}
		if sent {
			i.logger.Debug("own relayed message ignored", zap.String("msg_id", msg.ID))
			return nil
		}
	}
	return i.relay(ctx, msg, chatwoot.MessageOutgoing, "")
}

func (i *Inbound) relay(ctx context.Context, msg *wa.InboundMessage, direction chatwoot.MessageType, prefix string) error {
	chat := i.transport.ResolveLID(ctx, msg.Chat)
	name, err := i.transport.ChatName(ctx, chat)
	if err != nil {
		i.logger.Warn("chat name lookup failed", zap.Error(err), zap.String("chat", chat.String()))
	}

	var attachment *chatwoot.File
	if msg.HasMedia() {
		media, err := i.transport.Download(ctx, msg)
		if err != nil {
			i.logger.Warn("media download failed, relaying text only", zap.Error(err), zap.String("msg_id", msg.ID))
		} else if media != nil {
			attachment = &chatwoot.File{Data: media.Data, MimeType: media.MimeType, Filename: media.Filename}
		}
	}

	_, err = i.bridge.RelayToConversation(ctx, Envelope{
		MessageID:  msg.ID,
		Chat:       identity.FromJID(chat, name),
		Body:       msg.Body,
		Direction:  direction,
		Prefix:     prefix,
		Attachment: attachment,
	})
	return err
}

// authorName is the group author's saved name, else push name, else number.
func (i *Inbound) authorName(ctx context.Context, msg *wa.InboundMessage) string {
	c, err := i.transport.Contact(ctx, msg.Sender)
	if err != nil {
		i.logger.Debug("author lookup failed", zap.Error(err))
		c = wa.Contact{JID: i.transport.ResolveLID(ctx, msg.Sender)}
	}
	for _, n := range []string{c.Name, c.PushName, msg.PushName, c.Number()} {
		if n != "" {
			return n
		}
	}
	return msg.Sender.User
}
