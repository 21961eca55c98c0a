package wa

import (
	"github.com/matheus3301/wpp-bridge/internal/bus"
	"github.com/matheus3301/wpp-bridge/internal/status"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
)

// EventHandler translates whatsmeow events into bus events and drives the
// state machine. It never calls the relays directly; they subscribe to the bus.
type EventHandler struct {
	bus     *bus.Bus
	machine *status.Machine
	self    func() types.JID
	logger  *zap.Logger
}

// NewEventHandler creates a new event handler. self returns the bridge's own
// device JID; nil means no device is paired yet.
func NewEventHandler(b *bus.Bus, machine *status.Machine, self func() types.JID, logger *zap.Logger) *EventHandler {
	if self == nil {
		self = func() types.JID { return types.EmptyJID }
	}
	return &EventHandler{
		bus:     b,
		machine: machine,
		self:    self,
		logger:  logger,
	}
}

// Handle is the main whatsmeow event handler function.
func (h *EventHandler) Handle(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		h.handleMessage(evt)
	case *events.GroupInfo:
		h.handleGroupInfo(evt)
	case *events.Connected:
		h.logger.Info("WhatsApp connected")
		if h.machine.Current() == status.Booting {
			_ = h.machine.Transition(status.Connecting)
		}
		h.transition(status.Connected)
	case *events.Disconnected:
		h.logger.Warn("WhatsApp disconnected")
		h.transition(status.Reconnecting)
	case *events.PairSuccess:
		h.logger.Info("device paired", zap.String("jid", evt.ID.String()), zap.String("platform", evt.Platform))
		h.transition(status.Connecting)
		h.bus.Publish(bus.NewEvent(bus.KindAuthenticated, evt.ID))
	case *events.LoggedOut:
		h.logger.Warn("WhatsApp logged out", zap.String("reason", evt.Reason.String()))
		h.transition(status.LoggedOut)
		h.bus.Publish(bus.NewEvent(bus.KindLoggedOut, evt.Reason.String()))
	case *events.StreamReplaced:
		h.logger.Error("session opened elsewhere, connection replaced")
		h.transition(status.Failed)
	}
}

func (h *EventHandler) transition(to status.State) {
	if err := h.machine.Transition(to); err != nil {
		h.logger.Debug("state transition skipped", zap.Error(err))
	}
}

func (h *EventHandler) handleMessage(evt *events.Message) {
	if IsBroadcast(evt.Info.Chat) {
		h.logger.Debug("broadcast message ignored", zap.String("chat", evt.Info.Chat.String()))
		return
	}

	msg := ParseMessage(evt, h.self())
	if msg.Body == "" && !msg.HasMedia() {
		// Reactions, receipts-as-messages, protocol updates.
		return
	}

	kind := bus.KindMessage
	if msg.IsFromMe {
		kind = bus.KindMessageCreate
	}
	h.bus.Publish(bus.NewEvent(kind, msg))
}

func (h *EventHandler) handleGroupInfo(evt *events.GroupInfo) {
	if len(evt.Join) > 0 {
		h.bus.Publish(bus.NewEvent(bus.KindGroupJoin, &GroupChange{Group: evt.JID, Participants: evt.Join}))
	}
	if len(evt.Leave) > 0 {
		h.bus.Publish(bus.NewEvent(bus.KindGroupLeave, &GroupChange{Group: evt.JID, Participants: evt.Leave}))
	}
}
