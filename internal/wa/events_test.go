package wa

import (
	"testing"
	"time"

	"github.com/matheus3301/wpp-bridge/internal/bus"
	"github.com/matheus3301/wpp-bridge/internal/status"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

var ownDevice = types.JID{User: "5511000", Server: types.DefaultUserServer, Device: 12}

// walkTo transitions the machine through the given states sequentially.
func walkTo(t *testing.T, m *status.Machine, states ...status.State) {
	t.Helper()
	for _, s := range states {
		if err := m.Transition(s); err != nil {
			t.Fatalf("transition to %s failed: %v", s, err)
		}
	}
}

func newTestHandler() (*EventHandler, *bus.Bus, *status.Machine) {
	b := bus.New()
	m := status.NewMachine(b)
	h := NewEventHandler(b, m, func() types.JID { return ownDevice }, zap.NewNop())
	return h, b, m
}

func waitEvent(t *testing.T, ch <-chan bus.Event) bus.Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
	return bus.Event{}
}

func expectNoEvent(t *testing.T, ch <-chan bus.Event) {
	t.Helper()
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event %q", evt.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func textEvent(chat, sender types.JID, fromMe bool, text string) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			ID:        "MSG1",
			Timestamp: time.Now(),
			MessageSource: types.MessageSource{
				Chat:     chat,
				Sender:   sender,
				IsFromMe: fromMe,
				IsGroup:  chat.Server == types.GroupServer,
			},
		},
		Message: &waE2E.Message{Conversation: proto.String(text)},
	}
}

func TestHandleConnectedFromBooting(t *testing.T) {
	h, _, m := newTestHandler()

	h.Handle(&events.Connected{})

	if m.Current() != status.Connected {
		t.Errorf("state = %s, want CONNECTED", m.Current())
	}
}

func TestHandleConnectedFromPairing(t *testing.T) {
	h, _, m := newTestHandler()
	walkTo(t, m, status.Pairing)

	h.Handle(&events.Connected{})

	if m.Current() != status.Connected {
		t.Errorf("state = %s, want CONNECTED", m.Current())
	}
}

func TestHandleDisconnectedThenReconnected(t *testing.T) {
	h, b, m := newTestHandler()
	walkTo(t, m, status.Connecting, status.Connected)

	ch, unsub := b.Subscribe(bus.KindStatusChanged, 10)
	defer unsub()

	h.Handle(&events.Disconnected{})
	if m.Current() != status.Reconnecting {
		t.Errorf("state = %s, want RECONNECTING", m.Current())
	}
	change := waitEvent(t, ch).Payload.(status.StatusChange)
	if change.From != status.Connected || change.To != status.Reconnecting {
		t.Errorf("change = %+v, want CONNECTED -> RECONNECTING", change)
	}

	h.Handle(&events.Connected{})
	if m.Current() != status.Connected {
		t.Errorf("state = %s, want CONNECTED", m.Current())
	}
}

func TestHandleLoggedOut(t *testing.T) {
	h, b, m := newTestHandler()
	walkTo(t, m, status.Connecting, status.Connected)

	ch, unsub := b.Subscribe(bus.KindLoggedOut, 10)
	defer unsub()

	h.Handle(&events.LoggedOut{})

	if m.Current() != status.LoggedOut {
		t.Errorf("state = %s, want LOGGED_OUT", m.Current())
	}
	if evt := waitEvent(t, ch); evt.Kind != bus.KindLoggedOut {
		t.Errorf("event kind = %q, want %q", evt.Kind, bus.KindLoggedOut)
	}
}

func TestHandlePairSuccess(t *testing.T) {
	h, b, m := newTestHandler()
	walkTo(t, m, status.Pairing)

	ch, unsub := b.Subscribe(bus.KindAuthenticated, 10)
	defer unsub()

	h.Handle(&events.PairSuccess{ID: ownDevice, Platform: "android"})

	if m.Current() != status.Connecting {
		t.Errorf("state = %s, want CONNECTING", m.Current())
	}
	if evt := waitEvent(t, ch); evt.Payload.(types.JID) != ownDevice {
		t.Errorf("payload = %v, want %v", evt.Payload, ownDevice)
	}
}

func TestHandleStreamReplaced(t *testing.T) {
	h, _, m := newTestHandler()
	walkTo(t, m, status.Connecting, status.Connected)

	h.Handle(&events.StreamReplaced{})

	if m.Current() != status.Failed {
		t.Errorf("state = %s, want FAILED", m.Current())
	}
}

func TestHandleIncomingMessage(t *testing.T) {
	h, b, _ := newTestHandler()
	ch, unsub := b.Subscribe("wa.", 10)
	defer unsub()

	chat := types.NewJID("5511999", types.DefaultUserServer)
	h.Handle(textEvent(chat, chat, false, "hello"))

	evt := waitEvent(t, ch)
	if evt.Kind != bus.KindMessage {
		t.Fatalf("event kind = %q, want %q", evt.Kind, bus.KindMessage)
	}
	msg := evt.Payload.(*InboundMessage)
	if msg.Body != "hello" || msg.Chat != chat || msg.IsFromMe {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestHandleOwnMessages(t *testing.T) {
	chat := types.NewJID("5511999", types.DefaultUserServer)
	phone := types.JID{User: ownDevice.User, Server: ownDevice.Server, Device: 0}

	tests := []struct {
		name        string
		sender      types.JID
		otherDevice bool
	}{
		{"sent from phone", phone, true},
		{"sent by bridge device", ownDevice, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, b, _ := newTestHandler()
			ch, unsub := b.Subscribe("wa.", 10)
			defer unsub()

			h.Handle(textEvent(chat, tt.sender, true, "from me"))

			evt := waitEvent(t, ch)
			if evt.Kind != bus.KindMessageCreate {
				t.Fatalf("event kind = %q, want %q", evt.Kind, bus.KindMessageCreate)
			}
			if got := evt.Payload.(*InboundMessage).FromOtherDevice; got != tt.otherDevice {
				t.Errorf("FromOtherDevice = %v, want %v", got, tt.otherDevice)
			}
		})
	}
}

func TestHandleBroadcastIgnored(t *testing.T) {
	h, b, _ := newTestHandler()
	ch, unsub := b.Subscribe("wa.", 10)
	defer unsub()

	sender := types.NewJID("5511999", types.DefaultUserServer)
	h.Handle(textEvent(types.StatusBroadcastJID, sender, false, "status update"))
	h.Handle(textEvent(types.NewJID("1234", types.BroadcastServer), sender, false, "list"))
	h.Handle(textEvent(types.NewJID("120363000000000001", types.NewsletterServer), sender, false, "channel post"))

	expectNoEvent(t, ch)
}

func TestHandleEmptyMessageIgnored(t *testing.T) {
	h, b, _ := newTestHandler()
	ch, unsub := b.Subscribe("wa.", 10)
	defer unsub()

	chat := types.NewJID("5511999", types.DefaultUserServer)
	evt := textEvent(chat, chat, false, "")
	evt.Message = &waE2E.Message{ReactionMessage: &waE2E.ReactionMessage{Text: proto.String("👍")}}
	h.Handle(evt)

	expectNoEvent(t, ch)
}

func TestHandleGroupInfo(t *testing.T) {
	h, b, _ := newTestHandler()
	ch, unsub := b.Subscribe("wa.group_", 10)
	defer unsub()

	group := types.NewJID("120363", types.GroupServer)
	ann := types.NewJID("1", types.DefaultUserServer)
	bob := types.NewJID("2", types.DefaultUserServer)
	h.Handle(&events.GroupInfo{JID: group, Join: []types.JID{ann}, Leave: []types.JID{bob}})

	join := waitEvent(t, ch)
	if join.Kind != bus.KindGroupJoin {
		t.Errorf("first kind = %q, want %q", join.Kind, bus.KindGroupJoin)
	}
	if c := join.Payload.(*GroupChange); c.Group != group || len(c.Participants) != 1 || c.Participants[0] != ann {
		t.Errorf("join payload = %+v", c)
	}
	leave := waitEvent(t, ch)
	if leave.Kind != bus.KindGroupLeave {
		t.Errorf("second kind = %q, want %q", leave.Kind, bus.KindGroupLeave)
	}

	h.Handle(&events.GroupInfo{JID: group, Name: &types.GroupName{Name: "renamed"}})
	expectNoEvent(t, ch)
}
