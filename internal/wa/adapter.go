package wa

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/matheus3301/wpp-bridge/internal/bus"
	"github.com/matheus3301/wpp-bridge/internal/logging"
	"github.com/matheus3301/wpp-bridge/internal/status"
	"go.mau.fi/whatsmeow"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotConnected is returned by sends while the transport is offline.
var ErrNotConnected = errors.New("whatsapp not connected")

// Options configures the adapter.
type Options struct {
	// DBPath is the whatsmeow device store file.
	DBPath string
	// DeviceName is shown in the phone's linked devices list.
	DeviceName string
}

// Adapter wraps the whatsmeow client and manages the WhatsApp connection.
type Adapter struct {
	client  *whatsmeow.Client
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger

	mu     sync.RWMutex
	qr     string
	cancel context.CancelFunc
}

// NewAdapter opens the device store and creates the whatsmeow client.
func NewAdapter(ctx context.Context, opts Options, b *bus.Bus, machine *status.Machine, logger *zap.Logger) (*Adapter, error) {
	wastore.SetOSInfo(opts.DeviceName, [3]uint32{0, 1, 0})

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", opts.DBPath),
		logging.NewWALogger(logger, "wa-store"),
	)
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device store: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, logging.NewWALogger(logger, "wa-client"))

	return &Adapter{
		client:  client,
		bus:     b,
		machine: machine,
		logger:  logger,
	}, nil
}

// IsLoggedIn returns whether the adapter has valid credentials.
func (a *Adapter) IsLoggedIn() bool {
	return a.client.Store.ID != nil
}

// Connected reports whether messages can be sent right now.
func (a *Adapter) Connected() bool {
	return a.client.IsConnected() && a.client.IsLoggedIn()
}

// Self returns the bridge's own device JID, or an empty JID before pairing.
func (a *Adapter) Self() types.JID {
	if id := a.client.Store.ID; id != nil {
		return *id
	}
	return types.EmptyJID
}

// RegisterEventHandler adds a handler for whatsmeow events.
func (a *Adapter) RegisterEventHandler(handler whatsmeow.EventHandler) {
	a.client.AddEventHandler(handler)
}

// Start connects to WhatsApp. Without stored credentials it first opens the
// QR pairing flow; the latest code is kept for LatestQR and published on the bus.
func (a *Adapter) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	if !a.IsLoggedIn() {
		qrChan, err := a.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("get QR channel: %w", err)
		}
		_ = a.machine.Transition(status.Pairing)
		go a.watchPairing(qrChan)
	} else {
		_ = a.machine.Transition(status.Connecting)
	}

	a.logger.Info("connecting to WhatsApp", zap.Bool("logged_in", a.IsLoggedIn()))
	if err := a.client.Connect(); err != nil {
		_ = a.machine.Transition(status.Failed)
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// Stop terminates the WhatsApp connection.
func (a *Adapter) Stop() {
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Unlock()
	a.logger.Info("disconnecting from WhatsApp")
	a.client.Disconnect()
}

// ResolveLID resolves a LID JID to its phone number JID using the device store mapping.
// Returns the original JID if it's not a LID or if resolution fails.
func (a *Adapter) ResolveLID(ctx context.Context, jid types.JID) types.JID {
	if jid.Server != types.HiddenUserServer && jid.Server != types.HostedLIDServer {
		return jid
	}
	if a.client.Store == nil || a.client.Store.LIDs == nil {
		return jid
	}
	pn, err := a.client.Store.LIDs.GetPNForLID(ctx, jid)
	if err != nil || pn.IsEmpty() {
		return jid
	}
	return pn
}

// Contact looks up a user in the device store. Unknown users yield a contact
// with only the JID set.
func (a *Adapter) Contact(ctx context.Context, jid types.JID) (Contact, error) {
	jid = a.ResolveLID(ctx, jid.ToNonAD())
	info, err := a.client.Store.Contacts.GetContact(ctx, jid)
	if err != nil {
		return Contact{}, fmt.Errorf("get contact %s: %w", jid, err)
	}
	name := info.FullName
	if name == "" {
		name = info.BusinessName
	}
	return Contact{JID: jid, Name: name, PushName: info.PushName}, nil
}

// ChatName returns the subject of a group or the saved name of a user.
func (a *Adapter) ChatName(ctx context.Context, chat types.JID) (string, error) {
	if chat.Server == types.GroupServer {
		info, err := a.client.GetGroupInfo(ctx, chat)
		if err != nil {
			return "", fmt.Errorf("get group info %s: %w", chat, err)
		}
		return info.Name, nil
	}
	c, err := a.Contact(ctx, chat)
	if err != nil {
		return "", err
	}
	if c.Name != "" {
		return c.Name, nil
	}
	return c.PushName, nil
}

// GroupParticipants returns the members of a group in WhatsApp's order.
// Members addressed by LID are mapped to their phone number JID when known.
func (a *Adapter) GroupParticipants(ctx context.Context, group types.JID) ([]Contact, error) {
	info, err := a.client.GetGroupInfo(ctx, group)
	if err != nil {
		return nil, fmt.Errorf("get group info %s: %w", group, err)
	}
	out := make([]Contact, 0, len(info.Participants))
	for _, p := range info.Participants {
		jid := p.JID
		if jid.Server == types.HiddenUserServer && !p.PhoneNumber.IsEmpty() {
			jid = p.PhoneNumber
		}
		c, err := a.Contact(ctx, jid)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Download fetches and decrypts the media of msg.
func (a *Adapter) Download(ctx context.Context, msg *InboundMessage) (*Media, error) {
	if !msg.HasMedia() {
		return nil, nil
	}
	data, err := a.client.DownloadAny(ctx, msg.raw)
	if err != nil {
		return nil, fmt.Errorf("download %s media: %w", msg.MediaType, err)
	}
	mimeType := msg.MimeType
	if mimeType == "" {
		mimeType = mimetype.Detect(data).String()
	}
	return &Media{Data: data, MimeType: mimeType, Filename: msg.Filename}, nil
}
