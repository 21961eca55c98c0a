package wa

import (
	"errors"
	"fmt"
	"os"

	"github.com/matheus3301/wpp-bridge/internal/bus"
	"github.com/matheus3301/wpp-bridge/internal/status"
	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.uber.org/zap"
)

// ErrNoQR is returned by QRCodePNG when no pairing code is pending.
var ErrNoQR = errors.New("no pairing QR code available")

// LatestQR returns the pending pairing code, or "" when none is pending.
func (a *Adapter) LatestQR() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.qr
}

// QRCodePNG renders the pending pairing code as a PNG image.
func (a *Adapter) QRCodePNG(size int) ([]byte, error) {
	code := a.LatestQR()
	if code == "" {
		return nil, ErrNoQR
	}
	png, err := qrcode.Encode(code, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode QR: %w", err)
	}
	return png, nil
}

func (a *Adapter) setQR(code string) {
	a.mu.Lock()
	a.qr = code
	a.mu.Unlock()
}

func (a *Adapter) watchPairing(qrChan <-chan whatsmeow.QRChannelItem) {
	defer a.setQR("")
	for item := range qrChan {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			a.setQR(item.Code)
			a.bus.Publish(bus.NewEvent(bus.KindQR, item.Code))
			printQR(item.Code)
			a.logger.Info("scan the QR code to link the bridge", zap.Duration("valid_for", item.Timeout))
		case whatsmeow.QRChannelSuccess.Event:
			a.logger.Info("pairing succeeded")
			return
		case whatsmeow.QRChannelTimeout.Event:
			a.logger.Error("pairing timed out, restart the bridge to get a new code")
			_ = a.machine.Transition(status.Failed)
			return
		case whatsmeow.QRChannelEventError:
			a.logger.Error("pairing failed", zap.Error(item.Error))
			_ = a.machine.Transition(status.Failed)
			return
		default:
			a.logger.Warn("pairing ended", zap.String("event", item.Event))
			return
		}
	}
}

func printQR(code string) {
	q, err := qrcode.New(code, qrcode.Low)
	if err != nil {
		return
	}
	fmt.Fprintln(os.Stdout, q.ToSmallString(false))
}
