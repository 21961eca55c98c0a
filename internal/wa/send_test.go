package wa

import (
	"context"
	"errors"
	"testing"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
)

// scriptedSender returns ids and errors in call order and records the messages.
type scriptedSender struct {
	ids  []string
	errs []error
	sent []*waE2E.Message
}

func (s *scriptedSender) send(_ context.Context, _ types.JID, msg *waE2E.Message, _ ...whatsmeow.SendRequestExtra) (whatsmeow.SendResponse, error) {
	i := len(s.sent)
	s.sent = append(s.sent, msg)
	var resp whatsmeow.SendResponse
	if i < len(s.ids) {
		resp.ID = s.ids[i]
	}
	if i < len(s.errs) && s.errs[i] != nil {
		return whatsmeow.SendResponse{}, s.errs[i]
	}
	return resp, nil
}

func TestSendMediaMessage(t *testing.T) {
	to := types.NewJID("5511999", types.DefaultUserServer)
	media := &waE2E.Message{AudioMessage: &waE2E.AudioMessage{}}

	tests := []struct {
		name      string
		kind      whatsmeow.MediaType
		caption   string
		errs      []error
		wantID    string
		wantErr   bool
		wantSends int
	}{
		{"image keeps caption inline", whatsmeow.MediaImage, "look", nil, "M1", false, 1},
		{"audio caption follows", whatsmeow.MediaAudio, "listen", nil, "M1", false, 2},
		{"audio without caption", whatsmeow.MediaAudio, "", nil, "M1", false, 1},
		{"audio caption failure is not a send failure", whatsmeow.MediaAudio, "listen", []error{nil, errors.New("socket closed")}, "M1", false, 2},
		{"media failure", whatsmeow.MediaAudio, "listen", []error{errors.New("socket closed")}, "", true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &scriptedSender{ids: []string{"M1", "M2"}, errs: tt.errs}
			id, err := sendMediaMessage(context.Background(), s.send, zap.NewNop(), to, tt.kind, media, tt.caption, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if id != tt.wantID {
				t.Errorf("id = %q, want %q", id, tt.wantID)
			}
			if len(s.sent) != tt.wantSends {
				t.Fatalf("sends = %d, want %d", len(s.sent), tt.wantSends)
			}
			if tt.wantSends == 2 && s.sent[1].GetConversation() != tt.caption {
				t.Errorf("follow-up = %v, want caption text", s.sent[1])
			}
		})
	}
}
