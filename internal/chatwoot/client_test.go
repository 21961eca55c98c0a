package chatwoot

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Options{BaseURL: srv.URL + "/api/v1/", AccountID: 3, AccessToken: "tok"})
}

func TestSearchContactsEncodesQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/accounts/3/contacts/search", r.URL.Path)
		assert.Equal(t, "+5511999", r.URL.Query().Get("q"))
		assert.Equal(t, "tok", r.Header.Get("api_access_token"))
		_, _ = io.WriteString(w, `{"payload":[{"id":1,"name":"Ann","identifier":"5511999@s.whatsapp.net","phone_number":"+5511999"},{"id":2,"name":"Bob","identifier":null}]}`)
	})

	contacts, err := c.SearchContacts(context.Background(), "+5511999")
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	assert.Equal(t, int64(1), contacts[0].ID)
	assert.Equal(t, "5511999@s.whatsapp.net", contacts[0].Identifier)
	assert.Empty(t, contacts[1].Identifier)
}

func TestCreateContact(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/accounts/3/contacts", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var in NewContact
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, NewContact{InboxID: 7, Name: "Group", PhoneNumber: "", Identifier: "123@g.us"}, in)
		_, _ = io.WriteString(w, `{"payload":{"contact":{"id":9,"name":"Group","identifier":"123@g.us"},"contact_inbox":{"source_id":"x"}}}`)
	})

	got, err := c.CreateContact(context.Background(), NewContact{InboxID: 7, Name: "Group", Identifier: "123@g.us"})
	require.NoError(t, err)
	assert.Equal(t, &Contact{ID: 9, Name: "Group", Identifier: "123@g.us"}, got)
}

func TestUpdateContact(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1/accounts/3/contacts/4", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"identifier":"1@s.whatsapp.net"}`, string(body))
		_, _ = io.WriteString(w, `{"payload":{"id":4,"identifier":"1@s.whatsapp.net"}}`)
	})

	got, err := c.UpdateContact(context.Background(), 4, ContactUpdate{Identifier: "1@s.whatsapp.net"})
	require.NoError(t, err)
	assert.Equal(t, "1@s.whatsapp.net", got.Identifier)
}

func TestConversationEndpoints(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "POST /api/v1/accounts/3/conversations":
			body, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"source_id":"tag:1@s.whatsapp.net","inbox_id":7,"contact_id":4}`, string(body))
			_, _ = io.WriteString(w, `{"id":11,"inbox_id":7}`)
		case "GET /api/v1/accounts/3/contacts/4/conversations":
			_, _ = io.WriteString(w, `{"payload":[{"id":10,"inbox_id":2},{"id":11,"inbox_id":7}]}`)
		case "GET /api/v1/accounts/3/conversations/11/messages":
			_, _ = io.WriteString(w, `{"meta":{},"payload":[{"id":5,"content":"hi","message_type":1,"attachments":[{"id":1,"file_type":"image","data_url":"http://x/a.png"}]}]}`)
		case "POST /api/v1/accounts/3/conversations/11/custom_attributes":
			body, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"custom_attributes":{"participants":"[Ann - +1]"}}`, string(body))
			_, _ = io.WriteString(w, `{"custom_attributes":{}}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	conv, err := c.CreateConversation(ctx, NewConversation{SourceID: "tag:1@s.whatsapp.net", InboxID: 7, ContactID: 4})
	require.NoError(t, err)
	assert.Equal(t, int64(11), conv.ID)

	convs, err := c.ListContactConversations(ctx, 4)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, int64(7), convs[1].InboxID)

	msgs, err := c.ListConversationMessages(ctx, 11)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "http://x/a.png", msgs[0].Attachments[0].DataURL)

	require.NoError(t, c.SetCustomAttributes(ctx, 11, map[string]any{"participants": "[Ann - +1]"}))
}

func TestPostMessageMultipart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/accounts/3/conversations/11/messages", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "Ann: hello", r.FormValue("content"))
		assert.Equal(t, "outgoing", r.FormValue("message_type"))
		assert.Equal(t, "true", r.FormValue("private"))

		files := r.MultipartForm.File["attachments[]"]
		require.Len(t, files, 1)
		assert.Equal(t, "attachment.png", files[0].Filename)
		assert.Equal(t, "image/png", files[0].Header.Get("Content-Type"))
		_, _ = io.WriteString(w, `{"id":77,"content":"Ann: hello","private":true}`)
	})

	msg, err := c.PostMessage(context.Background(), 11, NewMessage{
		Content:    "Ann: hello",
		Type:       MessageOutgoing,
		Private:    true,
		Attachment: &File{Data: pngHeader, MimeType: "image/png"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(77), msg.ID)
	assert.True(t, msg.Private)
}

func TestPostMessageWithoutAttachment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "false", r.FormValue("private"))
		assert.Equal(t, "incoming", r.FormValue("message_type"))
		assert.Empty(t, r.MultipartForm.File)
		_, _ = io.WriteString(w, `{"id":1}`)
	})

	_, err := c.PostMessage(context.Background(), 11, NewMessage{Content: "hi", Type: MessageIncoming})
	require.NoError(t, err)
}

func TestAPIErrorPropagated(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"message":"Identifier has already been taken"}`)
	})

	_, err := c.CreateContact(context.Background(), NewContact{InboxID: 7})
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "/contacts", apiErr.Path)
	assert.Contains(t, apiErr.Body, "already been taken")
}

func TestFetchAttachment(t *testing.T) {
	var sawToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawToken = r.Header.Get("api_access_token")
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(pngHeader)
	}))
	t.Cleanup(srv.Close)
	c := New(Options{BaseURL: srv.URL + "/api/v1", AccountID: 3, AccessToken: "tok"})

	f, err := c.FetchAttachment(context.Background(), srv.URL+"/rails/active_storage/blobs/photo.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", f.MimeType)
	assert.Equal(t, "photo.png", f.Filename)
	assert.Equal(t, pngHeader, f.Data)
	assert.Equal(t, "tok", sawToken)
}

func TestAttachmentFilename(t *testing.T) {
	tests := []struct {
		name string
		file File
		want string
	}{
		{"explicit name", File{Filename: "report.pdf", MimeType: "image/png"}, "report.pdf"},
		{"png", File{MimeType: "image/png"}, "attachment.png"},
		{"pdf", File{MimeType: "application/pdf"}, "attachment.pdf"},
		{"sniffed", File{Data: pngHeader}, "attachment.png"},
		{"unknown", File{MimeType: "x-unknown/thing"}, "attachment.bin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AttachmentFilename(&tt.file))
		})
	}
}
