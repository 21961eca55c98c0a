package chatwoot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

const (
	tokenHeader    = "api_access_token"
	maxErrorBody   = 4 << 10
	defaultTimeout = 60 * time.Second
)

// Options configures a Client.
type Options struct {
	// BaseURL is the Chatwoot API root, e.g. https://chat.example.com/api/v1.
	BaseURL     string
	AccountID   int64
	AccessToken string
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

// Client is a typed wrapper around the Chatwoot account API. It performs no
// retries and keeps no state between calls; transport and API failures are
// returned to the caller.
type Client struct {
	baseURL string
	host    string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

// New creates a Chatwoot client scoped to one account.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	base := strings.TrimRight(opts.BaseURL, "/") + "/accounts/" + strconv.FormatInt(opts.AccountID, 10)
	var host string
	if u, err := url.Parse(base); err == nil {
		host = u.Host
	}
	return &Client{
		baseURL: base,
		host:    host,
		token:   opts.AccessToken,
		http:    httpClient,
		logger:  logger.Named("chatwoot"),
	}
}

// SearchContacts runs Chatwoot's free-text contact search. The match is loose:
// callers must re-check the field they searched for.
func (c *Client) SearchContacts(ctx context.Context, query string) ([]Contact, error) {
	var resp struct {
		Payload []Contact `json:"payload"`
	}
	q := url.Values{"q": {query}}
	if err := c.doJSON(ctx, http.MethodGet, "/contacts/search?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Payload, nil
}

// GetContact fetches a contact by id.
func (c *Client) GetContact(ctx context.Context, id int64) (*Contact, error) {
	var resp struct {
		Payload Contact `json:"payload"`
	}
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/contacts/%d", id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Payload, nil
}

// CreateContact creates a contact attached to an inbox.
func (c *Client) CreateContact(ctx context.Context, in NewContact) (*Contact, error) {
	var resp struct {
		Payload struct {
			Contact Contact `json:"contact"`
		} `json:"payload"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/contacts", in, &resp); err != nil {
		return nil, err
	}
	return &resp.Payload.Contact, nil
}

// UpdateContact changes the given fields of a contact.
func (c *Client) UpdateContact(ctx context.Context, id int64, in ContactUpdate) (*Contact, error) {
	var resp struct {
		Payload Contact `json:"payload"`
	}
	if err := c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/contacts/%d", id), in, &resp); err != nil {
		return nil, err
	}
	return &resp.Payload, nil
}

// CreateConversation opens a conversation for a contact in an inbox.
func (c *Client) CreateConversation(ctx context.Context, in NewConversation) (*Conversation, error) {
	var conv Conversation
	if err := c.doJSON(ctx, http.MethodPost, "/conversations", in, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListContactConversations returns every conversation of a contact across inboxes.
func (c *Client) ListContactConversations(ctx context.Context, contactID int64) ([]Conversation, error) {
	var resp struct {
		Payload []Conversation `json:"payload"`
	}
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/contacts/%d/conversations", contactID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Payload, nil
}

// ListConversationMessages returns the messages of a conversation.
func (c *Client) ListConversationMessages(ctx context.Context, conversationID int64) ([]Message, error) {
	var resp struct {
		Payload []Message `json:"payload"`
	}
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/conversations/%d/messages", conversationID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Payload, nil
}

// SetCustomAttributes replaces custom attributes of a conversation.
func (c *Client) SetCustomAttributes(ctx context.Context, conversationID int64, attrs map[string]any) error {
	body := map[string]any{"custom_attributes": attrs}
	return c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/conversations/%d/custom_attributes", conversationID), body, nil)
}

// PostMessage posts a message as multipart form data, with at most one attachment.
func (c *Client) PostMessage(ctx context.Context, conversationID int64, in NewMessage) (*Message, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"content", in.Content},
		{"message_type", string(in.Type)},
		{"private", strconv.FormatBool(in.Private)},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("write field %s: %w", f[0], err)
		}
	}
	if in.Attachment != nil {
		if err := writeAttachment(w, in.Attachment); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	p := fmt.Sprintf("/conversations/%d/messages", conversationID)
	req, err := c.newRequest(ctx, http.MethodPost, p, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var msg Message
	if err := c.do(req, p, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// FetchAttachment downloads an attachment by its absolute data URL. The access
// token is only sent when the URL points at the configured Chatwoot host.
func (c *Client) FetchAttachment(ctx context.Context, dataURL string) (*File, error) {
	u, err := url.Parse(dataURL)
	if err != nil {
		return nil, fmt.Errorf("parse attachment url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if u.Host == c.host {
		req.Header.Set(tokenHeader, c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch attachment: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if err := checkStatus(resp, http.MethodGet, u.Path); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	mimeType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType, _, _ = mime.ParseMediaType(mimetype.Detect(data).String())
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		name = ""
	}
	return &File{Data: data, MimeType: mimeType, Filename: name}, nil
}

// AttachmentFilename returns f.Filename, or "attachment.<ext>" with the
// extension derived from the MIME type (sniffed from the data when absent).
func AttachmentFilename(f *File) string {
	if f.Filename != "" {
		return f.Filename
	}
	var m *mimetype.MIME
	if base, _, err := mime.ParseMediaType(f.MimeType); err == nil {
		m = mimetype.Lookup(base)
	}
	if m == nil && len(f.Data) > 0 {
		m = mimetype.Detect(f.Data)
	}
	ext := ".bin"
	if m != nil && m.Extension() != "" {
		ext = m.Extension()
	}
	return "attachment" + ext
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeAttachment(w *multipart.Writer, f *File) error {
	contentType := f.MimeType
	if contentType == "" {
		contentType = mimetype.Detect(f.Data).String()
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="attachments[]"; filename="%s"`,
		quoteEscaper.Replace(AttachmentFilename(f))))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create attachment part: %w", err)
	}
	if _, err := part.Write(f.Data); err != nil {
		return fmt.Errorf("write attachment: %w", err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, p string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := c.newRequest(ctx, method, p, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, p, out)
}

func (c *Client) newRequest(ctx context.Context, method, p string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+p, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(tokenHeader, c.token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, p string, out any) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("chatwoot %s %s: %w", req.Method, p, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("chatwoot request",
		zap.String("method", req.Method),
		zap.String("path", p),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	if err := checkStatus(resp, req.Method, p); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode chatwoot %s %s: %w", req.Method, p, err)
	}
	return nil
}

func checkStatus(resp *http.Response, method, p string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &APIError{
		Method:     method,
		Path:       p,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}
