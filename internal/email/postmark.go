package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"net/http"
	texttemplate "text/template"

	"github.com/dukerupert/reunion/internal/model"
)

const postmarkEndpoint = "https://api.postmarkapp.com/email"

var ErrNotConfigured = errors.New("email: postmark token or addresses missing")

var (
	noticeText = texttemplate.Must(texttemplate.New("text").Parse(
		`{{.Name}} registered for the reunion.

Email: {{.Email}}
Phone: {{.Phone}}
Relationship: {{.RelationshipType}}
Connected through: {{.ConnectedThrough}}
Generation: {{.Generation}}
Branch: {{.FamilyBranch}}
Attendees: {{.Attendees}}
`))

	noticeHTML = htmltemplate.Must(htmltemplate.New("html").Parse(
		`<p><strong>{{.Name}}</strong> registered for the reunion.</p>
<ul>
<li>Email: {{.Email}}</li>
<li>Phone: {{.Phone}}</li>
<li>Relationship: {{.RelationshipType}}</li>
<li>Connected through: {{.ConnectedThrough}}</li>
<li>Generation: {{.Generation}}</li>
<li>Branch: {{.FamilyBranch}}</li>
<li>Attendees: {{.Attendees}}</li>
</ul>`))
)

// APIError is a rejection reported by Postmark.
type APIError struct {
	Status  int    `json:"-"`
	Code    int    `json:"ErrorCode"`
	Message string `json:"Message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("postmark: status %d", e.Status)
	}
	return fmt.Sprintf("postmark: status %d: %s (code %d)", e.Status, e.Message, e.Code)
}

// Client mails registration notices to the reunion organizer.
type Client struct {
	token    string
	from     string
	to       string
	endpoint string
	http     *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithEndpoint points the client at another Postmark compatible API.
func WithEndpoint(url string) Option {
	return func(c *Client) { c.endpoint = url }
}

func NewClient(token, from, to string, opts ...Option) *Client {
	c := &Client{token: token, from: from, to: to, endpoint: postmarkEndpoint, http: http.DefaultClient}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Configured() bool {
	return c.token != "" && c.from != "" && c.to != ""
}

type message struct {
	From     string `json:"From"`
	To       string `json:"To"`
	ReplyTo  string `json:"ReplyTo,omitempty"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
	Tag      string `json:"Tag,omitempty"`
}

// NotifyRegistration tells the organizer that m just registered. Replies go
// to the registrant.
func (c *Client) NotifyRegistration(ctx context.Context, m model.FamilyMember) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	var text, html bytes.Buffer
	if err := noticeText.Execute(&text, m); err != nil {
		return fmt.Errorf("render text notice: %w", err)
	}
	if err := noticeHTML.Execute(&html, m); err != nil {
		return fmt.Errorf("render html notice: %w", err)
	}

	return c.send(ctx, message{
		From:     c.from,
		To:       c.to,
		ReplyTo:  m.Email,
		Subject:  "New reunion registration: " + m.Name,
		HtmlBody: html.String(),
		TextBody: text.String(),
		Tag:      "registration",
	})
}

func (c *Client) send(ctx context.Context, msg message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("postmark: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 {
		return nil
	}
	apiErr := &APIError{Status: resp.StatusCode}
	_ = json.NewDecoder(resp.Body).Decode(apiErr)
	return apiErr
}
