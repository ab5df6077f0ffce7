// Package mailer sends transactional email through an HTTP mail provider.
// The API key stays server-side; callers hand over structured inquiry data
// and get back a success/failure signal.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/zhinao/geoscan/internal/config"
)

// Sentinel errors for mail dispatch failures.
var (
	ErrMissingField    = errors.New("missing required field")
	ErrMailUnavailable = errors.New("mail provider unavailable")
	ErrMailRejected    = errors.New("mail provider rejected request")
)

// Inquiry is a lead-capture form submission from the marketing site.
type Inquiry struct {
	Name    string
	Company string
	Website string
	Phone   string
	Message string
}

// Validate checks the required inquiry fields.
func (i Inquiry) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return fmt.Errorf("%w: name", ErrMissingField)
	}
	if strings.TrimSpace(i.Company) == "" {
		return fmt.Errorf("%w: company", ErrMissingField)
	}
	if strings.TrimSpace(i.Phone) == "" {
		return fmt.Errorf("%w: phone", ErrMissingField)
	}
	return nil
}

// Sender dispatches inquiry notifications.
type Sender interface {
	SendInquiry(ctx context.Context, inquiry Inquiry) error
}

// HTTPClient implements Sender against a Resend-compatible send-email API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	from    string
	to      string
	client  *http.Client
}

// NewHTTPClient creates a mail client from mail config.
func NewHTTPClient(cfg config.MailConfig) *HTTPClient {
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		from:    cfg.From,
		to:      cfg.To,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

type sendEmailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// SendInquiry formats the inquiry as HTML and posts it to the provider.
// Any non-2xx response is a failure.
func (c *HTTPClient) SendInquiry(ctx context.Context, inquiry Inquiry) error {
	if err := inquiry.Validate(); err != nil {
		return err
	}

	body := sendEmailRequest{
		From:    c.from,
		To:      []string{c.to},
		Subject: fmt.Sprintf("New inquiry from %s (%s)", inquiry.Name, inquiry.Company),
		HTML:    renderInquiryHTML(inquiry),
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/emails", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMailUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrMailRejected, resp.StatusCode)
	}
	return nil
}

// renderInquiryHTML builds the notification body. All values are escaped;
// optional fields are omitted when empty.
func renderInquiryHTML(inquiry Inquiry) string {
	var b strings.Builder
	b.WriteString("<h2>New GEO inquiry</h2><table>")
	row := func(label, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		fmt.Fprintf(&b, "<tr><td><strong>%s</strong></td><td>%s</td></tr>",
			html.EscapeString(label), html.EscapeString(value))
	}
	row("Name", inquiry.Name)
	row("Company", inquiry.Company)
	row("Website", inquiry.Website)
	row("Phone", inquiry.Phone)
	row("Message", inquiry.Message)
	b.WriteString("</table>")
	return b.String()
}

// Compile-time check that HTTPClient implements Sender.
var _ Sender = (*HTTPClient)(nil)
