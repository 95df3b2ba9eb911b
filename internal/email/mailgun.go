package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/gitshopapp/dropship/internal/observability"
)

// MailgunProvider implements the Provider interface for Mailgun
type MailgunProvider struct {
	apiKey  string
	from    string
	domain  string
	baseURL string
	client  *http.Client
}

// MailgunResponse represents the Mailgun API response
type MailgunResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

func NewMailgunProvider(apiKey, domain, from string) *MailgunProvider {
	return NewMailgunProviderWithBaseURL(apiKey, domain, from, "https://api.mailgun.net/v3")
}

func NewMailgunProviderWithBaseURL(apiKey, domain, from, baseURL string) *MailgunProvider {
	return &MailgunProvider{
		apiKey:  apiKey,
		domain:  domain,
		from:    from,
		baseURL: baseURL,
		client:  observability.NewHTTPClient(30 * time.Second),
	}
}

// SendEmail sends a multipart message so attachments travel as file parts.
func (m *MailgunProvider) SendEmail(ctx context.Context, email *Email) (string, error) {
	if email == nil {
		return "", fmt.Errorf("email is required")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	fields := [][2]string{
		{"from", m.from},
		{"to", email.To},
		{"subject", email.Subject},
		{"text", email.Text},
		{"html", email.HTML},
		{"h:Reply-To", email.ReplyTo},
	}
	for _, field := range fields {
		if field[1] == "" {
			continue
		}
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return "", fmt.Errorf("failed to write %s field: %w", field[0], err)
		}
	}
	for _, attachment := range email.Attachments {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="attachment"; filename=%q`, attachment.Filename))
		header.Set("Content-Type", attachment.ContentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			return "", fmt.Errorf("failed to add attachment %s: %w", attachment.Filename, err)
		}
		if _, err := part.Write(attachment.Content); err != nil {
			return "", fmt.Errorf("failed to write attachment %s: %w", attachment.Filename, err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finish multipart body: %w", err)
	}

	apiURL := fmt.Sprintf("%s/%s/messages", m.baseURL, m.domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.SetBasicAuth("api", m.apiKey)

	respBody, status, err := doRequest(m.client, req)
	if err != nil {
		return "", fmt.Errorf("mailgun: %w", err)
	}

	var result MailgunResponse
	if status != http.StatusOK {
		if json.Unmarshal(respBody, &result) == nil && result.Message != "" {
			return "", fmt.Errorf("mailgun error: %s", result.Message)
		}
		return "", fmt.Errorf("mailgun API returned status %d: %s", status, string(respBody))
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	return result.ID, nil
}

// ValidateAPIKey checks if the API key is valid by making a test request
func (m *MailgunProvider) ValidateAPIKey(ctx context.Context) error {
	apiURL := fmt.Sprintf("%s/domains/%s", m.baseURL, m.domain)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth("api", m.apiKey)

	body, status, err := doRequest(m.client, req)
	if err != nil {
		return fmt.Errorf("failed to validate API key: %w", err)
	}
	if status != http.StatusOK {
		if len(body) > 0 {
			return fmt.Errorf("invalid API key: received status %d: %s", status, string(body))
		}
		return fmt.Errorf("invalid API key: received status %d", status)
	}

	return nil
}
