package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gitshopapp/dropship/internal/observability"
)

// PostmarkProvider implements the Provider interface for Postmark
type PostmarkProvider struct {
	apiKey  string
	from    string
	baseURL string
	client  *http.Client
}

// PostmarkResponse represents the Postmark API response
type PostmarkResponse struct {
	ErrorCode   int    `json:"ErrorCode"`
	Message     string `json:"Message"`
	MessageID   string `json:"MessageID"`
	SubmittedAt string `json:"SubmittedAt"`
}

func NewPostmarkProvider(apiKey, from string) *PostmarkProvider {
	return NewPostmarkProviderWithBaseURL(apiKey, from, "https://api.postmarkapp.com")
}

func NewPostmarkProviderWithBaseURL(apiKey, from, baseURL string) *PostmarkProvider {
	return &PostmarkProvider{
		apiKey:  apiKey,
		from:    from,
		baseURL: baseURL,
		client:  observability.NewHTTPClient(30 * time.Second),
	}
}

type postmarkAttachment struct {
	Name        string `json:"Name"`
	Content     string `json:"Content"`
	ContentType string `json:"ContentType"`
}

type postmarkEmail struct {
	From        string               `json:"From"`
	To          string               `json:"To"`
	Subject     string               `json:"Subject"`
	TextBody    string               `json:"TextBody,omitempty"`
	HtmlBody    string               `json:"HtmlBody,omitempty"`
	ReplyTo     string               `json:"ReplyTo,omitempty"`
	Tag         string               `json:"Tag,omitempty"`
	Attachments []postmarkAttachment `json:"Attachments,omitempty"`
}

// SendEmail sends an email via the Postmark API
func (p *PostmarkProvider) SendEmail(ctx context.Context, email *Email) (string, error) {
	if email == nil {
		return "", fmt.Errorf("email is required")
	}
	payload := postmarkEmail{
		From:     p.from,
		To:       email.To,
		Subject:  email.Subject,
		TextBody: email.Text,
		HtmlBody: email.HTML,
		ReplyTo:  email.ReplyTo,
		Tag:      "document-bundle",
	}
	for _, attachment := range email.Attachments {
		payload.Attachments = append(payload.Attachments, postmarkAttachment{
			Name:        attachment.Filename,
			Content:     base64.StdEncoding.EncodeToString(attachment.Content),
			ContentType: attachment.ContentType,
		})
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/email", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Postmark-Server-Token", p.apiKey)

	body, status, err := doRequest(p.client, req)
	if err != nil {
		return "", fmt.Errorf("postmark: %w", err)
	}

	var result PostmarkResponse
	if status != http.StatusOK {
		if json.Unmarshal(body, &result) == nil && result.ErrorCode != 0 {
			return "", fmt.Errorf("postmark error (%d): %s", result.ErrorCode, result.Message)
		}
		return "", fmt.Errorf("postmark API returned status %d: %s", status, string(body))
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if result.ErrorCode != 0 {
		return "", fmt.Errorf("postmark error (%d): %s", result.ErrorCode, result.Message)
	}

	return result.MessageID, nil
}

// ValidateAPIKey checks if the API key is valid
func (p *PostmarkProvider) ValidateAPIKey(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/server", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", p.apiKey)

	body, status, err := doRequest(p.client, req)
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

// doRequest executes req and returns the fully read body.
func doRequest(client *http.Client, req *http.Request) ([]byte, int, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	body, readErr := io.ReadAll(resp.Body)
	closeErr := resp.Body.Close()
	if readErr != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", readErr)
	}
	if closeErr != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to close response body: %w", closeErr)
	}
	return body, resp.StatusCode, nil
}
