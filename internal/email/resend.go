package email

import (
	"context"
	"fmt"

	resend "github.com/resend/resend-go/v3"
)

// ResendProvider implements the Provider interface for Resend.
type ResendProvider struct {
	from   string
	client *resend.Client
}

func NewResendProvider(apiKey, from string) *ResendProvider {
	return &ResendProvider{
		from:   from,
		client: resend.NewClient(apiKey),
	}
}

func (r *ResendProvider) SendEmail(ctx context.Context, email *Email) (string, error) {
	if email == nil {
		return "", fmt.Errorf("email is required")
	}
	if r.client == nil {
		return "", fmt.Errorf("resend client not configured")
	}

	params := &resend.SendEmailRequest{
		From:    r.from,
		To:      []string{email.To},
		Subject: email.Subject,
		Html:    email.HTML,
		Text:    email.Text,
	}
	if params.Html == "" && params.Text == "" {
		return "", fmt.Errorf("email body is empty")
	}
	for _, attachment := range email.Attachments {
		params.Attachments = append(params.Attachments, &resend.Attachment{
			Filename:    attachment.Filename,
			Content:     attachment.Content,
			ContentType: attachment.ContentType,
		})
	}

	sent, err := r.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to send email via resend: %w", err)
	}
	return sent.Id, nil
}

// ValidateAPIKey checks if the API key is valid.
func (r *ResendProvider) ValidateAPIKey(ctx context.Context) error {
	if r.client == nil {
		return fmt.Errorf("resend client not configured")
	}
	if _, err := r.client.ApiKeys.ListWithContext(ctx); err != nil {
		return fmt.Errorf("invalid API key: %w", err)
	}
	return nil
}
