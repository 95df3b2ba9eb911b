// Package email sends document bundles through Postmark, Mailgun or Resend.
package email

import (
	"context"
	"fmt"
)

type Provider interface {
	// SendEmail delivers the message and returns the provider's message id.
	SendEmail(ctx context.Context, email *Email) (string, error)
	ValidateAPIKey(ctx context.Context) error
}

type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

type Email struct {
	To          string
	ReplyTo     string
	Subject     string
	Text        string
	HTML        string
	Attachments []Attachment
}

type Config struct {
	Provider string
	APIKey   string
	From     string
	Domain   string // For Mailgun
	BaseURL  string
}

func NewProvider(config Config) (Provider, error) {
	if config.APIKey == "" || config.From == "" {
		return nil, fmt.Errorf("email API key and from address are required")
	}
	switch config.Provider {
	case "postmark":
		if config.BaseURL != "" {
			return NewPostmarkProviderWithBaseURL(config.APIKey, config.From, config.BaseURL), nil
		}
		return NewPostmarkProvider(config.APIKey, config.From), nil
	case "mailgun":
		if config.Domain == "" {
			return nil, fmt.Errorf("EMAIL_DOMAIN is required for mailgun")
		}
		if config.BaseURL != "" {
			return NewMailgunProviderWithBaseURL(config.APIKey, config.Domain, config.From, config.BaseURL), nil
		}
		return NewMailgunProvider(config.APIKey, config.Domain, config.From), nil
	case "resend":
		return NewResendProvider(config.APIKey, config.From), nil
	default:
		return nil, fmt.Errorf("EMAIL_PROVIDER must be either 'postmark', 'mailgun', or 'resend'")
	}
}
