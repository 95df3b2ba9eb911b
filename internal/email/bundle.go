package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/getsentry/sentry-go"

	"github.com/gitshopapp/dropship/internal/logging"
)

var ErrNoAttachments = errors.New("bundle has no attachments")

// Bundle is one outbound email carrying generated documents.
type Bundle struct {
	To          string
	Subject     string
	Template    string
	Info        BundleInfo
	Attachments []Attachment
}

// Receipt reports what the provider accepted. Attached lists the
// filenames that went out with the message, in order.
type Receipt struct {
	MessageID string
	Attached  []string
}

// Has reports whether filename was attached.
func (r *Receipt) Has(filename string) bool {
	if r == nil {
		return false
	}
	for _, name := range r.Attached {
		if name == filename {
			return true
		}
	}
	return false
}

type BundleSender struct {
	provider Provider
	renderer *Renderer
	logger   *slog.Logger
}

func NewBundleSender(provider Provider, logger *slog.Logger) (*BundleSender, error) {
	if provider == nil {
		return nil, fmt.Errorf("email provider is required")
	}
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}
	return &BundleSender{provider: provider, renderer: renderer, logger: logger}, nil
}

// SendDocumentBundle renders the bundle body and sends it with every
// non-empty attachment. Empty attachments are skipped and left out of the
// receipt so callers can detect an incomplete bundle.
func (s *BundleSender) SendDocumentBundle(ctx context.Context, bundle Bundle) (*Receipt, error) {
	span := sentry.StartSpan(ctx, "email.send_bundle",
		sentry.WithOpName("email.send_bundle"),
		sentry.WithDescription(bundle.Template),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := logging.FromContext(ctx, s.logger)
	to := strings.TrimSpace(bundle.To)
	if to == "" {
		span.Status = sentry.SpanStatusInvalidArgument
		return nil, fmt.Errorf("bundle recipient is required")
	}

	attachments := make([]Attachment, 0, len(bundle.Attachments))
	attached := make([]string, 0, len(bundle.Attachments))
	for _, attachment := range bundle.Attachments {
		if len(attachment.Content) == 0 {
			logger.Warn("skipping empty attachment", "filename", attachment.Filename, "template", bundle.Template)
			continue
		}
		if attachment.ContentType == "" {
			attachment.ContentType = "application/pdf"
		}
		attachments = append(attachments, attachment)
		attached = append(attached, attachment.Filename)
	}
	if len(attachments) == 0 {
		span.Status = sentry.SpanStatusInvalidArgument
		return nil, ErrNoAttachments
	}

	info := bundle.Info
	info.Documents = attached
	text, html, err := s.renderer.Render(ctx, bundle.Template, &info)
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		return nil, err
	}

	messageID, err := s.provider.SendEmail(ctx, &Email{
		To:          to,
		Subject:     bundle.Subject,
		Text:        text,
		HTML:        html,
		Attachments: attachments,
	})
	if err != nil {
		span.Status = sentry.SpanStatusUnavailable
		return nil, fmt.Errorf("failed to send document bundle: %w", err)
	}

	span.Status = sentry.SpanStatusOK
	logger.Info("document bundle sent", "template", bundle.Template, "attachments", len(attached), "message_id", messageID)
	return &Receipt{MessageID: messageID, Attached: attached}, nil
}
