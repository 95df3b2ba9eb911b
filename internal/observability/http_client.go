package observability

import (
	"net/http"
	"strings"
	"time"

	sentryhttpclient "github.com/getsentry/sentry-go/httpclient"
)

// NewHTTPClient returns a client that records a span per outbound request.
// Trace headers go to GitHub and to the given hosts only, so mail providers
// never see them. A zero timeout leaves the client without its own deadline.
func NewHTTPClient(timeout time.Duration, propagateTo ...string) *http.Client {
	targets := []string{"api.github.com"}
	for _, host := range propagateTo {
		if host = strings.TrimSpace(host); host != "" {
			targets = append(targets, host)
		}
	}

	client := &http.Client{
		Transport: sentryhttpclient.NewSentryRoundTripper(
			http.DefaultTransport,
			sentryhttpclient.WithTracePropagationTargets(targets),
		),
	}
	if timeout > 0 {
		client.Timeout = timeout
	}
	return client
}
