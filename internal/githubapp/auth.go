// Package githubapp authenticates as a GitHub App installation and wraps
// the issue operations the storefront sync needs.
package githubapp

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/gitshopapp/dropship/internal/observability"
)

const defaultAPIBaseURL = "https://api.github.com"

type tokenCacheEntry struct {
	token     *oauth2.Token
	expiresAt time.Time
}

type Auth struct {
	appID      int64
	privateKey *rsa.PrivateKey
	apiBaseURL string
	httpClient *http.Client
	now        func() time.Time
	tokenCache map[int64]*tokenCacheEntry
	cacheMu    sync.RWMutex
}

type AuthOption func(*Auth)

// WithAPIBaseURL points token exchange at a GitHub Enterprise host or a test server.
func WithAPIBaseURL(baseURL string) AuthOption {
	return func(a *Auth) {
		a.apiBaseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithHTTPClient(client *http.Client) AuthOption {
	return func(a *Auth) {
		a.httpClient = client
	}
}

// NewAuth accepts the app id and a base64-encoded PEM private key.
func NewAuth(appIDStr, privateKeyBase64 string, opts ...AuthOption) (*Auth, error) {
	appID, err := strconv.ParseInt(strings.TrimSpace(appIDStr), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid GitHub App ID: %w", err)
	}

	keyData, err := base64.StdEncoding.DecodeString(strings.TrimSpace(privateKeyBase64))
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 private key: %w", err)
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(keyData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	auth := &Auth{
		appID:      appID,
		privateKey: privateKey,
		apiBaseURL: defaultAPIBaseURL,
		httpClient: observability.NewHTTPClient(10 * time.Second),
		now:        time.Now,
		tokenCache: make(map[int64]*tokenCacheEntry),
	}
	for _, opt := range opts {
		opt(auth)
	}
	return auth, nil
}

func (a *Auth) CreateJWT() (string, error) {
	now := a.now()
	claims := jwt.MapClaims{
		"iat": now.Add(-time.Minute).Unix(),
		"exp": now.Add(10 * time.Minute).Unix(),
		"iss": a.appID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(a.privateKey)
}

// GetInstallationToken returns a cached installation token while it has
// more than five minutes left, and exchanges a fresh app JWT otherwise.
func (a *Auth) GetInstallationToken(ctx context.Context, installationID int64) (*oauth2.Token, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}

	a.cacheMu.RLock()
	if entry, exists := a.tokenCache[installationID]; exists {
		if a.now().Before(entry.expiresAt.Add(-5 * time.Minute)) {
			a.cacheMu.RUnlock()
			return entry.token, nil
		}
	}
	a.cacheMu.RUnlock()

	appJWT, err := a.CreateJWT()
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT: %w", err)
	}

	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", a.apiBaseURL, installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+appJWT)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	client := a.httpClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get installation token: %w", err)
	}
	body, readErr := io.ReadAll(resp.Body)
	closeErr := resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("GitHub API returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("GitHub API returned status %d (failed to close response body: %w)", resp.StatusCode, closeErr)
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("GitHub API returned status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	token := &oauth2.Token{
		AccessToken: result.Token,
		TokenType:   "token",
		Expiry:      result.ExpiresAt,
	}

	a.cacheMu.Lock()
	a.tokenCache[installationID] = &tokenCacheEntry{
		token:     token,
		expiresAt: result.ExpiresAt,
	}
	a.cacheMu.Unlock()

	return token, nil
}

// APIBaseURL returns the REST root the installation token was issued by.
func (a *Auth) APIBaseURL() string {
	return a.apiBaseURL
}
