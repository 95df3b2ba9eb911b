package githubapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"
)

type Client struct {
	auth           *Auth
	installationID int64
	logger         *slog.Logger
}

type LabelDefinition struct {
	Name        string
	Color       string
	Description string
}

func NewClient(auth *Auth, logger *slog.Logger) *Client {
	return &Client{
		auth:   auth,
		logger: logger,
	}
}

func (c *Client) WithInstallation(installationID int64) *Client {
	return &Client{
		auth:           c.auth,
		installationID: installationID,
		logger:         c.logger,
	}
}

func (c *Client) getGitHubClient(ctx context.Context) (*github.Client, error) {
	if c.auth == nil {
		return nil, fmt.Errorf("github app auth is not configured")
	}
	token, err := c.auth.GetInstallationToken(ctx, c.installationID)
	if err != nil {
		return nil, err
	}

	ts := oauth2.StaticTokenSource(token)
	tc := oauth2.NewClient(ctx, ts)
	tc.Timeout = 15 * time.Second

	client := github.NewClient(tc)
	if base := c.auth.APIBaseURL(); base != "" && base != defaultAPIBaseURL {
		baseURL, err := url.Parse(base + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API base URL: %w", err)
		}
		client.BaseURL = baseURL
	}
	return client, nil
}

func splitRepo(repoFullName string) (string, string, error) {
	owner, repo, ok := strings.Cut(repoFullName, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("invalid repo full name: %s", repoFullName)
	}
	return owner, repo, nil
}

func statusCode(err error) int {
	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		return errResp.Response.StatusCode
	}
	return 0
}

func (c *Client) CreateComment(ctx context.Context, repoFullName string, issueNumber int, body string) error {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return err
	}
	client, err := c.getGitHubClient(ctx)
	if err != nil {
		return err
	}

	comment := &github.IssueComment{
		Body: &body,
	}

	_, _, err = client.Issues.CreateComment(ctx, owner, repo, issueNumber, comment)
	if err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}

	return nil
}

func (c *Client) AddLabels(ctx context.Context, repoFullName string, issueNumber int, labels []string) error {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return err
	}
	client, err := c.getGitHubClient(ctx)
	if err != nil {
		return err
	}

	_, _, err = client.Issues.AddLabelsToIssue(ctx, owner, repo, issueNumber, labels)
	if err != nil {
		return fmt.Errorf("failed to add labels: %w", err)
	}

	return nil
}

// RemoveLabel removes label from the issue. A label that is not present is
// not an error.
func (c *Client) RemoveLabel(ctx context.Context, repoFullName string, issueNumber int, label string) error {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return err
	}
	client, err := c.getGitHubClient(ctx)
	if err != nil {
		return err
	}

	_, err = client.Issues.RemoveLabelForIssue(ctx, owner, repo, issueNumber, label)
	if err != nil {
		if statusCode(err) == http.StatusNotFound {
			return nil
		}
		return fmt.Errorf("failed to remove label: %w", err)
	}

	return nil
}

// EnsureLabels creates the labels that do not exist yet.
func (c *Client) EnsureLabels(ctx context.Context, repoFullName string, labels []LabelDefinition) error {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return err
	}
	client, err := c.getGitHubClient(ctx)
	if err != nil {
		return err
	}

	for _, label := range labels {
		params := &github.Label{
			Name:        github.String(label.Name),
			Color:       github.String(label.Color),
			Description: github.String(label.Description),
		}

		_, _, err := client.Issues.CreateLabel(ctx, owner, repo, params)
		if err != nil {
			if statusCode(err) == http.StatusUnprocessableEntity {
				continue
			}
			return fmt.Errorf("failed to create label %s: %w", label.Name, err)
		}
	}

	return nil
}
