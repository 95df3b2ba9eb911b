package storefront

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/gitshopapp/dropship/internal/githubapp"
	"github.com/gitshopapp/dropship/internal/logging"
)

const statusLabelPrefix = "dropship:status:"

var ErrInvalidExternalID = errors.New("invalid external order id")

// IssueClient is the subset of githubapp.Client the issue storefront uses.
type IssueClient interface {
	CreateComment(ctx context.Context, repoFullName string, issueNumber int, body string) error
	AddLabels(ctx context.Context, repoFullName string, issueNumber int, labels []string) error
	RemoveLabel(ctx context.Context, repoFullName string, issueNumber int, label string) error
	EnsureLabels(ctx context.Context, repoFullName string, labels []githubapp.LabelDefinition) error
}

// GitHubIssues treats each order as a GitHub issue. External order ids
// have the form "owner/repo#123".
type GitHubIssues struct {
	client       IssueClient
	statusLabels []string
	logger       *slog.Logger

	// repositories whose status labels already exist
	labeled sync.Map
}

func NewGitHubIssues(client IssueClient, logger *slog.Logger) *GitHubIssues {
	return &GitHubIssues{
		client:       client,
		statusLabels: []string{"new", "paid", "processing", "shipped", "completed"},
		logger:       logger,
	}
}

// ParseIssueRef splits "owner/repo#123" into the repository and issue number.
func ParseIssueRef(externalOrderID string) (string, int, error) {
	repo, number, ok := strings.Cut(strings.TrimSpace(externalOrderID), "#")
	if !ok || strings.Count(repo, "/") != 1 || strings.HasPrefix(repo, "/") || strings.HasSuffix(repo, "/") {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidExternalID, externalOrderID)
	}
	issue, err := strconv.Atoi(number)
	if err != nil || issue <= 0 {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidExternalID, externalOrderID)
	}
	return repo, issue, nil
}

func (g *GitHubIssues) RecordShipment(ctx context.Context, externalOrderID string, shipment Shipment) error {
	repo, issue, err := ParseIssueRef(externalOrderID)
	if err != nil {
		return err
	}
	if err := g.client.CreateComment(ctx, repo, issue, shipmentComment(shipment)); err != nil {
		return fmt.Errorf("record shipment on %s: %w", externalOrderID, err)
	}
	logging.FromContext(ctx, g.logger).Info("recorded shipment on storefront issue",
		"external_order_id", externalOrderID,
		"tracking_number", shipment.TrackingNumber,
	)
	return nil
}

// SetOrderStatus swaps the issue's status label for statusCode.
func (g *GitHubIssues) SetOrderStatus(ctx context.Context, externalOrderID, statusCode string) error {
	repo, issue, err := ParseIssueRef(externalOrderID)
	if err != nil {
		return err
	}
	statusCode = strings.ToLower(strings.TrimSpace(statusCode))
	if statusCode == "" {
		return fmt.Errorf("status code is required")
	}

	logger := logging.FromContext(ctx, g.logger)
	if _, ok := g.labeled.Load(repo); !ok {
		if err := g.client.EnsureLabels(ctx, repo, g.labelDefinitions()); err != nil {
			logger.Warn("failed to create status labels", "error", err, "repo", repo)
		} else {
			g.labeled.Store(repo, struct{}{})
		}
	}
	for _, status := range g.statusLabels {
		if status == statusCode {
			continue
		}
		if err := g.client.RemoveLabel(ctx, repo, issue, statusLabelPrefix+status); err != nil {
			logger.Warn("failed to remove status label", "error", err, "label", statusLabelPrefix+status, "external_order_id", externalOrderID)
		}
	}
	if err := g.client.AddLabels(ctx, repo, issue, []string{statusLabelPrefix + statusCode}); err != nil {
		return fmt.Errorf("set status on %s: %w", externalOrderID, err)
	}
	return nil
}

func (g *GitHubIssues) labelDefinitions() []githubapp.LabelDefinition {
	labels := make([]githubapp.LabelDefinition, 0, len(g.statusLabels))
	for _, status := range g.statusLabels {
		labels = append(labels, githubapp.LabelDefinition{
			Name:        statusLabelPrefix + status,
			Color:       "0e8a16",
			Description: "Order status " + status,
		})
	}
	return labels
}

func shipmentComment(shipment Shipment) string {
	var b strings.Builder
	b.WriteString("🚚 Shipment booked")
	if shipment.Carrier != "" {
		fmt.Fprintf(&b, " with %s", shipment.Carrier)
	}
	if shipment.MethodLabel != "" {
		fmt.Fprintf(&b, " (%s)", shipment.MethodLabel)
	}
	b.WriteString(".\n\n")
	if shipment.TrackingURL != "" {
		fmt.Fprintf(&b, "Tracking: [%s](%s)\n", shipment.TrackingNumber, shipment.TrackingURL)
	} else {
		fmt.Fprintf(&b, "Tracking: %s\n", shipment.TrackingNumber)
	}
	if len(shipment.Items) > 0 {
		b.WriteString("\n| Item | Qty |\n|---|---|\n")
		for _, item := range shipment.Items {
			name := item.SKU
			if name == "" {
				name = item.ExternalLineItemID
			}
			fmt.Fprintf(&b, "| %s | %d |\n", name, item.Quantity)
		}
	}
	return b.String()
}
