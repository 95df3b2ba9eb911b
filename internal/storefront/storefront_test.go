package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/gitshopapp/dropship/internal/githubapp"
)

type issueCall struct {
	op     string
	repo   string
	issue  int
	values []string
}

type fakeIssueClient struct {
	calls      []issueCall
	commentErr error
	addErr     error
	ensureErr  error
}

func (f *fakeIssueClient) CreateComment(_ context.Context, repo string, issue int, body string) error {
	f.calls = append(f.calls, issueCall{op: "comment", repo: repo, issue: issue, values: []string{body}})
	return f.commentErr
}

func (f *fakeIssueClient) AddLabels(_ context.Context, repo string, issue int, labels []string) error {
	f.calls = append(f.calls, issueCall{op: "add", repo: repo, issue: issue, values: labels})
	return f.addErr
}

func (f *fakeIssueClient) RemoveLabel(_ context.Context, repo string, issue int, label string) error {
	f.calls = append(f.calls, issueCall{op: "remove", repo: repo, issue: issue, values: []string{label}})
	return nil
}

func (f *fakeIssueClient) EnsureLabels(_ context.Context, repo string, labels []githubapp.LabelDefinition) error {
	names := make([]string, 0, len(labels))
	for _, label := range labels {
		names = append(names, label.Name)
	}
	f.calls = append(f.calls, issueCall{op: "ensure", repo: repo, values: names})
	return f.ensureErr
}

func (f *fakeIssueClient) count(op string) int {
	n := 0
	for _, call := range f.calls {
		if call.op == op {
			n++
		}
	}
	return n
}

func TestParseIssueRef(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in        string
		wantRepo  string
		wantIssue int
		wantErr   bool
	}{
		{in: "acme/orders#12", wantRepo: "acme/orders", wantIssue: 12},
		{in: " acme/orders#3 ", wantRepo: "acme/orders", wantIssue: 3},
		{in: "acme/orders", wantErr: true},
		{in: "acme#12", wantErr: true},
		{in: "acme/orders#0", wantErr: true},
		{in: "acme/orders#x", wantErr: true},
		{in: "/orders#1", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			repo, issue, err := ParseIssueRef(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidExternalID) {
					t.Fatalf("error = %v, want ErrInvalidExternalID", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseIssueRef() error = %v", err)
			}
			if repo != tt.wantRepo || issue != tt.wantIssue {
				t.Fatalf("ParseIssueRef() = %s %d, want %s %d", repo, issue, tt.wantRepo, tt.wantIssue)
			}
		})
	}
}

func TestGitHubIssuesRecordShipment(t *testing.T) {
	t.Parallel()

	client := &fakeIssueClient{}
	sync := NewGitHubIssues(client, nil)

	err := sync.RecordShipment(context.Background(), "acme/orders#9", Shipment{
		TrackingNumber: "1Z999",
		Carrier:        "UPS",
		MethodLabel:    "Ground",
		TrackingURL:    "https://www.ups.com/track?tracknum=1Z999",
		Items:          []ShippedItem{{ExternalLineItemID: "li-1", SKU: "ABC-1", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("RecordShipment() error = %v", err)
	}
	if len(client.calls) != 1 || client.calls[0].op != "comment" || client.calls[0].issue != 9 {
		t.Fatalf("calls = %#v", client.calls)
	}
	body := client.calls[0].values[0]
	for _, want := range []string{"with UPS (Ground)", "[1Z999](https://www.ups.com/track?tracknum=1Z999)", "| ABC-1 | 2 |"} {
		if !strings.Contains(body, want) {
			t.Fatalf("comment missing %q:\n%s", want, body)
		}
	}
}

func TestGitHubIssuesSetOrderStatus(t *testing.T) {
	t.Parallel()

	client := &fakeIssueClient{}
	sync := NewGitHubIssues(client, nil)

	if err := sync.SetOrderStatus(context.Background(), "acme/orders#9", "Shipped"); err != nil {
		t.Fatalf("SetOrderStatus() error = %v", err)
	}

	last := client.calls[len(client.calls)-1]
	if last.op != "add" || len(last.values) != 1 || last.values[0] != "dropship:status:shipped" {
		t.Fatalf("last call = %#v", last)
	}
	if client.calls[0].op != "ensure" || client.calls[0].repo != "acme/orders" {
		t.Fatalf("expected status labels to be created first, got %#v", client.calls[0])
	}
	for _, call := range client.calls[1 : len(client.calls)-1] {
		if call.op != "remove" {
			t.Fatalf("unexpected call before add: %#v", call)
		}
		if call.values[0] == "dropship:status:shipped" {
			t.Fatal("should not remove the label being set")
		}
	}
}

func TestGitHubIssuesEnsuresLabelsOncePerRepo(t *testing.T) {
	t.Parallel()

	client := &fakeIssueClient{}
	sync := NewGitHubIssues(client, nil)
	ctx := context.Background()

	for _, ref := range []string{"acme/orders#1", "acme/orders#2", "acme/wholesale#1"} {
		if err := sync.SetOrderStatus(ctx, ref, "shipped"); err != nil {
			t.Fatalf("SetOrderStatus(%s) error = %v", ref, err)
		}
	}
	if got := client.count("ensure"); got != 2 {
		t.Fatalf("ensure calls = %d, want 2", got)
	}
}

func TestGitHubIssuesRetriesLabelCreation(t *testing.T) {
	t.Parallel()

	client := &fakeIssueClient{ensureErr: errors.New("forbidden")}
	sync := NewGitHubIssues(client, nil)
	ctx := context.Background()

	if err := sync.SetOrderStatus(ctx, "acme/orders#1", "shipped"); err != nil {
		t.Fatalf("label creation failure should not fail the status change: %v", err)
	}
	client.ensureErr = nil
	if err := sync.SetOrderStatus(ctx, "acme/orders#2", "shipped"); err != nil {
		t.Fatalf("SetOrderStatus() error = %v", err)
	}
	if got := client.count("ensure"); got != 2 {
		t.Fatalf("ensure calls = %d, want 2", got)
	}
}

type fakeSync struct {
	err error
}

func (f *fakeSync) RecordShipment(context.Context, string, Shipment) error { return f.err }
func (f *fakeSync) SetOrderStatus(context.Context, string, string) error   { return f.err }

type fakePublisher struct {
	bodies [][]byte
	attrs  []map[string]string
}

func (f *fakePublisher) PublishJSON(_ context.Context, v any, attributes map[string]string) (string, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	f.bodies = append(f.bodies, body)
	f.attrs = append(f.attrs, attributes)
	return "m-1", nil
}

func TestRetryingQueuesFailedCalls(t *testing.T) {
	t.Parallel()

	callErr := errors.New("github unavailable")
	publisher := &fakePublisher{}
	sync := NewRetrying(&fakeSync{err: callErr}, publisher, nil)

	err := sync.SetOrderStatus(context.Background(), "acme/orders#9", "shipped")
	if !errors.Is(err, callErr) {
		t.Fatalf("SetOrderStatus() error = %v, want original error", err)
	}
	if len(publisher.bodies) != 1 {
		t.Fatalf("published %d messages, want 1", len(publisher.bodies))
	}

	var msg RetryMessage
	if err := json.Unmarshal(publisher.bodies[0], &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	if msg.Operation != OperationSetOrderStatus || msg.StatusCode != "shipped" || msg.Error != "github unavailable" {
		t.Fatalf("message = %#v", msg)
	}
	if publisher.attrs[0]["external_order_id"] != "acme/orders#9" {
		t.Fatalf("attributes = %v", publisher.attrs[0])
	}
}

func TestRetryingPassesThroughSuccess(t *testing.T) {
	t.Parallel()

	publisher := &fakePublisher{}
	sync := NewRetrying(&fakeSync{}, publisher, nil)

	if err := sync.RecordShipment(context.Background(), "acme/orders#9", Shipment{TrackingNumber: "1"}); err != nil {
		t.Fatalf("RecordShipment() error = %v", err)
	}
	if len(publisher.bodies) != 0 {
		t.Fatalf("published %d messages, want 0", len(publisher.bodies))
	}
}
