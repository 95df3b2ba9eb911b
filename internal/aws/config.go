// Package aws builds the AWS service clients used for the storefront retry
// queue and the DynamoDB idempotency table.
package aws

import (
	"context"
	"fmt"
	"strings"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

const defaultRegion = "us-east-1"

// LoadConfig resolves credentials through the default chain. An empty
// region falls back to us-east-1.
func LoadConfig(ctx context.Context, region string) (sdkaws.Config, error) {
	region = strings.TrimSpace(region)
	if region == "" {
		region = defaultRegion
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
	)
	if err != nil {
		return cfg, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return cfg, nil
}
