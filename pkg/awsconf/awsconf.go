package awsconf

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

const (
	defaultRegion = "us-east-1"
	httpTimeout   = 30 * time.Second
)

// Settings describes how to build the shared AWS configuration.
type Settings struct {
	// Region defaults to AWS_REGION, then us-east-1.
	Region string
	// Endpoint overrides every service endpoint (LocalStack and similar).
	Endpoint string
	// AccessKey and SecretKey pin static credentials. Both or neither.
	AccessKey string
	SecretKey string
}

// Load builds an aws.Config from the default credential chain, or from static
// credentials when both keys are supplied.
func Load(ctx context.Context, s Settings) (aws.Config, error) {
	region := strings.TrimSpace(s.Region)
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = defaultRegion
	}

	if (s.AccessKey == "") != (s.SecretKey == "") {
		return aws.Config{}, errors.New("access key and secret key must be provided together")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		// A buildable client keeps AWS_CA_BUNDLE usable.
		awsconfig.WithHTTPClient(awshttp.NewBuildableClient().WithTimeout(httpTimeout)),
	}
	if s.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.AccessKey, s.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}

	if endpoint := strings.TrimSpace(s.Endpoint); endpoint != "" {
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = "https://" + endpoint
		}
		cfg.BaseEndpoint = aws.String(endpoint)
	}

	return cfg, nil
}
