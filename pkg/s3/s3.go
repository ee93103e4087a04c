package s3

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// PutObjectAPI is the slice of the S3 API the client needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Client is a thin wrapper around the AWS SDK v2 S3 client.
type Client struct {
	api PutObjectAPI
}

// NewClient builds a Client from a shared AWS configuration. Path-style
// addressing is used when the config carries an endpoint override.
func NewClient(cfg aws.Config) *Client {
	api := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.BaseEndpoint != nil
	})
	return &Client{api: api}
}

// NewClientWithAPI wraps an existing S3 API implementation.
func NewClientWithAPI(api PutObjectAPI) *Client {
	return &Client{api: api}
}

// PutObject uploads data to the given bucket/key with checksum metadata.
func (c *Client) PutObject(ctx context.Context, bucket, key, contentType string, r io.Reader, size int64, sha256 string) error {
	if c == nil || c.api == nil {
		return errors.New("nil client")
	}
	checksum, err := encodeSHA256(sha256)
	if err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket:            &bucket,
		Key:               &key,
		Body:              r,
		ContentLength:     &size,
		ChecksumAlgorithm: s3types.ChecksumAlgorithmSha256,
		ChecksumSHA256:    &checksum,
		Metadata: map[string]string{
			"sha256": sha256,
		},
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	_, err = c.api.PutObject(ctx, input)
	return err
}

func encodeSHA256(hexDigest string) (string, error) {
	if hexDigest == "" {
		return "", errors.New("sha256 digest required")
	}
	raw, err := hex.DecodeString(hexDigest)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
