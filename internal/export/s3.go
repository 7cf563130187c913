// Package export publishes final standings to S3-compatible object storage, where the certificate
// service picks them up.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

var ErrExportDisabled = errors.New("standings export is not configured")

// ObjectPutter is the part of the S3 client the publisher needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Config struct {
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	PublicURL       string
}

type Result struct {
	Key      string    `json:"key"`
	Location string    `json:"location,omitempty"`
	ETag     string    `json:"etag,omitempty"`
	At       time.Time `json:"publishedAt"`
}

type Publisher struct {
	client    ObjectPutter
	bucket    string
	prefix    string
	publicURL string
}

// NewS3Publisher builds a client from the default AWS chain. Static credentials and a custom
// endpoint (R2, MinIO) override it when set.
func NewS3Publisher(ctx context.Context, cfg S3Config) (*Publisher, error) {
	if cfg.Bucket == "" {
		return nil, ErrExportDisabled
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	sdkCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK config: %w", err)
	}

	client := s3.NewFromConfig(sdkCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewPublisher(client, cfg), nil
}

func NewPublisher(client ObjectPutter, cfg S3Config) *Publisher {
	return &Publisher{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, publicURL: cfg.PublicURL}
}

func (p *Publisher) Key(tournamentID uuid.UUID) string {
	return path.Join(p.prefix, tournamentID.String(), "standings.json")
}

// PublishStandings uploads doc as JSON, replacing any earlier export for the tournament.
func (p *Publisher) PublishStandings(ctx context.Context, tournamentID uuid.UUID, doc any) (*Result, error) {
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode standings: %w", err)
	}

	key := p.Key(tournamentID)
	out, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload standings (key: %s): %w", key, err)
	}

	res := &Result{Key: key, Location: p.publicLocation(key), At: time.Now().UTC()}
	if out.ETag != nil {
		// S3-compatible APIs quote the ETag
		res.ETag = strings.Trim(*out.ETag, "\"")
	}
	return res, nil
}

func (p *Publisher) publicLocation(key string) string {
	if p.publicURL == "" {
		return ""
	}
	loc, err := url.JoinPath(p.publicURL, key)
	if err != nil {
		return ""
	}
	return loc
}
