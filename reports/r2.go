// reports/r2.go
package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"challenge-settlement-system/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gosimple/slug"
)

// PutObjectAPI is the part of the S3 client the archiver needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// R2Options holds the Cloudflare R2 credentials and target bucket.
type R2Options struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	Prefix          string
}

// Archiver uploads settlement run summaries as JSON objects.
type Archiver struct {
	client PutObjectAPI
	bucket string
	prefix string
}

// NewR2Client builds an S3 client pointed at the account's R2 endpoint.
func NewR2Client(ctx context.Context, opts R2Options) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKeyID, opts.AccessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", opts.AccountID)
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	}), nil
}

func NewArchiver(client PutObjectAPI, bucket, prefix string) *Archiver {
	return &Archiver{client: client, bucket: bucket, prefix: prefix}
}

// NewR2Archiver is NewR2Client followed by NewArchiver.
func NewR2Archiver(ctx context.Context, opts R2Options) (*Archiver, error) {
	client, err := NewR2Client(ctx, opts)
	if err != nil {
		return nil, err
	}
	return NewArchiver(client, opts.Bucket, opts.Prefix), nil
}

// Key returns the object key of a run: <prefix>/<yyyy-mm-dd>/<job>-<id>.json,
// dated by the run's start in UTC.
func (a *Archiver) Key(run models.SettlementRun) string {
	name := fmt.Sprintf("%s-%s.json", slug.Make(run.Job), run.ID)
	return path.Join(a.prefix, run.StartedAt.UTC().Format("2006-01-02"), name)
}

type report struct {
	models.SettlementRun
	DurationMS int64 `json:"duration_ms"`
}

func (a *Archiver) Archive(ctx context.Context, run models.SettlementRun) error {
	body, err := json.Marshal(report{SettlementRun: run, DurationMS: run.Duration().Milliseconds()})
	if err != nil {
		return fmt.Errorf("failed to encode run report: %w", err)
	}

	key := a.Key(run)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to R2: %w", key, err)
	}
	return nil
}
