package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

/* ---------- S3 uploader ---------- */

type Uploader struct {
	cl     S3API
	bucket string
	prefix string
}

func NewUploader(cl S3API, bucket, prefix string) *Uploader {
	return &Uploader{cl: cl, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// Location is the s3:// prefix the Parquet slices live under.
func (u *Uploader) Location() string {
	return fmt.Sprintf("s3://%s/%s/", u.bucket, u.prefix)
}

func (u *Uploader) put(ctx context.Context, key, contentType string, runID uuid.UUID, body []byte) error {
	_, err := u.cl.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		Metadata:    map[string]string{"run-id": runID.String()},
	})
	return err
}

// Key is the Hive-style partition key of one gameweek slice:
// <prefix>/league=<slug>/gw=<NN>/slice.parquet. It is the same on every run,
// so a re-scraped gameweek replaces its slice. CSV copies go under
// <prefix>_csv so the Parquet prefix only ever holds Parquet.
func (u *Uploader) Key(league string, gw int, ext string) string {
	root := u.prefix
	if ext != "parquet" {
		root += "_" + ext
	}
	return path.Join(root, "league="+Slug(league), fmt.Sprintf("gw=%02d", gw), "slice."+ext)
}

// PutParquet uploads one gameweek slice as Parquet and returns its key.
// Empty slices upload nothing.
func (u *Uploader) PutParquet(ctx context.Context, league string, gw int, runID uuid.UUID, data []byte) (string, error) {
	return u.upload(ctx, league, gw, runID, "parquet", "application/vnd.apache.parquet", data)
}

// PutCSV uploads one gameweek slice as CSV and returns its key.
func (u *Uploader) PutCSV(ctx context.Context, league string, gw int, runID uuid.UUID, data []byte) (string, error) {
	return u.upload(ctx, league, gw, runID, "csv", "text/csv", data)
}

func (u *Uploader) upload(ctx context.Context, league string, gw int, runID uuid.UUID, ext, contentType string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	key := u.Key(league, gw, ext)
	if err := u.put(ctx, key, contentType, runID, data); err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", u.bucket, key, err)
	}
	return key, nil
}
