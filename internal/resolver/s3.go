package resolver

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/readtext/backend/internal/logging"
	"github.com/readtext/backend/internal/models"
)

// S3API is the subset of the S3 client the fetcher uses.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher fetches s3://bucket/key inputs. Keys may contain glob
// metacharacters, matched with path.Match against the bucket listing.
type S3Fetcher struct {
	client S3API
}

// NewS3Fetcher wraps an existing client.
func NewS3Fetcher(client S3API) *S3Fetcher {
	return &S3Fetcher{client: client}
}

// NewS3FetcherFromEnv builds a client from the default AWS credential chain,
// or from static keys when both are set.
func NewS3FetcherFromEnv(ctx context.Context, region, accessKey, secretKey string) (*S3Fetcher, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3Fetcher(s3.NewFromConfig(awsCfg)), nil
}

// Fetch downloads every object u names.
func (f *S3Fetcher) Fetch(ctx context.Context, u *url.URL, dir string) ([]models.ResolvedFile, error) {
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return nil, models.NewConfigError("file", "s3 input %q names no key", u.String())
	}

	keys := []string{key}
	if hasGlobMeta(key) {
		var err error
		keys, err = f.match(ctx, bucket, key)
		if err != nil {
			return nil, err
		}
	}

	files := make([]models.ResolvedFile, 0, len(keys))
	for _, k := range keys {
		local, err := f.download(ctx, bucket, k, dir)
		if err != nil {
			return nil, err
		}
		logging.FromContext(ctx).Debug("fetched s3 object",
			zap.String("bucket", bucket), zap.String("key", k))
		files = append(files, models.ResolvedFile{Path: local, Source: bucket + "/" + k})
	}
	return files, nil
}

// match lists the bucket under the pattern's literal prefix.
func (f *S3Fetcher) match(ctx context.Context, bucket, pattern string) ([]string, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, models.NewConfigError("file", "bad pattern %q: %v", pattern, err)
	}
	prefix := pattern[:strings.IndexAny(pattern, "*?[")]

	var keys []string
	p := s3.NewListObjectsV2Paginator(f.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list failed: %w", err)
		}
		for _, obj := range page.Contents {
			k := aws.ToString(obj.Key)
			if ok, _ := path.Match(pattern, k); ok && !strings.HasSuffix(k, "/") {
				keys = append(keys, k)
			}
		}
	}
	return keys, nil
}

func (f *S3Fetcher) download(ctx context.Context, bucket, key, dir string) (string, error) {
	resp, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("s3 get failed: %w", err)
	}
	defer resp.Body.Close()

	return saveBody(dir, path.Base(key), resp.Body)
}
