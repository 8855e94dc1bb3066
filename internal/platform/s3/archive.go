package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"sigs.k8s.io/yaml"

	"github.com/imamik/metalboot/internal/config"
)

// ManifestFile is written next to the archived files.
const ManifestFile = "manifest.yaml"

// Manifest records what a run archived.
type Manifest struct {
	Cluster   string    `json:"cluster"`
	Files     []string  `json:"files"`
	WrittenAt time.Time `json:"writtenAt"`
}

// Archive uploads credential files into one bucket.
type Archive struct {
	s3     *s3.Client
	bucket string
	prefix string
	now    func() time.Time
}

// New creates an Archive from the configuration section.
func New(ctx context.Context, cfg config.ArchiveConfig) (*Archive, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	return &Archive{s3: client, bucket: cfg.Bucket, prefix: cfg.Prefix, now: time.Now}, nil
}

// Bucket returns the target bucket name.
func (a *Archive) Bucket() string {
	return a.bucket
}

// Store uploads files under <prefix>/<cluster>/ and returns the keys written,
// manifest last.
func (a *Archive) Store(ctx context.Context, cluster string, files map[string][]byte) ([]string, error) {
	if err := a.ensureBucket(ctx); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	keys := make([]string, 0, len(names)+1)
	for _, name := range names {
		key := a.key(cluster, name)
		if err := a.put(ctx, key, files[name]); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}

	manifest, err := yaml.Marshal(Manifest{Cluster: cluster, Files: names, WrittenAt: a.now().UTC()})
	if err != nil {
		return keys, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	key := a.key(cluster, ManifestFile)
	if err := a.put(ctx, key, manifest); err != nil {
		return keys, err
	}
	return append(keys, key), nil
}

// Fetch downloads one archived file.
func (a *Archive) Fetch(ctx context.Context, cluster, name string) ([]byte, error) {
	key := a.key(cluster, name)
	result, err := a.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s from bucket %s: %w", key, a.bucket, err)
	}
	defer result.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(result.Body); err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}
	return buf.Bytes(), nil
}

func (a *Archive) key(cluster, name string) string {
	return path.Join(a.prefix, cluster, name)
}

func (a *Archive) put(ctx context.Context, key string, data []byte) error {
	_, err := a.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s in bucket %s: %w", key, a.bucket, err)
	}
	return nil
}

// ensureBucket creates the bucket unless it exists.
func (a *Archive) ensureBucket(ctx context.Context) error {
	_, err := a.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	if err == nil {
		return nil
	}
	if !isNotFoundError(err) {
		return fmt.Errorf("failed to check bucket %s: %w", a.bucket, err)
	}

	_, err = a.s3.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(a.bucket)})
	if err != nil && !isBucketAlreadyOwnedByYou(err) {
		return fmt.Errorf("failed to create bucket %s: %w", a.bucket, err)
	}
	return nil
}

// isBucketAlreadyOwnedByYou checks if the error indicates the bucket exists and is owned by us.
func isBucketAlreadyOwnedByYou(err error) bool {
	var baoby *types.BucketAlreadyOwnedByYou
	if errors.As(err, &baoby) {
		return true
	}
	var bae *types.BucketAlreadyExists
	if errors.As(err, &bae) {
		return true
	}

	// S3-compatible stores do not always return the typed errors
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists"
	}
	return false
}

func isNotFoundError(err error) bool {
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchBucket" || code == "404"
	}
	return false
}
