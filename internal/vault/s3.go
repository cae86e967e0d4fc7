package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"smugdups/internal/config"
	"smugdups/internal/dups"
)

// objectAPI is the subset of the S3 client the vault reads with.
type objectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// uploader is satisfied by *manager.Uploader.
type uploader interface {
	Upload(ctx context.Context, in *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Vault stores content and metadata as objects in an S3 bucket:
//
//	<prefix>/content/<md5>
//	<prefix>/metadata/<account>/<name>
//
// Large objects are uploaded in parts by the SDK's upload manager.
type S3Vault struct {
	ctx      context.Context
	name     string
	bucket   string
	prefix   string
	objects  objectAPI
	uploader uploader
}

// NewS3Vault creates a vault backed by the bucket named in cfg. Credentials
// come from cfg's static keys when set, otherwise from the default AWS chain.
// ctx bounds every call the vault makes.
func NewS3Vault(ctx context.Context, cfg config.VaultConfig) (*S3Vault, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 vault requires s3_bucket to be set")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Vault(ctx, cfg.Name, cfg.S3Bucket, cfg.S3Prefix, client, manager.NewUploader(client)), nil
}

func newS3Vault(ctx context.Context, name, bucket, prefix string, objects objectAPI, up uploader) *S3Vault {
	return &S3Vault{
		ctx:      ctx,
		name:     name,
		bucket:   bucket,
		prefix:   prefix,
		objects:  objects,
		uploader: up,
	}
}

func (v *S3Vault) contentKey(checksum string) string {
	return path.Join(v.prefix, "content", checksum)
}

func (v *S3Vault) metadataKey(account, name string) string {
	return path.Join(v.prefix, "metadata", account, name)
}

// PutContent stores content identified by its checksum. Existing content is
// left untouched.
func (v *S3Vault) PutContent(checksum string, r io.Reader, size int64) error {
	exists, err := v.HasContent(checksum)
	if err != nil {
		return err
	}
	if exists {
		if _, err := io.Copy(io.Discard, r); err != nil {
			return fmt.Errorf("failed to read content: %w", err)
		}
		return nil
	}
	return v.put(v.contentKey(checksum), r, size)
}

// GetContent retrieves content by checksum and writes it to w.
func (v *S3Vault) GetContent(checksum string, w io.Writer) error {
	return v.get(v.contentKey(checksum), w, fmt.Sprintf("content not found: %s", checksum))
}

// HasContent reports whether content with the checksum is stored.
func (v *S3Vault) HasContent(checksum string) (bool, error) {
	_, err := v.objects.HeadObject(v.ctx, &s3.HeadObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.contentKey(checksum)),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("checking content %s: %w", checksum, err)
}

// PutMetadata stores a named metadata item for an account.
func (v *S3Vault) PutMetadata(account string, name string, r io.Reader, size int64) error {
	if err := validateName(account, name); err != nil {
		return err
	}
	return v.put(v.metadataKey(account, name), r, size)
}

// GetMetadata retrieves a named metadata item for an account and writes it to w.
func (v *S3Vault) GetMetadata(account string, name string, w io.Writer) error {
	if err := validateName(account, name); err != nil {
		return err
	}
	return v.get(v.metadataKey(account, name), w, fmt.Sprintf("metadata %q not found for account: %s", name, account))
}

// ValidateSetup verifies that the bucket exists and is reachable.
func (v *S3Vault) ValidateSetup() error {
	if _, err := v.objects.HeadBucket(v.ctx, &s3.HeadBucketInput{Bucket: aws.String(v.bucket)}); err != nil {
		return fmt.Errorf("s3 bucket %s not accessible: %w", v.bucket, err)
	}
	return nil
}

func (v *S3Vault) put(key string, r io.Reader, size int64) error {
	counter := &countingReader{r: r}
	_, err := v.uploader.Upload(v.ctx, &s3.PutObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
		Body:   counter,
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	if counter.n != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, counter.n)
	}
	return nil
}

func (v *S3Vault) get(key string, w io.Writer, notFoundMsg string) error {
	out, err := v.objects.GetObject(v.ctx, &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%s", notFoundMsg)
		}
		return fmt.Errorf("downloading %s: %w", key, err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("failed to read object: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

var _ dups.Vault = (*S3Vault)(nil)
