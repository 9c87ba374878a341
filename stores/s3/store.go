// Package s3 implements a Store of an AWS S3 (or S3-compatible) bucket,
// serving s3:// URLs.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	log "github.com/sirupsen/logrus"
	"go.gazette.dev/pagevfs/stores"
	"go.gazette.dev/pagevfs/stores/common"
)

// StoreQueryArgs are the query arguments of an s3:// store URL.
type StoreQueryArgs struct {
	// Profile of the shared credentials file. Default credentials are used if empty.
	Profile string
	// Endpoint of an S3-compatible service, such as MinIO. Implies path-style addressing.
	Endpoint string
	// Region of the bucket. If empty, the region of Profile is used.
	Region string
	// StorageClass of persisted blocks, such as "STANDARD_IA".
	StorageClass string
	// SSE is the server-side encryption of persisted blocks, such as "AES256" or "aws:kms".
	SSE string
	// SSEKMSKeyId is the KMS key of "aws:kms" encryption.
	SSEKMSKeyId string
}

type store struct {
	bucket string
	prefix string
	args   StoreQueryArgs
	client *s3.S3
}

// New returns a Store of the s3:// URL, such as s3://bucket/dbs/?Region=us-east-2.
func New(ep *url.URL) (stores.Store, error) {
	var args StoreQueryArgs
	if err := common.ParseStoreArgs(ep, &args); err != nil {
		return nil, err
	}
	var bucket, prefix, err = common.BucketAndPrefix(ep)
	if err != nil {
		return nil, err
	}

	sess, err := session.NewSessionWithOptions(session.Options{Profile: args.Profile})
	if err != nil {
		return nil, fmt.Errorf("constructing S3 session: %s", err)
	}
	creds, err := sess.Config.Credentials.Get()
	if err != nil {
		return nil, fmt.Errorf("fetching AWS credentials for profile %q: %s", args.Profile, err)
	}

	// Requests fail without a region, even of an explicit Endpoint.
	var region = args.Region
	if region == "" {
		region = aws.StringValue(sess.Config.Region)
	}
	if region == "" {
		return nil, fmt.Errorf("missing AWS region configuration for profile %q", args.Profile)
	}

	log.WithFields(log.Fields{
		"bucket":       bucket,
		"prefix":       prefix,
		"endpoint":     args.Endpoint,
		"region":       region,
		"keyID":        creds.AccessKeyID,
		"providerName": creds.ProviderName,
	}).Info("constructed S3 block store")

	return &store{
		bucket: bucket,
		prefix: prefix,
		args:   args,
		client: s3.New(sess, awsConfig(args, region)),
	}, nil
}

func awsConfig(args StoreQueryArgs, region string) *aws.Config {
	var cfg = aws.NewConfig().
		WithRegion(region).
		WithCredentialsChainVerboseErrors(true)

	if args.Endpoint != "" {
		// Bucket-named virtual hosts don't resolve against explicit endpoints.
		cfg.WithEndpoint(args.Endpoint).WithS3ForcePathStyle(true)
	} else {
		// Blocks are opaque pages which don't benefit from transfer encoding.
		cfg.WithHTTPClient(&http.Client{
			Transport: &http.Transport{DisableCompression: true},
		})
	}
	return cfg
}

func (s *store) key(path string) *string { return aws.String(s.prefix + path) }

func (s *store) Provider() string { return "s3" }

func (s *store) Exists(ctx context.Context, path string) (bool, error) {
	var _, err = s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    s.key(path),
	})
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

func (s *store) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	var resp, err = s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    s.key(path),
	})
	if isNotFound(err) {
		return nil, stores.NotFound(err)
	} else if err != nil {
		return nil, err
	}

	var length int64 = -1
	if resp.ContentLength != nil {
		length = *resp.ContentLength
	}
	return common.LengthChecked(resp.Body, length), nil
}

// Put uploads the block with its Content-MD5, which S3 verifies before
// committing the object.
func (s *store) Put(ctx context.Context, path string, content io.ReaderAt, contentLength int64) error {
	var b, err = common.ReadContent(content, contentLength)
	if err != nil {
		return err
	}

	var input = &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           s.key(path),
		Body:          bytes.NewReader(b),
		ContentLength: aws.Int64(contentLength),
		ContentMD5:    aws.String(common.ContentMD5Base64(b)),
		ContentType:   aws.String("application/octet-stream"),
		ACL:           aws.String(s3.ObjectCannedACLBucketOwnerFullControl),
	}
	for _, opt := range []struct {
		value string
		field **string
	}{
		{s.args.StorageClass, &input.StorageClass},
		{s.args.SSE, &input.ServerSideEncryption},
		{s.args.SSEKMSKeyId, &input.SSEKMSKeyId},
	} {
		if opt.value != "" {
			*opt.field = aws.String(opt.value)
		}
	}

	_, err = s.client.PutObjectWithContext(ctx, input)
	return err
}

func (s *store) List(ctx context.Context, prefix string, callback func(path string, modTime time.Time) error) error {
	prefix = s.prefix + prefix

	var cbErr error
	var err = s.client.ListObjectsV2PagesWithContext(ctx,
		&s3.ListObjectsV2Input{Bucket: aws.String(s.bucket), Prefix: aws.String(prefix)},
		func(page *s3.ListObjectsV2Output, _ bool) bool {
			for _, obj := range page.Contents {
				var key = aws.StringValue(obj.Key)
				if strings.HasSuffix(key, "/") {
					continue
				}
				if cbErr = callback(strings.TrimPrefix(key, prefix), aws.TimeValue(obj.LastModified)); cbErr != nil {
					return false
				}
			}
			return true
		})

	if cbErr != nil {
		return cbErr
	}
	return err
}

func (s *store) Remove(ctx context.Context, path string) error {
	var _, err = s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    s.key(path),
	})
	return err
}

// IsAuthError is true of a missing bucket or denied access. Unknown keys
// (an authentication failure) are not included.
func (s *store) IsAuthError(err error) bool {
	if reqErr, ok := err.(awserr.RequestFailure); ok && reqErr.StatusCode() == http.StatusForbidden {
		return true
	}
	if awsErr, ok := err.(awserr.Error); ok {
		var code = awsErr.Code()
		return code == s3.ErrCodeNoSuchBucket || code == s3ErrCodeAccessDenied
	}
	return false
}

// isNotFound is true of a missing key, but not of a missing bucket.
func isNotFound(err error) bool {
	if reqErr, ok := err.(awserr.RequestFailure); ok && reqErr.StatusCode() == http.StatusNotFound {
		return reqErr.Code() != s3.ErrCodeNoSuchBucket
	}
	if awsErr, ok := err.(awserr.Error); ok {
		return awsErr.Code() == s3.ErrCodeNoSuchKey
	}
	return false
}

// s3ErrCodeAccessDenied isn't defined by the SDK.
const s3ErrCodeAccessDenied = "AccessDenied"
