// Package gcs implements a Store of a Google Cloud Storage bucket,
// serving gs:// URLs.
package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	log "github.com/sirupsen/logrus"
	"go.gazette.dev/pagevfs/stores"
	"go.gazette.dev/pagevfs/stores/common"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// StoreQueryArgs are the query arguments of a gs:// store URL.
type StoreQueryArgs struct {
	// Endpoint of a GCS emulator. Requests of an Endpoint are unauthenticated.
	Endpoint string
}

type store struct {
	bucket *storage.BucketHandle
	prefix string
	client *storage.Client
}

// New returns a Store of the gs:// URL, such as gs://bucket/dbs/.
func New(ep *url.URL) (stores.Store, error) {
	var args StoreQueryArgs
	if err := common.ParseStoreArgs(ep, &args); err != nil {
		return nil, err
	}
	var bucket, prefix, err = common.BucketAndPrefix(ep)
	if err != nil {
		return nil, err
	}

	var ctx = context.Background()
	opts, fields, err := clientOptions(ctx, args)
	if err != nil {
		return nil, err
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}

	fields["bucket"], fields["prefix"] = bucket, prefix
	log.WithFields(fields).Info("constructed GCS block store")

	return &store{
		bucket: client.Bucket(bucket),
		prefix: prefix,
		client: client,
	}, nil
}

// clientOptions authenticate a storage.Client. Service account keys sign
// their own tokens. Other default credentials, like those of workload
// identity or a GCE instance, use their TokenSource.
func clientOptions(ctx context.Context, args StoreQueryArgs) ([]option.ClientOption, log.Fields, error) {
	if args.Endpoint != "" {
		return []option.ClientOption{
			option.WithEndpoint(args.Endpoint),
			option.WithoutAuthentication(),
		}, log.Fields{"endpoint": args.Endpoint}, nil
	}

	var creds, err = google.FindDefaultCredentials(ctx, storage.ScopeFullControl)
	if err != nil {
		return nil, nil, err
	}
	var fields = log.Fields{"projectID": creds.ProjectID}

	if !isServiceAccountKey(creds.JSON) {
		return []option.ClientOption{option.WithTokenSource(creds.TokenSource)}, fields, nil
	}

	jwt, err := google.JWTConfigFromJSON(creds.JSON, storage.ScopeFullControl)
	if err != nil {
		return nil, nil, err
	}
	fields["googleAccessID"] = jwt.Email
	fields["privateKeyID"] = jwt.PrivateKeyID

	return []option.ClientOption{option.WithTokenSource(jwt.TokenSource(ctx))}, fields, nil
}

// isServiceAccountKey is true of present JSON credentials which are not of
// an "external_account".
func isServiceAccountKey(credsJSON []byte) bool {
	if credsJSON == nil {
		return false
	}
	var f struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(credsJSON, &f); err != nil {
		return true
	}
	return f.Type != "external_account"
}

func (s *store) object(path string) *storage.ObjectHandle { return s.bucket.Object(s.prefix + path) }

func (s *store) Provider() string { return "gcs" }

func (s *store) Exists(ctx context.Context, path string) (bool, error) {
	var _, err = s.object(path).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (s *store) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	var r, err = s.object(path).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, stores.NotFound(err)
	} else if err != nil {
		return nil, err
	}
	return common.LengthChecked(r, r.Attrs.Size), nil
}

// Put uploads the block in a single request, with its CRC32C which GCS
// verifies before committing the object.
func (s *store) Put(ctx context.Context, path string, content io.ReaderAt, contentLength int64) error {
	var b, err = common.ReadContent(content, contentLength)
	if err != nil {
		return err
	}

	// Cancellation aborts the upload if Write or Close fail.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var w = s.object(path).NewWriter(ctx)
	w.ChunkSize = 0
	w.ContentType = "application/octet-stream"
	w.CRC32C = common.ContentCRC32C(b)
	w.SendCRC32C = true

	if _, err = w.Write(b); err != nil {
		return err
	}
	return w.Close()
}

func (s *store) List(ctx context.Context, prefix string, callback func(path string, modTime time.Time) error) error {
	prefix = s.prefix + prefix
	var it = s.bucket.Objects(ctx, &storage.Query{Prefix: prefix})

	for {
		var obj, err = it.Next()
		if err == iterator.Done {
			return nil
		} else if err != nil {
			return err
		} else if strings.HasSuffix(obj.Name, "/") {
			continue
		}
		if err = callback(strings.TrimPrefix(obj.Name, prefix), obj.Updated); err != nil {
			return err
		}
	}
}

func (s *store) Remove(ctx context.Context, path string) error {
	return s.object(path).Delete(ctx)
}

// IsAuthError is true of a missing bucket or a denied request.
// Missing objects are not authorization failures.
func (s *store) IsAuthError(err error) bool {
	if errors.Is(err, storage.ErrBucketNotExist) {
		return true
	}
	var gErr *googleapi.Error
	if !errors.As(err, &gErr) {
		return false
	}
	return gErr.Code == http.StatusForbidden ||
		(gErr.Code == http.StatusNotFound && strings.Contains(gErr.Message, "bucket"))
}
