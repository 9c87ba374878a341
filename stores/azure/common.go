// Package azure implements Stores of Azure Blob Storage containers,
// serving azure:// (shared key) and azure-ad:// (Azure AD) URLs.
package azure

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/Azure/azure-pipeline-go/pipeline"
	"github.com/Azure/azure-storage-blob-go/azblob"
	"go.gazette.dev/pagevfs/stores"
	"go.gazette.dev/pagevfs/stores/common"
)

// StoreQueryArgs are the query arguments of an azure:// or azure-ad:// store URL.
type StoreQueryArgs struct {
	// AccessTier of persisted blocks, such as "Hot" or "Cool".
	// The account's default tier is used if empty.
	AccessTier string
}

// storeBase implements Store of a container prefix, independent of how
// requests of its pipeline are authenticated.
type storeBase struct {
	args           StoreQueryArgs
	storageAccount string
	blobDomain     string // Such as blob.core.windows.net.
	container      string
	prefix         string // Of blobs within the container.
	pipeline       pipeline.Pipeline
}

func (a *storeBase) Provider() string { return "azure" }

func (a *storeBase) Exists(ctx context.Context, path string) (bool, error) {
	var blobURL, err = a.buildBlobURL(path)
	if err != nil {
		return false, err
	}
	if _, err = blobURL.GetProperties(ctx, azblob.BlobAccessConditions{}, azblob.ClientProvidedKeyOptions{}); err == nil {
		return true, nil
	} else if isBlobNotFound(err) {
		return false, nil
	}
	return false, err
}

func (a *storeBase) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	var blobURL, err = a.buildBlobURL(path)
	if err != nil {
		return nil, err
	}
	download, err := blobURL.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if isBlobNotFound(err) {
		return nil, stores.NotFound(err)
	} else if err != nil {
		return nil, err
	}
	var body = download.Body(azblob.RetryReaderOptions{MaxRetryRequests: 3})
	return common.LengthChecked(body, download.ContentLength()), nil
}

// Put uploads the block with its Content-MD5, which Azure verifies before
// committing the blob.
func (a *storeBase) Put(ctx context.Context, path string, content io.ReaderAt, contentLength int64) error {
	var blobURL, err = a.buildBlobURL(path)
	if err != nil {
		return err
	}
	b, err := common.ReadContent(content, contentLength)
	if err != nil {
		return err
	}
	var headers = azblob.BlobHTTPHeaders{
		ContentType: "application/octet-stream",
		ContentMD5:  common.ContentMD5(b),
	}

	_, err = blobURL.Upload(ctx, bytes.NewReader(b), headers,
		azblob.Metadata{}, azblob.BlobAccessConditions{}, a.accessTier(), azblob.BlobTagsMap{},
		azblob.ClientProvidedKeyOptions{}, azblob.ImmutabilityPolicyOptions{})
	return err
}

func (a *storeBase) accessTier() azblob.AccessTierType {
	if a.args.AccessTier == "" {
		return azblob.DefaultAccessTier
	}
	return azblob.AccessTierType(a.args.AccessTier)
}

func (a *storeBase) List(ctx context.Context, prefix string, callback func(path string, modTime time.Time) error) error {
	var u, err = url.Parse(a.containerURL())
	if err != nil {
		return err
	}
	prefix = a.prefix + prefix

	var container = azblob.NewContainerURL(*u, a.pipeline)
	var marker azblob.Marker

	for marker.NotDone() {
		var segment, err = container.ListBlobsFlatSegment(ctx, marker, azblob.ListBlobsSegmentOptions{Prefix: prefix})
		if err != nil {
			return err
		}
		for _, blob := range segment.Segment.BlobItems {
			if strings.HasSuffix(blob.Name, "/") {
				continue
			}
			if err = callback(strings.TrimPrefix(blob.Name, prefix), blob.Properties.LastModified); err != nil {
				return err
			}
		}
		marker = segment.NextMarker
	}
	return nil
}

func (a *storeBase) Remove(ctx context.Context, path string) error {
	var blobURL, err = a.buildBlobURL(path)
	if err != nil {
		return err
	}
	_, err = blobURL.Delete(ctx, azblob.DeleteSnapshotsOptionNone, azblob.BlobAccessConditions{})
	return err
}

// IsAuthError is true of a missing or disabled container or account,
// or a denied request.
func (a *storeBase) IsAuthError(err error) bool {
	var storageErr, ok = err.(azblob.StorageError)
	if !ok {
		return false
	}
	switch storageErr.ServiceCode() {
	case azblob.ServiceCodeContainerNotFound,
		azblob.ServiceCodeContainerDisabled,
		azblob.ServiceCodeAccountIsDisabled:
		return true
	}
	var resp = storageErr.Response()
	return resp != nil && resp.StatusCode == http.StatusForbidden
}

func (a *storeBase) buildBlobURL(path string) (*azblob.BlockBlobURL, error) {
	var u, err = url.Parse(a.containerURL() + "/" + a.prefix + path)
	if err != nil {
		return nil, err
	}
	var blobURL = azblob.NewBlockBlobURL(*u, a.pipeline)
	return &blobURL, nil
}

func (a *storeBase) containerURL() string {
	return fmt.Sprintf("https://%s.%s/%s", a.storageAccount, a.blobDomain, a.container)
}

// blobDomain of the Azure cloud, which is AZURE_BLOB_DOMAIN if set
// and otherwise the public cloud.
func blobDomain() string {
	var d = os.Getenv("AZURE_BLOB_DOMAIN")
	if d == "" {
		d = "blob.core.windows.net"
	}
	return d
}

func isBlobNotFound(err error) bool {
	var storageErr, ok = err.(azblob.StorageError)
	return ok && storageErr.ServiceCode() == azblob.ServiceCodeBlobNotFound
}
