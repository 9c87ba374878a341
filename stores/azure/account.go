package azure

import (
	"fmt"
	"net/url"
	"os"

	"github.com/Azure/azure-pipeline-go/pipeline"
	"github.com/Azure/azure-storage-blob-go/azblob"
	log "github.com/sirupsen/logrus"
	"go.gazette.dev/pagevfs/stores"
	"go.gazette.dev/pagevfs/stores/common"
)

// NewAccount returns a Store of an azure://container/prefix/ URL,
// authenticated by the Shared Key of environment variables
// AZURE_ACCOUNT_NAME and AZURE_ACCOUNT_KEY.
func NewAccount(ep *url.URL) (stores.Store, error) {
	var args StoreQueryArgs
	if err := common.ParseStoreArgs(ep, &args); err != nil {
		return nil, err
	}
	var container, prefix, err = common.BucketAndPrefix(ep)
	if err != nil {
		return nil, err
	}

	var account, key = os.Getenv("AZURE_ACCOUNT_NAME"), os.Getenv("AZURE_ACCOUNT_KEY")
	if account == "" || key == "" {
		return nil, fmt.Errorf("AZURE_ACCOUNT_NAME and AZURE_ACCOUNT_KEY must be set for azure:// URLs")
	}
	credential, err := azblob.NewSharedKeyCredential(account, key)
	if err != nil {
		return nil, err
	}

	return newStoreBase(args, account, container, prefix,
		azblob.NewPipeline(credential, azblob.PipelineOptions{}),
		log.Fields{"auth": "shared-key"}), nil
}

func newStoreBase(args StoreQueryArgs, account, container, prefix string, p pipeline.Pipeline, fields log.Fields) *storeBase {
	var s = &storeBase{
		args:           args,
		storageAccount: account,
		blobDomain:     blobDomain(),
		container:      container,
		prefix:         prefix,
		pipeline:       p,
	}
	fields["containerURL"] = s.containerURL()
	fields["prefix"] = prefix
	log.WithFields(fields).Info("constructed Azure block store")

	return s
}
