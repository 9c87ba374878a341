package azure

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-storage-blob-go/azblob"
	log "github.com/sirupsen/logrus"
	"go.gazette.dev/pagevfs/stores"
	"go.gazette.dev/pagevfs/stores/common"
)

// NewAD returns a Store of an azure-ad://tenant-id/storage-account/container/prefix/
// URL, authenticated as the Azure AD application of environment variables
// AZURE_CLIENT_ID and AZURE_CLIENT_SECRET.
func NewAD(ep *url.URL) (stores.Store, error) {
	var args StoreQueryArgs
	if err := common.ParseStoreArgs(ep, &args); err != nil {
		return nil, err
	}

	var tenant = ep.Host
	var parts = strings.SplitN(strings.TrimPrefix(ep.Path, "/"), "/", 3)
	if tenant == "" || len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("azure-ad:// URL must include tenant, storage account and container: azure-ad://tenant-id/storage-account/container/prefix/")
	}
	var account, container, prefix = parts[0], parts[1], ""
	if len(parts) == 3 {
		prefix = parts[2]
	}

	var clientID, secret = os.Getenv("AZURE_CLIENT_ID"), os.Getenv("AZURE_CLIENT_SECRET")
	if clientID == "" || secret == "" {
		return nil, fmt.Errorf("AZURE_CLIENT_ID and AZURE_CLIENT_SECRET must be set for azure-ad:// URLs")
	}
	var credential, err = azidentity.NewClientSecretCredential(tenant, clientID, secret,
		&azidentity.ClientSecretCredentialOptions{DisableInstanceDiscovery: true})
	if err != nil {
		return nil, err
	}

	var token = azblob.NewTokenCredential("", tokenRefresher(credential, tenant))

	return newStoreBase(args, account, container, prefix,
		azblob.NewPipeline(token, azblob.PipelineOptions{}),
		log.Fields{"auth": "azure-ad", "tenant": tenant}), nil
}

// tokenRefresher returns an azblob.TokenRefresher which sets a storage
// token of |credential|, and returns the delay until it should next run.
func tokenRefresher(credential azcore.TokenCredential, tenant string) azblob.TokenRefresher {
	var opts = policy.TokenRequestOptions{
		TenantID: tenant,
		Scopes:   []string{"https://storage.azure.com/.default"},
	}
	return func(tc azblob.TokenCredential) time.Duration {
		var token, err = credential.GetToken(context.Background(), opts)
		if err != nil {
			log.WithFields(log.Fields{"err": err, "tenant": tenant}).
				Error("failed to refresh Azure AD token (will retry)")
			return time.Minute
		}
		tc.SetToken(token.Token)
		return time.Until(token.ExpiresOn.Add(-time.Minute))
	}
}
