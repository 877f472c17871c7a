package transferdemo

import (
	"bytes"
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// AzureConfig names the container an Azure connection string's account
// resolves to. Grounded in internal/cloud/providers/azure's NewAzureClient,
// simplified the same way S3Config is: no Rescale credential-manager
// integration, just a connection string handed in by flag.
type AzureConfig struct {
	ConnectionString string
	Container        string
}

// AzureProvider uploads each transfer as a block blob.
type AzureProvider struct {
	client    *azblob.Client
	container string
}

// NewAzureProvider constructs an AzureProvider from cfg.
func NewAzureProvider(cfg AzureConfig) (*AzureProvider, error) {
	if cfg.ConnectionString == "" {
		return nil, fmt.Errorf("transferdemo: AzureConfig.ConnectionString is required")
	}
	if cfg.Container == "" {
		return nil, fmt.Errorf("transferdemo: AzureConfig.Container is required")
	}

	client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create azure blob client: %w", err)
	}

	return &AzureProvider{client: client, container: cfg.Container}, nil
}

// Name identifies this provider for logging/display.
func (p *AzureProvider) Name() string { return "azure" }

// Upload uploads t as a block blob filled with zero bytes up to its
// declared size.
func (p *AzureProvider) Upload(ctx context.Context, t Transfer) error {
	body := bytes.NewReader(make([]byte, t.Size))
	_, err := p.client.UploadStream(ctx, p.container, t.Name, body, nil)
	return err
}
