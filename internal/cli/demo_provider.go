package cli

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/rescale-labs/permitcoord/internal/transferdemo"
)

// providerConfig collects the flag values needed to build any of
// permit-demo's supported transfer providers.
type providerConfig struct {
	kind string

	s3Bucket string
	s3Region string

	azureConn string
	azureCntr string

	httpURL string
}

// buildProvider constructs the transferdemo.Provider named by cfg.kind.
func buildProvider(ctx context.Context, cfg providerConfig, log zerolog.Logger) (transferdemo.Provider, error) {
	switch cfg.kind {
	case "", "stub":
		return transferdemo.NewStubProvider(0), nil
	case "s3":
		return transferdemo.NewS3Provider(ctx, transferdemo.S3Config{
			Bucket: cfg.s3Bucket,
			Region: cfg.s3Region,
		})
	case "azure":
		return transferdemo.NewAzureProvider(transferdemo.AzureConfig{
			ConnectionString: cfg.azureConn,
			Container:        cfg.azureCntr,
		})
	case "http":
		if cfg.httpURL == "" {
			return nil, fmt.Errorf("--http-url is required for --provider=http")
		}
		return transferdemo.NewHTTPProvider(transferdemo.HTTPConfig{BaseURL: cfg.httpURL}, log), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (want stub, s3, azure, or http)", cfg.kind)
	}
}

// buildTransfers generates count simulated transfers with sizes uniformly
// distributed in [minSize, maxSize].
func buildTransfers(count int, minSize, maxSize int64) []transferdemo.Transfer {
	if maxSize < minSize {
		maxSize = minSize
	}
	span := maxSize - minSize + 1

	transfers := make([]transferdemo.Transfer, count)
	for i := range transfers {
		size := minSize
		if span > 0 {
			size = minSize + rand.Int63n(span)
		}
		transfers[i] = transferdemo.Transfer{
			Name: fmt.Sprintf("transfer-%04d", i),
			Size: size,
		}
	}
	return transfers
}
