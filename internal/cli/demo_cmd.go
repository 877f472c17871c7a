package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rescale-labs/permitcoord/internal/permit"
	"github.com/rescale-labs/permitcoord/internal/permit/coordinator"
	"github.com/rescale-labs/permitcoord/internal/permitui"
	"github.com/rescale-labs/permitcoord/internal/transferdemo"
	"github.com/rescale-labs/permitcoord/internal/version"
)

// NewDemoRootCmd builds the command tree for permit-demo: a host
// application stand-in that exercises the Client Limiter to bound
// concurrent simulated cloud transfers. The coordinator's protocol is
// spec.md's core; this binary is the "host application" spec.md
// explicitly places out of scope for the protocol itself, shipped anyway
// so the public API has a runnable example, the way the teacher ships
// cmd/rescale-int against internal/cloud.
func NewDemoRootCmd() *cobra.Command {
	var (
		provider        string
		count           int
		minSize         int64
		maxSize         int64
		globalPermits   int
		targetPerClient int
		queueLimit      int
		idleTimeout     time.Duration
		refreshInterval time.Duration

		s3Bucket   string
		s3Region   string
		azureConn  string
		azureCntr  string
		httpURL    string
		noSpawn    bool
	)

	cmd := &cobra.Command{
		Use:   "permit-demo",
		Short: "Run simulated concurrent transfers bounded by the permit coordinator",
		Long: `permit-demo exercises the permit coordinator's Client Limiter against a
running (or auto-spawned) permit-coordinatord, running a batch of
simulated concurrent transfers where each transfer holds exactly one
permit for its duration. It prints a live view of local cache
utilization while the batch runs.`,
		Version: version.Version + " (" + version.BuildTime + ")",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := GetLogger()

			cfg := permit.Config{
				GlobalPermitCount:          globalPermits,
				TargetPermitsPerClient:     targetPerClient,
				QueueLimit:                 queueLimit,
				IdleClientTimeout:          idleTimeout,
				ClientLeaseRefreshInterval: refreshInterval,
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid limiter configuration: %w", err)
			}

			var client *coordinator.Client
			if noSpawn {
				client = coordinator.NewClient()
			} else {
				c, err := coordinator.EnsureCoordinatorWithOptions(coordinator.EnsureOptionsForConfig(cfg))
				if err != nil {
					return fmt.Errorf("failed to reach or start coordinator: %w", err)
				}
				client = c
			}
			defer client.Close()

			limiter, err := permit.NewLimiter(cfg, client, log.Zerolog())
			if err != nil {
				return fmt.Errorf("failed to start limiter: %w", err)
			}
			defer limiter.Close()

			prov, err := buildProvider(cmd.Context(), providerConfig{
				kind:      provider,
				s3Bucket:  s3Bucket,
				s3Region:  s3Region,
				azureConn: azureConn,
				azureCntr: azureCntr,
				httpURL:   httpURL,
			}, log.Zerolog())
			if err != nil {
				return fmt.Errorf("failed to build transfer provider (%s): %w", provider, err)
			}

			transfers := buildTransfers(count, minSize, maxSize)
			runner := transferdemo.NewRunner(limiter, prov, log.Zerolog())

			ui := permitui.NewUtilizationUI(len(transfers), targetPerClient)
			runner.OnResult = func(transferdemo.Result) {
				ui.SetSnapshot(limiter.AvailablePermits(), 0)
				ui.Completed()
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			results := runner.RunBatch(ctx, transfers)
			ui.Finish()

			var failed int
			for _, r := range results {
				if r.Err != nil {
					failed++
					log.Warn().Str("transfer", r.Transfer.Name).Err(r.Err).Msg("transfer failed")
				}
			}
			fmt.Printf("Completed %d/%d transfers via %s (%d failed)\n", len(results)-failed, len(results), prov.Name(), failed)
			return nil
		},
	}
	addDebugFlag(cmd)

	cmd.Flags().StringVar(&provider, "provider", "stub", "Transfer provider: stub, s3, azure, http")
	cmd.Flags().IntVar(&count, "count", 20, "Number of simulated transfers")
	cmd.Flags().Int64Var(&minSize, "min-size", 1<<20, "Minimum simulated transfer size, bytes")
	cmd.Flags().Int64Var(&maxSize, "max-size", 10<<20, "Maximum simulated transfer size, bytes")

	cmd.Flags().IntVar(&globalPermits, "global-permits", 100, "Cluster-wide permit cap (N); must match the coordinator")
	cmd.Flags().IntVar(&targetPerClient, "target-permits", 8, "Desired local cache size (T)")
	cmd.Flags().IntVar(&queueLimit, "queue-limit", 64, "Max outstanding waiter permits (Q)")
	cmd.Flags().DurationVar(&idleTimeout, "idle-timeout", 60*time.Second, "Idle client purge threshold (I); must match the coordinator")
	cmd.Flags().DurationVar(&refreshInterval, "refresh-interval", 15*time.Second, "Heartbeat period (R)")

	cmd.Flags().StringVar(&s3Bucket, "s3-bucket", "", "S3 bucket for --provider=s3")
	cmd.Flags().StringVar(&s3Region, "s3-region", "us-east-1", "S3 region for --provider=s3")
	cmd.Flags().StringVar(&azureConn, "azure-connection-string", "", "Azure Storage connection string for --provider=azure")
	cmd.Flags().StringVar(&azureCntr, "azure-container", "", "Azure container for --provider=azure")
	cmd.Flags().StringVar(&httpURL, "http-url", "", "Presigned-URL-style base endpoint for --provider=http")
	cmd.Flags().BoolVar(&noSpawn, "no-auto-spawn", false, "Don't auto-spawn a coordinator; fail if unreachable")

	return cmd
}
