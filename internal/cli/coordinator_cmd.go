package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rescale-labs/permitcoord/internal/permit/coordinator"
	"github.com/rescale-labs/permitcoord/internal/version"
)

// NewCoordinatorRootCmd builds the command tree for permit-coordinatord:
// the cluster-wide singleton owning the global permit pool. Mirrors the
// teacher's hidden "ratelimit-coordinator" command group, promoted here to
// its own top-level binary since the coordinator is this repo's core
// deliverable rather than an internal implementation detail.
func NewCoordinatorRootCmd() *cobra.Command {
	var (
		globalPermits int
		idleTimeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "permit-coordinatord",
		Short: "Cluster-wide concurrency permit coordinator",
		Long: `permit-coordinatord is the singleton authority over a cluster-wide
pool of concurrency permits. Client Limiter processes lease permits from
it over a small RPC surface (TryAcquire, Release, RefreshLease,
Unregister) so that aggregate concurrency across a fleet never exceeds
the configured global permit count, regardless of how many client
processes are active.`,
		Version: version.Version + " (" + version.BuildTime + ")",
	}
	addDebugFlag(cmd)

	cmd.PersistentFlags().IntVar(&globalPermits, "global-permits", 100, "Cluster-wide permit cap (N)")
	cmd.PersistentFlags().DurationVar(&idleTimeout, "idle-timeout", 60*time.Second, "Idle client purge threshold (I)")

	cmd.AddCommand(newCoordinatorRunCmd(&globalPermits, &idleTimeout))
	cmd.AddCommand(newCoordinatorStatusCmd())
	cmd.AddCommand(newCoordinatorShutdownCmd())

	return cmd
}

// newCoordinatorRunCmd creates the "run" command: the coordinator server
// process entry point.
func newCoordinatorRunCmd(globalPermits *int, idleTimeout *time.Duration) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the permit coordinator server",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := GetLogger()

			if err := coordinator.WritePIDFile(); err != nil {
				return fmt.Errorf("failed to write PID file: %w", err)
			}
			defer coordinator.RemovePIDFile()

			listener, err := coordinator.Listen()
			if err != nil {
				return fmt.Errorf("failed to create listener: %w", err)
			}
			defer coordinator.CleanupSocket()

			srv, err := coordinator.NewServer(coordinator.Config{
				GlobalPermitCount: *globalPermits,
				IdleClientTimeout: *idleTimeout,
			}, log.Zerolog())
			if err != nil {
				return fmt.Errorf("invalid coordinator configuration: %w", err)
			}
			srv.Start(listener)

			log.Info().Int("pid", os.Getpid()).Str("socket", coordinator.SocketPath()).
				Int("global_permits", *globalPermits).Msg("permit coordinator started")

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			select {
			case sig := <-sigCh:
				log.Info().Str("signal", sig.String()).Msg("received signal, shutting down")
			case <-srv.Done():
				log.Info().Msg("coordinator shut down (shutdown RPC)")
			}

			signal.Stop(sigCh)
			srv.Stop()
			log.Info().Msg("permit coordinator stopped")
			return nil
		},
	}
}

// newCoordinatorStatusCmd creates the "status" command: connects as a
// client and prints the GetState snapshot.
func newCoordinatorStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show permit coordinator status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := coordinator.NewClient()
			defer client.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			state, err := client.GetState(ctx)
			if err != nil {
				return fmt.Errorf("coordinator not running or unreachable: %w", err)
			}

			fmt.Printf("Permit Coordinator Status\n")
			fmt.Printf("  Uptime:            %s\n", time.Duration(state.UptimeSeconds*float64(time.Second)).Truncate(time.Second))
			fmt.Printf("  Global permits:    %d\n", state.GlobalPermits)
			fmt.Printf("  Available now:     %d\n", state.AvailablePermits)
			fmt.Printf("  Pending queue:     %d\n", state.PendingDepth)
			fmt.Printf("  Known clients:     %d\n", len(state.Clients))

			for _, c := range state.Clients {
				fmt.Printf("\n  Client: %s\n", c.ClientRef)
				fmt.Printf("    In use:     %d\n", c.InUse)
				fmt.Printf("    Seq:        %d\n", c.Seq)
				fmt.Printf("    Pending:    %v\n", c.HasPending)
				fmt.Printf("    Idle:       %.1fs\n", c.IdleSeconds)
			}

			return nil
		},
	}
}

// newCoordinatorShutdownCmd creates the "shutdown" command: a graceful
// remote stop, supplementing the core RPC surface the way the teacher's
// coordinator accepts a Shutdown message outside any conservation
// invariant.
func newCoordinatorShutdownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown",
		Short: "Ask a running permit coordinator to stop",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := coordinator.NewClient()
			defer client.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			if err := client.Shutdown(ctx); err != nil {
				return fmt.Errorf("coordinator not running or unreachable: %w", err)
			}
			fmt.Println("Shutdown requested.")
			return nil
		},
	}
}
