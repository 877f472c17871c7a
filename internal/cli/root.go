// Package cli provides the command-line interface shared by the two
// binaries in this repository: permit-coordinatord (the cluster-wide
// coordinator daemon) and permit-demo (a host-application stand-in that
// exercises the Client Limiter).
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rescale-labs/permitcoord/internal/logging"
)

var (
	debug bool

	logger *logging.Logger
)

// GetLogger returns the process-wide CLI logger, creating it on first use.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return logger
}

// addDebugFlag registers the shared --debug persistent flag and wires it
// to the global log level, the way the teacher's root command gates
// verbosity with --debug/--verbose.
func addDebugFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		logger = logging.NewDefaultCLILogger()
		if debug {
			logging.SetGlobalLevel(zerolog.DebugLevel)
		}
	}
}
