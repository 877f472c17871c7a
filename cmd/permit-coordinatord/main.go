// Command permit-coordinatord runs the cluster-wide permit coordinator:
// the singleton authority that client limiters lease concurrency permits
// from.
package main

import (
	"os"

	"github.com/rescale-labs/permitcoord/internal/cli"
)

func main() {
	if err := cli.NewCoordinatorRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
