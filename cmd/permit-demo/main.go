// Command permit-demo is a host-application stand-in that exercises the
// Client Limiter to bound concurrent simulated cloud transfers against a
// running (or auto-spawned) permit-coordinatord.
package main

import (
	"os"

	"github.com/rescale-labs/permitcoord/internal/cli"
)

func main() {
	if err := cli.NewDemoRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
