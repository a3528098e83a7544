// Command erpsim runs ERP mapping examples against the hosted
// mapping-simulation API.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/erpsim/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
