// Command sportorg runs orienteering timing and results.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/sportorg/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
