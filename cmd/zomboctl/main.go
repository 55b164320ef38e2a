// Command zomboctl operates Project Zomboid dedicated servers.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/zomboctl/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
