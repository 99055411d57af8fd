// Command blockdoc inspects, migrates, renders and converts block documents.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/blockdoc/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
