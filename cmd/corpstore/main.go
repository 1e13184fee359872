package main

import (
	"fmt"
	"os"

	"corpstore/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "corpstore: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
