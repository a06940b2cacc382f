package main

import (
	"fmt"
	"os"

	"audiosched/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "audiosched:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
