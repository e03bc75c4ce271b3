package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/txsim/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "txsim:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
