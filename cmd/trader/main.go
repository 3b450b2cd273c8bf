package main

import (
	"context"
	"fmt"
	"os"

	"bracket-trader/internal/cli"
	"bracket-trader/internal/logging"
)

func main() {
	logger := logging.NewLogger()

	if err := cli.NewRootCmd(logger).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
