package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tsawler/go-vaegan/cmd"
)

func main() {
	if err := cmd.NewCLI().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
