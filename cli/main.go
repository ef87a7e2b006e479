package main

import (
	"os"

	"github.com/glimpse-dev/glimpse-go/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
