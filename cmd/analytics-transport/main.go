package main

import (
	"os"

	"github.com/GabrielNunesIT/analytics-transport/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
