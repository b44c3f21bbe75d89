package main

import (
	"os"

	"github.com/quillon/coachkb/internal/adapters/driving/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
