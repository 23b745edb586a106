package main

import (
	"os"

	"github.com/goforj/replaycache/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
