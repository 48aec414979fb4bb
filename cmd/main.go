package main

import (
	"os"

	"neuroaid-diagnostic-service/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
