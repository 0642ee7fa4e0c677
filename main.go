package main

import (
	"os"

	"github.com/mhall-io/jobscout/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
